package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reply(t *testing.T, send func(c *gin.Context)) (int, map[string]interface{}) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	send(c)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestEnvelope(t *testing.T) {
	for _, tc := range []struct {
		name   string
		send   func(c *gin.Context)
		status int
		kind   string
	}{
		{"success", func(c *gin.Context) { Success(c, gin.H{"n": 1}) }, http.StatusOK, ""},
		{"created", func(c *gin.Context) { Created(c, []int{1}) }, http.StatusCreated, ""},
		{"bad request", func(c *gin.Context) { BadRequest(c, "bad") }, http.StatusBadRequest, KindBadRequest},
		{"not found", func(c *gin.Context) { NotFound(c, "gone") }, http.StatusNotFound, KindNotFound},
		{"rate limited", func(c *gin.Context) { TooManyRequests(c, "slow down") }, http.StatusTooManyRequests, KindRateLimited},
		{"internal", InternalError, http.StatusInternalServerError, KindInternal},
	} {
		t.Run(tc.name, func(t *testing.T) {
			status, body := reply(t, tc.send)
			assert.Equal(t, tc.status, status)
			if tc.kind == "" {
				assert.EqualValues(t, 0, body["code"])
				assert.NotContains(t, body, "error")
				assert.Contains(t, body, "data")
				return
			}
			assert.EqualValues(t, tc.status, body["code"])
			assert.Equal(t, tc.kind, body["error"])
			assert.NotContains(t, body, "data")
		})
	}
}

func TestInternalError_HidesDetail(t *testing.T) {
	_, body := reply(t, InternalError)
	assert.Equal(t, "Internal Server Error", body["message"])
}
