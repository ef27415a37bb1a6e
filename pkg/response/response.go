package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the JSON envelope of every API reply. Code is 0 on success and the
// HTTP status otherwise; Error names the failure for clients that branch on it.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Error kinds
const (
	KindBadRequest  = "bad_request"
	KindNotFound    = "not_found"
	KindRateLimited = "rate_limited"
	KindInternal    = "internal"
)

// Success sends a 200 response
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Message: "success", Data: data})
}

// Created sends a 201 response for accepted writes
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Message: "created", Data: data})
}

// Fail sends an error reply with the given status and kind
func Fail(c *gin.Context, status int, kind, message string) {
	c.JSON(status, Response{Code: status, Message: message, Error: kind})
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	Fail(c, http.StatusBadRequest, KindBadRequest, message)
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	Fail(c, http.StatusNotFound, KindNotFound, message)
}

// TooManyRequests sends a 429 response
func TooManyRequests(c *gin.Context, message string) {
	Fail(c, http.StatusTooManyRequests, KindRateLimited, message)
}

// InternalError sends a 500 response. The message is logged by the caller, not sent.
func InternalError(c *gin.Context) {
	Fail(c, http.StatusInternalServerError, KindInternal, http.StatusText(http.StatusInternalServerError))
}
