package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jengzang/routes-backend-go/internal/database"
	"github.com/jengzang/routes-backend-go/internal/grouping"
	"github.com/jengzang/routes-backend-go/internal/models"
	"go.uber.org/zap"
)

// CacheRepository persists the route match cache
type CacheRepository struct {
	db  *sql.DB
	log *zap.Logger
}

// NewCacheRepository creates a new cache repository
func NewCacheRepository(db *sql.DB, log *zap.Logger) *CacheRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &CacheRepository{db: db, log: log}
}

// Save replaces the stored cache with c in a single transaction
func (r *CacheRepository) Save(ctx context.Context, c *grouping.Cache) error {
	st := c.State()
	err := database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		if err := clearTables(ctx, tx); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO cache_meta (id, version, saved_at) VALUES (1, ?, ?)`,
			st.Version, formatTime(time.Now())); err != nil {
			return fmt.Errorf("failed to save cache version: %w", err)
		}

		for _, sig := range st.Signatures {
			if err := insertSignature(ctx, tx, sig); err != nil {
				return err
			}
		}

		for pos, g := range st.Groups {
			if err := insertGroup(ctx, tx, pos, g); err != nil {
				return err
			}
		}

		for _, m := range st.Matches {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO route_matches (activity_id, route_id, match_percentage, direction,
					overlap_start, overlap_end, overlap_distance, confidence)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				m.ActivityID, m.RouteID, m.MatchPercentage, string(m.Direction),
				nullFloat(m.OverlapStart), nullFloat(m.OverlapEnd), nullFloat(m.OverlapDistance), m.Confidence,
			); err != nil {
				return fmt.Errorf("failed to save match for %s: %w", m.ActivityID, err)
			}
		}

		for _, id := range st.ProcessedActivityIDs {
			if _, err := tx.ExecContext(ctx, `INSERT INTO processed_activities (activity_id) VALUES (?)`, id); err != nil {
				return fmt.Errorf("failed to save processed activity %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Info("route cache saved",
		zap.Int("version", st.Version),
		zap.Int("signatures", len(st.Signatures)),
		zap.Int("groups", len(st.Groups)))
	return nil
}

// Load reads the stored cache. When nothing is stored, or the stored version differs
// from version, the stored rows are dropped and an empty cache of version is returned.
func (r *CacheRepository) Load(ctx context.Context, version int) (*grouping.Cache, error) {
	var stored int
	err := r.db.QueryRowContext(ctx, `SELECT version FROM cache_meta WHERE id = 1`).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return grouping.NewCache(version), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache version: %w", err)
	}
	if stored != version {
		r.log.Info("route cache version changed, rebuilding",
			zap.Int("stored_version", stored),
			zap.Int("version", version))
		if err := r.Clear(ctx); err != nil {
			return nil, err
		}
		return grouping.NewCache(version), nil
	}

	st := grouping.CacheState{Version: stored}
	if st.Signatures, err = r.loadSignatures(ctx); err != nil {
		return nil, err
	}
	if st.Groups, err = r.loadGroups(ctx, st.Signatures); err != nil {
		return nil, err
	}
	if st.Matches, err = r.loadMatches(ctx); err != nil {
		return nil, err
	}
	if st.ProcessedActivityIDs, err = r.loadProcessed(ctx); err != nil {
		return nil, err
	}

	c, err := grouping.RestoreCache(st)
	if err != nil {
		return nil, fmt.Errorf("failed to restore route cache: %w", err)
	}
	return c, nil
}

// Clear deletes every stored cache row
func (r *CacheRepository) Clear(ctx context.Context) error {
	return database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		return clearTables(ctx, tx)
	})
}

func clearTables(ctx context.Context, tx *sql.Tx) error {
	// children first for the foreign keys
	for _, table := range []string{"route_matches", "group_members", "route_groups", "signatures", "processed_activities", "cache_meta"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

func insertSignature(ctx context.Context, tx *sql.Tx, sig models.RouteSignature) error {
	points, err := json.Marshal(sig.Points)
	if err != nil {
		return fmt.Errorf("failed to encode points of %s: %w", sig.ActivityID, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO signatures (activity_id, points_json, distance, min_lat, max_lat, min_lng, max_lng,
			center_lat, center_lng, start_region, end_region, is_loop)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.ActivityID, string(points), sig.Distance,
		sig.Bounds.MinLat, sig.Bounds.MaxLat, sig.Bounds.MinLng, sig.Bounds.MaxLng,
		sig.Center.Lat, sig.Center.Lng, sig.StartRegionHash, sig.EndRegionHash, sig.IsLoop,
	)
	if err != nil {
		return fmt.Errorf("failed to save signature %s: %w", sig.ActivityID, err)
	}
	return nil
}

func insertGroup(ctx context.Context, tx *sql.Tx, pos int, g models.RouteGroup) error {
	var consensus sql.NullString
	if g.ConsensusPoints != nil {
		raw, err := json.Marshal(g.ConsensusPoints)
		if err != nil {
			return fmt.Errorf("failed to encode consensus of %s: %w", g.ID, err)
		}
		consensus = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO route_groups (id, position, name, type, representative_id, consensus_json,
			consensus_stale, first_date, last_date, average_match_quality)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, pos, g.Name, g.Type, g.Signature.ActivityID, consensus,
		g.ConsensusStale, formatTime(g.FirstDate), formatTime(g.LastDate), g.AverageMatchQuality,
	)
	if err != nil {
		return fmt.Errorf("failed to save route %s: %w", g.ID, err)
	}

	for i, id := range g.ActivityIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO group_members (route_id, activity_id, position) VALUES (?, ?, ?)`,
			g.ID, id, i); err != nil {
			return fmt.Errorf("failed to save member %s of %s: %w", id, g.ID, err)
		}
	}
	return nil
}

func (r *CacheRepository) loadSignatures(ctx context.Context) (map[string]models.RouteSignature, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT activity_id, points_json, distance, min_lat, max_lat, min_lng, max_lng,
			center_lat, center_lng, start_region, end_region, is_loop
		FROM signatures`)
	if err != nil {
		return nil, fmt.Errorf("failed to query signatures: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.RouteSignature)
	for rows.Next() {
		var sig models.RouteSignature
		var points string
		if err := rows.Scan(&sig.ActivityID, &points, &sig.Distance,
			&sig.Bounds.MinLat, &sig.Bounds.MaxLat, &sig.Bounds.MinLng, &sig.Bounds.MaxLng,
			&sig.Center.Lat, &sig.Center.Lng, &sig.StartRegionHash, &sig.EndRegionHash, &sig.IsLoop,
		); err != nil {
			return nil, fmt.Errorf("failed to scan signature: %w", err)
		}
		if err := json.Unmarshal([]byte(points), &sig.Points); err != nil {
			return nil, fmt.Errorf("failed to decode points of %s: %w", sig.ActivityID, err)
		}
		out[sig.ActivityID] = sig
	}
	return out, rows.Err()
}

func (r *CacheRepository) loadGroups(ctx context.Context, signatures map[string]models.RouteSignature) ([]models.RouteGroup, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, type, representative_id, consensus_json, consensus_stale,
			first_date, last_date, average_match_quality
		FROM route_groups
		ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}
	defer rows.Close()

	var groups []models.RouteGroup
	for rows.Next() {
		var g models.RouteGroup
		var representative, firstDate, lastDate string
		var consensus sql.NullString
		if err := rows.Scan(&g.ID, &g.Name, &g.Type, &representative, &consensus, &g.ConsensusStale,
			&firstDate, &lastDate, &g.AverageMatchQuality); err != nil {
			return nil, fmt.Errorf("failed to scan route: %w", err)
		}

		sig, ok := signatures[representative]
		if !ok {
			return nil, fmt.Errorf("route %s references missing signature %s", g.ID, representative)
		}
		g.Signature = sig
		if consensus.Valid {
			if err := json.Unmarshal([]byte(consensus.String), &g.ConsensusPoints); err != nil {
				return nil, fmt.Errorf("failed to decode consensus of %s: %w", g.ID, err)
			}
		}
		if g.FirstDate, err = parseTime(firstDate); err != nil {
			return nil, err
		}
		if g.LastDate, err = parseTime(lastDate); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	members, err := r.loadMembers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range groups {
		groups[i].ActivityIDs = members[groups[i].ID]
		groups[i].ActivityCount = len(groups[i].ActivityIDs)
	}
	return groups, nil
}

func (r *CacheRepository) loadMembers(ctx context.Context) (map[string][]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT route_id, activity_id FROM group_members ORDER BY route_id, position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query route members: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var routeID, activityID string
		if err := rows.Scan(&routeID, &activityID); err != nil {
			return nil, fmt.Errorf("failed to scan route member: %w", err)
		}
		out[routeID] = append(out[routeID], activityID)
	}
	return out, rows.Err()
}

func (r *CacheRepository) loadMatches(ctx context.Context) (map[string]models.RouteMatch, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT activity_id, route_id, match_percentage, direction,
			overlap_start, overlap_end, overlap_distance, confidence
		FROM route_matches`)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.RouteMatch)
	for rows.Next() {
		var m models.RouteMatch
		var direction string
		var start, end, distance sql.NullFloat64
		if err := rows.Scan(&m.ActivityID, &m.RouteID, &m.MatchPercentage, &direction,
			&start, &end, &distance, &m.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		m.Direction = models.MatchDirection(direction)
		m.OverlapStart = floatPtr(start)
		m.OverlapEnd = floatPtr(end)
		m.OverlapDistance = floatPtr(distance)
		out[m.ActivityID] = m
	}
	return out, rows.Err()
}

func (r *CacheRepository) loadProcessed(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT activity_id FROM processed_activities`)
	if err != nil {
		return nil, fmt.Errorf("failed to query processed activities: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan processed activity: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored time %q: %w", s, err)
	}
	return t, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
