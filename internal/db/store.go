package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hbarker/grant-radar/internal/ingest"
	"github.com/hbarker/grant-radar/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ListParams filters ListActiveGrants. Zero values mean "no filter".
type ListParams struct {
	Source    string
	Sector    string
	LocalOnly bool
	MinAmount float64
	MaxAmount float64
	Limit     int
	Offset    int
}

const grantCols = `external_id, source, title, funder, funder_type, description,
	amount_min, amount_max, deadline, is_rolling, is_local, sectors, eligibility,
	apply_url, raw_payload, first_seen_at, last_seen_at, is_active`

// upsertGrantSQL refreshes everything the crawl observed. first_seen_at is
// deliberately absent from the update list so it survives re-crawls, and
// is_active flips back on because being crawled again means the listing is
// live.
const upsertGrantSQL = `
	INSERT INTO grants (
		external_id, source, title, funder, funder_type, description,
		amount_min, amount_max, deadline, is_rolling, is_local,
		sectors, eligibility, apply_url, raw_payload
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (external_id) DO UPDATE SET
		title        = EXCLUDED.title,
		funder       = EXCLUDED.funder,
		funder_type  = EXCLUDED.funder_type,
		description  = EXCLUDED.description,
		amount_min   = EXCLUDED.amount_min,
		amount_max   = EXCLUDED.amount_max,
		deadline     = EXCLUDED.deadline,
		is_rolling   = EXCLUDED.is_rolling,
		is_local     = EXCLUDED.is_local,
		sectors      = EXCLUDED.sectors,
		eligibility  = EXCLUDED.eligibility,
		apply_url    = EXCLUDED.apply_url,
		raw_payload  = EXCLUDED.raw_payload,
		last_seen_at = NOW(),
		is_active    = TRUE
`

// UpsertGrant inserts a grant or refreshes the existing row keyed by
// external_id.
func (s *Store) UpsertGrant(ctx context.Context, g models.NormalizedGrant) error {
	var payload []byte
	if g.RawPayload != nil {
		var err error
		payload, err = json.Marshal(g.RawPayload)
		if err != nil {
			return fmt.Errorf("encoding raw payload: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx, upsertGrantSQL,
		g.ExternalID, g.Source, g.Title, g.Funder, string(g.FunderType), g.Description,
		g.AmountMin, g.AmountMax, g.Deadline, g.IsRolling, g.IsLocal,
		g.Sectors, g.EligibilityCriteria, g.ApplyURL, payload,
	)
	if err != nil {
		return fmt.Errorf("upserting grant %s: %w", g.ExternalID, err)
	}
	return nil
}

func scanGrant(row pgx.Row) (models.StoredGrant, error) {
	var g models.StoredGrant
	var funderType string
	var payload []byte

	err := row.Scan(
		&g.ExternalID, &g.Source, &g.Title, &g.Funder, &funderType, &g.Description,
		&g.AmountMin, &g.AmountMax, &g.Deadline, &g.IsRolling, &g.IsLocal,
		&g.Sectors, &g.EligibilityCriteria,
		&g.ApplyURL, &payload, &g.FirstSeenAt, &g.LastSeenAt, &g.IsActive,
	)
	if err != nil {
		return g, err
	}

	g.FunderType = models.FunderType(funderType)
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &g.RawPayload)
	}
	return g, nil
}

// buildListFilter turns ListParams into a WHERE clause and its arguments.
func buildListFilter(params ListParams) (string, []interface{}) {
	where := "WHERE is_active = TRUE"
	var args []interface{}
	argIdx := 1

	if params.Source != "" {
		where += fmt.Sprintf(" AND source = $%d", argIdx)
		args = append(args, params.Source)
		argIdx++
	}
	if params.Sector != "" {
		where += fmt.Sprintf(" AND $%d ILIKE ANY(sectors)", argIdx)
		args = append(args, params.Sector)
		argIdx++
	}
	if params.LocalOnly {
		where += " AND is_local = TRUE"
	}
	if params.MinAmount > 0 {
		where += fmt.Sprintf(" AND (amount_max IS NULL OR amount_max >= $%d)", argIdx)
		args = append(args, params.MinAmount)
		argIdx++
	}
	if params.MaxAmount > 0 {
		where += fmt.Sprintf(" AND (amount_min IS NULL OR amount_min <= $%d)", argIdx)
		args = append(args, params.MaxAmount)
		argIdx++
	}

	return where, args
}

// ListActiveGrants returns active grants matching the filter, soonest
// deadline first with rolling grants last, then by external_id for a stable
// order.
func (s *Store) ListActiveGrants(ctx context.Context, params ListParams) ([]models.StoredGrant, error) {
	where, args := buildListFilter(params)

	limit := params.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT %s FROM grants %s
		ORDER BY deadline ASC NULLS LAST, external_id ASC
		LIMIT %d OFFSET %d
	`, grantCols, where, limit, params.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing grants: %w", err)
	}
	defer rows.Close()

	var grants []models.StoredGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning grant: %w", err)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// GetGrant fetches one grant by external ID, active or not.
func (s *Store) GetGrant(ctx context.Context, externalID string) (*models.StoredGrant, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM grants WHERE external_id = $1", grantCols), externalID)

	g, err := scanGrant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting grant %s: %w", externalID, err)
	}
	return &g, nil
}

// expireGrantsSQL deactivates grants whose deadline has passed. Rolling
// grants are exempt: they only deactivate when a crawl stops seeing them and
// an operator retires them.
const expireGrantsSQL = `
	UPDATE grants
	SET is_active = FALSE
	WHERE is_active = TRUE
	  AND is_rolling = FALSE
	  AND deadline IS NOT NULL
	  AND deadline < $1
	RETURNING external_id
`

func (s *Store) ExpireGrants(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, expireGrantsSQL, now)
	if err != nil {
		return nil, fmt.Errorf("expiring grants: %w", err)
	}
	defer rows.Close()

	var expired []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		expired = append(expired, id)
	}
	return expired, rows.Err()
}

// FlagGrant records a community report against a grant. When distinct
// organisations reach the threshold the grant is deactivated pending review.
// Returns the flag count and whether this call deactivated the grant.
func (s *Store) FlagGrant(ctx context.Context, orgID, externalID, reason string, threshold int) (int, bool, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO grant_flags (org_id, external_id, reason)
		VALUES ($1, $2, $3)
		ON CONFLICT (org_id, external_id) DO NOTHING
	`, orgID, externalID, reason)
	if err != nil {
		return 0, false, fmt.Errorf("flagging grant %s: %w", externalID, err)
	}

	var count int
	err = s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM grant_flags WHERE external_id = $1", externalID,
	).Scan(&count)
	if err != nil {
		return 0, false, fmt.Errorf("counting flags for %s: %w", externalID, err)
	}

	if threshold <= 0 || count < threshold {
		return count, false, nil
	}

	tag, err := s.pool.Exec(ctx,
		"UPDATE grants SET is_active = FALSE WHERE external_id = $1 AND is_active = TRUE", externalID)
	if err != nil {
		return count, false, fmt.Errorf("deactivating flagged grant %s: %w", externalID, err)
	}
	return count, tag.RowsAffected() > 0, nil
}

// RecordFeedback appends one liked/disliked event.
func (s *Store) RecordFeedback(ctx context.Context, ev models.FeedbackEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO feedback_events (id, org_id, external_id, verdict, sectors)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), ev.OrgID, ev.ExternalID, string(ev.Verdict), ev.Sectors)
	if err != nil {
		return fmt.Errorf("recording feedback: %w", err)
	}
	return nil
}

// FeedbackEventsFor returns an organisation's full feedback history, newest
// first.
func (s *Store) FeedbackEventsFor(ctx context.Context, orgID string) ([]models.FeedbackEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT org_id, external_id, verdict, sectors, created_at
		FROM feedback_events
		WHERE org_id = $1
		ORDER BY created_at DESC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("loading feedback for %s: %w", orgID, err)
	}
	defer rows.Close()

	var events []models.FeedbackEvent
	for rows.Next() {
		var ev models.FeedbackEvent
		var verdict string
		if err := rows.Scan(&ev.OrgID, &ev.ExternalID, &verdict, &ev.Sectors, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Verdict = models.FeedbackVerdict(verdict)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// NotifiedGrantIDs returns the set of grants already sent to an organisation.
func (s *Store) NotifiedGrantIDs(ctx context.Context, orgID string) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT external_id FROM notified_grants WHERE org_id = $1", orgID)
	if err != nil {
		return nil, fmt.Errorf("loading notified grants for %s: %w", orgID, err)
	}
	defer rows.Close()

	notified := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		notified[id] = true
	}
	return notified, rows.Err()
}

// MarkNotified records that a digest containing these grants went out.
func (s *Store) MarkNotified(ctx context.Context, orgID string, externalIDs []string) error {
	for _, id := range externalIDs {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO notified_grants (org_id, external_id)
			VALUES ($1, $2)
			ON CONFLICT (org_id, external_id) DO NOTHING
		`, orgID, id)
		if err != nil {
			return fmt.Errorf("marking %s notified: %w", id, err)
		}
	}
	return nil
}

// RecordCrawlRun persists one row per source outcome for the audit trail.
func (s *Store) RecordCrawlRun(ctx context.Context, batch int, startedAt time.Time, outcomes []ingest.CrawlOutcome) error {
	for _, o := range outcomes {
		var errKind, errMsg *string
		if o.Error != nil {
			kind := string(o.Error.Kind)
			msg := o.Error.Message
			errKind, errMsg = &kind, &msg
		}
		_, err := s.pool.Exec(ctx, `
			INSERT INTO crawl_runs (id, batch, source, fetched, upserted, error_kind, error_msg, started_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, uuid.New(), batch, o.Source, o.FetchedCount, o.UpsertedCount, errKind, errMsg, startedAt)
		if err != nil {
			return fmt.Errorf("recording crawl run for %s: %w", o.Source, err)
		}
	}
	return nil
}

// CrawlRun is one persisted source outcome.
type CrawlRun struct {
	Batch      int
	Source     string
	Fetched    int
	Upserted   int
	ErrorKind  string
	ErrorMsg   string
	StartedAt  time.Time
	FinishedAt time.Time
}

// RecentCrawlRuns returns the latest run rows, newest first.
func (s *Store) RecentCrawlRuns(ctx context.Context, limit int) ([]CrawlRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT batch, source, fetched, upserted,
		       COALESCE(error_kind, ''), COALESCE(error_msg, ''),
		       started_at, finished_at
		FROM crawl_runs
		ORDER BY finished_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("loading crawl runs: %w", err)
	}
	defer rows.Close()

	var runs []CrawlRun
	for rows.Next() {
		var r CrawlRun
		if err := rows.Scan(&r.Batch, &r.Source, &r.Fetched, &r.Upserted,
			&r.ErrorKind, &r.ErrorMsg, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
