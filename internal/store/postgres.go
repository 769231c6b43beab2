package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/egosumscientia/mini-pacs-edge/internal/backoff"
)

// Schema is the DDL for the single queue_items table the Postgres
// store depends on. Connect applies it on every successful connection;
// every statement is IF NOT EXISTS, so reapplying it is harmless.
const Schema = `
CREATE TABLE IF NOT EXISTS queue_items (
	id                  BIGSERIAL PRIMARY KEY,
	study_uid           TEXT NOT NULL,
	sop_uid             TEXT NOT NULL,
	file_path           TEXT NOT NULL,
	state               TEXT NOT NULL,
	retries             INTEGER NOT NULL DEFAULT 0,
	last_error          TEXT,
	worker_host         TEXT,
	worker_ae           TEXT,
	worker_sent_at      TIMESTAMPTZ,
	result_received_at TIMESTAMPTZ,
	ai_status           TEXT NOT NULL DEFAULT 'none',
	pacs_sent_at        TIMESTAMPTZ,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS queue_items_state_created_idx ON queue_items (state, created_at);
CREATE INDEX IF NOT EXISTS queue_items_study_idx ON queue_items (study_uid);
`

// ConnParams are the Postgres connection parameters (host, port,
// database, user, password), sourced from env vars by ParamsFromEnv.
type ConnParams struct {
	Host     string
	Port     int
	DBName   string
	User     string
	Password string
}

// ParamsFromEnv reads POSTGRES_HOST/POSTGRES_PORT/POSTGRES_DB/
// POSTGRES_USER/POSTGRES_PASSWORD, falling back to the same defaults
// the original receiver used.
func ParamsFromEnv() ConnParams {
	port, err := strconv.Atoi(envOr("POSTGRES_PORT", "5432"))
	if err != nil {
		port = 5432
	}
	return ConnParams{
		Host:     envOr("POSTGRES_HOST", "postgres"),
		Port:     port,
		DBName:   envOr("POSTGRES_DB", "mini_pacs"),
		User:     envOr("POSTGRES_USER", "mini_pacs"),
		Password: envOr("POSTGRES_PASSWORD", "mini_pacs"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (p ConnParams) dsn() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		p.Host, p.Port, p.DBName, p.User, p.Password)
}

// Postgres is the Store implementation backing production use.
type Postgres struct {
	db *sqlx.DB
}

var _ Store = (*Postgres)(nil)

// Connect dials Postgres with bounded exponential retry (adapted from
// the original _connect_with_retry), returning a fatal error after
// maxAttempts failed connection attempts, or at once if ctx is done or
// applying Schema fails.
func Connect(ctx context.Context, params ConnParams, maxAttempts int) (*Postgres, error) {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	cfg := backoff.Config{BaseSeconds: 2, Factor: 1, MaxSeconds: 2}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		db, err := sqlx.ConnectContext(ctx, "postgres", params.dsn())
		if err == nil {
			if _, err := db.ExecContext(ctx, Schema); err != nil {
				db.Close()
				return nil, fmt.Errorf("store: applying schema: %w", err)
			}
			return &Postgres{db: db}, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff.DelayForAttempt(attempt, cfg, "db-connect")):
		}
	}
	return nil, fmt.Errorf("store: postgres not ready after %d attempts: %w", maxAttempts, lastErr)
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Enqueue(ctx context.Context, studyUID, sopUID, filePath string) (int64, error) {
	var id int64
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO queue_items (study_uid, sop_uid, file_path, state, retries, ai_status)
		 VALUES ($1, $2, $3, $4, 0, $5) RETURNING id`,
		studyUID, sopUID, filePath, StateQueued, AIStatusNone,
	).Scan(&id)
	return id, err
}

// GetNextQueued claims the oldest queued row via SKIP LOCKED, enforcing
// I4 (at most one forwarder holds an id in 'forwarding') at the
// database level rather than with an in-process mutex, so it is safe
// across multiple forwarder processes.
func (p *Postgres) GetNextQueued(ctx context.Context) (*Item, error) {
	var item dbItem
	err := p.db.GetContext(ctx, &item, `
		UPDATE queue_items
		SET state = $1, updated_at = now()
		WHERE id = (
			SELECT id FROM queue_items
			WHERE state = $2
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING *`, StateForwarding, StateQueued)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := item.toItem()
	return &out, nil
}

func (p *Postgres) UpdateState(ctx context.Context, id int64, state State, filePath *string, lastError *string) error {
	current, err := p.Get(ctx, id)
	if err != nil {
		return err
	}
	if !transitionAllowed(current.State, state) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.State, state)
	}
	_, err = p.db.ExecContext(ctx, `
		UPDATE queue_items
		SET state = $1,
		    file_path = COALESCE($2, file_path),
		    last_error = COALESCE($3, last_error),
		    updated_at = now()
		WHERE id = $4`, state, filePath, lastError, id)
	return err
}

func (p *Postgres) IncrementRetry(ctx context.Context, id int64, errMsg string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE queue_items
		SET retries = retries + 1, last_error = $1, updated_at = now()
		WHERE id = $2`, errMsg, id)
	return err
}

func (p *Postgres) MarkWorkerSent(ctx context.Context, id int64, host, ae string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE queue_items
		SET worker_host = $1, worker_ae = $2, worker_sent_at = now(), ai_status = $3, updated_at = now()
		WHERE id = $4`, host, ae, AIStatusPending, id)
	return err
}

func (p *Postgres) MarkPACSSent(ctx context.Context, id int64) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE queue_items SET pacs_sent_at = now(), updated_at = now() WHERE id = $1`, id)
	return err
}

func (p *Postgres) MarkAIStatus(ctx context.Context, id int64, status AIStatus, errMsg *string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE queue_items
		SET ai_status = $1, last_error = COALESCE($2, last_error), updated_at = now()
		WHERE id = $3`, status, errMsg, id)
	return err
}

// MarkResultReceived finds the oldest pending worker-sent record for
// studyUID with no result yet, claims it atomically, and returns the
// correlation. Two concurrent callers for the same study never claim
// the same row because the SELECT...FOR UPDATE SKIP LOCKED + UPDATE
// happens inside one statement.
func (p *Postgres) MarkResultReceived(ctx context.Context, studyUID, resultSOP string) (*Correlation, error) {
	var row struct {
		SOPUID       string    `db:"sop_uid"`
		WorkerHost   *string   `db:"worker_host"`
		WorkerAE     *string   `db:"worker_ae"`
		WorkerSentAt time.Time `db:"worker_sent_at"`
		ReceivedAt   time.Time `db:"result_received_at"`
	}
	err := p.db.GetContext(ctx, &row, `
		UPDATE queue_items
		SET result_received_at = now(), ai_status = $1, updated_at = now()
		WHERE id = (
			SELECT id FROM queue_items
			WHERE study_uid = $2 AND ai_status = $3 AND result_received_at IS NULL
			ORDER BY worker_sent_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING sop_uid, worker_host, worker_ae, worker_sent_at, result_received_at`,
		AIStatusDelivered, studyUID, AIStatusPending)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var host, ae string
	if row.WorkerHost != nil {
		host = *row.WorkerHost
	}
	if row.WorkerAE != nil {
		ae = *row.WorkerAE
	}
	_ = resultSOP // the result object's own SOP UID is informational only; correlation is keyed by study + pending worker send

	return &Correlation{
		OriginalSOP: row.SOPUID,
		Worker:      Worker{Host: host, AE: ae},
		DurationMS:  row.ReceivedAt.Sub(row.WorkerSentAt).Milliseconds(),
	}, nil
}

func (p *Postgres) GetCounts(ctx context.Context) (map[State]int, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT state, count(*) FROM queue_items GROUP BY state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[State]int{StateQueued: 0, StateForwarding: 0, StateSent: 0, StateFailed: 0}
	for rows.Next() {
		var state State
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[state] = n
	}
	return counts, rows.Err()
}

func (p *Postgres) GetStudyRows(ctx context.Context, studyUID string) ([]Item, error) {
	var rows []dbItem
	if err := p.db.SelectContext(ctx, &rows, `
		SELECT * FROM queue_items WHERE study_uid = $1 ORDER BY created_at`, studyUID); err != nil {
		return nil, err
	}
	out := make([]Item, len(rows))
	for i, r := range rows {
		out[i] = r.toItem()
	}
	return out, nil
}

func (p *Postgres) Get(ctx context.Context, id int64) (*Item, error) {
	var row dbItem
	err := p.db.GetContext(ctx, &row, `SELECT * FROM queue_items WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	out := row.toItem()
	return &out, nil
}

// dbItem mirrors queue_items' columns for sqlx scanning; Item itself
// stays free of db tags so it can be shared with memstore.
type dbItem struct {
	ID               int64      `db:"id"`
	StudyUID         string     `db:"study_uid"`
	SOPUID           string     `db:"sop_uid"`
	FilePath         string     `db:"file_path"`
	State            State      `db:"state"`
	Retries          int        `db:"retries"`
	LastError        *string    `db:"last_error"`
	WorkerHost       *string    `db:"worker_host"`
	WorkerAE         *string    `db:"worker_ae"`
	WorkerSentAt     *time.Time `db:"worker_sent_at"`
	ResultReceivedAt *time.Time `db:"result_received_at"`
	AIStatus         AIStatus   `db:"ai_status"`
	PACSSentAt       *time.Time `db:"pacs_sent_at"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

func (r dbItem) toItem() Item {
	return Item{
		ID:               r.ID,
		StudyUID:         r.StudyUID,
		SOPUID:           r.SOPUID,
		FilePath:         r.FilePath,
		State:            r.State,
		Retries:          r.Retries,
		LastError:        r.LastError,
		WorkerHost:       r.WorkerHost,
		WorkerAE:         r.WorkerAE,
		WorkerSentAt:     r.WorkerSentAt,
		ResultReceivedAt: r.ResultReceivedAt,
		AIStatus:         r.AIStatus,
		PACSSentAt:       r.PACSSentAt,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}
