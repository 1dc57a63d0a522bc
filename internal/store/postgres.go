package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dnafasttrack/custody-server/internal/models"
)

// Postgres error codes we translate into store errors.
const (
	pgUniqueViolation  = "23505"
	pgLockNotAvailable = "55P03"
)

// PostgresStore is the production backend, backed by a pgx connection pool.
// Append serialization uses a per-case transaction-scoped advisory lock, so
// concurrent appends for different cases do not contend.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool and ensures the schema exists.
func NewPostgresStore(ctx context.Context, db *pgxpool.Pool) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS cases (
			id BIGSERIAL PRIMARY KEY,
			case_number TEXT NOT NULL UNIQUE,
			offence_type TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			priority_score INT NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'created',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			created_by TEXT NOT NULL DEFAULT '',
			lab_assigned TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS samples (
			id BIGSERIAL PRIMARY KEY,
			case_number TEXT NOT NULL,
			code TEXT NOT NULL UNIQUE,
			qr_path TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'sealed',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS custody_events (
			id BIGSERIAL PRIMARY KEY,
			case_number TEXT NOT NULL,
			sample_code TEXT NOT NULL DEFAULT '',
			seq BIGINT NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			prev_hash TEXT NOT NULL DEFAULT '',
			hash TEXT NOT NULL,
			UNIQUE (case_number, seq)
		);
		CREATE INDEX IF NOT EXISTS custody_events_case_idx ON custody_events (case_number, seq);
		CREATE TABLE IF NOT EXISTS lab_results (
			id BIGSERIAL PRIMARY KEY,
			case_number TEXT NOT NULL,
			sample_code TEXT NOT NULL DEFAULT '',
			lab_user TEXT NOT NULL,
			result_summary TEXT NOT NULL DEFAULT '',
			result_file TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'officer',
			password_hash TEXT NOT NULL DEFAULT '',
			api_token TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS labs (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			contact_email TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// translate maps pgx errors onto the store's error vocabulary.
func translate(err error) error {
	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return ErrLockTimeout
	case errors.As(err, &pgErr):
		switch pgErr.Code {
		case pgUniqueViolation:
			return ErrDuplicate
		case pgLockNotAvailable:
			return ErrLockTimeout
		}
	}
	return err
}

func (s *PostgresStore) CreateCase(ctx context.Context, c *models.Case) error {
	c.CreatedAt = time.Now().UTC()
	err := s.db.QueryRow(ctx, `
		INSERT INTO cases (case_number, offence_type, description, priority_score, status, created_at, created_by, lab_assigned)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, c.CaseNumber, c.OffenceType, c.Description, c.PriorityScore, c.Status, c.CreatedAt, c.CreatedBy, c.LabAssigned).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("insert case: %w", translate(err))
	}
	return nil
}

func (s *PostgresStore) FindCase(ctx context.Context, caseNumber string) (*models.Case, error) {
	var c models.Case
	err := s.db.QueryRow(ctx, `
		SELECT id, case_number, offence_type, description, priority_score, status, created_at, created_by, lab_assigned
		FROM cases WHERE case_number = $1
	`, caseNumber).Scan(&c.ID, &c.CaseNumber, &c.OffenceType, &c.Description,
		&c.PriorityScore, &c.Status, &c.CreatedAt, &c.CreatedBy, &c.LabAssigned)
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *PostgresStore) ListCases(ctx context.Context) ([]models.Case, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, case_number, offence_type, description, priority_score, status, created_at, created_by, lab_assigned
		FROM cases
		ORDER BY priority_score DESC, created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []models.Case
	for rows.Next() {
		var c models.Case
		if err := rows.Scan(&c.ID, &c.CaseNumber, &c.OffenceType, &c.Description,
			&c.PriorityScore, &c.Status, &c.CreatedAt, &c.CreatedBy, &c.LabAssigned); err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

func (s *PostgresStore) UpdateCaseStatus(ctx context.Context, caseNumber, status string, labAssigned *string) error {
	var tag pgconn.CommandTag
	var err error
	if labAssigned != nil {
		tag, err = s.db.Exec(ctx,
			`UPDATE cases SET status = $2, lab_assigned = $3 WHERE case_number = $1`,
			caseNumber, status, *labAssigned)
	} else {
		tag, err = s.db.Exec(ctx,
			`UPDATE cases SET status = $2 WHERE case_number = $1`,
			caseNumber, status)
	}
	if err != nil {
		return fmt.Errorf("update case status: %w", translate(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateSample(ctx context.Context, sm *models.Sample) error {
	sm.CreatedAt = time.Now().UTC()
	err := s.db.QueryRow(ctx, `
		INSERT INTO samples (case_number, code, qr_path, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, sm.CaseNumber, sm.Code, sm.QRPath, sm.Status, sm.CreatedAt).Scan(&sm.ID)
	if err != nil {
		return fmt.Errorf("insert sample: %w", translate(err))
	}
	return nil
}

func (s *PostgresStore) SamplesByCase(ctx context.Context, caseNumber string) ([]models.Sample, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, case_number, code, qr_path, status, created_at
		FROM samples WHERE case_number = $1 ORDER BY id
	`, caseNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []models.Sample
	for rows.Next() {
		var sm models.Sample
		if err := rows.Scan(&sm.ID, &sm.CaseNumber, &sm.Code, &sm.QRPath, &sm.Status, &sm.CreatedAt); err != nil {
			return nil, err
		}
		samples = append(samples, sm)
	}
	return samples, rows.Err()
}

// AppendEvent runs the ledger's critical section: a transaction-scoped
// advisory lock keyed on the case number serializes read-tip, build and
// insert per case. The lock wait is bounded by lock_timeout so a blocked
// append fails with ErrLockTimeout instead of hanging.
func (s *PostgresStore) AppendEvent(ctx context.Context, caseNumber string, build AppendBuilder) (*models.CustodyEvent, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin append tx: %w", translate(err))
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SET LOCAL lock_timeout = '5s'`); err != nil {
		return nil, fmt.Errorf("set lock timeout: %w", translate(err))
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, caseNumber); err != nil {
		return nil, fmt.Errorf("acquire case lock: %w", translate(err))
	}

	var prevHash string
	var lastSeq int64
	err = tx.QueryRow(ctx, `
		SELECT hash, seq FROM custody_events
		WHERE case_number = $1 ORDER BY seq DESC LIMIT 1
	`, caseNumber).Scan(&prevHash, &lastSeq)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("read chain tip: %w", translate(err))
	}

	ev, err := build(prevHash, lastSeq+1)
	if err != nil {
		return nil, err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO custody_events (case_number, sample_code, seq, actor, action, recorded_at, note, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, ev.CaseNumber, ev.SampleCode, ev.Seq, ev.Actor, ev.Action, ev.RecordedAt, ev.Note, ev.PrevHash, ev.Hash).Scan(&ev.ID)
	if err != nil {
		return nil, fmt.Errorf("insert custody event: %w", translate(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit append: %w", translate(err))
	}
	return &ev, nil
}

func (s *PostgresStore) EventsByCase(ctx context.Context, caseNumber string) ([]models.CustodyEvent, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, case_number, sample_code, seq, actor, action, recorded_at, note, prev_hash, hash
		FROM custody_events WHERE case_number = $1 ORDER BY seq
	`, caseNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.CustodyEvent
	for rows.Next() {
		var e models.CustodyEvent
		if err := rows.Scan(&e.ID, &e.CaseNumber, &e.SampleCode, &e.Seq, &e.Actor,
			&e.Action, &e.RecordedAt, &e.Note, &e.PrevHash, &e.Hash); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *PostgresStore) CreateLabResult(ctx context.Context, r *models.LabResult) error {
	r.CreatedAt = time.Now().UTC()
	err := s.db.QueryRow(ctx, `
		INSERT INTO lab_results (case_number, sample_code, lab_user, result_summary, result_file, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, r.CaseNumber, r.SampleCode, r.LabUser, r.ResultSummary, r.ResultFile, r.CreatedAt).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("insert lab result: %w", translate(err))
	}
	return nil
}

func (s *PostgresStore) LabResultsByCase(ctx context.Context, caseNumber string) ([]models.LabResult, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, case_number, sample_code, lab_user, result_summary, result_file, created_at
		FROM lab_results WHERE case_number = $1 ORDER BY id
	`, caseNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.LabResult
	for rows.Next() {
		var r models.LabResult
		if err := rows.Scan(&r.ID, &r.CaseNumber, &r.SampleCode, &r.LabUser,
			&r.ResultSummary, &r.ResultFile, &r.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	u.CreatedAt = time.Now().UTC()
	err := s.db.QueryRow(ctx, `
		INSERT INTO users (email, name, role, password_hash, api_token, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, u.Email, u.Name, u.Role, u.PasswordHash, u.APIToken, u.CreatedAt).Scan(&u.ID)
	if err != nil {
		return fmt.Errorf("insert user: %w", translate(err))
	}
	return nil
}

func (s *PostgresStore) scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.PasswordHash, &u.APIToken, &u.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *PostgresStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.scanUser(s.db.QueryRow(ctx, `
		SELECT id, email, name, role, password_hash, api_token, created_at
		FROM users WHERE email = $1
	`, email))
}

func (s *PostgresStore) FindUserByAPIToken(ctx context.Context, token string) (*models.User, error) {
	return s.scanUser(s.db.QueryRow(ctx, `
		SELECT id, email, name, role, password_hash, api_token, created_at
		FROM users WHERE api_token = $1 AND api_token <> ''
	`, token))
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, email, name, role, password_hash, api_token, created_at
		FROM users ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.PasswordHash, &u.APIToken, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PostgresStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

func (s *PostgresStore) CreateLab(ctx context.Context, l *models.Lab) error {
	l.CreatedAt = time.Now().UTC()
	err := s.db.QueryRow(ctx, `
		INSERT INTO labs (name, contact_email, is_active, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, l.Name, l.ContactEmail, l.IsActive, l.CreatedAt).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("insert lab: %w", translate(err))
	}
	return nil
}

func (s *PostgresStore) ListLabs(ctx context.Context) ([]models.Lab, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, contact_email, is_active, created_at
		FROM labs ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var labs []models.Lab
	for rows.Next() {
		var l models.Lab
		if err := rows.Scan(&l.ID, &l.Name, &l.ContactEmail, &l.IsActive, &l.CreatedAt); err != nil {
			return nil, err
		}
		labs = append(labs, l)
	}
	return labs, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.db.Close()
}
