package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dnafasttrack/custody-server/internal/models"
)

// SQLiteStore is the embedded backend for single-host and development
// deployments. The pool is capped at one connection, so transactions are
// naturally single-writer; the append critical section is a plain
// transaction around read-tip and insert.
type SQLiteStore struct {
	db *sql.DB
}

// timeFormat is how timestamps are stored in sqlite TEXT columns.
const timeFormat = time.RFC3339Nano

// OpenSQLite opens (or creates) the database file and ensures the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal_mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS cases (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			case_number TEXT NOT NULL UNIQUE,
			offence_type TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			priority_score INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'created',
			created_at TEXT NOT NULL,
			created_by TEXT NOT NULL DEFAULT '',
			lab_assigned TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			case_number TEXT NOT NULL,
			code TEXT NOT NULL UNIQUE,
			qr_path TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'sealed',
			created_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS custody_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			case_number TEXT NOT NULL,
			sample_code TEXT NOT NULL DEFAULT '',
			seq INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			prev_hash TEXT NOT NULL DEFAULT '',
			hash TEXT NOT NULL,
			UNIQUE (case_number, seq)
		);
		CREATE INDEX IF NOT EXISTS custody_events_case_idx ON custody_events (case_number, seq);
		CREATE TABLE IF NOT EXISTS lab_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			case_number TEXT NOT NULL,
			sample_code TEXT NOT NULL DEFAULT '',
			lab_user TEXT NOT NULL,
			result_summary TEXT NOT NULL DEFAULT '',
			result_file TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'officer',
			password_hash TEXT NOT NULL DEFAULT '',
			api_token TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS labs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			contact_email TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL
		);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func sqliteErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return ErrLockTimeout
	case strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return ErrDuplicate
	case strings.Contains(err.Error(), "database is locked"):
		return ErrLockTimeout
	}
	return err
}

// parseTime rejects unparseable stored timestamps instead of zeroing them:
// a silently zeroed timestamp would surface as a chain break with no hint of
// the underlying storage corruption.
func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(timeFormat, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt stored timestamp %q: %w", raw, err)
	}
	return t, nil
}

func (s *SQLiteStore) CreateCase(ctx context.Context, c *models.Case) error {
	c.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO cases (case_number, offence_type, description, priority_score, status, created_at, created_by, lab_assigned)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.CaseNumber, c.OffenceType, c.Description, c.PriorityScore, c.Status,
		c.CreatedAt.Format(timeFormat), c.CreatedBy, c.LabAssigned)
	if err != nil {
		return fmt.Errorf("insert case: %w", sqliteErr(err))
	}
	c.ID, _ = res.LastInsertId()
	return nil
}

func scanCase(row interface{ Scan(...any) error }) (*models.Case, error) {
	var c models.Case
	var createdAt string
	err := row.Scan(&c.ID, &c.CaseNumber, &c.OffenceType, &c.Description,
		&c.PriorityScore, &c.Status, &createdAt, &c.CreatedBy, &c.LabAssigned)
	if err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) FindCase(ctx context.Context, caseNumber string) (*models.Case, error) {
	c, err := scanCase(s.db.QueryRowContext(ctx, `
		SELECT id, case_number, offence_type, description, priority_score, status, created_at, created_by, lab_assigned
		FROM cases WHERE case_number = ?
	`, caseNumber))
	if err != nil {
		return nil, sqliteErr(err)
	}
	return c, nil
}

func (s *SQLiteStore) ListCases(ctx context.Context) ([]models.Case, error) {
	rows, err := s.db.QueryContext(ctx, `
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
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, *c)
	}
	return cases, rows.Err()
}

func (s *SQLiteStore) UpdateCaseStatus(ctx context.Context, caseNumber, status string, labAssigned *string) error {
	var res sql.Result
	var err error
	if labAssigned != nil {
		res, err = s.db.ExecContext(ctx,
			`UPDATE cases SET status = ?, lab_assigned = ? WHERE case_number = ?`,
			status, *labAssigned, caseNumber)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE cases SET status = ? WHERE case_number = ?`,
			status, caseNumber)
	}
	if err != nil {
		return fmt.Errorf("update case status: %w", sqliteErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) CreateSample(ctx context.Context, sm *models.Sample) error {
	sm.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO samples (case_number, code, qr_path, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, sm.CaseNumber, sm.Code, sm.QRPath, sm.Status, sm.CreatedAt.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("insert sample: %w", sqliteErr(err))
	}
	sm.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) SamplesByCase(ctx context.Context, caseNumber string) ([]models.Sample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, case_number, code, qr_path, status, created_at
		FROM samples WHERE case_number = ? ORDER BY id
	`, caseNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []models.Sample
	for rows.Next() {
		var sm models.Sample
		var createdAt string
		if err := rows.Scan(&sm.ID, &sm.CaseNumber, &sm.Code, &sm.QRPath, &sm.Status, &createdAt); err != nil {
			return nil, err
		}
		if sm.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		samples = append(samples, sm)
	}
	return samples, rows.Err()
}

// AppendEvent serializes the append through a transaction on the single
// write connection: read tip, build, insert, commit.
func (s *SQLiteStore) AppendEvent(ctx context.Context, caseNumber string, build AppendBuilder) (*models.CustodyEvent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append tx: %w", sqliteErr(err))
	}
	defer tx.Rollback()

	var prevHash string
	var lastSeq int64
	err = tx.QueryRowContext(ctx, `
		SELECT hash, seq FROM custody_events
		WHERE case_number = ? ORDER BY seq DESC LIMIT 1
	`, caseNumber).Scan(&prevHash, &lastSeq)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read chain tip: %w", sqliteErr(err))
	}

	ev, err := build(prevHash, lastSeq+1)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO custody_events (case_number, sample_code, seq, actor, action, recorded_at, note, prev_hash, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.CaseNumber, ev.SampleCode, ev.Seq, ev.Actor, ev.Action,
		ev.RecordedAt.Format(timeFormat), ev.Note, ev.PrevHash, ev.Hash)
	if err != nil {
		return nil, fmt.Errorf("insert custody event: %w", sqliteErr(err))
	}
	ev.ID, _ = res.LastInsertId()

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", sqliteErr(err))
	}
	return &ev, nil
}

func (s *SQLiteStore) EventsByCase(ctx context.Context, caseNumber string) ([]models.CustodyEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, case_number, sample_code, seq, actor, action, recorded_at, note, prev_hash, hash
		FROM custody_events WHERE case_number = ? ORDER BY seq
	`, caseNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.CustodyEvent
	for rows.Next() {
		var e models.CustodyEvent
		var recordedAt string
		if err := rows.Scan(&e.ID, &e.CaseNumber, &e.SampleCode, &e.Seq, &e.Actor,
			&e.Action, &recordedAt, &e.Note, &e.PrevHash, &e.Hash); err != nil {
			return nil, err
		}
		if e.RecordedAt, err = parseTime(recordedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) CreateLabResult(ctx context.Context, r *models.LabResult) error {
	r.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO lab_results (case_number, sample_code, lab_user, result_summary, result_file, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.CaseNumber, r.SampleCode, r.LabUser, r.ResultSummary, r.ResultFile, r.CreatedAt.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("insert lab result: %w", sqliteErr(err))
	}
	r.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) LabResultsByCase(ctx context.Context, caseNumber string) ([]models.LabResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, case_number, sample_code, lab_user, result_summary, result_file, created_at
		FROM lab_results WHERE case_number = ? ORDER BY id
	`, caseNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.LabResult
	for rows.Next() {
		var r models.LabResult
		var createdAt string
		if err := rows.Scan(&r.ID, &r.CaseNumber, &r.SampleCode, &r.LabUser,
			&r.ResultSummary, &r.ResultFile, &createdAt); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u *models.User) error {
	u.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, name, role, password_hash, api_token, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.Email, u.Name, u.Role, u.PasswordHash, u.APIToken, u.CreatedAt.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("insert user: %w", sqliteErr(err))
	}
	u.ID, _ = res.LastInsertId()
	return nil
}

func scanUserRow(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	var createdAt string
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.PasswordHash, &u.APIToken, &createdAt)
	if err != nil {
		return nil, err
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLiteStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUserRow(s.db.QueryRowContext(ctx, `
		SELECT id, email, name, role, password_hash, api_token, created_at
		FROM users WHERE email = ?
	`, email))
	if err != nil {
		return nil, sqliteErr(err)
	}
	return u, nil
}

func (s *SQLiteStore) FindUserByAPIToken(ctx context.Context, token string) (*models.User, error) {
	u, err := scanUserRow(s.db.QueryRowContext(ctx, `
		SELECT id, email, name, role, password_hash, api_token, created_at
		FROM users WHERE api_token = ? AND api_token <> ''
	`, token))
	if err != nil {
		return nil, sqliteErr(err)
	}
	return u, nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, name, role, password_hash, api_token, created_at
		FROM users ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *SQLiteStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

func (s *SQLiteStore) CreateLab(ctx context.Context, l *models.Lab) error {
	l.CreatedAt = time.Now().UTC()
	active := 0
	if l.IsActive {
		active = 1
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO labs (name, contact_email, is_active, created_at)
		VALUES (?, ?, ?, ?)
	`, l.Name, l.ContactEmail, active, l.CreatedAt.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("insert lab: %w", sqliteErr(err))
	}
	l.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) ListLabs(ctx context.Context) ([]models.Lab, error) {
	rows, err := s.db.QueryContext(ctx, `
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
		var active int
		var createdAt string
		if err := rows.Scan(&l.ID, &l.Name, &l.ContactEmail, &active, &createdAt); err != nil {
			return nil, err
		}
		l.IsActive = active != 0
		if l.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		labs = append(labs, l)
	}
	return labs, rows.Err()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() {
	s.db.Close()
}
