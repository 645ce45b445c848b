/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements engine.TxStore and the notification notice store using SQLite.
  In production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  applications:    One row per aid request; id is AUTOINCREMENT (monotonic)
  monthly_budgets: One row per (month, year), amend-in-place
  audit_log:       Immutable record of every state-changing action
  notices:         Persisted in-app notifications

ADMISSION CONTROL:
  A partial unique index on applications(citizen_id) WHERE status='pending'
  makes the one-pending-application-per-citizen rule a database constraint.
  Two concurrent submissions from the same citizen cannot both commit; the
  loser's constraint violation is mapped to engine.ErrConflict.

DECISION SERIALIZATION:
  WithTx holds a mutex for the duration of the transaction, so the
  committed-amount read and the status write of an approval are serialized
  against concurrent decisions. Status writes are additionally guarded
  (UPDATE ... WHERE status = 'pending'); a guard miss maps to ErrConflict.

DECIMAL EXACTNESS:
  Monetary columns are TEXT holding decimal strings. Committed amounts are
  summed in Go with shopspring/decimal, not with SQL SUM over floats, so
  the remaining-balance math carries no rounding drift.

AUDIT:
  There are no UPDATE or DELETE statements against audit_log. Approved
  applications are never deleted either; the financial record must persist.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency
  and crash recovery.

USAGE:
  store, err := sqlite.New("./data/aid.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  eng := engine.New(store)

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/aid-engine/engine"
	"github.com/warp/aid-engine/notify"
)

// Store implements engine.TxStore and notify.NoticeStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps an in-memory database coherent and makes the
	// mutex in WithTx the only writer serialization needed.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Applications (one per citizen aid request)
	CREATE TABLE IF NOT EXISTS applications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		citizen_id TEXT NOT NULL,
		program TEXT NOT NULL,
		details_json TEXT,
		document_refs_json TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		amount_released TEXT,
		approved_at TEXT,
		remarks TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: one pending application per citizen, enforced at commit time
	CREATE UNIQUE INDEX IF NOT EXISTS idx_applications_one_pending
		ON applications(citizen_id) WHERE status = 'pending';

	CREATE INDEX IF NOT EXISTS idx_applications_citizen
		ON applications(citizen_id);
	CREATE INDEX IF NOT EXISTS idx_applications_status
		ON applications(status);

	-- Committed-amount queries (hot path at decision time)
	CREATE INDEX IF NOT EXISTS idx_applications_approved_at
		ON applications(approved_at) WHERE approved_at IS NOT NULL;

	-- Monthly budgets (one per period, amend-in-place)
	CREATE TABLE IF NOT EXISTS monthly_budgets (
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		allocated TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (year, month)
	);

	-- Audit log (append-only; no UPDATE or DELETE paths exist)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		actor_id TEXT NOT NULL,
		actor_role TEXT NOT NULL,
		action TEXT NOT NULL,
		application_id INTEGER,
		details TEXT,
		origin TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_application
		ON audit_log(application_id);
	CREATE INDEX IF NOT EXISTS idx_audit_actor
		ON audit_log(actor_id);

	-- In-app notices (persisted notification channel)
	CREATE TABLE IF NOT EXISTS notices (
		id TEXT PRIMARY KEY,
		citizen_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		message TEXT NOT NULL,
		read INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notices_citizen
		ON notices(citizen_id, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// timeFormat is fixed-width (no trailing-zero trimming), so stored
// timestamps compare correctly as strings in range queries.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// APPLICATION STORE (engine.ApplicationStore interface)
// =============================================================================

func (s *Store) CreateApplication(ctx context.Context, app *engine.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createApplication(ctx, s.db, app)
}

func createApplication(ctx context.Context, db querier, app *engine.Application) error {
	detailsJSON, _ := json.Marshal(app.Details)
	docsJSON, _ := json.Marshal(app.DocumentRefs)

	res, err := db.ExecContext(ctx, `
		INSERT INTO applications
		(citizen_id, program, details_json, document_refs_json, status,
		 amount_released, approved_at, remarks, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, NULL, NULL, '', ?, ?)`,
		app.CitizenID,
		app.Program,
		string(detailsJSON),
		string(docsJSON),
		engine.StatusPending,
		formatTime(app.CreatedAt),
		formatTime(app.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &engine.ConflictError{
				CitizenID: app.CitizenID,
				Detail:    "citizen already has a pending application",
			}
		}
		return fmt.Errorf("failed to create application: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read application id: %w", err)
	}
	app.ID = engine.ApplicationID(id)
	return nil
}

const applicationColumns = `id, citizen_id, program, details_json, document_refs_json,
	status, amount_released, approved_at, remarks, created_at, updated_at`

func (s *Store) GetApplication(ctx context.Context, id engine.ApplicationID) (*engine.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getApplication(ctx, s.db, id)
}

func getApplication(ctx context.Context, db querier, id engine.ApplicationID) (*engine.Application, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = ?`, id)

	app, err := scanApplication(row)
	if err == sql.ErrNoRows {
		return nil, engine.ErrApplicationNotFound
	}
	if err != nil {
		return nil, err
	}
	return app, nil
}

func (s *Store) ListApplications(ctx context.Context, filter engine.ApplicationFilter) ([]*engine.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return listApplications(ctx, s.db, filter)
}

func listApplications(ctx context.Context, db querier, filter engine.ApplicationFilter) ([]*engine.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications`
	var conds []string
	var args []any
	if filter.CitizenID != nil {
		conds = append(conds, "citizen_id = ?")
		args = append(args, *filter.CitizenID)
	}
	if filter.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, *filter.Status)
	}
	if filter.Program != nil {
		conds = append(conds, "program = ?")
		args = append(args, *filter.Program)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id DESC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	var apps []*engine.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

func (s *Store) UpdateDecision(ctx context.Context, app *engine.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateGuarded(ctx, s.db, app, engine.StatusPending)
}

func (s *Store) UpdateResubmission(ctx context.Context, app *engine.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateGuarded(ctx, s.db, app, engine.StatusRejected)
}

// updateGuarded persists a transition and fails with ErrConflict unless the
// stored row is still in the expected prior state. The rows-affected check
// closes the race between loading an application and committing a decision.
func updateGuarded(ctx context.Context, db querier, app *engine.Application, expect engine.Status) error {
	if !app.CheckInvariant() {
		return &engine.ConflictError{
			ApplicationID: app.ID,
			Detail:        "released amount and approval date out of sync with status",
		}
	}

	detailsJSON, _ := json.Marshal(app.Details)
	docsJSON, _ := json.Marshal(app.DocumentRefs)

	var amount, approvedAt any
	if app.AmountReleased != nil {
		amount = app.AmountReleased.Value.String()
	}
	if app.ApprovedAt != nil {
		approvedAt = formatTime(*app.ApprovedAt)
	}

	res, err := db.ExecContext(ctx, `
		UPDATE applications
		SET status = ?, amount_released = ?, approved_at = ?, remarks = ?,
		    details_json = ?, document_refs_json = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		app.Status,
		amount,
		approvedAt,
		app.Remarks,
		string(detailsJSON),
		string(docsJSON),
		formatTime(app.UpdatedAt),
		app.ID,
		expect,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			// A resubmission racing another pending application from the
			// same citizen trips the partial unique index.
			return &engine.ConflictError{
				CitizenID:     app.CitizenID,
				ApplicationID: app.ID,
				Detail:        "citizen already has a pending application",
			}
		}
		return fmt.Errorf("failed to update application: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return &engine.ConflictError{
			ApplicationID: app.ID,
			Detail:        "application status changed concurrently",
		}
	}
	return nil
}

func (s *Store) CommittedAmount(ctx context.Context, period engine.Period) (engine.Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return committedAmount(ctx, s.db, period)
}

// committedAmount sums released amounts in Go with decimal arithmetic.
// SQL SUM over floats would reintroduce the rounding drift the TEXT
// columns exist to avoid.
func committedAmount(ctx context.Context, db querier, period engine.Period) (engine.Amount, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT amount_released FROM applications
		WHERE status = ? AND approved_at >= ? AND approved_at < ?`,
		engine.StatusApproved,
		formatTime(period.Start()),
		formatTime(period.End()),
	)
	if err != nil {
		return engine.Amount{}, fmt.Errorf("failed to query committed amount: %w", err)
	}
	defer rows.Close()

	total := engine.ZeroAmount()
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return engine.Amount{}, fmt.Errorf("failed to scan released amount: %w", err)
		}
		amount, err := engine.ParseAmount(raw)
		if err != nil {
			return engine.Amount{}, fmt.Errorf("corrupt released amount %q: %w", raw, err)
		}
		total = total.Add(amount)
	}
	return total, rows.Err()
}

// =============================================================================
// BUDGET STORE (engine.BudgetStore interface)
// =============================================================================

func (s *Store) GetBudget(ctx context.Context, period engine.Period) (*engine.MonthlyBudget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getBudget(ctx, s.db, period)
}

func getBudget(ctx context.Context, db querier, period engine.Period) (*engine.MonthlyBudget, error) {
	var (
		allocated string
		updatedAt string
	)
	err := db.QueryRowContext(ctx,
		`SELECT allocated, updated_at FROM monthly_budgets WHERE year = ? AND month = ?`,
		period.Year, int(period.Month),
	).Scan(&allocated, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query budget: %w", err)
	}

	amount, err := engine.ParseAmount(allocated)
	if err != nil {
		return nil, fmt.Errorf("corrupt budget amount %q: %w", allocated, err)
	}
	t, _ := time.Parse(time.RFC3339Nano, updatedAt)
	return &engine.MonthlyBudget{Period: period, Allocated: amount, UpdatedAt: t}, nil
}

func (s *Store) SetBudget(ctx context.Context, budget engine.MonthlyBudget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setBudget(ctx, s.db, budget)
}

func setBudget(ctx context.Context, db querier, budget engine.MonthlyBudget) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO monthly_budgets (year, month, allocated, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(year, month) DO UPDATE SET
			allocated = excluded.allocated,
			updated_at = excluded.updated_at`,
		budget.Period.Year,
		int(budget.Period.Month),
		budget.Allocated.Value.String(),
		formatTime(budget.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to set budget: %w", err)
	}
	return nil
}

func (s *Store) ListBudgets(ctx context.Context) ([]engine.MonthlyBudget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return listBudgets(ctx, s.db)
}

func listBudgets(ctx context.Context, db querier) ([]engine.MonthlyBudget, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT year, month, allocated, updated_at FROM monthly_budgets
		 ORDER BY year DESC, month DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list budgets: %w", err)
	}
	defer rows.Close()

	var budgets []engine.MonthlyBudget
	for rows.Next() {
		var (
			year      int
			month     int
			allocated string
			updatedAt string
		)
		if err := rows.Scan(&year, &month, &allocated, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan budget: %w", err)
		}
		amount, err := engine.ParseAmount(allocated)
		if err != nil {
			return nil, fmt.Errorf("corrupt budget amount %q: %w", allocated, err)
		}
		t, _ := time.Parse(time.RFC3339Nano, updatedAt)
		budgets = append(budgets, engine.MonthlyBudget{
			Period:    engine.Period{Year: year, Month: time.Month(month)},
			Allocated: amount,
			UpdatedAt: t,
		})
	}
	return budgets, rows.Err()
}

// =============================================================================
// AUDIT LOG (engine.AuditLog interface)
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, entry engine.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendAudit(ctx, s.db, entry)
}

func appendAudit(ctx context.Context, db querier, entry engine.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	var appID any
	if entry.ApplicationID != 0 {
		appID = int64(entry.ApplicationID)
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO audit_log
		(id, actor_id, actor_role, action, application_id, details, origin, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.ActorID,
		entry.ActorRole,
		entry.Action,
		appID,
		entry.Details,
		entry.Origin,
		formatTime(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (s *Store) QueryAudit(ctx context.Context, filter engine.AuditFilter) ([]engine.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return queryAudit(ctx, s.db, filter)
}

func queryAudit(ctx context.Context, db querier, filter engine.AuditFilter) ([]engine.AuditEntry, error) {
	query := `SELECT id, actor_id, actor_role, action, application_id, details, origin, created_at
		FROM audit_log`
	var conds []string
	var args []any
	if filter.ApplicationID != nil {
		conds = append(conds, "application_id = ?")
		args = append(args, int64(*filter.ApplicationID))
	}
	if filter.ActorID != nil {
		conds = append(conds, "actor_id = ?")
		args = append(args, *filter.ActorID)
	}
	if len(filter.Actions) > 0 {
		placeholders := strings.TrimRight(strings.Repeat("?,", len(filter.Actions)), ",")
		conds = append(conds, "action IN ("+placeholders+")")
		for _, a := range filter.Actions {
			args = append(args, a)
		}
	}
	if filter.From != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, formatTime(*filter.From))
	}
	if filter.To != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, formatTime(*filter.To))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []engine.AuditEntry
	for rows.Next() {
		var (
			e         engine.AuditEntry
			appID     sql.NullInt64
			details   sql.NullString
			origin    sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &e.ActorRole, &e.Action, &appID, &details, &origin, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.ApplicationID = engine.ApplicationID(appID.Int64)
		e.Details = details.String
		e.Origin = origin.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (engine.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. The mutex is held for
// the whole transaction, so concurrent decisions are fully serialized: a
// committed-amount read inside one approval cannot interleave with another
// approval's commit.
func (s *Store) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore routes store calls through an open transaction.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) CreateApplication(ctx context.Context, app *engine.Application) error {
	return createApplication(ctx, ts.tx, app)
}

func (ts *txStore) GetApplication(ctx context.Context, id engine.ApplicationID) (*engine.Application, error) {
	return getApplication(ctx, ts.tx, id)
}

func (ts *txStore) ListApplications(ctx context.Context, filter engine.ApplicationFilter) ([]*engine.Application, error) {
	return listApplications(ctx, ts.tx, filter)
}

func (ts *txStore) UpdateDecision(ctx context.Context, app *engine.Application) error {
	return updateGuarded(ctx, ts.tx, app, engine.StatusPending)
}

func (ts *txStore) UpdateResubmission(ctx context.Context, app *engine.Application) error {
	return updateGuarded(ctx, ts.tx, app, engine.StatusRejected)
}

func (ts *txStore) CommittedAmount(ctx context.Context, period engine.Period) (engine.Amount, error) {
	return committedAmount(ctx, ts.tx, period)
}

func (ts *txStore) GetBudget(ctx context.Context, period engine.Period) (*engine.MonthlyBudget, error) {
	return getBudget(ctx, ts.tx, period)
}

func (ts *txStore) SetBudget(ctx context.Context, budget engine.MonthlyBudget) error {
	return setBudget(ctx, ts.tx, budget)
}

func (ts *txStore) ListBudgets(ctx context.Context) ([]engine.MonthlyBudget, error) {
	return listBudgets(ctx, ts.tx)
}

func (ts *txStore) AppendAudit(ctx context.Context, entry engine.AuditEntry) error {
	return appendAudit(ctx, ts.tx, entry)
}

func (ts *txStore) QueryAudit(ctx context.Context, filter engine.AuditFilter) ([]engine.AuditEntry, error) {
	return queryAudit(ctx, ts.tx, filter)
}

// =============================================================================
// NOTICE STORE (notify.NoticeStore interface)
// =============================================================================

func (s *Store) SaveNotice(ctx context.Context, notice notify.Notice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notices (id, citizen_id, event_type, message, read, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		notice.ID,
		notice.CitizenID,
		notice.EventType,
		notice.Message,
		formatTime(notice.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save notice: %w", err)
	}
	return nil
}

func (s *Store) ListNotices(ctx context.Context, citizenID engine.CitizenID) ([]notify.Notice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, citizen_id, event_type, message, read, created_at
		FROM notices WHERE citizen_id = ? ORDER BY created_at DESC`,
		citizenID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notices: %w", err)
	}
	defer rows.Close()

	var notices []notify.Notice
	for rows.Next() {
		var (
			n         notify.Notice
			createdAt string
		)
		if err := rows.Scan(&n.ID, &n.CitizenID, &n.EventType, &n.Message, &n.Read, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan notice: %w", err)
		}
		n.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		notices = append(notices, n)
	}
	return notices, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanApplication(row scanner) (*engine.Application, error) {
	var (
		app          engine.Application
		detailsJSON  sql.NullString
		docsJSON     sql.NullString
		amount       sql.NullString
		approvedAt   sql.NullString
		createdAtRaw string
		updatedAtRaw string
	)

	err := row.Scan(
		&app.ID, &app.CitizenID, &app.Program, &detailsJSON, &docsJSON,
		&app.Status, &amount, &approvedAt, &app.Remarks, &createdAtRaw, &updatedAtRaw,
	)
	if err != nil {
		return nil, err
	}

	if detailsJSON.Valid && detailsJSON.String != "" && detailsJSON.String != "null" {
		json.Unmarshal([]byte(detailsJSON.String), &app.Details)
	}
	if docsJSON.Valid && docsJSON.String != "" && docsJSON.String != "null" {
		json.Unmarshal([]byte(docsJSON.String), &app.DocumentRefs)
	}
	if amount.Valid {
		a, err := engine.ParseAmount(amount.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt released amount %q: %w", amount.String, err)
		}
		app.AmountReleased = &a
	}
	if approvedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, approvedAt.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt approval date %q: %w", approvedAt.String, err)
		}
		app.ApprovedAt = &t
	}
	app.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAtRaw)
	app.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAtRaw)

	return &app, nil
}
