package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/colav/quyca-launcher/internal/core/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := sqlx.Open("sqlite3", dsn+sep+"_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}
	// A single connection serializes writers and keeps ":memory:" databases
	// shared across calls.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return NewStoreError("Ping", "", "", err.Error(), ErrConnectionFailed)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateInstance(ctx context.Context, inst *domain.ContainerInstance) error {
	return createInstance(ctx, s.db, inst)
}

func (s *SQLiteStore) UpdateInstance(ctx context.Context, inst *domain.ContainerInstance) error {
	return updateInstance(ctx, s.db, inst)
}

func (s *SQLiteStore) GetInstance(ctx context.Context, id string) (*domain.ContainerInstance, error) {
	return getInstance(ctx, s.db, id)
}

func (s *SQLiteStore) LatestInstance(ctx context.Context, profile string) (*domain.ContainerInstance, error) {
	return latestInstance(ctx, s.db, profile)
}

func (s *SQLiteStore) ListInstances(ctx context.Context, opts ListOptions) ([]domain.ContainerInstance, error) {
	return listInstances(ctx, s.db, opts)
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, ev *domain.InstanceEvent) error {
	return appendEvent(ctx, s.db, ev)
}

func (s *SQLiteStore) ListEvents(ctx context.Context, instanceID string, opts ListOptions) ([]domain.InstanceEvent, error) {
	return listEvents(ctx, s.db, instanceID, opts)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) CreateInstance(ctx context.Context, inst *domain.ContainerInstance) error {
	return createInstance(ctx, s.tx, inst)
}

func (s *txSQLiteStore) UpdateInstance(ctx context.Context, inst *domain.ContainerInstance) error {
	return updateInstance(ctx, s.tx, inst)
}

func (s *txSQLiteStore) GetInstance(ctx context.Context, id string) (*domain.ContainerInstance, error) {
	return getInstance(ctx, s.tx, id)
}

func (s *txSQLiteStore) LatestInstance(ctx context.Context, profile string) (*domain.ContainerInstance, error) {
	return latestInstance(ctx, s.tx, profile)
}

func (s *txSQLiteStore) ListInstances(ctx context.Context, opts ListOptions) ([]domain.ContainerInstance, error) {
	return listInstances(ctx, s.tx, opts)
}

func (s *txSQLiteStore) AppendEvent(ctx context.Context, ev *domain.InstanceEvent) error {
	return appendEvent(ctx, s.tx, ev)
}

func (s *txSQLiteStore) ListEvents(ctx context.Context, instanceID string, opts ListOptions) ([]domain.InstanceEvent, error) {
	return listEvents(ctx, s.tx, instanceID, opts)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just run the function
	return fn(s)
}

func (s *txSQLiteStore) Ping(ctx context.Context) error {
	return nil
}

func (s *txSQLiteStore) Close() error {
	// No-op for tx store
	return nil
}

// =============================================================================
// Instance Operations
// =============================================================================

// instanceRow represents an instance row in the database.
type instanceRow struct {
	ID            string  `db:"id"`
	Profile       string  `db:"profile"`
	BuildTarget   string  `db:"build_target"`
	Image         string  `db:"image"`
	ContainerID   string  `db:"container_id"`
	RestartPolicy string  `db:"restart_policy"`
	MaxRestarts   int     `db:"max_restarts"`
	State         string  `db:"state"`
	ExitCode      *int    `db:"exit_code"`
	RestartCount  int     `db:"restart_count"`
	ErrorMessage  string  `db:"error_message"`
	CreatedAt     string  `db:"created_at"`
	UpdatedAt     string  `db:"updated_at"`
	StartedAt     *string `db:"started_at"`
	StoppedAt     *string `db:"stopped_at"`
}

func instanceToRow(inst *domain.ContainerInstance) map[string]any {
	return map[string]any{
		"id":             inst.ID,
		"profile":        inst.Profile,
		"build_target":   string(inst.BuildTarget),
		"image":          inst.Image,
		"container_id":   inst.ContainerID,
		"restart_policy": string(inst.RestartPolicy),
		"max_restarts":   inst.MaxRestarts,
		"state":          string(inst.State),
		"exit_code":      inst.ExitCode,
		"restart_count":  inst.RestartCount,
		"error_message":  inst.ErrorMessage,
		"created_at":     formatTime(inst.CreatedAt),
		"updated_at":     formatTime(inst.UpdatedAt),
		"started_at":     formatTimePtr(inst.StartedAt),
		"stopped_at":     formatTimePtr(inst.StoppedAt),
	}
}

func createInstance(ctx context.Context, exec executor, inst *domain.ContainerInstance) error {
	query := `
		INSERT INTO instances (
			id, profile, build_target, image, container_id, restart_policy, max_restarts,
			state, exit_code, restart_count, error_message,
			created_at, updated_at, started_at, stopped_at
		) VALUES (
			:id, :profile, :build_target, :image, :container_id, :restart_policy, :max_restarts,
			:state, :exit_code, :restart_count, :error_message,
			:created_at, :updated_at, :started_at, :stopped_at
		)`

	_, err := exec.NamedExecContext(ctx, query, instanceToRow(inst))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: instances.id") {
			return NewStoreError("CreateInstance", "instance", inst.ID, "instance with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateInstance", "instance", inst.ID, err.Error(), err)
	}
	return nil
}

func updateInstance(ctx context.Context, exec executor, inst *domain.ContainerInstance) error {
	query := `
		UPDATE instances SET
			container_id = :container_id,
			state = :state,
			exit_code = :exit_code,
			restart_count = :restart_count,
			error_message = :error_message,
			updated_at = :updated_at,
			started_at = :started_at,
			stopped_at = :stopped_at
		WHERE id = :id`

	result, err := exec.NamedExecContext(ctx, query, instanceToRow(inst))
	if err != nil {
		return NewStoreError("UpdateInstance", "instance", inst.ID, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("UpdateInstance", "instance", inst.ID, "instance not found", ErrNotFound)
	}
	return nil
}

func getInstance(ctx context.Context, exec executor, id string) (*domain.ContainerInstance, error) {
	var row instanceRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM instances WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetInstance", "instance", id, "instance not found", ErrNotFound)
		}
		return nil, NewStoreError("GetInstance", "instance", id, err.Error(), err)
	}
	return rowToInstance(&row)
}

func latestInstance(ctx context.Context, exec executor, profile string) (*domain.ContainerInstance, error) {
	query := `SELECT * FROM instances WHERE profile = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`

	var row instanceRow
	err := exec.GetContext(ctx, &row, query, profile)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("LatestInstance", "instance", "", fmt.Sprintf("no instance for profile %q", profile), ErrNotFound)
		}
		return nil, NewStoreError("LatestInstance", "instance", "", err.Error(), err)
	}
	return rowToInstance(&row)
}

func listInstances(ctx context.Context, exec executor, opts ListOptions) ([]domain.ContainerInstance, error) {
	opts = opts.Normalize()

	var (
		rows []instanceRow
		err  error
	)
	if opts.Profile != "" {
		query := `SELECT * FROM instances WHERE profile = ? ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
		err = exec.SelectContext(ctx, &rows, query, opts.Profile, opts.Limit, opts.Offset)
	} else {
		query := `SELECT * FROM instances ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
		err = exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset)
	}
	if err != nil {
		return nil, NewStoreError("ListInstances", "instance", "", err.Error(), err)
	}

	instances := make([]domain.ContainerInstance, 0, len(rows))
	for _, row := range rows {
		inst, err := rowToInstance(&row)
		if err != nil {
			return nil, err
		}
		instances = append(instances, *inst)
	}
	return instances, nil
}

// rowToInstance converts a database row to a domain.ContainerInstance.
func rowToInstance(row *instanceRow) (*domain.ContainerInstance, error) {
	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return nil, NewStoreError("rowToInstance", "instance", row.ID, "failed to parse created_at", ErrInvalidData)
	}
	updatedAt, err := parseTime(row.UpdatedAt)
	if err != nil {
		return nil, NewStoreError("rowToInstance", "instance", row.ID, "failed to parse updated_at", ErrInvalidData)
	}
	startedAt, err := parseTimePtr(row.StartedAt)
	if err != nil {
		return nil, NewStoreError("rowToInstance", "instance", row.ID, "failed to parse started_at", ErrInvalidData)
	}
	stoppedAt, err := parseTimePtr(row.StoppedAt)
	if err != nil {
		return nil, NewStoreError("rowToInstance", "instance", row.ID, "failed to parse stopped_at", ErrInvalidData)
	}

	return &domain.ContainerInstance{
		ID:            row.ID,
		Profile:       row.Profile,
		BuildTarget:   domain.BuildTarget(row.BuildTarget),
		Image:         row.Image,
		ContainerID:   row.ContainerID,
		RestartPolicy: domain.RestartPolicy(row.RestartPolicy),
		MaxRestarts:   row.MaxRestarts,
		State:         domain.InstanceState(row.State),
		ExitCode:      row.ExitCode,
		RestartCount:  row.RestartCount,
		ErrorMessage:  row.ErrorMessage,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
		StartedAt:     startedAt,
		StoppedAt:     stoppedAt,
	}, nil
}

// =============================================================================
// Event Operations
// =============================================================================

type eventRow struct {
	ID         int64  `db:"id"`
	InstanceID string `db:"instance_id"`
	FromState  string `db:"from_state"`
	ToState    string `db:"to_state"`
	ExitCode   *int   `db:"exit_code"`
	Message    string `db:"message"`
	Timestamp  string `db:"timestamp"`
}

func appendEvent(ctx context.Context, exec executor, ev *domain.InstanceEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO instance_events (instance_id, from_state, to_state, exit_code, message, timestamp)
		VALUES (:instance_id, :from_state, :to_state, :exit_code, :message, :timestamp)`

	result, err := exec.NamedExecContext(ctx, query, map[string]any{
		"instance_id": ev.InstanceID,
		"from_state":  string(ev.From),
		"to_state":    string(ev.To),
		"exit_code":   ev.ExitCode,
		"message":     ev.Message,
		"timestamp":   formatTime(ev.Timestamp),
	})
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return NewStoreError("AppendEvent", "event", ev.InstanceID, "instance not found", ErrForeignKey)
		}
		return NewStoreError("AppendEvent", "event", ev.InstanceID, err.Error(), err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return NewStoreError("AppendEvent", "event", ev.InstanceID, err.Error(), err)
	}
	ev.ID = id
	return nil
}

func listEvents(ctx context.Context, exec executor, instanceID string, opts ListOptions) ([]domain.InstanceEvent, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM instance_events WHERE instance_id = ? ORDER BY id ASC LIMIT ? OFFSET ?`

	var rows []eventRow
	if err := exec.SelectContext(ctx, &rows, query, instanceID, opts.Limit, opts.Offset); err != nil {
		return nil, NewStoreError("ListEvents", "event", instanceID, err.Error(), err)
	}

	events := make([]domain.InstanceEvent, 0, len(rows))
	for _, row := range rows {
		ts, err := parseTime(row.Timestamp)
		if err != nil {
			return nil, NewStoreError("ListEvents", "event", instanceID, "failed to parse timestamp", ErrInvalidData)
		}
		events = append(events, domain.InstanceEvent{
			ID:         row.ID,
			InstanceID: row.InstanceID,
			From:       domain.InstanceState(row.FromState),
			To:         domain.InstanceState(row.ToState),
			ExitCode:   row.ExitCode,
			Message:    row.Message,
			Timestamp:  ts,
		})
	}
	return events, nil
}

// =============================================================================
// Time Helpers
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseTimePtr(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
