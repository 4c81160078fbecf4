package database

import (
	"context"
	"database/sql"
	"embed"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // The pure Go SQLite driver

	"github.com/intermernet/skating-results/internal/logging"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Service owns the SQLite handle holding the current result snapshot.
// Writes are serialised through a mutex and always run inside a transaction;
// WAL mode lets readers keep seeing the previous snapshot while an import runs.
type Service struct {
	path    string
	db      *sqlx.DB
	writeMu sync.Mutex
	logger  *logging.Logger
}

// NewService opens the database file at dbPath and verifies the connection.
func NewService(dbPath string, logger *logging.Logger) (*Service, error) {
	if logger == nil {
		logger = logging.Default()
	}

	// WAL keeps readers off the writer's lock; busy_timeout covers the short
	// window in which a checkpoint holds the file.
	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", dbPath)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "could not connect to %s", dbPath)
	}

	return &Service{
		path:   dbPath,
		db:     db,
		logger: logger.With("component", "database"),
	}, nil
}

// Migrate applies the embedded schema migrations. It is idempotent and safe
// to run on every application start.
func (s *Service) Migrate() error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return errors.Wrap(err, "open embedded migrations")
	}

	driver, err := migratesqlite.WithInstance(s.db.DB, &migratesqlite.Config{})
	if err != nil {
		return errors.Wrap(err, "create migration driver")
	}

	// The migrator is deliberately not closed: closing it would close s.db.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return errors.Wrap(err, "create migrator")
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "apply migrations")
	}

	version, dirty, err := m.Version()
	if err != nil {
		return errors.Wrap(err, "read migration version")
	}
	s.logger.Info("database schema ready", "path", s.path, "version", version, "dirty", dirty)
	return nil
}

// DB provides the shared handle for reads outside a transaction.
func (s *Service) DB() *sqlx.DB {
	return s.db
}

// Ping checks that the database is still reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WriteTx executes a write operation within a transaction, protected by a
// mutex to ensure serial access. Any error returned by writeFunc rolls the
// transaction back, leaving the previous state untouched.
func (s *Service) WriteTx(ctx context.Context, writeFunc func(tx *sqlx.Tx) error) error {
	// Only one import may write at a time; SQLite would otherwise answer the
	// second writer with SQLITE_BUSY once busy_timeout runs out.
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	// Execute the provided function. If it fails, roll back.
	if err := writeFunc(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.CombineErrors(err, errors.Wrap(rbErr, "rollback"))
		}
		return err
	}

	// Readers switch to the new snapshot only once this commit lands.
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}

// ReadTx runs readFunc against a single snapshot so several queries observe
// the same import. The transaction is always rolled back.
func (s *Service) ReadTx(ctx context.Context, readFunc func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin read transaction")
	}
	// Nothing is written, so rolling back just releases the snapshot.
	defer func() {
		_ = tx.Rollback()
	}()

	return readFunc(tx)
}

// Close closes the database handle when the application shuts down.
func (s *Service) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "close database")
	}
	s.logger.Info("database connection closed", "path", s.path)
	return nil
}
