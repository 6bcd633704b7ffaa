// Package storage is the SQLite backend of the contact log.
package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/kalambet/advisorhub/internal/contactlog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DBFile is the database file name inside the data directory.
const DBFile = "advisorhub.db"

// Store is a contactlog.Store backed by SQLite. Each append is its own
// transaction; insertion order is the AUTOINCREMENT sequence.
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

var _ contactlog.Store = (*Store)(nil)

// Open opens (or creates) the SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, &contactlog.StoreIOError{Op: "open", Path: dataDir, Err: fmt.Errorf("creating data directory: %w", err)}
		}
		dsn = filepath.Join(dataDir, DBFile)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &contactlog.StoreIOError{Op: "open", Path: dsn, Err: err}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &contactlog.StoreIOError{Op: "open", Path: dsn, Err: fmt.Errorf("pinging database: %w", err)}
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, &contactlog.StoreIOError{Op: "open", Path: dsn, Err: fmt.Errorf("setting busy timeout: %w", err)}
	}

	if dsn != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, &contactlog.StoreIOError{Op: "open", Path: dsn, Err: fmt.Errorf("setting journal mode: %w", err)}
		}
	}

	s := &Store{db: db, path: dsn, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, &contactlog.StoreIOError{Op: "migrate", Path: dsn, Err: err}
	}

	logger.Info("contact log opened", zap.String("backend", "sqlite"), zap.String("path", dsn))
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
		s.logger.Debug("migration applied", zap.Int("version", version))
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Contact log ---

const entryColumns = `id, contact_date, advisor_name, merchant_tax_id, merchant_name, channel, summary, commitment, priority`

func (s *Store) Append(e contactlog.Entry) (contactlog.Entry, error) {
	e, err := contactlog.Prepare(e)
	if err != nil {
		return contactlog.Entry{}, err
	}

	_, err = s.db.Exec(`
		INSERT INTO contact_log (`+entryColumns+`, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.DateString(), e.AdvisorName, e.MerchantTaxID, e.MerchantName,
		string(e.Channel), e.Summary, e.Commitment, string(e.Priority),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return contactlog.Entry{}, &contactlog.StoreIOError{Op: "append", Path: s.path, Err: err}
	}
	s.logger.Debug("contact appended", zap.String("id", e.ID), zap.Int64("merchant_tax_id", e.MerchantTaxID))
	return e, nil
}

func (s *Store) ListByMerchant(taxID int64) ([]contactlog.Entry, error) {
	rows, err := s.db.Query(`SELECT `+entryColumns+` FROM contact_log WHERE merchant_tax_id = ? ORDER BY seq DESC`, taxID)
	if err != nil {
		return nil, &contactlog.StoreIOError{Op: "list", Path: s.path, Err: err}
	}
	return s.scanEntries("list", rows)
}

func (s *Store) ExportAll() ([]contactlog.Entry, error) {
	rows, err := s.db.Query(`SELECT ` + entryColumns + ` FROM contact_log ORDER BY seq ASC`)
	if err != nil {
		return nil, &contactlog.StoreIOError{Op: "export", Path: s.path, Err: err}
	}
	return s.scanEntries("export", rows)
}

func (s *Store) Len() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM contact_log`).Scan(&n); err != nil {
		return 0, &contactlog.StoreIOError{Op: "len", Path: s.path, Err: err}
	}
	return n, nil
}

func (s *Store) scanEntries(op string, rows *sql.Rows) ([]contactlog.Entry, error) {
	defer rows.Close()

	results := []contactlog.Entry{}
	for rows.Next() {
		var e contactlog.Entry
		var date, channel, priority string
		if err := rows.Scan(&e.ID, &date, &e.AdvisorName, &e.MerchantTaxID, &e.MerchantName, &channel, &e.Summary, &e.Commitment, &priority); err != nil {
			return nil, &contactlog.StoreIOError{Op: op, Path: s.path, Err: err}
		}
		t, err := time.Parse(contactlog.DateLayout, date)
		if err != nil {
			return nil, &contactlog.StoreIOError{Op: op, Path: s.path, Err: fmt.Errorf("parsing contact_date of %s: %w", e.ID, err)}
		}
		e.Date = t
		e.Channel = contactlog.Channel(channel)
		e.Priority = contactlog.Priority(priority)
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &contactlog.StoreIOError{Op: op, Path: s.path, Err: err}
	}
	return results, nil
}
