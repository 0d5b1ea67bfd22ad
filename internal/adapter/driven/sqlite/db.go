package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/ericfisherdev/credvault/internal/domain/model"
)

const (
	// maxReaders caps the read pool; listing and lookups never need more.
	maxReaders = 4

	// The vault file holds ciphertext, key ids and user ids. Nobody but the
	// owner needs to read it.
	dirMode  fs.FileMode = 0o700
	fileMode fs.FileMode = 0o600
)

// DB is a vault database opened as one serialised writer connection plus a
// small reader pool. WAL lets readers proceed while a write is in flight.
type DB struct {
	Writer *sql.DB
	Reader *sql.DB
	path   string
}

// vaultDSN enables WAL, a busy timeout so concurrent writers queue instead of
// failing, and full fsync on commit.
func vaultDSN(path string) string {
	return fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)&_pragma=foreign_keys(ON)",
		path,
	)
}

// Open opens (creating when absent) the vault database at path, restricts its
// file mode to the owner and applies pending migrations. Failures are
// reported as *model.StorageError.
func Open(ctx context.Context, path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, dirMode); err != nil {
			return nil, &model.StorageError{Op: "create vault directory", Err: err}
		}
	}

	dsn := vaultDSN(path)
	writer, err := openPool(ctx, dsn, 1)
	if err != nil {
		return nil, &model.StorageError{Op: "open writer", Timeout: isTimeout(err), Err: err}
	}
	reader, err := openPool(ctx, dsn, maxReaders)
	if err != nil {
		_ = writer.Close()
		return nil, &model.StorageError{Op: "open reader", Timeout: isTimeout(err), Err: err}
	}
	db := &DB{Writer: writer, Reader: reader, path: path}

	if err := Migrate(db.Writer); err != nil {
		_ = db.Close()
		return nil, &model.StorageError{Op: "migrate", Err: err}
	}

	if err := restrictFiles(path); err != nil {
		_ = db.Close()
		return nil, &model.StorageError{Op: "restrict vault file mode", Err: err}
	}
	return db, nil
}

// restrictFiles sets the owner-only mode on the database and its WAL and
// shared-memory companions. The companions exist once the first connection
// has opened the database in WAL mode; a missing one is skipped.
func restrictFiles(path string) error {
	if err := os.Chmod(path, fileMode); err != nil {
		return err
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Chmod(path+suffix, fileMode); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func openPool(ctx context.Context, dsn string, maxConns int) (*sql.DB, error) {
	pool, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	pool.SetMaxOpenConns(maxConns)
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return pool, nil
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// Path returns the file the vault was opened from.
func (db *DB) Path() string { return db.path }

// Close releases both pools and reports every failure.
func (db *DB) Close() error {
	var errs []error
	if err := db.Reader.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close reader: %w", err))
	}
	if err := db.Writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close writer: %w", err))
	}
	return errors.Join(errs...)
}
