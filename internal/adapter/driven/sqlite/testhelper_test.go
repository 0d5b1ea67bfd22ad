package sqlite

import (
	"bytes"
	"fmt"
	"net/url"
	"testing"

	"github.com/ericfisherdev/credvault/internal/domain/model"
)

// setupTestDB returns a migrated vault backed by a shared in-memory database
// private to the calling test. WAL does not apply in memory, so the DSN
// carries only the busy timeout.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)",
		url.PathEscape(t.Name()))

	writer, err := openPool(t.Context(), dsn, 1)
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	reader, err := openPool(t.Context(), dsn, maxReaders)
	if err != nil {
		_ = writer.Close()
		t.Fatalf("open reader: %v", err)
	}
	db := &DB{Writer: writer, Reader: reader, path: dsn}
	t.Cleanup(func() { _ = db.Close() })

	if err := Migrate(db.Writer); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// sealedFixture returns a syntactically complete sealed value. The store
// never decrypts, so the bytes only need to be distinguishable.
func sealedFixture(fill byte) model.SealedValue {
	return model.SealedValue{
		Ciphertext: bytes.Repeat([]byte{fill}, 24),
		IV:         bytes.Repeat([]byte{fill + 1}, 12),
		AuthTag:    bytes.Repeat([]byte{fill + 2}, 16),
		KeyID:      "k1",
	}
}
