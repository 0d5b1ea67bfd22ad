package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ericfisherdev/credvault/internal/domain/model"
	"github.com/ericfisherdev/credvault/internal/domain/port/driven"
)

// DefaultRotationBatch is the page size used when Rotate is given none.
const DefaultRotationBatch = 100

// RotationFailure records one record that could not be re-sealed.
type RotationFailure struct {
	UserID     string `json:"user_id"`
	StorageKey string `json:"storage_key"`
	Error      string `json:"error"`
}

// RotationReport summarises one key rotation run.
type RotationReport struct {
	OperationID string            `json:"operation_id"`
	Scanned     int               `json:"scanned"`
	Rotated     int               `json:"rotated"`
	Skipped     int               `json:"skipped"`
	Conflicts   int               `json:"conflicts"`
	Failed      int               `json:"failed"`
	Failures    []RotationFailure `json:"failures,omitempty"`
}

// KeyRotator re-seals every stored credential from one key to another. Each
// record is opened with the previous key and sealed under the current key
// with a fresh nonce; the swap only lands if the record was not rewritten in
// the meantime.
type KeyRotator struct {
	store  driven.CredentialStore
	from   driven.Cipher
	to     driven.Cipher
	logger *slog.Logger
}

// NewKeyRotator creates a rotator from the previous cipher to the current
// one.
func NewKeyRotator(store driven.CredentialStore, from, to driven.Cipher, logger *slog.Logger) *KeyRotator {
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyRotator{store: store, from: from, to: to, logger: logger}
}

// Rotate walks the whole store in pages of batchSize. Records already sealed
// under the current key are skipped, so an interrupted run can be repeated.
// Per-record failures are collected in the report; store failures abort the
// run and are returned alongside the partial report.
func (r *KeyRotator) Rotate(ctx context.Context, batchSize int) (*RotationReport, error) {
	if r.from == nil || r.to == nil {
		return nil, model.ErrEncryptionKeyNotSet
	}
	if batchSize <= 0 {
		batchSize = DefaultRotationBatch
	}

	report := &RotationReport{OperationID: uuid.NewString()}
	logger := r.logger.With("operation_id", report.OperationID,
		"from_key", r.from.KeyID(), "to_key", r.to.KeyID())
	logger.Info("key rotation started")

	var afterID int64
	for {
		page, err := r.store.Scan(ctx, afterID, batchSize)
		if err != nil {
			return report, fmt.Errorf("scan credentials after id %d: %w", afterID, err)
		}

		for _, row := range page {
			afterID = row.ID
			report.Scanned++

			if err := r.rotateOne(ctx, row, report); err != nil {
				return report, err
			}
		}

		if len(page) < batchSize {
			break
		}
	}

	logger.Info("key rotation finished",
		"scanned", report.Scanned,
		"rotated", report.Rotated,
		"skipped", report.Skipped,
		"conflicts", report.Conflicts,
		"failed", report.Failed,
	)
	return report, nil
}

// rotateOne returns an error only for failures that should stop the run.
func (r *KeyRotator) rotateOne(ctx context.Context, row model.Credential, report *RotationReport) error {
	if row.Sealed.KeyID == r.to.KeyID() {
		report.Skipped++
		return nil
	}

	aad := []byte(row.StorageKey)
	plaintext, err := r.from.Open(row.Sealed, aad)
	if err != nil {
		report.Failed++
		report.Failures = append(report.Failures, RotationFailure{
			UserID:     row.UserID,
			StorageKey: row.StorageKey,
			Error:      err.Error(),
		})
		r.logger.Warn("credential could not be opened with previous key",
			"user_id", row.UserID, "storage_key", row.StorageKey, "error", err)
		return nil
	}
	sealed, err := r.to.Seal(plaintext, aad)
	clear(plaintext)
	if err != nil {
		return fmt.Errorf("seal %q: %w", row.StorageKey, err)
	}

	swapped, err := r.store.SwapSealed(ctx, row.UserID, row.StorageKey, row.Sealed, sealed)
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			report.Failed++
			report.Failures = append(report.Failures, RotationFailure{
				UserID:     row.UserID,
				StorageKey: row.StorageKey,
				Error:      err.Error(),
			})
			return nil
		}
		return fmt.Errorf("swap %q: %w", row.StorageKey, err)
	}
	if !swapped {
		// Rewritten or deleted since the scan; the newer write wins.
		report.Conflicts++
		return nil
	}

	report.Rotated++
	return nil
}
