package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"

	"habitpoints/internal/database"
)

// Document keys
const (
	KeyChildren        = "children"
	KeyRewardItems     = "rewardItems"
	KeyPunishmentItems = "punishmentItems"
	KeyRecords         = "records"
)

// AllKeys lists every document key in a stable order
var AllKeys = []string{KeyChildren, KeyRewardItems, KeyPunishmentItems, KeyRecords}

// DefaultMaxDocumentBytes is used when no ceiling is configured
const DefaultMaxDocumentBytes = 5 * 1024 * 1024

func validKey(key string) bool {
	switch key {
	case KeyChildren, KeyRewardItems, KeyPunishmentItems, KeyRecords:
		return true
	}
	return false
}

// DocumentRepository stores each collection as one JSON document
type DocumentRepository struct {
	db       *database.DB
	maxBytes int
}

// NewDocumentRepository creates a repository. maxBytes <= 0 selects DefaultMaxDocumentBytes.
func NewDocumentRepository(db *database.DB, maxBytes int) *DocumentRepository {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDocumentBytes
	}
	return &DocumentRepository{db: db, maxBytes: maxBytes}
}

// Load decodes the document stored under key into dst. It reports false
// with a nil error when nothing is stored.
func (r *DocumentRepository) Load(ctx context.Context, key string, dst any) (bool, error) {
	if !validKey(key) {
		return false, storageErr(KindUnknownKey, key, nil)
	}

	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM documents WHERE doc_key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storageErr(KindBackend, key, err)
	}

	if err := json.Unmarshal([]byte(payload), dst); err != nil {
		return false, storageErr(KindCorrupt, key, err)
	}
	return true, nil
}

// Save encodes value and stores it under key, replacing any previous document.
func (r *DocumentRepository) Save(ctx context.Context, key string, value any) error {
	payload, err := r.encode(key, value)
	if err != nil {
		return err
	}
	return r.upsert(ctx, r.db, key, payload)
}

// SaveAll writes several documents in one transaction. Either every document
// is written or none is.
func (r *DocumentRepository) SaveAll(ctx context.Context, docs map[string]any) error {
	keys := make([]string, 0, len(docs))
	for key := range docs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	payloads := make(map[string]string, len(docs))
	for _, key := range keys {
		payload, err := r.encode(key, docs[key])
		if err != nil {
			return err
		}
		payloads[key] = payload
	}

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return storageErr(KindBackend, "", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	for _, key := range keys {
		if err := r.upsert(ctx, tx, key, payloads[key]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr(KindBackend, "", fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// Remove deletes the document stored under key. Removing a missing document is not an error.
func (r *DocumentRepository) Remove(ctx context.Context, key string) error {
	if !validKey(key) {
		return storageErr(KindUnknownKey, key, nil)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE doc_key = ?`, key); err != nil {
		return storageErr(KindBackend, key, err)
	}
	return nil
}

// RemoveAll removes every given key, continuing past failures. The returned
// error aggregates each failed key.
func (r *DocumentRepository) RemoveAll(ctx context.Context, keys ...string) error {
	var result *multierror.Error
	for _, key := range keys {
		if err := r.Remove(ctx, key); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Keys lists the keys that currently hold a document, sorted.
func (r *DocumentRepository) Keys(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT doc_key FROM documents ORDER BY doc_key`)
	if err != nil {
		return nil, storageErr(KindBackend, "", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, storageErr(KindBackend, "", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(KindBackend, "", err)
	}
	return keys, nil
}

func (r *DocumentRepository) encode(key string, value any) (string, error) {
	if !validKey(key) {
		return "", storageErr(KindUnknownKey, key, nil)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", storageErr(KindSerialization, key, err)
	}
	if len(data) > r.maxBytes {
		return "", storageErr(KindQuotaExceeded, key, fmt.Errorf("document is %d bytes, limit is %d", len(data), r.maxBytes))
	}
	return string(data), nil
}

func (r *DocumentRepository) upsert(ctx context.Context, q database.DBTX, key, payload string) error {
	if _, err := q.ExecContext(ctx, q.GetDialect().UpsertDocumentQuery(), key, payload); err != nil {
		return storageErr(KindBackend, key, err)
	}
	return nil
}
