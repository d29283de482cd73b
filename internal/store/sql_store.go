package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"voxareflect/internal/database"
	"voxareflect/internal/models"
)

// SQLStore keeps each user document as one row; conversations are a JSON column.
type SQLStore struct {
	db  *database.DB
	now func() time.Time
}

// NewSQLStore wraps an initialised database.
func NewSQLStore(db *database.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

func (s *SQLStore) Load(ctx context.Context, username string) (*models.UserDocument, error) {
	var (
		raw       string
		version   int64
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT conversations, version, updated_at FROM `+database.TableReflectionDocuments+` WHERE username = ?`,
		username,
	).Scan(&raw, &version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return emptyDocument(username), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document for %s: %w", username, err)
	}

	doc := emptyDocument(username)
	if err := json.Unmarshal([]byte(raw), &doc.Conversations); err != nil {
		return nil, fmt.Errorf("failed to decode conversations for %s: %w", username, err)
	}
	doc.Version = version
	doc.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return doc, nil
}

func (s *SQLStore) Save(ctx context.Context, doc *models.UserDocument) error {
	conversations := doc.Conversations
	if conversations == nil {
		conversations = []*models.Conversation{}
	}
	raw, err := json.Marshal(conversations)
	if err != nil {
		return fmt.Errorf("failed to encode conversations for %s: %w", doc.Username, err)
	}
	now := s.now().UTC()

	if doc.Version == 0 {
		err = s.insert(ctx, doc.Username, string(raw), now)
	} else {
		err = s.update(ctx, doc.Username, string(raw), doc.Version, now)
	}
	if err != nil {
		return err
	}

	doc.Version++
	doc.UpdatedAt = now
	return nil
}

func (s *SQLStore) insert(ctx context.Context, username, raw string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+database.TableReflectionDocuments+` (username, conversations, version, updated_at) VALUES (?, ?, 1, ?)`,
		username, raw, now.UnixMilli(),
	)
	if err == nil {
		return nil
	}
	// A concurrent first save won the race if the row exists now.
	var exists int
	if probeErr := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+database.TableReflectionDocuments+` WHERE username = ?`, username,
	).Scan(&exists); probeErr == nil && exists > 0 {
		return ErrVersionConflict
	}
	return fmt.Errorf("failed to insert document for %s: %w", username, err)
}

func (s *SQLStore) update(ctx context.Context, username, raw string, version int64, now time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE `+database.TableReflectionDocuments+` SET conversations = ?, version = version + 1, updated_at = ? WHERE username = ? AND version = ?`,
		raw, now.UnixMilli(), username, version,
	)
	if err != nil {
		return fmt.Errorf("failed to update document for %s: %w", username, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result for %s: %w", username, err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}
