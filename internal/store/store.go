// Package store persists one document per user holding all of their conversations.
//
// Saves are compare-and-swap on UserDocument.Version: a save succeeds only if the stored
// version still equals the version that was loaded, and bumps it by one. Callers that
// need a read-modify-write cycle hold a UserLocker for the username around it.
package store

import (
	"context"
	"errors"

	"voxareflect/internal/models"
)

var (
	// ErrVersionConflict is returned by Save when the stored document changed since it was loaded.
	ErrVersionConflict = errors.New("store: document version conflict")
	// ErrConversationNotFound is returned when a username has no conversation with the requested id.
	ErrConversationNotFound = errors.New("store: conversation not found")
)

// ConversationStore loads and saves user documents.
type ConversationStore interface {
	// Load returns the document for username. A user with no data yields an empty
	// document at version 0.
	Load(ctx context.Context, username string) (*models.UserDocument, error)
	// Save overwrites the stored document if doc.Version still matches, then
	// increments doc.Version.
	Save(ctx context.Context, doc *models.UserDocument) error
}

// UserLocker serialises work per username.
type UserLocker interface {
	// Lock blocks until the username is held or ctx is done. The returned func releases it.
	Lock(ctx context.Context, username string) (unlock func(), err error)
}

func emptyDocument(username string) *models.UserDocument {
	return &models.UserDocument{
		Username:      username,
		Conversations: []*models.Conversation{},
	}
}
