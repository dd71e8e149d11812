package store

import (
	"errors"

	"edukeeper/pkg/domain"
)

var (
	// ErrUserNotFound is returned by XP awards against a missing user.
	ErrUserNotFound = errors.New("user not found")
	// ErrUnknownAction is returned when awarding XP for an action outside
	// the fixed action table.
	ErrUnknownAction = errors.New("unknown action type")
)

// Store defines persistence operations for users, categories, documents,
// history, and subscribers.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	ListUsersByRole(role domain.UserRole) ([]domain.User, error)

	// AwardXP atomically adds the action's fixed points to the user's XP
	// and appends a history row in the same transaction. It returns the
	// authoritative XP after the increment.
	AwardXP(userID string, action domain.ActionType, documentName string) (int, error)

	// categories
	SaveCategory(domain.Category) error
	GetCategory(id string) (domain.Category, bool, error)
	ListCategoriesByOwner(ownerID string) ([]domain.Category, error)
	DeleteCategory(id string) error

	// documents
	SaveDocument(domain.Document) error
	GetDocument(id string) (domain.Document, bool, error)
	ListDocumentsForUser(userID string) ([]domain.Document, error)
	ListDocumentsByOwner(ownerID string) ([]domain.Document, error)
	SetDocumentStatus(id string, status domain.DocumentStatus, errMsg string) error
	SetDocumentContent(id string, content string) error
	SetDocumentSummary(id string, summary string) error
	SetDocumentShared(id string, shared bool) error

	// DeleteDocument removes the row and, when entry is non-nil, appends
	// the history row in the same transaction.
	DeleteDocument(id string, entry *domain.HistoryEntry) error

	// history
	AppendHistory(domain.HistoryEntry) error
	ListHistoryByUser(userID string, limit int) ([]domain.HistoryEntry, error)

	// subscribers
	UpsertSubscriber(domain.Subscriber) error
	GetSubscriber(userID string) (domain.Subscriber, bool, error)
}

// SessionStore persists session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}

// JWK represents a JSON Web Key entry used by JWKS endpoints.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// JWKSProvider is an optional capability exposed by session stores that can
// publish JSON Web Keys.
type JWKSProvider interface {
	JWKS() []JWK
}
