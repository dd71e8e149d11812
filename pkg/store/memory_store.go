package store

import (
	"sync"
	"time"

	"edukeeper/internal/util"
	"edukeeper/pkg/domain"
)

// MemoryStore keeps all rows in-process. It backs unit tests and local runs
// without Postgres.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]domain.User
	email       map[string]string // email -> user ID
	categories  map[string]domain.Category
	documents   map[string]domain.Document
	docOrder    []string
	history     []domain.HistoryEntry
	subscribers map[string]domain.Subscriber
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]domain.User),
		email:       make(map[string]string),
		categories:  make(map[string]domain.Category),
		documents:   make(map[string]domain.Document),
		subscribers: make(map[string]domain.Subscriber),
	}
}

func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.users[u.ID]; ok {
		if existing.Email != u.Email {
			delete(m.email, existing.Email)
		}
		// XP moves only through AwardXP; a profile save carrying a stale
		// copy must not roll it back.
		u.XP = existing.XP
	}
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[email]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) ListUsersByRole(role domain.UserRole) ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.User, 0)
	for _, u := range m.users {
		if u.Role == role {
			res = append(res, u)
		}
	}
	return res, nil
}

func (m *MemoryStore) AwardXP(userID string, action domain.ActionType, documentName string) (int, error) {
	points, ok := domain.PointsFor(action)
	if !ok {
		return 0, ErrUnknownAction
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	u.XP += points
	u.UpdatedAt = time.Now().UTC()
	m.users[userID] = u
	m.history = append(m.history, domain.HistoryEntry{
		ID:           util.NewID(),
		UserID:       userID,
		Action:       action,
		DocumentName: documentName,
		XPGained:     points,
		CreatedAt:    time.Now().UTC(),
	})
	return u.XP, nil
}

func (m *MemoryStore) SaveCategory(c domain.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[c.ID] = c
	return nil
}

func (m *MemoryStore) GetCategory(id string) (domain.Category, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.categories[id]
	return c, ok, nil
}

func (m *MemoryStore) ListCategoriesByOwner(ownerID string) ([]domain.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Category, 0)
	for _, c := range m.categories {
		if c.OwnerID == ownerID {
			res = append(res, c)
		}
	}
	return res, nil
}

func (m *MemoryStore) DeleteCategory(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.categories, id)
	// FK semantics: document references are nulled, documents stay.
	for docID, d := range m.documents {
		if d.CategoryID == id {
			d.CategoryID = ""
			m.documents[docID] = d
		}
	}
	return nil
}

func (m *MemoryStore) SaveDocument(d domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.documents[d.ID]; !exists {
		m.docOrder = append(m.docOrder, d.ID)
	}
	m.documents[d.ID] = d
	return nil
}

func (m *MemoryStore) GetDocument(id string) (domain.Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[id]
	return d, ok, nil
}

func (m *MemoryStore) ListDocumentsForUser(userID string) ([]domain.Document, error) {
	return m.listDocuments(func(d domain.Document) bool {
		return d.OwnerID == userID || d.Shared
	}), nil
}

func (m *MemoryStore) ListDocumentsByOwner(ownerID string) ([]domain.Document, error) {
	return m.listDocuments(func(d domain.Document) bool {
		return d.OwnerID == ownerID
	}), nil
}

func (m *MemoryStore) listDocuments(keep func(domain.Document) bool) []domain.Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Document, 0)
	for i := len(m.docOrder) - 1; i >= 0; i-- {
		if d, ok := m.documents[m.docOrder[i]]; ok && keep(d) {
			res = append(res, d)
		}
	}
	return res
}

func (m *MemoryStore) SetDocumentStatus(id string, status domain.DocumentStatus, errMsg string) error {
	return m.updateDocument(id, func(d *domain.Document) {
		d.Status = status
		d.ErrorMessage = errMsg
	})
}

func (m *MemoryStore) SetDocumentContent(id string, content string) error {
	return m.updateDocument(id, func(d *domain.Document) { d.ContentText = content })
}

func (m *MemoryStore) SetDocumentSummary(id string, summary string) error {
	return m.updateDocument(id, func(d *domain.Document) { d.Summary = summary })
}

func (m *MemoryStore) SetDocumentShared(id string, shared bool) error {
	return m.updateDocument(id, func(d *domain.Document) { d.Shared = shared })
}

func (m *MemoryStore) updateDocument(id string, mutate func(*domain.Document)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok {
		return nil
	}
	mutate(&d)
	d.UpdatedAt = time.Now().UTC()
	m.documents[id] = d
	return nil
}

func (m *MemoryStore) DeleteDocument(id string, entry *domain.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.documents, id)
	if entry != nil {
		m.history = append(m.history, *entry)
	}
	return nil
}

func (m *MemoryStore) AppendHistory(entry domain.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, entry)
	return nil
}

func (m *MemoryStore) ListHistoryByUser(userID string, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.HistoryEntry, 0)
	for i := len(m.history) - 1; i >= 0 && len(res) < limit; i-- {
		if m.history[i].UserID == userID {
			res = append(res, m.history[i])
		}
	}
	return res, nil
}

func (m *MemoryStore) UpsertSubscriber(sub domain.Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers[sub.UserID] = sub
	return nil
}

func (m *MemoryStore) GetSubscriber(userID string) (domain.Subscriber, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.subscribers[userID]
	return sub, ok, nil
}
