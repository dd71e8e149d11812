package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"edukeeper/internal/util"
	"edukeeper/pkg/domain"
	"edukeeper/pkg/export"
)

// ListOptions narrows and orders a document listing.
type ListOptions struct {
	CategoryID string
	Status     string
	Query      string
	Owner      string // "mine" or "shared", empty for both
	SortBy     string // name, date or size
	Desc       bool
}

// UploadDocument stores the raw file, records the document and queues text
// extraction. The upload XP grant happens in the same store transaction as
// its history row.
func (a *App) UploadDocument(owner domain.User, filename, categoryID string, r io.Reader, size int64) (domain.Document, error) {
	if strings.TrimSpace(filename) == "" {
		return domain.Document{}, errors.New("filename required")
	}
	categoryID = strings.TrimSpace(categoryID)
	if categoryID != "" {
		cat, ok, err := a.store.GetCategory(categoryID)
		if err != nil {
			return domain.Document{}, fmt.Errorf("fetch category: %w", err)
		}
		if !ok || cat.OwnerID != owner.ID {
			return domain.Document{}, ErrCategoryNotFound
		}
	}

	id := util.NewID()
	storageKey := buildStorageKey(id, filename)
	now := time.Now().UTC()
	doc := domain.Document{
		ID:         id,
		OwnerID:    owner.ID,
		Name:       nameFromFilename(filename),
		StorageKey: storageKey,
		CategoryID: categoryID,
		Status:     domain.StatusQueued,
		SizeBytes:  size,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := a.objects.Put(context.Background(), storageKey, r, size, contentType); err != nil {
		return domain.Document{}, fmt.Errorf("save file: %w", err)
	}
	if err := a.store.SaveDocument(doc); err != nil {
		_ = a.objects.Delete(context.Background(), storageKey)
		return domain.Document{}, fmt.Errorf("save document: %w", err)
	}
	if _, err := a.store.AwardXP(owner.ID, domain.ActionUpload, doc.Name); err != nil {
		slog.Warn("upload xp award failed", "user_id", owner.ID, "document_id", id, "err", err)
	}
	if _, err := a.extract.Enqueue(context.Background(), id); err != nil {
		_ = a.store.SetDocumentStatus(id, domain.StatusFailed, err.Error())
		return domain.Document{}, fmt.Errorf("enqueue extraction: %w", err)
	}
	return doc, nil
}

// ListDocuments returns the user's documents plus shared ones, narrowed and
// ordered by opts. Admins see everything they own plus shared documents too.
func (a *App) ListDocuments(user domain.User, opts ListOptions) ([]domain.Document, error) {
	docs, err := a.store.ListDocumentsForUser(user.ID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	docs = filterDocuments(docs, user.ID, opts)
	sortDocuments(docs, opts.SortBy, opts.Desc)
	return docs, nil
}

// GetDocument retrieves a document readable by the user.
func (a *App) GetDocument(user domain.User, id string) (domain.Document, error) {
	doc, ok, err := a.store.GetDocument(id)
	if err != nil {
		return domain.Document{}, fmt.Errorf("fetch document: %w", err)
	}
	if !ok {
		return domain.Document{}, ErrDocumentNotFound
	}
	if !canRead(user, doc) {
		return domain.Document{}, ErrForbidden
	}
	return doc, nil
}

// ShareDocument toggles community visibility. Only the owner or an admin may
// change it, and a share grant awards XP once per transition to shared.
func (a *App) ShareDocument(user domain.User, id string, shared bool) (domain.Document, error) {
	doc, ok, err := a.store.GetDocument(id)
	if err != nil {
		return domain.Document{}, fmt.Errorf("fetch document: %w", err)
	}
	if !ok {
		return domain.Document{}, ErrDocumentNotFound
	}
	if !canWrite(user, doc) {
		return domain.Document{}, ErrForbidden
	}
	if doc.Shared == shared {
		return doc, nil
	}
	if err := a.store.SetDocumentShared(id, shared); err != nil {
		return domain.Document{}, fmt.Errorf("update share flag: %w", err)
	}
	if shared {
		if _, err := a.store.AwardXP(user.ID, domain.ActionShare, doc.Name); err != nil {
			slog.Warn("share xp award failed", "user_id", user.ID, "document_id", id, "err", err)
		}
	}
	doc.Shared = shared
	return doc, nil
}

// DeleteDocument removes the row and its history entry in one transaction,
// then deletes the stored object. Object deletion failures are logged, not
// surfaced: the metadata row is the source of truth.
func (a *App) DeleteDocument(user domain.User, id string) error {
	doc, ok, err := a.store.GetDocument(id)
	if err != nil {
		return fmt.Errorf("fetch document: %w", err)
	}
	if !ok {
		return ErrDocumentNotFound
	}
	if !canWrite(user, doc) {
		return ErrForbidden
	}
	entry := &domain.HistoryEntry{
		ID:           util.NewID(),
		UserID:       user.ID,
		Action:       domain.ActionDelete,
		DocumentName: doc.Name,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.store.DeleteDocument(id, entry); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if doc.StorageKey != "" {
		if err := a.objects.Delete(context.Background(), doc.StorageKey); err != nil {
			slog.Warn("object delete failed after row delete", "document_id", id, "key", doc.StorageKey, "err", err)
		}
	}
	return nil
}

// GetDownloadURL returns a pre-signed URL for the raw stored file.
func (a *App) GetDownloadURL(user domain.User, id string) (string, string, error) {
	doc, err := a.GetDocument(user, id)
	if err != nil {
		return "", "", err
	}
	if strings.TrimSpace(doc.StorageKey) == "" {
		return "", "", fmt.Errorf("storage key missing")
	}
	url, err := a.objects.PresignGet(context.Background(), doc.StorageKey, a.presignExpiry)
	if err != nil {
		return "", "", fmt.Errorf("presign download: %w", err)
	}
	return url, doc.Name, nil
}

// ExportPDF renders the document's extracted text as a PDF.
func (a *App) ExportPDF(user domain.User, id string) ([]byte, string, error) {
	doc, err := a.GetDocument(user, id)
	if err != nil {
		return nil, "", err
	}
	data, err := export.DocumentPDF(doc.Name, doc.ContentText)
	if err != nil {
		return nil, "", err
	}
	return data, exportFilename(doc.Name), nil
}

func canRead(user domain.User, doc domain.Document) bool {
	return doc.OwnerID == user.ID || doc.Shared || user.Role == domain.RoleAdmin
}

func canWrite(user domain.User, doc domain.Document) bool {
	return doc.OwnerID == user.ID || user.Role == domain.RoleAdmin
}

func filterDocuments(docs []domain.Document, viewerID string, opts ListOptions) []domain.Document {
	status := strings.ToLower(strings.TrimSpace(opts.Status))
	query := normalizeForSearch(opts.Query)
	owner := strings.ToLower(strings.TrimSpace(opts.Owner))
	out := docs[:0]
	for _, d := range docs {
		if opts.CategoryID != "" && d.CategoryID != opts.CategoryID {
			continue
		}
		if status != "" && string(d.Status) != status {
			continue
		}
		if owner == "mine" && d.OwnerID != viewerID {
			continue
		}
		if owner == "shared" && !d.Shared {
			continue
		}
		if query != "" && !strings.Contains(normalizeForSearch(d.Name), query) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// sortDocuments orders in place. Name ordering uses French collation so
// accented names sort where a French reader expects them.
func sortDocuments(docs []domain.Document, sortBy string, desc bool) {
	var less func(i, j int) bool
	switch strings.ToLower(strings.TrimSpace(sortBy)) {
	case "name":
		c := collate.New(language.French, collate.IgnoreCase)
		less = func(i, j int) bool { return c.CompareString(docs[i].Name, docs[j].Name) < 0 }
	case "size":
		less = func(i, j int) bool { return docs[i].SizeBytes < docs[j].SizeBytes }
	default:
		less = func(i, j int) bool { return docs[i].CreatedAt.Before(docs[j].CreatedAt) }
	}
	if desc {
		inner := less
		less = func(i, j int) bool { return inner(j, i) }
	}
	sort.SliceStable(docs, less)
}

// normalizeForSearch lowercases and strips diacritics so "résumé" matches
// "resume" in either direction.
func normalizeForSearch(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return folded
}

func nameFromFilename(name string) string {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	title := strings.TrimSpace(strings.TrimSuffix(base, ext))
	if title == "" {
		return "Document sans titre"
	}
	return title
}

func exportFilename(name string) string {
	clean := sanitizeFilename(name)
	if clean == "" {
		clean = "document"
	}
	return clean + ".pdf"
}

func buildStorageKey(docID, filename string) string {
	name := sanitizeFilename(filepath.Base(filename))
	if name == "" {
		name = "document"
	}
	return path.Join("documents", docID, name)
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		if r <= 0x7f {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
				b.WriteRune(r)
				lastUnderscore = false
				continue
			}
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}
