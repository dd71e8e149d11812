package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"edukeeper/pkg/domain"
	"edukeeper/pkg/store"
)

type fakeGenerator struct {
	response string
	err      error
	calls    int
	lastUser string
}

func (f *fakeGenerator) GenerateText(_ context.Context, _, userPrompt string) (string, error) {
	f.calls++
	f.lastUser = userPrompt
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func newTestApp(t *testing.T, gen *fakeGenerator) (*App, *store.MemoryStore, domain.User) {
	t.Helper()
	memStore := store.NewMemoryStore()
	a, err := New(Config{Store: memStore, Generator: gen})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	user := domain.User{ID: "user-1", Email: "u@example.com", Role: domain.RoleStudent, CreatedAt: time.Now().UTC()}
	if err := memStore.SaveUser(user); err != nil {
		t.Fatalf("save user: %v", err)
	}
	return a, memStore, user
}

func saveReadyDocument(t *testing.T, memStore *store.MemoryStore, ownerID, content string) domain.Document {
	t.Helper()
	doc := domain.Document{
		ID:          "doc-1",
		OwnerID:     ownerID,
		Name:        "Cours de SVT",
		ContentText: content,
		Status:      domain.StatusReady,
		CreatedAt:   time.Now().UTC(),
	}
	if err := memStore.SaveDocument(doc); err != nil {
		t.Fatalf("save document: %v", err)
	}
	return doc
}

func TestSummarizePersistsSummaryAndAwardsXP(t *testing.T) {
	gen := &fakeGenerator{response: "Résumé du cours."}
	a, memStore, user := newTestApp(t, gen)
	doc := saveReadyDocument(t, memStore, user.ID, "La photosynthèse transforme la lumière en énergie.")

	result, err := a.Summarize(context.Background(), user, doc.ID)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if result.Summary != "Résumé du cours." {
		t.Fatalf("unexpected summary %q", result.Summary)
	}
	if result.XP != 15 {
		t.Fatalf("expected 15 xp, got %d", result.XP)
	}
	if !strings.Contains(gen.lastUser, "photosynthèse") {
		t.Fatalf("document content missing from prompt")
	}
	fresh, _, _ := memStore.GetDocument(doc.ID)
	if fresh.Summary != "Résumé du cours." {
		t.Fatalf("summary not persisted, got %q", fresh.Summary)
	}
	history, _ := memStore.ListHistoryByUser(user.ID, 10)
	if len(history) != 1 || history[0].Action != domain.ActionSummary {
		t.Fatalf("expected summarize history entry, got %+v", history)
	}
}

func TestSummarizeRejectsEmptyDocument(t *testing.T) {
	gen := &fakeGenerator{response: "should not be called"}
	a, memStore, user := newTestApp(t, gen)
	doc := saveReadyDocument(t, memStore, user.ID, "   ")

	if _, err := a.Summarize(context.Background(), user, doc.ID); !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("expected ErrEmptyDocument, got %v", err)
	}
	if gen.calls != 0 {
		t.Fatalf("generator must not be called for empty input")
	}
}

func TestSummarizeRejectsUnreadyDocument(t *testing.T) {
	gen := &fakeGenerator{}
	a, memStore, user := newTestApp(t, gen)
	doc := saveReadyDocument(t, memStore, user.ID, "texte")
	if err := memStore.SetDocumentStatus(doc.ID, domain.StatusProcessing, ""); err != nil {
		t.Fatalf("set status: %v", err)
	}

	if _, err := a.Summarize(context.Background(), user, doc.ID); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestGenerateForbiddenOnOthersPrivateDocument(t *testing.T) {
	gen := &fakeGenerator{}
	a, memStore, _ := newTestApp(t, gen)
	saveReadyDocument(t, memStore, "someone-else", "texte")
	other := domain.User{ID: "user-2", Role: domain.RoleStudent}
	if err := memStore.SaveUser(other); err != nil {
		t.Fatalf("save user: %v", err)
	}

	if _, err := a.Summarize(context.Background(), other, "doc-1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestGenerateAllowedOnSharedDocument(t *testing.T) {
	gen := &fakeGenerator{response: "Résumé."}
	a, memStore, _ := newTestApp(t, gen)
	doc := saveReadyDocument(t, memStore, "someone-else", "texte partagé")
	if err := memStore.SetDocumentShared(doc.ID, true); err != nil {
		t.Fatalf("share: %v", err)
	}
	reader := domain.User{ID: "user-2", Role: domain.RoleStudent}
	if err := memStore.SaveUser(reader); err != nil {
		t.Fatalf("save user: %v", err)
	}

	if _, err := a.Summarize(context.Background(), reader, doc.ID); err != nil {
		t.Fatalf("shared document should be summarizable: %v", err)
	}
}

func TestSummarizeOnSharedDocumentDoesNotOverwriteOwnerSummary(t *testing.T) {
	gen := &fakeGenerator{response: "Résumé du lecteur."}
	a, memStore, _ := newTestApp(t, gen)
	doc := saveReadyDocument(t, memStore, "someone-else", "texte partagé")
	if err := memStore.SetDocumentShared(doc.ID, true); err != nil {
		t.Fatalf("share: %v", err)
	}
	if err := memStore.SetDocumentSummary(doc.ID, "Résumé du propriétaire."); err != nil {
		t.Fatalf("seed summary: %v", err)
	}
	reader := domain.User{ID: "user-2", Role: domain.RoleStudent}
	if err := memStore.SaveUser(reader); err != nil {
		t.Fatalf("save user: %v", err)
	}

	result, err := a.Summarize(context.Background(), reader, doc.ID)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if result.Summary != "Résumé du lecteur." {
		t.Fatalf("reader should still get the generated text, got %q", result.Summary)
	}
	fresh, _, _ := memStore.GetDocument(doc.ID)
	if fresh.Summary != "Résumé du propriétaire." {
		t.Fatalf("owner's stored summary was overwritten: %q", fresh.Summary)
	}
}

func TestGenerateExercisesRendersHTMLAndAwardsXP(t *testing.T) {
	gen := &fakeGenerator{response: "## Exercice 1\nCalculer **2+2**.\n\n## Corrigé\n4"}
	a, memStore, user := newTestApp(t, gen)
	doc := saveReadyDocument(t, memStore, user.ID, "L'addition des entiers.")

	result, err := a.GenerateExercises(context.Background(), user, doc.ID, ExerciseParams{Count: 3, Difficulty: "moyen"})
	if err != nil {
		t.Fatalf("generate exercises: %v", err)
	}
	if !strings.Contains(result.HTML, "<h2>Exercice 1</h2>") {
		t.Fatalf("expected h2 header in html, got %q", result.HTML)
	}
	if !strings.Contains(result.HTML, "<strong>2+2</strong>") {
		t.Fatalf("expected bold span in html, got %q", result.HTML)
	}
	if result.XP != 20 {
		t.Fatalf("expected 20 xp, got %d", result.XP)
	}
	if !strings.Contains(gen.lastUser, "3 exercices") {
		t.Fatalf("count missing from prompt: %q", gen.lastUser)
	}
	if !strings.Contains(gen.lastUser, "moyen") {
		t.Fatalf("difficulty missing from prompt: %q", gen.lastUser)
	}
	if result.GeneratedID == "" {
		t.Fatalf("expected generated document id")
	}
	saved, ok, _ := memStore.GetDocument(result.GeneratedID)
	if !ok {
		t.Fatalf("generated document not persisted")
	}
	if saved.Name != "Exercices - "+doc.Name {
		t.Fatalf("unexpected generated name %q", saved.Name)
	}
	if saved.Status != domain.StatusReady || saved.ContentText != result.HTML {
		t.Fatalf("generated document should be ready with the rendered html")
	}
}

func TestGenerateEvaluationAwards40XP(t *testing.T) {
	gen := &fakeGenerator{response: "# Contrôle\nQuestion 1."}
	a, memStore, user := newTestApp(t, gen)
	doc := saveReadyDocument(t, memStore, user.ID, "Les fractions.")

	result, err := a.GenerateEvaluation(context.Background(), user, doc.ID, EvaluationParams{GradeLevel: "4e"})
	if err != nil {
		t.Fatalf("generate evaluation: %v", err)
	}
	if result.XP != 40 {
		t.Fatalf("expected 40 xp, got %d", result.XP)
	}
	if !strings.Contains(result.HTML, "<h1>Contrôle</h1>") {
		t.Fatalf("expected h1 in html, got %q", result.HTML)
	}
}

func TestGenerationErrorDoesNotAwardXP(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model unavailable")}
	a, memStore, user := newTestApp(t, gen)
	doc := saveReadyDocument(t, memStore, user.ID, "texte")

	if _, err := a.Summarize(context.Background(), user, doc.ID); err == nil {
		t.Fatalf("expected generation error")
	}
	fresh, _, _ := memStore.GetUserByID(user.ID)
	if fresh.XP != 0 {
		t.Fatalf("failed generation must not grant xp, got %d", fresh.XP)
	}
}
