package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"edukeeper/internal/util"
	"edukeeper/pkg/ai"
	"edukeeper/pkg/domain"
	"edukeeper/pkg/store"
)

// maxPromptChars bounds how much document text goes into one prompt.
const maxPromptChars = 100_000

// Config holds runtime configuration for the assistance application.
type Config struct {
	DatabaseURL string
	Store       store.Store
	Generator   ai.TextGenerator
	Provider    ai.ProviderConfig
}

// App runs AI-backed study aids over extracted document text.
type App struct {
	store     store.Store
	generator ai.TextGenerator
}

// New constructs the application. The generation provider comes from the
// provider config unless a generator is injected directly.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	generator := cfg.Generator
	if generator == nil {
		var err error
		generator, err = ai.NewTextGenerator(cfg.Provider)
		if err != nil {
			return nil, err
		}
	}
	return &App{store: dataStore, generator: generator}, nil
}

// Summary is a generated document summary with progression state.
type Summary struct {
	DocumentID string `json:"documentId"`
	Summary    string `json:"summary"`
	XP         int    `json:"xp"`
	Level      int    `json:"level"`
}

// Summarize generates and persists a summary of the document's text.
func (a *App) Summarize(ctx context.Context, user domain.User, documentID string) (Summary, error) {
	doc, content, err := a.loadReadableText(user, documentID)
	if err != nil {
		return Summary{}, err
	}
	systemPrompt := "Tu es un assistant pédagogique. Tu résumes des documents de cours pour des élèves, en français, de façon claire et structurée."
	userPrompt := fmt.Sprintf("Résume le document suivant en quelques paragraphes. Commence par l'idée principale, puis les points clés.\n\nTitre : %s\n\nContenu :\n%s", doc.Name, content)
	summary, err := a.generator.GenerateText(ctx, systemPrompt, userPrompt)
	if err != nil {
		return Summary{}, fmt.Errorf("generate summary: %w", err)
	}
	summary = strings.TrimSpace(summary)
	// Readers of a shared document get the generated text but must not
	// rewrite the owner's stored summary.
	if doc.OwnerID == user.ID || user.Role == domain.RoleAdmin {
		if err := a.store.SetDocumentSummary(doc.ID, summary); err != nil {
			return Summary{}, fmt.Errorf("save summary: %w", err)
		}
	}
	xp := a.award(user, domain.ActionSummary, doc.Name)
	return Summary{
		DocumentID: doc.ID,
		Summary:    summary,
		XP:         xp,
		Level:      domain.LevelForXP(xp),
	}, nil
}

// Exercises is a generated exercise sheet rendered as HTML.
type Exercises struct {
	DocumentID  string `json:"documentId"`
	GeneratedID string `json:"generatedId,omitempty"`
	HTML        string `json:"html"`
	XP          int    `json:"xp"`
	Level       int    `json:"level"`
}

// ExerciseParams tunes the generated exercise sheet.
type ExerciseParams struct {
	Count      int
	Difficulty string
	Format     string
}

// GenerateExercises produces practice exercises from the document's text.
func (a *App) GenerateExercises(ctx context.Context, user domain.User, documentID string, params ExerciseParams) (Exercises, error) {
	count := params.Count
	if count <= 0 || count > 20 {
		count = 5
	}
	doc, content, err := a.loadReadableText(user, documentID)
	if err != nil {
		return Exercises{}, err
	}
	systemPrompt := "Tu es un assistant pédagogique. Tu crées des exercices d'entraînement à partir de documents de cours, en français. Utilise des titres markdown (##) pour chaque exercice."
	var extra strings.Builder
	if d := strings.TrimSpace(params.Difficulty); d != "" {
		fmt.Fprintf(&extra, "\nNiveau de difficulté : %s.", d)
	}
	if f := strings.TrimSpace(params.Format); f != "" {
		fmt.Fprintf(&extra, "\nFormat demandé : %s.", f)
	}
	userPrompt := fmt.Sprintf("Crée %d exercices d'entraînement variés basés sur ce document, avec leurs corrigés à la fin.%s\n\nTitre : %s\n\nContenu :\n%s", count, extra.String(), doc.Name, content)
	raw, err := a.generator.GenerateText(ctx, systemPrompt, userPrompt)
	if err != nil {
		return Exercises{}, fmt.Errorf("generate exercises: %w", err)
	}
	html := markdownToHTML(raw)
	generated := a.saveGenerated(user, doc, "Exercices - "+doc.Name, html)
	xp := a.award(user, domain.ActionExercises, doc.Name)
	return Exercises{
		DocumentID:  doc.ID,
		GeneratedID: generated,
		HTML:        html,
		XP:          xp,
		Level:       domain.LevelForXP(xp),
	}, nil
}

// Evaluation is a generated mock exam rendered as HTML.
type Evaluation struct {
	DocumentID  string `json:"documentId"`
	GeneratedID string `json:"generatedId,omitempty"`
	HTML        string `json:"html"`
	XP          int    `json:"xp"`
	Level       int    `json:"level"`
}

// EvaluationParams tunes the generated mock exam.
type EvaluationParams struct {
	GradeLevel string
	Specialty  string
	Difficulty string
}

// GenerateEvaluation produces a mock exam covering the document's text.
func (a *App) GenerateEvaluation(ctx context.Context, user domain.User, documentID string, params EvaluationParams) (Evaluation, error) {
	doc, content, err := a.loadReadableText(user, documentID)
	if err != nil {
		return Evaluation{}, err
	}
	systemPrompt := "Tu es un enseignant. Tu rédiges des contrôles d'évaluation à partir de documents de cours, en français. Utilise des titres markdown (##) pour les parties et précise le barème."
	var extra strings.Builder
	if g := strings.TrimSpace(params.GradeLevel); g != "" {
		fmt.Fprintf(&extra, "\nClasse : %s.", g)
	}
	if s := strings.TrimSpace(params.Specialty); s != "" {
		fmt.Fprintf(&extra, "\nSpécialité : %s.", s)
	}
	if d := strings.TrimSpace(params.Difficulty); d != "" {
		fmt.Fprintf(&extra, "\nNiveau de difficulté : %s.", d)
	}
	userPrompt := fmt.Sprintf("Rédige un contrôle d'évaluation complet (questions de cours, exercices d'application, barème sur 20) basé sur ce document. Fournis le corrigé en dernière partie.%s\n\nTitre : %s\n\nContenu :\n%s", extra.String(), doc.Name, content)
	raw, err := a.generator.GenerateText(ctx, systemPrompt, userPrompt)
	if err != nil {
		return Evaluation{}, fmt.Errorf("generate evaluation: %w", err)
	}
	html := markdownToHTML(raw)
	generated := a.saveGenerated(user, doc, "Contrôle - "+doc.Name, html)
	xp := a.award(user, domain.ActionControl, doc.Name)
	return Evaluation{
		DocumentID:  doc.ID,
		GeneratedID: generated,
		HTML:        html,
		XP:          xp,
		Level:       domain.LevelForXP(xp),
	}, nil
}

// saveGenerated stores the produced sheet as a document of its own so it
// shows up in the owner's grid. The generated text already reached the
// caller, so a persistence failure is logged, not surfaced.
func (a *App) saveGenerated(user domain.User, source domain.Document, name, html string) string {
	generated := domain.Document{
		ID:          util.NewID(),
		OwnerID:     user.ID,
		Name:        name,
		ContentText: html,
		CategoryID:  source.CategoryID,
		Status:      domain.StatusReady,
		CreatedAt:   time.Now().UTC(),
	}
	if err := a.store.SaveDocument(generated); err != nil {
		slog.Warn("failed to save generated document", "user_id", user.ID, "source_id", source.ID, "err", err)
		return ""
	}
	return generated.ID
}

// UserByID resolves the authenticated subject to a full user record.
func (a *App) UserByID(id string) (domain.User, bool) {
	user, ok, err := a.store.GetUserByID(id)
	if err != nil || !ok {
		return domain.User{}, false
	}
	return user, true
}

func (a *App) loadReadableText(user domain.User, documentID string) (domain.Document, string, error) {
	doc, ok, err := a.store.GetDocument(strings.TrimSpace(documentID))
	if err != nil {
		return domain.Document{}, "", fmt.Errorf("fetch document: %w", err)
	}
	if !ok {
		return domain.Document{}, "", ErrDocumentNotFound
	}
	if doc.OwnerID != user.ID && !doc.Shared && user.Role != domain.RoleAdmin {
		return domain.Document{}, "", ErrForbidden
	}
	if doc.Status != domain.StatusReady {
		return domain.Document{}, "", ErrNotReady
	}
	content := strings.TrimSpace(doc.ContentText)
	if content == "" {
		return domain.Document{}, "", ErrEmptyDocument
	}
	if len(content) > maxPromptChars {
		content = content[:maxPromptChars]
	}
	return doc, content, nil
}

// award grants XP for a generation. Failures are logged, not surfaced:
// the generated artifact already exists and must reach the user.
func (a *App) award(user domain.User, action domain.ActionType, documentName string) int {
	newXP, err := a.store.AwardXP(user.ID, action, documentName)
	if err != nil {
		slog.Warn("xp award failed", "user_id", user.ID, "action", action, "err", err)
		return user.XP
	}
	return newXP
}
