package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"edukeeper/pkg/domain"
	"edukeeper/pkg/store"
)

const defaultHistoryLimit = 50

// XPResult reports the authoritative progression after an award.
type XPResult struct {
	XP      int `json:"xp"`
	Level   int `json:"level"`
	Gained  int `json:"gained"`
	IntoLvl int `json:"xpIntoLevel"`
}

// AwardAction grants XP for an action from the fixed table. Points and the
// history row are committed together, so the returned XP is authoritative.
func (a *App) AwardAction(user domain.User, action domain.ActionType, documentName string) (XPResult, error) {
	points, ok := domain.PointsFor(action)
	if !ok {
		return XPResult{}, ErrUnknownAction
	}
	newXP, err := a.store.AwardXP(user.ID, action, documentName)
	if err != nil {
		if errors.Is(err, store.ErrUnknownAction) {
			return XPResult{}, ErrUnknownAction
		}
		return XPResult{}, fmt.Errorf("award xp: %w", err)
	}
	return XPResult{
		XP:      newXP,
		Level:   domain.LevelForXP(newXP),
		Gained:  points,
		IntoLvl: domain.XPIntoLevel(newXP),
	}, nil
}

// History returns the user's recent activity, newest first.
func (a *App) History(user domain.User, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultHistoryLimit
	}
	return a.store.ListHistoryByUser(user.ID, limit)
}

// SkinStatus is a catalog entry annotated with the user's unlock state.
type SkinStatus struct {
	domain.Skin
	Unlocked bool `json:"unlocked"`
	Active   bool `json:"active"`
}

// ListSkins returns the catalog with unlock state for the user's level.
func (a *App) ListSkins(user domain.User) []SkinStatus {
	level := user.Level()
	out := make([]SkinStatus, 0, len(domain.Skins()))
	for _, s := range domain.Skins() {
		out = append(out, SkinStatus{
			Skin:     s,
			Unlocked: level >= s.RequiredLevel,
			Active:   user.Skin == s.ID,
		})
	}
	return out
}

// SelectSkin activates a skin the user's level has unlocked.
func (a *App) SelectSkin(user domain.User, skinID string) (domain.User, error) {
	skin, ok := domain.SkinByID(skinID)
	if !ok {
		return domain.User{}, ErrSkinNotFound
	}
	if user.Level() < skin.RequiredLevel {
		return domain.User{}, ErrSkinLocked
	}
	user.Skin = skin.ID
	user.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

// StudentSummary is one row of the teacher dashboard.
type StudentSummary struct {
	UserID        string     `json:"userId"`
	DisplayName   string     `json:"displayName"`
	Email         string     `json:"email"`
	XP            int        `json:"xp"`
	Level         int        `json:"level"`
	DocumentCount int        `json:"documentCount"`
	LastActivity  *time.Time `json:"lastActivity,omitempty"`
}

// TeacherDashboard aggregates per-student progression for teachers and
// admins. Student rows are assembled concurrently.
func (a *App) TeacherDashboard(ctx context.Context, viewer domain.User) ([]StudentSummary, error) {
	if viewer.Role != domain.RoleTeacher && viewer.Role != domain.RoleAdmin {
		return nil, ErrForbidden
	}
	students, err := a.store.ListUsersByRole(domain.RoleStudent)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}

	summaries := make([]StudentSummary, len(students))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, student := range students {
		g.Go(func() error {
			docs, err := a.store.ListDocumentsByOwner(student.ID)
			if err != nil {
				return fmt.Errorf("list documents for %s: %w", student.ID, err)
			}
			history, err := a.store.ListHistoryByUser(student.ID, 1)
			if err != nil {
				return fmt.Errorf("list history for %s: %w", student.ID, err)
			}
			s := StudentSummary{
				UserID:        student.ID,
				DisplayName:   student.DisplayName,
				Email:         student.Email,
				XP:            student.XP,
				Level:         student.Level(),
				DocumentCount: len(docs),
			}
			if len(history) > 0 {
				t := history[0].CreatedAt
				s.LastActivity = &t
			}
			summaries[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.SliceStable(summaries, func(i, j int) bool { return summaries[i].XP > summaries[j].XP })
	return summaries, nil
}
