package domain

import "time"

type DocumentStatus string

const (
	StatusQueued     DocumentStatus = "queued"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

type UserRole string

const (
	RoleUser    UserRole = "user"
	RoleStudent UserRole = "eleve"
	RoleTeacher UserRole = "enseignant"
	RoleAdmin   UserRole = "admin"
)

// ParseRole maps a raw role string onto the closed role set.
// Unknown values fall back to RoleUser.
func ParseRole(raw string) UserRole {
	switch UserRole(raw) {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return UserRole(raw)
	default:
		return RoleUser
	}
}

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	DisplayName  string     `json:"displayName"`
	Role         UserRole   `json:"role"`
	XP           int        `json:"xp"`
	Skin         string     `json:"skin"`
	BirthDate    *time.Time `json:"birthDate,omitempty"`
	SchoolGrade  string     `json:"schoolGrade,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Level is derived from XP, never stored.
func (u User) Level() int { return LevelForXP(u.XP) }

type Category struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type Document struct {
	ID           string         `json:"id"`
	OwnerID      string         `json:"ownerId"`
	Name         string         `json:"name"`
	StorageKey   string         `json:"-"`
	ContentText  string         `json:"contentText,omitempty"`
	Summary      string         `json:"summary,omitempty"`
	CategoryID   string         `json:"categoryId,omitempty"`
	Shared       bool           `json:"shared"`
	Status       DocumentStatus `json:"status"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	SizeBytes    int64          `json:"sizeBytes"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

type HistoryEntry struct {
	ID           string            `json:"id"`
	UserID       string            `json:"userId"`
	Action       ActionType        `json:"action"`
	DocumentName string            `json:"documentName"`
	XPGained     int               `json:"xpGained"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
}

type Subscriber struct {
	UserID     string     `json:"userId"`
	Email      string     `json:"email"`
	CustomerID string     `json:"-"`
	Subscribed bool       `json:"subscribed"`
	Tier       string     `json:"tier,omitempty"`
	TrialEnd   *time.Time `json:"trialEnd,omitempty"`
	PeriodEnd  *time.Time `json:"periodEnd,omitempty"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Trialing reports whether the subscriber is inside an unexpired trial window.
func (s Subscriber) Trialing(now time.Time) bool {
	return !s.Subscribed && s.TrialEnd != nil && now.Before(*s.TrialEnd)
}

// Skin is a cosmetic UI theme unlocked by reaching a level.
type Skin struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	RequiredLevel int    `json:"requiredLevel"`
}

// Skins is the fixed catalog, ordered by unlock level.
func Skins() []Skin {
	return []Skin{
		{ID: "classic", Name: "Classique", RequiredLevel: 1},
		{ID: "ocean", Name: "Océan", RequiredLevel: 3},
		{ID: "forest", Name: "Forêt", RequiredLevel: 5},
		{ID: "sunset", Name: "Crépuscule", RequiredLevel: 8},
		{ID: "galaxy", Name: "Galaxie", RequiredLevel: 12},
	}
}

// SkinByID looks up a skin in the catalog.
func SkinByID(id string) (Skin, bool) {
	for _, s := range Skins() {
		if s.ID == id {
			return s, true
		}
	}
	return Skin{}, false
}
