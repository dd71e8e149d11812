package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	DisplayName  string
	Role         string `gorm:"not null"`
	XP           int    `gorm:"not null;default:0"`
	Skin         string
	BirthDate    *time.Time
	SchoolGrade  string
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type CategoryModel struct {
	ID        string    `gorm:"primaryKey"`
	OwnerID   string    `gorm:"not null;index"`
	Name      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

type DocumentModel struct {
	ID           string `gorm:"primaryKey"`
	OwnerID      string `gorm:"not null;index"`
	Name         string `gorm:"not null"`
	StorageKey   string
	ContentText  string `gorm:"type:text"`
	Summary      string `gorm:"type:text"`
	CategoryID   *string
	Shared       bool   `gorm:"not null;default:false;index"`
	Status       string `gorm:"not null"`
	ErrorMessage string
	SizeBytes    int64     `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;index"`
	UpdatedAt    time.Time `gorm:"not null"`
}

type HistoryModel struct {
	ID           string `gorm:"primaryKey"`
	UserID       string `gorm:"not null;index"`
	Action       string `gorm:"not null"`
	DocumentName string
	XPGained     int            `gorm:"not null"`
	Metadata     datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time      `gorm:"not null;index"`
}

type SubscriberModel struct {
	UserID     string `gorm:"primaryKey"`
	Email      string `gorm:"not null;index"`
	CustomerID string
	Subscribed bool `gorm:"not null;default:false"`
	Tier       string
	TrialEnd   *time.Time
	PeriodEnd  *time.Time
	UpdatedAt  time.Time `gorm:"not null"`
}
