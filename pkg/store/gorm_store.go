package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"edukeeper/internal/util"
	"edukeeper/pkg/domain"
)

const migrateLockID int64 = 61428517

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&UserModel{},
			&CategoryModel{},
			&DocumentModel{},
			&HistoryModel{},
			&SubscriberModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		// Category deletion must never cascade onto documents: the FK
		// nulls the reference instead.
		if err := tx.Exec(`
			DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'document_models'
					AND constraint_name = 'document_models_category_id_fkey'
				) THEN
					ALTER TABLE document_models
					ADD CONSTRAINT document_models_category_id_fkey
					FOREIGN KEY (category_id) REFERENCES category_models(id) ON DELETE SET NULL;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'document_models'
					AND constraint_name = 'document_models_owner_id_fkey'
				) THEN
					ALTER TABLE document_models
					ADD CONSTRAINT document_models_owner_id_fkey
					FOREIGN KEY (owner_id) REFERENCES user_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure document foreign keys: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "password_hash", "display_name", "role", "skin", "birth_date", "school_grade", "updated_at"}),
	}).Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// ListUsersByRole returns users with the given role ordered by created_at.
func (s *GormStore) ListUsersByRole(role domain.UserRole) ([]domain.User, error) {
	var models []UserModel
	if err := s.db.Where("role = ?", string(role)).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// AwardXP adds the action's points to the user's XP and appends the history
// row in one transaction, so the counter and the audit log cannot diverge.
func (s *GormStore) AwardXP(userID string, action domain.ActionType, documentName string) (int, error) {
	points, ok := domain.PointsFor(action)
	if !ok {
		return 0, ErrUnknownAction
	}
	var newXP int
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&UserModel{}).
			Where("id = ?", userID).
			Updates(map[string]any{
				"xp":         gorm.Expr("xp + ?", points),
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrUserNotFound
		}
		entry := HistoryModel{
			ID:           util.NewID(),
			UserID:       userID,
			Action:       string(action),
			DocumentName: documentName,
			XPGained:     points,
			CreatedAt:    time.Now().UTC(),
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		return tx.Model(&UserModel{}).Select("xp").Where("id = ?", userID).Scan(&newXP).Error
	})
	if err != nil {
		return 0, err
	}
	return newXP, nil
}

// SaveCategory stores or updates a category.
func (s *GormStore) SaveCategory(c domain.Category) error {
	model := categoryToModel(c)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name"}),
	}).Create(&model).Error
}

// GetCategory retrieves a category.
func (s *GormStore) GetCategory(id string) (domain.Category, bool, error) {
	var model CategoryModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Category{}, false, nil
		}
		return domain.Category{}, false, err
	}
	return categoryFromModel(model), true, nil
}

// ListCategoriesByOwner returns the owner's categories ordered by created_at.
func (s *GormStore) ListCategoriesByOwner(ownerID string) ([]domain.Category, error) {
	var models []CategoryModel
	if err := s.db.Where("owner_id = ?", ownerID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Category, 0, len(models))
	for _, m := range models {
		res = append(res, categoryFromModel(m))
	}
	return res, nil
}

// DeleteCategory removes a category; the FK nulls document references.
func (s *GormStore) DeleteCategory(id string) error {
	return s.db.Delete(&CategoryModel{}, "id = ?", id).Error
}

// SaveDocument stores or updates a document.
func (s *GormStore) SaveDocument(d domain.Document) error {
	model := documentToModel(d)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "storage_key", "content_text", "summary", "category_id", "shared", "status", "error_message", "size_bytes", "updated_at"}),
	}).Create(&model).Error
}

// GetDocument retrieves a document.
func (s *GormStore) GetDocument(id string) (domain.Document, bool, error) {
	var model DocumentModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Document{}, false, nil
		}
		return domain.Document{}, false, err
	}
	return documentFromModel(model), true, nil
}

// ListDocumentsForUser returns documents the user owns plus shared ones.
func (s *GormStore) ListDocumentsForUser(userID string) ([]domain.Document, error) {
	return s.listDocuments("owner_id = ? OR shared = ?", userID, true)
}

// ListDocumentsByOwner returns documents filtered by owner.
func (s *GormStore) ListDocumentsByOwner(ownerID string) ([]domain.Document, error) {
	return s.listDocuments("owner_id = ?", ownerID)
}

func (s *GormStore) listDocuments(conds ...any) ([]domain.Document, error) {
	var models []DocumentModel
	tx := s.db.Order("created_at DESC")
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Document, 0, len(models))
	for _, m := range models {
		res = append(res, documentFromModel(m))
	}
	return res, nil
}

// SetDocumentStatus updates document status/error.
func (s *GormStore) SetDocumentStatus(id string, status domain.DocumentStatus, errMsg string) error {
	return s.documentUpdates(id, map[string]any{
		"status":        string(status),
		"error_message": errMsg,
	})
}

// SetDocumentContent stores extracted text content.
func (s *GormStore) SetDocumentContent(id string, content string) error {
	return s.documentUpdates(id, map[string]any{"content_text": content})
}

// SetDocumentSummary stores a generated summary.
func (s *GormStore) SetDocumentSummary(id string, summary string) error {
	return s.documentUpdates(id, map[string]any{"summary": summary})
}

// SetDocumentShared flips the shared flag.
func (s *GormStore) SetDocumentShared(id string, shared bool) error {
	return s.documentUpdates(id, map[string]any{"shared": shared})
}

func (s *GormStore) documentUpdates(id string, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	return s.db.Model(&DocumentModel{}).Where("id = ?", id).Updates(updates).Error
}

// DeleteDocument removes the row and appends the audit entry atomically.
func (s *GormStore) DeleteDocument(id string, entry *domain.HistoryEntry) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&DocumentModel{}, "id = ?", id).Error; err != nil {
			return err
		}
		if entry == nil {
			return nil
		}
		model := historyToModel(*entry)
		return tx.Create(&model).Error
	})
}

// AppendHistory records an audit entry.
func (s *GormStore) AppendHistory(entry domain.HistoryEntry) error {
	model := historyToModel(entry)
	return s.db.Create(&model).Error
}

// ListHistoryByUser returns the latest entries, newest first.
func (s *GormStore) ListHistoryByUser(userID string, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []HistoryModel
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.HistoryEntry, 0, len(models))
	for _, m := range models {
		res = append(res, historyFromModel(m))
	}
	return res, nil
}

// UpsertSubscriber stores the billing status row.
func (s *GormStore) UpsertSubscriber(sub domain.Subscriber) error {
	model := subscriberToModel(sub)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "customer_id", "subscribed", "tier", "trial_end", "period_end", "updated_at"}),
	}).Create(&model).Error
}

// GetSubscriber retrieves a subscriber row.
func (s *GormStore) GetSubscriber(userID string) (domain.Subscriber, bool, error) {
	var model SubscriberModel
	if err := s.db.First(&model, "user_id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Subscriber{}, false, nil
		}
		return domain.Subscriber{}, false, err
	}
	return subscriberFromModel(model), true, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		DisplayName:  u.DisplayName,
		Role:         string(u.Role),
		XP:           u.XP,
		Skin:         u.Skin,
		BirthDate:    u.BirthDate,
		SchoolGrade:  u.SchoolGrade,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		DisplayName:  m.DisplayName,
		Role:         domain.ParseRole(m.Role),
		XP:           m.XP,
		Skin:         m.Skin,
		BirthDate:    m.BirthDate,
		SchoolGrade:  m.SchoolGrade,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func categoryToModel(c domain.Category) CategoryModel {
	return CategoryModel{
		ID:        c.ID,
		OwnerID:   c.OwnerID,
		Name:      c.Name,
		CreatedAt: c.CreatedAt,
	}
}

func categoryFromModel(m CategoryModel) domain.Category {
	return domain.Category{
		ID:        m.ID,
		OwnerID:   m.OwnerID,
		Name:      m.Name,
		CreatedAt: m.CreatedAt,
	}
}

func documentToModel(d domain.Document) DocumentModel {
	var categoryID *string
	if d.CategoryID != "" {
		value := d.CategoryID
		categoryID = &value
	}
	return DocumentModel{
		ID:           d.ID,
		OwnerID:      d.OwnerID,
		Name:         d.Name,
		StorageKey:   d.StorageKey,
		ContentText:  d.ContentText,
		Summary:      d.Summary,
		CategoryID:   categoryID,
		Shared:       d.Shared,
		Status:       string(d.Status),
		ErrorMessage: d.ErrorMessage,
		SizeBytes:    d.SizeBytes,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func documentFromModel(m DocumentModel) domain.Document {
	categoryID := ""
	if m.CategoryID != nil {
		categoryID = *m.CategoryID
	}
	return domain.Document{
		ID:           m.ID,
		OwnerID:      m.OwnerID,
		Name:         m.Name,
		StorageKey:   m.StorageKey,
		ContentText:  m.ContentText,
		Summary:      m.Summary,
		CategoryID:   categoryID,
		Shared:       m.Shared,
		Status:       domain.DocumentStatus(m.Status),
		ErrorMessage: m.ErrorMessage,
		SizeBytes:    m.SizeBytes,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func historyToModel(entry domain.HistoryEntry) HistoryModel {
	meta, _ := json.Marshal(entry.Metadata)
	if entry.Metadata == nil {
		meta = nil
	}
	return HistoryModel{
		ID:           entry.ID,
		UserID:       entry.UserID,
		Action:       string(entry.Action),
		DocumentName: entry.DocumentName,
		XPGained:     entry.XPGained,
		Metadata:     meta,
		CreatedAt:    entry.CreatedAt,
	}
}

func historyFromModel(m HistoryModel) domain.HistoryEntry {
	var meta map[string]string
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &meta)
	}
	return domain.HistoryEntry{
		ID:           m.ID,
		UserID:       m.UserID,
		Action:       domain.ActionType(m.Action),
		DocumentName: m.DocumentName,
		XPGained:     m.XPGained,
		Metadata:     meta,
		CreatedAt:    m.CreatedAt,
	}
}

func subscriberToModel(s domain.Subscriber) SubscriberModel {
	return SubscriberModel{
		UserID:     s.UserID,
		Email:      s.Email,
		CustomerID: s.CustomerID,
		Subscribed: s.Subscribed,
		Tier:       s.Tier,
		TrialEnd:   s.TrialEnd,
		PeriodEnd:  s.PeriodEnd,
		UpdatedAt:  s.UpdatedAt,
	}
}

func subscriberFromModel(m SubscriberModel) domain.Subscriber {
	return domain.Subscriber{
		UserID:     m.UserID,
		Email:      m.Email,
		CustomerID: m.CustomerID,
		Subscribed: m.Subscribed,
		Tier:       m.Tier,
		TrialEnd:   m.TrialEnd,
		PeriodEnd:  m.PeriodEnd,
		UpdatedAt:  m.UpdatedAt,
	}
}
