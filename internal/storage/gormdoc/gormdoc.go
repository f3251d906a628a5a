// Package gormdoc keeps the marker collection as a single JSON row in a SQL
// database. The sqlite and postgres stores wrap it with their own connections.
package gormdoc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/OCAP2/mapsync/pkg/core"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentName is the row the marker collection lives in.
const DocumentName = "markers"

// Document is one persisted JSON document.
type Document struct {
	ID        uint           `gorm:"primarykey"`
	Name      string         `gorm:"size:64;uniqueIndex"`
	Body      datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName implements gorm's Tabler.
func (Document) TableName() string {
	return "mapsync_documents"
}

// Store saves the collection as a whole-row upsert.
type Store struct {
	db *gorm.DB
}

// New wraps an open gorm connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Init creates the document table.
func (s *Store) Init() error {
	if err := s.db.AutoMigrate(&Document{}); err != nil {
		return fmt.Errorf("migrate documents: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Load reads the marker document. A missing row yields an empty collection.
func (s *Store) Load(ctx context.Context) (core.Collection, error) {
	var doc Document
	err := s.db.WithContext(ctx).Where("name = ?", DocumentName).Take(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.NewCollection(), nil
	}
	if err != nil {
		return core.Collection{}, fmt.Errorf("load document: %w", err)
	}

	var c core.Collection
	if err := json.Unmarshal(doc.Body, &c); err != nil {
		return core.Collection{}, fmt.Errorf("decode document: %w", err)
	}
	c.Normalize()
	return c, nil
}

// Save replaces the marker document with c in one statement.
func (s *Store) Save(ctx context.Context, c core.Collection) error {
	c.Normalize()
	body, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}

	doc := Document{
		Name:      DocumentName,
		Body:      datatypes.JSON(body),
		UpdatedAt: time.Now().UTC(),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"body", "updated_at"}),
	}).Create(&doc).Error
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}
