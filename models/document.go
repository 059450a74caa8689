package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/docflow_backend/config"
	"github.com/mmdatafocus/docflow_backend/utils"
	"gorm.io/gorm"
)

// Document is one materialized output. Its fields are a flattened copy of
// the candidate's values, persisted independently so the batch session can
// later be discarded.
type Document struct {
	ID              string    `gorm:"type:char(36);primaryKey" json:"id"`
	TemplateId      int       `gorm:"not null;index" json:"template_id"`
	Name            string    `gorm:"not null;size:255" json:"name"`
	StorageLocation string    `gorm:"size:500" json:"storage_location"`
	IsArchived      bool      `gorm:"not null;default:false" json:"is_archived"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Fields []*DocumentField `gorm:"foreignKey:DocumentId;constraint:OnDelete:CASCADE" json:"fields,omitempty"`
}

type DocumentField struct {
	ID         int    `gorm:"primary_key" json:"id"`
	DocumentId string `gorm:"type:char(36);not null;index" json:"document_id"`
	Name       string `gorm:"not null;size:100" json:"name"`
	Value      string `gorm:"type:longtext" json:"value"`
	SortOrder  int    `gorm:"not null;default:0" json:"sort_order"`
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}

func (d *Document) Store(tx *gorm.DB, ctx context.Context) error {
	return tx.WithContext(ctx).Create(d).Error
}

func GetDocument(ctx context.Context, id string) (*Document, error) {
	var result Document
	db := config.GetDB()
	err := db.WithContext(ctx).
		Preload("Fields", func(tx *gorm.DB) *gorm.DB { return tx.Order("sort_order ASC, id ASC") }).
		Where("id = ?", id).First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewAppError(utils.ErrKindNotFound, fmt.Sprintf("document %s not found", id))
		}
		return nil, err
	}
	return &result, nil
}

func ListDocuments(ctx context.Context, templateId int, includeArchived bool) ([]*Document, error) {
	var documents []*Document
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("template_id = ?", templateId).Order("created_at ASC, id ASC")
	if !includeArchived {
		dbCtx = dbCtx.Where("is_archived = ?", false)
	}
	if err := dbCtx.Find(&documents).Error; err != nil {
		return nil, err
	}
	return documents, nil
}

// DocumentsInRange returns non-archived documents of a template created in
// the inclusive [from, to] date range, fields preloaded, ordered by
// creation time. Zero rows is a valid result.
func DocumentsInRange(ctx context.Context, templateId int, from, to time.Time) ([]*Document, error) {
	var documents []*Document
	db := config.GetDB()
	err := db.WithContext(ctx).
		Preload("Fields", func(tx *gorm.DB) *gorm.DB { return tx.Order("sort_order ASC, id ASC") }).
		Where("template_id = ? AND is_archived = ?", templateId, false).
		Where("created_at >= ? AND created_at <= ?", from, utils.EndOfDay(to)).
		Order("created_at ASC, id ASC").
		Find(&documents).Error
	if err != nil {
		return nil, utils.WrapError(utils.ErrKindExportFailed, "query documents", err)
	}
	return documents, nil
}

func (d *Document) SetArchived(ctx context.Context, archived bool) error {
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(d).Update("is_archived", archived).Error; err != nil {
		return utils.WrapError(utils.ErrKindPersistence, "archive document", err)
	}
	return nil
}

// Delete removes the row and the stored rendering. The storage delete is
// attempted after the row delete succeeds; a leaked object is preferable to
// a dangling row.
func (d *Document) Delete(tx *gorm.DB, ctx context.Context) error {
	if err := tx.WithContext(ctx).Delete(d).Error; err != nil {
		return err
	}
	if err := utils.RemoveStoredDocument(ctx, d.StorageLocation); err != nil {
		return err
	}
	return nil
}
