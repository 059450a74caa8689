package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/docflow_backend/config"
	"github.com/mmdatafocus/docflow_backend/utils"
	"gorm.io/gorm"
)

// BatchCandidate is one spreadsheet row awaiting approval. Ordinal is the
// stable 0-based position in the source file, used for error attribution;
// UI re-ordering never touches it.
type BatchCandidate struct {
	ID           int             `gorm:"primary_key" json:"id"`
	SessionId    string          `gorm:"type:char(36);not null;uniqueIndex:idx_candidates_session_ordinal,priority:1" json:"session_id"`
	Ordinal      int             `gorm:"not null;uniqueIndex:idx_candidates_session_ordinal,priority:2" json:"ordinal"`
	DocumentName string          `gorm:"size:255" json:"document_name"`
	Status       CandidateStatus `gorm:"not null;size:20;default:'Pending'" json:"status"`
	ErrorMessage string          `gorm:"type:text" json:"error_message,omitempty"`
	DocumentId   *string         `gorm:"type:char(36)" json:"document_id,omitempty"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	FieldValues []*CandidateFieldValue `gorm:"foreignKey:CandidateId;constraint:OnDelete:CASCADE" json:"field_values,omitempty"`
}

type CandidateFieldValue struct {
	ID          int    `gorm:"primary_key" json:"id"`
	CandidateId int    `gorm:"not null;index" json:"candidate_id"`
	Name        string `gorm:"not null;size:100" json:"name"`
	Value       string `gorm:"type:longtext" json:"value"`
	SortOrder   int    `gorm:"not null;default:0" json:"sort_order"`
}

// FieldValueMap flattens the ordered pairs for the renderer.
func (c *BatchCandidate) FieldValueMap() map[string]string {
	m := make(map[string]string, len(c.FieldValues))
	for _, fv := range c.FieldValues {
		m[fv.Name] = fv.Value
	}
	return m
}

func GetCandidateByOrdinal(ctx context.Context, sessionId string, ordinal int) (*BatchCandidate, error) {
	var result BatchCandidate
	db := config.GetDB()
	err := db.WithContext(ctx).
		Preload("FieldValues", func(tx *gorm.DB) *gorm.DB { return tx.Order("sort_order ASC, id ASC") }).
		Where("session_id = ? AND ordinal = ?", sessionId, ordinal).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewAppError(utils.ErrKindNotFound,
				fmt.Sprintf("candidate %d not found in session %s", ordinal, sessionId))
		}
		return nil, err
	}
	return &result, nil
}

func ListApprovedCandidates(ctx context.Context, sessionId string) ([]*BatchCandidate, error) {
	var candidates []*BatchCandidate
	db := config.GetDB()
	err := db.WithContext(ctx).
		Preload("FieldValues", func(tx *gorm.DB) *gorm.DB { return tx.Order("sort_order ASC, id ASC") }).
		Where("session_id = ? AND status = ?", sessionId, CandidateStatusApproved).
		Order("ordinal ASC").
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

// CompareAndSetStatus performs an optimistic status transition: the UPDATE
// only matches when the row still carries the status this process read, so
// two racing approval actions cannot both win.
func (c *BatchCandidate) CompareAndSetStatus(ctx context.Context, to CandidateStatus) error {
	if !ValidCandidateTransition(c.Status, to) {
		return utils.NewAppError(utils.ErrKindInvalidTransition,
			fmt.Sprintf("candidate %d cannot move from %s to %s", c.Ordinal, c.Status, to))
	}
	db := config.GetDB()
	res := db.WithContext(ctx).Model(&BatchCandidate{}).
		Where("id = ? AND status = ?", c.ID, c.Status).
		Update("status", to)
	if res.Error != nil {
		return utils.WrapError(utils.ErrKindPersistence, "update candidate status", res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.NewAppError(utils.ErrKindInvalidTransition,
			fmt.Sprintf("candidate %d was modified concurrently; re-fetch the session", c.Ordinal))
	}
	c.Status = to
	return nil
}

// MarkCreated is the materializer's one-way transition. It records the new
// document id in the same guarded UPDATE; a candidate only becomes Created
// after its Document row exists.
func (c *BatchCandidate) MarkCreated(tx *gorm.DB, ctx context.Context, documentId string) error {
	res := tx.WithContext(ctx).Model(&BatchCandidate{}).
		Where("id = ? AND status = ?", c.ID, CandidateStatusApproved).
		Updates(map[string]interface{}{
			"status":        CandidateStatusCreated,
			"document_id":   documentId,
			"error_message": "",
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.NewAppError(utils.ErrKindInvalidTransition,
			fmt.Sprintf("candidate %d is no longer approved", c.Ordinal))
	}
	c.Status = CandidateStatusCreated
	c.DocumentId = &documentId
	return nil
}

// SetError records a row-level problem without changing status; the row
// stays visible to the reviewer instead of being dropped.
func (c *BatchCandidate) SetError(ctx context.Context, message string) error {
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&BatchCandidate{}).
		Where("id = ?", c.ID).
		Update("error_message", message).Error; err != nil {
		return err
	}
	c.ErrorMessage = message
	return nil
}

// ReplaceFieldValues overwrites the candidate's values; used by the review
// UI to fix flagged rows before approval. Created candidates are immutable.
func (c *BatchCandidate) ReplaceFieldValues(ctx context.Context, values map[string]string, template *Template) error {
	if c.Status == CandidateStatusCreated {
		return utils.NewAppError(utils.ErrKindInvalidTransition,
			fmt.Sprintf("candidate %d is already created and immutable", c.Ordinal))
	}

	declared := make(map[string]*Field, len(template.Fields))
	for _, f := range template.Fields {
		declared[f.Name] = f
	}
	for name := range values {
		if _, ok := declared[name]; !ok {
			return utils.NewAppError(utils.ErrKindValidation,
				fmt.Sprintf("field %q is not declared on template %d", name, template.ID))
		}
	}

	newValues := make([]*CandidateFieldValue, 0, len(template.Fields))
	for i, f := range template.Fields {
		value, ok := values[f.Name]
		if !ok {
			// keep the existing value for fields the caller didn't send
			value = c.FieldValueMap()[f.Name]
		}
		newValues = append(newValues, &CandidateFieldValue{
			CandidateId: c.ID,
			Name:        f.Name,
			Value:       value,
			SortOrder:   i,
		})
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("candidate_id = ?", c.ID).Delete(&CandidateFieldValue{}).Error; err != nil {
			return err
		}
		if len(newValues) > 0 {
			if err := tx.Create(&newValues).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return utils.WrapError(utils.ErrKindPersistence, "replace candidate field values", err)
	}
	c.FieldValues = newValues
	return nil
}
