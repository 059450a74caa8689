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

// BatchSession is the unit of work spanning one uploaded spreadsheet's full
// review-and-creation lifecycle. Counters are denormalized from the
// candidate rows and refreshed after every review action.
type BatchSession struct {
	ID             string        `gorm:"type:char(36);primaryKey" json:"id"`
	TemplateId     int           `gorm:"not null;index" json:"template_id"`
	FileName       string        `gorm:"size:255" json:"file_name"`
	TotalRows      int           `gorm:"not null;default:0" json:"total_rows"`
	ProcessedCount int           `gorm:"not null;default:0" json:"processed_count"`
	ApprovedCount  int           `gorm:"not null;default:0" json:"approved_count"`
	CreatedCount   int           `gorm:"not null;default:0" json:"created_count"`
	Status         SessionStatus `gorm:"not null;size:20;default:'Pending'" json:"status"`
	CreatedAt      time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"autoUpdateTime" json:"updated_at"`

	Template   *Template         `gorm:"foreignKey:TemplateId;constraint:OnDelete:CASCADE" json:"-"`
	Candidates []*BatchCandidate `gorm:"foreignKey:SessionId;constraint:OnDelete:CASCADE" json:"candidates,omitempty"`
}

func (s *BatchSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

func (s *BatchSession) Store(tx *gorm.DB, ctx context.Context) error {
	return tx.WithContext(ctx).Create(s).Error
}

func GetBatchSession(ctx context.Context, id string) (*BatchSession, error) {
	var result BatchSession
	db := config.GetDB()
	err := db.WithContext(ctx).
		Preload("Candidates", func(tx *gorm.DB) *gorm.DB { return tx.Order("ordinal ASC") }).
		Preload("Candidates.FieldValues", func(tx *gorm.DB) *gorm.DB { return tx.Order("sort_order ASC, id ASC") }).
		Where("id = ?", id).First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewAppError(utils.ErrKindNotFound, fmt.Sprintf("session %s not found", id))
		}
		return nil, err
	}
	return &result, nil
}

func ListSessionsByTemplate(ctx context.Context, templateId int) ([]*BatchSession, error) {
	var sessions []*BatchSession
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("template_id = ?", templateId).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// AdvanceStatus moves the session forward in its monotonic lifecycle using
// a compare-and-set so racing writers cannot move it backwards. Advancing
// past an already-advanced status is not an error; the session simply stays
// where it is.
func (s *BatchSession) AdvanceStatus(ctx context.Context, next SessionStatus) error {
	if !s.Status.CanAdvanceTo(next) {
		if s.Status == next {
			return nil
		}
		return utils.NewAppError(utils.ErrKindInvalidTransition,
			fmt.Sprintf("session %s cannot move from %s to %s", s.ID, s.Status, next))
	}
	db := config.GetDB()
	res := db.WithContext(ctx).Model(&BatchSession{}).
		Where("id = ? AND status = ?", s.ID, s.Status).
		Update("status", next)
	if res.Error != nil {
		return utils.WrapError(utils.ErrKindPersistence, "advance session status", res.Error)
	}
	if res.RowsAffected > 0 {
		s.Status = next
	}
	return nil
}

// RefreshCounters recomputes the denormalized counters from the candidate
// rows in one statement, so parallel row updates cannot leave stale counts.
// processed counts terminal review decisions and can never exceed total;
// approved counts only rows still awaiting materialization, so it drains to
// zero as documents are created.
func (s *BatchSession) RefreshCounters(ctx context.Context) error {
	db := config.GetDB()
	sql := `
UPDATE batch_sessions SET
    processed_count = (SELECT COUNT(*) FROM batch_candidates WHERE session_id = batch_sessions.id AND status IN ('Approved', 'Rejected', 'Created')),
    approved_count  = (SELECT COUNT(*) FROM batch_candidates WHERE session_id = batch_sessions.id AND status = 'Approved'),
    created_count   = (SELECT COUNT(*) FROM batch_candidates WHERE session_id = batch_sessions.id AND status = 'Created')
WHERE id = ?`
	if err := db.WithContext(ctx).Exec(sql, s.ID).Error; err != nil {
		return utils.WrapError(utils.ErrKindPersistence, "refresh session counters", err)
	}
	return db.WithContext(ctx).Model(&BatchSession{}).
		Select("processed_count", "approved_count", "created_count").
		Where("id = ?", s.ID).
		Take(s).Error
}

// Delete abandons the session. Candidates cascade; already-created
// documents survive by design.
func (s *BatchSession) Delete(ctx context.Context) error {
	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(s).Error; err != nil {
		return utils.WrapError(utils.ErrKindPersistence, "delete session", err)
	}
	_ = utils.RemoveRedis[BatchSession](s.ID)
	return nil
}
