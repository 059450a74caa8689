package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/mmdatafocus/docflow_backend/config"
	"github.com/mmdatafocus/docflow_backend/utils"
	"gorm.io/gorm"
)

// Template owns its declared fields and the generated documents. Content
// carries {{fieldName}} placeholder tokens.
type Template struct {
	ID         int       `gorm:"primary_key" json:"id"`
	Name       string    `gorm:"not null;size:150" json:"name"`
	Category   string    `gorm:"size:100;index" json:"category"`
	Content    string    `gorm:"type:longtext" json:"content"`
	FieldCount int       `gorm:"not null;default:0" json:"field_count"`
	IsArchived bool      `gorm:"not null;default:false" json:"is_archived"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Fields []*Field `gorm:"foreignKey:TemplateId;constraint:OnDelete:CASCADE" json:"fields,omitempty"`
}

// Field is one declared placeholder of a template. Name is the stable key
// used inside {{name}} tokens and is unique within a template.
type Field struct {
	ID         int       `gorm:"primary_key" json:"id"`
	TemplateId int       `gorm:"not null;uniqueIndex:idx_fields_template_name,priority:1" json:"template_id"`
	Name       string    `gorm:"not null;size:100;uniqueIndex:idx_fields_template_name,priority:2" json:"name"`
	Label      string    `gorm:"size:150" json:"label"`
	Type       FieldType `gorm:"not null;size:20" json:"type"`
	IsRequired bool      `gorm:"not null;default:false" json:"is_required"`
	// Options is a JSON array of allowed values; only meaningful for select.
	Options   string `gorm:"type:text" json:"options,omitempty"`
	SortOrder int    `gorm:"not null;default:0" json:"sort_order"`
}

func (f *Field) OptionList() []string {
	if f.Options == "" {
		return nil
	}
	var opts []string
	if err := json.Unmarshal([]byte(f.Options), &opts); err != nil {
		return nil
	}
	return opts
}

type NewField struct {
	Name       string    `json:"name" validate:"required,max=100"`
	Label      string    `json:"label" validate:"max=150"`
	Type       FieldType `json:"type" validate:"required"`
	IsRequired bool      `json:"is_required"`
	Options    []string  `json:"options"`
}

type NewTemplate struct {
	Name     string      `json:"name" validate:"required,max=150"`
	Category string      `json:"category" validate:"max=100"`
	Content  string      `json:"content" validate:"required"`
	Fields   []*NewField `json:"fields" validate:"required,min=1,dive"`
}

// fieldNamePattern mirrors the {{name}} token grammar; a name outside it
// could never be substituted.
var fieldNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

func (input *NewTemplate) MapInput() (*Template, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, utils.WrapError(utils.ErrKindValidation, "invalid template", err)
	}

	seen := make(map[string]bool, len(input.Fields))
	fields := make([]*Field, 0, len(input.Fields))
	for i, nf := range input.Fields {
		if !fieldNamePattern.MatchString(nf.Name) {
			return nil, utils.NewAppError(utils.ErrKindValidation,
				fmt.Sprintf("field name %q may only contain letters, digits and underscores", nf.Name))
		}
		if !IsAllowedFieldType(nf.Type) {
			return nil, utils.NewAppError(utils.ErrKindValidation, fmt.Sprintf("field %q has invalid type %q", nf.Name, nf.Type))
		}
		if seen[nf.Name] {
			return nil, utils.NewAppError(utils.ErrKindValidation, fmt.Sprintf("duplicate field name %q", nf.Name))
		}
		seen[nf.Name] = true

		var options string
		if len(nf.Options) > 0 {
			b, err := json.Marshal(nf.Options)
			if err != nil {
				return nil, err
			}
			options = string(b)
		}
		fields = append(fields, &Field{
			Name:       nf.Name,
			Label:      nf.Label,
			Type:       nf.Type,
			IsRequired: nf.IsRequired,
			Options:    options,
			SortOrder:  i,
		})
	}

	return &Template{
		Name:       input.Name,
		Category:   input.Category,
		Content:    input.Content,
		FieldCount: len(fields),
		Fields:     fields,
	}, nil
}

func CreateTemplate(ctx context.Context, input *NewTemplate) (*Template, error) {
	template, err := input.MapInput()
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(template).Error; err != nil {
		return nil, utils.WrapError(utils.ErrKindPersistence, "store template", err)
	}
	return template, nil
}

func GetTemplate(ctx context.Context, id int) (*Template, error) {
	var result Template
	db := config.GetDB()
	if err := db.WithContext(ctx).First(&result, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewAppError(utils.ErrKindNotFound, fmt.Sprintf("template %d not found", id))
		}
		return nil, err
	}
	return &result, nil
}

// GetTemplateWithFields is the field schema resolver: template plus its
// declared fields in their stable order. Read-through Redis cache keyed by
// template id; writers must invalidate via ClearTemplateCache.
func GetTemplateWithFields(ctx context.Context, id int) (*Template, error) {
	if skip, ok := utils.GetSkipCacheFromContext(ctx); !ok || !skip {
		var cached Template
		if exists, err := utils.FetchRedis[Template](id, &cached); err == nil && exists {
			return &cached, nil
		}
	}

	var result Template
	db := config.GetDB()
	err := db.WithContext(ctx).
		Preload("Fields", func(tx *gorm.DB) *gorm.DB { return tx.Order("sort_order ASC, id ASC") }).
		First(&result, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewAppError(utils.ErrKindNotFound, fmt.Sprintf("template %d not found", id))
		}
		return nil, err
	}

	_ = utils.StoreRedis[Template](&result, id)
	return &result, nil
}

func ClearTemplateCache(id int) {
	_ = utils.RemoveRedis[Template](id)
}

func ListTemplates(ctx context.Context, includeArchived bool) ([]*Template, error) {
	var templates []*Template
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Order("id ASC")
	if !includeArchived {
		dbCtx = dbCtx.Where("is_archived = ?", false)
	}
	if err := dbCtx.Find(&templates).Error; err != nil {
		return nil, err
	}
	return templates, nil
}

func (t *Template) Archive(ctx context.Context) error {
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(t).Update("is_archived", true).Error; err != nil {
		return utils.WrapError(utils.ErrKindPersistence, "archive template", err)
	}
	ClearTemplateCache(t.ID)
	return nil
}

// DeleteTemplate removes the template and, via FK cascade, its fields,
// sessions and documents. Once materialized documents reference the
// template the caller must confirm the cascade explicitly; archival is the
// safe alternative.
func DeleteTemplate(ctx context.Context, id int, confirmCascade bool) error {
	db := config.GetDB()

	template, err := GetTemplate(ctx, id)
	if err != nil {
		return err
	}

	var docCount int64
	if err := db.WithContext(ctx).Model(&Document{}).Where("template_id = ?", id).Count(&docCount).Error; err != nil {
		return err
	}
	if docCount > 0 && !confirmCascade {
		return utils.NewAppError(utils.ErrKindValidation,
			fmt.Sprintf("template %d has %d generated documents; pass confirmCascade=true to delete them or archive the template instead", id, docCount))
	}

	if err := db.WithContext(ctx).Delete(template).Error; err != nil {
		return utils.WrapError(utils.ErrKindPersistence, "delete template", err)
	}
	ClearTemplateCache(id)
	return nil
}
