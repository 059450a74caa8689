package utils

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/docflow_backend/config"
)

var validate = validator.New()

// ValidateResourceId checks that a record of type T with the given id
// exists. Returns ErrorRecordNotFound when it doesn't.
func ValidateResourceId[T any](ctx context.Context, id interface{}) error {
	db := config.GetDB()
	var count int64
	var m T
	if err := db.WithContext(ctx).Model(&m).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}
	return nil
}

// ValidateFieldValue checks one cell value against a declared field type.
// The empty string is always accepted here; required-ness is enforced by the
// row mapper, which knows whether the field is required.
func ValidateFieldValue(fieldType string, value string, options []string) error {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	switch fieldType {
	case "number":
		if _, err := ParseDecimal(value); err != nil {
			return err
		}
	case "email":
		if err := validate.Var(strings.TrimSpace(value), "email"); err != nil {
			return fmt.Errorf("invalid email %q", value)
		}
	case "date":
		if _, err := parseAnyDate(value); err != nil {
			return err
		}
	case "select":
		if len(options) > 0 {
			for _, opt := range options {
				if opt == value {
					return nil
				}
			}
			return fmt.Errorf("value %q is not one of the allowed options", value)
		}
	}
	// text and textarea accept anything
	return nil
}

// ValidateStruct runs tag-based validation on an API request struct.
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// spreadsheet tools write dates in whatever format the author's locale
// produced; accept the common ones
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"2006/01/02",
	"02-01-2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	time.RFC3339,
}

func parseAnyDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}
