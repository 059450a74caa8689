package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "Pending"
	SessionStatusProcessing SessionStatus = "Processing"
	SessionStatusReviewed   SessionStatus = "Reviewed"
	SessionStatusCompleted  SessionStatus = "Completed"
)

var sessionStatusRank = map[SessionStatus]int{
	SessionStatusPending:    0,
	SessionStatusProcessing: 1,
	SessionStatusReviewed:   2,
	SessionStatusCompleted:  3,
}

// CanAdvanceTo enforces the monotonic session lifecycle; there is no
// rollback, a new upload always creates a new session.
func (s SessionStatus) CanAdvanceTo(next SessionStatus) bool {
	from, ok := sessionStatusRank[s]
	if !ok {
		return false
	}
	to, ok := sessionStatusRank[next]
	if !ok {
		return false
	}
	return to > from
}

func (s SessionStatus) Value() (driver.Value, error) {
	return string(s), nil
}

func (s *SessionStatus) Scan(value interface{}) error {
	return scanEnumString((*string)(s), value, "session status")
}

func (s *SessionStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.New("session status must be string")
	}
	switch SessionStatus(str) {
	case SessionStatusPending, SessionStatusProcessing, SessionStatusReviewed, SessionStatusCompleted:
		*s = SessionStatus(str)
	default:
		return fmt.Errorf("invalid session status %q", str)
	}
	return nil
}

type CandidateStatus string

const (
	CandidateStatusPending  CandidateStatus = "Pending"
	CandidateStatusApproved CandidateStatus = "Approved"
	CandidateStatusRejected CandidateStatus = "Rejected"
	CandidateStatusCreated  CandidateStatus = "Created"
)

// ValidCandidateTransition is the review-loop state machine. Created is
// terminal and one-way; it is reached only through materialization, never
// through a direct status update. Rejected stays reversible so a reviewer
// can re-review a row.
func ValidCandidateTransition(from, to CandidateStatus) bool {
	if from == CandidateStatusCreated {
		return false
	}
	switch to {
	case CandidateStatusPending, CandidateStatusApproved, CandidateStatusRejected:
		return to != from
	case CandidateStatusCreated:
		// only the materializer moves Approved -> Created
		return from == CandidateStatusApproved
	default:
		return false
	}
}

func (s CandidateStatus) Value() (driver.Value, error) {
	return string(s), nil
}

func (s *CandidateStatus) Scan(value interface{}) error {
	return scanEnumString((*string)(s), value, "candidate status")
}

func (s *CandidateStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.New("candidate status must be string")
	}
	switch CandidateStatus(str) {
	case CandidateStatusPending, CandidateStatusApproved, CandidateStatusRejected, CandidateStatusCreated:
		*s = CandidateStatus(str)
	default:
		return fmt.Errorf("invalid candidate status %q", str)
	}
	return nil
}

type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeTextarea FieldType = "textarea"
	FieldTypeNumber   FieldType = "number"
	FieldTypeDate     FieldType = "date"
	FieldTypeSelect   FieldType = "select"
	FieldTypeEmail    FieldType = "email"
)

func IsAllowedFieldType(t FieldType) bool {
	switch t {
	case FieldTypeText, FieldTypeTextarea, FieldTypeNumber, FieldTypeDate, FieldTypeSelect, FieldTypeEmail:
		return true
	default:
		return false
	}
}

func (t FieldType) Value() (driver.Value, error) {
	return string(t), nil
}

func (t *FieldType) Scan(value interface{}) error {
	return scanEnumString((*string)(t), value, "field type")
}

func (t *FieldType) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.New("field type must be string")
	}
	if !IsAllowedFieldType(FieldType(str)) {
		return fmt.Errorf("invalid field type %q", str)
	}
	*t = FieldType(str)
	return nil
}

func scanEnumString(dest *string, value interface{}, what string) error {
	switch v := value.(type) {
	case string:
		*dest = v
	case []byte:
		*dest = string(v)
	default:
		return fmt.Errorf("cannot scan %T into %s", value, what)
	}
	return nil
}
