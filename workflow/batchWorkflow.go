package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmdatafocus/docflow_backend/config"
	"github.com/mmdatafocus/docflow_backend/models"
	"github.com/mmdatafocus/docflow_backend/renderer"
	"github.com/mmdatafocus/docflow_backend/utils"
)

// CreateSession runs the upload pipeline after a successful parse: bind raw
// rows to the template's declared fields and persist the session with one
// pending candidate per row. Row-level problems (missing or invalid
// required values) are recorded on the candidate, never dropped.
func CreateSession(ctx context.Context, templateId int, fileName string, rawRows []*models.RawRow) (*models.BatchSession, error) {
	template, err := models.GetTemplateWithFields(ctx, templateId)
	if err != nil {
		return nil, err
	}
	if template.IsArchived {
		return nil, utils.NewAppError(utils.ErrKindValidation,
			fmt.Sprintf("template %d is archived", templateId))
	}

	session := &models.BatchSession{
		TemplateId: templateId,
		FileName:   fileName,
		TotalRows:  len(rawRows),
		Status:     models.SessionStatusPending,
	}

	db := config.GetDB()
	if err := session.Store(db, ctx); err != nil {
		return nil, utils.WrapError(utils.ErrKindPersistence, "store session", err)
	}
	if err := session.AdvanceStatus(ctx, models.SessionStatusProcessing); err != nil {
		return nil, err
	}

	candidates := buildCandidates(template, session.ID, rawRows)
	if len(candidates) > 0 {
		// chunked insert; source files can run to hundreds of rows
		if err := db.WithContext(ctx).CreateInBatches(&candidates, 100).Error; err != nil {
			return nil, utils.WrapError(utils.ErrKindPersistence, "store candidates", err)
		}
	}

	if err := session.AdvanceStatus(ctx, models.SessionStatusReviewed); err != nil {
		return nil, err
	}
	session.Candidates = candidates
	return session, nil
}

// buildCandidates is the row-to-field mapper. Column headers match declared
// field names case-sensitively; unknown columns are ignored. A required
// field with no column, or an empty value, flags the row but still creates
// the candidate so a human can inspect and fix it.
func buildCandidates(template *models.Template, sessionId string, rawRows []*models.RawRow) []*models.BatchCandidate {
	candidates := make([]*models.BatchCandidate, 0, len(rawRows))
	for _, row := range rawRows {
		var problems []string

		values := make([]*models.CandidateFieldValue, 0, len(template.Fields))
		for i, field := range template.Fields {
			value, hasColumn := row.Cells[field.Name]
			if field.IsRequired {
				if !hasColumn {
					problems = append(problems, fmt.Sprintf("required field %q has no matching column", field.Name))
				} else if strings.TrimSpace(value) == "" {
					problems = append(problems, fmt.Sprintf("required field %q is empty", field.Name))
				}
			}
			if err := utils.ValidateFieldValue(string(field.Type), value, field.OptionList()); err != nil {
				problems = append(problems, fmt.Sprintf("field %q: %v", field.Name, err))
			}
			values = append(values, &models.CandidateFieldValue{
				Name:      field.Name,
				Value:     value,
				SortOrder: i,
			})
		}

		candidates = append(candidates, &models.BatchCandidate{
			SessionId:    sessionId,
			Ordinal:      row.Ordinal,
			DocumentName: deriveDocumentName(template, row),
			Status:       models.CandidateStatusPending,
			ErrorMessage: strings.Join(problems, "; "),
			FieldValues:  values,
		})
	}
	return candidates
}

// maxDocumentNameLen matches the documents.name and
// batch_candidates.document_name column size.
const maxDocumentNameLen = 255

// deriveDocumentName prefers the first non-empty text field of the row,
// falling back to template name + row position. The result is clipped to
// fit the column.
func deriveDocumentName(template *models.Template, row *models.RawRow) string {
	for _, field := range template.Fields {
		if field.Type != models.FieldTypeText {
			continue
		}
		if v := strings.TrimSpace(row.Cells[field.Name]); v != "" {
			return clipRunes(v, maxDocumentNameLen)
		}
	}
	return clipRunes(fmt.Sprintf("%s #%d", template.Name, row.Ordinal+1), maxDocumentNameLen)
}

func clipRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// SetCandidateStatus is the review action: pending -> approved/rejected,
// rejected back to pending or approved. Created candidates are frozen; only
// materialization reaches Created.
func SetCandidateStatus(ctx context.Context, sessionId string, ordinal int, newStatus models.CandidateStatus) (*models.BatchCandidate, error) {
	if newStatus == models.CandidateStatusCreated {
		return nil, utils.NewAppError(utils.ErrKindInvalidTransition,
			"status Created is reserved for materialization")
	}

	session, err := models.GetBatchSession(ctx, sessionId)
	if err != nil {
		return nil, err
	}

	candidate, err := models.GetCandidateByOrdinal(ctx, sessionId, ordinal)
	if err != nil {
		return nil, err
	}
	if err := candidate.CompareAndSetStatus(ctx, newStatus); err != nil {
		return nil, err
	}

	if err := session.RefreshCounters(ctx); err != nil {
		return nil, err
	}
	return candidate, nil
}

// UpdateCandidateFields lets the reviewer fix a flagged row before
// approving it. Values are re-validated so the error message reflects the
// corrected state.
func UpdateCandidateFields(ctx context.Context, sessionId string, ordinal int, values map[string]string) (*models.BatchCandidate, error) {
	session, err := models.GetBatchSession(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	template, err := models.GetTemplateWithFields(ctx, session.TemplateId)
	if err != nil {
		return nil, err
	}
	candidate, err := models.GetCandidateByOrdinal(ctx, sessionId, ordinal)
	if err != nil {
		return nil, err
	}
	if err := candidate.ReplaceFieldValues(ctx, values, template); err != nil {
		return nil, err
	}

	// re-run the row checks against the merged values
	merged := candidate.FieldValueMap()
	var problems []string
	for _, field := range template.Fields {
		value := merged[field.Name]
		if field.IsRequired && strings.TrimSpace(value) == "" {
			problems = append(problems, fmt.Sprintf("required field %q is empty", field.Name))
		}
		if err := utils.ValidateFieldValue(string(field.Type), value, field.OptionList()); err != nil {
			problems = append(problems, fmt.Sprintf("field %q: %v", field.Name, err))
		}
	}
	if err := candidate.SetError(ctx, strings.Join(problems, "; ")); err != nil {
		return nil, err
	}
	return candidate, nil
}

// PreviewCandidate renders the annotated preview for one row using the
// values it currently carries, so the reviewer sees exactly what
// materialization would produce, gaps highlighted.
func PreviewCandidate(ctx context.Context, sessionId string, ordinal int) (string, error) {
	session, err := models.GetBatchSession(ctx, sessionId)
	if err != nil {
		return "", err
	}
	template, err := models.GetTemplateWithFields(ctx, session.TemplateId)
	if err != nil {
		return "", err
	}
	candidate, err := models.GetCandidateByOrdinal(ctx, sessionId, ordinal)
	if err != nil {
		return "", err
	}
	html, err := renderer.RenderPreview(template.Content, candidate.FieldValueMap())
	if err != nil {
		return "", utils.WrapError(utils.ErrKindRender, "render candidate preview", err)
	}
	return html, nil
}

// AbandonSession deletes the session and its candidates. Documents created
// by an earlier partial materialization remain valid and are not rolled
// back.
func AbandonSession(ctx context.Context, sessionId string) error {
	session, err := models.GetBatchSession(ctx, sessionId)
	if err != nil {
		return err
	}
	return session.Delete(ctx)
}
