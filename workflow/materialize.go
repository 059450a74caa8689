package workflow

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/docflow_backend/config"
	"github.com/mmdatafocus/docflow_backend/models"
	"github.com/mmdatafocus/docflow_backend/renderer"
	"github.com/mmdatafocus/docflow_backend/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("docflow-backend/workflow")

const renderedContentType = "text/html; charset=utf-8"

type RowError struct {
	Ordinal int    `json:"ordinal"`
	Message string `json:"message"`
}

// MaterializeResult is the aggregate outcome of one materialization run.
// One row's failure never aborts the batch; failed rows stay Approved and
// are picked up by the next run.
type MaterializeResult struct {
	Attempted   int        `json:"attempted"`
	Created     int        `json:"created"`
	Failed      int        `json:"failed"`
	Errors      []RowError `json:"errors"`
	DocumentIds []string   `json:"document_ids"`
}

func materializeWorkers() int {
	if v := strings.TrimSpace(os.Getenv("MATERIALIZE_WORKERS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 4
}

// MaterializeSession converts every approved candidate of the session into
// a persisted Document. Rows are independent units of value: they run in
// parallel, failures are collected per row, and re-invoking the routine
// skips candidates that are already Created (at-most-once per candidate).
func MaterializeSession(ctx context.Context, sessionId string) (*MaterializeResult, error) {
	var span trace.Span
	ctx, span = tracer.Start(ctx, "MaterializeSession")
	defer span.End()

	logger := config.GetLogger()

	// one materialization run per session at a time
	lock, err := utils.SessionLock(ctx, sessionId, 10*time.Minute, "materialize.go", "MaterializeSession")
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release(ctx) }()

	session, err := models.GetBatchSession(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	if session.Status == models.SessionStatusPending || session.Status == models.SessionStatusProcessing {
		return nil, utils.NewAppError(utils.ErrKindInvalidTransition,
			fmt.Sprintf("session %s is still %s; finish the review first", sessionId, session.Status))
	}

	template, err := models.GetTemplateWithFields(ctx, session.TemplateId)
	if err != nil {
		return nil, err
	}

	// Created candidates are excluded here, which is what makes a retry
	// after partial failure only touch the previously-failed rows.
	candidates, err := models.ListApprovedCandidates(ctx, sessionId)
	if err != nil {
		return nil, err
	}

	var createdCount atomic.Int64
	var mu sync.Mutex
	var rowErrors []RowError
	var documentIds []string

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(materializeWorkers())

	for _, candidate := range candidates {
		candidate := candidate
		group.Go(func() error {
			documentId, rowErr := materializeCandidate(groupCtx, template, candidate)
			if rowErr != nil {
				config.LogError(logger, "materialize.go", "MaterializeSession", "row failed", candidate.Ordinal, rowErr)
				if setErr := candidate.SetError(groupCtx, utils.MessageOf(rowErr)); setErr != nil {
					config.LogError(logger, "materialize.go", "MaterializeSession", "record row error", candidate.Ordinal, setErr)
				}
				mu.Lock()
				rowErrors = append(rowErrors, RowError{Ordinal: candidate.Ordinal, Message: utils.MessageOf(rowErr)})
				mu.Unlock()
				return nil
			}
			createdCount.Add(1)
			publishDocumentCreated(ctx, session, documentId)
			mu.Lock()
			documentIds = append(documentIds, documentId)
			mu.Unlock()
			return nil
		})
	}
	// workers only report via the shared slices; Wait's error is always nil
	_ = group.Wait()

	if err := session.RefreshCounters(ctx); err != nil {
		return nil, err
	}
	if err := session.AdvanceStatus(ctx, models.SessionStatusCompleted); err != nil {
		return nil, err
	}

	publishSessionCompleted(ctx, session)

	sort.Slice(rowErrors, func(i, j int) bool { return rowErrors[i].Ordinal < rowErrors[j].Ordinal })
	result := &MaterializeResult{
		Attempted:   len(candidates),
		Created:     int(createdCount.Load()),
		Failed:      len(rowErrors),
		Errors:      rowErrors,
		DocumentIds: documentIds,
	}
	return result, nil
}

// materializeCandidate handles one row: render, store the bytes, then
// persist Document + fields and flip the candidate to Created inside one
// transaction. If the transaction fails the stored object is removed so no
// orphan renderings accumulate.
func materializeCandidate(ctx context.Context, template *models.Template, candidate *models.BatchCandidate) (string, error) {
	content, err := renderer.RenderFinal(template.Content, candidate.FieldValueMap())
	if err != nil {
		return "", utils.WrapError(utils.ErrKindRender, "render document", err)
	}

	documentId := uuid.New().String()
	objectName := fmt.Sprintf("generated/%d/%s.html", template.ID, documentId)
	location, err := utils.StoreRenderedDocument(ctx, objectName, []byte(content), renderedContentType)
	if err != nil {
		return "", utils.WrapError(utils.ErrKindPersistence, "store rendered document", err)
	}

	fields := make([]*models.DocumentField, 0, len(candidate.FieldValues))
	for _, fv := range candidate.FieldValues {
		fields = append(fields, &models.DocumentField{
			Name:      fv.Name,
			Value:     fv.Value,
			SortOrder: fv.SortOrder,
		})
	}
	document := &models.Document{
		ID:              documentId,
		TemplateId:      template.ID,
		Name:            candidate.DocumentName,
		StorageLocation: location,
		Fields:          fields,
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := document.Store(tx, ctx); err != nil {
			return err
		}
		// the candidate becomes Created only after its Document row exists
		return candidate.MarkCreated(tx, ctx, documentId)
	})
	if err != nil {
		_ = utils.RemoveStoredDocument(ctx, location)
		return "", utils.WrapError(utils.ErrKindPersistence, "persist document", err)
	}
	return documentId, nil
}

func publishDocumentCreated(ctx context.Context, session *models.BatchSession, documentId string) {
	if !config.PubSubEnabled() {
		return
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	event := config.LifecycleEvent{
		EventType:     "document.created",
		TemplateId:    session.TemplateId,
		SessionId:     session.ID,
		DocumentId:    documentId,
		OccurredAt:    time.Now().UTC(),
		CorrelationId: correlationId,
	}
	publishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := config.PublishLifecycleEvent(publishCtx, event); err != nil {
		config.LogError(config.GetLogger(), "materialize.go", "publishDocumentCreated", "publish event", documentId, err)
	}
}

func publishSessionCompleted(ctx context.Context, session *models.BatchSession) {
	if !config.PubSubEnabled() {
		return
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	event := config.LifecycleEvent{
		EventType:     "session.completed",
		TemplateId:    session.TemplateId,
		SessionId:     session.ID,
		OccurredAt:    time.Now().UTC(),
		CorrelationId: correlationId,
	}
	publishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := config.PublishLifecycleEvent(publishCtx, event); err != nil {
		// best-effort: downstream consumers re-sync from the API
		config.LogError(config.GetLogger(), "materialize.go", "publishSessionCompleted", "publish event", session.ID, err)
	}
}
