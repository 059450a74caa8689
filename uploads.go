package main

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/docflow_backend/config"
	"github.com/mmdatafocus/docflow_backend/models"
	"github.com/mmdatafocus/docflow_backend/utils"
	"github.com/mmdatafocus/docflow_backend/workflow"
)

// 20 MB is generous for a review spreadsheet; anything larger is almost
// certainly the wrong file.
const maxUploadBytes = 20 << 20

func pathInt(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		respondError(c, utils.NewAppError(utils.ErrKindValidation, name+" must be an integer"))
		return 0, false
	}
	return v, true
}

// uploadBatchHandler ingests one spreadsheet against a template: parse the
// rows, map them to candidates and hand back the session summary. The rows
// are parsed before anything is persisted, so a malformed file leaves no
// trace.
func uploadBatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "uploadBatch")
		defer span.End()

		templateId, ok := pathInt(c, "id")
		if !ok {
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			respondError(c, utils.NewAppError(utils.ErrKindValidation, "multipart field \"file\" is required"))
			return
		}
		if fileHeader.Size > maxUploadBytes {
			respondError(c, utils.NewAppError(utils.ErrKindValidation, "file exceeds the 20 MB upload limit"))
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			respondError(c, utils.WrapError(utils.ErrKindMalformedFile, "open upload", err))
			return
		}
		defer file.Close()

		rawRows, err := models.ParseSpreadsheet(file)
		if err != nil {
			respondError(c, err)
			return
		}

		session, err := workflow.CreateSession(ctx, templateId, fileHeader.Filename, rawRows)
		if err != nil {
			config.LogError(config.GetLogger(), "uploads.go", "uploadBatchHandler", "create session", templateId, err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, session)
	}
}

func getSessionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := models.GetBatchSession(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, session)
	}
}

func listSessionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		templateId, ok := pathInt(c, "id")
		if !ok {
			return
		}
		sessions, err := models.ListSessionsByTemplate(c.Request.Context(), templateId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": sessions})
	}
}

type candidateStatusRequest struct {
	Status models.CandidateStatus `json:"status" binding:"required"`
}

func setCandidateStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ordinal, ok := pathInt(c, "ordinal")
		if !ok {
			return
		}
		var req candidateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, utils.WrapError(utils.ErrKindValidation, "invalid request body", err))
			return
		}

		candidate, err := workflow.SetCandidateStatus(c.Request.Context(), c.Param("id"), ordinal, req.Status)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, candidate)
	}
}

type candidateFieldsRequest struct {
	FieldValues map[string]string `json:"field_values" binding:"required"`
}

func updateCandidateFieldsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ordinal, ok := pathInt(c, "ordinal")
		if !ok {
			return
		}
		var req candidateFieldsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, utils.WrapError(utils.ErrKindValidation, "invalid request body", err))
			return
		}

		candidate, err := workflow.UpdateCandidateFields(c.Request.Context(), c.Param("id"), ordinal, req.FieldValues)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, candidate)
	}
}

// previewCandidateHandler renders one row's annotated preview from the
// values it currently carries; no body needed.
func previewCandidateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ordinal, ok := pathInt(c, "ordinal")
		if !ok {
			return
		}
		html, err := workflow.PreviewCandidate(c.Request.Context(), c.Param("id"), ordinal)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"html": html})
	}
}

func materializeSessionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "materializeSession")
		defer span.End()

		result, err := workflow.MaterializeSession(ctx, c.Param("id"))
		if err != nil {
			config.LogError(config.GetLogger(), "uploads.go", "materializeSessionHandler", "materialize", c.Param("id"), err)
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func abandonSessionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := workflow.AbandonSession(c.Request.Context(), c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
