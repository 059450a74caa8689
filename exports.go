package main

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/docflow_backend/config"
	"github.com/mmdatafocus/docflow_backend/models"
	"github.com/mmdatafocus/docflow_backend/renderer"
	"github.com/mmdatafocus/docflow_backend/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func createTemplateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewTemplate
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, utils.WrapError(utils.ErrKindValidation, "invalid request body", err))
			return
		}
		template, err := models.CreateTemplate(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, template)
	}
}

func listTemplatesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		includeArchived := strings.EqualFold(c.Query("includeArchived"), "true")
		templates, err := models.ListTemplates(c.Request.Context(), includeArchived)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"templates": templates})
	}
}

func getTemplateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathInt(c, "id")
		if !ok {
			return
		}
		template, err := models.GetTemplateWithFields(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, template)
	}
}

// deleteTemplateHandler removes a template and everything under it. When
// materialized documents exist the caller must pass ?confirmCascade=true;
// the first call without it answers 409 so a UI can prompt.
func deleteTemplateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathInt(c, "id")
		if !ok {
			return
		}
		confirm := strings.EqualFold(c.Query("confirmCascade"), "true")
		if err := models.DeleteTemplate(c.Request.Context(), id, confirm); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func archiveTemplateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathInt(c, "id")
		if !ok {
			return
		}
		template, err := models.GetTemplate(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		if err := template.Archive(c.Request.Context()); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, template)
	}
}

type previewRequest struct {
	FieldValues map[string]string `json:"field_values"`
}

// previewTemplateHandler renders the annotated preview for ad-hoc values,
// without any session or persistence involved.
func previewTemplateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathInt(c, "id")
		if !ok {
			return
		}
		var req previewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, utils.WrapError(utils.ErrKindValidation, "invalid request body", err))
			return
		}

		template, err := models.GetTemplateWithFields(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		html, err := renderer.RenderPreview(template.Content, req.FieldValues)
		if err != nil {
			respondError(c, utils.WrapError(utils.ErrKindRender, "render preview", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"html": html})
	}
}

// exportDocumentsHandler streams an xlsx of the template's documents created
// inside the inclusive from/to date range.
func exportDocumentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "exportDocuments")
		defer span.End()

		id, ok := pathInt(c, "id")
		if !ok {
			return
		}
		from, err := utils.ParseDateOnly(c.Query("from"))
		if err != nil {
			respondError(c, utils.NewAppError(utils.ErrKindValidation, "from must be YYYY-MM-DD"))
			return
		}
		to, err := utils.ParseDateOnly(c.Query("to"))
		if err != nil {
			respondError(c, utils.NewAppError(utils.ErrKindValidation, "to must be YYYY-MM-DD"))
			return
		}
		if to.Before(from) {
			respondError(c, utils.NewAppError(utils.ErrKindValidation, "to must not be before from"))
			return
		}

		template, err := models.GetTemplateWithFields(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}

		file, err := models.BuildExportFile(ctx, template, from, to)
		if err != nil {
			config.LogError(config.GetLogger(), "exports.go", "exportDocumentsHandler", "build export", id, err)
			respondError(c, err)
			return
		}
		defer file.Close()

		filename := fmt.Sprintf("%s_%s_%s.xlsx",
			utils.SanitizeFilename(template.Name), c.Query("from"), c.Query("to"))
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		c.Header("Content-Type", xlsxContentType)
		if err := file.Write(c.Writer); err != nil {
			config.LogError(config.GetLogger(), "exports.go", "exportDocumentsHandler", "stream export", id, err)
		}
	}
}

func listDocumentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		templateId, err := strconv.Atoi(c.Query("templateId"))
		if err != nil {
			respondError(c, utils.NewAppError(utils.ErrKindValidation, "templateId query parameter is required"))
			return
		}
		includeArchived := strings.EqualFold(c.Query("includeArchived"), "true")
		documents, err := models.ListDocuments(c.Request.Context(), templateId, includeArchived)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"documents": documents})
	}
}

func getDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		document, err := models.GetDocument(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, document)
	}
}

type archiveDocumentRequest struct {
	Archived *bool `json:"archived"`
}

func archiveDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req archiveDocumentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, utils.WrapError(utils.ErrKindValidation, "invalid request body", err))
			return
		}
		archived := true
		if req.Archived != nil {
			archived = *req.Archived
		}

		document, err := models.GetDocument(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		if err := document.SetArchived(c.Request.Context(), archived); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, document)
	}
}
