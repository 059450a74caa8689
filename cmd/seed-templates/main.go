// seed-templates creates a couple of starter templates so a fresh
// environment has something to upload batches against.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-templates
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mmdatafocus/docflow_backend/config"
	"github.com/mmdatafocus/docflow_backend/models"
	"github.com/mmdatafocus/docflow_backend/utils"
)

var starterTemplates = []*models.NewTemplate{
	{
		Name:     "Offer Letter",
		Category: "HR",
		Content: "<h1>Offer Letter</h1>" +
			"<p>Dear {{candidate_name}},</p>" +
			"<p>We are pleased to offer you the position of {{position}} " +
			"starting on {{start_date}} at a monthly salary of {{salary}}.</p>" +
			"<p>Please confirm by replying to {{hr_email}}.</p>",
		Fields: []*models.NewField{
			{Name: "candidate_name", Label: "Candidate Name", Type: models.FieldTypeText, IsRequired: true},
			{Name: "position", Label: "Position", Type: models.FieldTypeText, IsRequired: true},
			{Name: "start_date", Label: "Start Date", Type: models.FieldTypeDate, IsRequired: true},
			{Name: "salary", Label: "Monthly Salary", Type: models.FieldTypeNumber},
			{Name: "hr_email", Label: "HR Contact Email", Type: models.FieldTypeEmail},
		},
	},
	{
		Name:     "Service Certificate",
		Category: "HR",
		Content: "<h1>Certificate of Service</h1>" +
			"<p>This certifies that {{employee_name}} served as {{role}} " +
			"in the {{department}} department.</p>" +
			"<p>Remarks: {{remarks}}</p>",
		Fields: []*models.NewField{
			{Name: "employee_name", Label: "Employee Name", Type: models.FieldTypeText, IsRequired: true},
			{Name: "role", Label: "Role", Type: models.FieldTypeText, IsRequired: true},
			{Name: "department", Label: "Department", Type: models.FieldTypeSelect,
				Options: []string{"Engineering", "Finance", "Operations", "Sales"}},
			{Name: "remarks", Label: "Remarks", Type: models.FieldTypeTextarea},
		},
	},
}

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx = utils.SetActorInContext(ctx, "Seed")

	for _, input := range starterTemplates {
		var count int64
		if err := db.WithContext(ctx).Model(&models.Template{}).Where("name = ?", input.Name).Count(&count).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to lookup template %q: %v\n", input.Name, err)
			os.Exit(1)
		}
		if count > 0 {
			fmt.Printf("Template %q already exists; skipping\n", input.Name)
			continue
		}
		template, err := models.CreateTemplate(ctx, input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create template %q: %v\n", input.Name, err)
			os.Exit(1)
		}
		fmt.Printf("Created template %q (id=%d, %d fields)\n", template.Name, template.ID, template.FieldCount)
	}
}
