package workflow_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/mmdatafocus/docflow_backend/config"
	"github.com/mmdatafocus/docflow_backend/models"
	"github.com/mmdatafocus/docflow_backend/utils"
	"github.com/mmdatafocus/docflow_backend/workflow"
	"github.com/xuri/excelize/v2"
)

func TestBatchLifecycleUploadReviewMaterializeExport(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "docflow_test")
	t.Setenv("STORAGE_PROVIDER", "local")
	t.Setenv("DOCUMENT_STORAGE_DIR", t.TempDir())

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx = utils.SetActorInContext(ctx, "test@local")

	template, err := models.CreateTemplate(ctx, &models.NewTemplate{
		Name:    "Offer Letter",
		Content: "<p>Dear {{name}}, your salary is {{salary}}.</p>",
		Fields: []*models.NewField{
			{Name: "name", Label: "Name", Type: models.FieldTypeText, IsRequired: true},
			{Name: "salary", Label: "Salary", Type: models.FieldTypeNumber, IsRequired: true},
		},
	})
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}

	// Upload: row 1 is missing its required salary.
	f := excelize.NewFile()
	for r, row := range [][]string{
		{"name", "salary"},
		{"Alice", "1200"},
		{"Bob", ""},
		{"Carol", "900"},
	} {
		for c, value := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			if err := f.SetCellValue("Sheet1", cell, value); err != nil {
				t.Fatalf("set cell: %v", err)
			}
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	rawRows, err := models.ParseSpreadsheet(buf)
	if err != nil {
		t.Fatalf("ParseSpreadsheet: %v", err)
	}

	session, err := workflow.CreateSession(ctx, template.ID, "offers.xlsx", rawRows)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if session.Status != models.SessionStatusReviewed {
		t.Fatalf("session status = %s, want Reviewed", session.Status)
	}
	if session.TotalRows != 3 || len(session.Candidates) != 3 {
		t.Fatalf("got %d rows / %d candidates, want 3 / 3", session.TotalRows, len(session.Candidates))
	}
	if session.Candidates[1].ErrorMessage == "" {
		t.Fatal("row with empty required field should be flagged")
	}

	// The flagged row's preview highlights the gap.
	preview, err := workflow.PreviewCandidate(ctx, session.ID, 1)
	if err != nil {
		t.Fatalf("PreviewCandidate: %v", err)
	}
	if !strings.Contains(preview, `<span class="df-empty">`) {
		t.Errorf("preview of row with empty salary should carry the empty marker: %s", preview)
	}

	// Review: fix Bob's salary, approve Alice and Bob, reject Carol.
	if _, err := workflow.UpdateCandidateFields(ctx, session.ID, 1, map[string]string{"salary": "1000"}); err != nil {
		t.Fatalf("UpdateCandidateFields: %v", err)
	}
	preview, err = workflow.PreviewCandidate(ctx, session.ID, 1)
	if err != nil {
		t.Fatalf("PreviewCandidate (after fix): %v", err)
	}
	if !strings.Contains(preview, `<span class="df-filled">1000</span>`) {
		t.Errorf("preview after fix should substitute the corrected salary: %s", preview)
	}
	if _, err := workflow.PreviewCandidate(ctx, session.ID, 99); err == nil {
		t.Fatal("preview of an absent ordinal must fail")
	}
	fixed, err := models.GetCandidateByOrdinal(ctx, session.ID, 1)
	if err != nil {
		t.Fatalf("GetCandidateByOrdinal: %v", err)
	}
	if fixed.ErrorMessage != "" {
		t.Fatalf("fixed row still flagged: %q", fixed.ErrorMessage)
	}

	for _, ordinal := range []int{0, 1} {
		if _, err := workflow.SetCandidateStatus(ctx, session.ID, ordinal, models.CandidateStatusApproved); err != nil {
			t.Fatalf("approve row %d: %v", ordinal, err)
		}
	}
	if _, err := workflow.SetCandidateStatus(ctx, session.ID, 2, models.CandidateStatusRejected); err != nil {
		t.Fatalf("reject row 2: %v", err)
	}
	if _, err := workflow.SetCandidateStatus(ctx, session.ID, 2, models.CandidateStatusCreated); err == nil {
		t.Fatal("direct transition to Created must be refused")
	}

	reviewed, err := models.GetBatchSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetBatchSession: %v", err)
	}
	if reviewed.ApprovedCount != 2 || reviewed.ProcessedCount != 3 || reviewed.CreatedCount != 0 {
		t.Fatalf("pre-materialize counters = approved %d / processed %d / created %d, want 2 / 3 / 0",
			reviewed.ApprovedCount, reviewed.ProcessedCount, reviewed.CreatedCount)
	}

	// Materialize the approved rows.
	result, err := workflow.MaterializeSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("MaterializeSession: %v", err)
	}
	if result.Attempted != 2 || result.Created != 2 || result.Failed != 0 {
		t.Fatalf("result = %+v, want attempted=2 created=2 failed=0", result)
	}
	for _, id := range result.DocumentIds {
		doc, err := models.GetDocument(ctx, id)
		if err != nil {
			t.Fatalf("GetDocument(%s): %v", id, err)
		}
		if _, err := os.Stat(doc.StorageLocation); err != nil {
			t.Errorf("stored document missing on disk: %v", err)
		}
	}

	refreshed, err := models.GetBatchSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetBatchSession: %v", err)
	}
	if refreshed.Status != models.SessionStatusCompleted {
		t.Errorf("session status = %s, want Completed", refreshed.Status)
	}
	if refreshed.CreatedCount != 2 || refreshed.ApprovedCount != 0 {
		t.Errorf("counters = created %d / approved %d, want 2 / 0", refreshed.CreatedCount, refreshed.ApprovedCount)
	}

	// Re-invoking is a no-op: nothing is approved anymore.
	again, err := workflow.MaterializeSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("MaterializeSession (again): %v", err)
	}
	if again.Attempted != 0 || again.Created != 0 {
		t.Fatalf("second run = %+v, want attempted=0 created=0", again)
	}

	// Rejected rows stay editable after completion attempts on others.
	if _, err := workflow.SetCandidateStatus(ctx, session.ID, 2, models.CandidateStatusPending); err != nil {
		t.Fatalf("re-open rejected row: %v", err)
	}

	// Export today's documents.
	today := time.Now().UTC().Truncate(24 * time.Hour)
	loaded, err := models.GetTemplateWithFields(ctx, template.ID)
	if err != nil {
		t.Fatalf("GetTemplateWithFields: %v", err)
	}
	export, err := models.BuildExportFile(ctx, loaded, today, today)
	if err != nil {
		t.Fatalf("BuildExportFile: %v", err)
	}
	defer export.Close()
	rows, err := export.GetRows("Sheet1")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 { // header + 2 documents
		t.Fatalf("export has %d rows, want 3", len(rows))
	}
	if rows[0][0] != "Document Name" || rows[0][2] != "Name" {
		t.Errorf("unexpected header row: %v", rows[0])
	}
}

func TestMaterializePartialFailureLeavesRowsIndependent(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "docflow_test")
	t.Setenv("STORAGE_PROVIDER", "local")
	t.Setenv("DOCUMENT_STORAGE_DIR", t.TempDir())

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	template, err := models.CreateTemplate(ctx, &models.NewTemplate{
		Name:    "Service Note",
		Content: "<p>{{name}}</p>",
		Fields: []*models.NewField{
			{Name: "name", Label: "Name", Type: models.FieldTypeText, IsRequired: true},
		},
	})
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}

	rawRows := []*models.RawRow{
		{Ordinal: 0, Cells: map[string]string{"name": "Alice"}},
		{Ordinal: 1, Cells: map[string]string{"name": "Bob"}},
	}
	session, err := workflow.CreateSession(ctx, template.ID, "notes.xlsx", rawRows)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	for ordinal := 0; ordinal < 2; ordinal++ {
		if _, err := workflow.SetCandidateStatus(ctx, session.ID, ordinal, models.CandidateStatusApproved); err != nil {
			t.Fatalf("approve row %d: %v", ordinal, err)
		}
	}

	// Fail row 1's document insert and nothing else: the trigger nulls the
	// primary key for that one name, standing in for a transient database
	// error on a single row.
	db := config.GetDB()
	if err := db.WithContext(ctx).Exec(
		`CREATE TRIGGER documents_fail_bob BEFORE INSERT ON documents FOR EACH ROW
		 SET NEW.id = IF(NEW.name = 'Bob', NULL, NEW.id)`).Error; err != nil {
		t.Fatalf("install failure trigger: %v", err)
	}

	result, err := workflow.MaterializeSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("MaterializeSession: %v", err)
	}
	if result.Attempted != 2 || result.Created != 1 || result.Failed != 1 {
		t.Fatalf("result = %+v, want attempted=2 created=1 failed=1", result)
	}
	if len(result.Errors) != 1 || result.Errors[0].Ordinal != 1 {
		t.Fatalf("errors = %+v, want one error on ordinal 1", result.Errors)
	}

	// The failed row survives as Approved, with the problem on record.
	failed, err := models.GetCandidateByOrdinal(ctx, session.ID, 1)
	if err != nil {
		t.Fatalf("GetCandidateByOrdinal: %v", err)
	}
	if failed.Status != models.CandidateStatusApproved {
		t.Fatalf("failed row status = %s, want Approved", failed.Status)
	}
	if failed.ErrorMessage == "" {
		t.Fatal("failed row should carry an error message")
	}
	if failed.DocumentId != nil {
		t.Fatal("failed row must not reference a document")
	}

	// No orphan files for the failed row either.
	docs, err := models.ListDocuments(ctx, template.ID, true)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d documents, want 1", len(docs))
	}

	refreshed, err := models.GetBatchSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetBatchSession: %v", err)
	}
	if refreshed.ApprovedCount != 1 || refreshed.CreatedCount != 1 {
		t.Fatalf("counters = approved %d / created %d, want 1 / 1", refreshed.ApprovedCount, refreshed.CreatedCount)
	}

	// Clear the fault and retry: only the surviving Approved row is picked up.
	if err := db.WithContext(ctx).Exec("DROP TRIGGER documents_fail_bob").Error; err != nil {
		t.Fatalf("drop failure trigger: %v", err)
	}
	retry, err := workflow.MaterializeSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("MaterializeSession (retry): %v", err)
	}
	if retry.Attempted != 1 || retry.Created != 1 || retry.Failed != 0 {
		t.Fatalf("retry = %+v, want attempted=1 created=1 failed=0", retry)
	}

	final, err := models.GetBatchSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetBatchSession (final): %v", err)
	}
	if final.CreatedCount != 2 || final.ApprovedCount != 0 {
		t.Fatalf("final counters = created %d / approved %d, want 2 / 0", final.CreatedCount, final.ApprovedCount)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("docflow-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("docflow-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=docflow_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
