// package formatter renders migration run results and job ledgers for the
// terminal (styled), CSV, and JSON.
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/pipeline"
)

// Palette is a simple stylesheet built with named [lipgloss.Style] fields.
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

// NewPalette builds a palette from foreground hex colors for the title, ok,
// error, warning, and help styles.
func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: newBold(t).MarginBottom(1),
		ok:    newBold(s),
		err:   newBold(e),
		warn:  newStyle(w),
		help:  newEm(h),
	}
}

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

func newStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func newBold(fg string) lipgloss.Style {
	return newStyle(fg).Bold(true)
}

func newEm(fg string) lipgloss.Style {
	return newStyle(fg).Italic(true)
}

// RenderRunSummary renders a styled terminal summary of one migration run.
func RenderRunSummary(job *models.Job, result *pipeline.RunResult) string {
	var buf bytes.Buffer

	buf.WriteString(styles.title.Render(fmt.Sprintf("Migration %s (%s → destination)", job.ID, job.Platform)))
	buf.WriteString("\n")
	buf.WriteString(fmt.Sprintf("Environment: %s\n", job.Environment))
	buf.WriteString(fmt.Sprintf("Candidates:  %d\n", result.Total))
	buf.WriteString(fmt.Sprintf("Submitted:   %s\n", styles.ok.Render(strconv.Itoa(result.Submitted))))
	buf.WriteString(fmt.Sprintf("Skipped:     %s\n", styles.warn.Render(strconv.Itoa(result.Skipped))))
	buf.WriteString(fmt.Sprintf("Failed:      %s\n", styles.err.Render(strconv.Itoa(result.Failed))))

	for _, outcome := range result.Outcomes {
		if outcome.Err == nil {
			continue
		}
		buf.WriteString(styles.err.Render(fmt.Sprintf("  %s: %v", outcome.SourceID, outcome.Err)))
		buf.WriteString("\n")
	}

	if result.Submitted > 0 {
		buf.WriteString(styles.help.Render("Submitted videos finish asynchronously; poll job status for completion."))
		buf.WriteString("\n")
	}

	return buf.String()
}

// RenderJobStatus renders a job's lifecycle state and its report ledger.
func RenderJobStatus(job *models.Job, reports []models.Report) string {
	var buf bytes.Buffer

	buf.WriteString(styles.title.Render(fmt.Sprintf("Job %s", job.ID)))
	buf.WriteString("\n")
	buf.WriteString(fmt.Sprintf("Platform:    %s\n", job.Platform))
	buf.WriteString(fmt.Sprintf("Environment: %s\n", job.Environment))
	buf.WriteString(fmt.Sprintf("Status:      %s\n", renderJobStatus(job.Status)))
	if job.Error != "" {
		buf.WriteString(fmt.Sprintf("Error:       %s\n", styles.err.Render(job.Error)))
	}

	if len(reports) == 0 {
		buf.WriteString(styles.help.Render("No reports recorded."))
		buf.WriteString("\n")
		return buf.String()
	}

	buf.WriteString(fmt.Sprintf("\nReports (%d):\n", len(reports)))
	for _, report := range reports {
		line := fmt.Sprintf("  %s  %-12s %3d%%", report.CreatedAt.Format(time.RFC3339), report.Status, report.Progress)
		if report.Reason != "" {
			line += "  " + report.Reason
		}
		buf.WriteString(fmt.Sprintf("%s  %s\n", line, styles.help.Render(report.VideoID)))
	}

	return buf.String()
}

func renderJobStatus(status models.JobStatus) string {
	switch status {
	case models.JobCompleted:
		return styles.ok.Render(string(status))
	case models.JobFailed, models.JobAbandoned:
		return styles.err.Render(string(status))
	default:
		return styles.warn.Render(string(status))
	}
}

// ExportReportsCSV converts a report ledger to CSV with columns:
// VideoID, Status, Progress, Reason, CreatedAt
func ExportReportsCSV(reports []models.Report) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"VideoID", "Status", "Progress", "Reason", "CreatedAt"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, report := range reports {
		record := []string{
			report.VideoID,
			string(report.Status),
			strconv.Itoa(report.Progress),
			report.Reason,
			report.CreatedAt.Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ToJobJSON generates an indented JSON representation of a job and its ledger.
func ToJobJSON(job *models.Job, reports []models.Report) ([]byte, error) {
	payload := struct {
		JobID       string           `json:"jobId"`
		Environment string           `json:"environment"`
		Platform    string           `json:"platform"`
		Status      models.JobStatus `json:"status"`
		Error       string           `json:"error,omitempty"`
		Reports     []models.Report  `json:"reports"`
	}{
		JobID:       job.ID,
		Environment: job.Environment,
		Platform:    job.Platform,
		Status:      job.Status,
		Error:       job.Error,
		Reports:     reports,
	}
	return json.MarshalIndent(payload, "", "  ")
}

// ExportResult contains the paths of files created by WriteJobExport.
type ExportResult struct {
	ReportsFile  string
	MetadataFile string
}

// WriteJobExport exports a job's ledger to CSV with an accompanying metadata
// JSON file.
//
// Defaults to the job ID as the base filename & creates {base}_reports.csv and
// {base}_job.json
func WriteJobExport(job *models.Job, reports []models.Report, baseFilepath string) (*ExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = job.ID
	}

	csvData, err := ExportReportsCSV(reports)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	reportsFile := baseFilepath + "_reports.csv"
	if err := os.WriteFile(reportsFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	metadataJSON, err := ToJobJSON(job, reports)
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata JSON: %w", err)
	}

	metadataFile := baseFilepath + "_job.json"
	if err := os.WriteFile(metadataFile, metadataJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write metadata file: %w", err)
	}

	return &ExportResult{
		ReportsFile:  reportsFile,
		MetadataFile: metadataFile,
	}, nil
}
