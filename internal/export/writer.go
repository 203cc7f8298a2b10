// Package export writes stored results as CSV or XLSX, one row per product.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"materialflow/internal/domain"
)

// UTF-8 BOM bytes for Excel compatibility on Windows.
var BOM = []byte{0xEF, 0xBB, 0xBF}

// Supported formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// columns defines the header row.
var columns = []string{
	"Document ID",
	"File Name",
	"Sender",
	"Subject",
	"Received At",
	"Completed At",
	"Outcome",
	"State",
	"Document Type",
	"Language",
	"Retry Count",
	"Product Index",
	"Product Status",
	"Action",
	"Confidence",
	"Name",
	"Brand",
	"Category",
	"Dimensions",
	"Material",
	"Color",
	"Finish",
	"Summary",
	"Error Kind",
	"Error",
	"Field Issues",
}

// Writer is a tabular result sink.
type Writer interface {
	WriteHeader() error
	WriteResults(results []domain.Result) error
	// Close flushes buffered rows to the underlying writer.
	Close() error
}

// NewWriter returns a Writer for format.
func NewWriter(format string, w io.Writer) (Writer, error) {
	switch strings.ToLower(format) {
	case "", FormatCSV:
		return NewCSVWriter(w), nil
	case FormatXLSX:
		return NewXLSXWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// CSVWriter wraps csv.Writer for exporting results as CSV.
type CSVWriter struct {
	csv *csv.Writer
}

// NewCSVWriter creates a CSVWriter that writes CSV to w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{csv: csv.NewWriter(w)}
}

func (w *CSVWriter) WriteHeader() error {
	return w.csv.Write(columns)
}

func (w *CSVWriter) WriteResults(results []domain.Result) error {
	for i := range results {
		for _, row := range resultRows(&results[i]) {
			if err := w.csv.Write(row); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *CSVWriter) Close() error {
	w.csv.Flush()
	return w.csv.Error()
}

// resultRows converts a result to one row per product. A result without
// products still yields one row carrying the document columns.
func resultRows(r *domain.Result) [][]string {
	base := make([]string, len(columns))
	base[0] = r.DocumentID
	base[1] = r.FileName
	base[2] = r.Sender
	base[3] = r.Subject
	base[4] = formatTime(r.ReceivedAt)
	base[5] = formatTime(r.CompletedAt)
	base[6] = string(r.Outcome)
	base[7] = string(r.State)
	base[8] = string(r.DocumentType)
	base[9] = r.Language
	base[10] = strconv.Itoa(r.RetryCount)

	if len(r.Products) == 0 {
		base[14] = formatConfidence(r.Confidence)
		base[23] = string(r.ErrorKind)
		base[24] = r.ErrorSummary
		return [][]string{base}
	}

	rows := make([][]string, 0, len(r.Products))
	for i := range r.Products {
		p := &r.Products[i]
		row := append([]string(nil), base...)
		row[11] = strconv.Itoa(p.Index)
		row[12] = string(p.Status)
		row[13] = string(p.Action)
		row[14] = formatConfidence(p.Confidence)
		row[15] = p.Metadata.Name.String()
		row[16] = p.Metadata.Brand.String()
		row[17] = p.Metadata.Category.String()
		row[18] = p.Metadata.Dimensions.String()
		row[19] = p.Metadata.Material.String()
		row[20] = p.Metadata.Color.String()
		row[21] = p.Metadata.Finish.String()
		row[22] = p.Metadata.Summary.String()
		row[23] = string(p.ErrorKind)
		row[24] = p.Error
		row[25] = fieldIssues(p.FieldStatuses)
		rows = append(rows, row)
	}
	return rows
}

// fieldIssues lists the fields that are not valid as "name=status", sorted.
func fieldIssues(statuses map[string]*domain.FieldStatus) string {
	var out []string
	for name, fs := range statuses {
		if fs != nil && fs.Status != domain.FieldStatusValid {
			out = append(out, name+"="+string(fs.Status))
		}
	}
	sort.Strings(out)
	return strings.Join(out, "; ")
}

func formatConfidence(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// nonAlphanumeric matches characters that are not alphanumeric, hyphen, or underscore.
var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// multiUnderscore matches consecutive underscores.
var multiUnderscore = regexp.MustCompile(`_{2,}`)

// SanitizeFilename replaces characters other than alphanumerics, hyphens
// and underscores with _, collapses runs of underscores, and truncates to 100 chars.
func SanitizeFilename(name string) string {
	s := nonAlphanumeric.ReplaceAllString(name, "_")
	s = multiUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// BuildFilename returns {sanitized_name}_{YYYY-MM-DD}.{format} for a
// Content-Disposition header.
func BuildFilename(name, format string, now time.Time) string {
	if format == "" {
		format = FormatCSV
	}
	sanitized := SanitizeFilename(name)
	if sanitized == "" {
		sanitized = "results"
	}
	return fmt.Sprintf("%s_%s.%s", sanitized, now.Format("2006-01-02"), format)
}
