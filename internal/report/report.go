// Package report serializes contact log exports for download.
package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf/v2"

	"github.com/kalambet/advisorhub/internal/contactlog"
	"github.com/kalambet/advisorhub/internal/portfolio"
)

// Format is an export encoding.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
	FormatPDF   Format = "pdf"
)

// ParseFormat validates an export format name; empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatJSONL, FormatPDF:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown export format %q (want csv, jsonl or pdf)", s)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	switch f {
	case FormatJSONL:
		return "application/x-ndjson"
	case FormatPDF:
		return "application/pdf"
	}
	return "text/csv"
}

// Filename returns the download name for an export taken at t.
func (f Format) Filename(t time.Time) string {
	return fmt.Sprintf("contact_log_%s.%s", t.Format("20060102"), f)
}

// Write encodes entries in format f. The catalog is only used by PDF.
func Write(w io.Writer, f Format, entries []contactlog.Entry, catalog *portfolio.Catalog) error {
	switch f {
	case FormatJSONL:
		return WriteJSONL(w, entries)
	case FormatPDF:
		b, err := PDF(entries, catalog, time.Now())
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	}
	return WriteCSV(w, entries)
}

// WriteCSV writes entries in the contact log file format, schema marker included,
// so an export can be reopened as a CSV backend.
func WriteCSV(w io.Writer, entries []contactlog.Entry) error {
	if _, err := io.WriteString(w, contactlog.SchemaMarker+"\n"); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(contactlog.CSVHeader); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write(contactlog.EncodeRecord(e)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type jsonlRecord struct {
	ID            string `json:"id"`
	Date          string `json:"date"`
	AdvisorName   string `json:"advisor_name"`
	MerchantTaxID int64  `json:"merchant_tax_id"`
	MerchantName  string `json:"merchant_name"`
	Channel       string `json:"channel"`
	Summary       string `json:"summary"`
	Commitment    string `json:"commitment"`
	Priority      string `json:"priority"`
}

// WriteJSONL writes one JSON object per entry.
func WriteJSONL(w io.Writer, entries []contactlog.Entry) error {
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(jsonlRecord{
			ID:            e.ID,
			Date:          e.DateString(),
			AdvisorName:   e.AdvisorName,
			MerchantTaxID: e.MerchantTaxID,
			MerchantName:  e.MerchantName,
			Channel:       string(e.Channel),
			Summary:       e.Summary,
			Commitment:    e.Commitment,
			Priority:      string(e.Priority),
		}); err != nil {
			return err
		}
	}
	return nil
}

// PDF renders a portfolio contact report: one section per merchant with its
// metrics and contacts, most recent first.
func PDF(entries []contactlog.Entry, catalog *portfolio.Catalog, generated time.Time) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 10)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(277, 10, "Merchant Advisor Hub - Contact Report", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(277, 6, fmt.Sprintf("Generated: %s", generated.Format("02-Jan-2006 15:04")), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	byMerchant := make(map[int64][]contactlog.Entry)
	for i := len(entries) - 1; i >= 0; i-- {
		byMerchant[entries[i].MerchantTaxID] = append(byMerchant[entries[i].MerchantTaxID], entries[i])
	}

	var merchants []portfolio.Merchant
	if catalog != nil {
		merchants = catalog.Merchants()
	}
	known := make(map[int64]bool, len(merchants))
	for _, m := range merchants {
		known[m.TaxID] = true
		pdf.SetFillColor(240, 240, 240)
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(277, 8, tr(m.DisplayLabel()), "1", 1, "L", true, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(92, 7, fmt.Sprintf("Sales: $%.2f", m.MonthlySales), "LB", 0, "L", false, 0, "")
		pdf.CellFormat(92, 7, fmt.Sprintf("Previous month: $%.2f", m.PreviousMonthSales), "B", 0, "L", false, 0, "")
		pdf.CellFormat(93, 7, fmt.Sprintf("Variance: %.2f%% | %s", m.Variance, m.Status), "RB", 1, "L", false, 0, "")
		contactTable(pdf, tr, byMerchant[m.TaxID])
		pdf.Ln(4)
	}

	var orphans []contactlog.Entry
	for i := len(entries) - 1; i >= 0; i-- {
		if !known[entries[i].MerchantTaxID] {
			orphans = append(orphans, entries[i])
		}
	}
	if len(orphans) > 0 {
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(277, 8, "Contacts for merchants outside the portfolio", "1", 1, "L", true, 0, "")
		contactTable(pdf, tr, orphans)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("rendering PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func contactTable(pdf *gofpdf.Fpdf, tr func(string) string, entries []contactlog.Entry) {
	if len(entries) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.CellFormat(277, 7, "No contacts recorded.", "1", 1, "L", false, 0, "")
		return
	}

	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(200, 200, 200)
	widths := []float64{25, 35, 25, 20, 102, 70}
	for i, h := range []string{"Date", "Advisor", "Channel", "Priority", "Summary", "Commitment"} {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, e := range entries {
		cells := []string{e.DateString(), e.AdvisorName, string(e.Channel), string(e.Priority), truncate(e.Summary, 70), truncate(e.Commitment, 45)}
		for i, c := range cells {
			pdf.CellFormat(widths[i], 6, tr(c), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
