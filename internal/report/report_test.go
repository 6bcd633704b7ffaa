package report

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/advisorhub/internal/contactlog"
	"github.com/kalambet/advisorhub/internal/portfolio"
)

func sampleEntries() []contactlog.Entry {
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	return []contactlog.Entry{
		{ID: "a1", Date: day, AdvisorName: "Ana", MerchantTaxID: 30712345678, MerchantName: "Tienda Alpha", Channel: contactlog.ChannelCall, Summary: "monthly review", Priority: contactlog.PriorityMedium},
		{ID: "b1", Date: day, AdvisorName: "Luis", MerchantTaxID: 20987654321, MerchantName: "Bazar Beta", Channel: contactlog.ChannelEmail, Summary: "retención, \"urgente\"", Commitment: "call back", Priority: contactlog.PriorityHigh},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatCSV, "csv": FormatCSV, "jsonl": FormatJSONL, "pdf": FormatPDF} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xlsx")
	assert.Error(t, err)

	assert.Equal(t, "application/pdf", FormatPDF.ContentType())
	assert.Equal(t, "contact_log_20260314.jsonl", FormatJSONL.Filename(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)))
}

// TestWriteCSV_ReopensAsBackend checks that a CSV export is itself a valid contact log.
func TestWriteCSV_ReopensAsBackend(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleEntries()))

	firstLine, _, _ := strings.Cut(buf.String(), "\n")
	assert.Equal(t, contactlog.SchemaMarker, firstLine)

	path := filepath.Join(t.TempDir(), "export.csv")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	s, err := contactlog.OpenCSV(path, nil)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.ExportAll()
	require.NoError(t, err)
	assert.Equal(t, sampleEntries(), got)
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, contactlog.SchemaMarker+"\n"+strings.Join(contactlog.CSVHeader, ",")+"\n", buf.String())
}

func TestWriteJSONL(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSONL(&buf, sampleEntries()))

	sc := bufio.NewScanner(&buf)
	var lines []map[string]any
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "2026-03-14", lines[0]["date"])
	assert.Equal(t, "Ana", lines[0]["advisor_name"])
	assert.Equal(t, float64(20987654321), lines[1]["merchant_tax_id"])
	assert.Equal(t, "High", lines[1]["priority"])
}

func TestPDF(t *testing.T) {
	catalog, err := portfolio.Load()
	require.NoError(t, err)

	entries := append(sampleEntries(), contactlog.Entry{
		ID: "x1", Date: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), AdvisorName: "Ana",
		MerchantTaxID: 27000000001, MerchantName: "Gone Shop", Channel: contactlog.ChannelChat, Priority: contactlog.PriorityLow,
	})
	b, err := PDF(entries, catalog, time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(b, []byte("%PDF-")))

	r, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	require.NoError(t, err)
	require.GreaterOrEqual(t, r.NumPage(), 1)

	text, err := r.GetPlainText()
	require.NoError(t, err)
	var sb bytes.Buffer
	_, err = sb.ReadFrom(text)
	require.NoError(t, err)
	assert.Contains(t, sb.String(), "Tienda Alpha")
}

func TestWrite_Dispatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSONL, sampleEntries(), nil))
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))

	buf.Reset()
	require.NoError(t, Write(&buf, FormatPDF, nil, nil))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "retenc...", truncate("retención larga", 9))
}
