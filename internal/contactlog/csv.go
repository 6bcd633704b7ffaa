package contactlog

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SchemaMarker is the first line of a contact log file. Bump the version
// whenever CSVHeader changes.
const SchemaMarker = "#advisorhub-contact-log v1"

// CSVHeader is the column layout of schema v1.
var CSVHeader = []string{"Fecha", "Asesor", "Merchant", "CUIT", "Canal", "Resumen", "Compromiso", "Prioridad", "ID"}

// EncodeRecord returns e as a schema v1 CSV record.
func EncodeRecord(e Entry) []string {
	return []string{
		e.DateString(),
		e.AdvisorName,
		e.MerchantName,
		strconv.FormatInt(e.MerchantTaxID, 10),
		string(e.Channel),
		e.Summary,
		e.Commitment,
		string(e.Priority),
		e.ID,
	}
}

// DecodeRecord parses a schema v1 CSV record.
func DecodeRecord(rec []string) (Entry, error) {
	if len(rec) != len(CSVHeader) {
		return Entry{}, fmt.Errorf("expected %d columns, got %d", len(CSVHeader), len(rec))
	}
	date, err := time.Parse(DateLayout, rec[0])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing date %q: %w", rec[0], err)
	}
	taxID, err := strconv.ParseInt(rec[3], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing CUIT %q: %w", rec[3], err)
	}
	channel, err := ParseChannel(rec[4])
	if err != nil {
		return Entry{}, err
	}
	priority, err := ParsePriority(rec[7])
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		ID:            rec[8],
		Date:          date,
		AdvisorName:   rec[1],
		MerchantName:  rec[2],
		MerchantTaxID: taxID,
		Channel:       channel,
		Summary:       rec[5],
		Commitment:    rec[6],
		Priority:      priority,
	}, nil
}

// CSVStore persists the log to a flat CSV file.
//
// Append writes exactly one record at the end of the file and syncs it; the
// file is never rewritten. Reads re-scan the file. The mutex serializes
// writers inside one process only: two processes appending to the same file
// are not coordinated, so the file must have a single owning process.
type CSVStore struct {
	mu     sync.Mutex
	path   string
	f      logFile
	logger *zap.Logger
}

// logFile is the part of *os.File the store uses.
type logFile interface {
	io.ReadWriteSeeker
	io.Closer
	Stat() (os.FileInfo, error)
	Sync() error
	Truncate(size int64) error
}

// OpenCSV opens or creates the log file at path. An existing file must carry
// the schema marker and header; anything else is a StoreIOError. A file whose
// last record lacks a line terminator, as some editors save it, gets one
// before the first append.
func OpenCSV(path string, logger *zap.Logger) (*CSVStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, ioError("open", path, fmt.Errorf("creating data directory: %w", err))
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, ioError("open", path, err)
	}

	s := &CSVStore{path: path, f: f, logger: logger}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ioError("open", path, err)
	}
	if info.Size() == 0 {
		if err := s.writeHeader(); err != nil {
			f.Close()
			return nil, err
		}
	}

	entries, err := s.readAll()
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := s.terminateLastLine(); err != nil {
		f.Close()
		return nil, err
	}
	logger.Info("contact log opened", zap.String("backend", "csv"), zap.String("path", path), zap.Int("entries", len(entries)))
	return s, nil
}

// terminateLastLine writes a newline if the file does not end with one.
func (s *CSVStore) terminateLastLine() error {
	info, err := s.f.Stat()
	if err != nil {
		return ioError("open", s.path, err)
	}
	if info.Size() == 0 {
		return nil
	}
	if _, err := s.f.Seek(-1, io.SeekEnd); err != nil {
		return ioError("open", s.path, err)
	}
	last := make([]byte, 1)
	if _, err := io.ReadFull(s.f, last); err != nil {
		return ioError("open", s.path, err)
	}
	if last[0] == '\n' {
		return nil
	}
	if _, err := s.f.Write([]byte{'\n'}); err != nil {
		return ioError("open", s.path, err)
	}
	if err := s.f.Sync(); err != nil {
		return ioError("open", s.path, err)
	}
	s.logger.Warn("contact log had an unterminated last line, terminated it", zap.String("path", s.path))
	return nil
}

func (s *CSVStore) writeHeader() error {
	var buf bytes.Buffer
	buf.WriteString(SchemaMarker + "\n")
	w := csv.NewWriter(&buf)
	if err := w.Write(CSVHeader); err != nil {
		return ioError("init", s.path, err)
	}
	w.Flush()
	if _, err := s.f.Write(buf.Bytes()); err != nil {
		return ioError("init", s.path, err)
	}
	if err := s.f.Sync(); err != nil {
		return ioError("init", s.path, err)
	}
	return nil
}

// readAll scans the whole file from the start. Callers hold s.mu or own s exclusively.
func (s *CSVStore) readAll() ([]Entry, error) {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return nil, ioError("read", s.path, err)
	}
	br := bufio.NewReader(s.f)
	marker, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, ioError("read", s.path, err)
	}
	if strings.TrimRight(marker, "\r\n") != SchemaMarker {
		return nil, ioError("read", s.path, fmt.Errorf("missing or unsupported schema marker %q", strings.TrimSpace(marker)))
	}

	r := csv.NewReader(br)
	r.FieldsPerRecord = len(CSVHeader)
	header, err := r.Read()
	if err != nil {
		return nil, ioError("read", s.path, fmt.Errorf("reading header: %w", err))
	}
	for i, col := range CSVHeader {
		if header[i] != col {
			return nil, ioError("read", s.path, fmt.Errorf("unexpected header column %d: %q, want %q", i+1, header[i], col))
		}
	}

	var entries []Entry
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, ioError("read", s.path, err)
		}
		e, err := DecodeRecord(rec)
		if err != nil {
			line, _ := r.FieldPos(0)
			return nil, ioError("read", s.path, fmt.Errorf("line %d: %w", line+1, err))
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Path returns the file backing the store.
func (s *CSVStore) Path() string { return s.path }

func (s *CSVStore) Append(e Entry) (Entry, error) {
	e, err := Prepare(e)
	if err != nil {
		return Entry{}, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(EncodeRecord(e)); err != nil {
		return Entry{}, ioError("append", s.path, err)
	}
	w.Flush()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return Entry{}, ioError("append", s.path, ErrClosed)
	}
	info, err := s.f.Stat()
	if err != nil {
		return Entry{}, ioError("append", s.path, err)
	}
	prevSize := info.Size()
	if _, err := s.f.Write(buf.Bytes()); err != nil {
		return Entry{}, s.rollback(prevSize, err)
	}
	if err := s.f.Sync(); err != nil {
		return Entry{}, s.rollback(prevSize, err)
	}
	s.logger.Debug("contact appended", zap.String("id", e.ID), zap.Int64("merchant_tax_id", e.MerchantTaxID))
	return e, nil
}

// rollback cuts the file back to size after a failed append so a partial
// record never stays behind. Callers hold s.mu.
func (s *CSVStore) rollback(size int64, cause error) error {
	if err := s.f.Truncate(size); err != nil {
		s.logger.Error("rolling back partial contact append", zap.String("path", s.path), zap.Error(err))
		return ioError("append", s.path, errors.Join(cause, fmt.Errorf("truncating partial record: %w", err)))
	}
	return ioError("append", s.path, cause)
}

func (s *CSVStore) ListByMerchant(taxID int64) ([]Entry, error) {
	entries, err := s.snapshot("list")
	if err != nil {
		return nil, err
	}
	return newestFirst(entries, taxID), nil
}

func (s *CSVStore) ExportAll() ([]Entry, error) {
	entries, err := s.snapshot("export")
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

func (s *CSVStore) Len() (int, error) {
	entries, err := s.snapshot("len")
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (s *CSVStore) snapshot(op string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil, ioError(op, s.path, ErrClosed)
	}
	return s.readAll()
}

func (s *CSVStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
