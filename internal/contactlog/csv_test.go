package contactlog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// diskFullFile writes half of every buffer and then fails.
type diskFullFile struct {
	*os.File
}

func (f diskFullFile) Write(p []byte) (int, error) {
	n, _ := f.File.Write(p[:len(p)/2])
	return n, errors.New("no space left on device")
}

// syncFailFile writes normally but cannot sync.
type syncFailFile struct {
	*os.File
}

func (f syncFailFile) Sync() error { return errors.New("input/output error") }

func sampleEntry(summary string) Entry {
	return Entry{
		Date:          time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		AdvisorName:   "Ana",
		MerchantTaxID: 30712345678,
		MerchantName:  "Tienda Alpha",
		Channel:       ChannelCall,
		Summary:       summary,
		Priority:      PriorityHigh,
	}
}

func TestCSVStore_FailedAppendLeavesFileReadable(t *testing.T) {
	tests := []struct {
		name string
		wrap func(*os.File) logFile
	}{
		{"partial write", func(f *os.File) logFile { return diskFullFile{f} }},
		{"failed sync", func(f *os.File) logFile { return syncFailFile{f} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "contacts.csv")
			s, err := OpenCSV(path, nil)
			require.NoError(t, err)
			defer s.Close()

			first, err := s.Append(sampleEntry("first"))
			require.NoError(t, err)
			before, err := os.ReadFile(path)
			require.NoError(t, err)

			orig := s.f.(*os.File)
			s.f = tt.wrap(orig)
			_, err = s.Append(sampleEntry("lost"))
			require.ErrorIs(t, err, ErrStoreIO)
			s.f = orig

			after, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, before, after)

			second, err := s.Append(sampleEntry("second"))
			require.NoError(t, err)
			all, err := s.ExportAll()
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, first.ID, all[0].ID)
			assert.Equal(t, second.ID, all[1].ID)
		})
	}
}
