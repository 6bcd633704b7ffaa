// Package contactlogtest holds the behaviour suite every contactlog.Store
// backend must pass.
package contactlogtest

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/advisorhub/internal/contactlog"
)

// Merchants used by the suite.
const (
	AlphaTaxID = int64(30712345678)
	BetaTaxID  = int64(20987654321)
)

// Opener returns a fresh, empty store. The suite closes it.
type Opener func(t *testing.T) contactlog.Store

// Sample returns a valid entry for taxID.
func Sample(taxID int64, advisor string) contactlog.Entry {
	return contactlog.Entry{
		Date:          time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		AdvisorName:   advisor,
		MerchantTaxID: taxID,
		MerchantName:  "Tienda Alpha",
		Channel:       contactlog.ChannelCall,
		Summary:       "monthly review",
		Commitment:    "send working capital offer",
		Priority:      contactlog.PriorityMedium,
	}
}

// Run exercises the Store contract against open.
func Run(t *testing.T, open Opener) {
	t.Run("AppendThenListNewestFirst", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		first, err := s.Append(Sample(AlphaTaxID, "Ana"))
		require.NoError(t, err)
		_, err = s.Append(Sample(BetaTaxID, "Ana"))
		require.NoError(t, err)

		before, err := s.ListByMerchant(AlphaTaxID)
		require.NoError(t, err)

		e := Sample(AlphaTaxID, "Luis")
		e.Summary = "second call"
		second, err := s.Append(e)
		require.NoError(t, err)

		after, err := s.ListByMerchant(AlphaTaxID)
		require.NoError(t, err)
		require.Len(t, after, len(before)+1)
		assert.Equal(t, second.ID, after[0].ID)
		assert.Equal(t, first.ID, after[1].ID)
		assert.Equal(t, "second call", after[0].Summary)
	})

	t.Run("AppendAssignsIDAndKeepsFields", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		e := Sample(AlphaTaxID, "  Ana ")
		e.Summary = "line one\nline two, with \"quotes\""
		got, err := s.Append(e)
		require.NoError(t, err)
		assert.NotEmpty(t, got.ID)
		assert.Equal(t, "Ana", got.AdvisorName)

		list, err := s.ListByMerchant(AlphaTaxID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		stored := list[0]
		assert.Equal(t, got.ID, stored.ID)
		assert.Equal(t, "2026-03-14", stored.DateString())
		assert.Equal(t, "Ana", stored.AdvisorName)
		assert.Equal(t, "Tienda Alpha", stored.MerchantName)
		assert.Equal(t, contactlog.ChannelCall, stored.Channel)
		assert.Equal(t, e.Summary, stored.Summary)
		assert.Equal(t, "send working capital offer", stored.Commitment)
		assert.Equal(t, contactlog.PriorityMedium, stored.Priority)
	})

	t.Run("LineEndingsStoredAlike", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		e := Sample(AlphaTaxID, "Ana")
		e.Summary = "line one\r\nline two"
		got, err := s.Append(e)
		require.NoError(t, err)
		assert.Equal(t, "line one\nline two", got.Summary)

		all, err := s.ExportAll()
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, got.Summary, all[0].Summary)
	})

	t.Run("EmptyTextFieldsAllowed", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		e := Sample(AlphaTaxID, "Ana")
		e.Summary, e.Commitment = "", ""
		_, err := s.Append(e)
		require.NoError(t, err)

		list, err := s.ListByMerchant(AlphaTaxID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Empty(t, list[0].Summary)
		assert.Empty(t, list[0].Commitment)
	})

	t.Run("EmptyAdvisorRejected", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		_, err := s.Append(Sample(AlphaTaxID, "Ana"))
		require.NoError(t, err)

		for _, name := range []string{"", "   "} {
			_, err := s.Append(Sample(AlphaTaxID, name))
			require.Error(t, err)
			assert.True(t, errors.Is(err, contactlog.ErrValidation), "err = %v", err)

			var verr *contactlog.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "advisor_name", verr.Field)
		}

		n, err := s.Len()
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("InvalidEnumsRejected", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		e := Sample(AlphaTaxID, "Ana")
		e.Channel = "Fax"
		_, err := s.Append(e)
		assert.ErrorIs(t, err, contactlog.ErrValidation)

		e = Sample(AlphaTaxID, "Ana")
		e.Priority = "Urgent"
		_, err = s.Append(e)
		assert.ErrorIs(t, err, contactlog.ErrValidation)

		e = Sample(0, "Ana")
		_, err = s.Append(e)
		assert.ErrorIs(t, err, contactlog.ErrValidation)

		n, err := s.Len()
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("ListUnknownMerchantEmpty", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		_, err := s.Append(Sample(AlphaTaxID, "Ana"))
		require.NoError(t, err)

		list, err := s.ListByMerchant(33444555667)
		require.NoError(t, err)
		assert.NotNil(t, list)
		assert.Empty(t, list)
	})

	t.Run("ExportAllAppendOrder", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		empty, err := s.ExportAll()
		require.NoError(t, err)
		assert.Empty(t, empty)

		var ids []string
		for i, tax := range []int64{AlphaTaxID, BetaTaxID, AlphaTaxID} {
			e := Sample(tax, "Ana")
			e.Date = e.Date.AddDate(0, 0, -i)
			got, err := s.Append(e)
			require.NoError(t, err)
			ids = append(ids, got.ID)
		}

		all, err := s.ExportAll()
		require.NoError(t, err)
		require.Len(t, all, 3)
		for i := range ids {
			assert.Equal(t, ids[i], all[i].ID)
		}
	})

	t.Run("DefaultsDateAndPriority", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		e := Sample(AlphaTaxID, "Ana")
		e.Date = time.Time{}
		e.Priority = ""
		got, err := s.Append(e)
		require.NoError(t, err)
		assert.Equal(t, time.Now().Format(contactlog.DateLayout), got.DateString())
		assert.Equal(t, contactlog.PriorityLow, got.Priority)
	})

	t.Run("ClosedStoreFails", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Close())

		_, err := s.Append(Sample(AlphaTaxID, "Ana"))
		assert.ErrorIs(t, err, contactlog.ErrStoreIO)
	})
}
