// Package advisor ties the portfolio catalog to the contact log: pick a
// merchant, read its history, record a contact.
package advisor

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kalambet/advisorhub/internal/contactlog"
	"github.com/kalambet/advisorhub/internal/portfolio"
)

// ContactInput is what an advisor submits for one interaction.
type ContactInput struct {
	Date        time.Time
	AdvisorName string
	Channel     contactlog.Channel
	Summary     string
	Commitment  string
	Priority    contactlog.Priority
}

// ParseContact builds a ContactInput from raw form values. An empty
// priority or date is left for the store to default.
func ParseContact(advisorName, channel, priority, summary, commitment, date string) (ContactInput, error) {
	in := ContactInput{AdvisorName: advisorName, Summary: summary, Commitment: commitment}
	var err error
	if in.Channel, err = contactlog.ParseChannel(channel); err != nil {
		return ContactInput{}, err
	}
	if strings.TrimSpace(priority) != "" {
		if in.Priority, err = contactlog.ParsePriority(priority); err != nil {
			return ContactInput{}, err
		}
	}
	if in.Date, err = contactlog.ParseDate(date); err != nil {
		return ContactInput{}, err
	}
	return in, nil
}

// Dashboard is the per-merchant view: metrics plus contact activity.
type Dashboard struct {
	Merchant    portfolio.Merchant `json:"merchant"`
	Label       string             `json:"label"`
	Contacts    int                `json:"contacts"`
	LastContact *contactlog.Entry  `json:"last_contact,omitempty"`
	Suggestion  string             `json:"suggestion"`
}

// Service is constructed once per process and shared by every surface.
type Service struct {
	catalog *portfolio.Catalog
	log     contactlog.Store
	logger  *zap.Logger
}

// NewService binds catalog and store. The catalog snapshot is the one used
// both for listing options and for resolving selections.
func NewService(catalog *portfolio.Catalog, store contactlog.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{catalog: catalog, log: store, logger: logger}
}

// Catalog returns the snapshot the service resolves against.
func (s *Service) Catalog() *portfolio.Catalog { return s.catalog }

// Merchants lists the portfolio in load order.
func (s *Service) Merchants() []portfolio.Merchant { return s.catalog.Merchants() }

// Merchant resolves a tax id, display label or name.
func (s *Service) Merchant(ref string) (portfolio.Merchant, error) {
	return s.catalog.Resolve(ref)
}

// History returns the merchant and its contacts, most recent first.
func (s *Service) History(ref string) (portfolio.Merchant, []contactlog.Entry, error) {
	m, err := s.catalog.Resolve(ref)
	if err != nil {
		return portfolio.Merchant{}, nil, err
	}
	entries, err := s.log.ListByMerchant(m.TaxID)
	if err != nil {
		return m, nil, fmt.Errorf("listing contacts of %d: %w", m.TaxID, err)
	}
	return m, entries, nil
}

// LogContact records an interaction against the merchant's tax id.
func (s *Service) LogContact(ref string, in ContactInput) (contactlog.Entry, error) {
	m, err := s.catalog.Resolve(ref)
	if err != nil {
		return contactlog.Entry{}, err
	}
	e, err := s.log.Append(contactlog.Entry{
		Date:          in.Date,
		AdvisorName:   in.AdvisorName,
		MerchantTaxID: m.TaxID,
		MerchantName:  m.Name,
		Channel:       in.Channel,
		Summary:       in.Summary,
		Commitment:    in.Commitment,
		Priority:      in.Priority,
	})
	if err != nil {
		s.logger.Warn("contact rejected", zap.Int64("merchant_tax_id", m.TaxID), zap.Error(err))
		return contactlog.Entry{}, err
	}
	s.logger.Info("contact logged",
		zap.String("id", e.ID),
		zap.Int64("merchant_tax_id", m.TaxID),
		zap.String("advisor", e.AdvisorName),
		zap.String("priority", string(e.Priority)),
	)
	return e, nil
}

// Export returns the full log in append order.
func (s *Service) Export() ([]contactlog.Entry, error) {
	entries, err := s.log.ExportAll()
	if err != nil {
		return nil, fmt.Errorf("exporting contact log: %w", err)
	}
	return entries, nil
}

// Dashboard builds the merchant view shown after selection.
func (s *Service) Dashboard(ref string) (Dashboard, error) {
	m, entries, err := s.History(ref)
	if err != nil {
		return Dashboard{}, err
	}
	d := Dashboard{
		Merchant:   m,
		Label:      m.DisplayLabel(),
		Contacts:   len(entries),
		Suggestion: Suggest(m, entries),
	}
	if len(entries) > 0 {
		last := entries[0]
		d.LastContact = &last
	}
	return d, nil
}
