// Package portfolio holds the advisor's read-only merchant catalog.
//
// A Catalog is an immutable snapshot: option labels and lookups are both
// served from the same snapshot so a selection can never go stale.
package portfolio

import (
	"fmt"
	"strconv"
	"strings"
)

// seed is the fixed portfolio assigned to the advisor.
var seed = []Merchant{
	{TaxID: 30712345678, MerchantNumber: 123456789, Name: "Tienda Alpha", MonthlySales: 15000, PreviousMonthSales: 14000, Status: StatusStable},
	{TaxID: 20987654321, MerchantNumber: 987654321, Name: "Bazar Beta", MonthlySales: 8000, PreviousMonthSales: 9500, Status: StatusAtRisk},
	{TaxID: 33444555667, MerchantNumber: 456123789, Name: "Moda Gamma", MonthlySales: 12000, PreviousMonthSales: 10000, Status: StatusPotential},
}

// Catalog is a validated, immutable set of merchants.
type Catalog struct {
	merchants []Merchant
	byTaxID   map[int64]int
	byLabel   map[string]int
}

// Summary aggregates the portfolio for the dashboard header.
type Summary struct {
	Merchants         int            `json:"merchants"`
	TotalSales        float64        `json:"total_sales"`
	PreviousSales     float64        `json:"previous_sales"`
	Variance          float64        `json:"variance"`
	VarianceAvailable bool           `json:"variance_available"`
	ByStatus          map[Status]int `json:"by_status"`
}

// Load builds the fixed portfolio. It is deterministic and has no side effects.
func Load() (*Catalog, error) {
	return New(seed)
}

// New validates records, derives each variance and returns a snapshot.
// The input slice is copied.
func New(records []Merchant) (*Catalog, error) {
	c := &Catalog{
		merchants: make([]Merchant, 0, len(records)),
		byTaxID:   make(map[int64]int, len(records)),
		byLabel:   make(map[string]int, len(records)),
	}
	for _, m := range records {
		if err := m.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byTaxID[m.TaxID]; dup {
			return nil, fmt.Errorf("%w: duplicate tax id %d", ErrInvalid, m.TaxID)
		}
		v, err := Variance(m.MonthlySales, m.PreviousMonthSales)
		if err != nil {
			return nil, fmt.Errorf("merchant %d (%s): %w", m.TaxID, m.Name, err)
		}
		m.Variance = v

		idx := len(c.merchants)
		c.merchants = append(c.merchants, m)
		c.byTaxID[m.TaxID] = idx
		c.byLabel[m.DisplayLabel()] = idx
	}
	return c, nil
}

// Len returns the number of merchants.
func (c *Catalog) Len() int { return len(c.merchants) }

// Merchants returns a copy of the catalog in load order.
func (c *Catalog) Merchants() []Merchant {
	out := make([]Merchant, len(c.merchants))
	copy(out, c.merchants)
	return out
}

// Labels returns the selectable display labels in load order.
func (c *Catalog) Labels() []string {
	out := make([]string, len(c.merchants))
	for i, m := range c.merchants {
		out[i] = m.DisplayLabel()
	}
	return out
}

// FindByDisplayLabel returns the merchant whose DisplayLabel equals label.
func (c *Catalog) FindByDisplayLabel(label string) (Merchant, error) {
	idx, ok := c.byLabel[label]
	if !ok {
		return Merchant{}, fmt.Errorf("%w: label %q", ErrNotFound, label)
	}
	return c.merchants[idx], nil
}

// FindByTaxID returns the merchant with the given CUIT.
func (c *Catalog) FindByTaxID(taxID int64) (Merchant, error) {
	idx, ok := c.byTaxID[taxID]
	if !ok {
		return Merchant{}, fmt.Errorf("%w: tax id %d", ErrNotFound, taxID)
	}
	return c.merchants[idx], nil
}

// Resolve accepts a tax id, a display label or a merchant name
// (case-insensitive, exact) and returns the matching merchant.
func (c *Catalog) Resolve(ref string) (Merchant, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Merchant{}, fmt.Errorf("%w: empty reference", ErrNotFound)
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return c.FindByTaxID(id)
	}
	if m, err := c.FindByDisplayLabel(ref); err == nil {
		return m, nil
	}
	for _, m := range c.merchants {
		if strings.EqualFold(m.Name, ref) {
			return m, nil
		}
	}
	return Merchant{}, fmt.Errorf("%w: %q", ErrNotFound, ref)
}

// Summary computes portfolio totals.
func (c *Catalog) Summary() Summary {
	s := Summary{
		Merchants: len(c.merchants),
		ByStatus:  make(map[Status]int),
	}
	for _, m := range c.merchants {
		s.TotalSales += m.MonthlySales
		s.PreviousSales += m.PreviousMonthSales
		s.ByStatus[m.Status]++
	}
	if v, err := Variance(s.TotalSales, s.PreviousSales); err == nil {
		s.Variance = v
		s.VarianceAvailable = true
	}
	return s
}
