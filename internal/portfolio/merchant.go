package portfolio

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrNotFound is returned when a label, tax id or name matches no merchant.
	ErrNotFound = errors.New("merchant not found")

	// ErrInvalid is returned when a merchant record fails validation.
	ErrInvalid = errors.New("invalid merchant record")

	// ErrUndefinedVariance is returned when the previous month had no sales.
	ErrUndefinedVariance = fmt.Errorf("%w: variance undefined for zero previous month sales", ErrInvalid)
)

// Status is the health label an advisor sees for a merchant.
type Status string

const (
	StatusStable    Status = "Stable"
	StatusAtRisk    Status = "AtRisk"
	StatusPotential Status = "Potential"
)

var statusAliases = map[string]Status{
	"stable":    StatusStable,
	"estable":   StatusStable,
	"atrisk":    StatusAtRisk,
	"at risk":   StatusAtRisk,
	"en riesgo": StatusAtRisk,
	"potential": StatusPotential,
	"potencial": StatusPotential,
}

// ParseStatus accepts canonical names and the dashboard's Spanish labels.
func ParseStatus(s string) (Status, error) {
	if st, ok := statusAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalid, s)
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusStable, StatusAtRisk, StatusPotential:
		return true
	}
	return false
}

// Merchant is one account of the advisor's portfolio.
type Merchant struct {
	TaxID              int64   `json:"tax_id"`
	MerchantNumber     int64   `json:"merchant_number"`
	Name               string  `json:"name"`
	MonthlySales       float64 `json:"monthly_sales"`
	PreviousMonthSales float64 `json:"previous_month_sales"`
	Status             Status  `json:"status"`
	Variance           float64 `json:"variance"`
}

// DisplayLabel is the composite selection key shown to the advisor.
func (m Merchant) DisplayLabel() string {
	return m.Name + " | CUIT: " + strconv.FormatInt(m.TaxID, 10) + " | Nro: " + strconv.FormatInt(m.MerchantNumber, 10)
}

// Variance returns the month over month change of current against previous, in percent.
func Variance(current, previous float64) (float64, error) {
	if previous == 0 {
		return 0, ErrUndefinedVariance
	}
	v := (current - previous) / previous * 100
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: variance of %v over %v is not finite", ErrInvalid, current, previous)
	}
	return v, nil
}

func (m Merchant) validate() error {
	switch {
	case m.TaxID <= 0:
		return fmt.Errorf("%w: tax id must be positive, got %d", ErrInvalid, m.TaxID)
	case strings.TrimSpace(m.Name) == "":
		return fmt.Errorf("%w: tax id %d has no name", ErrInvalid, m.TaxID)
	case m.MonthlySales < 0 || m.PreviousMonthSales < 0:
		return fmt.Errorf("%w: tax id %d has negative sales", ErrInvalid, m.TaxID)
	case !m.Status.Valid():
		return fmt.Errorf("%w: tax id %d has unknown status %q", ErrInvalid, m.TaxID, m.Status)
	}
	return nil
}
