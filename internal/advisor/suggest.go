package advisor

import (
	"fmt"

	"github.com/kalambet/advisorhub/internal/contactlog"
	"github.com/kalambet/advisorhub/internal/portfolio"
)

// growthThreshold is the month over month growth, in percent, above which a
// merchant is offered working capital.
const growthThreshold = 5.0

// Suggest returns the next-best-action hint for a merchant.
func Suggest(m portfolio.Merchant, history []contactlog.Entry) string {
	if len(history) > 0 && history[0].Priority == contactlog.PriorityHigh && history[0].Commitment != "" {
		return fmt.Sprintf("Follow up on the open high priority commitment with %s: %s.", m.Name, history[0].Commitment)
	}
	switch {
	case m.Variance < 0:
		return fmt.Sprintf("%s (CUIT %d) is losing sales (%.1f%%). Schedule a retention call.", m.Name, m.TaxID, m.Variance)
	case m.Status == portfolio.StatusAtRisk:
		return fmt.Sprintf("%s (CUIT %d) is flagged at risk although sales are up %.1f%%. Schedule a retention call.", m.Name, m.TaxID, m.Variance)
	case m.Variance >= growthThreshold:
		return fmt.Sprintf("%s (CUIT %d) grew %.1f%% and fits a working capital financing offer.", m.Name, m.TaxID, m.Variance)
	case m.Status == portfolio.StatusPotential:
		return fmt.Sprintf("%s (CUIT %d) has upside. Present additional payment products.", m.Name, m.TaxID)
	}
	return fmt.Sprintf("%s (CUIT %d) is stable. Keep the regular contact cadence.", m.Name, m.TaxID)
}
