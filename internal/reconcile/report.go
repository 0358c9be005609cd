package reconcile

import (
	"fmt"
	"strings"
	"time"

	"tip-settlement/internal/domain"
)

// RenderMarkdown renders a report as Markdown.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString("# Reconciliation Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Network | Addresses | Analytics Tips | Ledger Total | Analytics Total | Discrepancies |\n")
	sb.WriteString("|---------|-----------|----------------|--------------|-----------------|---------------|\n")
	for _, n := range r.Networks {
		sb.WriteString(fmt.Sprintf("| %s | %d | %d | %s | %s | %d |\n",
			n.Network,
			n.Addresses,
			n.AnalyticsTips,
			domain.FormatNetworkAmount(n.Network, &n.LedgerTotal),
			domain.FormatNetworkAmount(n.Network, &n.AnalyticsTotal),
			len(n.Discrepancies),
		))
	}
	sb.WriteString("\n")

	if r.Clean() {
		sb.WriteString("**Ledger and analytics agree.**\n")
		return sb.String()
	}

	sb.WriteString("## Discrepancies\n\n")
	sb.WriteString("| Network | Address | Ledger | Analytics |\n")
	sb.WriteString("|---------|---------|--------|-----------|\n")
	for _, n := range r.Networks {
		for _, d := range n.Discrepancies {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				d.Network, d.Address, d.Ledger.Dec(), d.Analytics.Dec()))
		}
	}

	return sb.String()
}

// RenderCSV renders the discrepancies of a report as CSV, amounts in base units.
func RenderCSV(r *Report) string {
	var sb strings.Builder

	sb.WriteString("network,address,ledger,analytics\n")
	for _, n := range r.Networks {
		for _, d := range n.Discrepancies {
			sb.WriteString(fmt.Sprintf("%s,%s,%s,%s\n", d.Network, d.Address, d.Ledger.Dec(), d.Analytics.Dec()))
		}
	}

	return sb.String()
}
