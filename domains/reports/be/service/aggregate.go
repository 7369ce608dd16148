package service

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/hourledger/hourledger/platform/go/persistence"
)

// ClientRow is one aggregated dashboard line. Averages derive from the
// totals; MissingRate reports that at least one billable hourly entry
// resolved to a zero rate, so zero revenue can be told apart from
// misconfiguration.
type ClientRow struct {
	ClientID           uuid.UUID
	ClientName         string
	Hours              float64
	TotalBilling       float64
	TotalCost          float64
	AverageBillingRate float64
	AverageCost        float64
	Profit             float64
	MissingRate        bool
}

// fixedFeeKey dedupes fixed fees within one calendar billing month. The month
// component comes from the entry date in UTC so a fee is never charged twice
// across a month boundary because of server-local timezone skew.
type fixedFeeKey struct {
	clientID     uuid.UUID
	workstreamID uuid.UUID
	month        string
}

func monthKey(entry persistence.EntryRecord) string {
	d := entry.EntryDate.UTC()
	return fmt.Sprintf("%04d-%02d", d.Year(), d.Month())
}

// aggregate reduces entries into per-client rows. Hours and cost accumulate
// for every entry; billing only for billable ones, with fixed fees counted
// once per (client, workstream, month). The result is a pure function of the
// entry set and the resolved rates.
func (s *Service) aggregate(
	entries []persistence.EntryRecord,
	clients map[uuid.UUID]persistence.ClientRecord,
	workstreams map[uuid.UUID]persistence.WorkstreamRecord,
	users map[uuid.UUID]persistence.UserRecord,
) []ClientRow {
	rows := make(map[uuid.UUID]*ClientRow)
	feesApplied := make(map[fixedFeeKey]struct{})

	for _, entry := range entries {
		row, ok := rows[entry.ClientID]
		if !ok {
			row = &ClientRow{ClientID: entry.ClientID, ClientName: clients[entry.ClientID].Name}
			rows[entry.ClientID] = row
		}

		hours := float64(entry.DurationMinutes) / 60
		row.Hours += hours

		if user, ok := users[entry.UserID]; ok && user.CostRate != nil {
			row.TotalCost += hours * *user.CostRate
		}

		if !entry.Billable {
			continue
		}

		rate := ResolveRate(workstreams[entry.WorkstreamID], clients[entry.ClientID])
		switch rate.Model {
		case ModelFixed:
			key := fixedFeeKey{clientID: entry.ClientID, workstreamID: entry.WorkstreamID, month: monthKey(entry)}
			if _, charged := feesApplied[key]; !charged {
				feesApplied[key] = struct{}{}
				row.TotalBilling += rate.Fixed
				s.metrics.RecordFixedFeeApplied()
			}
		default:
			if rate.Hourly == 0 {
				row.MissingRate = true
			}
			row.TotalBilling += hours * rate.Hourly
		}
	}

	out := make([]ClientRow, 0, len(rows))
	for _, row := range rows {
		if row.Hours > 0 {
			row.AverageBillingRate = row.TotalBilling / row.Hours
			row.AverageCost = row.TotalCost / row.Hours
		}
		row.Profit = row.TotalBilling - row.TotalCost
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientName < out[j].ClientName })
	return out
}
