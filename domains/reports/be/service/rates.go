package service

import (
	"github.com/hourledger/hourledger/platform/go/persistence"
)

// Billing models applied during aggregation.
const (
	ModelHourly = "hourly"
	ModelFixed  = "fixed"
)

// Rate is the billing rule resolved for one workstream. Exactly one of Hourly
// or Fixed is meaningful, selected by Model.
type Rate struct {
	Model  string
	Hourly float64
	Fixed  float64
}

// ResolveRate determines the billing model and rate for a workstream. Fixed
// workstreams bill their fixed fee (zero when unset). Hourly workstreams use
// the workstream rate, falling back to the client default, falling back to
// zero. Absent rates never fail; they degrade to zero so a misconfigured
// workstream reads as zero revenue instead of breaking the report.
func ResolveRate(ws persistence.WorkstreamRecord, client persistence.ClientRecord) Rate {
	if ws.BillingType == persistence.BillingTypeFixed {
		var fee float64
		if ws.FixedFeeAmount != nil {
			fee = *ws.FixedFeeAmount
		}
		return Rate{Model: ModelFixed, Fixed: fee}
	}

	var rate float64
	switch {
	case ws.BillingRate != nil:
		rate = *ws.BillingRate
	case client.DefaultBillingRate != nil:
		rate = *client.DefaultBillingRate
	}
	return Rate{Model: ModelHourly, Hourly: rate}
}
