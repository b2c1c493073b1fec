package scoring

import (
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Cash-flow minimums for the auto-decline gate.
const (
	MinMonthlyDeposits  = 20000.0
	MinDepositFrequency = 5.0
)

// Decline reason strings reported to the caller.
const (
	ReasonLowDeposits  = "Monthly deposits below $20,000 minimum"
	ReasonLowFrequency = "Deposit frequency below 5 deposits per month"
)

// EvaluateDecline applies the hard cash-flow gate. Both checks run
// independently and both reasons are reported when both fail. Parse
// failures default to 0, which declines.
func EvaluateDecline(p domain.Profile) (bool, []string) {
	var reasons []string
	if p.Number(domain.FieldMonthlyDeposits, 0) < MinMonthlyDeposits {
		reasons = append(reasons, ReasonLowDeposits)
	}
	if p.Number(domain.FieldDepositFrequency, 0) < MinDepositFrequency {
		reasons = append(reasons, ReasonLowFrequency)
	}
	return len(reasons) > 0, reasons
}
