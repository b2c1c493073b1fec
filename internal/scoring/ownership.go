package scoring

import (
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// IncludeSecondaryOwner decides whether owner2_* fields participate in
// scoring: the primary owner must hold under 50% and real secondary data
// must have been supplied. A single majority owner is never penalized
// for empty co-owner fields.
func IncludeSecondaryOwner(p domain.Profile) bool {
	return p.Owner1Pct() < 50 && p.SecondaryOwnerProvided()
}

// isSecondaryOwnerField reports whether a rule field belongs to the
// secondary owner.
func isSecondaryOwnerField(field string) bool {
	return strings.HasPrefix(field, domain.FieldOwner2Prefix)
}
