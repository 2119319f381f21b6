package redemption

import (
	"sort"

	"github.com/angelmondragon/voucherredeem-backend/pkg/db/models"
	"github.com/angelmondragon/voucherredeem-backend/pkg/enums"
)

// DefaultMaxAttempts bounds how many times a buyer may swap in a new number.
const DefaultMaxAttempts = 3

// defaultServices maps buyer-facing labels to provider service codes.
var defaultServices = map[string]string{
	"zus":     "aik",
	"tealive": "avb",
	"chagee":  "bwx",
	"kfc":     "fz",
}

// Policy is the fixed redemption configuration. It is built once at boot and never mutated.
type Policy struct {
	MaxAttempts int
	services    map[string]string
}

// DefaultPolicy returns the production policy.
func DefaultPolicy() Policy {
	return NewPolicy(DefaultMaxAttempts, defaultServices)
}

// NewPolicy copies services so later changes to the caller's map are not observed.
func NewPolicy(maxAttempts int, services map[string]string) Policy {
	copied := make(map[string]string, len(services))
	for label, code := range services {
		copied[label] = code
	}
	return Policy{MaxAttempts: maxAttempts, services: copied}
}

// ServiceCode resolves a label. Labels are case-sensitive.
func (p Policy) ServiceCode(label string) (string, bool) {
	code, ok := p.services[label]
	return code, ok
}

// ServiceLabels returns the accepted labels in sorted order.
func (p Policy) ServiceLabels() []string {
	labels := make([]string, 0, len(p.services))
	for label := range p.services {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// CanRetry reports whether the redemption may lease another number.
func (p Policy) CanRetry(r *models.Redemption) bool {
	if r == nil {
		return false
	}
	return r.Attempts < p.MaxAttempts && r.State != enums.RedemptionStateSuccess
}
