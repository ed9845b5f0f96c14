package policy

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RatedTicketAdmissionPolicy admits entries up to a configured byte rate,
// named and shaped after the original source's RatedTicketAdmissionPolicy:
// every Admit call draws ValueSize tokens from a token bucket and refuses
// admission outright rather than waiting, since admission happens on a
// caller's hot path.
type RatedTicketAdmissionPolicy struct {
	limiter *rate.Limiter
}

// NewRatedTicketAdmissionPolicy returns a policy admitting up to bytesPerSec
// bytes/second, with bursts up to burst bytes.
func NewRatedTicketAdmissionPolicy(bytesPerSec float64, burst int) *RatedTicketAdmissionPolicy {
	return &RatedTicketAdmissionPolicy{limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst)}
}

// Admit implements AdmissionPolicy.
func (p *RatedTicketAdmissionPolicy) Admit(_ context.Context, ac AdmissionContext) bool {
	return p.limiter.AllowN(time.Now(), ac.ValueSize)
}

// RatedTicketReinsertionPolicy picks entries for reinsertion up to a
// configured byte rate, the reinsertion-side counterpart to
// RatedTicketAdmissionPolicy.
type RatedTicketReinsertionPolicy struct {
	limiter *rate.Limiter
}

// NewRatedTicketReinsertionPolicy returns a policy reinserting up to
// bytesPerSec bytes/second, with bursts up to burst bytes.
func NewRatedTicketReinsertionPolicy(bytesPerSec float64, burst int) *RatedTicketReinsertionPolicy {
	return &RatedTicketReinsertionPolicy{limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst)}
}

// Pick implements ReinsertionPolicy.
func (p *RatedTicketReinsertionPolicy) Pick(_ context.Context, rc ReinsertionContext) bool {
	return p.limiter.AllowN(time.Now(), rc.ValueSize)
}
