package video

// SkipPolicy rate-limits a consumer by letting through one invocation
// out of every period. Each consumer owns its own policy; the counter
// is not safe for concurrent use.
type SkipPolicy struct {
	period int
	count  int
}

// NewSkipPolicy creates a policy that allows one call in every period.
// A period of 1 or less allows every call.
func NewSkipPolicy(period int) *SkipPolicy {
	if period < 1 {
		period = 1
	}
	return &SkipPolicy{period: period}
}

// Allow reports whether the current invocation should be processed.
// The first call is always allowed.
func (p *SkipPolicy) Allow() bool {
	allowed := p.count%p.period == 0
	p.count++
	return allowed
}

// Reset restarts the cycle so the next call is allowed
func (p *SkipPolicy) Reset() {
	p.count = 0
}
