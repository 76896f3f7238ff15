// internal/ratelimit/limiter.go
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Registry hands out one token-bucket limiter per campaign. The limiter lives
// for the whole campaign run (across pauses and worker restarts within one
// process), so a long-running campaign never exceeds its steady-state rate.
// rate.Limiter.Wait is FIFO-fair and never drops a permit.
type Registry struct {
	mu       sync.Mutex
	limiters map[int]*rate.Limiter
}

func NewRegistry() *Registry {
	return &Registry{limiters: make(map[int]*rate.Limiter)}
}

// ForCampaign returns the campaign's limiter, creating it on first use with
// the given messages-per-minute ceiling. Burst is 1: permits are spread
// evenly over the minute rather than allowed to cluster.
func (r *Registry) ForCampaign(campaignID, perMinute int) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lim, ok := r.limiters[campaignID]; ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1)
	r.limiters[campaignID] = lim
	return lim
}

// Release drops the limiter once the campaign reaches a terminal status.
func (r *Registry) Release(campaignID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.limiters, campaignID)
}
