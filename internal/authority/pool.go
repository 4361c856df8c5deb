package authority

import (
	"log"
	"strings"
	"sync"
	"time"
)

// Pool round-robins across tenant authority replicas, skipping any replica
// inside its failure cooldown. When every replica is cooling down the next
// one is returned anyway so traffic keeps probing for recovery.
type Pool struct {
	mu       sync.Mutex
	replicas []*replica
	next     int
	cooldown time.Duration
}

type replica struct {
	baseURL   string
	failures  int
	downUntil time.Time
}

type ReplicaStatus struct {
	BaseURL  string    `json:"base_url"`
	Healthy  bool      `json:"healthy"`
	Failures int       `json:"failures"`
	RetryAt  time.Time `json:"retry_at,omitempty"`
}

func NewPool(baseURLs []string, cooldown time.Duration) *Pool {
	replicas := make([]*replica, 0, len(baseURLs))
	for _, u := range baseURLs {
		replicas = append(replicas, &replica{baseURL: strings.TrimRight(u, "/")})
	}

	return &Pool{
		replicas: replicas,
		cooldown: cooldown,
	}
}

// Next returns the base URL the next request should use.
func (p *Pool) Next() string {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.replicas)
	for i := 0; i < n; i++ {
		r := p.replicas[p.next]
		p.next = (p.next + 1) % n

		if now.After(r.downUntil) {
			return r.baseURL
		}
	}

	// All replicas cooling down; fail through to the next one.
	r := p.replicas[p.next]
	p.next = (p.next + 1) % n
	return r.baseURL
}

// MarkDown records a network-level failure and starts the cooldown.
func (p *Pool) MarkDown(baseURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, r := range p.replicas {
		if r.baseURL == baseURL {
			r.failures++
			r.downUntil = time.Now().Add(p.cooldown)
			log.Printf("Authority replica %s marked down for %v (failures: %d)", baseURL, p.cooldown, r.failures)
			return
		}
	}
}

// MarkUp clears the cooldown after a successful exchange.
func (p *Pool) MarkUp(baseURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, r := range p.replicas {
		if r.baseURL == baseURL {
			if r.failures > 0 {
				log.Printf("Authority replica %s recovered", baseURL)
			}
			r.failures = 0
			r.downUntil = time.Time{}
			return
		}
	}
}

func (p *Pool) Snapshot() []ReplicaStatus {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]ReplicaStatus, 0, len(p.replicas))
	for _, r := range p.replicas {
		out = append(out, ReplicaStatus{
			BaseURL:  r.baseURL,
			Healthy:  now.After(r.downUntil),
			Failures: r.failures,
			RetryAt:  r.downUntil,
		})
	}
	return out
}

// Healthy reports whether at least one replica is outside its cooldown.
func (p *Pool) Healthy() bool {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, r := range p.replicas {
		if now.After(r.downUntil) {
			return true
		}
	}
	return false
}
