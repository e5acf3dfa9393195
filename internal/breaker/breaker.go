// Package breaker implements a small failure-counting circuit breaker
// used in front of the remote LLM endpoint and the Satellite relay
// target, so a dead upstream is skipped instead of re-eating full
// timeouts on every call.
package breaker

import (
	"os"
	"strconv"
	"sync"
	"time"
)

type CircuitBreaker struct {
	name       string
	mu         sync.Mutex
	failures   int
	openedTill time.Time
	threshold  int
	openFor    time.Duration
	open       bool
}

// StateHook, when set, is notified of open/close transitions (wired to
// a Prometheus gauge by the api package).
var StateHook func(name string, open bool)

var (
	breakersMu       sync.Mutex
	breakers         = map[string]*CircuitBreaker{}
	defaultThreshold = envInt("MAUM_CB_THRESHOLD", 3)
	defaultOpenSec   = envInt("MAUM_CB_OPEN_SECONDS", 30)
)

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func Get(name string) *CircuitBreaker {
	breakersMu.Lock()
	defer breakersMu.Unlock()
	if b, ok := breakers[name]; ok {
		return b
	}
	b := &CircuitBreaker{name: name, threshold: defaultThreshold, openFor: time.Duration(defaultOpenSec) * time.Second}
	breakers[name] = b
	notify(name, false)
	return b
}

func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if time.Now().Before(b.openedTill) {
		b.open = true
		notify(b.name, true)
		return false
	}
	if b.open {
		b.open = false
		notify(b.name, false)
	}
	return true
}

func (b *CircuitBreaker) ReportSuccess() {
	b.mu.Lock()
	b.failures = 0
	if b.open {
		b.open = false
		notify(b.name, false)
	}
	b.mu.Unlock()
}

func (b *CircuitBreaker) ReportFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold {
		b.openedTill = time.Now().Add(b.openFor)
		b.failures = 0
		b.open = true
		notify(b.name, true)
	}
}

// Reset clears state; test helper.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	b.failures = 0
	b.openedTill = time.Time{}
	b.open = false
	b.mu.Unlock()
}

func notify(name string, open bool) {
	if StateHook != nil {
		StateHook(name, open)
	}
}
