// Package health evaluates dependency probes for the readiness endpoint.
package health

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

const defaultTimeout = 1500 * time.Millisecond

// Status summarises a probe or a whole report.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusError    Status = "error"
)

// Probe checks a single dependency such as Firestore or the invoice bucket.
type Probe struct {
	Name    string
	Timeout time.Duration
	Check   func(context.Context) error
}

// Result is the outcome of one probe.
type Result struct {
	Status    Status        `json:"status"`
	Detail    string        `json:"detail,omitempty"`
	Latency   time.Duration `json:"latencyMs"`
	CheckedAt time.Time     `json:"checkedAt"`
}

// Report aggregates all probe results.
type Report struct {
	Status      Status            `json:"status"`
	Checks      map[string]Result `json:"checks"`
	GeneratedAt time.Time         `json:"generatedAt"`
}

// Checker runs the configured probes concurrently.
type Checker struct {
	probes []Probe
	clock  func() time.Time
}

// NewChecker validates probes and returns a checker. clock may be nil.
func NewChecker(probes []Probe, clock func() time.Time) (*Checker, error) {
	for _, probe := range probes {
		if strings.TrimSpace(probe.Name) == "" {
			return nil, errors.New("health: probe name is required")
		}
		if probe.Check == nil {
			return nil, errors.New("health: probe " + probe.Name + " has no check")
		}
	}
	if clock == nil {
		clock = time.Now
	}
	return &Checker{probes: append([]Probe(nil), probes...), clock: clock}, nil
}

// Collect runs every probe. A timeout or cancellation is an error, any other failure degrades.
func (c *Checker) Collect(ctx context.Context) Report {
	results := make(map[string]Result, len(c.probes))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, probe := range c.probes {
		wg.Add(1)
		go func(probe Probe) {
			defer wg.Done()
			result := c.run(ctx, probe)
			mu.Lock()
			results[probe.Name] = result
			mu.Unlock()
		}(probe)
	}
	wg.Wait()

	status := StatusOK
	for _, result := range results {
		switch result.Status {
		case StatusError:
			status = StatusError
		case StatusDegraded:
			if status == StatusOK {
				status = StatusDegraded
			}
		}
	}
	return Report{Status: status, Checks: results, GeneratedAt: c.clock()}
}

func (c *Checker) run(ctx context.Context, probe Probe) Result {
	timeout := probe.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := c.clock()
	err := probe.Check(checkCtx)
	end := c.clock()

	result := Result{Status: StatusOK, Latency: end.Sub(start), CheckedAt: end}
	switch {
	case err == nil && checkCtx.Err() != nil:
		result.Status, result.Detail = StatusError, checkCtx.Err().Error()
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		result.Status, result.Detail = StatusError, err.Error()
	default:
		result.Status, result.Detail = StatusDegraded, err.Error()
	}
	return result
}
