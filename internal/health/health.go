// Package health serves the liveness and readiness probes of portalvoice.
//
// GET /healthz answers 200 while the process can serve HTTP at all. GET
// /readyz runs every registered check concurrently and answers 503 if any of
// them fails, with a JSON report naming each check.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/portalvoice/internal/catalog"
)

// DefaultTimeout bounds each check.
const DefaultTimeout = 5 * time.Second

// Check probes one dependency and returns nil when it is usable.
type Check func(ctx context.Context) error

// Result is the outcome of one check.
type Result struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Elapsed string `json:"elapsed"`
}

// Report is the /readyz body.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]Result `json:"checks,omitempty"`
}

// Ready reports whether every check passed.
func (r Report) Ready() bool { return r.Status == "ok" }

// Option configures a [Probe].
type Option func(*Probe)

// WithCheck registers c under name. A later check with the same name
// replaces the earlier one.
func WithCheck(name string, c Check) Option {
	return func(p *Probe) {
		if _, dup := p.checks[name]; !dup {
			p.names = append(p.names, name)
		}
		p.checks[name] = c
	}
}

// WithTimeout sets the per-check deadline.
func WithTimeout(d time.Duration) Option {
	return func(p *Probe) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// Probe holds the readiness checks. The set is fixed once New returns.
type Probe struct {
	timeout time.Duration
	names   []string
	checks  map[string]Check
}

// New returns a Probe with the given options applied.
func New(opts ...Option) *Probe {
	p := &Probe{timeout: DefaultTimeout, checks: make(map[string]Check)}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Names returns the registered check names in registration order.
func (p *Probe) Names() []string { return slices.Clone(p.names) }

// Run executes all checks concurrently, each under its own deadline.
func (p *Probe) Run(ctx context.Context) Report {
	var (
		mu  sync.Mutex
		rep = Report{Status: "ok", Checks: make(map[string]Result, len(p.names))}
		g   errgroup.Group
	)
	for _, name := range p.names {
		check := p.checks[name]
		g.Go(func() error {
			start := time.Now()
			err := p.run(ctx, check)
			res := Result{OK: err == nil, Elapsed: time.Since(start).Round(time.Millisecond).String()}
			if err != nil {
				res.Error = err.Error()
			}
			mu.Lock()
			rep.Checks[name] = res
			if err != nil {
				rep.Status = "fail"
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return rep
}

// run applies the deadline and turns a panic into a failure.
func (p *Probe) run(ctx context.Context, c Check) (err error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic: %v", v)
		}
	}()
	return c(ctx)
}

// Live is the liveness handler.
func (p *Probe) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Report{Status: "ok"})
}

// Ready is the readiness handler.
func (p *Probe) Ready(w http.ResponseWriter, r *http.Request) {
	rep := p.Run(r.Context())
	status := http.StatusOK
	if !rep.Ready() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, rep)
}

// Routes mounts /healthz and /readyz on r.
func (p *Probe) Routes(r chi.Router) {
	r.Get("/healthz", p.Live)
	r.Get("/readyz", p.Ready)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Pinger is a store that can probe its backend, such as
// [catalog.PostgresStore].
type Pinger interface {
	Ping(ctx context.Context) error
}

// Catalog checks that store answers: a [Pinger] is pinged, any other store
// must list its entries.
func Catalog(store catalog.Store) Check {
	return func(ctx context.Context) error {
		if p, ok := store.(Pinger); ok {
			return p.Ping(ctx)
		}
		_, err := store.All(ctx)
		return err
	}
}

// Voices fails while voices returns nothing: no reply could be spoken.
func Voices(voices func() []string) Check {
	return func(context.Context) error {
		if len(voices()) == 0 {
			return errors.New("no voices registered")
		}
		return nil
	}
}
