package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/portalvoice/internal/catalog"
)

func ok(context.Context) error { return nil }

func get(t *testing.T, p *Probe, path string) (int, Report) {
	t.Helper()
	r := chi.NewRouter()
	p.Routes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}
	var rep Report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return rec.Code, rep
}

func TestLive_IgnoresChecks(t *testing.T) {
	t.Parallel()
	p := New(WithCheck("catalog", func(context.Context) error { return errors.New("down") }))

	code, rep := get(t, p, "/healthz")
	if code != http.StatusOK || rep.Status != "ok" || rep.Checks != nil {
		t.Errorf("GET /healthz = %d %+v", code, rep)
	}
}

func TestReady(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		opts       []Option
		wantCode   int
		wantStatus string
		wantErrs   map[string]string
	}{
		{
			name:       "no checks",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name:       "all pass",
			opts:       []Option{WithCheck("catalog", ok), WithCheck("voices", ok)},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantErrs:   map[string]string{"catalog": "", "voices": ""},
		},
		{
			name: "one fails",
			opts: []Option{
				WithCheck("catalog", func(context.Context) error { return errors.New("connection refused") }),
				WithCheck("voices", ok),
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantErrs:   map[string]string{"catalog": "connection refused", "voices": ""},
		},
		{
			name:       "panic is a failure",
			opts:       []Option{WithCheck("voices", func(context.Context) error { panic("kaput") })},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantErrs:   map[string]string{"voices": "panic: kaput"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, rep := get(t, New(tt.opts...), "/readyz")
			if code != tt.wantCode || rep.Status != tt.wantStatus {
				t.Fatalf("GET /readyz = %d %q, want %d %q", code, rep.Status, tt.wantCode, tt.wantStatus)
			}
			if len(rep.Checks) != len(tt.wantErrs) {
				t.Fatalf("checks = %+v", rep.Checks)
			}
			for name, wantErr := range tt.wantErrs {
				res := rep.Checks[name]
				if res.Error != wantErr || res.OK != (wantErr == "") {
					t.Errorf("%s = %+v, want error %q", name, res, wantErr)
				}
				if res.Elapsed == "" {
					t.Errorf("%s has no elapsed time", name)
				}
			}
		})
	}
}

func TestRun_TimeoutAndConcurrency(t *testing.T) {
	t.Parallel()
	block := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	p := New(WithTimeout(50*time.Millisecond), WithCheck("a", block), WithCheck("b", block), WithCheck("c", block))

	start := time.Now()
	rep := p.Run(context.Background())
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Run took %v; checks did not run concurrently under their deadline", elapsed)
	}
	if rep.Ready() {
		t.Fatal("timed-out checks reported ready")
	}
	for _, name := range []string{"a", "b", "c"} {
		if !strings.Contains(rep.Checks[name].Error, "deadline exceeded") {
			t.Errorf("%s error = %q", name, rep.Checks[name].Error)
		}
	}
}

func TestWithCheck_ReplacesByName(t *testing.T) {
	t.Parallel()
	p := New(
		WithCheck("catalog", func(context.Context) error { return errors.New("old") }),
		WithCheck("voices", ok),
		WithCheck("catalog", ok),
	)
	if got := p.Names(); !slices.Equal(got, []string{"catalog", "voices"}) {
		t.Errorf("Names = %v", got)
	}
	if rep := p.Run(context.Background()); !rep.Ready() {
		t.Errorf("report = %+v, want ready", rep)
	}
}

type pingStore struct {
	catalog.Store
	err error
}

func (p pingStore) Ping(context.Context) error { return p.err }

func TestCatalog(t *testing.T) {
	t.Parallel()
	mem, err := catalog.NewMemStore([]catalog.Entry{{Name: "Buka Portal", URL: "https://pa-cirebon.go.id/"}})
	if err != nil {
		t.Fatalf("NewMemStore: %v", err)
	}
	down := errors.New("connection refused")

	tests := []struct {
		name    string
		store   catalog.Store
		wantErr error
	}{
		{name: "memory store", store: mem},
		{name: "pinger healthy", store: pingStore{Store: mem}},
		{name: "pinger down", store: pingStore{Store: mem, err: down}, wantErr: down},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := Catalog(tt.store)(context.Background()); !errors.Is(err, tt.wantErr) {
				t.Errorf("check = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestVoices(t *testing.T) {
	t.Parallel()
	var voices []string
	check := Voices(func() []string { return voices })

	if err := check(context.Background()); err == nil {
		t.Error("expected failure with no voices")
	}
	voices = []string{"chatgpt"}
	if err := check(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
