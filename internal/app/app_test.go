package app

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/fortune/internal/cache"
	"github.com/alanyoungcy/fortune/internal/config"
	"github.com/alanyoungcy/fortune/internal/eventstore"
	"github.com/alanyoungcy/fortune/internal/notify"
	"github.com/alanyoungcy/fortune/internal/platform/fortune"
)

const unlockedBody = `{
	"status": "success",
	"uuid": "m-1",
	"title": "Will it rain?",
	"clob_liquidity": 1500,
	"outcomes": [
		{"outcome_id": "o1", "name": "Yes", "probability": 0.7},
		{"outcome_id": "o2", "name": "No", "probability": 0.3}
	]
}`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "fortune.log")
	var out bytes.Buffer
	logger, closer := NewLogger(config.LogConfig{File: path, MaxSizeMB: 1}, "info", &out)
	logger.Info("hello", slog.String("component", "test"))
	logger.Debug("hidden")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"hello"`) {
		t.Errorf("file = %s", data)
	}
	if strings.Contains(out.String(), "hidden") {
		t.Errorf("debug line written at info level: %s", out.String())
	}
	if !strings.Contains(out.String(), `"component":"test"`) {
		t.Errorf("stdout copy missing: %s", out.String())
	}
}

func TestPaymentDepsLeavesMissingPartsNil(t *testing.T) {
	d := &Dependencies{
		Unlocks:  cache.NewUnlockCache(cache.NewMemoryKV(), 0, discardLogger()),
		Notifier: notify.NewNotifier(nil, nil, discardLogger()),
	}
	pd := d.PaymentDeps()
	if pd.Wallet != nil || pd.Chain != nil || pd.Audit != nil || pd.Receipts != nil || pd.Locks != nil {
		t.Fatalf("optional deps not nil: %+v", pd)
	}
	if pd.Cache == nil || pd.Notifier == nil {
		t.Fatal("required deps missing")
	}
}

func TestPaymentConfigFromDefaults(t *testing.T) {
	cfg := config.Defaults()
	pc := PaymentConfig(&cfg)
	if pc.GasLimit != 300_000 || pc.DefaultDecimals != 6 || pc.Confirmations != 1 {
		t.Errorf("payment config = %+v", pc)
	}
	if pc.IndexingGrace != 5*time.Second || pc.BlindWait != 10*time.Second {
		t.Errorf("waits = %v / %v", pc.IndexingGrace, pc.BlindWait)
	}
}

func newUnlockApp(t *testing.T, backendHits *atomic.Int32) (*App, *Dependencies, *bytes.Buffer) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backendHits.Add(1)
		w.Write([]byte(unlockedBody))
	}))
	t.Cleanup(srv.Close)

	cfg := config.Defaults()
	cfg.Mode = config.ModeUnlock
	deps := &Dependencies{
		API:      fortune.NewClient(srv.URL, "testnet", 5*time.Second),
		Events:   eventstore.New(),
		Unlocks:  cache.NewUnlockCache(cache.NewMemoryKV(), 0, discardLogger()),
		Notifier: notify.NewNotifier(nil, nil, discardLogger()),
	}
	var out bytes.Buffer
	a := New(&cfg, Options{MarketID: "m-1", Out: &out, In: strings.NewReader("")}, discardLogger())
	return a, deps, &out
}

func TestUnlockModeRendersDirectResult(t *testing.T) {
	var hits atomic.Int32
	a, deps, out := newUnlockApp(t, &hits)

	if err := a.UnlockMode(t.Context(), deps); err != nil {
		t.Fatalf("UnlockMode: %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("backend hits = %d, want 1", hits.Load())
	}
	got := out.String()
	if !strings.Contains(got, "Will it rain?") || !strings.Contains(got, "70.00%") {
		t.Errorf("output = %s", got)
	}
	if strings.Contains(got, "served from cache") {
		t.Errorf("direct result reported as cached: %s", got)
	}
}

func TestUnlockModeServesCache(t *testing.T) {
	var hits atomic.Int32
	a, deps, out := newUnlockApp(t, &hits)

	first, err := deps.API.GetEventDetail(t.Context(), "m-1")
	if err != nil {
		t.Fatalf("seed detail: %v", err)
	}
	if err := deps.Unlocks.Put(t.Context(), "m-1", *first.Result); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	hits.Store(0)

	if err := a.UnlockMode(t.Context(), deps); err != nil {
		t.Fatalf("UnlockMode: %v", err)
	}
	if hits.Load() != 0 {
		t.Errorf("backend hit %d times for a cached result", hits.Load())
	}
	if !strings.Contains(out.String(), "served from cache") {
		t.Errorf("output = %s", out.String())
	}
}

func TestUnlockModeNeedsMarket(t *testing.T) {
	var hits atomic.Int32
	a, deps, _ := newUnlockApp(t, &hits)
	a.opts.MarketID = ""
	if err := a.UnlockMode(t.Context(), deps); err == nil {
		t.Fatal("expected error without a market id")
	}
}

func TestAuditExportModeNeedsBackends(t *testing.T) {
	cfg := config.Defaults()
	a := New(&cfg, Options{Out: io.Discard}, discardLogger())
	if err := a.AuditExportMode(t.Context(), &Dependencies{}); err == nil {
		t.Fatal("expected error without postgres and s3")
	}
}
