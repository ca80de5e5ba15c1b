package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goodtune/balance/internal/config"
	"github.com/goodtune/balance/internal/storage"
	"github.com/goodtune/balance/internal/timewin"
	"github.com/rs/zerolog"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Enabled:  true,
		Timezone: "UTC",
		Schedule: map[string]config.ScheduleBlock{
			"weekday": {
				Days:              []int{1, 2, 3, 4, 5},
				Resolved:          []timewin.Window{{Start: 480, End: 1080}},
				DailyLimitMinutes: 240,
			},
			"saturday": {
				Days:     []int{6},
				Resolved: []timewin.Window{{Start: 480, End: 630}, {Start: 960, End: 1140}},
			},
		},
		Extensions: map[string]config.ExtensionDef{
			"quick": {Minutes: 15, MaxPerDay: 2, Label: "Quick 15-min session"},
			"more":  {Minutes: 15, MaxPerDay: 3, Label: "15 more minutes"},
		},
		Override: config.OverrideConfig{
			EnvVar: "BALANCE_ENGINE_TEST_OVERRIDE",
			File:   filepath.Join(t.TempDir(), "override"),
		},
		Storage:                 config.StorageConfig{Dir: t.TempDir()},
		WarningMinutesBeforeEnd: 15,
		WarningMinutesBeforeCap: 30,
	}
}

func testEngine(t *testing.T, cfg *config.Config, now time.Time) *Engine {
	t.Helper()
	e := NewEngine(cfg, zerolog.Nop())
	e.SetClock(&TestClock{CurrentTime: now})
	return e
}

func utc(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02 15:04", value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return ts
}

func TestAllowedInsideWindow(t *testing.T) {
	cfg := testConfig(t)
	e := testEngine(t, cfg, utc(t, "2026-02-24 09:00")) // Tuesday

	d := e.Evaluate(context.Background(), "prompt")
	if !d.Allowed() {
		t.Fatalf("Evaluate() blocked: %+v", d)
	}
	if d.State != StateAllowed {
		t.Errorf("state = %s, want %s", d.State, StateAllowed)
	}
	if d.Schedule != "weekday" {
		t.Errorf("schedule = %q, want weekday", d.Schedule)
	}

	// The minute was recorded.
	minutes, err := e.Usage().ActiveMinutes(e.Now())
	if err != nil {
		t.Fatal(err)
	}
	if minutes != 1 {
		t.Errorf("active minutes = %d, want 1", minutes)
	}
}

func TestSameMinuteNotDoubleCounted(t *testing.T) {
	cfg := testConfig(t)
	e := testEngine(t, cfg, utc(t, "2026-02-24 09:00"))

	for i := 0; i < 3; i++ {
		if d := e.Evaluate(context.Background(), ""); !d.Allowed() {
			t.Fatalf("Evaluate() blocked: %+v", d)
		}
	}

	minutes, err := e.Usage().ActiveMinutes(e.Now())
	if err != nil {
		t.Fatal(err)
	}
	if minutes != 1 {
		t.Errorf("active minutes = %d, want 1", minutes)
	}
}

func TestOutsideWindowBlocks(t *testing.T) {
	cfg := testConfig(t)
	e := testEngine(t, cfg, utc(t, "2026-02-24 19:30")) // after 18:00

	d := e.Evaluate(context.Background(), "")
	if d.Allowed() {
		t.Fatalf("Evaluate() allowed outside window: %+v", d)
	}
	if d.State != StateOutsideWindow {
		t.Errorf("state = %s, want %s", d.State, StateOutsideWindow)
	}
	if !strings.Contains(d.Message, "Outside allowed hours") {
		t.Errorf("message = %q", d.Message)
	}
	if !strings.Contains(d.Message, "Next window:") {
		t.Errorf("message = %q, want next window hint", d.Message)
	}
	if !strings.Contains(d.Message, "Extensions:") || !strings.Contains(d.Message, "quick") {
		t.Errorf("message = %q, want extension menu", d.Message)
	}

	// Blocked evaluations never record activity.
	minutes, err := e.Usage().ActiveMinutes(e.Now())
	if err != nil {
		t.Fatal(err)
	}
	if minutes != 0 {
		t.Errorf("active minutes = %d, want 0", minutes)
	}
}

func TestBoundaryMinutes(t *testing.T) {
	cfg := testConfig(t)

	// Window start is inside, window end is outside.
	if d := testEngine(t, cfg, utc(t, "2026-02-24 08:00")).Evaluate(context.Background(), ""); !d.Allowed() {
		t.Errorf("08:00 blocked: %+v", d)
	}
	if d := testEngine(t, cfg, utc(t, "2026-02-24 18:00")).Evaluate(context.Background(), ""); d.Allowed() {
		t.Errorf("18:00 allowed: %+v", d)
	}
	if d := testEngine(t, cfg, utc(t, "2026-02-24 07:59")).Evaluate(context.Background(), ""); d.Allowed() {
		t.Errorf("07:59 allowed: %+v", d)
	}
}

func TestOfflineDayBlocks(t *testing.T) {
	cfg := testConfig(t)
	e := testEngine(t, cfg, utc(t, "2026-03-01 12:00")) // Sunday, no block

	d := e.Evaluate(context.Background(), "")
	if d.Allowed() {
		t.Fatalf("Evaluate() allowed on offline day: %+v", d)
	}
	if !strings.Contains(d.Message, "Offline today") {
		t.Errorf("message = %q", d.Message)
	}
	if !strings.Contains(d.Message, "Monday at 08:00") {
		t.Errorf("message = %q, want Monday hint", d.Message)
	}
}

func TestCapExceededBlocks(t *testing.T) {
	cfg := testConfig(t)
	now := utc(t, "2026-02-24 12:00")
	e := testEngine(t, cfg, now)

	// Pre-load 240 distinct minutes.
	for i := 0; i < 240; i++ {
		if err := e.Usage().RecordActivity(now.Add(-time.Duration(i+1) * time.Minute)); err != nil {
			t.Fatal(err)
		}
	}

	d := e.Evaluate(context.Background(), "")
	if d.Allowed() {
		t.Fatalf("Evaluate() allowed past cap: %+v", d)
	}
	if d.State != StateCapExceeded {
		t.Errorf("state = %s, want %s", d.State, StateCapExceeded)
	}
	if !strings.Contains(d.Message, "240/240") {
		t.Errorf("message = %q", d.Message)
	}
	if !strings.Contains(d.Message, "Extensions:") {
		t.Errorf("message = %q, want extension menu", d.Message)
	}
}

func TestNoCapMeansUnlimited(t *testing.T) {
	cfg := testConfig(t)
	now := utc(t, "2026-02-28 09:00") // Saturday block has no cap
	e := testEngine(t, cfg, now)

	for i := 0; i < 500; i++ {
		if err := e.Usage().RecordActivity(now.Add(-time.Duration(i+1) * time.Minute)); err != nil {
			t.Fatal(err)
		}
	}

	if d := e.Evaluate(context.Background(), ""); !d.Allowed() {
		t.Errorf("Evaluate() blocked with no cap: %+v", d)
	}
}

func TestExpiredGrantDoesNotMoveCap(t *testing.T) {
	cfg := testConfig(t)
	now := utc(t, "2026-02-24 12:00")
	e := testEngine(t, cfg, now)

	for i := 0; i < 240; i++ {
		if err := e.Usage().RecordActivity(now.Add(-time.Duration(i+1) * time.Minute)); err != nil {
			t.Fatal(err)
		}
	}

	result, err := e.IssueGrant("quick")
	if err != nil {
		t.Fatalf("IssueGrant() error = %v", err)
	}
	if result.Minutes != 15 || result.UsedToday != 1 {
		t.Errorf("grant = %+v", result)
	}

	// Once the override is gone only the counter remains, and a used
	// grant never raises the daily limit.
	if err := os.Remove(cfg.Override.File); err != nil {
		t.Fatal(err)
	}

	d := e.Evaluate(context.Background(), "")
	if d.Allowed() {
		t.Fatalf("Evaluate() allowed past cap after grant expiry: %+v", d)
	}
	if d.State != StateCapExceeded {
		t.Errorf("state = %s, want %s", d.State, StateCapExceeded)
	}
	if !strings.Contains(d.Message, "240/240") {
		t.Errorf("message = %q", d.Message)
	}
}

func TestGrantQuota(t *testing.T) {
	cfg := testConfig(t)
	e := testEngine(t, cfg, utc(t, "2026-02-24 12:00"))

	for i := 0; i < 2; i++ {
		if _, err := e.IssueGrant("quick"); err != nil {
			t.Fatalf("IssueGrant() error = %v", err)
		}
	}
	if _, err := e.IssueGrant("quick"); err == nil {
		t.Error("expected quota error on third grant")
	}

	if _, err := e.IssueGrant("nope"); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestOverrideAllowsAndRecords(t *testing.T) {
	cfg := testConfig(t)
	e := testEngine(t, cfg, utc(t, "2026-03-01 03:00")) // Sunday night
	t.Setenv(cfg.Override.EnvVar, "1")

	d := e.Evaluate(context.Background(), "")
	if !d.Allowed() {
		t.Fatalf("Evaluate() blocked with override: %+v", d)
	}
	if d.State != StateOverrideActive {
		t.Errorf("state = %s, want %s", d.State, StateOverrideActive)
	}
	if !strings.HasPrefix(d.Context, "Time override active:") {
		t.Errorf("context = %q", d.Context)
	}

	// Override time still counts against the ledger.
	minutes, err := e.Usage().ActiveMinutes(e.Now())
	if err != nil {
		t.Fatal(err)
	}
	if minutes != 1 {
		t.Errorf("active minutes = %d, want 1", minutes)
	}
}

func TestGrantFileOpensClosedWindow(t *testing.T) {
	cfg := testConfig(t)
	now := utc(t, "2026-02-24 20:00") // outside weekday window
	e := testEngine(t, cfg, now)

	if _, err := e.IssueGrant("quick"); err != nil {
		t.Fatalf("IssueGrant() error = %v", err)
	}

	if d := e.Evaluate(context.Background(), ""); !d.Allowed() {
		t.Errorf("Evaluate() blocked despite fresh grant: %+v", d)
	}

	// Sixteen minutes later the grant has expired.
	e.SetClock(&TestClock{CurrentTime: now.Add(16 * time.Minute)})
	if d := e.Evaluate(context.Background(), ""); d.Allowed() {
		t.Errorf("Evaluate() allowed after grant expiry: %+v", d)
	}
}

func TestWindowCloseWarning(t *testing.T) {
	cfg := testConfig(t)
	e := testEngine(t, cfg, utc(t, "2026-02-24 17:50")) // ten minutes left

	d := e.Evaluate(context.Background(), "")
	if !d.Allowed() {
		t.Fatalf("Evaluate() blocked: %+v", d)
	}
	if d.State != StateAllowedWithWarning {
		t.Errorf("state = %s, want %s", d.State, StateAllowedWithWarning)
	}
	if !strings.Contains(d.Context, "Window closes in 10 minutes.") {
		t.Errorf("context = %q", d.Context)
	}
}

func TestCapWarning(t *testing.T) {
	cfg := testConfig(t)
	now := utc(t, "2026-02-24 12:00")
	e := testEngine(t, cfg, now)

	// 220 of 240 minutes used: 20 remaining, inside the 30-minute band.
	for i := 0; i < 220; i++ {
		if err := e.Usage().RecordActivity(now.Add(-time.Duration(i+1) * time.Minute)); err != nil {
			t.Fatal(err)
		}
	}

	d := e.Evaluate(context.Background(), "")
	if !d.Allowed() {
		t.Fatalf("Evaluate() blocked: %+v", d)
	}
	if !strings.Contains(d.Context, "220/240") || !strings.Contains(d.Context, "20 min remaining") {
		t.Errorf("context = %q", d.Context)
	}
}

func TestDisabledAllowsWithoutRecording(t *testing.T) {
	cfg := testConfig(t)
	cfg.Enabled = false
	e := testEngine(t, cfg, utc(t, "2026-03-01 03:00"))

	d := e.Evaluate(context.Background(), "")
	if !d.Allowed() || d.State != StateDisabled {
		t.Fatalf("Evaluate() = %+v, want disabled allow", d)
	}

	entries, err := os.ReadDir(cfg.Storage.Dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("disabled engine wrote state files: %v", entries)
	}
}

func TestUnreadableLedgerFailsClosed(t *testing.T) {
	cfg := testConfig(t)
	now := utc(t, "2026-02-24 09:00")

	// A directory where the day's log belongs makes reads fail.
	if err := os.MkdirAll(filepath.Join(cfg.Storage.Dir, "usage", "2026-02-24.log"), 0o755); err != nil {
		t.Fatal(err)
	}
	e := testEngine(t, cfg, now)

	d := e.Evaluate(context.Background(), "")
	if d.Allowed() {
		t.Fatalf("Evaluate() allowed on ledger fault: %+v", d)
	}
	if d.State != StateError {
		t.Errorf("state = %s, want %s", d.State, StateError)
	}
	if !strings.Contains(d.Message, "balance error (blocking)") {
		t.Errorf("message = %q", d.Message)
	}
}

func TestDecisionHistoryRecorded(t *testing.T) {
	cfg := testConfig(t)
	e := testEngine(t, cfg, utc(t, "2026-02-24 09:00"))

	h := &memHistory{}
	e.SetHistory(h)

	e.Evaluate(context.Background(), "prompt text")
	e.SetClock(&TestClock{CurrentTime: utc(t, "2026-02-24 19:30")})
	e.Evaluate(context.Background(), "")

	if len(h.records) != 2 {
		t.Fatalf("recorded %d decisions, want 2", len(h.records))
	}
	if h.records[0].Action != storage.ActionAllow || h.records[0].Trigger != "prompt text" {
		t.Errorf("first record = %+v", h.records[0])
	}
	if h.records[1].State != string(StateOutsideWindow) {
		t.Errorf("second record = %+v", h.records[1])
	}
}

func TestExtensionMenu(t *testing.T) {
	cfg := testConfig(t)
	now := utc(t, "2026-02-24 12:00")
	e := testEngine(t, cfg, now)

	menu := e.ExtensionMenu(now)
	if !strings.Contains(menu, "quick") || !strings.Contains(menu, "(2 remaining)") {
		t.Errorf("menu = %q", menu)
	}
	if !strings.Contains(menu, "extend <type>") {
		t.Errorf("menu = %q, want extend hint", menu)
	}

	// Exhaust everything.
	for i := 0; i < 2; i++ {
		if _, err := e.IssueGrant("quick"); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 3; i++ {
		if _, err := e.IssueGrant("more"); err != nil {
			t.Fatal(err)
		}
	}
	if got := e.ExtensionMenu(now); got != "No extensions remaining. Take a break." {
		t.Errorf("exhausted menu = %q", got)
	}
}

// memHistory is an in-memory HistoryStore for engine tests.
type memHistory struct {
	records []storage.DecisionRecord
}

func (m *memHistory) Append(_ context.Context, rec storage.DecisionRecord) error {
	m.records = append(m.records, rec)
	return nil
}

func (m *memHistory) Query(_ context.Context, _ storage.HistoryFilter) ([]storage.DecisionRecord, error) {
	return m.records, nil
}

func (m *memHistory) DeleteBefore(_ context.Context, cutoff time.Time) (int, error) {
	kept := m.records[:0]
	deleted := 0
	for _, rec := range m.records {
		if rec.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	m.records = kept
	return deleted, nil
}

func (m *memHistory) Close() error { return nil }
