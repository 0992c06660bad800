package notify

import (
	"testing"
	"time"
)

var testThresholds = Thresholds{
	UsageWarnPercent:  80,
	UsageAlertPercent: 95,
	LowSuccessRate:    85,
	HighCallVolume:    100,
}

func emptyState() State {
	return State{
		Read:      map[string]bool{},
		Dismissed: map[string]bool{},
		FirstSeen: map[string]string{},
	}
}

func fullSignals() Signals {
	return Signals{
		Usage: &UsageSignal{Used: 480, Limit: 500, PeriodEnd: "2026-09-01", ServerTS: "2026-08-20T10:00:00Z"},
		Current: &SubscriptionSignal{
			PlanCode: "growth", PlanName: "Growth", Status: "past_due",
			ServerTS: "2026-08-19T08:00:00Z",
		},
		Payments: []PaymentSignal{
			{ID: "p-1", Status: "paid", ServerTS: "2026-08-18T00:00:00Z"},
			{ID: "p-2", Status: "failed", ServerTS: "2026-08-17T00:00:00Z"},
		},
		Jobs: []JobSignal{
			{JobID: "b-1", AgentName: "Bot", CallName: "q3 launch", Status: "failed", ServerTS: "2026-08-16T00:00:00Z"},
			{JobID: "b-2", AgentName: "Bot", CallName: "follow up", Status: "completed", ServerTS: "2026-08-15T00:00:00Z"},
			{JobID: "b-3", AgentName: "Bot", CallName: "cold", Status: "in_progress", ServerTS: "2026-08-14T00:00:00Z"},
		},
		Dashboard:  &DashboardSignal{SuccessRateValue: 60, ServerTS: "2026-08-13T00:00:00Z"},
		CallsToday: 120,
		TodayKey:   "2026-08-20",
		NewestCall: "2026-08-20T09:55:00Z",
	}
}

func idsOf(list []Notification) map[string]Notification {
	m := make(map[string]Notification, len(list))
	for _, n := range list {
		m[n.ID] = n
	}
	return m
}

var buildNow = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

func TestBuildProducesExpectedIDs(t *testing.T) {
	prev := &PrevSubscription{PlanCode: "free", PlanName: "Free", Status: "active"}
	list, _ := Build(fullSignals(), prev, emptyState(), testThresholds, buildNow)

	byID := idsOf(list)
	want := map[string]string{
		"usage|2026-09-01|ALERT": TypeAlert,
		"sub|plan|growth":        TypeInfo,
		"sub|status|past_due":    TypeAlert,
		"pay|p-2|fail":           TypeAlert,
		"job|b-1|fail":           TypeAlert,
		"job|b-2|ok":             TypeSuccess,
		"job|b-3|info":           TypeInfo,
		"perf|lowSR":             TypeAlert,
		"calls|2026-08-20|high":  TypeWarning,
	}
	if len(list) != len(want) {
		t.Fatalf("expected %d notifications, got %d: %v", len(want), len(list), byID)
	}
	for id, typ := range want {
		n, ok := byID[id]
		if !ok {
			t.Errorf("missing %q", id)
			continue
		}
		if n.Type != typ {
			t.Errorf("%s: type %q, want %q", id, n.Type, typ)
		}
	}
}

// Re-running synthesis on identical signals yields identical ids, so
// read and dismissed state keyed by id carries across refreshes.
func TestIdentityStableAcrossRuns(t *testing.T) {
	prev := &PrevSubscription{PlanCode: "free", Status: "active"}
	st := emptyState()

	first, minted := Build(fullSignals(), prev, st, testThresholds, buildNow)
	for id, ts := range minted {
		st.FirstSeen[id] = ts
	}

	second, minted2 := Build(fullSignals(), prev, st, testThresholds, buildNow.Add(time.Hour))
	if len(minted2) != 0 {
		t.Errorf("second run must mint nothing: %v", minted2)
	}
	if len(first) != len(second) {
		t.Fatalf("run sizes differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("id drifted at %d: %q vs %q", i, first[i].ID, second[i].ID)
		}
		if first[i].Timestamp != second[i].Timestamp {
			t.Errorf("%s: first-seen timestamp drifted: %q vs %q",
				first[i].ID, first[i].Timestamp, second[i].Timestamp)
		}
	}
}

func TestDismissedNeverResurrected(t *testing.T) {
	prev := &PrevSubscription{PlanCode: "free", Status: "active"}
	st := emptyState()

	first, _ := Build(fullSignals(), prev, st, testThresholds, buildNow)
	target := first[0].ID
	st.Dismissed[target] = true

	second, _ := Build(fullSignals(), prev, st, testThresholds, buildNow)
	if len(second) != len(first)-1 {
		t.Fatalf("expected one fewer notification, got %d vs %d", len(second), len(first))
	}
	if _, ok := idsOf(second)[target]; ok {
		t.Errorf("dismissed %q resurfaced", target)
	}
}

func TestReadFlagReattached(t *testing.T) {
	prev := &PrevSubscription{PlanCode: "free", Status: "active"}
	st := emptyState()
	st.Read["perf|lowSR"] = true

	list, _ := Build(fullSignals(), prev, st, testThresholds, buildNow)
	byID := idsOf(list)
	if n := byID["perf|lowSR"]; !n.Read {
		t.Error("read flag not reattached")
	}
	if n := byID["pay|p-2|fail"]; n.Read {
		t.Error("unrelated notification flagged read")
	}
}

func TestUsageThresholds(t *testing.T) {
	tests := []struct {
		name   string
		used   float64
		wantID string
	}{
		{"below warn", 300, ""},
		{"warn band", 420, "usage|2026-09-01|WARN"},
		{"alert band", 480, "usage|2026-09-01|ALERT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := Signals{Usage: &UsageSignal{Used: tt.used, Limit: 500, PeriodEnd: "2026-09-01"}}
			list, _ := Build(sig, nil, emptyState(), testThresholds, buildNow)
			switch {
			case tt.wantID == "" && len(list) != 0:
				t.Errorf("expected nothing, got %+v", list)
			case tt.wantID != "" && (len(list) != 1 || list[0].ID != tt.wantID):
				t.Errorf("got %+v, want id %q", list, tt.wantID)
			}
		})
	}
}

func TestUsageZeroLimitIgnored(t *testing.T) {
	sig := Signals{Usage: &UsageSignal{Used: 100, Limit: 0}}
	if list, _ := Build(sig, nil, emptyState(), testThresholds, buildNow); len(list) != 0 {
		t.Errorf("zero limit must not divide: %+v", list)
	}
}

func TestStatusTransitionSeverity(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{"past_due", TypeAlert},
		{"unpaid", TypeAlert},
		{"canceled", TypeAlert},
		{"incomplete", TypeAlert},
		{"incomplete_expired", TypeAlert},
		{"active", TypeSuccess},
		{"trialing", TypeSuccess},
		{"paused", TypeInfo},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			sig := Signals{Current: &SubscriptionSignal{PlanCode: "pro", Status: tt.status}}
			prev := &PrevSubscription{PlanCode: "pro", Status: "other"}
			list, _ := Build(sig, prev, emptyState(), testThresholds, buildNow)
			if len(list) != 1 || list[0].ID != "sub|status|"+tt.status {
				t.Fatalf("got %+v", list)
			}
			if list[0].Type != tt.want {
				t.Errorf("type %q, want %q", list[0].Type, tt.want)
			}
		})
	}
}

func TestNoTransitionsWithoutSnapshot(t *testing.T) {
	sig := Signals{Current: &SubscriptionSignal{PlanCode: "pro", Status: "past_due"}}
	if list, _ := Build(sig, nil, emptyState(), testThresholds, buildNow); len(list) != 0 {
		t.Errorf("first run has no baseline to compare against: %+v", list)
	}
}

func TestUnchangedSubscriptionIsQuiet(t *testing.T) {
	sig := Signals{Current: &SubscriptionSignal{PlanCode: "pro", PlanName: "Pro", Status: "active"}}
	prev := &PrevSubscription{PlanCode: "pro", PlanName: "Pro", Status: "active"}
	if list, _ := Build(sig, prev, emptyState(), testThresholds, buildNow); len(list) != 0 {
		t.Errorf("no change must produce nothing: %+v", list)
	}
}

func TestPaymentFailuresCappedAtTwenty(t *testing.T) {
	var payments []PaymentSignal
	for i := 0; i < 30; i++ {
		payments = append(payments, PaymentSignal{ID: string(rune('a' + i)), Status: "failed"})
	}
	list, _ := Build(Signals{Payments: payments}, nil, emptyState(), testThresholds, buildNow)
	if len(list) != 20 {
		t.Errorf("expected the scan capped at 20 rows, got %d", len(list))
	}
}

func TestSortedNewestFirst(t *testing.T) {
	prev := &PrevSubscription{PlanCode: "free", Status: "active"}
	list, _ := Build(fullSignals(), prev, emptyState(), testThresholds, buildNow)
	for i := 1; i < len(list); i++ {
		if list[i-1].Timestamp < list[i].Timestamp {
			t.Fatalf("not sorted descending at %d: %q < %q", i, list[i-1].Timestamp, list[i].Timestamp)
		}
	}
}

func TestFirstSeenDefaultsToNow(t *testing.T) {
	sig := Signals{Dashboard: &DashboardSignal{SuccessRateValue: 50}}
	list, minted := Build(sig, nil, emptyState(), testThresholds, buildNow)
	if len(list) != 1 {
		t.Fatalf("got %+v", list)
	}
	want := buildNow.Format(time.RFC3339)
	if list[0].Timestamp != want {
		t.Errorf("timestamp %q, want %q", list[0].Timestamp, want)
	}
	if minted["perf|lowSR"] != want {
		t.Errorf("minted %v", minted)
	}
}

func TestLowSuccessRateSkipsZero(t *testing.T) {
	sig := Signals{Dashboard: &DashboardSignal{SuccessRateValue: 0}}
	if list, _ := Build(sig, nil, emptyState(), testThresholds, buildNow); len(list) != 0 {
		t.Errorf("zero rate means no data, not bad performance: %+v", list)
	}
}

func TestJobIDFallsBackToAgentAndCallName(t *testing.T) {
	sig := Signals{Jobs: []JobSignal{{AgentID: "a-1", CallName: "q3", Status: "failed"}}}
	list, _ := Build(sig, nil, emptyState(), testThresholds, buildNow)
	if len(list) != 1 || list[0].ID != "job|a-1|q3|fail" {
		t.Fatalf("got %+v", list)
	}
}
