// Package notify synthesizes the console's notifications from several
// independently fetched signals. Build is a pure function: identical
// signals and bookkeeping state always produce notifications with
// identical identifiers, so locally persisted read/dismissed state
// reattaches correctly across refreshes.
package notify

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Notification severities.
const (
	TypeAlert   = "alert"
	TypeWarning = "warning"
	TypeSuccess = "success"
	TypeInfo    = "info"
)

// Notification is one synthesized item. ID is deterministic for a given
// underlying signal.
type Notification struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Read      bool   `json:"read"`
}

// UsageSignal is the minutes-usage slice of the signals.
type UsageSignal struct {
	Used      float64
	Limit     float64
	PeriodEnd string
	ServerTS  string
}

// SubscriptionSignal is the current-subscription slice.
type SubscriptionSignal struct {
	PlanCode string
	PlanName string
	Status   string
	ServerTS string
}

// PaymentSignal is one payment-history row.
type PaymentSignal struct {
	ID       string
	Status   string
	ServerTS string
}

// JobSignal is one batch calling job.
type JobSignal struct {
	JobID     string
	AgentID   string
	AgentName string
	CallName  string
	Status    string
	ServerTS  string
}

// DashboardSignal is the aggregate dashboard slice.
type DashboardSignal struct {
	SuccessRateValue float64
	ServerTS         string
}

// Signals carries everything Build derives notifications from. A nil
// slice member means that fetch failed or was skipped; it contributes
// nothing.
type Signals struct {
	Usage      *UsageSignal
	Current    *SubscriptionSignal
	Payments   []PaymentSignal
	Jobs       []JobSignal
	Dashboard  *DashboardSignal
	CallsToday int
	TodayKey   string
	NewestCall string
}

// PrevSubscription is the snapshot persisted from the previous load,
// used purely to detect plan and status transitions.
type PrevSubscription struct {
	PlanCode string `json:"planCode"`
	PlanName string `json:"planName"`
	Status   string `json:"status"`
}

// State is the locally persisted bookkeeping: read and dismissed flags
// keyed by notification id, and the first-seen timestamp per id so an
// item's apparent age is stable across refreshes.
type State struct {
	Read      map[string]bool
	Dismissed map[string]bool
	FirstSeen map[string]string
}

// Thresholds are the synthesis tuning knobs.
type Thresholds struct {
	UsageWarnPercent  float64
	UsageAlertPercent float64
	LowSuccessRate    float64
	HighCallVolume    int
}

// criticalStatuses map a subscription status transition to an alert;
// positiveStatuses to a success; anything else is informational.
var criticalStatuses = map[string]bool{
	"past_due":           true,
	"unpaid":             true,
	"canceled":           true,
	"incomplete":         true,
	"incomplete_expired": true,
}

var positiveStatuses = map[string]bool{
	"active":   true,
	"trialing": true,
}

// Build synthesizes the notification list. It returns the visible
// notifications (dismissed ids excluded, read flags attached, newest
// first) and the first-seen entries minted during this pass, which the
// caller persists.
func Build(sig Signals, prev *PrevSubscription, st State, th Thresholds, now time.Time) ([]Notification, map[string]string) {
	minted := map[string]string{}

	stableTS := func(id, serverTS string) string {
		if existing := st.FirstSeen[id]; existing != "" {
			return existing
		}
		chosen := serverTS
		if chosen == "" {
			chosen = now.UTC().Format(time.RFC3339)
		}
		minted[id] = chosen
		return chosen
	}

	var out []Notification
	add := func(id, typ, title, message, serverTS string) {
		out = append(out, Notification{
			ID:        id,
			Type:      typ,
			Title:     title,
			Message:   message,
			Timestamp: stableTS(id, serverTS),
			Read:      st.Read[id],
		})
	}

	if u := sig.Usage; u != nil && u.Limit > 0 {
		pct := u.Used / u.Limit * 100
		periodKey := u.PeriodEnd
		if periodKey == "" {
			periodKey = now.UTC().Format("2006-01-02")
		}
		switch {
		case pct >= th.UsageAlertPercent:
			add(
				fmt.Sprintf("usage|%s|ALERT", periodKey),
				TypeAlert,
				"Minutes Almost Exhausted",
				fmt.Sprintf("You've used %d/%d minutes (%d%%). Consider upgrading to avoid service interruption.",
					int(math.Round(u.Used)), int(u.Limit), int(math.Round(pct))),
				u.ServerTS,
			)
		case pct >= th.UsageWarnPercent:
			add(
				fmt.Sprintf("usage|%s|WARN", periodKey),
				TypeWarning,
				"High Usage Detected",
				fmt.Sprintf("You've used %d/%d minutes (%d%%).",
					int(math.Round(u.Used)), int(u.Limit), int(math.Round(pct))),
				u.ServerTS,
			)
		}
	}

	if cur := sig.Current; cur != nil && prev != nil {
		planCode := strings.ToLower(cur.PlanCode)
		prevCode := strings.ToLower(prev.PlanCode)
		if planCode != "" && prevCode != "" && planCode != prevCode {
			prevName := prev.PlanName
			if prevName == "" {
				prevName = prevCode
			}
			add(
				"sub|plan|"+planCode,
				TypeInfo,
				"Subscription Plan Changed",
				fmt.Sprintf("Your subscription changed from %q to %q.", prevName, cur.PlanName),
				cur.ServerTS,
			)
		}

		status := strings.ToLower(cur.Status)
		prevStatus := strings.ToLower(prev.Status)
		if status != "" && status != prevStatus {
			typ := TypeInfo
			if criticalStatuses[status] {
				typ = TypeAlert
			} else if positiveStatuses[status] {
				typ = TypeSuccess
			}
			if prevStatus == "" {
				prevStatus = "unknown"
			}
			add(
				"sub|status|"+status,
				typ,
				"Subscription Status Updated",
				fmt.Sprintf("Status changed from %q to %q.", prevStatus, status),
				cur.ServerTS,
			)
		}
	}

	payments := sig.Payments
	if len(payments) > 20 {
		payments = payments[:20]
	}
	for _, p := range payments {
		if !strings.Contains(strings.ToLower(p.Status), "fail") {
			continue
		}
		key := p.ID
		if key == "" {
			key = p.ServerTS
		}
		add(
			fmt.Sprintf("pay|%s|fail", key),
			TypeAlert,
			"Subscription Charge Failed",
			"A recent subscription charge failed. Please update your billing details.",
			p.ServerTS,
		)
	}

	for _, j := range sig.Jobs {
		jobID := j.JobID
		if jobID == "" {
			jobID = j.AgentID + "|" + j.CallName
		}
		if jobID == "|" {
			continue
		}
		status := strings.ToLower(j.Status)
		switch {
		case strings.Contains(status, "fail"):
			add(
				fmt.Sprintf("job|%s|fail", jobID),
				TypeAlert,
				"Batch Job Failed",
				fmt.Sprintf("Batch calling %q for %s failed.", j.CallName, j.AgentName),
				j.ServerTS,
			)
		case strings.Contains(status, "complete") || status == "done" || status == "finished":
			add(
				fmt.Sprintf("job|%s|ok", jobID),
				TypeSuccess,
				"Batch Job Completed",
				fmt.Sprintf("Batch calling %q for %s completed successfully.", j.CallName, j.AgentName),
				j.ServerTS,
			)
		case strings.Contains(status, "dispatch") || strings.Contains(status, "schedule") ||
			strings.Contains(status, "progress") || status == "pending":
			add(
				fmt.Sprintf("job|%s|info", jobID),
				TypeInfo,
				"Batch Job In Progress",
				fmt.Sprintf("Batch calling %q for %s is in progress.", j.CallName, j.AgentName),
				j.ServerTS,
			)
		}
	}

	if d := sig.Dashboard; d != nil {
		if sr := d.SuccessRateValue; sr > 0 && sr < th.LowSuccessRate {
			add(
				"perf|lowSR",
				TypeAlert,
				"Agent Performance Alert",
				fmt.Sprintf("Overall success rate dropped to %d%%. Review recent calls and retrain agents if needed.",
					int(math.Round(sr))),
				d.ServerTS,
			)
		}
	}

	if th.HighCallVolume > 0 && sig.CallsToday >= th.HighCallVolume {
		today := sig.TodayKey
		if today == "" {
			today = now.UTC().Format("2006-01-02")
		}
		add(
			fmt.Sprintf("calls|%s|high", today),
			TypeWarning,
			"High Call Volume",
			fmt.Sprintf("Unusually high call volume detected today (%d calls). Consider activating additional agents.",
				sig.CallsToday),
			sig.NewestCall,
		)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp > out[j].Timestamp
	})

	visible := out[:0]
	for _, n := range out {
		if !st.Dismissed[n.ID] {
			visible = append(visible, n)
		}
	}
	return visible, minted
}
