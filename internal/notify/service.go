package notify

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/voxdeck/voxdeck/internal/backend"
	"github.com/voxdeck/voxdeck/internal/config"
	"github.com/voxdeck/voxdeck/internal/localstore"
	"github.com/voxdeck/voxdeck/internal/metrics"
)

// Service fetches the signal slices, runs Build, and keeps the
// read/dismissed/first-seen bookkeeping persisted.
type Service struct {
	client  *backend.Client
	local   localstore.Store
	metrics *metrics.Metrics
	th      Thresholds
	now     func() time.Time

	mu      sync.Mutex
	current []Notification
}

// NewService wires the synthesis pipeline. m may be nil in tests.
func NewService(client *backend.Client, local localstore.Store, m *metrics.Metrics, cfg *config.Config) *Service {
	return &Service{
		client:  client,
		local:   local,
		metrics: m,
		th: Thresholds{
			UsageWarnPercent:  cfg.Notifications.UsageWarnPercent,
			UsageAlertPercent: cfg.Notifications.UsageAlertPercent,
			LowSuccessRate:    cfg.Notifications.LowSuccessRate,
			HighCallVolume:    cfg.Notifications.HighCallVolume,
		},
		now: time.Now,
	}
}

type usageWire struct {
	MinutesUsed      *float64 `json:"minutes_used"`
	UsedMinutes      *float64 `json:"used_minutes"`
	MinutesLimit     *float64 `json:"minutes_limit"`
	PlanMinutes      *float64 `json:"plan_minutes"`
	PeriodEnd        string   `json:"period_end"`
	CurrentPeriodEnd string   `json:"current_period_end"`
	UpdatedAt        string   `json:"updated_at"`
}

type subscriptionWire struct {
	PlanCode           string `json:"plan_code"`
	PlanName           string `json:"plan_name"`
	Status             string `json:"status"`
	SubscriptionStatus string `json:"subscription_status"`
	Plan               *struct {
		Code string `json:"code"`
		Name string `json:"name"`
	} `json:"plan"`
	UpdatedAt string `json:"updated_at"`
	CreatedAt string `json:"created_at"`
}

type paymentWire struct {
	ID        string `json:"id"`
	InvoiceID string `json:"invoice_id"`
	Cursor    string `json:"cursor"`
	Status    string `json:"status"`
	Created   any    `json:"created"`
	PaidAt    string `json:"paid_at"`
}

type paymentsWire struct {
	Payments []paymentWire `json:"payments"`
}

type jobWire struct {
	BatchJobID string `json:"batch_job_id"`
	ID         string `json:"id"`
	AgentID    string `json:"agent_id"`
	AgentName  string `json:"agent_name"`
	CallName   string `json:"call_name"`
	Status     string `json:"status"`
	Local      *struct {
		UpdatedStatus string `json:"updated_status"`
		CreatedAt     string `json:"created_at"`
	} `json:"local_record"`
	Live *struct {
		Status        string   `json:"status"`
		CreatedAtUnix *float64 `json:"created_at_unix"`
	} `json:"elevenlabs_live_status"`
}

type jobsWire struct {
	Jobs []jobWire `json:"jobs"`
}

type dashboardWire struct {
	Overview struct {
		SuccessRateValue *float64 `json:"success_rate_value"`
	} `json:"overview"`
	UpdatedAt string `json:"updated_at"`
}

type callWire struct {
	Timestamp string `json:"timestamp"`
	CreatedAt string `json:"created_at"`
	StartedAt string `json:"started_at"`
}

type callsWire struct {
	Calls []callWire `json:"calls"`
	Data  []callWire `json:"data"`
}

func firstFloat(ps ...*float64) float64 {
	for _, p := range ps {
		if p != nil {
			return *p
		}
	}
	return 0
}

func firstString(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}

func anyToISO(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return time.Unix(int64(t), 0).UTC().Format(time.RFC3339)
	}
	return ""
}

// fetchSignals loads the six signal slices concurrently. Each slice
// settles independently; a failed fetch logs and contributes nothing.
func (s *Service) fetchSignals(ctx context.Context) Signals {
	var (
		wg  sync.WaitGroup
		sig Signals

		usage     usageWire
		sub       subscriptionWire
		payments  paymentsWire
		jobs      jobsWire
		dashboard dashboardWire
		calls     callsWire

		usageErr, subErr, payErr, jobsErr, dashErr, callsErr error
	)

	wg.Add(6)
	go func() {
		defer wg.Done()
		usageErr = s.client.GetJSON(ctx, "/subscription/usage", nil, &usage)
	}()
	go func() {
		defer wg.Done()
		subErr = s.client.GetJSON(ctx, "/subscription/current", nil, &sub)
	}()
	go func() {
		defer wg.Done()
		q := url.Values{"limit": {"20"}}
		payErr = s.client.GetJSON(ctx, "/subscription/payment-history", q, &payments)
		if payErr != nil {
			q.Set("limit", "10")
			payErr = s.client.GetJSON(ctx, "/subscription/payment-history", q, &payments)
		}
	}()
	go func() {
		defer wg.Done()
		jobsErr = s.client.GetJSON(ctx, "/auth/agent/batch-calling-status", nil, &jobs)
	}()
	go func() {
		defer wg.Done()
		dashErr = s.client.PostJSON(ctx, "/analysis/dashboard-analytics", map[string]string{"range": "30d"}, &dashboard)
	}()
	go func() {
		defer wg.Done()
		q := url.Values{"limit": {"100"}}
		callsErr = s.client.GetJSON(ctx, "/auth/agent/call-history", q, &calls)
	}()
	wg.Wait()

	for name, err := range map[string]error{
		"usage": usageErr, "subscription": subErr, "payments": payErr,
		"jobs": jobsErr, "dashboard": dashErr, "calls": callsErr,
	} {
		if err != nil {
			slog.Debug("notification signal unavailable", "signal", name, "error", err)
		}
	}

	now := s.now().UTC()
	sig.TodayKey = now.Format("2006-01-02")

	if usageErr == nil {
		sig.Usage = &UsageSignal{
			Used:      firstFloat(usage.MinutesUsed, usage.UsedMinutes),
			Limit:     firstFloat(usage.MinutesLimit, usage.PlanMinutes),
			PeriodEnd: firstString(usage.PeriodEnd, usage.CurrentPeriodEnd),
			ServerTS:  usage.UpdatedAt,
		}
	}

	if subErr == nil {
		cur := &SubscriptionSignal{
			PlanCode: sub.PlanCode,
			PlanName: sub.PlanName,
			Status:   firstString(sub.Status, sub.SubscriptionStatus),
			ServerTS: firstString(sub.UpdatedAt, sub.CreatedAt),
		}
		if p := sub.Plan; p != nil {
			cur.PlanCode = firstString(cur.PlanCode, p.Code)
			cur.PlanName = firstString(cur.PlanName, p.Name)
		}
		sig.Current = cur
	}

	if payErr == nil {
		for _, p := range payments.Payments {
			sig.Payments = append(sig.Payments, PaymentSignal{
				ID:       firstString(p.ID, p.InvoiceID, p.Cursor),
				Status:   p.Status,
				ServerTS: firstString(p.PaidAt, anyToISO(p.Created)),
			})
		}
	}

	if jobsErr == nil {
		for _, j := range jobs.Jobs {
			// The row's own status wins over the live provider's here; a
			// row carrying neither is treated as pending.
			js := JobSignal{
				JobID:     firstString(j.BatchJobID, j.ID),
				AgentID:   j.AgentID,
				AgentName: j.AgentName,
				CallName:  j.CallName,
				Status:    j.Status,
			}
			if j.Live != nil {
				js.Status = firstString(js.Status, j.Live.Status)
				if j.Live.CreatedAtUnix != nil {
					js.ServerTS = time.Unix(int64(*j.Live.CreatedAtUnix), 0).UTC().Format(time.RFC3339)
				}
			}
			if j.Local != nil {
				js.Status = firstString(js.Status, j.Local.UpdatedStatus)
				js.ServerTS = firstString(j.Local.CreatedAt, js.ServerTS)
			}
			if js.Status == "" {
				js.Status = "pending"
			}
			sig.Jobs = append(sig.Jobs, js)
		}
	}

	if dashErr == nil && dashboard.Overview.SuccessRateValue != nil {
		sig.Dashboard = &DashboardSignal{
			SuccessRateValue: *dashboard.Overview.SuccessRateValue,
			ServerTS:         dashboard.UpdatedAt,
		}
	}

	if callsErr == nil {
		rows := calls.Calls
		if len(rows) == 0 {
			rows = calls.Data
		}
		for _, c := range rows {
			ts := firstString(c.Timestamp, c.CreatedAt, c.StartedAt)
			if len(ts) >= 10 && ts[:10] == sig.TodayKey {
				sig.CallsToday++
				if ts > sig.NewestCall {
					sig.NewestCall = ts
				}
			}
		}
	}

	return sig
}

func (s *Service) loadState(ctx context.Context) State {
	st := State{
		Read:      map[string]bool{},
		Dismissed: map[string]bool{},
		FirstSeen: map[string]string{},
	}
	if _, err := localstore.ReadJSON(ctx, s.local, localstore.KeyNotifRead, &st.Read); err != nil {
		slog.Warn("reading read map", "error", err)
	}
	if _, err := localstore.ReadJSON(ctx, s.local, localstore.KeyNotifDismissed, &st.Dismissed); err != nil {
		slog.Warn("reading dismissed map", "error", err)
	}
	if _, err := localstore.ReadJSON(ctx, s.local, localstore.KeyNotifFirstSeen, &st.FirstSeen); err != nil {
		slog.Warn("reading first-seen map", "error", err)
	}
	return st
}

// Refresh fetches the signals, rebuilds the notification list, and
// persists the bookkeeping that changed.
func (s *Service) Refresh(ctx context.Context) ([]Notification, error) {
	sig := s.fetchSignals(ctx)
	st := s.loadState(ctx)

	var prev *PrevSubscription
	if ok, err := localstore.ReadJSON(ctx, s.local, localstore.KeyPrevSubscription, &prev); err != nil {
		slog.Warn("reading previous subscription snapshot", "error", err)
	} else if !ok {
		prev = nil
	}

	list, minted := Build(sig, prev, st, s.th, s.now())

	if len(minted) > 0 {
		for id, ts := range minted {
			st.FirstSeen[id] = ts
		}
		if err := localstore.WriteJSON(ctx, s.local, localstore.KeyNotifFirstSeen, st.FirstSeen); err != nil {
			return nil, err
		}
	}

	if cur := sig.Current; cur != nil {
		snap := PrevSubscription{
			PlanCode: strings.ToLower(cur.PlanCode),
			PlanName: cur.PlanName,
			Status:   strings.ToLower(cur.Status),
		}
		if err := localstore.WriteJSON(ctx, s.local, localstore.KeyPrevSubscription, snap); err != nil {
			return nil, err
		}
	}

	if s.metrics != nil {
		s.metrics.NotificationsBuilt.Set(float64(len(list)))
	}

	s.mu.Lock()
	s.current = list
	s.mu.Unlock()
	return list, nil
}

// List returns the notifications from the last Refresh.
func (s *Service) List() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.current))
	copy(out, s.current)
	return out
}

// UnreadCount returns how many current notifications are unread.
func (s *Service) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, item := range s.current {
		if !item.Read {
			n++
		}
	}
	return n
}

// MarkRead flags one notification read.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	st := s.loadState(ctx)
	st.Read[id] = true
	if err := localstore.WriteJSON(ctx, s.local, localstore.KeyNotifRead, st.Read); err != nil {
		return err
	}
	s.mu.Lock()
	for i := range s.current {
		if s.current[i].ID == id {
			s.current[i].Read = true
		}
	}
	s.mu.Unlock()
	return nil
}

// MarkAllRead flags every current notification read.
func (s *Service) MarkAllRead(ctx context.Context) error {
	st := s.loadState(ctx)
	s.mu.Lock()
	for i := range s.current {
		st.Read[s.current[i].ID] = true
		s.current[i].Read = true
	}
	s.mu.Unlock()
	return localstore.WriteJSON(ctx, s.local, localstore.KeyNotifRead, st.Read)
}

// Dismiss hides one notification permanently. A dismissed id never
// resurfaces even when its underlying signal persists.
func (s *Service) Dismiss(ctx context.Context, id string) error {
	st := s.loadState(ctx)
	st.Dismissed[id] = true
	if err := localstore.WriteJSON(ctx, s.local, localstore.KeyNotifDismissed, st.Dismissed); err != nil {
		return err
	}
	s.mu.Lock()
	kept := s.current[:0]
	for _, item := range s.current {
		if item.ID != id {
			kept = append(kept, item)
		}
	}
	s.current = kept
	s.mu.Unlock()
	return nil
}

// ClearAll dismisses every current notification.
func (s *Service) ClearAll(ctx context.Context) error {
	st := s.loadState(ctx)
	s.mu.Lock()
	for _, item := range s.current {
		st.Dismissed[item.ID] = true
	}
	s.current = nil
	s.mu.Unlock()
	return localstore.WriteJSON(ctx, s.local, localstore.KeyNotifDismissed, st.Dismissed)
}
