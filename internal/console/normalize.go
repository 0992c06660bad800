package console

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// The backend returns many fields in inconsistent shapes: identifiers
// under alternate names, numbers as strings, percentages as "85%", a
// fraction, or an integer. Each entity is decoded from a loose wire
// struct and normalized here, in exactly one place.

// num coerces a decoded JSON value into a float64, returning 0 for
// anything unparseable.
func num(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func str(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == math.Trunc(x) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", x)
	}
}

func clamp0to100(v float64) int {
	r := math.Round(v)
	if r < 0 {
		return 0
	}
	if r > 100 {
		return 100
	}
	return int(r)
}

// toMMSS renders a duration in seconds as "m:ss".
func toMMSS(secs float64) string {
	if secs < 0 || math.IsNaN(secs) {
		secs = 0
	}
	s := int(secs)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

// snake lowercases a display name into a plan code ("Pro Plan" ->
// "pro_plan").
func snake(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(name))), "_")
}

var nonPhoneChars = regexp.MustCompile(`[^\d+]`)

// normalizePhone strips formatting characters and forces a leading "+".
func normalizePhone(s string) string {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return ""
	}
	digits := nonPhoneChars.ReplaceAllString(raw, "")
	body := strings.TrimPrefix(digits, "+")
	if body == "" {
		return ""
	}
	return "+" + body
}

// unixToISO converts a Unix-seconds timestamp to RFC 3339 UTC, or ""
// when the input is absent.
func unixToISO(u *float64) string {
	if u == nil {
		return ""
	}
	return time.Unix(int64(*u), 0).UTC().Format(time.RFC3339)
}

// collapseSpaces folds runs of whitespace into single spaces and trims.
// Batch cancel/retry are keyed by campaign name, which users type.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Agent is the strict internal model for one agent row.
type Agent struct {
	ID                  string `json:"id"`
	AgentID             string `json:"agent_id"`
	Name                string `json:"name"`
	Type                string `json:"type"`
	IsActive            bool   `json:"is_active"`
	Status              string `json:"status"`
	OwnerEmail          string `json:"owner_email,omitempty"`
	TotalCalls          int    `json:"total_calls"`
	SuccessRate         int    `json:"success_rate"`
	AverageCallDuration string `json:"average_call_duration"`
	CreatedAt           string `json:"created_at,omitempty"`
}

// Matches reports whether id refers to this agent under either of the
// two identifier fields the backend uses interchangeably.
func (a Agent) Matches(id string) bool {
	return id != "" && (a.ID == id || a.AgentID == id)
}

type agentStatsWire struct {
	Calls           any `json:"calls"`
	SuccessRate     any `json:"successRate"`
	AvgCallDuration any `json:"avgCallDuration"`
}

type agentWire struct {
	AgentID   any    `json:"agent_id"`
	ID        any    `json:"id"`
	LegacyID  any    `json:"_id"`
	AgentName string `json:"agent_name"`
	Name      string `json:"name"`
	AgentType string `json:"agent_type"`
	Type      string `json:"type"`
	IsActive  bool   `json:"is_active"`

	TotalCalls any `json:"total_calls"`
	CallCount  any `json:"call_count"`

	SuccessRate         any    `json:"success_rate"`
	AverageCallDuration any    `json:"average_call_duration"`
	CreatedAt           string `json:"created_at"`
	UserEmail           string `json:"user_email"`
	Email               string `json:"email"`

	Stats *agentStatsWire `json:"stats"`
}

func firstStr(vals ...any) string {
	for _, v := range vals {
		if s := str(v); s != "" {
			return s
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// normalizeAgent turns one loose agent row into the strict model.
//
// The success rate arrives as "85%", 0.85, or 85; values at or below 1
// are treated as fractions and scaled. The value 1 therefore reads as
// 100%, which is the established interpretation and is kept as is.
func normalizeAgent(w agentWire) Agent {
	id := firstStr(w.AgentID, w.ID, w.LegacyID)

	name := firstNonEmpty(w.AgentName, w.Name, "Untitled Agent")
	typ := snake(firstNonEmpty(w.AgentType, w.Type, "unknown"))
	if typ == "" {
		typ = "unknown"
	}

	status := "inactive"
	if w.IsActive {
		status = "active"
	}

	calls := w.TotalCalls
	if calls == nil && w.Stats != nil {
		calls = w.Stats.Calls
	}
	if calls == nil {
		calls = w.CallCount
	}

	sr := w.SuccessRate
	if sr == nil && w.Stats != nil {
		sr = w.Stats.SuccessRate
	}
	srVal := num(strings.TrimSuffix(strings.TrimSpace(str(sr)), "%"))
	if srVal <= 1 {
		srVal *= 100
	}

	dur := w.AverageCallDuration
	if dur == nil && w.Stats != nil {
		dur = w.Stats.AvgCallDuration
	}
	duration := str(dur)
	if !strings.Contains(duration, ":") {
		duration = toMMSS(num(dur))
	}

	return Agent{
		ID:                  id,
		AgentID:             str(w.AgentID),
		Name:                name,
		Type:                typ,
		IsActive:            w.IsActive,
		Status:              status,
		OwnerEmail:          firstNonEmpty(w.UserEmail, w.Email),
		TotalCalls:          int(num(calls)),
		SuccessRate:         clamp0to100(srVal),
		AverageCallDuration: duration,
		CreatedAt:           w.CreatedAt,
	}
}

// BatchJob is the strict model for one batch calling job.
type BatchJob struct {
	BatchJobID   string `json:"batch_job_id"`
	CallName     string `json:"call_name"`
	AgentName    string `json:"agent_name"`
	AgentID      string `json:"agent_id"`
	TotalNumbers int    `json:"total_numbers"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at,omitempty"`
}

type batchLocalRecordWire struct {
	UpdatedStatus       string   `json:"updated_status"`
	PreviousLocalStatus string   `json:"previous_local_status"`
	TotalNumbers        *float64 `json:"total_numbers"`
	CreatedAt           string   `json:"created_at"`
}

type batchLiveStatusWire struct {
	Status               string   `json:"status"`
	TotalCallsScheduled  *float64 `json:"total_calls_scheduled"`
	TotalCallsDispatched *float64 `json:"total_calls_dispatched"`
	CreatedAtUnix        *float64 `json:"created_at_unix"`
}

type batchJobWire struct {
	BatchJobID any                   `json:"batch_job_id"`
	CallName   string                `json:"call_name"`
	AgentName  string                `json:"agent_name"`
	AgentID    string                `json:"agent_id"`
	Local      *batchLocalRecordWire `json:"local_record"`
	Live       *batchLiveStatusWire  `json:"elevenlabs_live_status"`
}

// preferStatus derives a job's status: the live provider status wins,
// then the locally recorded one, then "pending". Our database record is
// more trustworthy for identity fields; the live integration is more
// trustworthy for status.
func preferStatus(w batchJobWire) string {
	live := ""
	if w.Live != nil {
		live = w.Live.Status
	}
	local := ""
	if w.Local != nil {
		local = firstNonEmpty(w.Local.UpdatedStatus, w.Local.PreviousLocalStatus)
	}
	return strings.ToLower(firstNonEmpty(live, local, "pending"))
}

// numbersFrom derives the target count: the local record wins over the
// live provider's scheduled/dispatched totals.
func numbersFrom(w batchJobWire) int {
	if w.Local != nil && w.Local.TotalNumbers != nil {
		return int(*w.Local.TotalNumbers)
	}
	if w.Live != nil {
		if w.Live.TotalCallsScheduled != nil {
			return int(*w.Live.TotalCallsScheduled)
		}
		if w.Live.TotalCallsDispatched != nil {
			return int(*w.Live.TotalCallsDispatched)
		}
	}
	return 0
}

// createdAtFrom derives the creation timestamp: the local ISO timestamp
// wins over the provider's Unix one.
func createdAtFrom(w batchJobWire) string {
	if w.Local != nil && w.Local.CreatedAt != "" {
		return w.Local.CreatedAt
	}
	if w.Live != nil {
		return unixToISO(w.Live.CreatedAtUnix)
	}
	return ""
}

func normalizeBatchJob(w batchJobWire) BatchJob {
	return BatchJob{
		BatchJobID:   str(w.BatchJobID),
		CallName:     w.CallName,
		AgentName:    w.AgentName,
		AgentID:      w.AgentID,
		TotalNumbers: numbersFrom(w),
		Status:       preferStatus(w),
		CreatedAt:    createdAtFrom(w),
	}
}

// Plan is one row of the subscription plans catalog.
type Plan struct {
	Name            string         `json:"name"`
	SetupFee        any            `json:"setup_fee"`
	MonthlyPrice    any            `json:"monthly_price"`
	IncludedMinutes any            `json:"included_minutes"`
	ExtraMinuteRate any            `json:"extra_minute_rate"`
	Features        map[string]any `json:"features"`
	ID              any            `json:"id"`
	Code            string         `json:"code"`
	IsPopular       bool           `json:"is_popular"`
	RecommendedFor  string         `json:"recommended_for"`
	Plan            any            `json:"plan"`
}

func normalizePlan(p Plan) Plan {
	p.Name = strings.TrimSpace(p.Name)
	if p.Features == nil {
		p.Features = map[string]any{}
	}
	return p
}

// checkoutCode derives the backend plan code: the explicit code when
// present, otherwise the snake_cased plan name.
func checkoutCode(p Plan) string {
	if code := strings.ToLower(strings.TrimSpace(p.Code)); code != "" {
		return code
	}
	return snake(p.Name)
}

// Subscription is the loose current-subscription shape. The backend has
// shipped several variants of the plan code/name/status fields; the
// accessor methods centralize the fallback order.
type Subscription struct {
	PlanCode         string `json:"plan_code"`
	Code             string `json:"code"`
	CurrentPlan      string `json:"current_plan"`
	SubscriptionPlan string `json:"subscription_plan"`
	PlanName         string `json:"plan_name"`
	Name             string `json:"name"`
	Plan             *struct {
		Code string `json:"code"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"plan"`
	Status             string `json:"status"`
	SubscriptionStatus string `json:"subscription_status"`
	UpdatedAt          string `json:"updated_at"`
	CurrentPeriodStart string `json:"current_period_start"`
	CreatedAt          string `json:"created_at"`
}

// PlanCodeNorm returns the lowercased plan code under whichever field
// the backend used.
func (s *Subscription) PlanCodeNorm() string {
	if s == nil {
		return ""
	}
	code := s.PlanCode
	if code == "" {
		code = s.Code
	}
	if code == "" && s.Plan != nil {
		code = firstNonEmpty(s.Plan.Code, s.Plan.ID)
	}
	if code == "" {
		code = firstNonEmpty(s.CurrentPlan, s.SubscriptionPlan)
	}
	return strings.ToLower(code)
}

// PlanNameNorm returns a display name for the plan.
func (s *Subscription) PlanNameNorm() string {
	if s == nil {
		return ""
	}
	name := firstNonEmpty(s.PlanName, s.Name)
	if name == "" && s.Plan != nil {
		name = s.Plan.Name
	}
	if name == "" {
		name = firstNonEmpty(s.SubscriptionPlan, s.PlanCodeNorm(), "Current Plan")
	}
	return name
}

// StatusNorm returns the lowercased subscription status.
func (s *Subscription) StatusNorm() string {
	if s == nil {
		return ""
	}
	return strings.ToLower(firstNonEmpty(s.Status, s.SubscriptionStatus))
}

// ChangedAt returns the best server timestamp for a subscription change.
func (s *Subscription) ChangedAt() string {
	if s == nil {
		return ""
	}
	return firstNonEmpty(s.UpdatedAt, s.CurrentPeriodStart, s.CreatedAt)
}

// Usage is the loose minutes-usage shape with its alternate field names.
type Usage struct {
	MinutesUsed         *float64 `json:"minutes_used"`
	UsedMinutes         *float64 `json:"used_minutes"`
	CurrentUsageMinutes *float64 `json:"current_usage_minutes"`
	MinutesLimit        *float64 `json:"minutes_limit"`
	LimitMinutes        *float64 `json:"limit_minutes"`
	PlanMinutes         *float64 `json:"plan_minutes"`
	PeriodEnd           string   `json:"period_end"`
	CurrentPeriodEnd    string   `json:"current_period_end"`
	UpdatedAt           string   `json:"updated_at"`
	Timestamp           string   `json:"timestamp"`
}

func firstFloat(vals ...*float64) float64 {
	for _, v := range vals {
		if v != nil && *v != 0 {
			return *v
		}
	}
	return 0
}

// Used returns the consumed minutes under whichever field is present.
func (u *Usage) Used() float64 {
	if u == nil {
		return 0
	}
	return firstFloat(u.MinutesUsed, u.UsedMinutes, u.CurrentUsageMinutes)
}

// Limit returns the plan minutes limit under whichever field is present.
func (u *Usage) Limit() float64 {
	if u == nil {
		return 0
	}
	return firstFloat(u.MinutesLimit, u.LimitMinutes, u.PlanMinutes)
}

// PeriodEndKey returns the billing period end used to key usage
// notifications, or "".
func (u *Usage) PeriodEndKey() string {
	if u == nil {
		return ""
	}
	return firstNonEmpty(u.PeriodEnd, u.CurrentPeriodEnd)
}

// ServerTimestamp returns the usage snapshot's server-side timestamp.
func (u *Usage) ServerTimestamp() string {
	if u == nil {
		return ""
	}
	return firstNonEmpty(u.UpdatedAt, u.Timestamp)
}

// Payment is one row of the payment history.
type Payment struct {
	ID            string  `json:"id"`
	InvoiceID     string  `json:"invoice_id"`
	Cursor        string  `json:"cursor"`
	Status        string  `json:"status"`
	PaymentStatus string  `json:"payment_status"`
	Amount        float64 `json:"amount"`
	CreatedAt     string  `json:"created_at"`
	InvoiceDate   string  `json:"invoice_date"`
	Timestamp     string  `json:"timestamp"`
}

// CursorValue returns the pagination cursor for this row: its explicit
// cursor, then its id, then its invoice id.
func (p Payment) CursorValue() string {
	return firstNonEmpty(p.Cursor, p.ID, p.InvoiceID)
}

// StatusNorm returns the lowercased payment status.
func (p Payment) StatusNorm() string {
	return strings.ToLower(firstNonEmpty(p.Status, p.PaymentStatus))
}

// PaidAt returns the best timestamp for this payment.
func (p Payment) PaidAt() string {
	return firstNonEmpty(p.CreatedAt, p.InvoiceDate, p.Timestamp)
}

// CallRecord is one row of the call history.
type CallRecord struct {
	ID        string `json:"id"`
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
	Status    string `json:"status"`
	Duration  any    `json:"duration"`
	CreatedAt string `json:"created_at"`
	Timestamp string `json:"timestamp"`
	Time      string `json:"time"`
}

// OccurredAt returns the best timestamp for this call.
func (c CallRecord) OccurredAt() string {
	return firstNonEmpty(c.CreatedAt, c.Timestamp, c.Time)
}

// WeeklyPoint is one day of the weekly performance series.
type WeeklyPoint struct {
	Day   string `json:"day"`
	Calls int    `json:"calls"`
}

type weeklyWire struct {
	Day   any `json:"day"`
	Calls any `json:"calls"`
}

var weekOrder = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

func weekdayKey(raw any) string {
	s := strings.ToLower(strings.TrimSpace(str(raw)))
	if n, err := strconv.Atoi(s); err == nil {
		switch {
		case n >= 1 && n <= 7:
			return weekOrder[n-1]
		case n >= 0 && n <= 6:
			return weekOrder[n]
		default:
			return "Mon"
		}
	}
	for _, d := range weekOrder {
		if strings.HasPrefix(s, strings.ToLower(d)) {
			return d
		}
	}
	return "Mon"
}

// weeklySeriesFrom reshapes the backend's weekly performance rows into a
// fixed Mon..Sun series, summing duplicate days.
func weeklySeriesFrom(rows []weeklyWire) []WeeklyPoint {
	sums := map[string]int{}
	for _, r := range rows {
		sums[weekdayKey(r.Day)] += int(num(r.Calls))
	}
	out := make([]WeeklyPoint, 0, len(weekOrder))
	for _, d := range weekOrder {
		out = append(out, WeeklyPoint{Day: d, Calls: sums[d]})
	}
	return out
}
