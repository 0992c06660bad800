package console

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"sync"

	"github.com/voxdeck/voxdeck/internal/backend"
)

// Billing aggregates four independently-loading data slices plus the
// cursor-paginated payment history. Each slice carries its own loading
// and error fields so one failure renders as a partial page, never an
// all-or-nothing one.
type Billing struct {
	Plans        []Plan `json:"plans"`
	PlansLoading bool   `json:"plans_loading"`
	PlansError   string `json:"plans_error,omitempty"`

	CurrentSub     *Subscription `json:"current_sub"`
	CurrentLoading bool          `json:"current_loading"`
	CurrentError   string        `json:"current_error,omitempty"`

	Usage        *Usage `json:"usage"`
	UsageLoading bool   `json:"usage_loading"`
	UsageError   string `json:"usage_error,omitempty"`

	CompareData    map[string]any `json:"compare_data"`
	CompareLoading bool           `json:"compare_loading"`
	CompareError   string         `json:"compare_error,omitempty"`

	Payments            []Payment `json:"payments"`
	PaymentsLoading     bool      `json:"payments_loading"`
	PaymentsLoadingMore bool      `json:"payments_loading_more"`
	PaymentsError       string    `json:"payments_error,omitempty"`
	TotalPayments       int       `json:"total_payments"`
	HasMorePayments     bool      `json:"has_more_payments"`

	RedirectingPlan string `json:"redirecting_plan,omitempty"`
}

// BillingSnapshot returns a copy of the billing state.
func (s *Store) BillingSnapshot() Billing {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.billing
	b.Payments = make([]Payment, len(s.billing.Payments))
	copy(b.Payments, s.billing.Payments)
	b.Plans = make([]Plan, len(s.billing.Plans))
	copy(b.Plans, s.billing.Plans)
	return b
}

// BillingBootstrap fires the four billing fetches concurrently. The
// slices settle independently: a failure in one populates that slice's
// error and leaves the others alone.
func (s *Store) BillingBootstrap(ctx context.Context) Result {
	s.mu.Lock()
	s.billing.PlansLoading = true
	s.billing.PlansError = ""
	s.billing.CurrentLoading = true
	s.billing.CurrentError = ""
	s.billing.UsageLoading = true
	s.billing.UsageError = ""
	s.billing.CompareLoading = true
	s.billing.CompareError = ""
	s.mu.Unlock()

	var (
		plans    []Plan
		plansErr error

		current    *Subscription
		currentErr error

		usage    *Usage
		usageErr error

		compare    map[string]any
		compareErr error
	)

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		var rows []Plan
		if err := s.client.GetJSON(ctx, "/subscription/plans", nil, &rows); err != nil {
			plansErr = err
			return
		}
		plans = make([]Plan, 0, len(rows))
		for _, p := range rows {
			plans = append(plans, normalizePlan(p))
		}
	}()
	go func() {
		defer wg.Done()
		var sub Subscription
		if err := s.client.GetJSON(ctx, "/subscription/current", nil, &sub); err != nil {
			currentErr = err
			return
		}
		current = &sub
	}()
	go func() {
		defer wg.Done()
		var u Usage
		if err := s.client.GetJSON(ctx, "/subscription/usage", nil, &u); err != nil {
			usageErr = err
			return
		}
		usage = &u
	}()
	go func() {
		defer wg.Done()
		var c map[string]any
		if err := s.client.GetJSON(ctx, "/subscription/plan-comparison", nil, &c); err != nil {
			compareErr = err
			return
		}
		compare = c
	}()
	wg.Wait()

	s.mu.Lock()
	s.billing.PlansLoading = false
	if plansErr != nil {
		s.billing.Plans = nil
		s.billing.PlansError = errMessage(plansErr)
	} else {
		s.billing.Plans = plans
		s.billing.PlansError = ""
	}

	s.billing.CurrentLoading = false
	if currentErr != nil {
		s.billing.CurrentSub = nil
		s.billing.CurrentError = errMessage(currentErr)
	} else {
		s.billing.CurrentSub = current
		s.billing.CurrentError = ""
	}
	s.currentSubscription = s.billing.CurrentSub

	s.billing.UsageLoading = false
	if usageErr != nil {
		s.billing.Usage = nil
		s.billing.UsageError = errMessage(usageErr)
	} else {
		s.billing.Usage = usage
		s.billing.UsageError = ""
	}

	s.billing.CompareLoading = false
	if compareErr != nil {
		s.billing.CompareData = nil
		s.billing.CompareError = errMessage(compareErr)
	} else {
		s.billing.CompareData = compare
		s.billing.CompareError = ""
	}
	s.mu.Unlock()

	return Result{Success: true}
}

// BillingRefreshCore re-fetches only subscription and usage, the pair
// that changes after a plan action. Errors keep the previous values in
// place rather than clearing them.
func (s *Store) BillingRefreshCore(ctx context.Context) Result {
	var (
		current    *Subscription
		currentErr error
		usage      *Usage
		usageErr   error
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		var sub Subscription
		if err := s.client.GetJSON(ctx, "/subscription/current", nil, &sub); err != nil {
			currentErr = err
			return
		}
		current = &sub
	}()
	go func() {
		defer wg.Done()
		var u Usage
		if err := s.client.GetJSON(ctx, "/subscription/usage", nil, &u); err != nil {
			usageErr = err
			return
		}
		usage = &u
	}()
	wg.Wait()

	s.mu.Lock()
	if currentErr != nil {
		s.billing.CurrentError = errMessage(currentErr)
	} else {
		s.billing.CurrentSub = current
		s.billing.CurrentError = ""
		s.currentSubscription = current
	}
	if usageErr != nil {
		s.billing.UsageError = errMessage(usageErr)
	} else {
		s.billing.Usage = usage
		s.billing.UsageError = ""
	}
	s.mu.Unlock()

	return Result{Success: currentErr == nil && usageErr == nil}
}

type paymentHistoryResponse struct {
	Payments      []Payment `json:"payments"`
	TotalPayments int       `json:"total_payments"`
	HasMore       bool      `json:"has_more"`
}

// PaymentsQuery addresses one page of payment history.
type PaymentsQuery struct {
	StartingAfter string
	Limit         int
}

// FetchPayments loads one page of payment history. Non-append calls
// replace the cached list; append calls concatenate. A 500 for a page
// size above the safe floor is retried once at 20 rows before the error
// surfaces.
func (s *Store) FetchPayments(ctx context.Context, q PaymentsQuery, append_ bool) Result {
	if q.Limit <= 0 {
		q.Limit = s.cfg.Billing.PaymentPageSize
	}

	s.mu.Lock()
	if append_ {
		s.billing.PaymentsLoadingMore = true
	} else {
		s.billing.PaymentsLoading = true
		s.billing.PaymentsError = ""
		s.billing.Payments = nil
	}
	s.mu.Unlock()

	fetch := func(limit int) (*paymentHistoryResponse, error) {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(limit))
		if q.StartingAfter != "" {
			query.Set("starting_after", q.StartingAfter)
		}
		var resp paymentHistoryResponse
		if err := s.client.GetJSON(ctx, "/subscription/payment-history", query, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	}

	resp, err := fetch(q.Limit)
	if err != nil && backend.IsStatus(err, 500) && q.Limit > 20 {
		resp, err = fetch(20)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.billing.PaymentsLoading = false
	s.billing.PaymentsLoadingMore = false
	if err != nil {
		s.billing.PaymentsError = errMessage(err)
		if !append_ {
			s.billing.Payments = nil
		}
		return failure(errMessage(err))
	}

	if append_ {
		s.billing.Payments = append(s.billing.Payments, resp.Payments...)
	} else {
		s.billing.Payments = resp.Payments
	}
	s.billing.PaymentsError = ""
	s.billing.TotalPayments = resp.TotalPayments
	s.billing.HasMorePayments = resp.HasMore
	return Result{Success: true}
}

// LoadMorePayments appends the next page, deriving the cursor from the
// last cached row. It is a no-op without a cursor, without more pages,
// or while a load-more is already in flight.
func (s *Store) LoadMorePayments(ctx context.Context) Result {
	s.mu.Lock()
	b := s.billing
	if !b.HasMorePayments || b.PaymentsLoadingMore || len(b.Payments) == 0 {
		s.mu.Unlock()
		return Result{}
	}
	cursor := b.Payments[len(b.Payments)-1].CursorValue()
	s.mu.Unlock()

	if cursor == "" {
		return Result{}
	}
	return s.FetchPayments(ctx, PaymentsQuery{Limit: s.cfg.Billing.PaymentPageSize, StartingAfter: cursor}, true)
}

type checkoutSessionResponse struct {
	CheckoutURL string `json:"checkout_url"`
	URL         string `json:"url"`
}

// CheckoutResult carries the checkout session URL on success.
type CheckoutResult struct {
	Result
	URL string `json:"url,omitempty"`
}

// CreateCheckoutSession requests a checkout session URL for a plan. The
// RedirectingPlan marker is visible while the request is in flight and
// cleared either way.
func (s *Store) CreateCheckoutSession(ctx context.Context, plan Plan, returnURL string) CheckoutResult {
	code := checkoutCode(plan)

	s.mu.Lock()
	s.billing.RedirectingPlan = plan.Name
	s.mu.Unlock()

	clear := func() {
		s.mu.Lock()
		s.billing.RedirectingPlan = ""
		s.mu.Unlock()
	}

	body := map[string]string{
		"plan":        code,
		"success_url": fmt.Sprintf("%s/billing?tab=current&checkout=success&session_id={CHECKOUT_SESSION_ID}", returnURL),
		"cancel_url":  fmt.Sprintf("%s/billing?tab=plans&checkout=cancelled", returnURL),
	}

	var resp checkoutSessionResponse
	if err := s.client.PostJSON(ctx, "/subscription/create-checkout-session", body, &resp); err != nil {
		clear()
		return CheckoutResult{Result: failure(errMessage(err))}
	}

	u := firstNonEmpty(resp.CheckoutURL, resp.URL)
	if u == "" {
		clear()
		return CheckoutResult{Result: failure("no checkout_url returned")}
	}

	clear()
	return CheckoutResult{Result: Result{Success: true}, URL: u}
}

// DowngradeResult marks an idempotent downgrade where the account was
// already on the free plan.
type DowngradeResult struct {
	Result
	Already bool `json:"already,omitempty"`
}

var (
	alreadyPattern = regexp.MustCompile(`(?i)already`)
	freePattern    = regexp.MustCompile(`(?i)free`)
)

// DowngradeToFree downgrades the subscription to the free plan. The
// backend rejects a downgrade from free with an "already ... free"
// message; that outcome is a success, not an error.
func (s *Store) DowngradeToFree(ctx context.Context) DowngradeResult {
	err := s.client.PostJSON(ctx, "/subscription/downgrade-to-free", nil, nil)
	if err == nil {
		s.BillingRefreshCore(ctx)
		return DowngradeResult{Result: Result{Success: true}}
	}

	msg := errMessage(err)
	if alreadyPattern.MatchString(msg) && freePattern.MatchString(msg) {
		s.BillingRefreshCore(ctx)
		return DowngradeResult{Result: Result{Success: true}, Already: true}
	}
	return DowngradeResult{Result: failure(msg)}
}
