// Package automation sequences the full add-to-cart pipeline over a
// shopping list: navigation, consent dismissal, candidate collection,
// ranking, optional visual verification and the add-to-cart scripts.
// Items are processed strictly in input order and one item's failure
// never aborts the run.
package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cartpilot/cartpilot/internal/bridge"
	"github.com/cartpilot/cartpilot/internal/log"
	"github.com/cartpilot/cartpilot/internal/normalize"
	"github.com/cartpilot/cartpilot/internal/page"
	"github.com/cartpilot/cartpilot/internal/rank"
	"github.com/cartpilot/cartpilot/internal/retailer"
	"github.com/cartpilot/cartpilot/internal/script"
	"github.com/cartpilot/cartpilot/internal/snapshot"
	"github.com/cartpilot/cartpilot/internal/types"
	"github.com/cartpilot/cartpilot/internal/vision"
	"github.com/google/uuid"
)

// Callbacks is the orchestrator's entire observable output besides the
// final summary. All fields are optional.
type Callbacks struct {
	OnProgress      func(step types.AutomationStep, item *types.ShoppingItem)
	OnItemCompleted func(itemID string, success bool)
	OnPauseForAuth  func()
}

// AuthCheck reports whether the session looks signed in. The default
// implementation probes the page for the profile's auth indicators.
type AuthCheck func(ctx context.Context) bool

type Options struct {
	SkipAuthCheck bool
	DisableVision bool
	MaxCandidates int
	// AuthCheck replaces the default page-probe predicate.
	AuthCheck AuthCheck
	// InterItemDelay spaces out items so the page is not overwhelmed.
	InterItemDelay time.Duration
	// AuthPollDelay is the re-check interval while paused for sign-in.
	AuthPollDelay time.Duration
	// SettleDelay is the wait after an add stage navigated to a product
	// detail page, before the inline add runs.
	SettleDelay time.Duration
}

type Orchestrator struct {
	ctrl     page.Controller
	bridge   *bridge.Bridge
	profile  *retailer.Profile
	verifier *vision.Verifier
	cb       Callbacks
	opts     Options

	stopOnce sync.Once
	stopped  chan struct{}

	mu       sync.Mutex
	activity []string
}

func New(ctrl page.Controller, b *bridge.Bridge, profile *retailer.Profile, verifier *vision.Verifier, cb Callbacks, opts Options) *Orchestrator {
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = rank.DefaultLimit
	}
	if opts.InterItemDelay <= 0 {
		opts.InterItemDelay = 1500 * time.Millisecond
	}
	if opts.AuthPollDelay <= 0 {
		opts.AuthPollDelay = 3 * time.Second
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 2 * time.Second
	}
	return &Orchestrator{
		ctrl:     ctrl,
		bridge:   b,
		profile:  profile,
		verifier: verifier,
		cb:       cb,
		opts:     opts,
		stopped:  make(chan struct{}),
	}
}

// Stop prevents further items from starting. An in-flight script
// execution is allowed to complete or hit its own timeout.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stopped) })
}

// Run works through the shopping list and returns a per-run summary.
// Only setup-phase failures (wrong host entirely, navigation broken at
// the start) abort the whole run with an error.
func (o *Orchestrator) Run(ctx context.Context, items []types.ShoppingItem) (*types.RunSummary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-o.stopped:
			cancel()
		case <-ctx.Done():
		}
	}()

	summary := &types.RunSummary{
		RunID:     uuid.NewString(),
		Retailer:  o.profile.Name,
		StartedAt: time.Now(),
	}

	if err := o.ensureOnRetailer(ctx); err != nil {
		return nil, err
	}
	o.installGuard(ctx)

	if err := o.ensureAuthenticated(ctx); err != nil {
		return nil, err
	}

	for i, item := range items {
		if o.isStopping(ctx) {
			o.logf("stopped before item %q", item.Name)
			break
		}
		result := o.runItem(ctx, item)
		summary.Results = append(summary.Results, result)
		if result.Success {
			summary.Completed++
		} else {
			summary.Failed++
		}
		if o.cb.OnItemCompleted != nil {
			o.cb.OnItemCompleted(result.ItemID, result.Success)
		}
		if i < len(items)-1 {
			o.wait(ctx, o.opts.InterItemDelay)
		}
	}

	o.finish(ctx, summary)
	return summary, nil
}

// RunPlan drives a pre-resolved URL plan: navigate to each product URL
// and run the inline add, skipping search and ranking entirely.
func (o *Orchestrator) RunPlan(ctx context.Context, plan *types.AddPlan) (*types.RunSummary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-o.stopped:
			cancel()
		case <-ctx.Done():
		}
	}()

	summary := &types.RunSummary{
		RunID:     uuid.NewString(),
		Retailer:  o.profile.Name,
		StartedAt: time.Now(),
	}
	o.installGuard(ctx)

	for i, planned := range plan.Items {
		if o.isStopping(ctx) {
			o.logf("stopped before %s", planned.ProductURL)
			break
		}
		result := o.runPlanned(ctx, planned)
		summary.Results = append(summary.Results, result)
		if result.Success {
			summary.Completed++
		} else {
			summary.Failed++
		}
		if o.cb.OnItemCompleted != nil {
			o.cb.OnItemCompleted(result.ItemID, result.Success)
		}
		if i < len(plan.Items)-1 {
			o.wait(ctx, o.opts.InterItemDelay)
		}
	}

	o.finish(ctx, summary)
	return summary, nil
}

func (o *Orchestrator) runItem(ctx context.Context, item types.ShoppingItem) types.ItemResult {
	result := types.ItemResult{ItemID: itemID(item), Name: item.Name}
	logger := log.LoggerFromContext(ctx)

	o.step("search", "🔍", fmt.Sprintf("Searching for %s", item.Name), &item)
	o.execute(ctx, script.DismissConsent(o.profile))

	term := normalize.SearchTerm(item.Name)
	searchURL := o.profile.SearchURL(term)
	if err := o.ctrl.Navigate(ctx, searchURL); err != nil {
		result.Message = fmt.Sprintf("search navigation failed: %v", err)
		o.logf("item %q: %s", item.Name, result.Message)
		return result
	}
	o.correctLanding(ctx, searchURL)

	candidates, blocked := o.collect(ctx, term)
	if blocked {
		result.Message = "page is on a blocked host"
		o.logf("item %q: %s", item.Name, result.Message)
		return result
	}
	if len(candidates) == 0 {
		result.Message = fmt.Sprintf("no product tiles found for %q", term)
		o.logf("item %q: %s", item.Name, result.Message)
		return result
	}
	ranked := rank.Rank(term, candidates, o.opts.MaxCandidates)

	var pick *types.ProductCandidate
	if len(ranked) > 0 {
		logger.Debug(fmt.Sprintf("item %q: %d ranked candidates, top %q", item.Name, len(ranked), ranked[0].Title))
		pick = &ranked[0]
		if !o.opts.DisableVision && o.verifier != nil {
			o.step("verify", "👁", fmt.Sprintf("Verifying match for %s", item.Name), &item)
			verified := false
			pick, verified = o.verifier.Pick(ctx, term, ranked)
			if verified {
				o.logf("item %q: candidate %q visually verified", item.Name, pick.Title)
			}
		}
	} else if !o.opts.DisableVision && o.verifier != nil {
		// nothing cleared the scoring floor, but a visually verified
		// candidate still passes
		o.step("verify", "👁", fmt.Sprintf("Verifying match for %s", item.Name), &item)
		if accepted := o.verifier.PickAccepted(ctx, term, rank.RankAll(term, candidates, o.opts.MaxCandidates)); accepted != nil {
			pick = accepted
			o.logf("item %q: candidate %q visually verified", item.Name, pick.Title)
		}
	}

	qty := item.Quantity
	if qty < 1 {
		qty = 1
	}
	candidateID := ""
	title := term
	if pick != nil {
		candidateID = pick.ID
		title = pick.Title
	} else {
		// the add script re-scans the page itself, so a weak ranking
		// still gets the full selection chain before the item fails
		o.logf("item %q: no candidate cleared the scoring floor, scanning the page directly", item.Name)
	}
	o.step("add", "🛒", fmt.Sprintf("Adding %s to cart", title), &item)
	add := o.add(ctx, script.AddToCart(o.profile, candidateID, term, qty))
	if add.Navigated {
		// the add stage moved to a product detail page; let the load
		// settle and finish with the inline variant
		o.wait(ctx, o.opts.SettleDelay)
		add = o.add(ctx, script.InlineAdd(o.profile, qty))
	}

	result.Success = add.Success
	if add.Success {
		result.Message = fmt.Sprintf("added via %s stage", add.Stage)
		o.logf("item %q: added to cart (%s)", item.Name, add.Stage)
	} else {
		result.Message = add.Message
		if result.Message == "" {
			result.Message = "add to cart produced no observable result"
		}
		o.logf("item %q failed: %s", item.Name, result.Message)
	}
	return result
}

func (o *Orchestrator) runPlanned(ctx context.Context, planned types.AddPlanItem) types.ItemResult {
	result := types.ItemResult{ItemID: planned.ProductURL, Name: planned.ProductURL}

	if !o.profile.URLAllowed(planned.ProductURL) {
		result.Message = "planned URL is off the allow-list"
		o.logf("%s: %s", planned.ProductURL, result.Message)
		return result
	}
	o.step("navigate", "🧭", fmt.Sprintf("Opening %s", planned.ProductURL), nil)
	if err := o.ctrl.Navigate(ctx, planned.ProductURL); err != nil {
		result.Message = fmt.Sprintf("navigation failed: %v", err)
		o.logf("%s: %s", planned.ProductURL, result.Message)
		return result
	}
	o.execute(ctx, script.DismissConsent(o.profile))

	qty := planned.Qty
	if qty < 1 {
		qty = 1
	}
	o.step("add", "🛒", "Adding planned product to cart", nil)
	add := o.add(ctx, script.InlineAdd(o.profile, qty))
	result.Success = add.Success
	result.Message = add.Message
	if add.Success {
		o.logf("%s: added to cart (%s)", planned.ProductURL, add.Stage)
	} else {
		if result.Message == "" {
			result.Message = "inline add produced no observable result"
		}
		o.logf("%s failed: %s", planned.ProductURL, result.Message)
	}
	return result
}

// ensureOnRetailer navigates to the retailer's home page unless the
// session is already on an allowed host.
func (o *Orchestrator) ensureOnRetailer(ctx context.Context) error {
	loc, err := o.ctrl.Location(ctx)
	if err == nil && loc != "" {
		if u, perr := url.Parse(loc); perr == nil && o.profile.HostAllowed(u.Hostname()) {
			return nil
		}
	}
	o.step("navigate", "🧭", fmt.Sprintf("Opening %s", o.profile.HomeURL), nil)
	if err := o.ctrl.Navigate(ctx, o.profile.HomeURL); err != nil {
		return fmt.Errorf("failed to reach %s: %w", o.profile.HomeURL, err)
	}
	return nil
}

func (o *Orchestrator) installGuard(ctx context.Context) {
	o.execute(ctx, script.NavigationGuard(o.profile))
}

// ensureAuthenticated pauses until the auth predicate passes. A nil
// probe result counts as unknown and does not block the run.
func (o *Orchestrator) ensureAuthenticated(ctx context.Context) error {
	if o.opts.SkipAuthCheck {
		return nil
	}
	check := o.opts.AuthCheck
	if check == nil {
		check = o.probeAuth
	}
	for !check(ctx) {
		if o.isStopping(ctx) {
			return fmt.Errorf("stopped while waiting for sign-in")
		}
		o.step("auth", "🔐", "Waiting for sign-in", nil)
		if o.cb.OnPauseForAuth != nil {
			o.cb.OnPauseForAuth()
		}
		o.wait(ctx, o.opts.AuthPollDelay)
	}
	return nil
}

func (o *Orchestrator) probeAuth(ctx context.Context) bool {
	value := o.execute(ctx, script.AuthProbe(o.profile))
	signedIn, isBool := value.(bool)
	if !isBool {
		return true // unknown, do not block the run on a broken probe
	}
	return signedIn
}

// correctLanding re-navigates once when the search navigation got
// redirected off the canonical search path.
func (o *Orchestrator) correctLanding(ctx context.Context, searchURL string) {
	loc, err := o.ctrl.Location(ctx)
	if err != nil || loc == "" {
		return
	}
	u, err := url.Parse(loc)
	if err != nil {
		return
	}
	if o.profile.HostAllowed(u.Hostname()) && strings.HasPrefix(u.Path, o.profile.SearchPathPrefix) {
		return
	}
	log.LoggerFromContext(ctx).Debug(fmt.Sprintf("landed on %s, redirecting to search URL", loc))
	_ = o.ctrl.Navigate(ctx, searchURL)
}

type collectResult struct {
	Blocked    bool                     `json:"blocked"`
	Candidates []types.ProductCandidate `json:"candidates"`
}

// collect runs the injected collector and falls back to parsing a
// static HTML snapshot when the script channel yields nothing.
func (o *Orchestrator) collect(ctx context.Context, term string) (candidates []types.ProductCandidate, blocked bool) {
	value := o.execute(ctx, script.CollectCandidates(o.profile, term, o.opts.MaxCandidates))
	var collected collectResult
	if decode(value, &collected) {
		if collected.Blocked {
			return nil, true
		}
		if len(collected.Candidates) > 0 {
			return collected.Candidates, false
		}
	}

	body, err := o.ctrl.HTML(ctx)
	if err != nil || body == "" {
		return nil, false
	}
	snapped, err := snapshot.Collect(body, o.profile, o.opts.MaxCandidates)
	if err != nil {
		log.LoggerFromContext(ctx).Debug(fmt.Sprintf("snapshot fallback failed: %v", err))
		return nil, false
	}
	return snapped, false
}

type addResult struct {
	Success    bool   `json:"success"`
	Navigated  bool   `json:"navigated"`
	Stage      string `json:"stage"`
	Message    string `json:"message"`
	Increments int    `json:"increments"`
}

func (o *Orchestrator) add(ctx context.Context, src string) addResult {
	var result addResult
	if !decode(o.execute(ctx, src), &result) {
		result.Message = "add script yielded no result"
	}
	return result
}

func (o *Orchestrator) finish(ctx context.Context, summary *types.RunSummary) {
	if !o.isStopping(ctx) && o.profile.CartURL != "" {
		if err := o.ctrl.Navigate(ctx, o.profile.CartURL); err != nil {
			o.logf("cart navigation failed: %v", err)
		}
	}
	o.step("done", "✅", "Cart is ready for checkout", nil)
	o.logf("ready for checkout: %d added, %d failed", summary.Completed, summary.Failed)
	summary.EndedAt = time.Now()
	o.mu.Lock()
	summary.Log = append([]string(nil), o.activity...)
	o.mu.Unlock()
}

// execute funnels every script through the bridge; a nil value means
// the outcome could not be determined and callers treat it as unknown.
func (o *Orchestrator) execute(ctx context.Context, src string) any {
	value, err := o.bridge.Execute(ctx, src)
	if err != nil {
		return nil
	}
	return value
}

func (o *Orchestrator) step(action, icon, description string, item *types.ShoppingItem) {
	if o.cb.OnProgress != nil {
		o.cb.OnProgress(types.AutomationStep{Action: action, Icon: icon, Description: description}, item)
	}
}

func (o *Orchestrator) logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	o.mu.Lock()
	o.activity = append(o.activity, line)
	o.mu.Unlock()
}

func (o *Orchestrator) isStopping(ctx context.Context) bool {
	select {
	case <-o.stopped:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (o *Orchestrator) wait(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-o.stopped:
	}
}

func decode(value any, dst any) bool {
	if value == nil {
		return false
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

func itemID(item types.ShoppingItem) string {
	if item.ID != "" {
		return item.ID
	}
	return item.Name
}
