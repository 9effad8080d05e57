// Package types defines shared types used across the application.
package types

import "time"

// Retailer identifies one of the supported e-commerce sites.
type Retailer string

const (
	RetailerWoolworths Retailer = "woolworths"
	RetailerColes      Retailer = "coles"
)

// ShoppingItem is one entry of the shopping list that should end up in
// the retailer's cart. Quantity is always >= 1.
type ShoppingItem struct {
	ID       string `yaml:"id,omitempty" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Quantity int    `yaml:"quantity" json:"quantity"`
	Unit     string `yaml:"unit,omitempty" json:"unit,omitempty"`
}

// ProductCandidate is a DOM-derived product tile hypothesized to match
// a search term. It only lives for the duration of one pipeline run.
// ID refers to the tag attribute set on the source element so the
// element can be re-located later in the same page context.
type ProductCandidate struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Text       string `json:"text,omitempty"`
	Href       string `json:"href,omitempty"`
	ImageURL   string `json:"imageUrl,omitempty"`
	PriceText  string `json:"priceText,omitempty"`
	Snippet    string `json:"snippet,omitempty"`
	OutOfStock bool   `json:"outOfStock,omitempty"`
	Score      int    `json:"score"`
}

// AutomationStep is a progress event emitted while the orchestrator
// works through the shopping list. It is observational only and never
// stored.
type AutomationStep struct {
	Action      string `json:"action"`
	Icon        string `json:"icon"`
	Description string `json:"description,omitempty"`
}

// RecordingAction is one captured user interaction. Timestamp is the
// absolute capture time in epoch milliseconds; during replay only the
// deltas between consecutive timestamps matter.
type RecordingAction struct {
	Type      string  `json:"type"` // tap, input or scroll
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Timestamp int64   `json:"timestamp"`
	Value     string  `json:"value,omitempty"`
}

const (
	ActionTypeTap    = "tap"
	ActionTypeInput  = "input"
	ActionTypeScroll = "scroll"
)

// AutomationScript is a named, persisted sequence of recorded actions
// for one retailer. It is immutable once saved; re-recording replaces
// it wholesale.
type AutomationScript struct {
	ID        string            `json:"id"`
	Retailer  Retailer          `json:"retailer"`
	Name      string            `json:"name"`
	Actions   []RecordingAction `json:"actions"`
	CreatedAt time.Time         `json:"createdAt"`
}

// AddPlanItem is a product already resolved to a canonical URL by the
// external planning service.
type AddPlanItem struct {
	ProductURL string `json:"productUrl"`
	Qty        int    `json:"qty"`
}

// AddPlan is the planning service's answer for a shopping list. When
// available, the orchestrator navigates the product URLs directly
// instead of searching.
type AddPlan struct {
	Retailer Retailer      `json:"retailer"`
	Items    []AddPlanItem `json:"items"`
}

// ItemResult is the final outcome for one shopping item.
type ItemResult struct {
	ItemID  string `json:"itemId"`
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// RunSummary collects the per-item results and the activity log of one
// automation run.
type RunSummary struct {
	RunID     string       `json:"runId"`
	Retailer  Retailer     `json:"retailer"`
	Results   []ItemResult `json:"results"`
	Completed int          `json:"completed"`
	Failed    int          `json:"failed"`
	Log       []string     `json:"log"`
	StartedAt time.Time    `json:"startedAt"`
	EndedAt   time.Time    `json:"endedAt"`
}
