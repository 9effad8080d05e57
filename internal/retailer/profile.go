// Package retailer holds the per-retailer automation profiles. All
// site quirks (selector sets, URL layouts, auth indicators) live here
// so that the pipeline itself stays free of retailer conditionals.
package retailer

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/cartpilot/cartpilot/internal/types"
)

// Profile describes everything the automation needs to know about one
// retailer. Profiles can be overridden via the yaml configuration.
type Profile struct {
	Name             types.Retailer `yaml:"name"`
	HomeURL          string         `yaml:"home_url"`
	SearchURLFormat  string         `yaml:"search_url_format"` // %s is the escaped search term
	SearchPathPrefix string         `yaml:"search_path_prefix"`
	CartURL          string         `yaml:"cart_url"`
	AllowedHosts     []string       `yaml:"allowed_hosts"`

	TileSelectors      []string `yaml:"tile_selectors"`
	AddButtonSelectors []string `yaml:"add_button_selectors"`
	// IncreaseSelectors is a heuristic list, tried in order. There is
	// no guarantee a generic increase control exists on every layout;
	// the add script reports how many increments actually took effect.
	IncreaseSelectors []string `yaml:"increase_selectors"`
	ConsentSelectors  []string `yaml:"consent_selectors"`
	AuthIndicators    []string `yaml:"auth_indicators"`
	OutOfStockMarkers []string `yaml:"out_of_stock_markers"`
}

// BlockedLinkTokens marks hrefs that must never be followed even when
// they appear inside a product tile (ads, social widgets, app-store
// banners).
var BlockedLinkTokens = []string{
	"facebook.com", "instagram.com", "twitter.com", "x.com", "tiktok.com",
	"youtube.com", "pinterest.com", "apps.apple.com", "play.google.com",
	"mailto:", "tel:", "intent://",
}

// SearchURL builds the canonical search URL for a term. Navigating
// directly to this URL is more reliable than driving a search box.
func (p *Profile) SearchURL(term string) string {
	return fmt.Sprintf(p.SearchURLFormat, url.QueryEscape(term))
}

// HostAllowed reports whether host is on the retailer's allow-list,
// either exactly or as a subdomain. This is a hard safety boundary:
// navigation and DOM mutation are refused everywhere else.
func (p *Profile) HostAllowed(host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return false
	}
	for _, allowed := range p.AllowedHosts {
		allowed = strings.ToLower(allowed)
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

// URLAllowed parses rawURL and checks its host against the allow-list
// and the blocked-link tokens. Relative URLs are allowed since they
// cannot leave the site.
func (p *Profile) URLAllowed(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, token := range BlockedLinkTokens {
		if strings.Contains(lower, token) {
			return false
		}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Host == "" {
		return !strings.HasPrefix(lower, "//")
	}
	return p.HostAllowed(u.Hostname())
}

// Default returns the built-in profile for a retailer, or nil if the
// retailer is unknown.
func Default(r types.Retailer) *Profile {
	switch r {
	case types.RetailerWoolworths:
		p := woolworths
		return &p
	case types.RetailerColes:
		p := coles
		return &p
	default:
		return nil
	}
}

var woolworths = Profile{
	Name:             types.RetailerWoolworths,
	HomeURL:          "https://www.woolworths.com.au/",
	SearchURLFormat:  "https://www.woolworths.com.au/shop/search/products?searchTerm=%s",
	SearchPathPrefix: "/shop/search/products",
	CartURL:          "https://www.woolworths.com.au/shop/cart",
	AllowedHosts:     []string{"woolworths.com.au"},
	TileSelectors: []string{
		"wc-product-tile",
		"[class*='product-tile']",
		"[class*='productTile']",
		"[data-testid*='product-tile']",
		"section[class*='product'] article",
	},
	AddButtonSelectors: []string{
		"button[class*='cartControls']",
		"button[class*='add-to-cart']",
		"button[aria-label*='Add to cart']",
		"button[data-testid*='add']",
	},
	IncreaseSelectors: []string{
		"button[aria-label*='Increase']",
		"button[class*='cartControls-incrementButton']",
		"button[data-testid*='increment']",
	},
	ConsentSelectors: []string{
		"button[id*='onetrust-accept']",
		"button[aria-label*='Accept']",
		"[class*='cookie'] button",
	},
	AuthIndicators: []string{
		"[class*='accountName']",
		"[data-testid='logged-in']",
		"button[aria-label*='My account']",
	},
	OutOfStockMarkers: []string{"out of stock", "sold out", "unavailable", "currently unavailable"},
}

var coles = Profile{
	Name:             types.RetailerColes,
	HomeURL:          "https://www.coles.com.au/",
	SearchURLFormat:  "https://www.coles.com.au/search/products?q=%s",
	SearchPathPrefix: "/search",
	CartURL:          "https://www.coles.com.au/checkout/cart",
	AllowedHosts:     []string{"coles.com.au"},
	TileSelectors: []string{
		"[data-testid='product-tile']",
		"section[data-testid*='product']",
		"[class*='product-tile']",
		"[class*='ProductTile']",
	},
	AddButtonSelectors: []string{
		"button[data-testid='btn-add-to-cart']",
		"button[aria-label*='Add to trolley']",
		"button[class*='add-to-trolley']",
		"button[data-testid*='add']",
	},
	IncreaseSelectors: []string{
		"button[aria-label*='Increase']",
		"button[data-testid*='increment']",
		"button[data-testid='plus-button']",
	},
	ConsentSelectors: []string{
		"button[id*='onetrust-accept']",
		"button[aria-label*='Accept all']",
		"[class*='cookie'] button",
	},
	AuthIndicators: []string{
		"[data-testid='account-name']",
		"[class*='loggedIn']",
		"button[aria-label*='Account']",
	},
	OutOfStockMarkers: []string{"out of stock", "sold out", "unavailable"},
}
