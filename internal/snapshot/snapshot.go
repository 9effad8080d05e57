// Package snapshot extracts product candidates from a static HTML
// snapshot of the listing page. It is the fallback path when the
// injected collector could not run (script channel unavailable or
// timed out): the orchestrator pulls the document's outer HTML and
// parses it here instead. Candidates found this way carry no DOM tag,
// so add-to-cart falls through to the text-scoring stages.
package snapshot

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/jsonquery"
	"github.com/cartpilot/cartpilot/internal/normalize"
	"github.com/cartpilot/cartpilot/internal/retailer"
	"github.com/cartpilot/cartpilot/internal/types"
	"golang.org/x/net/html"
)

var (
	pricePattern      = regexp.MustCompile(`\$\s*\d+[.,]?\d*`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	bgImagePattern    = regexp.MustCompile(`url\(["']?([^"')]+)["']?\)`)
)

// Collect parses body and returns the raw candidates found via the
// profile's tile selectors, enriched with any JSON-LD product
// metadata embedded in the page. The caller ranks the result.
func Collect(body string, p *retailer.Profile, limit int) ([]types.ProductCandidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page snapshot: %w", err)
	}

	seen := map[*html.Node]bool{}
	var candidates []types.ProductCandidate
	nextID := 1

	for _, selector := range p.TileSelectors {
		doc.Find(selector).Each(func(_ int, tile *goquery.Selection) {
			if len(tile.Nodes) == 0 || seen[tile.Nodes[0]] {
				return
			}
			seen[tile.Nodes[0]] = true

			text := strings.TrimSpace(tile.Text())
			if text == "" {
				return
			}
			hasPrice := pricePattern.MatchString(text)
			hasAdd := tile.Find("button").Length() > 0
			if !hasPrice && !hasAdd {
				return
			}

			flat := whitespacePattern.ReplaceAllString(text, " ")
			lower := strings.ToLower(flat)
			c := types.ProductCandidate{
				ID:        fmt.Sprintf("snap-%d", nextID),
				Title:     tileTitle(tile, flat),
				Text:      shorten(flat, 600),
				Href:      tileHref(tile, p),
				ImageURL:  tileImage(tile),
				PriceText: pricePattern.FindString(flat),
				Snippet:   shorten(flat, 160),
			}
			for _, marker := range p.OutOfStockMarkers {
				if strings.Contains(lower, marker) {
					c.OutOfStock = true
					break
				}
			}
			nextID++
			candidates = append(candidates, c)
		})
		if limit > 0 && len(candidates) >= limit*4 {
			break
		}
	}

	enrichFromJSONLD(doc, candidates)
	return candidates, nil
}

func tileTitle(tile *goquery.Selection, fallback string) string {
	heading := strings.TrimSpace(tile.Find("h1,h2,h3,[class*='title'],[class*='name']").First().Text())
	if heading != "" {
		return shorten(whitespacePattern.ReplaceAllString(heading, " "), 160)
	}
	return shorten(fallback, 160)
}

// tileHref returns the first product link that stays on the retailer's
// allow-list; ad and social links are discarded here, not later.
func tileHref(tile *goquery.Selection, p *retailer.Profile) string {
	href := ""
	tile.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		candidate := a.AttrOr("href", "")
		if candidate == "" || !p.URLAllowed(candidate) {
			return true
		}
		href = candidate
		return false
	})
	return href
}

func tileImage(tile *goquery.Selection) string {
	img := tile.Find("img").First()
	if src := img.AttrOr("src", ""); src != "" {
		return src
	}
	if srcset := img.AttrOr("srcset", ""); srcset != "" {
		first := strings.Split(srcset, ",")[0]
		return strings.Fields(strings.TrimSpace(first))[0]
	}
	style := tile.Find("[style*='background-image']").First().AttrOr("style", "")
	if m := bgImagePattern.FindStringSubmatch(style); m != nil {
		return m[1]
	}
	return ""
}

type ldProduct struct {
	name         string
	image        string
	availability string
}

// enrichFromJSONLD fills in missing images and stock status from
// embedded application/ld+json Product blocks, matched by name.
func enrichFromJSONLD(doc *goquery.Document, candidates []types.ProductCandidate) {
	var products []ldProduct
	doc.Find(`script[type='application/ld+json']`).Each(func(_ int, s *goquery.Selection) {
		jdoc, err := jsonquery.Parse(strings.NewReader(s.Text()))
		if err != nil {
			return
		}
		for _, node := range jsonquery.Find(jdoc, "//name") {
			parent := node.Parent
			if parent == nil || !isProductNode(parent) {
				continue
			}
			prod := ldProduct{name: node.InnerText()}
			if img := childValue(parent, "image"); img != "" {
				prod.image = img
			}
			if offers := childNode(parent, "offers"); offers != nil {
				prod.availability = childValue(offers, "availability")
			}
			products = append(products, prod)
		}
	})
	if len(products) == 0 {
		return
	}

	for i := range candidates {
		comparable := normalize.Comparable(candidates[i].Title)
		for _, prod := range products {
			if comparable == "" || normalize.Comparable(prod.name) != comparable {
				continue
			}
			if candidates[i].ImageURL == "" && prod.image != "" {
				candidates[i].ImageURL = prod.image
			}
			if strings.Contains(strings.ToLower(prod.availability), "outofstock") {
				candidates[i].OutOfStock = true
			}
			break
		}
	}
}

func isProductNode(n *jsonquery.Node) bool {
	return childValue(n, "@type") == "Product"
}

func childNode(n *jsonquery.Node, name string) *jsonquery.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Data == name {
			return c
		}
	}
	return nil
}

func childValue(n *jsonquery.Node, name string) string {
	if c := childNode(n, name); c != nil {
		return c.InnerText()
	}
	return ""
}

func shorten(s string, l int) string {
	if len(s) > l && l != 0 {
		return s[:l]
	}
	return s
}
