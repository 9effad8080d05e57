// Package vision asks a vision-capable chat completion service whether
// a candidate's product image plausibly depicts the query product.
// Verification is strictly optional enrichment: a missing credential,
// a missing image or any transport failure yields ErrSkipped and the
// pipeline continues without it.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cartpilot/cartpilot/internal/types"
)

// ErrSkipped signals that no verification was available. Callers must
// branch on it explicitly instead of treating it like a negative
// verdict.
var ErrSkipped = errors.New("visual verification skipped")

// acceptance threshold for the reported confidence; absent confidence
// counts as accepted
const minConfidence = 0.45

// Verification is the service's structured verdict.
type Verification struct {
	Match      bool     `json:"match"`
	Confidence *float64 `json:"confidence,omitempty"`
	Reason     string   `json:"reason"`
}

// Accepted reports whether the verdict clears the confidence floor.
func (v *Verification) Accepted() bool {
	return v.Match && (v.Confidence == nil || *v.Confidence >= minConfidence)
}

type Verifier struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewVerifier returns a verifier, or nil when no API key is
// configured. A nil *Verifier is safe to use; all its calls skip.
func NewVerifier(apiKey, model string) *Verifier {
	if apiKey == "" {
		return nil
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Verifier{
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://api.openai.com/v1",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type responseFormat struct {
	Type       string     `json:"type"`
	JSONSchema jsonSchema `json:"json_schema"`
}

type jsonSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

var verificationSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"match":      map[string]any{"type": "boolean"},
		"confidence": map[string]any{"type": "number"},
		"reason":     map[string]any{"type": "string"},
	},
	"required":             []string{"match", "reason"},
	"additionalProperties": false,
}

// Verify asks the service whether imgURL depicts the query product.
// Returns ErrSkipped when verification is unavailable for any reason.
func (v *Verifier) Verify(ctx context.Context, query, imgURL string) (*Verification, error) {
	if v == nil || imgURL == "" {
		return nil, ErrSkipped
	}

	request := chatRequest{
		Model: v.model,
		Messages: []chatMessage{
			{
				Role:    "system",
				Content: "You verify grocery product images. Answer whether the image plausibly depicts the requested product.",
			},
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: fmt.Sprintf("Does this image show: %s?", query)},
					{Type: "image_url", ImageURL: &imageURL{URL: imgURL}},
				},
			},
		},
		ResponseFormat: &responseFormat{
			Type:       "json_schema",
			JSONSchema: jsonSchema{Name: "product_match", Schema: verificationSchema},
		},
	}

	verdict, err := v.call(ctx, request)
	if err != nil {
		// external-service failures degrade to the non-AI path
		slog.Debug(fmt.Sprintf("visual verification unavailable: %v", err))
		return nil, ErrSkipped
	}
	return verdict, nil
}

func (v *Verifier) call(ctx context.Context, request chatRequest) (*Verification, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/chat/completions", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+v.apiKey)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("verification API returned status %d: %s", resp.StatusCode, string(body))
	}

	var response chatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(response.Choices) == 0 {
		return nil, errors.New("verification response has no choices")
	}

	var verdict Verification
	if err := json.Unmarshal([]byte(response.Choices[0].Message.Content), &verdict); err != nil {
		return nil, fmt.Errorf("failed to parse verdict: %w", err)
	}
	return &verdict, nil
}

// Pick walks the ranked candidates in order and returns the first one
// the service accepts. When nothing gets accepted (or verification is
// skipped throughout) it falls back to the top-scored candidate: an
// item is never abandoned for lack of verification. The bool reports
// whether the returned candidate was actually verified.
func (v *Verifier) Pick(ctx context.Context, query string, ranked []types.ProductCandidate) (*types.ProductCandidate, bool) {
	if len(ranked) == 0 {
		return nil, false
	}
	if accepted := v.PickAccepted(ctx, query, ranked); accepted != nil {
		return accepted, true
	}
	return &ranked[0], false
}

// PickAccepted returns the first candidate the service accepts, or nil
// when nothing gets accepted (or verification is skipped throughout).
// Unlike Pick it never falls back; callers use it to let a verified
// candidate pass where an unverified one would not.
func (v *Verifier) PickAccepted(ctx context.Context, query string, ranked []types.ProductCandidate) *types.ProductCandidate {
	for i := range ranked {
		verdict, err := v.Verify(ctx, query, ranked[i].ImageURL)
		if err != nil {
			continue // skipped, try the next candidate
		}
		if verdict.Accepted() {
			slog.Debug(fmt.Sprintf("candidate %s visually verified: %s", ranked[i].ID, verdict.Reason))
			return &ranked[i]
		}
	}
	return nil
}
