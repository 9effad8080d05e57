package vision

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cartpilot/cartpilot/internal/types"
)

func verdictServer(t *testing.T, verdicts map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		body, _ := json.Marshal(req)
		content := `{"match": false, "reason": "no rule matched"}`
		for needle, v := range verdicts {
			if needle != "" && strings.Contains(string(body), needle) {
				content = v
				break
			}
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Fatalf("failed to encode response: %v", err)
		}
	}))
}

func TestVerifyAccepted(t *testing.T) {
	srv := verdictServer(t, map[string]string{
		"milk.jpg": `{"match": true, "confidence": 0.9, "reason": "carton of milk"}`,
	})
	defer srv.Close()

	v := NewVerifier("test-key", "gpt-4o-mini")
	v.baseURL = srv.URL

	verdict, err := v.Verify(context.Background(), "full cream milk", "https://cdn.example.com/milk.jpg")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !verdict.Accepted() {
		t.Errorf("high-confidence match not accepted: %+v", verdict)
	}
}

func TestVerifyLowConfidenceRejected(t *testing.T) {
	srv := verdictServer(t, map[string]string{
		"blur.jpg": `{"match": true, "confidence": 0.2, "reason": "image too blurry"}`,
	})
	defer srv.Close()

	v := NewVerifier("test-key", "")
	v.baseURL = srv.URL

	verdict, err := v.Verify(context.Background(), "bread", "https://cdn.example.com/blur.jpg")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if verdict.Accepted() {
		t.Errorf("confidence 0.2 must not clear the floor: %+v", verdict)
	}
}

func TestVerifySkipsWithoutKeyOrImage(t *testing.T) {
	var v *Verifier = NewVerifier("", "")
	if v != nil {
		t.Fatal("NewVerifier without key must return nil")
	}
	if _, err := v.Verify(context.Background(), "milk", "https://x/img.jpg"); !errors.Is(err, ErrSkipped) {
		t.Errorf("nil verifier must skip, got %v", err)
	}

	srv := verdictServer(t, nil)
	defer srv.Close()
	withKey := NewVerifier("test-key", "")
	withKey.baseURL = srv.URL
	if _, err := withKey.Verify(context.Background(), "milk", ""); !errors.Is(err, ErrSkipped) {
		t.Errorf("missing image must skip, got %v", err)
	}
}

func TestVerifySkipsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	v := NewVerifier("test-key", "")
	v.baseURL = srv.URL
	if _, err := v.Verify(context.Background(), "milk", "https://cdn.example.com/milk.jpg"); !errors.Is(err, ErrSkipped) {
		t.Errorf("server failure must degrade to skip, got %v", err)
	}
}

func TestPickPrefersVerifiedCandidate(t *testing.T) {
	srv := verdictServer(t, map[string]string{
		"second.jpg": `{"match": true, "confidence": 0.8, "reason": "matches"}`,
	})
	defer srv.Close()

	v := NewVerifier("test-key", "")
	v.baseURL = srv.URL

	ranked := []types.ProductCandidate{
		{ID: "cp-1", Score: 90, ImageURL: "https://cdn.example.com/first.jpg"},
		{ID: "cp-2", Score: 70, ImageURL: "https://cdn.example.com/second.jpg"},
	}
	picked, verified := v.Pick(context.Background(), "milk", ranked)
	if picked == nil || picked.ID != "cp-2" {
		t.Fatalf("Pick = %+v; want the verified cp-2", picked)
	}
	if !verified {
		t.Error("Pick must report the candidate as verified")
	}
}

func TestPickFallsBackToTopScore(t *testing.T) {
	ranked := []types.ProductCandidate{
		{ID: "cp-1", Score: 90},
		{ID: "cp-2", Score: 70},
	}
	var v *Verifier
	picked, verified := v.Pick(context.Background(), "milk", ranked)
	if picked == nil || picked.ID != "cp-1" {
		t.Fatalf("Pick = %+v; want top-scored fallback", picked)
	}
	if verified {
		t.Error("fallback pick must not claim verification")
	}
	if p, _ := v.Pick(context.Background(), "milk", nil); p != nil {
		t.Errorf("Pick on empty slice = %+v; want nil", p)
	}
}

func TestPickAcceptedNeverFallsBack(t *testing.T) {
	srv := verdictServer(t, map[string]string{
		"second.jpg": `{"match": true, "confidence": 0.8, "reason": "matches"}`,
	})
	defer srv.Close()

	v := NewVerifier("test-key", "")
	v.baseURL = srv.URL

	ranked := []types.ProductCandidate{
		{ID: "cp-1", Score: 0, ImageURL: "https://cdn.example.com/first.jpg"},
		{ID: "cp-2", Score: -10, ImageURL: "https://cdn.example.com/second.jpg"},
	}
	if picked := v.PickAccepted(context.Background(), "milk", ranked); picked == nil || picked.ID != "cp-2" {
		t.Fatalf("PickAccepted = %+v; want the accepted cp-2", picked)
	}

	// nothing accepted: no top-score fallback, unlike Pick
	if picked := v.PickAccepted(context.Background(), "milk", ranked[:1]); picked != nil {
		t.Errorf("PickAccepted with no accepted candidate = %+v; want nil", picked)
	}
	var nilVerifier *Verifier
	if picked := nilVerifier.PickAccepted(context.Background(), "milk", ranked); picked != nil {
		t.Errorf("nil verifier must accept nothing, got %+v", picked)
	}
}

func TestAcceptedWithoutConfidence(t *testing.T) {
	verdict := Verification{Match: true, Reason: "looks right"}
	if !verdict.Accepted() {
		t.Error("match without confidence must be accepted")
	}
}
