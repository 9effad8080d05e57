package recorder

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cartpilot/cartpilot/internal/bridge"
	"github.com/cartpilot/cartpilot/internal/page"
	"github.com/cartpilot/cartpilot/internal/types"
)

func recorderMock() *page.MockController {
	mc := page.NewMockController(nil)
	mc.Respond = func(script string) (string, bool) {
		switch {
		case strings.Contains(script, "__cartpilotRecorder"):
			return `"recording"`, true
		case strings.Contains(script, "elementFromPoint"), strings.Contains(script, "scrollTo"):
			return `{"ok":true}`, true
		}
		return "", false
	}
	return mc
}

func waitForActions(t *testing.T, r *Recorder, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for r.Len() < n {
		if time.Now().After(deadline) {
			t.Fatalf("recorder captured %d actions; want %d", r.Len(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRecorderCapturesActions(t *testing.T) {
	mc := recorderMock()
	defer mc.Close()
	b := bridge.New(mc, bridge.WithTimeout(100*time.Millisecond))

	r, err := Start(context.Background(), b, types.RetailerWoolworths, "checkout flow")
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	mc.Post([]byte(`{"type":"tap","x":120,"y":300,"timestamp":1000}`))
	mc.Post([]byte(`{"type":"input","x":200,"y":80,"timestamp":1400,"value":"milk"}`))
	mc.Post([]byte(`{"type":"bogus","x":1,"y":1,"timestamp":1500}`))
	mc.Post([]byte(`not json at all`))
	waitForActions(t, r, 2)

	as, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if as.ID == "" || as.Retailer != types.RetailerWoolworths || as.Name != "checkout flow" {
		t.Errorf("script metadata wrong: %+v", as)
	}
	if len(as.Actions) != 2 {
		t.Fatalf("captured %d actions; want 2 (bogus and unparseable dropped)", len(as.Actions))
	}
	if as.Actions[0].Type != types.ActionTypeTap || as.Actions[1].Value != "milk" {
		t.Errorf("actions out of order or mangled: %+v", as.Actions)
	}
}

func TestStopWithoutActionsFails(t *testing.T) {
	mc := recorderMock()
	defer mc.Close()
	b := bridge.New(mc, bridge.WithTimeout(100*time.Millisecond))

	r, err := Start(context.Background(), b, types.RetailerColes, "empty")
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if _, err := r.Stop(); err == nil {
		t.Error("Stop on an empty recording must fail")
	}
}

func TestReplaySubstitutesInputValue(t *testing.T) {
	mc := recorderMock()
	defer mc.Close()
	b := bridge.New(mc, bridge.WithTimeout(100*time.Millisecond))

	as := &types.AutomationScript{
		ID:       "s1",
		Retailer: types.RetailerWoolworths,
		Actions: []types.RecordingAction{
			{Type: types.ActionTypeInput, X: 200, Y: 80, Timestamp: 1000, Value: "milk"},
		},
	}
	if err := NewPlayer(b).Replay(context.Background(), as, "bread"); err != nil {
		t.Fatalf("Replay returned error: %v", err)
	}

	var replayScript string
	for _, injected := range mc.Injected() {
		if strings.Contains(injected, "elementFromPoint") {
			replayScript = injected
		}
	}
	if replayScript == "" {
		t.Fatal("no replay script was injected")
	}
	if !strings.Contains(replayScript, `el.value = "bread"`) {
		t.Error("substitution value must replace the recorded one")
	}
	if strings.Contains(replayScript, `el.value = "milk"`) {
		t.Error("recorded value leaked into the replay script")
	}
}

func TestReplayFallsBackToRecordedValue(t *testing.T) {
	mc := recorderMock()
	defer mc.Close()
	b := bridge.New(mc, bridge.WithTimeout(100*time.Millisecond))

	as := &types.AutomationScript{
		ID:       "s1",
		Retailer: types.RetailerWoolworths,
		Actions: []types.RecordingAction{
			{Type: types.ActionTypeInput, X: 200, Y: 80, Timestamp: 1000, Value: "milk"},
			{Type: types.ActionTypeTap, X: 220, Y: 140, Timestamp: 1050},
		},
	}
	if err := NewPlayer(b).Replay(context.Background(), as, ""); err != nil {
		t.Fatalf("Replay returned error: %v", err)
	}

	found := false
	for _, injected := range mc.Injected() {
		if strings.Contains(injected, `el.value = "milk"`) {
			found = true
		}
	}
	if !found {
		t.Error("empty substitution must fall back to the recorded value")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())

	as := &types.AutomationScript{
		ID:        "s1",
		Retailer:  types.RetailerColes,
		Name:      "login",
		Actions:   []types.RecordingAction{{Type: types.ActionTypeTap, X: 1, Y: 2, Timestamp: 10}},
		CreatedAt: time.Now(),
	}
	if err := s.Save(as); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	loaded, err := s.Load(types.RetailerColes)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.ID != "s1" || len(loaded.Actions) != 1 {
		t.Errorf("loaded script mangled: %+v", loaded)
	}

	scripts, err := s.List()
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(scripts) != 1 {
		t.Errorf("List returned %d scripts; want 1", len(scripts))
	}

	if err := s.Delete(types.RetailerColes); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := s.Load(types.RetailerColes); err == nil {
		t.Error("Load after Delete must fail")
	}
	if err := s.Delete(types.RetailerColes); err == nil {
		t.Error("deleting a missing script must fail")
	}
}

func TestStoreListEmptyDir(t *testing.T) {
	s := NewStore(t.TempDir() + "/nonexistent")
	scripts, err := s.List()
	if err != nil {
		t.Fatalf("List on a missing directory returned error: %v", err)
	}
	if len(scripts) != 0 {
		t.Errorf("List returned %d scripts; want none", len(scripts))
	}
}
