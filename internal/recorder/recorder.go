// Package recorder captures user interactions on the loaded page into
// replayable automation scripts and plays them back. Replay is
// coordinate-based and therefore fragile to layout changes; that is an
// accepted limitation of the approach, not something to engineer
// around.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cartpilot/cartpilot/internal/bridge"
	"github.com/cartpilot/cartpilot/internal/script"
	"github.com/cartpilot/cartpilot/internal/types"
	"github.com/google/uuid"
)

// maxActions bounds a recording; beyond this the recorder drops
// further events instead of growing without limit.
const maxActions = 1000

// maxReplayDelay caps inter-action pauses so replay stays responsive
// even when the original recording had long human pauses.
const maxReplayDelay = 2 * time.Second

// Recorder consumes captured tap/input/scroll actions from the
// bridge's out-of-band message stream while active.
type Recorder struct {
	b        *bridge.Bridge
	retailer types.Retailer
	name     string

	mu      sync.Mutex
	actions []types.RecordingAction
	active  bool
}

// Start installs the in-page listener and begins accumulating actions.
func Start(ctx context.Context, b *bridge.Bridge, retailer types.Retailer, name string) (*Recorder, error) {
	r := &Recorder{b: b, retailer: retailer, name: name, active: true}
	b.SetOutOfBand(r.consume)
	if _, err := b.Execute(ctx, script.RecorderListener()); err != nil {
		b.SetOutOfBand(nil)
		return nil, fmt.Errorf("failed to install recorder listener: %w", err)
	}
	return r, nil
}

func (r *Recorder) consume(raw []byte) {
	var action types.RecordingAction
	if err := json.Unmarshal(raw, &action); err != nil {
		slog.Debug(fmt.Sprintf("discarding unparseable recorded action: %v", err))
		return
	}
	switch action.Type {
	case types.ActionTypeTap, types.ActionTypeInput, types.ActionTypeScroll:
	default:
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active || len(r.actions) >= maxActions {
		return
	}
	r.actions = append(r.actions, action)
}

// Len reports how many actions have been captured so far.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actions)
}

// Stop detaches the recorder and returns the captured script. An empty
// recording is an error; there is nothing worth persisting.
func (r *Recorder) Stop() (*types.AutomationScript, error) {
	r.b.SetOutOfBand(nil)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
	if len(r.actions) == 0 {
		return nil, fmt.Errorf("recording captured no actions")
	}
	return &types.AutomationScript{
		ID:        uuid.NewString(),
		Retailer:  r.retailer,
		Name:      r.name,
		Actions:   append([]types.RecordingAction(nil), r.actions...),
		CreatedAt: time.Now(),
	}, nil
}

// Player replays a saved automation script against the loaded page.
type Player struct {
	b *bridge.Bridge
}

func NewPlayer(b *bridge.Bridge) *Player {
	return &Player{b: b}
}

// Replay executes the script's actions in order. For input actions the
// substitution value replaces whatever was recorded; an empty
// substitution falls back to the recorded value. Inter-action delays
// follow the recorded timestamp deltas, capped at two seconds.
func (p *Player) Replay(ctx context.Context, as *types.AutomationScript, substitution string) error {
	var prev int64
	for i, action := range as.Actions {
		if i > 0 {
			delay := time.Duration(action.Timestamp-prev) * time.Millisecond
			if delay > maxReplayDelay {
				delay = maxReplayDelay
			}
			if delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				}
			}
		}
		prev = action.Timestamp

		var src string
		switch action.Type {
		case types.ActionTypeInput:
			value := substitution
			if value == "" {
				value = action.Value
			}
			src = script.ReplayInput(action.X, action.Y, value)
		case types.ActionTypeTap:
			src = script.ReplayTap(action.X, action.Y)
		case types.ActionTypeScroll:
			src = script.ReplayScroll(action.X, action.Y)
		default:
			continue
		}
		if _, err := p.b.Execute(ctx, src); err != nil {
			return fmt.Errorf("replay stopped at action %d: %w", i, err)
		}
	}
	return nil
}
