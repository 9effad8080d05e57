// Package bridge correlates injected-script executions with the
// asynchronous results the page posts back over the shared message
// channel.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cartpilot/cartpilot/internal/page"
)

const defaultTimeout = 10 * time.Second

// wrapper turns a caller script body into an async IIFE that posts a
// correlated result message through the page binding. The body may use
// await and must return its result.
const wrapper = `(async () => {
  const __cpPost = (payload) => {
    try { window.%s(JSON.stringify(payload)); } catch (e) {}
  };
  try {
    const result = await (async () => {
%s
    })();
    __cpPost({ executionId: %d, success: true, result: result === undefined ? null : result });
  } catch (err) {
    __cpPost({ executionId: %d, success: false, error: String(err && err.message ? err.message : err) });
  }
})();`

type envelope struct {
	ExecutionID *int64          `json:"executionId"`
	Success     bool            `json:"success"`
	Result      json.RawMessage `json:"result"`
	Error       string          `json:"error"`
	Log         json.RawMessage `json:"autoShopLog"`
}

// Bridge submits script bodies for execution in the page context and
// resolves their results. Executions that never get answered resolve
// to nil after the timeout; callers must treat nil as "could not
// determine", never as a hard failure.
type Bridge struct {
	ctrl    page.Controller
	timeout time.Duration

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan any
	oob     func([]byte)
}

type Option func(*Bridge)

// WithTimeout overrides the per-execution timeout, mainly for tests.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.timeout = d }
}

func New(ctrl page.Controller, opts ...Option) *Bridge {
	b := &Bridge{
		ctrl:    ctrl,
		timeout: defaultTimeout,
		pending: map[int64]chan any{},
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.demux()
	return b
}

// SetOutOfBand registers a handler for page messages that neither
// match a pending execution nor carry the log marker. The recorder
// uses this to receive captured actions.
func (b *Bridge) SetOutOfBand(fn func([]byte)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.oob = fn
}

// Execute runs the given script body in the page context and returns
// its decoded result. A missing answer, a script error or an
// unavailable execution channel all yield (nil, nil); only caller
// cancellation yields an error.
func (b *Bridge) Execute(ctx context.Context, script string) (any, error) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	ch := make(chan any, 1)
	b.pending[id] = ch
	b.mu.Unlock()

	wrapped := fmt.Sprintf(wrapper, page.BindingName, script, id, id)
	if err := b.ctrl.Inject(ctx, wrapped); err != nil {
		b.drop(id)
		slog.Debug(fmt.Sprintf("script injection unavailable: %v", err))
		return nil, nil
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	select {
	case value := <-ch:
		return value, nil
	case <-timer.C:
		b.drop(id)
		slog.Debug(fmt.Sprintf("execution %d timed out after %v", id, b.timeout))
		return nil, nil
	case <-ctx.Done():
		b.drop(id)
		return nil, ctx.Err()
	}
}

func (b *Bridge) drop(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, id)
}

// demux routes incoming page messages: execution results settle their
// pending entry, log payloads go to slog, everything else goes to the
// out-of-band handler. It exits when the controller closes its
// message channel.
func (b *Bridge) demux() {
	for raw := range b.ctrl.Messages() {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			slog.Debug(fmt.Sprintf("discarding unparseable page message: %v", err))
			continue
		}

		if env.ExecutionID != nil {
			b.settle(&env)
			continue
		}

		if len(env.Log) > 0 {
			var line string
			if err := json.Unmarshal(env.Log, &line); err != nil {
				line = string(env.Log)
			}
			slog.Info(line, slog.String("source", "page"))
			continue
		}

		b.mu.Lock()
		oob := b.oob
		b.mu.Unlock()
		if oob != nil {
			oob(raw)
		} else {
			slog.Debug(fmt.Sprintf("unrouted page message: %s", raw))
		}
	}
}

func (b *Bridge) settle(env *envelope) {
	b.mu.Lock()
	ch, ok := b.pending[*env.ExecutionID]
	if ok {
		delete(b.pending, *env.ExecutionID)
	}
	b.mu.Unlock()
	if !ok {
		slog.Debug(fmt.Sprintf("result for unknown execution %d", *env.ExecutionID))
		return
	}

	if !env.Success {
		// a failed script is "could not determine" for the caller,
		// the diagnostic still gets logged
		slog.Debug(fmt.Sprintf("execution %d failed in page: %s", *env.ExecutionID, env.Error))
		ch <- nil
		return
	}

	var value any
	if len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, &value); err != nil {
			slog.Debug(fmt.Sprintf("execution %d result undecodable: %v", *env.ExecutionID, err))
			value = nil
		}
	}
	ch <- value
}
