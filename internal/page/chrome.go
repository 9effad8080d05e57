package page

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"sync"
	"time"

	"github.com/cartpilot/cartpilot/internal/log"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// ControllerConfig holds the parameters for a chrome-backed controller.
type ControllerConfig struct {
	UserAgent      string `yaml:"user_agent"`
	PageLoadWaitMS int    `yaml:"page_load_wait_ms"`
	DebugDir       string `yaml:"debug_dir"`
}

// ChromeController drives a single chrome tab over the devtools
// protocol. The tab is a shared, singleton resource; callers must not
// issue overlapping navigations.
type ChromeController struct {
	*ControllerConfig
	allocContext context.Context
	cancelAlloc  context.CancelFunc
	tabContext   context.Context
	cancelTab    context.CancelFunc

	mu       sync.Mutex
	closed   bool
	messages chan []byte
}

func NewChromeController(cc *ControllerConfig) (*ChromeController, error) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(1920, 1080), // init with a desktop view (sometimes pages look different on mobile, eg buttons are missing)
	)
	if cc.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cc.UserAgent))
	}
	allocContext, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)

	c := &ChromeController{
		ControllerConfig: cc,
		allocContext:     allocContext,
		cancelAlloc:      cancelAlloc,
		messages:         make(chan []byte, 64),
	}
	if c.PageLoadWaitMS == 0 {
		c.PageLoadWaitMS = 2000 // default
	}

	c.tabContext, c.cancelTab = chromedp.NewContext(allocContext)

	// register the binding that injected scripts use to post messages
	// and forward every call into the message channel
	chromedp.ListenTarget(c.tabContext, func(ev any) {
		if e, ok := ev.(*runtime.EventBindingCalled); ok && e.Name == BindingName {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.closed {
				return
			}
			select {
			case c.messages <- []byte(e.Payload):
			default:
				slog.Warn("dropping page message, channel full")
			}
		}
	})
	if err := chromedp.Run(c.tabContext, chromedp.ActionFunc(func(ctx context.Context) error {
		return runtime.AddBinding(BindingName).Do(ctx)
	})); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to register page binding: %w", err)
	}

	return c, nil
}

func (c *ChromeController) Navigate(ctx context.Context, urlStr string) error {
	logger := log.LoggerFromContext(ctx).With(slog.String("url", urlStr))
	logger.Debug("navigating", slog.String("user-agent", c.UserAgent))

	sleepTime := time.Duration(c.PageLoadWaitMS) * time.Millisecond
	actions := []chromedp.Action{
		chromedp.Navigate(urlStr),
		chromedp.Sleep(sleepTime),
	}

	if log.Debug && c.DebugDir != "" {
		if err := os.MkdirAll(c.DebugDir, os.ModePerm); err != nil {
			return fmt.Errorf("failed to create debug directory: %w", err)
		}
		u, _ := url.Parse(urlStr)
		filename := path.Join(c.DebugDir, fmt.Sprintf("%s-%d.png", u.Hostname(), time.Now().UnixMilli()))
		var buf []byte
		actions = append(actions, chromedp.CaptureScreenshot(&buf))
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			logger.Debug(fmt.Sprintf("writing screenshot to file %s", filename))
			return os.WriteFile(filename, buf, 0644)
		}))
	}

	return c.run(ctx, actions...)
}

func (c *ChromeController) Location(ctx context.Context) (string, error) {
	var loc string
	err := c.run(ctx, chromedp.Location(&loc))
	return loc, err
}

func (c *ChromeController) Inject(ctx context.Context, script string) error {
	return c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, exc, err := runtime.Evaluate(script).Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return fmt.Errorf("script evaluation failed: %s", exc.Text)
		}
		return nil
	}))
}

func (c *ChromeController) HTML(ctx context.Context) (string, error) {
	var body string
	err := c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		body, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
		return err
	}))
	return body, err
}

func (c *ChromeController) Messages() <-chan []byte {
	return c.messages
}

// Close tears down the tab and closes the message channel so that
// consumers ranging over Messages terminate.
func (c *ChromeController) Close() {
	c.cancelTab()
	c.cancelAlloc()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.messages)
	}
}

// run executes a batch of chrome actions tied to the caller's context
// so that a stopped run cancels in-flight chrome work. The cancel is
// released once the batch finishes; the watcher goroutine exits with it.
func (c *ChromeController) run(callerCtx context.Context, actions ...chromedp.Action) error {
	ctx, cancel := withCancel(c.tabContext, callerCtx)
	defer cancel()
	return chromedp.Run(ctx, actions...)
}

func withCancel(tabCtx, callerCtx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(tabCtx)
	go func() {
		select {
		case <-callerCtx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
