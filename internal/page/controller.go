// Package page abstracts the embedded browser surface. The automation
// core never touches host-specific browser objects directly; it only
// sees the Controller interface, which keeps the orchestrator testable
// against a mock.
package page

import "context"

// BindingName is the function injected scripts call to post a message
// back to the automation core.
const BindingName = "cartpilotPost"

// A Controller drives one loaded page: it can navigate, inject script
// source and deliver messages posted from within the page.
type Controller interface {
	// Navigate loads the given URL and waits for the page to settle.
	Navigate(ctx context.Context, urlStr string) error
	// Location returns the current page URL.
	Location(ctx context.Context) (string, error)
	// Inject evaluates the given script source in the page context.
	// The script's value is not returned here; scripts that need to
	// report back post through the message channel (see bridge).
	Inject(ctx context.Context, script string) error
	// HTML returns the current document's outer HTML.
	HTML(ctx context.Context) (string, error)
	// Messages delivers the raw payloads posted by injected scripts.
	Messages() <-chan []byte
	// Close releases the underlying browser resources.
	Close()
}
