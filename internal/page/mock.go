package page

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"sync"
)

var executionIDPattern = regexp.MustCompile(`executionId: (\d+)`)

// MockController is an in-memory Controller used in tests. Pages are
// served from a URL map and injected scripts can be answered through
// the Respond hook.
type MockController struct {
	mu        sync.Mutex
	pages     map[string]string
	location  string
	injected  []string
	navigated []string
	messages  chan []byte
	closed    bool

	// Respond, if set, is called for every injected script. Returning
	// ok=true posts a success message carrying result for the script's
	// execution id, mimicking the in-page bridge wrapper.
	Respond func(script string) (result string, ok bool)
	// NavigateErr, if set, is returned by Navigate.
	NavigateErr error
	// InjectErr, if set, is returned by Inject.
	InjectErr error
}

func NewMockController(pages map[string]string) *MockController {
	if pages == nil {
		pages = map[string]string{}
	}
	return &MockController{
		pages:    pages,
		messages: make(chan []byte, 64),
	}
}

func (m *MockController) Navigate(_ context.Context, urlStr string) error {
	if m.NavigateErr != nil {
		return m.NavigateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.location = urlStr
	m.navigated = append(m.navigated, urlStr)
	return nil
}

func (m *MockController) Location(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.location, nil
}

func (m *MockController) SetLocation(urlStr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.location = urlStr
}

func (m *MockController) Inject(_ context.Context, script string) error {
	if m.InjectErr != nil {
		return m.InjectErr
	}
	m.mu.Lock()
	m.injected = append(m.injected, script)
	respond := m.Respond
	m.mu.Unlock()

	if respond == nil {
		return nil
	}
	result, ok := respond(script)
	if !ok {
		return nil
	}
	match := executionIDPattern.FindStringSubmatch(script)
	if match == nil {
		return errors.New("mock: injected script carries no execution id")
	}
	id, _ := strconv.ParseInt(match[1], 10, 64)
	m.Post([]byte(`{"executionId":` + strconv.FormatInt(id, 10) + `,"success":true,"result":` + result + `}`))
	return nil
}

func (m *MockController) HTML(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if body, ok := m.pages[m.location]; ok {
		return body, nil
	}
	return "", errors.New("page not found")
}

func (m *MockController) Messages() <-chan []byte {
	return m.messages
}

// Post delivers a raw message as if an injected script had posted it.
func (m *MockController) Post(payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.messages <- payload
}

func (m *MockController) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.messages)
	}
}

// Injected returns a copy of all scripts injected so far.
func (m *MockController) Injected() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.injected))
	copy(out, m.injected)
	return out
}

// Navigated returns a copy of all URLs navigated to so far.
func (m *MockController) Navigated() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.navigated))
	copy(out, m.navigated)
	return out
}
