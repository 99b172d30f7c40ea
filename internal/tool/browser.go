package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/go-rod/rod"

	"github.com/rushi32/IsoCode/internal/logging"
)

// browserWaitTimeout bounds every rod call the browser tool makes (spec §5:
// "browser waits <= 10s").
const browserWaitTimeout = 10 * time.Second

// browserSession is the single process-wide browser handle shared across all
// sessions (spec §5 "Shared resources" and SPEC_FULL.md open-question
// decision #1: the shared browser is intentional, not a bug to fix).
type browserSession struct {
	mu      sync.Mutex
	browser *rod.Browser
	page    *rod.Page
}

var sharedBrowser browserSession

const browserDescription = `Drives a single, process-wide headless browser session shared across the
workspace. Actions: open (navigate to a URL, launching the browser on first use), click
(CSS selector), screenshot (saves a PNG under .isocode/screenshots), close.

action=open must be called before any other browser action.`

// BrowserTool implements the browser-automation category of the Tool Dispatcher.
type BrowserTool struct {
	workDir string
}

// BrowserInput represents the input for the browser tool.
type BrowserInput struct {
	Action   string `json:"action"`
	URL      string `json:"url,omitempty"`
	Selector string `json:"selector,omitempty"`
}

// NewBrowserTool creates a new browser tool.
func NewBrowserTool(workDir string) *BrowserTool {
	return &BrowserTool{workDir: workDir}
}

func (t *BrowserTool) ID() string          { return "browser" }
func (t *BrowserTool) Description() string { return browserDescription }

func (t *BrowserTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {
				"type": "string",
				"enum": ["open", "click", "screenshot", "close"],
				"description": "The browser action to perform"
			},
			"url": {"type": "string", "description": "URL to navigate to (action=open)"},
			"selector": {"type": "string", "description": "CSS selector to click (action=click)"}
		},
		"required": ["action"]
	}`)
}

func (t *BrowserTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params BrowserInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	sharedBrowser.mu.Lock()
	defer sharedBrowser.mu.Unlock()

	switch params.Action {
	case "open":
		return t.open(params.URL)
	case "click":
		return t.click(params.Selector)
	case "screenshot":
		return t.screenshot(toolCtx)
	case "close":
		return t.close()
	default:
		return nil, fmt.Errorf("unknown browser action %q; expected open, click, screenshot, or close", params.Action)
	}
}

// open launches the shared browser on first use and navigates to url.
// Requiring action=open before other ops is the documented contract for the
// shared single-page resource.
func (t *BrowserTool) open(url string) (*Result, error) {
	if url == "" {
		return nil, fmt.Errorf("url is required for action=open")
	}

	if sharedBrowser.browser == nil {
		browser := rod.New()
		if err := browser.Connect(); err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		sharedBrowser.browser = browser
	}

	page, err := sharedBrowser.browser.Timeout(browserWaitTimeout).Page(rod.PageNavigate{URL: url})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", url, err)
	}
	sharedBrowser.page = page

	logging.Logger.Debug().Str("url", url).Msg("browser_open")
	return &Result{
		Title:  fmt.Sprintf("Opened %s", url),
		Output: fmt.Sprintf("Navigated to %s", url),
	}, nil
}

func (t *BrowserTool) click(selector string) (*Result, error) {
	if sharedBrowser.page == nil {
		return nil, fmt.Errorf("no open page; call action=open first")
	}
	if selector == "" {
		return nil, fmt.Errorf("selector is required for action=click")
	}

	el, err := sharedBrowser.page.Timeout(browserWaitTimeout).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("element %q not found: %w", selector, err)
	}
	if err := el.Click(rod.DefaultMouseButton, 1); err != nil {
		return nil, fmt.Errorf("failed to click %q: %w", selector, err)
	}

	return &Result{
		Title:  fmt.Sprintf("Clicked %s", selector),
		Output: fmt.Sprintf("Clicked element matching %q", selector),
	}, nil
}

func (t *BrowserTool) screenshot(toolCtx *Context) (*Result, error) {
	if sharedBrowser.page == nil {
		return nil, fmt.Errorf("no open page; call action=open first")
	}

	workDir := t.workDir
	if toolCtx != nil && toolCtx.WorkDir != "" {
		workDir = toolCtx.WorkDir
	}
	dir := filepath.Join(workDir, ".isocode", "screenshots")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create screenshots directory: %w", err)
	}

	data, err := sharedBrowser.page.Timeout(browserWaitTimeout).Screenshot(true, nil)
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}

	name := fmt.Sprintf("screenshot-%d.png", time.Now().UnixNano())
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write screenshot: %w", err)
	}

	return &Result{
		Title:  "Screenshot saved",
		Output: fmt.Sprintf("Saved screenshot to %s", path),
		Metadata: map[string]any{
			"path": path,
		},
	}, nil
}

func (t *BrowserTool) close() (*Result, error) {
	if sharedBrowser.page != nil {
		sharedBrowser.page = nil
	}
	if sharedBrowser.browser != nil {
		if err := sharedBrowser.browser.Close(); err != nil {
			return nil, fmt.Errorf("failed to close browser: %w", err)
		}
		sharedBrowser.browser = nil
	}
	return &Result{
		Title:  "Browser closed",
		Output: "Closed the shared browser session",
	}, nil
}

func (t *BrowserTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
