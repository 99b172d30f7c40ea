package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rushi32/IsoCode/internal/contextwindow"
	"github.com/rushi32/IsoCode/pkg/types"
)

// escalationAttempts is the number of escalating retries the adapter makes
// on HTTP 400/422 before giving up (spec §4.5: "three escalating retries").
const escalationAttempts = 3

// transientRetryInitialInterval/MaxInterval/MaxElapsedTime configure the
// exponential backoff used for network errors and 5xx responses, mirroring
// the teacher's session-loop retry policy.
const (
	transientRetryInitialInterval = 500 * time.Millisecond
	transientRetryMaxInterval     = 10 * time.Second
	transientRetryMaxElapsedTime  = 30 * time.Second
	transientRetryMaxAttempts     = 4
)

func newTransientBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = transientRetryInitialInterval
	b.MaxInterval = transientRetryMaxInterval
	b.MaxElapsedTime = transientRetryMaxElapsedTime
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, transientRetryMaxAttempts), ctx)
}

// httpStatusError carries the response status and body so callers can
// branch on escalation vs. hard-failure.
type httpStatusError struct {
	Status int
	Body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("llm adapter: HTTP %d: %s", e.Status, e.Body)
}

func isNotFoundError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "not found")
}

func isRetryableStatus(status int) bool {
	return status == 429 || status >= 500
}

func isEscalatableStatus(status int) bool {
	return status == 400 || status == 422
}

// Call performs the adapter's unified non-streaming completion: dialect
// dispatch, escalating 400/422 retries, and exhaustive content extraction.
func (a *Adapter) Call(ctx context.Context, model string, messages []types.Message, opts Options) (*CallResult, error) {
	opts = a.resolveOptions(opts)

	if a.isLocal() {
		result, err := a.callChatCompletionsEscalating(ctx, model, messages, opts)
		if err == nil && result.Content != "" {
			return result, nil
		}
		nativeResult, nativeErr := a.callNative(ctx, model, messages, opts)
		if nativeErr != nil {
			if err != nil {
				return nil, err
			}
			return nil, nativeErr
		}
		return nativeResult, nil
	}

	return a.callChatCompletionsEscalating(ctx, model, messages, opts)
}

// CallSimple satisfies contextwindow.Completer: a plain-text completion used
// by the Context Manager's compaction summarizer.
func (a *Adapter) CallSimple(ctx context.Context, model string, messages []types.Message, copt contextwindow.CompletionOptions) (string, error) {
	result, err := a.Call(ctx, model, messages, Options{
		Temperature: copt.Temperature,
		MaxTokens:   copt.MaxTokens,
		TimeoutSecs: copt.TimeoutSecs,
		ExpectJSON:  copt.ExpectJSON,
	})
	if err != nil {
		return "", err
	}
	return result.Content, nil
}

// callChatCompletionsEscalating retries on 400/422, progressively dropping
// response_format, then tools, and raising temperature and max-tokens each
// attempt (spec §4.5).
func (a *Adapter) callChatCompletionsEscalating(ctx context.Context, model string, messages []types.Message, opts Options) (*CallResult, error) {
	var lastErr error
	for attempt := 0; attempt <= escalationAttempts; attempt++ {
		attemptOpts := opts
		dropResponseFormat := attempt >= 1
		dropTools := attempt >= 2
		if attempt > 0 {
			attemptOpts.Temperature += 0.1 * float64(attempt)
			attemptOpts.MaxTokens += attemptOpts.MaxTokens / 4
		}

		result, err := a.callChatCompletions(ctx, model, messages, attemptOpts, dropResponseFormat, dropTools)
		if err == nil {
			return result, nil
		}
		if isNotFoundError(err) {
			return nil, fmt.Errorf("model %q not found on provider %q: pull/configure it first (%w)", model, a.Provider, err)
		}
		var statusErr *httpStatusError
		if !asHTTPStatusError(err, &statusErr) || !isEscalatableStatus(statusErr.Status) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("llm adapter: exhausted %d escalating retries: %w", escalationAttempts, lastErr)
}

func asHTTPStatusError(err error, target **httpStatusError) bool {
	se, ok := err.(*httpStatusError)
	if !ok {
		return false
	}
	*target = se
	return true
}

func (a *Adapter) callChatCompletions(ctx context.Context, model string, messages []types.Message, opts Options, dropResponseFormat, dropTools bool) (*CallResult, error) {
	req := chatRequest{
		Model:       model,
		Messages:    toChatMessages(messages),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		ToolChoice:  opts.ToolChoice,
	}
	if !dropResponseFormat && opts.ExpectJSON {
		req.ResponseFormat = map[string]any{"type": "json_object"}
	}
	if !dropTools {
		req.Tools = toChatTools(opts.Tools)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("llm adapter: marshal request: %w", err)
	}

	raw, err := a.postWithRetry(ctx, a.APIBase+"/chat/completions", body, opts.TimeoutSecs)
	if err != nil {
		return nil, err
	}

	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("llm adapter: decode chat-completions response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("llm adapter: %s", resp.Error.Message)
	}

	result := &CallResult{Content: extractChatContent(&resp, raw)}
	if len(resp.Choices) > 0 {
		for _, tc := range resp.Choices[0].Message.ToolCalls {
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:   tc.ID,
				Name: tc.Function.Name,
				Args: parseToolCallArgs(tc.Function.Arguments),
			})
		}
	}
	return result, nil
}

func (a *Adapter) callNative(ctx context.Context, model string, messages []types.Message, opts Options) (*CallResult, error) {
	req := nativeRequest{
		Model:    model,
		Messages: toNativeMessages(messages),
		Stream:   false,
		Options: map[string]any{
			"temperature": opts.Temperature,
			"num_predict": opts.MaxTokens,
		},
	}
	if opts.ExpectJSON {
		req.Format = "json"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("llm adapter: marshal native request: %w", err)
	}

	raw, err := a.postWithRetry(ctx, a.APIBase+"/api/chat", body, opts.TimeoutSecs)
	if err != nil {
		return nil, err
	}

	var resp nativeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("llm adapter: decode native response: %w", err)
	}
	if resp.Error != "" {
		if strings.Contains(strings.ToLower(resp.Error), "not found") {
			return nil, fmt.Errorf("model %q not found on provider %q: pull it first (ollama pull %s)", model, a.Provider, model)
		}
		return nil, fmt.Errorf("llm adapter: %s", resp.Error)
	}

	return &CallResult{Content: extractNativeContent(&resp, raw)}, nil
}

// postWithRetry performs the HTTP round trip, retrying transient failures
// (network errors, 429, 5xx) with exponential backoff. A non-retryable
// status (400/401/403/404/422) is returned immediately as *httpStatusError
// so the caller's escalation logic (or a hard failure) can act on it.
func (a *Adapter) postWithRetry(ctx context.Context, url string, body []byte, timeoutSecs int) ([]byte, error) {
	var result []byte

	operation := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSecs)*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("llm adapter: build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if key, val := a.authHeader(); key != "" {
			req.Header.Set(key, val)
		}

		resp, err := a.http.Do(req)
		if err != nil {
			return err // network error: retryable
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusOK {
			result = respBody
			return nil
		}

		statusErr := &httpStatusError{Status: resp.StatusCode, Body: string(respBody)}
		if isRetryableStatus(resp.StatusCode) {
			return statusErr
		}
		return backoff.Permanent(statusErr)
	}

	err := backoff.Retry(operation, newTransientBackoff(ctx))
	if err != nil {
		if permanent, ok := err.(*backoff.PermanentError); ok {
			return nil, permanent.Err
		}
		return nil, err
	}
	return result, nil
}
