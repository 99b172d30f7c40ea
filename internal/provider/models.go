package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rushi32/IsoCode/pkg/types"
)

type nativeTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

type chatModelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// ListModels prefers the native-default provider's tag endpoint
// (GET /api/tags) and falls back to the chat-completions models endpoint
// (GET /models) otherwise or on failure (spec §4.5).
func (a *Adapter) ListModels(ctx context.Context) ([]ModelInfo, error) {
	if a.isLocal() {
		if models, err := a.listNativeModels(ctx); err == nil {
			return models, nil
		}
	}
	return a.listChatModels(ctx)
}

func (a *Adapter) listNativeModels(ctx context.Context) ([]ModelInfo, error) {
	raw, err := a.get(ctx, a.APIBase+"/api/tags")
	if err != nil {
		return nil, err
	}
	var resp nativeTagsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("llm adapter: decode tags response: %w", err)
	}
	out := make([]ModelInfo, 0, len(resp.Models))
	for _, m := range resp.Models {
		name := m.Model
		if name == "" {
			name = m.Name
		}
		out = append(out, types.Model{ID: name, DisplayName: m.Name})
	}
	return out, nil
}

func (a *Adapter) listChatModels(ctx context.Context) ([]ModelInfo, error) {
	raw, err := a.get(ctx, a.APIBase+"/models")
	if err != nil {
		return nil, err
	}
	var resp chatModelsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("llm adapter: decode models response: %w", err)
	}
	out := make([]ModelInfo, 0, len(resp.Data))
	for _, m := range resp.Data {
		out = append(out, types.Model{ID: m.ID, DisplayName: m.ID})
	}
	return out, nil
}

// Health reports whether the configured provider is reachable.
func (a *Adapter) Health(ctx context.Context) HealthStatus {
	_, err := a.ListModels(ctx)
	if err != nil {
		return HealthStatus{OK: false, Provider: a.Provider, Error: err.Error()}
	}
	return HealthStatus{OK: true, Provider: a.Provider}
}

func (a *Adapter) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("llm adapter: build request: %w", err)
	}
	if key, val := a.authHeader(); key != "" {
		req.Header.Set(key, val)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm adapter: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llm adapter: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &httpStatusError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
