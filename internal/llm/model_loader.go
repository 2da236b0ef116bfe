package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ModelLoader makes sure a model is resident in a llama.cpp router server
// before the first request reaches it.
type ModelLoader struct {
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
	timeout      time.Duration
}

// NewModelLoader creates a loader for the server at baseURL.
func NewModelLoader(baseURL string) *ModelLoader {
	return &ModelLoader{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       &http.Client{Timeout: 10 * time.Second},
		pollInterval: time.Second,
		timeout:      30 * time.Second,
	}
}

type loadModelRequest struct {
	Model string `json:"model"`
}

type loadModelResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type modelStatus struct {
	ID      string `json:"id"`
	InCache bool   `json:"in_cache"`
	Status  struct {
		Failed   *bool `json:"failed,omitempty"`
		ExitCode *int  `json:"exit_code,omitempty"`
	} `json:"status"`
}

type modelsResponse struct {
	Data []modelStatus `json:"data"`
}

var errModelLoading = errors.New("model still loading")

// IsModelLoaded reports whether the model is already in the server cache.
func (ml *ModelLoader) IsModelLoaded(ctx context.Context, modelName string) (bool, error) {
	status, err := ml.status(ctx, modelName)
	if err != nil {
		return false, err
	}
	return status != nil && status.InCache, nil
}

// EnsureLoaded asks the server to load modelName if needed and waits until it is cached.
func (ml *ModelLoader) EnsureLoaded(ctx context.Context, modelName string) error {
	if loaded, err := ml.IsModelLoaded(ctx, modelName); err == nil && loaded {
		return nil
	}

	body, err := json.Marshal(loadModelRequest{Model: modelName})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ml.baseURL+"/models/load", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ml.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
	}
	var loadResp loadModelResponse
	if err := json.NewDecoder(resp.Body).Decode(&loadResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !loadResp.Success {
		return fmt.Errorf("model load failed: %s", loadResp.Error)
	}

	// /models/load returns before the model is resident, so poll until it is.
	poll := func() error {
		status, err := ml.status(ctx, modelName)
		if err != nil {
			return err
		}
		if status == nil {
			return errModelLoading
		}
		if status.InCache {
			return nil
		}
		if status.Status.Failed != nil && *status.Status.Failed {
			exitCode := 0
			if status.Status.ExitCode != nil {
				exitCode = *status.Status.ExitCode
			}
			return backoff.Permanent(fmt.Errorf("model load failed with exit code %d", exitCode))
		}
		return errModelLoading
	}

	b := backoff.NewConstantBackOff(ml.pollInterval)
	ctx, cancel := context.WithTimeout(ctx, ml.timeout)
	defer cancel()
	if err := backoff.Retry(poll, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("model %s did not load: %w", modelName, err)
	}
	return nil
}

func (ml *ModelLoader) status(ctx context.Context, modelName string) (*modelStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ml.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}
	resp, err := ml.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to check model status: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
	}

	var models modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&models); err != nil {
		return nil, fmt.Errorf("failed to decode models response: %w", err)
	}
	for i := range models.Data {
		if models.Data[i].ID == modelName {
			return &models.Data[i], nil
		}
	}
	return nil, nil
}
