package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// ensureModel verifies the model is present on the engine, pulling it when
// missing. Progress events are forwarded through a bounded buffer so a slow
// consumer can never stall the load.
func (m *Manager) ensureModel(ctx context.Context, modelID string, onProgress ProgressFunc) error {
	events := make(chan Progress, progressBuffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range events {
			if onProgress != nil {
				onProgress(p)
			}
		}
	}()
	defer func() {
		close(events)
		<-done
	}()

	emit := func(p Progress) {
		select {
		case events <- p:
		default:
			// Consumer lagging; drop the event.
		}
	}

	present, err := m.hasModel(ctx, modelID)
	if err != nil {
		return err
	}
	if present {
		emit(Progress{Status: "ready"})
		return nil
	}

	slog.Info("engine: pulling model", "model", modelID)
	if err := m.pullModel(ctx, modelID, emit); err != nil {
		return err
	}
	emit(Progress{Status: "ready"})
	return nil
}

func (m *Manager) hasModel(ctx context.Context, modelID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.serverURL+"/api/tags", nil)
	if err != nil {
		return false, errors.Wrapf(ErrEngineUnavailable, "build tags request: %v", err)
	}
	resp, err := m.httpc.Do(req)
	if err != nil {
		return false, errors.Wrapf(ErrEngineUnavailable, "list models: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, errors.Wrapf(ErrEngineUnavailable, "list models: status %d", resp.StatusCode)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false, errors.Wrapf(ErrEngineUnavailable, "decode model list: %v", err)
	}
	for _, model := range tags.Models {
		if model.Name == modelID || strings.TrimSuffix(model.Name, ":latest") == modelID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Manager) pullModel(ctx context.Context, modelID string, emit func(Progress)) error {
	body, _ := json.Marshal(map[string]any{"name": modelID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.serverURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(ErrEngineUnavailable, "build pull request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpc.Do(req)
	if err != nil {
		return errors.Wrapf(ErrEngineUnavailable, "pull model %s: %v", modelID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Wrapf(ErrEngineUnavailable, "pull model %s: status %d", modelID, resp.StatusCode)
	}

	// The engine streams newline-delimited progress objects until the pull
	// finishes or fails.
	dec := json.NewDecoder(resp.Body)
	for {
		var line struct {
			Status    string `json:"status"`
			Error     string `json:"error"`
			Completed int64  `json:"completed"`
			Total     int64  `json:"total"`
		}
		if err := dec.Decode(&line); err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.Wrapf(ErrEngineUnavailable, "pull model %s: %v", modelID, err)
		}
		if line.Error != "" {
			return errors.Wrapf(ErrEngineUnavailable, "pull model %s: %s", modelID, line.Error)
		}
		emit(Progress{Status: line.Status, Completed: line.Completed, Total: line.Total})
	}
}
