package gh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNotConfigured means no token or repository was provided. Callers
// record the action and skip the dispatch.
var ErrNotConfigured = errors.New("repository dispatch not configured")

const apiBase = "https://api.github.com"

// Dispatcher fires repository_dispatch events so deploys and contributions
// can trigger CI in the configured repository.
type Dispatcher struct {
	token      string
	repo       string // "owner/name"
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewDispatcher(token, repo string, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		token:   token,
		repo:    repo,
		baseURL: apiBase,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

func (d *Dispatcher) Configured() bool {
	return d != nil && d.token != "" && d.repo != ""
}

// Dispatch posts a repository_dispatch event. payload lands in the
// workflow as client_payload.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType string, payload map[string]any) error {
	if !d.Configured() {
		return ErrNotConfigured
	}

	body, err := json.Marshal(map[string]any{
		"event_type":     eventType,
		"client_payload": payload,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/repos/%s/dispatches", d.baseURL, d.repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+d.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("github unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("github returned %d: %s", resp.StatusCode, string(b))
	}
	d.log.Info("repository dispatch sent",
		zap.String("repo", d.repo),
		zap.String("event_type", eventType))
	return nil
}
