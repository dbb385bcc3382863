package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// commandRequest is the wire form of one driver primitive.
type commandRequest struct {
	URL    string `json:"url,omitempty"`
	Target string `json:"target,omitempty"`
	Value  string `json:"value,omitempty"`
}

// commandResponse is returned by the sidecar for every command. A UI fault
// arrives as ok=false with a description, not as a transport error.
type commandResponse struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Text     string `json:"text,omitempty"`
	Evidence []byte `json:"evidence,omitempty"`
}

// RemoteDriver drives the studio through a browser-automation sidecar
// speaking JSON over HTTP.
type RemoteDriver struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewRemoteDriver(baseURL, token string) *RemoteDriver {
	return &RemoteDriver{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (d *RemoteDriver) Navigate(ctx context.Context, url string) error {
	_, err := d.post(ctx, "/api/v1/session/navigate", commandRequest{URL: url})
	return err
}

func (d *RemoteDriver) Click(ctx context.Context, target string) error {
	_, err := d.post(ctx, "/api/v1/session/click", commandRequest{Target: target})
	return err
}

func (d *RemoteDriver) InputText(ctx context.Context, target, text string) error {
	_, err := d.post(ctx, "/api/v1/session/input", commandRequest{Target: target, Value: text})
	return err
}

func (d *RemoteDriver) SelectOption(ctx context.Context, target, option string) error {
	_, err := d.post(ctx, "/api/v1/session/select", commandRequest{Target: target, Value: option})
	return err
}

func (d *RemoteDriver) GetElementText(ctx context.Context, target string) (string, error) {
	resp, err := d.post(ctx, "/api/v1/session/text", commandRequest{Target: target})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (d *RemoteDriver) CaptureEvidence(ctx context.Context) ([]byte, error) {
	resp, err := d.post(ctx, "/api/v1/session/screenshot", commandRequest{})
	if err != nil {
		return nil, err
	}
	if len(resp.Evidence) == 0 {
		return nil, errors.New("sidecar returned empty evidence")
	}
	return resp.Evidence, nil
}

func (d *RemoteDriver) post(ctx context.Context, path string, payload commandRequest) (commandResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return commandResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return commandResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := strings.TrimSpace(d.token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return commandResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return commandResponse{}, fmt.Errorf("sidecar status %d", resp.StatusCode)
	}

	var decoded commandResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return commandResponse{}, err
	}
	if !decoded.OK {
		if decoded.Error == "" {
			return commandResponse{}, errors.New("sidecar reported failure without detail")
		}
		return commandResponse{}, errors.New(decoded.Error)
	}
	return decoded, nil
}
