package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mveselov-dev/songsmith/evidence"
)

const maxVerdictBytes = 1 << 20

// HTTPEvaluator calls a JSON HTTP endpoint to judge step evidence.
type HTTPEvaluator struct {
	Endpoint   string
	Token      string
	HTTPClient *http.Client
}

type judgeRequest struct {
	RunID         string `json:"run_id"`
	Step          int    `json:"step"`
	ExpectedState string `json:"expected_state"`
	EvidenceURI   string `json:"evidence_uri"`
	EvidenceB64   []byte `json:"evidence_b64,omitempty"`
}

func (c *HTTPEvaluator) Judge(ctx context.Context, ev evidence.Evidence, expectedState string) (json.RawMessage, error) {
	endpoint := strings.TrimSpace(c.Endpoint)
	if endpoint == "" {
		return nil, ErrEvaluatorUnavailable
	}

	payload := judgeRequest{
		RunID:         ev.RunID,
		Step:          ev.Step,
		ExpectedState: expectedState,
		EvidenceURI:   ev.URI,
		EvidenceB64:   ev.Data,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", "application/json")
	if token := strings.TrimSpace(c.Token); token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("evaluator endpoint status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxVerdictBytes))
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}
