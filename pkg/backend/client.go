// Package backend is the typed client for the CRM services the call core
// collaborates with: the signaling credential service, the call-log
// service, and the AI-dialer trigger. Only the request/response contract
// lives here; orchestration stays in the calling packages.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/code-100-precent/EchoDesk/internal/models"
	"github.com/code-100-precent/EchoDesk/pkg/signaling"
	"github.com/go-resty/resty/v2"
)

// Client 后端服务客户端
type Client struct {
	http *resty.Client
}

// apiEnvelope 后端统一响应包装
type apiEnvelope struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// CallLogDraft is the one-shot submission payload for a finished call.
// The backend assigns the id and owns every later mutation.
type CallLogDraft struct {
	LeadID          string               `json:"leadId"`
	Direction       string               `json:"direction"`
	Status          string               `json:"status"`
	Channel         string               `json:"channel"`
	StartedAt       time.Time            `json:"startedAt"`
	EndedAt         time.Time            `json:"endedAt"`
	DurationSeconds int64                `json:"durationSeconds"`
	FromNumber      string               `json:"from,omitempty"`
	ToNumber        string               `json:"to,omitempty"`
	ProviderCallID  *string              `json:"providerCallId,omitempty"`
	Provider        models.CallProvider  `json:"provider"`
}

// RecordingPayload is either a redirect URL or the raw audio bytes,
// depending on what the provider proxy returns.
type RecordingPayload struct {
	URL         string
	Data        []byte
	ContentType string
}

// NewClient 创建后端客户端
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		httpClient.SetHeader("X-Api-Key", apiKey)
	}
	return &Client{http: httpClient}
}

// GetToken fetches a signaling credential for the operator's organization.
// An organization without provider configuration surfaces as the
// distinguishable signaling.ErrNotConfigured.
func (c *Client) GetToken(ctx context.Context) (string, error) {
	var result struct {
		Token string `json:"token"`
	}
	var apiErr apiEnvelope

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		SetError(&apiErr).
		Post("/api/voice/token")
	if err != nil {
		return "", fmt.Errorf("fetch signaling token: %w", err)
	}
	if resp.IsError() {
		if resp.StatusCode() == http.StatusPreconditionFailed || apiErr.Code == "not_configured" {
			return "", signaling.ErrNotConfigured
		}
		return "", fmt.Errorf("fetch signaling token: %s (%s)", resp.Status(), apiErr.Message)
	}
	if result.Token == "" {
		return "", fmt.Errorf("fetch signaling token: empty token in response")
	}
	return result.Token, nil
}

// LogCall submits a finished-call draft exactly once and returns the
// persisted record.
func (c *Client) LogCall(ctx context.Context, draft CallLogDraft) (*models.CallLogRecord, error) {
	var record models.CallLogRecord
	var apiErr apiEnvelope

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(draft).
		SetResult(&record).
		SetError(&apiErr).
		Post("/api/call-logs")
	if err != nil {
		return nil, fmt.Errorf("submit call log: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("submit call log: %s (%s)", resp.Status(), apiErr.Message)
	}
	return &record, nil
}

// ListCallLogs fetches the ordered call history for a lead.
func (c *Client) ListCallLogs(ctx context.Context, leadID string, limit int) ([]models.CallLogRecord, error) {
	var records []models.CallLogRecord
	var apiErr apiEnvelope

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("limit", fmt.Sprintf("%d", limit)).
		SetResult(&records).
		SetError(&apiErr).
		Get("/api/leads/" + leadID + "/call-logs")
	if err != nil {
		return nil, fmt.Errorf("list call logs: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("list call logs: %s (%s)", resp.Status(), apiErr.Message)
	}
	return records, nil
}

// GetRecording resolves the recording for a call log through the backend's
// provider proxy. Depending on the provider it answers either a JSON body
// with a playable URL or the raw audio bytes.
func (c *Client) GetRecording(ctx context.Context, callLogID string) (*RecordingPayload, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get("/api/call-logs/" + callLogID + "/recording")
	if err != nil {
		return nil, fmt.Errorf("fetch recording: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch recording: %s", resp.Status())
	}

	contentType := resp.Header().Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var body struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(resp.Body(), &body); err != nil {
			return nil, fmt.Errorf("decode recording response: %w", err)
		}
		return &RecordingPayload{URL: body.URL}, nil
	}

	return &RecordingPayload{Data: resp.Body(), ContentType: contentType}, nil
}

// InitiateAICall triggers an AI-dialer call for the lead. Fire and forget:
// the caller only re-polls the call-log list afterward.
func (c *Client) InitiateAICall(ctx context.Context, leadID string) (string, error) {
	var result struct {
		CallID string `json:"callId"`
	}
	var apiErr apiEnvelope

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"leadId": leadID}).
		SetResult(&result).
		SetError(&apiErr).
		Post("/api/ai-calls")
	if err != nil {
		return "", fmt.Errorf("initiate ai call: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("initiate ai call: %s (%s)", resp.Status(), apiErr.Message)
	}
	return result.CallID, nil
}
