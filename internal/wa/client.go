package wa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	graphAPIURL     = "https://graph.facebook.com"
	graphAPIVersion = "v18.0"

	defaultSendTimeout = 10 * time.Second
)

// Client talks to the WhatsApp Business Cloud API (Graph) for outbound
// sends and read receipts.
type Client struct {
	accessToken   string
	phoneNumberID string
	baseURL       string
	httpClient    *http.Client
}

// NewClient creates a Graph API client. baseURL overrides the Graph
// endpoint; empty means production.
func NewClient(accessToken, phoneNumberID, baseURL string) *Client {
	if baseURL == "" {
		baseURL = graphAPIURL
	}
	return &Client{
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		baseURL:       fmt.Sprintf("%s/%s/%s", baseURL, graphAPIVersion, phoneNumberID),
		httpClient:    &http.Client{Timeout: defaultSendTimeout},
	}
}

type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             sendText `json:"text"`
}

type sendText struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendText sends a text message and returns the provider-assigned
// message id.
func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	if !strings.HasPrefix(to, "+") {
		to = "+" + to
	}
	payload := sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             sendText{Body: body},
	}

	var resp sendResponse
	if err := c.post(ctx, "/messages", payload, &resp); err != nil {
		return "", err
	}
	if len(resp.Messages) == 0 {
		return "", fmt.Errorf("send: provider returned no message id")
	}
	return resp.Messages[0].ID, nil
}

// MarkRead reports an inbound message as read to the provider.
// Best-effort; callers log failures and move on.
func (c *Client) MarkRead(ctx context.Context, providerMsgID string) error {
	payload := map[string]string{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        providerMsgID,
	}
	return c.post(ctx, "/messages", payload, nil)
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("graph api: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("graph api: status %d: %s", resp.StatusCode, body)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
