package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const DefaultWASenderURL = "https://wasenderapi.com/api"

// WASender sends WhatsApp text messages through the WASender HTTP API.
type WASender struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewWASender(baseURL, apiKey string) *WASender {
	if baseURL == "" {
		baseURL = DefaultWASenderURL
	}
	return &WASender{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type sendMessageRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

func (w *WASender) Send(ctx context.Context, phone, text string) error {
	body, err := json.Marshal(sendMessageRequest{To: FormatPhone(phone), Text: text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/send-message", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+w.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("wasender request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("wasender: %s (status %d)", apiErr.Message, resp.StatusCode)
		}
		return fmt.Errorf("wasender: status %d", resp.StatusCode)
	}
	return nil
}

// FormatPhone strips '+', spaces, dashes and parentheses.
func FormatPhone(phone string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '+', ' ', '-', '(', ')', '\t':
			return -1
		}
		return r
	}, phone)
}

// LogSender stands in for WASender when no API key is configured.
type LogSender struct {
	Logger *zap.Logger
}

func (l LogSender) Send(_ context.Context, phone, text string) error {
	l.Logger.Info("notification not delivered: sender disabled",
		zap.String("to", FormatPhone(phone)),
		zap.Int("chars", len(text)))
	return nil
}

// NewSender picks WASender when an API key is set, LogSender otherwise.
func NewSender(baseURL, apiKey string, logger *zap.Logger) Sender {
	if apiKey == "" {
		return LogSender{Logger: logger}
	}
	return NewWASender(baseURL, apiKey)
}
