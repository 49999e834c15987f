package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"verification-service/internal/config"
	"verification-service/internal/util"
)

// ProviderSender delivers SMS and WhatsApp messages through the telephony
// provider's form-post API. In dry-run mode it logs instead of dialing,
// which is what development and tests run with.
type ProviderSender struct {
	apiURL string
	apiKey string
	sender string
	dryRun bool
	client *http.Client
}

type providerResponse struct {
	Code int `json:"code"`
	Data struct {
		MessageID string `json:"messageId"`
	} `json:"data"`
}

func NewProviderSender(cfg config.TextProviderConfig) *ProviderSender {
	return &ProviderSender{
		apiURL: cfg.APIURL,
		apiKey: cfg.APIKey,
		sender: cfg.Sender,
		dryRun: cfg.DryRun || cfg.APIKey == "",
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *ProviderSender) SendOTP(ctx context.Context, phone, code string) error {
	text := fmt.Sprintf("Your NITP verification code is %s. It expires in 5 minutes.", code)
	return s.send(ctx, "sms", phone, text)
}

func (s *ProviderSender) SendMessage(ctx context.Context, phone, body string) error {
	return s.send(ctx, "whatsapp", phone, body)
}

func (s *ProviderSender) send(ctx context.Context, messageType, recipient, text string) error {
	if s.dryRun {
		util.Info("Text message dry-run",
			zap.String("type", messageType),
			zap.String("recipient", recipient),
			zap.Int("text_length", len(text)),
		)
		return nil
	}

	form := url.Values{
		"apiKey":    {s.apiKey},
		"type":      {messageType},
		"recipient": {recipient},
		"text":      {text},
	}
	if s.sender != "" {
		form.Set("from", s.sender)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build %s request: %w", messageType, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s request: %w", messageType, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", messageType, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider returned HTTP %d", resp.StatusCode)
	}

	var result providerResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("parse %s response: %w", messageType, err)
	}
	if result.Code != 0 {
		return fmt.Errorf("provider returned error code %d", result.Code)
	}

	util.Debug("Text message sent",
		zap.String("type", messageType),
		zap.String("message_id", result.Data.MessageID),
	)
	return nil
}
