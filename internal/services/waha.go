package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"timeplus_app/internal/config"
)

const brazilCountryCode = "55"

type WahaService struct {
	baseURL string
	apiKey  string
	session string
	client  *http.Client
	// pause between the presence calls that precede a message
	pause func(time.Duration)
}

func NewWahaService(cfg config.Waha) *WahaService {
	return &WahaService{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		session: cfg.Session,
		client:  &http.Client{Timeout: 15 * time.Second},
		pause:   time.Sleep,
	}
}

func (s *WahaService) makeRequest(ctx context.Context, endpoint string, payload map[string]string) error {
	payload["session"] = s.session
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-Api-Key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// NormalizeChatID turns a phone number into a WAHA chat id. Numbers
// without a country code are taken as Brazilian.
func NormalizeChatID(chatID string) string {
	chatID = strings.TrimSpace(chatID)
	if strings.HasSuffix(chatID, "@g.us") {
		return chatID
	}
	chatID = strings.TrimSuffix(chatID, "@c.us")

	digits := onlyDigits(chatID)
	digits = strings.TrimLeft(digits, "0")
	// DDD + number, 10 or 11 digits
	if len(digits) == 10 || len(digits) == 11 {
		digits = brazilCountryCode + digits
	}
	return digits + "@c.us"
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SendMessage marks the chat as seen, types briefly and sends text.
func (s *WahaService) SendMessage(ctx context.Context, chatID, text string) error {
	chatID = NormalizeChatID(chatID)

	if err := s.makeRequest(ctx, "/api/sendSeen", map[string]string{"chatId": chatID}); err != nil {
		return fmt.Errorf("failed to send seen: %w", err)
	}
	s.pause(100 * time.Millisecond)

	if err := s.makeRequest(ctx, "/api/startTyping", map[string]string{"chatId": chatID}); err != nil {
		return fmt.Errorf("failed to start typing: %w", err)
	}
	s.pause(150 * time.Millisecond)

	if err := s.makeRequest(ctx, "/api/stopTyping", map[string]string{"chatId": chatID}); err != nil {
		return fmt.Errorf("failed to stop typing: %w", err)
	}
	s.pause(50 * time.Millisecond)

	if err := s.makeRequest(ctx, "/api/sendText", map[string]string{"chatId": chatID, "text": text}); err != nil {
		return fmt.Errorf("failed to send text: %w", err)
	}
	return nil
}
