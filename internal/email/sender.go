package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"huru-chat/internal/models"
	"huru-chat/internal/repositories"
)

// Sender delivers notifications over a transactional email HTTP API. With an
// empty API URL the sender is disabled and Deliver is a no-op.
type Sender struct {
	client   *http.Client
	apiURL   string
	apiKey   string
	fromName string
	fromAddr string
	users    repositories.UserRepository
}

// NewSender constructs an email Sender.
func NewSender(apiURL, apiKey, fromName, fromAddr string, users repositories.UserRepository) *Sender {
	return &Sender{
		client:   &http.Client{Timeout: 10 * time.Second},
		apiURL:   apiURL,
		apiKey:   apiKey,
		fromName: fromName,
		fromAddr: fromAddr,
		users:    users,
	}
}

type party struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type sendRequest struct {
	Sender      party   `json:"sender"`
	To          []party `json:"to"`
	Subject     string  `json:"subject"`
	TextContent string  `json:"textContent"`
}

// Deliver emails the stored notification to its recipient.
func (s *Sender) Deliver(ctx context.Context, notification models.Notification) error {
	if s.apiURL == "" {
		return nil
	}

	recipient, err := s.users.GetUser(ctx, notification.RecipientID)
	if err != nil {
		return fmt.Errorf("resolve recipient %d: %w", notification.RecipientID, err)
	}

	payload := sendRequest{
		Sender:      party{Name: s.fromName, Email: s.fromAddr},
		To:          []party{{Name: recipient.Username, Email: recipient.Email}},
		Subject:     fmt.Sprintf("New notification from %s", s.fromName),
		TextContent: notification.Text,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("email api returned status %d", resp.StatusCode)
	}
	return nil
}
