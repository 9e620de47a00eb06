// Package platform adapts suspension restrictions to the chat platform.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bredsky212/Logiq212/internal/obs"
	"github.com/bredsky212/Logiq212/internal/servicetoken"
)

const (
	ActionApply = "apply"
	ActionLift  = "lift"
)

// Command is the body posted to the bot's restriction endpoint.
type Command struct {
	Action      string `json:"action"`
	CommunityID string `json:"community_id"`
	UserID      string `json:"user_id"`
	DurationMS  int64  `json:"duration_ms,omitempty"`
}

// Webhook forwards restriction commands to the bot process over HTTP.
type Webhook struct {
	url    string
	client *http.Client
	tokens *servicetoken.Signer
}

// NewWebhook builds a Webhook posting to url. tokens may be nil, in which
// case requests are unauthenticated.
func NewWebhook(url string, tokens *servicetoken.Signer, client *http.Client) (*Webhook, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("restrictor url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Webhook{url: url, client: client, tokens: tokens}, nil
}

func (w *Webhook) Apply(ctx context.Context, communityID, userID string, d time.Duration) error {
	return w.send(ctx, Command{
		Action:      ActionApply,
		CommunityID: communityID,
		UserID:      userID,
		DurationMS:  d.Milliseconds(),
	})
}

func (w *Webhook) Lift(ctx context.Context, communityID, userID string) error {
	return w.send(ctx, Command{
		Action:      ActionLift,
		CommunityID: communityID,
		UserID:      userID,
	})
}

func (w *Webhook) send(ctx context.Context, cmd Command) error {
	buf, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.tokens != nil {
		tok, err := w.tokens.Issue("logiqd", []string{servicetoken.ScopeWrite}, time.Minute)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("restrictor %s: %s", cmd.Action, resp.Status)
	}
	return nil
}

// LogOnly records restriction commands without contacting the platform.
// It is used when no restrictor url is configured.
type LogOnly struct{}

func (LogOnly) Apply(ctx context.Context, communityID, userID string, d time.Duration) error {
	obs.Logger().Info("restriction apply (log only)",
		zap.String("community_id", communityID),
		zap.String("user_id", userID),
		zap.Duration("duration", d),
	)
	return nil
}

func (LogOnly) Lift(ctx context.Context, communityID, userID string) error {
	obs.Logger().Info("restriction lift (log only)",
		zap.String("community_id", communityID),
		zap.String("user_id", userID),
	)
	return nil
}
