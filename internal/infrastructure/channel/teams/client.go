// Package teams delivers activities to Microsoft Teams through the Bot
// Framework connector API.
package teams

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/vessellink/veddy/internal/core/ports"
	"github.com/vessellink/veddy/internal/infrastructure/resilience"
)

const defaultTokenURL = "https://login.microsoftonline.com/botframework.com/oauth2/v2.0/token"

type Client struct {
	appID       string
	appPassword string
	tokenURL    string
	httpClient  *http.Client
	executor    *resilience.Executor

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

type Options struct {
	TokenURL           string
	HTTPTimeout        time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(appID, appPassword string, options Options) *Client {
	tokenURL := options.TokenURL
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	timeout := options.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		appID:       appID,
		appPassword: appPassword,
		tokenURL:    tokenURL,
		httpClient:  &http.Client{Timeout: timeout},
		executor:    options.ResilienceExecutor,
	}
}

func (c *Client) SendActivity(ctx context.Context, conv ports.ChannelConversation, activity ports.ChannelActivity) (string, error) {
	payload := map[string]any{
		"type": activity.Type,
		"text": activity.Text,
	}
	if activity.StreamType != "" {
		entity := map[string]any{
			"type":       "streaminfo",
			"streamType": activity.StreamType,
		}
		if activity.StreamID != "" {
			entity["streamId"] = activity.StreamID
		}
		if activity.Sequence > 0 {
			entity["streamSequence"] = activity.Sequence
		}
		payload["entities"] = []any{entity}
	}

	endpoint := strings.TrimRight(conv.ServiceURL, "/") + "/v3/conversations/" + url.PathEscape(conv.ConversationID) + "/activities"

	var activityID string
	call := func(callCtx context.Context) error {
		token, err := c.bearerToken(callCtx)
		if err != nil {
			return err
		}
		id, err := c.postActivity(callCtx, endpoint, token, payload)
		if err != nil {
			return err
		}
		activityID = id
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "teams.send_activity", call, classifyChannelError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", wrapTemporaryIfNeeded("send activity", err)
	}
	return activityID, nil
}

func (c *Client) postActivity(ctx context.Context, endpoint, token string, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal activity: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create activity request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("teams activity request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", &HTTPStatusError{
			Operation:  "send_activity",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(raw)),
		}
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode activity response: %w", err)
	}
	return result.ID, nil
}

// bearerToken returns the cached connector token, refreshing it when it is
// within a minute of expiry.
func (c *Client) bearerToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && time.Until(c.tokenExpiry) > time.Minute {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.appID)
	form.Set("client_secret", c.appPassword)
	form.Set("scope", "https://api.botframework.com/.default")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("teams token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", &HTTPStatusError{
			Operation:  "token",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(raw)),
		}
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if result.AccessToken == "" {
		return "", fmt.Errorf("empty connector token")
	}

	c.mu.Lock()
	c.token = result.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(result.ExpiresIn) * time.Second)
	c.mu.Unlock()
	return result.AccessToken, nil
}
