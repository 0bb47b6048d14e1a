package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/example/cyclebees/internal/logger"
)

// SMSSender delivers a text message to a phone.
type SMSSender interface {
	Send(ctx context.Context, phone, message string) error
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct{}

func (LogSender) Send(_ context.Context, phone, message string) error {
	logger.Log.Info().Str("phone", phone).Str("message", message).Msg("sms not sent, gateway disabled")
	return nil
}

// GatewaySender posts messages to an HTTP SMS gateway that issues bearer tokens
// from POST {base}/auth/login and accepts POST {base}/sms/send.
type GatewaySender struct {
	baseURL  string
	username string
	password string
	client   *http.Client

	mu     sync.RWMutex
	token  string
	expiry time.Time
}

// NewGatewaySender constructs a GatewaySender.
func NewGatewaySender(baseURL, username, password string) *GatewaySender {
	return &GatewaySender{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

type gatewayAuthResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

func (g *GatewaySender) authToken(ctx context.Context, force bool) (string, error) {
	if !force {
		g.mu.RLock()
		if g.token != "" && time.Now().Before(g.expiry) {
			t := g.token
			g.mu.RUnlock()
			return t, nil
		}
		g.mu.RUnlock()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !force && g.token != "" && time.Now().Before(g.expiry) {
		return g.token, nil
	}

	payload, _ := json.Marshal(map[string]string{"username": g.username, "password": g.password})
	status, body, err := g.post(ctx, "/auth/login", "", payload)
	if err != nil {
		return "", errors.Wrap(err, "sms gateway auth")
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("sms gateway auth failed: status %d, body: %s", status, string(body))
	}

	var auth gatewayAuthResponse
	if err := json.Unmarshal(body, &auth); err != nil {
		return "", errors.Wrap(err, "sms gateway auth unmarshal")
	}
	if auth.Token == "" {
		return "", errors.New("sms gateway auth: empty token")
	}

	g.token = auth.Token
	if auth.ExpiresIn > 0 {
		g.expiry = time.Now().Add(time.Duration(auth.ExpiresIn)*time.Second - 30*time.Second)
	} else {
		g.expiry = time.Now().Add(55 * time.Minute)
	}
	return g.token, nil
}

func (g *GatewaySender) post(ctx context.Context, path, token string, payload []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body, nil
}

// Send delivers message to phone, refreshing the token once on 401.
func (g *GatewaySender) Send(ctx context.Context, phone, message string) error {
	payload, err := json.Marshal(map[string]string{"phone": phone, "message": message})
	if err != nil {
		return err
	}

	token, err := g.authToken(ctx, false)
	if err != nil {
		return err
	}
	status, body, err := g.post(ctx, "/sms/send", token, payload)
	if err != nil {
		return errors.Wrap(err, "sms gateway send")
	}

	if status == http.StatusUnauthorized {
		if token, err = g.authToken(ctx, true); err != nil {
			return err
		}
		if status, body, err = g.post(ctx, "/sms/send", token, payload); err != nil {
			return errors.Wrap(err, "sms gateway send")
		}
	}

	if status < 200 || status >= 300 {
		return fmt.Errorf("sms gateway send: status %d, body: %s", status, string(body))
	}
	return nil
}
