// Package hotspot creates credentials on the network access controller that
// admits end users. The device is reached through the RouterOS REST API.
package hotspot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"agentledger/internal/circuitbreaker"
	"agentledger/internal/metrics"
)

var (
	// ErrUserExists means the device already holds the username. A retry after
	// an ambiguous timeout lands here when the first call actually succeeded.
	ErrUserExists  = errors.New("hotspot user already exists")
	ErrUnavailable = errors.New("hotspot unavailable")
)

// User is one credential to create on the device.
type User struct {
	Username string
	Password string
	Profile  string
	Comment  string
}

type Provisioner interface {
	CreateUser(ctx context.Context, user User) error
}

type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
}

func NewClient(baseURL, username, password string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		http:     &http.Client{Timeout: timeout},
	}
}

type createUserBody struct {
	Name     string `json:"name"`
	Password string `json:"password"`
	Profile  string `json:"profile"`
	Comment  string `json:"comment,omitempty"`
}

type deviceError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func (c *Client) CreateUser(ctx context.Context, user User) error {
	body, err := json.Marshal(createUserBody{
		Name:     user.Username,
		Password: user.Password,
		Profile:  user.Profile,
		Comment:  user.Comment,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/rest/ip/hotspot/user", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var devErr deviceError
	_ = json.Unmarshal(raw, &devErr)
	detail := devErr.Detail
	if detail == "" {
		detail = strings.TrimSpace(string(raw))
	}
	if strings.Contains(detail, "already have user") {
		return ErrUserExists
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: device returned %d: %s", ErrUnavailable, resp.StatusCode, detail)
	}
	return fmt.Errorf("hotspot rejected user %s: %d %s", user.Username, resp.StatusCode, detail)
}

// Guarded wraps a Provisioner with a circuit breaker and duration metrics.
type Guarded struct {
	next    Provisioner
	breaker *circuitbreaker.Breaker
	key     string
}

func NewGuarded(next Provisioner, breaker *circuitbreaker.Breaker, key string) *Guarded {
	return &Guarded{next: next, breaker: breaker, key: key}
}

func (g *Guarded) CreateUser(ctx context.Context, user User) error {
	start := time.Now()
	var exists bool
	err := g.breaker.Do(g.key, func() error {
		err := g.next.CreateUser(ctx, user)
		if errors.Is(err, ErrUserExists) {
			// The device answered; only the caller knows whether the user is ours.
			exists = true
			return nil
		}
		return err
	})
	metrics.ProvisioningDuration.Observe(time.Since(start).Seconds())
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return fmt.Errorf("%w: circuit open", ErrUnavailable)
	}
	if err == nil && exists {
		return ErrUserExists
	}
	return err
}

// Disabled rejects every call. Used when no device URL is configured.
type Disabled struct{}

func (Disabled) CreateUser(context.Context, User) error {
	return fmt.Errorf("%w: not configured", ErrUnavailable)
}
