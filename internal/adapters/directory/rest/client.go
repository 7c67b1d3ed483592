package rest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"health-data-access/internal/platform/httpclient"
	"health-data-access/internal/ports/directory"
)

var (
	ErrNotConfigured = errors.New("directory client not configured")
	ErrUserNotFound  = errors.New("directory: user not found")
	ErrUpstream      = errors.New("directory upstream error")
)

type Config struct {
	BaseURL string
	APIKey  string

	// Header de la API key; default "X-Api-Key".
	APIKeyHeader string
	Timeout      time.Duration
}

// Client implementa directory.Directory contra el servicio de identidades.
type Client struct {
	http         *httpclient.Client
	apiKey       string
	apiKeyHeader string
}

func NewClient(cfg Config) (*Client, error) {
	h := strings.TrimSpace(cfg.APIKeyHeader)
	if h == "" {
		h = "X-Api-Key"
	}

	hc, err := httpclient.NewWithBaseURL(cfg.BaseURL, cfg.Timeout)
	if err != nil {
		return nil, err
	}

	return &Client{
		http:         hc,
		apiKey:       strings.TrimSpace(cfg.APIKey),
		apiKeyHeader: h,
	}, nil
}

type userResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	HospitalID string `json:"hospital_id"`
}

func (c *Client) Lookup(ctx context.Context, userID string) (directory.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return directory.User{}, ErrUserNotFound
	}

	var out userResponse
	err := c.http.DoJSON(ctx, "GET", "/v1/users/"+url.PathEscape(userID), c.headers(), nil, &out)
	if err != nil {
		var httpErr *httpclient.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == 404 {
			return directory.User{}, ErrUserNotFound
		}
		return directory.User{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	return toUser(out)
}

func (c *Client) ListProviders(ctx context.Context, hospitalID string) ([]directory.User, error) {
	hospitalID = strings.TrimSpace(hospitalID)
	if hospitalID == "" {
		return nil, errors.New("hospital id required")
	}

	var out []userResponse
	err := c.http.DoJSON(ctx, "GET", "/v1/hospitals/"+url.PathEscape(hospitalID)+"/providers", c.headers(), nil, &out)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	users := make([]directory.User, 0, len(out))
	for _, raw := range out {
		u, err := toUser(raw)
		if err != nil {
			continue // entradas con rol desconocido se ignoran
		}
		users = append(users, u)
	}
	return users, nil
}

func (c *Client) headers() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	return map[string]string{c.apiKeyHeader: c.apiKey}
}

func toUser(raw userResponse) (directory.User, error) {
	role, ok := directory.ParseRole(raw.Role)
	if !ok {
		return directory.User{}, fmt.Errorf("%w: unknown role %q", ErrUpstream, raw.Role)
	}
	return directory.User{
		ID:         strings.TrimSpace(raw.ID),
		Name:       strings.TrimSpace(raw.Name),
		Role:       role,
		HospitalID: strings.TrimSpace(raw.HospitalID),
	}, nil
}
