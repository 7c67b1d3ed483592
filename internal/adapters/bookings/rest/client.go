package rest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"health-data-access/internal/platform/httpclient"
)

var ErrUpstream = errors.New("bookings upstream error")

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client implementa bookings.Service contra el servicio de turnos.
type Client struct {
	http   *httpclient.Client
	apiKey string
}

func NewClient(cfg Config) (*Client, error) {
	hc, err := httpclient.NewWithBaseURL(cfg.BaseURL, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &Client{http: hc, apiKey: strings.TrimSpace(cfg.APIKey)}, nil
}

type existsRequest struct {
	PatientID   string   `json:"patient_id"`
	ProviderIDs []string `json:"provider_ids"`
}

type existsResponse struct {
	Exists bool `json:"exists"`
}

// HasAnyBooking consulta si el paciente tiene al menos un booking con
// alguno de los providers dados. Un conjunto vacío nunca matchea.
func (c *Client) HasAnyBooking(ctx context.Context, patientID string, providerIDs []string) (bool, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" || len(providerIDs) == 0 {
		return false, nil
	}

	var out existsResponse
	err := c.http.DoJSON(ctx, "POST", "/v1/bookings/exists", c.headers(), existsRequest{
		PatientID:   patientID,
		ProviderIDs: providerIDs,
	}, &out)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	return out.Exists, nil
}

func (c *Client) headers() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	return map[string]string{"X-Api-Key": c.apiKey}
}
