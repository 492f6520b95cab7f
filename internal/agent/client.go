package agent

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/samirrijal/shiftfence/internal/core/domain"
)

// Credentials identify the device user to the gateway.
type Credentials struct {
	UserID         string
	OrganizationID string
	Role           domain.Role
}

// RejectedError is returned when the API refuses a sample permanently.
type RejectedError struct {
	Status  int
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("sample rejected: %d %s: %s", e.Status, e.Code, e.Message)
}

// Client posts samples to the shiftfence API.
type Client struct {
	http *resty.Client
}

type locationRequest struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Timestamp time.Time `json:"timestamp"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewClient creates a Client for the API at baseURL.
func NewClient(baseURL string, creds Credentials, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	role := creds.Role
	if role == "" {
		role = domain.RoleWorker
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("X-User-ID", creds.UserID).
		SetHeader("X-Organization-ID", creds.OrganizationID).
		SetHeader("X-User-Role", string(role))
	return &Client{http: c}
}

// Send posts one sample to /v1/locations.
func (c *Client) Send(ctx context.Context, sample domain.LocationSample) error {
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(locationRequest{
			Lat:       sample.Location.Lat,
			Lon:       sample.Location.Lon,
			Timestamp: sample.Timestamp,
			Accuracy:  sample.AccuracyMeters,
		}).
		SetError(&apiErr).
		Post("/v1/locations")
	if err != nil {
		return fmt.Errorf("post location: %w", err)
	}

	switch status := resp.StatusCode(); {
	case resp.IsSuccess():
		return nil
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity,
		status == http.StatusNotFound:
		return &RejectedError{Status: status, Code: apiErr.Code, Message: apiErr.Message}
	default:
		return fmt.Errorf("post location: unexpected status %d %s", status, apiErr.Code)
	}
}
