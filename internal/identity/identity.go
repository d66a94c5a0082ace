package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

var (
	ErrNotFound    = errors.New("identity not found")
	ErrUnavailable = errors.New("identity service unavailable")
)

// Directory looks up customer and driver identities.
type Directory interface {
	FindCustomer(ctx context.Context, id string) (models.CustomerSnapshot, error)
	FindDriver(ctx context.Context, id string) (models.DriverSnapshot, error)
}

// HTTPClient reads identities from the user service's REST API.
type HTTPClient struct {
	Endpoint string
	Client   *http.Client
}

func NewHTTPClient(endpoint string) *HTTPClient {
	return &HTTPClient{Endpoint: strings.TrimRight(endpoint, "/"), Client: &http.Client{Timeout: 3 * time.Second}}
}

func (h *HTTPClient) FindCustomer(ctx context.Context, id string) (models.CustomerSnapshot, error) {
	var out models.CustomerSnapshot
	err := h.get(ctx, "customers", id, &out)
	return out, err
}

func (h *HTTPClient) FindDriver(ctx context.Context, id string) (models.DriverSnapshot, error) {
	var out models.DriverSnapshot
	err := h.get(ctx, "drivers", id, &out)
	return out, err
}

func (h *HTTPClient) get(ctx context.Context, kind, id string, out any) error {
	u := fmt.Sprintf("%s/%s/%s", h.Endpoint, kind, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%s %s: unexpected status %d", kind, id, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", kind, id, err)
	}
	return nil
}
