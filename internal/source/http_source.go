package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/example/dispatch-console/internal/models"
)

// HTTPSource binds the abstract feed operations to the surrounding
// platform's REST API.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{BaseURL: strings.TrimRight(baseURL, "/"), Client: &http.Client{Timeout: 2 * time.Second}}
}

func (s *HTTPSource) FetchPendingRides(ctx context.Context) ([]models.Ride, error) {
	var out []models.Ride
	if err := s.getJSON(ctx, "/dispatch/rides/pending", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *HTTPSource) FetchAvailableDrivers(ctx context.Context) ([]models.Driver, error) {
	var out []models.Driver
	if err := s.getJSON(ctx, "/dispatch/drivers/available", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *HTTPSource) getJSON(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("feed %s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
