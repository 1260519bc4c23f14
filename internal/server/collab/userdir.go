package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/avolkovs/vaultshare/internal/server/models"
)

// Directory is the user directory collaborator, used only for existence
// checks and recipient search.
type Directory interface {
	Exists(ctx context.Context, username string) (bool, error)
	Search(ctx context.Context, query string, limit int) ([]models.User, error)
}

// HTTPDirectory talks to the user directory over its REST API.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
}

// NewHTTPDirectory constructs a client for the directory at baseURL.
func NewHTTPDirectory(baseURL string) *HTTPDirectory {
	return &HTTPDirectory{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *HTTPDirectory) Exists(ctx context.Context, username string) (bool, error) {
	endpoint := fmt.Sprintf("%s/v1/users/%s", d.baseURL, url.PathEscape(username))
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		return false, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("user directory: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("user directory: unexpected status %d", resp.StatusCode)
	}
}

func (d *HTTPDirectory) Search(ctx context.Context, query string, limit int) ([]models.User, error) {
	endpoint := fmt.Sprintf("%s/v1/users?q=%s&limit=%d", d.baseURL, url.QueryEscape(query), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user directory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user directory: unexpected status %d", resp.StatusCode)
	}

	var users []models.User
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return nil, fmt.Errorf("user directory: decode: %w", err)
	}
	return users, nil
}
