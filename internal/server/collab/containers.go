// Package collab defines the external collaborators the sharing subsystem
// consumes but does not implement: the container service, the user
// directory, and the notification delivery channel. HTTP client
// implementations for each live alongside the interfaces.
package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/avolkovs/vaultshare/internal/common"
)

// ContainerInfo is the container metadata the sharing subsystem needs.
type ContainerInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Locked bool   `json:"locked"`
}

// Containers is the container service collaborator. Authorize is the single
// synchronous check a mutating share call performs; it must never block on
// mount/unmount work.
type Containers interface {
	// Authorize verifies that username may administer containerID and
	// returns its metadata. Implementations surface taxonomy errors for
	// unknown containers and unauthorized callers.
	Authorize(ctx context.Context, containerID, username string) (*ContainerInfo, error)
	// Lookup returns container metadata without an authorization check,
	// used on read paths such as access recording.
	Lookup(ctx context.Context, containerID string) (*ContainerInfo, error)
}

// HTTPContainers talks to the container service over its REST API.
type HTTPContainers struct {
	baseURL string
	client  *http.Client
}

// NewHTTPContainers constructs a client for the container service at baseURL.
func NewHTTPContainers(baseURL string) *HTTPContainers {
	return &HTTPContainers{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPContainers) Authorize(ctx context.Context, containerID, username string) (*ContainerInfo, error) {
	endpoint := fmt.Sprintf("%s/v1/containers/%s/authorize?user=%s",
		c.baseURL, url.PathEscape(containerID), url.QueryEscape(username))
	return c.getInfo(ctx, endpoint)
}

func (c *HTTPContainers) Lookup(ctx context.Context, containerID string) (*ContainerInfo, error) {
	endpoint := fmt.Sprintf("%s/v1/containers/%s", c.baseURL, url.PathEscape(containerID))
	return c.getInfo(ctx, endpoint)
}

func (c *HTTPContainers) getInfo(ctx context.Context, endpoint string) (*ContainerInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("container service: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, common.ErrContainerNotFound
	case http.StatusForbidden:
		return nil, common.ErrInsufficientPermissions
	default:
		return nil, fmt.Errorf("container service: unexpected status %d", resp.StatusCode)
	}

	info := &ContainerInfo{}
	if err := json.NewDecoder(resp.Body).Decode(info); err != nil {
		return nil, fmt.Errorf("container service: decode: %w", err)
	}
	return info, nil
}
