package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/avolkovs/vaultshare/internal/server/models"
)

// DeliveryMessage is one notification handed to the delivery channel,
// annotated with the addressee's channel toggles.
type DeliveryMessage struct {
	Notification models.Notification `json:"notification"`
	Push         bool                `json:"push"`
	Email        bool                `json:"email"`
}

// Delivery is the push/email transport collaborator. Callers retry on
// error, so implementations must tolerate duplicate sends for the same
// notification ID.
type Delivery interface {
	Send(ctx context.Context, msg DeliveryMessage) error
}

// HTTPDelivery posts notifications to the delivery gateway.
type HTTPDelivery struct {
	baseURL string
	client  *http.Client
}

// NewHTTPDelivery constructs a client for the delivery gateway at baseURL.
func NewHTTPDelivery(baseURL string) *HTTPDelivery {
	return &HTTPDelivery{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *HTTPDelivery) Send(ctx context.Context, msg DeliveryMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v1/deliveries", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivery channel: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("delivery channel: unexpected status %d", resp.StatusCode)
	}
	return nil
}
