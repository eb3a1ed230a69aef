package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/dispatch-console/internal/models"
)

// PushNotifier tries the driver's live websocket session first and falls
// back to posting the assignment to a provider webhook (driver app
// backend, FCM relay, etc).
type PushNotifier struct {
	Endpoint string
	Client   *http.Client
	WS       *WSRegistry
}

func NewPushNotifier(endpoint string, ws *WSRegistry) *PushNotifier {
	return &PushNotifier{Endpoint: endpoint, Client: &http.Client{Timeout: 3 * time.Second}, WS: ws}
}

func (p *PushNotifier) Notify(driverID string, a models.Assignment) error {
	if p.WS != nil {
		if err := p.WS.Notify(driverID, a); err == nil {
			return nil
		}
	}
	if p.Endpoint == "" {
		return ErrNoSession
	}
	b, _ := json.Marshal(map[string]interface{}{"driver_id": driverID, "assignment": a})
	resp, err := p.Client.Post(p.Endpoint, "application/json", bytes.NewReader(b))
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("push webhook returned %s", resp.Status)
	}
	return nil
}
