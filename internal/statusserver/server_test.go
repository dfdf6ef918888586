package statusserver

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	s := New(nil, Options{Version: "1.2.3"})
	resp, err := s.app.Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["version"] != "1.2.3" {
		t.Fatalf("body = %v", body)
	}
}

func TestStatusEndpointListsChannels(t *testing.T) {
	s := New(nil, Options{
		Version: "dev",
		Channels: func() []ChannelStatus {
			return []ChannelStatus{
				{Channel: "telegram", State: "running", Sessions: 3},
				{Channel: "whatsapp", State: "ready", Sessions: 1},
			}
		},
	})
	resp, err := s.app.Test(httptest.NewRequest("GET", "/api/status", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var body struct {
		Version  string          `json:"version"`
		Channels []ChannelStatus `json:"channels"`
	}
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Channels) != 2 || body.Channels[0].Channel != "telegram" || body.Channels[1].Sessions != 1 {
		t.Fatalf("channels = %+v", body.Channels)
	}
}

func TestQREndpoint(t *testing.T) {
	s := New(nil, Options{})
	resp, err := s.app.Test(httptest.NewRequest("GET", "/api/whatsapp/qr", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Fatalf("without whatsapp the QR endpoint should 404, got %d", resp.StatusCode)
	}

	s = New(nil, Options{WhatsAppQR: func() QRStatus {
		return QRStatus{State: "waiting_qr", QR: "qr-payload"}
	}})
	resp, err = s.app.Test(httptest.NewRequest("GET", "/api/whatsapp/qr", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var body QRStatus
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.State != "waiting_qr" || body.QR != "qr-payload" {
		t.Fatalf("body = %+v", body)
	}
}
