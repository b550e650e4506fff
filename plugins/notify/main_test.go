package main

import (
	"encoding/json"
	"testing"
)

func TestMessage(t *testing.T) {
	tests := []struct {
		name     string
		req      Request
		cfg      config
		wantBody string
		wantOK   bool
	}{
		{
			name:     "device on",
			req:      Request{Event: "device", Device: &Device{ID: 1, Name: "Light 1", On: true}},
			cfg:      config{Devices: true},
			wantBody: "Light 1 turned on",
			wantOK:   true,
		},
		{
			name:   "devices muted",
			req:    Request{Event: "device", Device: &Device{ID: 1, Name: "Light 1"}},
			cfg:    config{Devices: false},
			wantOK: false,
		},
		{
			name:     "alert",
			req:      Request{Event: "alert", Alert: &Alert{Kind: "intruder", Faces: 2}},
			wantBody: "Intruder detected (2 face(s))",
			wantOK:   true,
		},
		{
			name:   "unknown event",
			req:    Request{Event: "other"},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, body, ok := message(tt.req, tt.cfg)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
		})
	}
}

func TestRequestDecodesExecutorPayload(t *testing.T) {
	payload := `{"event":"device","device":{"id":3,"name":"Light 3","on":true},"config":{"devices":false}}`
	var req Request
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		t.Fatal(err)
	}
	if req.Device == nil || req.Device.ID != 3 || !req.Device.On {
		t.Fatalf("unexpected device %+v", req.Device)
	}
}
