package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/strata/internal/infrastructure/config"
	"github.com/nerrad567/strata/internal/monitor"
)

func TestConnect_Disabled(t *testing.T) {
	cfg := config.EventsConfig{Enabled: false}

	_, err := Connect(cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestTopics(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{name: "system status", got: topics.SystemStatus(), want: "strata/system/status"},
		{name: "slow query", got: topics.SlowQuery("resumes_by_owner"), want: "strata/perf/slow/resumes_by_owner"},
		{name: "migration applied", got: topics.MigrationApplied(), want: "strata/schema/applied"},
		{name: "migration rolled back", got: topics.MigrationRolledBack(), want: "strata/schema/rolled_back"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("topic = %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := config.EventsConfig{
		Enabled: true,
		Broker: config.EventsBrokerConfig{
			Host:     "localhost",
			Port:     1883,
			ClientID: "strata-test",
		},
		Auth: config.EventsAuthConfig{Username: "strata", Password: "secret"},
		QoS:  1,
	}

	opts := buildClientOptions(cfg)

	if got := opts.Servers[0].String(); got != "tcp://localhost:1883" {
		t.Errorf("broker URL = %q, want tcp://localhost:1883", got)
	}
	if opts.ClientID != "strata-test" {
		t.Errorf("ClientID = %q, want strata-test", opts.ClientID)
	}
	if opts.Username != "strata" {
		t.Errorf("Username = %q, want strata", opts.Username)
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := config.EventsConfig{
		Broker: config.EventsBrokerConfig{Host: "broker.internal", Port: 8883, TLS: true},
	}

	opts := buildClientOptions(cfg)

	if got := opts.Servers[0].Scheme; got != "ssl" {
		t.Errorf("broker scheme = %q, want ssl", got)
	}
	if opts.TLSConfig == nil {
		t.Fatal("TLSConfig is nil with TLS enabled")
	}
	if opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Errorf("TLS MinVersion = %d, want %d", opts.TLSConfig.MinVersion, tlsMinVersion)
	}
}

func TestStatusPayloads(t *testing.T) {
	var online struct {
		Status   string `json:"status"`
		ClientID string `json:"client_id"`
	}
	if err := json.Unmarshal([]byte(buildOnlinePayload("strata-01")), &online); err != nil {
		t.Fatalf("online payload is not valid JSON: %v", err)
	}
	if online.Status != "online" || online.ClientID != "strata-01" {
		t.Errorf("online payload = %+v, want status=online client_id=strata-01", online)
	}

	var offline struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(buildOfflinePayload("strata-01")), &offline); err != nil {
		t.Fatalf("offline payload is not valid JSON: %v", err)
	}
	if offline.Status != "offline" || offline.Reason != "graceful_shutdown" {
		t.Errorf("offline payload = %+v, want status=offline reason=graceful_shutdown", offline)
	}
}

func TestSlowQueryEventEncoding(t *testing.T) {
	evt := slowQueryEvent{
		Operation:  "resumes_by_owner",
		DurationMS: 128.5,
		Timestamp:  time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Success:    true,
	}

	raw, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded["operation"] != "resumes_by_owner" {
		t.Errorf("operation = %v, want resumes_by_owner", decoded["operation"])
	}
	if decoded["duration_ms"] != 128.5 {
		t.Errorf("duration_ms = %v, want 128.5", decoded["duration_ms"])
	}
}

func TestPublish_Validation(t *testing.T) {
	// A zero-value publisher is enough to exercise input validation,
	// which runs before any connection check.
	p := &Publisher{}

	if err := p.Publish("", []byte("x"), 0, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish() with empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := p.Publish("strata/test", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Publish() with QoS 3 error = %v, want ErrInvalidQoS", err)
	}

	huge := make([]byte, maxPayloadSize+1)
	if err := p.Publish("strata/test", huge, 0, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() with oversized payload error = %v, want ErrPublishFailed", err)
	}
}

func TestPublishSlowQuery_NotConnected(t *testing.T) {
	p := &Publisher{}
	p.client = nil

	err := p.PublishSlowQuery(monitor.Sample{Operation: "op", Duration: time.Second})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishSlowQuery() error = %v, want ErrNotConnected", err)
	}
}
