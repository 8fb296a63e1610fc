package netlink

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/risehi/Pulse32/internal/indicator"
)

func manager(link Link, cfg Config) *Manager {
	if cfg.RetryLimit == 0 {
		cfg.RetryLimit = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 100 * time.Millisecond
	}
	return NewManager(link, indicator.Noop{}, cfg)
}

// TestConnectFirstCredential verifies the happy path.
func TestConnectFirstCredential(t *testing.T) {
	link := NewSimLink(map[string]string{"homenet": "secret"})
	m := manager(link, Config{
		Credentials: []Credential{{SSID: "homenet", Password: "secret"}},
	})

	if !m.Connect(context.Background()) {
		t.Fatal("Connect failed against a known network")
	}
	if link.LocalAddr() == "" {
		t.Error("No local address after association")
	}
}

// TestConnectFallsBackToSecondCredential verifies ordered iteration over
// the credential list.
func TestConnectFallsBackToSecondCredential(t *testing.T) {
	link := NewSimLink(map[string]string{"phone-hotspot": "hotpw"})
	m := manager(link, Config{
		Credentials: []Credential{
			{SSID: "homenet", Password: "wrong"},
			{SSID: "phone-hotspot", Password: "hotpw"},
		},
	})

	if !m.Connect(context.Background()) {
		t.Fatal("Connect failed despite a reachable second network")
	}
}

// TestConnectExhaustsCredentials verifies bounded failure when no network
// is reachable.
func TestConnectExhaustsCredentials(t *testing.T) {
	link := NewSimLink(nil) // no networks exist
	m := manager(link, Config{
		Credentials: []Credential{
			{SSID: "homenet", Password: "a"},
			{SSID: "phone-hotspot", Password: "b"},
		},
	})

	start := time.Now()
	if m.Connect(context.Background()) {
		t.Fatal("Connect succeeded with no reachable network")
	}
	// 2 credentials x 3 polls x 1ms: well under a second even with slack.
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Connect blocked too long: %v", elapsed)
	}
}

// TestConnectIdempotentWhenAssociated verifies no re-association happens
// on an already-usable link.
func TestConnectIdempotentWhenAssociated(t *testing.T) {
	link := NewSimLink(map[string]string{"homenet": "secret"})
	m := manager(link, Config{
		Credentials: []Credential{{SSID: "homenet", Password: "secret"}},
	})

	if !m.Connect(context.Background()) {
		t.Fatal("initial Connect failed")
	}
	addr := link.LocalAddr()

	if !m.Connect(context.Background()) {
		t.Fatal("second Connect failed")
	}
	if link.LocalAddr() != addr {
		t.Error("address changed: link was re-associated")
	}
}

// TestProbeDetectsZombieAssociation verifies a failing probe forces a
// disassociate and a fresh association.
func TestProbeDetectsZombieAssociation(t *testing.T) {
	probe := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	probeURL := probe.URL
	probe.Close() // probe target now unreachable

	link := NewSimLink(map[string]string{"homenet": "secret"})
	m := manager(link, Config{
		Credentials: []Credential{{SSID: "homenet", Password: "secret"}},
		ProbeURL:    probeURL,
	})

	// Associate out of band so the link reports connected.
	link.Associate("homenet", "secret")
	if !link.IsConnected() {
		t.Fatal("sim link did not associate")
	}

	// Probe fails against the closed server, so Connect must tear down and
	// reassociate; the sim link accepts the fresh association, so Connect
	// still succeeds.
	if !m.Connect(context.Background()) {
		t.Fatal("Connect failed to recover from zombie association")
	}
}

// TestProbeAcceptsReachableLink verifies any probe response validates the
// association.
func TestProbeAcceptsReachableLink(t *testing.T) {
	probe := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer probe.Close()

	link := NewSimLink(map[string]string{"homenet": "secret"})
	m := manager(link, Config{
		Credentials: []Credential{{SSID: "homenet", Password: "secret"}},
		ProbeURL:    probe.URL,
	})

	link.Associate("homenet", "secret")
	if !link.IsConnected() {
		t.Fatal("sim link did not associate")
	}

	if !m.Connect(context.Background()) {
		t.Fatal("Connect rejected a reachable association")
	}
}
