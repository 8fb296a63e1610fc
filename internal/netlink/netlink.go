// Package netlink manages the network link: on-demand association against
// an ordered credential list, with an optional reachability probe to catch
// zombie associations.
package netlink

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/risehi/Pulse32/internal/indicator"
)

// Link is the radio collaborator. Associate only initiates association;
// completion is observed by polling IsConnected.
type Link interface {
	IsConnected() bool
	Associate(ssid, password string) error
	Disassociate() error
	LocalAddr() string
}

// Credential is one known network.
type Credential struct {
	SSID     string
	Password string
}

// Config holds connectivity manager settings.
type Config struct {
	Credentials  []Credential
	RetryLimit   int           // association status polls per credential
	RetryDelay   time.Duration // delay between polls
	ProbeURL     string        // optional; empty disables the reachability probe
	ProbeTimeout time.Duration
}

// Manager establishes and validates the link on demand. Connect never
// blocks longer than RetryLimit x RetryDelay per credential plus one probe
// timeout.
type Manager struct {
	link  Link
	ind   indicator.Indicator
	cfg   Config
	probe *http.Client
}

// NewManager creates a connectivity manager around the given link.
func NewManager(link Link, ind indicator.Indicator, cfg Config) *Manager {
	return &Manager{
		link: link,
		ind:  ind,
		cfg:  cfg,
		probe: &http.Client{
			Timeout: cfg.ProbeTimeout,
		},
	}
}

// Connect reports whether the link is usable, associating if needed. It is
// idempotent: an already-associated link is revalidated (probed when
// configured) rather than re-associated.
func (m *Manager) Connect(ctx context.Context) bool {
	if m.link.IsConnected() {
		if m.cfg.ProbeURL == "" || m.probeReachable(ctx) {
			return true
		}
		// Stale association: the radio reports connected but nothing is
		// reachable. Tear it down and reassociate from scratch.
		slog.Warn("reachability probe failed on associated link, reassociating",
			"probe_url", m.cfg.ProbeURL,
		)
		if err := m.link.Disassociate(); err != nil {
			slog.Error("disassociate failed", "error", err)
			return false
		}
	}

	for _, cred := range m.cfg.Credentials {
		if m.associate(ctx, cred) {
			m.ind.Blink(indicator.ColorGreen, 3, 250*time.Millisecond)
			slog.Info("link associated",
				"ssid", cred.SSID,
				"addr", m.link.LocalAddr(),
			)
			return true
		}
		slog.Warn("association failed", "ssid", cred.SSID)
	}

	m.ind.Blink(indicator.ColorRed, 3, 250*time.Millisecond)
	slog.Error("all credentials exhausted, link unavailable")
	return false
}

// associate initiates association with one credential and polls status
// within the retry budget.
func (m *Manager) associate(ctx context.Context, cred Credential) bool {
	slog.Info("associating", "ssid", cred.SSID)
	if err := m.link.Associate(cred.SSID, cred.Password); err != nil {
		slog.Warn("association request rejected", "ssid", cred.SSID, "error", err)
		return false
	}

	for i := 0; i < m.cfg.RetryLimit; i++ {
		if m.link.IsConnected() {
			return true
		}
		if !sleep(ctx, m.cfg.RetryDelay) {
			return false
		}
	}
	return m.link.IsConnected()
}

// probeReachable issues one bounded request to the configured probe URL.
func (m *Manager) probeReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.cfg.ProbeURL, nil)
	if err != nil {
		slog.Error("invalid probe url", "url", m.cfg.ProbeURL, "error", err)
		return false
	}
	resp, err := m.probe.Do(req)
	if err != nil {
		slog.Debug("reachability probe failed", "error", err)
		return false
	}
	defer resp.Body.Close()
	// Any response at all proves the network path works.
	return true
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
