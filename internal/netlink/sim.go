package netlink

import (
	"fmt"
	"sync"
)

// SimLink simulates the radio for off-device runs. Association with a
// known SSID completes after AssociateAfter status polls.
type SimLink struct {
	mu sync.Mutex

	// KnownSSIDs maps SSID -> password for networks that exist.
	KnownSSIDs map[string]string
	// AssociateAfter is how many IsConnected polls association takes.
	AssociateAfter int
	// Down forces the link offline regardless of association state.
	Down bool

	associating string
	polls       int
	connected   bool
	addr        string
}

// NewSimLink creates a simulated link that knows the given networks.
func NewSimLink(known map[string]string) *SimLink {
	return &SimLink{
		KnownSSIDs:     known,
		AssociateAfter: 1,
	}
}

func (l *SimLink) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.Down {
		return false
	}
	if l.connected {
		return true
	}
	if l.associating == "" {
		return false
	}
	l.polls++
	if l.polls >= l.AssociateAfter {
		l.connected = true
		l.addr = "192.168.4.23"
		l.associating = ""
	}
	return l.connected
}

func (l *SimLink) Associate(ssid, password string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.connected = false
	l.associating = ""
	l.polls = 0

	want, known := l.KnownSSIDs[ssid]
	if !known || want != password {
		// The radio accepts the request; association simply never
		// completes, like a real out-of-range or wrong-password network.
		return nil
	}
	l.associating = ssid
	return nil
}

func (l *SimLink) Disassociate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.connected = false
	l.associating = ""
	l.polls = 0
	l.addr = ""
	return nil
}

func (l *SimLink) LocalAddr() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addr
}

// SetDown flips the simulated radio on or off.
func (l *SimLink) SetDown(down bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Down = down
	if down {
		l.connected = false
		l.associating = ""
		l.polls = 0
	}
}

// String describes the link state for logs.
func (l *SimLink) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fmt.Sprintf("sim(connected=%v addr=%s)", l.connected, l.addr)
}
