// Package reachability turns periodic probe results into transition events.
package reachability

import (
	"sync"
	"time"

	"github.com/plexmon/plexmon/internal/metrics"
	"github.com/plexmon/plexmon/internal/probe"
)

// EventKind identifies a reachability transition.
type EventKind string

const (
	ServerDown EventKind = "server_down"
	ServerUp   EventKind = "server_up"
)

// Event is emitted exactly when the online flag flips.
type Event struct {
	Kind EventKind
	At   time.Time
	// Result is the probe that caused the transition.
	Result probe.Result
	// Downtime is set on ServerUp: time since the ServerDown transition.
	Downtime time.Duration
}

// State is a point-in-time copy of the detector state.
type State struct {
	Online           bool
	LastCheck        time.Time
	LastTransitionAt time.Time
}

// Detector holds the last-known reachability. It starts Online so that a
// reachable target produces no alert on boot.
type Detector struct {
	mu               sync.Mutex
	online           bool
	lastCheck        time.Time
	lastTransitionAt time.Time
}

// NewDetector returns a detector in the Online state.
func NewDetector() *Detector {
	metrics.SetServerOnline(true)
	return &Detector{online: true}
}

// Observe applies one probe result. Manual and scheduled checks both go
// through here, so they share one transition rule.
func (d *Detector) Observe(res probe.Result, now time.Time) (Event, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lastCheck = now
	if res.Reachable == d.online {
		return Event{}, false
	}

	ev := Event{At: now, Result: res}
	if res.Reachable {
		ev.Kind = ServerUp
		if !d.lastTransitionAt.IsZero() {
			ev.Downtime = now.Sub(d.lastTransitionAt)
		}
	} else {
		ev.Kind = ServerDown
	}

	d.online = res.Reachable
	d.lastTransitionAt = now
	metrics.SetServerOnline(d.online)
	return ev, true
}

// Online reports the current state.
func (d *Detector) Online() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.online
}

// Snapshot returns a copy of the current state.
func (d *Detector) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return State{
		Online:           d.online,
		LastCheck:        d.lastCheck,
		LastTransitionAt: d.lastTransitionAt,
	}
}
