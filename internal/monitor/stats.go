package monitor

import (
	"sync/atomic"
	"time"
)

// Stats are process-lifetime counters, reset on restart.
type Stats struct {
	checks        atomic.Int64
	alerts        atomic.Int64
	torrentsAdded atomic.Int64
	startedAt     time.Time
}

// StatsSnapshot is the JSON form served by the status endpoint.
type StatsSnapshot struct {
	ChecksPerformed int64     `json:"checksPerformed"`
	AlertsSent      int64     `json:"alertsSent"`
	TorrentsAdded   int64     `json:"torrentsAdded"`
	BotStartTime    time.Time `json:"botStartTime"`
}

// NewStats starts the uptime clock at now.
func NewStats(now time.Time) *Stats {
	return &Stats{startedAt: now}
}

func (s *Stats) RecordCheck()        { s.checks.Add(1) }
func (s *Stats) RecordAlert()        { s.alerts.Add(1) }
func (s *Stats) RecordTorrentAdded() { s.torrentsAdded.Add(1) }

// StartedAt returns the process start time.
func (s *Stats) StartedAt() time.Time {
	return s.startedAt
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		ChecksPerformed: s.checks.Load(),
		AlertsSent:      s.alerts.Load(),
		TorrentsAdded:   s.torrentsAdded.Load(),
		BotStartTime:    s.startedAt,
	}
}
