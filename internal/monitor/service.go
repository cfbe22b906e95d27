// Package monitor drives the periodic reachability and download checks and
// delivers their alerts.
package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/plexmon/plexmon/internal/downloads"
	"github.com/plexmon/plexmon/internal/events"
	"github.com/plexmon/plexmon/internal/logging"
	"github.com/plexmon/plexmon/internal/metrics"
	"github.com/plexmon/plexmon/internal/probe"
	"github.com/plexmon/plexmon/internal/reachability"
)

// Notifier delivers alert text to the operator.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Session exposes the download client's authentication state.
type Session interface {
	SessionValid() bool
	Login(ctx context.Context) error
}

// Config holds the monitor's schedule.
type Config struct {
	// Target is shown in alerts as the server address.
	Target           string
	CheckInterval    time.Duration
	DownloadInterval time.Duration
}

// Service owns the reachability state machine and the download poller.
type Service struct {
	cfg         Config
	checker     probe.Checker
	detector    *reachability.Detector
	poller      *downloads.Poller
	session     Session
	notifier    Notifier
	broadcaster *events.Broadcaster
	stats       *Stats
	now         func() time.Time
}

// Deps are the collaborators of a Service. Notifier and Broadcaster may be
// nil, in which case alerts are only logged.
type Deps struct {
	Checker     probe.Checker
	Detector    *reachability.Detector
	Poller      *downloads.Poller
	Session     Session
	Notifier    Notifier
	Broadcaster *events.Broadcaster
	Stats       *Stats
}

// New creates a monitor service.
func New(cfg Config, deps Deps) *Service {
	if deps.Detector == nil {
		deps.Detector = reachability.NewDetector()
	}
	if deps.Stats == nil {
		deps.Stats = NewStats(time.Now())
	}
	return &Service{
		cfg:         cfg,
		checker:     deps.Checker,
		detector:    deps.Detector,
		poller:      deps.Poller,
		session:     deps.Session,
		notifier:    deps.Notifier,
		broadcaster: deps.Broadcaster,
		stats:       deps.Stats,
		now:         time.Now,
	}
}

// Stats returns the process counters.
func (s *Service) Stats() *Stats {
	return s.stats
}

// Target returns the monitored address as shown to users.
func (s *Service) Target() string {
	return s.cfg.Target
}

// Startup logs in to the download client and runs one probe. Both results
// are only logged: the probe neither alerts nor changes state, so the first
// scheduled check decides whether the server is down.
func (s *Service) Startup(ctx context.Context) {
	if s.session != nil {
		if err := s.session.Login(ctx); err != nil {
			logging.Warn("download client login failed", logging.Err(err))
		} else {
			logging.Info("download client session established")
		}
	}

	res := s.checker.Check(ctx)
	if res.Reachable {
		logging.Info("plex server reachable",
			logging.String("target", s.cfg.Target),
			logging.Duration("latency", res.Latency))
	} else {
		logging.Warn("plex server unreachable",
			logging.String("target", s.cfg.Target),
			logging.String("reason", res.Description()))
	}
}

// Run blocks until ctx is cancelled, running both loops.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.every(ctx, s.cfg.CheckInterval, "reachability", func(ctx context.Context) {
			s.CheckNow(ctx)
		})
		return nil
	})
	if s.poller != nil {
		g.Go(func() error {
			s.every(ctx, s.cfg.DownloadInterval, "downloads", s.PollDownloads)
			return nil
		})
	}

	logging.Info("monitor started",
		logging.String("target", s.cfg.Target),
		logging.Duration("check_interval", s.cfg.CheckInterval),
		logging.Duration("download_interval", s.cfg.DownloadInterval))
	return g.Wait()
}

// every runs fn on each tick. A panicking tick is logged and the loop keeps
// going.
func (s *Service) every(ctx context.Context, interval time.Duration, name string, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, name, fn)
		}
	}
}

func (s *Service) tick(ctx context.Context, name string, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("monitor tick panicked",
				logging.String("loop", name),
				zap.Any("panic", r))
		}
	}()
	fn(ctx)
}

// CheckNow probes once and applies the result. Scheduled and manual checks
// share this path, so a manual check that observes a flip alerts too. A
// probe cut short by cancellation says nothing about the server and is
// discarded.
func (s *Service) CheckNow(ctx context.Context) probe.Result {
	res := s.checker.Check(ctx)
	if ctx.Err() != nil {
		logging.Debug("reachability check cancelled", logging.String("target", s.cfg.Target))
		return res
	}
	s.stats.RecordCheck()

	ev, changed := s.detector.Observe(res, s.now())
	if changed {
		s.alertTransition(ctx, ev)
	}
	return res
}

// PollDownloads runs one reconciliation cycle and alerts on completions.
func (s *Service) PollDownloads(ctx context.Context) {
	if s.poller == nil {
		return
	}
	for _, c := range s.poller.Poll(ctx) {
		logging.Info("download complete",
			logging.String("name", c.Name),
			logging.String("id", c.ID))
		s.publish(events.Event{
			Type:     events.EventDownloadComplete,
			Name:     c.Name,
			Size:     c.Size,
			SavePath: c.SavePath,
		})
		s.deliver(ctx, "download_complete", completionText(c))
	}
}

// DownloadAdded records a download started from chat.
func (s *Service) DownloadAdded(name, savePath string) {
	s.stats.RecordTorrentAdded()
	s.publish(events.Event{
		Type:     events.EventDownloadAdded,
		Name:     name,
		SavePath: savePath,
	})
}

func (s *Service) alertTransition(ctx context.Context, ev reachability.Event) {
	e := events.Event{Target: s.cfg.Target, Timestamp: ev.At.Unix()}
	kind := "server_up"
	if ev.Kind == reachability.ServerDown {
		kind = "server_down"
		e.Type = events.EventServerDown
		e.Reason = ev.Result.Description()
		logging.Warn("plex server went offline",
			logging.String("target", s.cfg.Target),
			logging.String("reason", e.Reason))
	} else {
		e.Type = events.EventServerUp
		e.Downtime = int64(ev.Downtime / time.Second)
		logging.Info("plex server back online",
			logging.String("target", s.cfg.Target),
			logging.Duration("downtime", ev.Downtime))
	}
	s.publish(e)
	s.deliver(ctx, kind, alertText(s.cfg.Target, ev))
}

func (s *Service) publish(e events.Event) {
	if s.broadcaster != nil {
		s.broadcaster.Publish(e)
	}
}

// deliver sends one alert. A failed send is logged and dropped.
func (s *Service) deliver(ctx context.Context, kind, text string) {
	if s.notifier == nil {
		logging.Debug("alert not delivered, no chat configured", logging.String("kind", kind))
		return
	}
	if err := s.notifier.Notify(ctx, text); err != nil {
		logging.Error("alert delivery failed",
			logging.String("kind", kind),
			logging.Err(err))
		return
	}
	s.stats.RecordAlert()
	metrics.RecordAlertSent(kind)
}

// Status is the monitor's externally visible state.
type Status struct {
	Online        bool
	LastCheck     time.Time
	SessionValid  bool
	Uptime        time.Duration
	Stats         StatsSnapshot
	Target        string
	CheckInterval time.Duration
}

// Status reports current state without probing.
func (s *Service) Status() Status {
	st := s.detector.Snapshot()
	valid := false
	if s.session != nil {
		valid = s.session.SessionValid()
	}
	return Status{
		Online:        st.Online,
		LastCheck:     st.LastCheck,
		SessionValid:  valid,
		Uptime:        s.now().Sub(s.stats.StartedAt()),
		Stats:         s.stats.Snapshot(),
		Target:        s.cfg.Target,
		CheckInterval: s.cfg.CheckInterval,
	}
}

