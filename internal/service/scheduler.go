package service

import (
	"context"
	"sync"
	"time"

	"github.com/halvard/modelwatch/internal/logger"
)

// MonitorScheduler runs the file monitor's change check on a fixed interval.
// A tick that overlaps a still-running check is skipped implicitly because
// ticks are consumed sequentially.
type MonitorScheduler struct {
	monitor  *FileMonitor
	interval time.Duration
	logger   *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewMonitorScheduler creates a scheduler polling at the given interval.
func NewMonitorScheduler(monitor *FileMonitor, interval time.Duration, log *logger.Logger) *MonitorScheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &MonitorScheduler{
		monitor:  monitor,
		interval: interval,
		logger:   log,
	}
}

// Start launches the polling loop. Calling Start on a running scheduler is
// a no-op.
func (s *MonitorScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	s.logger.WithField("interval", s.interval.String()).Info("Monitor scheduler started")

	go s.loop(ctx)
}

func (s *MonitorScheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

func (s *MonitorScheduler) check(ctx context.Context) {
	start := time.Now()
	result, err := s.monitor.CheckForChanges(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Scheduled change check failed")
		return
	}
	if result.TotalChanges == 0 {
		s.logger.Debug("Scheduled change check found no changes")
		return
	}
	logger.With(logger.Fields{
		logger.FieldComponent:  "scheduler",
		logger.FieldCount:      result.TotalChanges,
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Info(ctx, "Scheduled change check: added=%d, modified=%d, deleted=%d",
		result.FilesAdded, result.FilesModified, result.FilesDeleted)
}

// Stop halts the polling loop and waits for an in-progress check to finish.
func (s *MonitorScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("Monitor scheduler stopped")
}
