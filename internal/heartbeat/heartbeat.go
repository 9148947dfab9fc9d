// Package heartbeat periodically pushes a bridge status card to the
// chat platforms so a remote user knows the bridge is still alive.
package heartbeat

import (
	"sync"
	"time"

	"github.com/EchoBridge/echobridge/internal/config"
	"github.com/EchoBridge/echobridge/internal/logger"
)

const (
	// DefaultIntervalMinutes is the default heartbeat interval
	DefaultIntervalMinutes = 60
)

// StatusFunc produces the status card for one heartbeat tick:
// a short status line, details, and a progress percentage (negative
// to omit the bar).
type StatusFunc func() (status, details string, progress int)

// SendFunc delivers the status card, typically a closure over the
// router's SendStatusUpdate.
type SendFunc func(status, details string, progress int) error

// Service manages the periodic heartbeat loop.
type Service struct {
	cfg      config.HeartbeatConfig
	sender   SendFunc
	statusFn StatusFunc
	log      *logger.Logger

	stopChan chan struct{}
	running  bool
	mu       sync.RWMutex
}

// New creates a heartbeat service.
func New(cfg config.HeartbeatConfig, sender SendFunc, statusFn StatusFunc, log *logger.Logger) *Service {
	return &Service{
		cfg:      cfg,
		sender:   sender,
		statusFn: statusFn,
		log:      log.WithComponent("heartbeat"),
	}
}

// Start begins the heartbeat loop. A no-op when disabled or already
// running.
func (s *Service) Start() {
	s.mu.Lock()
	if !s.cfg.Enabled || s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	minutes := s.cfg.IntervalMinutes
	if minutes < 1 {
		minutes = DefaultIntervalMinutes
	}
	interval := time.Duration(minutes) * time.Minute
	s.log.Info("💓 Heartbeat started (interval: %v)", interval)

	go s.loop(interval)
}

// Stop stops the heartbeat service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.running = false
	close(s.stopChan)
	s.log.Info("💓 Heartbeat stopped")
}

// IsRunning returns whether the service is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Service) loop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.beat()
		}
	}
}

func (s *Service) beat() {
	if s.sender == nil || s.statusFn == nil {
		return
	}

	status, details, progress := s.statusFn()
	if status == "" {
		return
	}

	if err := s.sender(status, details, progress); err != nil {
		s.log.Warn("💓 heartbeat delivery failed: %v", err)
	}
}

// Force triggers an immediate heartbeat (for testing/debug)
func (s *Service) Force() {
	s.beat()
}
