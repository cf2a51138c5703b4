package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shipfunnel/backend/internal/infrastructure/config"
)

// DispatchFunc runs one scheduled dispatch. ran is false when the active
// policy had nothing to do today.
type DispatchFunc func(ctx context.Context) (ran bool, err error)

// TransferTriggerConfig holds configuration for the transfer trigger
type TransferTriggerConfig struct {
	// Hour is the local hour of day the trigger fires (0-23)
	Hour int

	// CheckInterval is how often to check if it's time to run
	CheckInterval time.Duration

	// Location used for the hour and the calendar day; nil means time.Local
	Location *time.Location
}

// DefaultTransferTriggerConfig returns default trigger configuration
func DefaultTransferTriggerConfig() TransferTriggerConfig {
	return TransferTriggerConfig{
		Hour:          2, // 2am
		CheckInterval: time.Minute,
	}
}

// TransferTriggerConfigFromConfig converts the transfer section
func TransferTriggerConfigFromConfig(cfg config.TransferConfig) TransferTriggerConfig {
	return TransferTriggerConfig{
		Hour:          cfg.ScheduleHour,
		CheckInterval: cfg.ScheduleCheckInterval,
	}
}

// Validate checks the trigger configuration
func (c TransferTriggerConfig) Validate() error {
	if c.Hour < 0 || c.Hour > 23 {
		return fmt.Errorf("%w: hour must be between 0 and 23", ErrInvalidConfig)
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("%w: check interval must be positive", ErrInvalidConfig)
	}
	return nil
}

// TransferTrigger fires the scheduled transfer dispatch at most once per
// calendar day. A failed dispatch is retried on the next tick of the same hour.
type TransferTrigger struct {
	config   TransferTriggerConfig
	dispatch DispatchFunc
	logger   *zap.Logger
	now      func() time.Time

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.Mutex
	isRunning   bool
	lastRunDate string
}

// NewTransferTrigger creates a new transfer trigger
func NewTransferTrigger(cfg TransferTriggerConfig, dispatch DispatchFunc, logger *zap.Logger) (*TransferTrigger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dispatch == nil {
		return nil, ErrNoDispatcher
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransferTrigger{
		config:   cfg,
		dispatch: dispatch,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Start starts the trigger loop
func (t *TransferTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Transfer trigger started",
		zap.Int("hour", t.config.Hour),
		zap.Duration("check_interval", t.config.CheckInterval),
	)
	return nil
}

// Stop stops the trigger and waits for an in-flight dispatch
func (t *TransferTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Transfer trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *TransferTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.checkAndTrigger(ctx)
		}
	}
}

// checkAndTrigger runs the dispatch if the hour has come and today has not run yet
func (t *TransferTrigger) checkAndTrigger(ctx context.Context) {
	now := t.now().In(t.config.Location)
	currentDate := now.Format("2006-01-02")

	t.mu.Lock()
	if t.lastRunDate == currentDate {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	if now.Hour() != t.config.Hour {
		return
	}

	ran, err := t.dispatch(ctx)
	if err != nil {
		t.logger.Error("Scheduled transfer dispatch failed", zap.Error(err))
		return
	}

	t.mu.Lock()
	t.lastRunDate = currentDate
	t.mu.Unlock()

	t.logger.Info("Scheduled transfer dispatch checked",
		zap.String("date", currentDate),
		zap.Bool("dispatched", ran),
	)
}
