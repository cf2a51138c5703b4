package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestTrigger(t *testing.T, dispatch DispatchFunc) (*TransferTrigger, *clock, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	trigger, err := NewTransferTrigger(TransferTriggerConfig{
		Hour:          2,
		CheckInterval: time.Minute,
		Location:      time.UTC,
	}, dispatch, zap.New(core))
	require.NoError(t, err)

	c := &clock{t: time.Date(2026, 3, 6, 1, 59, 0, 0, time.UTC)}
	trigger.now = c.now
	return trigger, c, logs
}

func TestNewTransferTrigger(t *testing.T) {
	noop := func(context.Context) (bool, error) { return false, nil }

	_, err := NewTransferTrigger(TransferTriggerConfig{Hour: 24, CheckInterval: time.Minute}, noop, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewTransferTrigger(TransferTriggerConfig{Hour: 2}, noop, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewTransferTrigger(DefaultTransferTriggerConfig(), nil, nil)
	assert.ErrorIs(t, err, ErrNoDispatcher)

	trigger, err := NewTransferTrigger(DefaultTransferTriggerConfig(), noop, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Local, trigger.config.Location)
}

func TestTransferTrigger_checkAndTrigger(t *testing.T) {
	t.Run("fires once per day at the configured hour", func(t *testing.T) {
		var calls atomic.Int32
		trigger, c, logs := newTestTrigger(t, func(context.Context) (bool, error) {
			calls.Add(1)
			return true, nil
		})

		trigger.checkAndTrigger(context.Background())
		assert.Equal(t, int32(0), calls.Load(), "before the hour")

		c.t = c.t.Add(time.Minute)
		trigger.checkAndTrigger(context.Background())
		c.t = c.t.Add(30 * time.Minute)
		trigger.checkAndTrigger(context.Background())
		assert.Equal(t, int32(1), calls.Load())
		assert.Equal(t, 1, logs.FilterMessage("Scheduled transfer dispatch checked").Len())

		c.t = c.t.Add(24 * time.Hour)
		trigger.checkAndTrigger(context.Background())
		assert.Equal(t, int32(2), calls.Load(), "next day")
	})

	t.Run("retries within the hour after a failure", func(t *testing.T) {
		var calls atomic.Int32
		trigger, c, logs := newTestTrigger(t, func(context.Context) (bool, error) {
			if calls.Add(1) == 1 {
				return false, errors.New("store unavailable")
			}
			return false, nil
		})
		c.t = c.t.Add(time.Minute)

		trigger.checkAndTrigger(context.Background())
		assert.Equal(t, 1, logs.FilterMessage("Scheduled transfer dispatch failed").Len())

		c.t = c.t.Add(time.Minute)
		trigger.checkAndTrigger(context.Background())
		trigger.checkAndTrigger(context.Background())
		assert.Equal(t, int32(2), calls.Load())
	})
}

func TestTransferTrigger_StartStop(t *testing.T) {
	trigger, _, logs := newTestTrigger(t, func(context.Context) (bool, error) { return false, nil })

	require.NoError(t, trigger.Start(context.Background()))
	require.NoError(t, trigger.Start(context.Background()), "second start is a no-op")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, trigger.Stop(ctx))
	require.NoError(t, trigger.Stop(ctx))

	assert.Equal(t, 1, logs.FilterMessage("Transfer trigger started").Len())
	assert.Equal(t, 1, logs.FilterMessage("Transfer trigger stopped").Len())
}
