package shm

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// ReconnectConfig controls exponential backoff between reader sessions.
type ReconnectConfig struct {
	MaxRetries   int           // consecutive failures tolerated; 0 retries forever
	InitialDelay time.Duration // delay before the first retry
	MaxDelay     time.Duration // cap on the delay
}

// DefaultReconnectConfig waits for a writer indefinitely, backing off from
// 1s to 30s.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxRetries:   0,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// ReconnectState tracks retries across sessions. Safe for concurrent reads.
type ReconnectState struct {
	currentRetries atomic.Int64
	reconnects     atomic.Uint64
}

// Reset clears the consecutive failure count. Called when a session
// reaches PLAYING.
func (s *ReconnectState) Reset() {
	s.currentRetries.Store(0)
	slog.Debug("shm: reconnect state reset")
}

// CurrentRetries returns the consecutive failure count.
func (s *ReconnectState) CurrentRetries() int {
	return int(s.currentRetries.Load())
}

// Reconnects returns the total number of retries.
func (s *ReconnectState) Reconnects() uint64 {
	return s.reconnects.Load()
}

// SessionFunc runs one transport session. It returns nil when ctx ends and
// an error when the session breaks.
type SessionFunc func(ctx context.Context) error

// RunWithReconnect runs session until it returns nil, retrying failed
// sessions with exponential backoff.
//
// Backoff schedule with the defaults: 1s, 2s, 4s, 8s, 16s, 30s, 30s, ...
//
// Returns ctx.Err() on cancellation, or an error once MaxRetries
// consecutive failures have happened.
func RunWithReconnect(ctx context.Context, session SessionFunc, cfg ReconnectConfig, state *ReconnectState) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := session(ctx)
		if err == nil {
			return nil
		}

		retries := int(state.currentRetries.Add(1))
		state.reconnects.Add(1)

		if cfg.MaxRetries > 0 && retries > cfg.MaxRetries {
			return fmt.Errorf("shm: max retries exceeded (%d attempts): %w", cfg.MaxRetries, err)
		}

		delay := Backoff(retries, cfg)
		slog.Warn("shm: session ended, retrying",
			"error", err,
			"attempt", retries,
			"max_retries", cfg.MaxRetries,
			"delay", delay,
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			slog.Debug("shm: context cancelled during backoff")
			return ctx.Err()
		}
	}
}

// Backoff returns InitialDelay * 2^(attempt-1), capped at MaxDelay.
func Backoff(attempt int, cfg ReconnectConfig) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := cfg.InitialDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= cfg.MaxDelay || delay <= 0 {
			return cfg.MaxDelay
		}
	}
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}
