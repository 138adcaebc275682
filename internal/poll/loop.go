// Package poll runs a refresh task on a fixed interval for one subject at a
// time, such as a connected player address. Rebinding or stopping the loop
// tears the previous run down completely before returning.
package poll

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Loop calls task immediately after Bind and then once per interval until
// the subject changes, Stop is called, or the parent context ends.
type Loop[S comparable] struct {
	name     string
	interval time.Duration
	task     func(ctx context.Context, subject S)
	log      *zap.Logger

	mu      sync.Mutex
	subject S
	cancel  context.CancelFunc
	done    chan struct{}
}

func New[S comparable](name string, interval time.Duration, task func(context.Context, S), log *zap.Logger) *Loop[S] {
	return &Loop[S]{name: name, interval: interval, task: task, log: log}
}

// Bind starts polling for subject. Binding the subject that is already
// running is a no-op; any other subject replaces it.
func (l *Loop[S]) Bind(ctx context.Context, subject S) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done != nil && l.subject == subject {
		select {
		case <-l.done:
		default:
			return
		}
	}
	l.stopLocked()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.subject, l.cancel, l.done = subject, cancel, done

	go l.run(runCtx, subject, done)
}

// Stop ends the current run and waits for it to exit.
func (l *Loop[S]) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
}

// Subject returns the bound subject and whether a run is active.
func (l *Loop[S]) Subject() (S, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done == nil {
		var zero S
		return zero, false
	}
	select {
	case <-l.done:
		var zero S
		return zero, false
	default:
		return l.subject, true
	}
}

func (l *Loop[S]) stopLocked() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
	var zero S
	l.subject, l.cancel, l.done = zero, nil, nil
}

func (l *Loop[S]) run(ctx context.Context, subject S, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.log.Info("poll started", zap.String("loop", l.name), zap.Any("subject", subject), zap.Duration("interval", l.interval))
	l.task(ctx, subject)
	for {
		select {
		case <-ctx.Done():
			l.log.Info("poll stopped", zap.String("loop", l.name), zap.Any("subject", subject))
			return
		case <-ticker.C:
			l.task(ctx, subject)
		}
	}
}
