// Package notify turns PostgreSQL NOTIFY events on the task queue channel
// into wake-up signals for the dispatcher.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

const (
	DefaultChannel = "task_queue"

	minReconnect = 1 * time.Second
	maxReconnect = 30 * time.Second
	pingInterval = 90 * time.Second
)

// Listener holds a dedicated LISTEN connection. Wake signals are coalesced:
// any number of notifications between two reads produce one signal.
type Listener struct {
	listener *pq.Listener
	channel  string
	wake     chan struct{}
	logger   *zerolog.Logger
}

// Listen opens a listener for channel using a lib/pq DSN or URL
func Listen(dsn, channel string, logger *zerolog.Logger) (*Listener, error) {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	l := &Listener{
		channel: channel,
		wake:    make(chan struct{}, 1),
		logger:  logger,
	}
	l.listener = pq.NewListener(dsn, minReconnect, maxReconnect, l.onEvent)
	if err := l.listener.Listen(channel); err != nil {
		l.listener.Close()
		return nil, fmt.Errorf("listen on %s: %w", channel, err)
	}

	logger.Info().Str("component", "notify").Str("channel", channel).Msg("Listening for task notifications")
	return l, nil
}

func (l *Listener) onEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
		l.logger.Warn().Err(err).Str("component", "notify").Msg("Listener connection lost")
	case pq.ListenerEventReconnected:
		l.logger.Info().Str("component", "notify").Msg("Listener reconnected")
	}
}

// Wake delivers one signal per burst of notifications
func (l *Listener) Wake() <-chan struct{} {
	return l.wake
}

// Run forwards notifications until ctx is done
func (l *Listener) Run(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-l.listener.Notify:
			// nil after a reconnect: notifications may have been missed.
			if n != nil {
				l.logger.Debug().Str("component", "notify").Str("payload", n.Extra).Msg("Task notification")
			}
			signal(l.wake)
		case <-ticker.C:
			if err := l.listener.Ping(); err != nil {
				l.logger.Warn().Err(err).Str("component", "notify").Msg("Listener ping failed")
			}
		}
	}
}

func (l *Listener) Close() error {
	return l.listener.Close()
}

// signal performs a non-blocking send on a buffered channel
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
