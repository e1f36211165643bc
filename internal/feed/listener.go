package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"catcher/internal/platform/metrics"
)

const (
	channelName = "items_changed"

	minReconnectInterval = time.Second
	maxReconnectInterval = 30 * time.Second
	pingInterval         = 90 * time.Second
)

// Listener consumes NOTIFY events from the primary store and pushes them into
// the hub. On any reconnect it triggers a hub-wide resync, because NOTIFY
// delivers nothing for the window the connection was down.
type Listener struct {
	dsn     string
	hub     *Hub
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewListener constructs a feed listener. metrics may be nil in tests.
func NewListener(dsn string, hub *Hub, logger *slog.Logger, m *metrics.Metrics) *Listener {
	return &Listener{dsn: dsn, hub: hub, logger: logger, metrics: m}
}

// Run blocks until ctx is cancelled, dispatching events as they arrive.
func (l *Listener) Run(ctx context.Context) error {
	pl := pq.NewListener(l.dsn, minReconnectInterval, maxReconnectInterval,
		func(event pq.ListenerEventType, err error) {
			if err != nil {
				l.logger.WarnContext(ctx, "feed listener connection event",
					"event", int(event),
					"error", err,
				)
			}
		})
	defer pl.Close()

	if err := pl.Listen(channelName); err != nil {
		return err
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case notification := <-pl.Notify:
			// A nil notification means the underlying connection was
			// re-established; events may have been lost in between.
			if notification == nil {
				l.logger.InfoContext(ctx, "feed listener reconnected, resyncing sessions")
				l.hub.ResyncAll()
				continue
			}
			l.handle(ctx, []byte(notification.Extra))

		case <-ping.C:
			go func() {
				if err := pl.Ping(); err != nil {
					l.logger.WarnContext(ctx, "feed listener ping failed", "error", err)
				}
			}()
		}
	}
}

func (l *Listener) handle(ctx context.Context, payload []byte) {
	ev, err := DecodeEvent(payload)
	if err != nil {
		// A malformed payload is a schema drift bug, not a transient fault.
		l.logger.ErrorContext(ctx, "dropping undecodable feed event", "error", err)
		return
	}
	if l.metrics != nil {
		l.metrics.FeedEventsApplied.WithLabelValues(string(ev.Kind)).Inc()
	}
	l.hub.Dispatch(ev)
}
