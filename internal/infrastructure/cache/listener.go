// Package cache keeps read-mostly promotion data in memory and invalidates it
// through PostgreSQL LISTEN/NOTIFY.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"offerengine/pkg/logger"
)

// Notification channels.
const (
	ChannelOffersChanged       = "offers_changed"
	ChannelFeatureFlagsChanged = "feature_flags_changed"
)

// InvalidationListener is called for every notification on a subscribed channel.
type InvalidationListener func(ctx context.Context, channel, payload string)

// Listener holds one pooled connection in LISTEN mode and fans notifications
// out to registered listeners.
type Listener struct {
	pool *pgxpool.Pool

	listenersMu sync.RWMutex
	listeners   map[string][]InvalidationListener

	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool

	// waitTimeout bounds each WaitForNotification so shutdown is noticed.
	waitTimeout time.Duration
}

// NewListener creates a listener. Subscribe before Start.
func NewListener(pool *pgxpool.Pool) *Listener {
	return &Listener{
		pool:        pool,
		listeners:   make(map[string][]InvalidationListener),
		waitTimeout: 30 * time.Second,
	}
}

// Subscribe registers fn for channel.
func (l *Listener) Subscribe(channel string, fn InvalidationListener) {
	l.listenersMu.Lock()
	l.listeners[channel] = append(l.listeners[channel], fn)
	l.listenersMu.Unlock()
}

func (l *Listener) channels() []string {
	l.listenersMu.RLock()
	defer l.listenersMu.RUnlock()
	names := make([]string, 0, len(l.listeners))
	for ch := range l.listeners {
		names = append(names, ch)
	}
	return names
}

// Start begins listening in the background.
func (l *Listener) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()
	if l.started {
		return nil
	}
	if len(l.channels()) == 0 {
		return fmt.Errorf("listener has no subscriptions")
	}
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.started = true

	l.wg.Add(1)
	go l.listenLoop()
	return nil
}

// Stop cancels listening and waits for the loop to exit.
func (l *Listener) Stop() {
	l.lifecycleMu.Lock()
	if !l.started {
		l.lifecycleMu.Unlock()
		return
	}
	cancel := l.cancel
	l.started = false
	l.cancel = nil
	l.lifecycleMu.Unlock()

	cancel()
	l.wg.Wait()
	logger.Info(context.Background(), "cache listener stopped")
}

func (l *Listener) listenLoop() {
	defer l.wg.Done()

	channels := l.channels()
	stmt := make([]string, 0, len(channels))
	for _, ch := range channels {
		stmt = append(stmt, "LISTEN "+pgx.Identifier{ch}.Sanitize()+";")
	}

	for {
		select {
		case <-l.ctx.Done():
			return
		default:
		}

		conn, err := l.pool.Acquire(l.ctx)
		if err != nil {
			logger.Error(l.ctx, "failed to acquire connection for LISTEN", "error", err)
			l.sleep(time.Second)
			continue
		}

		if _, err := conn.Exec(l.ctx, strings.Join(stmt, " ")); err != nil {
			logger.Error(l.ctx, "failed to LISTEN", "error", err)
			conn.Release()
			l.sleep(time.Second)
			continue
		}

		logger.Info(l.ctx, "listening for cache invalidation", "channels", channels)

		// Notifications sent while reconnecting are lost; reload everything.
		for _, ch := range channels {
			l.dispatch(ch, "")
		}

		l.waitForNotifications(conn)
		conn.Release()
	}
}

func (l *Listener) sleep(d time.Duration) {
	select {
	case <-l.ctx.Done():
	case <-time.After(d):
	}
}

func (l *Listener) waitForNotifications(conn *pgxpool.Conn) {
	for {
		ctx, cancel := context.WithTimeout(l.ctx, l.waitTimeout)
		n, err := conn.Conn().WaitForNotification(ctx)
		cancel()

		if err != nil {
			if l.ctx.Err() != nil {
				return
			}
			if conn.Conn().IsClosed() {
				logger.Warn(l.ctx, "LISTEN connection lost", "error", err)
				return
			}
			// Timeout is expected, keep listening.
			continue
		}

		logger.Debug(l.ctx, "received notification", "channel", n.Channel, "payload", n.Payload)
		l.dispatch(n.Channel, n.Payload)
	}
}

// dispatch calls every listener of channel. A panicking listener is logged and skipped.
func (l *Listener) dispatch(channel, payload string) {
	ctx := l.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	l.listenersMu.RLock()
	listeners := l.listeners[channel]
	l.listenersMu.RUnlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error(ctx, "listener panic recovered", "channel", channel, "panic", r)
				}
			}()
			fn(ctx, channel, payload)
		}()
	}
}
