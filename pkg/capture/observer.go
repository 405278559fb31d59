package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/getmockd/apicap/pkg/logging"
	"github.com/getmockd/apicap/pkg/proxy"
)

var _ proxy.ExchangeHandler = (*Observer)(nil)

// ObserverOption configures an Observer.
type ObserverOption func(*Observer)

// WithLogger sets the logger for per-exchange lines.
func WithLogger(logger *slog.Logger) ObserverOption {
	return func(o *Observer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock sets the time source used for record timestamps.
func WithClock(now func() time.Time) ObserverOption {
	return func(o *Observer) {
		if now != nil {
			o.now = now
		}
	}
}

// Observer records target exchanges into a Store and persists after each one.
type Observer struct {
	store  *Store
	filter *TargetFilter
	logger *slog.Logger
	now    func() time.Time

	// mu makes extract, record, append and persist one step, so the file
	// on disk always matches a complete store.
	mu    sync.Mutex
	count int

	fatal     chan error
	fatalOnce sync.Once
}

// NewObserver creates an observer feeding store. A nil filter uses the
// default target domains.
func NewObserver(store *Store, filter *TargetFilter, opts ...ObserverOption) *Observer {
	if filter == nil {
		filter, _ = NewTargetFilter(nil, nil)
	}
	o := &Observer{
		store:  store,
		filter: filter,
		logger: logging.Nop(),
		now:    time.Now,
		fatal:  make(chan error, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HandleExchange implements proxy.ExchangeHandler.
// Non-target hosts, static assets and excluded paths are ignored silently.
func (o *Observer) HandleExchange(_ context.Context, ex *proxy.Exchange) {
	if ex == nil || ex.URL == nil {
		return
	}
	if !o.filter.Allow(ex.URL.Host, ex.URL.RequestURI()) {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.count++
	n := o.count

	var rec RequestRecord
	at := o.now()
	o.store.WithAuth(func(auth *AuthInfo) {
		rec = Extract(ex, auth, at)
	})

	category := Classify(rec.Path, rec.Method)
	o.store.Record(category, rec.Key(), rec.Summary())
	o.store.Append(rec)

	if err := o.persist(); err != nil {
		o.logger.Error("failed to save capture", "path", o.store.Path(), "error", err)
		o.fatalOnce.Do(func() { o.fatal <- err })
	}

	status := "?"
	if rec.ResponseStatus != nil {
		status = strconv.Itoa(*rec.ResponseStatus)
	}
	o.logger.Info(fmt.Sprintf("[%d] %s %s -> %s", n, rec.Method, rec.Path, status),
		"category", string(category))
}

// persist saves the store, retrying once.
func (o *Observer) persist() error {
	err := o.store.Persist()
	if err == nil {
		return nil
	}
	o.logger.Warn("failed to save capture, retrying", "path", o.store.Path(), "error", err)
	return o.store.Persist()
}

// Count returns how many exchanges have been recorded.
func (o *Observer) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.count
}

// Fatal delivers the first persistence failure that survived a retry.
// The capture session should end when it fires.
func (o *Observer) Fatal() <-chan error {
	return o.fatal
}

// Flush persists the store once more, typically at shutdown.
func (o *Observer) Flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.store.Persist()
}
