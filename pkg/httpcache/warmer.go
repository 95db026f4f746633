package httpcache

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mlg-clan/platform-core/pkg/observability"
)

// WarmupRequest describes a synthetic request used to populate the cache
// before real traffic asks for it
type WarmupRequest struct {
	Path      string     `json:"path"`
	Query     url.Values `json:"query,omitempty"`
	Principal string     `json:"principal,omitempty"`
	Priority  int        `json:"priority"`
}

// WarmerConfig holds the warming queue configuration
type WarmerConfig struct {
	// QueueSize bounds the pending warmup queue
	QueueSize int `mapstructure:"queue_size" json:"queue_size"`

	// Concurrency bounds parallel warmup executions
	Concurrency int `mapstructure:"concurrency" json:"concurrency"`

	// DrainInterval is how often the queue is drained
	DrainInterval time.Duration `mapstructure:"drain_interval" json:"drain_interval"`

	// PrincipalHeader names the header the principal is injected into
	PrincipalHeader string `mapstructure:"principal_header" json:"principal_header"`

	// RefreshInterval re-warms the startup route list on this interval;
	// zero disables scheduled refresh
	RefreshInterval time.Duration `mapstructure:"refresh_interval" json:"refresh_interval"`
}

// DefaultWarmerConfig returns the default warming configuration
func DefaultWarmerConfig() WarmerConfig {
	return WarmerConfig{
		QueueSize:       1000,
		Concurrency:     5,
		DrainInterval:   time.Second,
		PrincipalHeader: "X-User-ID",
	}
}

// Warmer drains a bounded priority queue of synthetic requests against the
// embedder's handler, which populates the response cache as a side effect
type Warmer struct {
	handler http.Handler
	cfg     WarmerConfig
	queue   chan WarmupRequest

	dropped atomic.Int64
	warmed  atomic.Int64

	logger observability.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

// NewWarmer creates a warmer executing requests against handler
func NewWarmer(handler http.Handler, cfg WarmerConfig, logger observability.Logger) *Warmer {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = time.Second
	}
	if cfg.PrincipalHeader == "" {
		cfg.PrincipalHeader = "X-User-ID"
	}

	return &Warmer{
		handler: handler,
		cfg:     cfg,
		queue:   make(chan WarmupRequest, cfg.QueueSize),
		logger:  logger,
		stop:    make(chan struct{}),
	}
}

// Enqueue adds a warmup request without blocking. It reports false when the
// queue is full and the request was dropped.
func (w *Warmer) Enqueue(req WarmupRequest) bool {
	select {
	case w.queue <- req:
		return true
	default:
		w.dropped.Add(1)
		return false
	}
}

// Start launches the background drain loop
func (w *Warmer) Start() {
	w.startOnce.Do(func() {
		w.wg.Add(1)
		go w.drainLoop()
	})
}

func (w *Warmer) drainLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.drain()
		}
	}
}

// drain empties the queue and executes pending requests, highest priority
// first, at bounded concurrency
func (w *Warmer) drain() {
	var pending []WarmupRequest
	for {
		select {
		case req := <-w.queue:
			pending = append(pending, req)
		default:
			goto collected
		}
	}
collected:
	if len(pending) == 0 {
		return
	}

	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Priority > pending[j].Priority
	})

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(w.cfg.Concurrency)
	for _, req := range pending {
		req := req
		g.Go(func() error {
			w.execute(ctx, req)
			return nil
		})
	}
	_ = g.Wait()
}

// execute performs the equivalent of an in-process GET
func (w *Warmer) execute(ctx context.Context, req WarmupRequest) {
	target := req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		w.logger.Debug("warmup request rejected", map[string]interface{}{
			"path":  req.Path,
			"error": err.Error(),
		})
		return
	}
	if req.Principal != "" {
		httpReq.Header.Set(w.cfg.PrincipalHeader, req.Principal)
	}

	w.handler.ServeHTTP(&discardResponseWriter{header: make(http.Header)}, httpReq)
	w.warmed.Add(1)
}

// Stats reports warming activity
func (w *Warmer) Stats() (warmed, dropped int64) {
	return w.warmed.Load(), w.dropped.Load()
}

// Stop halts the drain loop and waits for in-flight work
func (w *Warmer) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	w.wg.Wait()
}

// discardResponseWriter satisfies http.ResponseWriter for synthetic requests
// whose body nobody reads
type discardResponseWriter struct {
	header http.Header
	status int
}

func (d *discardResponseWriter) Header() http.Header { return d.header }

func (d *discardResponseWriter) Write(b []byte) (int, error) { return len(b), nil }

func (d *discardResponseWriter) WriteHeader(status int) { d.status = status }
