// Package observability wires logging, metrics, and tracing together behind
// one explicit initialization point. Components never reach for globals;
// the embedding process builds a Provider once and injects what it needs.
package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
)

// Provider bundles the configured observability components
type Provider struct {
	Logger    Logger
	Metrics   MetricsClient
	StartSpan StartSpanFunc

	shutdownFuncs []func() error
	shutdownMutex sync.Mutex
}

// NewProvider builds a Provider from configuration. Tracing failures fall
// back to no-op spans rather than failing startup.
func NewProvider(cfg Config) (*Provider, error) {
	p := &Provider{}

	p.Logger = NewLogger(cfg.Logging)

	switch cfg.Metrics.Type {
	case "prometheus":
		namespace := cfg.Metrics.Namespace
		if namespace == "" {
			namespace = "mlg"
		}
		p.Metrics = NewPrometheusMetricsClient(namespace, cfg.Metrics.Subsystem, nil)
	default:
		p.Metrics = NewMetricsClientWithOptions(MetricsOptions{
			Enabled: cfg.Metrics.Enabled,
			Labels:  map[string]string{},
		})
	}

	if cfg.Tracing.Enabled {
		shutdownFunc, err := InitTracing(cfg.Tracing)
		if err != nil {
			p.Logger.Error("Failed to initialize tracing", map[string]interface{}{"error": err.Error()})
			p.StartSpan = NoopStartSpan
		} else {
			p.StartSpan = func(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, Span) {
				returnCtx, returnSpan := StartSpan(ctx, name)
				if len(attrs) > 0 {
					returnSpan.SetAttribute("attributes", attrs)
				}
				return returnCtx, returnSpan
			}
			p.registerShutdown(func() error {
				shutdownFunc()
				return nil
			})
		}
	} else {
		p.StartSpan = NoopStartSpan
	}

	p.registerShutdown(p.Metrics.Close)

	return p, nil
}

// registerShutdown stores a cleanup function to be called during shutdown
func (p *Provider) registerShutdown(fn func() error) {
	p.shutdownMutex.Lock()
	defer p.shutdownMutex.Unlock()
	p.shutdownFuncs = append(p.shutdownFuncs, fn)
}

// Shutdown runs the registered cleanup functions in reverse order
func (p *Provider) Shutdown() error {
	p.shutdownMutex.Lock()
	defer p.shutdownMutex.Unlock()

	var firstErr error
	for i := len(p.shutdownFuncs) - 1; i >= 0; i-- {
		if err := p.shutdownFuncs[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.shutdownFuncs = nil
	return firstErr
}
