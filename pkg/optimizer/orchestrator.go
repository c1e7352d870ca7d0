package optimizer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	sdkerrors "github.com/giannisaf2/crexdata-public/pkg/errors"
)

// StopFunc reports whether the caller asked to stop.
type StopFunc func() bool

const (
	// DefaultStopInterval is how often the stop function is polled.
	DefaultStopInterval = time.Second
	// DefaultPollingTimeout bounds the wait for the optimization result.
	DefaultPollingTimeout = 5 * time.Minute
)

// Orchestrator runs complete optimizer round-trips on a worker goroutine
// while the caller keeps control over stopping them.
type Orchestrator struct {
	client         *Client
	dumper         *Dumper
	stopInterval   time.Duration
	pollingTimeout time.Duration
	logger         *zap.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithDumper writes every exchanged document through d.
func WithDumper(d *Dumper) OrchestratorOption {
	return func(o *Orchestrator) { o.dumper = d }
}

// WithStopInterval sets how often the stop function is polled.
func WithStopInterval(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.stopInterval = d
		}
	}
}

// WithPollingTimeout bounds the wait for the result.
func WithPollingTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.pollingTimeout = d
		}
	}
}

// NewOrchestrator creates an orchestrator driving client.
func NewOrchestrator(client *Client, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		client:         client,
		stopInterval:   DefaultStopInterval,
		pollingTimeout: DefaultPollingTimeout,
		logger:         client.logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Optimize connects, submits docs and waits for the placement. stop is
// polled every stop interval; once it reports true the round-trip is
// cancelled and a CancelledError returned. The worker has always finished
// when Optimize returns.
func (o *Orchestrator) Optimize(ctx context.Context, docs *Documents, stop StopFunc) (*Response, error) {
	ctx, span := o.client.tracer.Start(ctx, "optimizer.Optimize")
	defer span.End()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		resp *Response
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := o.roundTrip(ctx, docs)
		done <- outcome{resp: resp, err: err}
	}()

	ticker := time.NewTicker(o.stopInterval)
	defer ticker.Stop()

	for {
		select {
		case out := <-done:
			if out.err != nil {
				span.RecordError(out.err)
				span.SetStatus(codes.Error, out.err.Error())
				return nil, out.err
			}
			span.SetAttributes(attribute.String("optimizer.request_id", out.resp.OptimizationRequestID))
			span.SetStatus(codes.Ok, "placement received")
			return out.resp, nil
		case <-ticker.C:
			if stop == nil || !stop() {
				continue
			}
			o.logger.Warn("Stop requested, cancelling optimizer request")
			cancel()
			<-done
			err := sdkerrors.NewCancelledError("STOPPED", "optimization stopped by caller", context.Canceled)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}
}

func (o *Orchestrator) roundTrip(ctx context.Context, docs *Documents) (*Response, error) {
	if o.dumper != nil {
		encoded, err := docs.Encode()
		if err != nil {
			return nil, sdkerrors.NewTransportError("ENCODE_FAILED", "failed to serialize optimizer documents", err)
		}
		if err := o.dumper.DumpDocuments(ctx, encoded); err != nil {
			o.logger.Warn("Failed to dump optimizer documents", zap.Error(err))
		}
	}

	if err := o.client.Connect(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err := o.client.Close(); err != nil {
			o.logger.Warn("Failed to close optimizer session", zap.Error(err))
		}
	}()

	if _, err := o.client.Submit(ctx, docs); err != nil {
		return nil, err
	}
	resp, err := o.client.WaitForOptimizationResult(ctx, o.pollingTimeout)
	if err != nil {
		return nil, err
	}

	if o.dumper != nil {
		if err := o.dumper.DumpResponse(ctx, resp); err != nil {
			o.logger.Warn("Failed to dump optimizer response", zap.Error(err))
		}
		return o.dumper.Override(ctx, resp)
	}
	return resp, nil
}
