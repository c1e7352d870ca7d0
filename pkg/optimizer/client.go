package optimizer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	sdkerrors "github.com/giannisaf2/crexdata-public/pkg/errors"
)

// State is the position of a Client in its request lifecycle.
type State int

const (
	StateIdle State = iota
	StateRequestSubmitted
	StateAwaitingResponse
	StateResponseReceived
	StateTimedOut
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequestSubmitted:
		return "request_submitted"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateResponseReceived:
		return "response_received"
	case StateTimedOut:
		return "timed_out"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DefaultConnectTimeout bounds the session handshake.
const DefaultConnectTimeout = 30 * time.Second

// Client submits optimization requests and waits for their correlated result.
//
// Example usage:
//
//	client := optimizer.NewClient(optimizer.NATSDialer(nats.DefaultConnectionConfig(url), logger))
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close()
//	if _, err := client.Submit(ctx, docs); err != nil {
//	    return err
//	}
//	resp, err := client.WaitForOptimizationResult(ctx, 5*time.Minute)
type Client struct {
	dial           Dialer
	topics         Topics
	connectTimeout time.Duration
	capacity       int
	logger         *zap.Logger
	metrics        *Metrics
	tracer         trace.Tracer

	mu          sync.Mutex
	state       State
	transport   Transport
	subs        []Subscription
	session     *Session
	submittedAt time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTopics overrides the session subjects.
func WithTopics(topics Topics) ClientOption {
	return func(c *Client) { c.topics = topics }
}

// WithConnectTimeout bounds the session handshake.
func WithConnectTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.connectTimeout = d
		}
	}
}

// WithQueueCapacity sets the per-topic queue capacity.
func WithQueueCapacity(n int) ClientOption {
	return func(c *Client) { c.capacity = n }
}

// WithMetrics records client activity in m.
func WithMetrics(m *Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates an idle client opening its sessions through dial.
func NewClient(dial Dialer, opts ...ClientOption) *Client {
	c := &Client{
		dial:           dial,
		topics:         DefaultTopics(""),
		connectTimeout: DefaultConnectTimeout,
		capacity:       DefaultQueueCapacity,
		logger:         zap.NewNop(),
		tracer:         otel.Tracer("crexplace/optimizer"),
		state:          StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetLogger sets a custom zap logger for the client
func (c *Client) SetLogger(logger *zap.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the open session, or nil before Connect.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev != s {
		c.metrics.recordState(prev, s)
		c.logger.Debug("Optimizer client state changed",
			zap.Stringer("from", prev),
			zap.Stringer("to", s))
	}
}

// Connect opens the session and subscribes to the session topics. An open
// session is reused.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	open := c.transport != nil
	c.mu.Unlock()
	if open {
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	transport, err := c.dial(dialCtx)
	if err != nil {
		if ctx.Err() != nil {
			c.setState(StateCancelled)
			return sdkerrors.NewCancelledError("CONNECT_CANCELLED", "stopped while connecting to optimizer", err)
		}
		c.setState(StateFailed)
		code := "CONNECT_FAILED"
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
			code = "CONNECT_TIMEOUT"
		}
		return sdkerrors.NewTransportError(code, "failed to open optimizer session", err)
	}

	session := NewSession(c.topics, c.capacity, c.logger, c.metrics)
	var subs []Subscription
	for _, topic := range c.topics.Subscribed() {
		sub, err := transport.Subscribe(topic, session.Handle)
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			_ = transport.Close()
			c.setState(StateFailed)
			return sdkerrors.NewTransportError("SUBSCRIBE_FAILED", "failed to subscribe to "+topic, err)
		}
		subs = append(subs, sub)
	}

	c.mu.Lock()
	c.transport = transport
	c.subs = subs
	c.session = session
	c.mu.Unlock()
	c.setState(StateIdle)

	c.logger.Info("Connected to optimizer", zap.Strings("topics", c.topics.Subscribed()))
	return nil
}

// Submit sends the documents and records the request id of the
// acknowledgement. Results are matched against that id from now on.
func (c *Client) Submit(ctx context.Context, docs *Documents) (string, error) {
	ctx, span := c.tracer.Start(ctx, "optimizer.Submit")
	defer span.End()

	c.mu.Lock()
	transport, session := c.transport, c.session
	c.mu.Unlock()
	if transport == nil {
		err := sdkerrors.NewError(sdkerrors.KindTransport, "NOT_CONNECTED", "optimizer session is not open", sdkerrors.ErrNotConnected)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	encoded, err := docs.Encode()
	if err != nil {
		c.setState(StateFailed)
		span.SetStatus(codes.Error, err.Error())
		return "", sdkerrors.NewTransportError("ENCODE_FAILED", "failed to serialize optimizer documents", err)
	}

	steps := []struct {
		subject string
		data    []byte
	}{
		{c.topics.Network, encoded.Network},
		{c.topics.Dictionary, encoded.Dictionary},
		{c.topics.Request, encoded.Request},
	}
	var ack []byte
	for _, step := range steps {
		if ack, err = transport.Request(ctx, step.subject, step.data); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if ctx.Err() != nil {
				c.setState(StateCancelled)
				return "", sdkerrors.NewCancelledError("SUBMIT_CANCELLED", "stopped while submitting to "+step.subject, err)
			}
			c.setState(StateFailed)
			return "", sdkerrors.NewTransportError("SUBMIT_FAILED", "optimizer rejected "+step.subject, err)
		}
	}

	id := gjson.GetBytes(ack, "id").String()
	if id == "" {
		c.setState(StateFailed)
		err := sdkerrors.NewTransportError("MISSING_REQUEST_ID", "submit acknowledgement carries no request id", nil)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	c.setState(StateRequestSubmitted)

	session.SetRequestID(id)
	c.mu.Lock()
	c.submittedAt = time.Now()
	c.mu.Unlock()
	c.setState(StateAwaitingResponse)

	span.SetAttributes(
		attribute.String("optimizer.request_id", id),
		attribute.String("optimizer.algorithm", string(docs.Request.Algorithm)),
		attribute.Int("optimizer.request_bytes", len(encoded.Request)))
	span.SetStatus(codes.Ok, "request submitted")

	c.logger.Info("Submitted optimization request",
		zap.String("request_id", id),
		zap.String("network", docs.Network.Network),
		zap.String("algorithm", string(docs.Request.Algorithm)))
	return id, nil
}

// WaitForOptimizationResult blocks until the result of the submitted request
// arrives. It returns a TimeoutError when timeout elapses first and a
// CancelledError when ctx ends; no cancel is sent to the optimizer.
func (c *Client) WaitForOptimizationResult(ctx context.Context, timeout time.Duration) (*Response, error) {
	c.mu.Lock()
	session, state, submittedAt := c.session, c.state, c.submittedAt
	c.mu.Unlock()

	if session == nil || (state != StateAwaitingResponse && state != StateResponseReceived) {
		return nil, sdkerrors.NewError(sdkerrors.KindTransport, "NO_REQUEST", "no optimization request awaiting a response", nil)
	}

	c.logger.Info("Waiting for optimization result",
		zap.String("request_id", session.RequestID()),
		zap.Duration("timeout", timeout))

	resp, err := session.Wait(ctx, timeout)
	switch {
	case err == nil:
		c.setState(StateResponseReceived)
		c.metrics.recordOutcome("received", time.Since(submittedAt))
	case sdkerrors.IsTimeout(err):
		c.setState(StateTimedOut)
		c.metrics.recordOutcome("timed_out", 0)
	case sdkerrors.IsCancelled(err):
		c.setState(StateCancelled)
		c.metrics.recordOutcome("cancelled", 0)
	}
	return resp, err
}

// Close unsubscribes and closes the session.
func (c *Client) Close() error {
	c.mu.Lock()
	transport, subs := c.transport, c.subs
	c.transport, c.subs = nil, nil
	c.mu.Unlock()

	if transport == nil {
		return nil
	}
	for _, s := range subs {
		if err := s.Unsubscribe(); err != nil {
			c.logger.Warn("Failed to unsubscribe", zap.Error(err))
		}
	}
	if err := transport.Close(); err != nil {
		return sdkerrors.NewTransportError("CLOSE_FAILED", "failed to close optimizer session", err)
	}
	return nil
}
