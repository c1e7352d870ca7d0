package optimizer

import (
	"context"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	sdkerrors "github.com/giannisaf2/crexdata-public/pkg/errors"
)

// DefaultQueueCapacity is the number of messages kept per topic.
const DefaultQueueCapacity = 1000

// maxHeldResults bounds the results kept for request ids not yet assigned.
const maxHeldResults = 16

// Topics names the subjects of an optimizer session.
type Topics struct {
	Broadcast  string
	Echo       string
	Info       string
	Errors     string
	Results    string
	Network    string
	Dictionary string
	Request    string
}

// DefaultTopics returns the session subjects under prefix.
func DefaultTopics(prefix string) Topics {
	if prefix == "" {
		prefix = "optimizer"
	}
	return Topics{
		Broadcast:  prefix + ".broadcast",
		Echo:       prefix + ".echo",
		Info:       prefix + ".info",
		Errors:     prefix + ".errors",
		Results:    prefix + ".optimization_results",
		Network:    prefix + ".network",
		Dictionary: prefix + ".dictionary",
		Request:    prefix + ".request",
	}
}

// Subscribed returns the topics a session listens on, in subscription order.
func (t Topics) Subscribed() []string {
	return []string{t.Broadcast, t.Echo, t.Info, t.Errors, t.Results}
}

// queue is a bounded FIFO that evicts its oldest entry instead of blocking.
type queue struct {
	ch chan []byte
}

func newQueue(capacity int) *queue {
	return &queue{ch: make(chan []byte, capacity)}
}

// offer enqueues msg and reports whether an older message was evicted.
func (q *queue) offer(msg []byte) (dropped bool) {
	for {
		select {
		case q.ch <- msg:
			return dropped
		default:
		}
		select {
		case <-q.ch:
			dropped = true
		default:
		}
	}
}

// Session collects the messages of one optimizer connection and records the
// result correlated with the current request id.
type Session struct {
	topics  Topics
	logger  *zap.Logger
	metrics *Metrics
	queues  map[string]*queue

	mu        sync.Mutex
	requestID string
	result    *Response
	finished  bool
	ready     chan struct{}

	// Results that arrived before their request id was acknowledged.
	held      map[string]*Response
	heldOrder []string
}

// NewSession creates a session with one queue of capacity messages per
// subscribed topic.
func NewSession(topics Topics, capacity int, logger *zap.Logger, metrics *Metrics) *Session {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		topics:  topics,
		logger:  logger,
		metrics: metrics,
		queues:  make(map[string]*queue),
		ready:   make(chan struct{}),
		held:    make(map[string]*Response),
	}
	for _, t := range topics.Subscribed() {
		s.queues[t] = newQueue(capacity)
	}
	return s
}

// SetRequestID switches the session to a new request and forgets any
// previous result. A result for id received before the switch is adopted.
func (s *Session) SetRequestID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestID = id
	s.result = nil
	s.finished = false
	s.ready = make(chan struct{})
	s.logger.Info("Set optimization request id", zap.String("request_id", id))

	if resp, ok := s.held[id]; ok {
		s.release(id)
		s.storeLocked(resp)
		s.logger.Info("Adopted optimization result received before acknowledgement", zap.String("request_id", id))
	}
}

// RequestID returns the id results are matched against.
func (s *Session) RequestID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestID
}

// Handle processes one inbound message. Results for other requests and
// messages that cannot be decoded are logged and dropped.
func (s *Session) Handle(topic string, data []byte) {
	q, ok := s.queues[topic]
	if !ok {
		s.logger.Debug("Ignoring message on unknown topic", zap.String("topic", topic))
		return
	}
	s.metrics.recordMessage(topic)

	switch topic {
	case s.topics.Results:
		if !s.handleResult(topic, data) {
			return
		}
	case s.topics.Info:
		s.handleInfo(topic, data)
	default:
		s.logger.Debug("Received optimizer message", zap.String("topic", topic), zap.ByteString("message", data))
	}

	if q.offer(data) {
		s.metrics.recordDropped(topic)
		s.logger.Warn("Topic queue full, dropped oldest message", zap.String("topic", topic))
	}
}

func (s *Session) handleResult(topic string, data []byte) bool {
	if !gjson.ValidBytes(data) {
		s.metrics.recordMalformed(topic)
		s.logger.Warn("Dropping malformed optimization result", zap.Int("size", len(data)))
		return false
	}
	id := gjson.GetBytes(data, "optimizationRequestId").String()

	resp, err := DecodeResponse(data)
	if err != nil {
		s.metrics.recordMalformed(topic)
		s.logger.Warn("Dropping undecodable optimization result", zap.String("result_id", id), zap.Error(err))
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requestID == "" || id != s.requestID {
		s.logger.Warn("Optimization result ignored due to unmatched request id",
			zap.String("request_id", s.requestID),
			zap.String("result_id", id))
		if id != "" {
			s.hold(id, resp)
		}
		return false
	}

	s.storeLocked(resp)
	s.logger.Info("Optimization result stored", zap.String("request_id", id))
	return true
}

// storeLocked records resp as the current result. s.mu must be held.
func (s *Session) storeLocked(resp *Response) {
	s.result = resp
	select {
	case <-s.ready:
	default:
		close(s.ready)
	}
}

// hold keeps resp until SetRequestID(id), evicting the oldest held result
// past maxHeldResults.
func (s *Session) hold(id string, resp *Response) {
	if _, ok := s.held[id]; !ok {
		s.heldOrder = append(s.heldOrder, id)
	}
	s.held[id] = resp
	for len(s.heldOrder) > maxHeldResults {
		s.release(s.heldOrder[0])
	}
}

func (s *Session) release(id string) {
	delete(s.held, id)
	for i, h := range s.heldOrder {
		if h == id {
			s.heldOrder = append(s.heldOrder[:i], s.heldOrder[i+1:]...)
			break
		}
	}
}

func (s *Session) handleInfo(topic string, data []byte) {
	if !gjson.ValidBytes(data) {
		s.metrics.recordMalformed(topic)
		s.logger.Warn("Dropping malformed info message", zap.Int("size", len(data)))
		return
	}
	fields := gjson.GetManyBytes(data, "action", "id")
	s.logger.Info("Received optimizer info",
		zap.String("action", fields[0].String()),
		zap.String("id", fields[1].String()))

	if fields[0].String() != ActionOptimizationCompleted {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requestID != "" && fields[1].String() == s.requestID {
		s.finished = true
	}
}

// Finished reports whether the optimizer announced completion of the current request.
func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Result returns the recorded result, if any.
func (s *Session) Result() *Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Wait blocks until a result for the current request is recorded, timeout
// elapses or ctx is done.
func (s *Session) Wait(ctx context.Context, timeout time.Duration) (*Response, error) {
	s.mu.Lock()
	if s.result != nil {
		resp := s.result
		s.mu.Unlock()
		return resp, nil
	}
	ready := s.ready
	id := s.requestID
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ready:
		return s.Result(), nil
	case <-timer.C:
		return nil, sdkerrors.NewTimeoutError("RESULT_TIMEOUT", "no optimization result for request "+id+" within "+timeout.String())
	case <-ctx.Done():
		return nil, sdkerrors.NewCancelledError("WAIT_CANCELLED", "stopped waiting for request "+id, ctx.Err())
	}
}

// Poll returns the oldest queued message of topic, waiting up to timeout.
func (s *Session) Poll(ctx context.Context, topic string, timeout time.Duration) ([]byte, bool) {
	q, ok := s.queues[topic]
	if !ok {
		return nil, false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-q.ch:
		return msg, true
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// Pending returns the number of queued messages of topic.
func (s *Session) Pending(topic string) int {
	if q, ok := s.queues[topic]; ok {
		return len(q.ch)
	}
	return 0
}
