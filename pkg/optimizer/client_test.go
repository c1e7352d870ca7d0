package optimizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	sdkerrors "github.com/giannisaf2/crexdata-public/pkg/errors"
	"github.com/giannisaf2/crexdata-public/pkg/workflow"
)

// fakeTransport is an in-memory optimizer session.
type fakeTransport struct {
	topics Topics
	ackID  string
	block  bool
	// early publishes the result before the request is acknowledged.
	early  string

	mu       sync.Mutex
	handlers map[string]func(string, []byte)
	subjects []string
	closed   bool
}

func newFakeTransport(ackID string) *fakeTransport {
	return &fakeTransport{
		topics:   DefaultTopics(""),
		ackID:    ackID,
		handlers: make(map[string]func(string, []byte)),
	}
}

func (f *fakeTransport) dialer() Dialer {
	return func(ctx context.Context) (Transport, error) { return f, nil }
}

func (f *fakeTransport) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	f.mu.Lock()
	f.subjects = append(f.subjects, subject)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if subject == f.topics.Request {
		if f.early != "" {
			f.publish(f.topics.Results, resultFor(f.ackID, f.early))
		}
		return []byte(fmt.Sprintf(`{"id":%q}`, f.ackID)), nil
	}
	return []byte(`{"status":"ok"}`), nil
}

type fakeSubscription struct{}

func (fakeSubscription) Unsubscribe() error { return nil }

func (f *fakeTransport) Subscribe(subject string, handler func(string, []byte)) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[subject] = handler
	return fakeSubscription{}, nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) publish(topic string, data string) {
	f.mu.Lock()
	h := f.handlers[topic]
	f.mu.Unlock()
	if h != nil {
		h(topic, []byte(data))
	}
}

func resultFor(id, workflowName string) string {
	return fmt.Sprintf(`{"optimizationRequestId":%q,"workflow":{"workflowName":%q,"operators":[]}}`, id, workflowName)
}

func testDocuments() *Documents {
	w := &workflow.Workflow{
		WorkflowName:          "Logical Workflow",
		EnclosingOperatorName: "Optimization",
		Operators: []*workflow.Operator{
			{Name: "Read", ClassKey: "retrieve", IsEnabled: true},
			{Name: "Filter", ClassKey: "filter_examples", IsEnabled: true},
			{Name: "Disabled", ClassKey: "sample", IsEnabled: false},
			{Name: "Filter 2", ClassKey: "filter_examples", IsEnabled: true},
		},
	}
	sites := map[string][]string{
		"edge":  {"rtsa"},
		"cloud": {"flink", "spark"},
	}
	return NewDocuments("net", "dict", sites, AlgorithmGreedy, w, false, 1)
}

func connectedClient(t *testing.T, f *fakeTransport, opts ...ClientOption) *Client {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	c := NewClient(f.dialer(), append([]ClientOption{WithLogger(logger)}, opts...)...)
	require.NoError(t, c.Connect(context.Background()))
	return c
}

func TestClientCorrelatesResult(t *testing.T) {
	f := newFakeTransport("req-42")
	c := connectedClient(t, f)
	defer c.Close()

	id, err := c.Submit(context.Background(), testDocuments())
	require.NoError(t, err)
	assert.Equal(t, "req-42", id)
	assert.Equal(t, StateAwaitingResponse, c.State())
	assert.Equal(t, []string{"optimizer.network", "optimizer.dictionary", "optimizer.request"}, f.subjects)

	f.publish(f.topics.Results, resultFor("req-41", "stale"))
	assert.Nil(t, c.Session().Result(), "results of other requests are ignored")

	f.publish(f.topics.Results, resultFor("req-42", "placed"))
	resp, err := c.WaitForOptimizationResult(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "req-42", resp.OptimizationRequestID)
	assert.Equal(t, "placed", resp.Workflow.WorkflowName)
	assert.Equal(t, StateResponseReceived, c.State())
}

func TestClientWaitsForLateResult(t *testing.T) {
	f := newFakeTransport("req-42")
	c := connectedClient(t, f)
	defer c.Close()

	_, err := c.Submit(context.Background(), testDocuments())
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		f.publish(f.topics.Results, resultFor("req-41", "stale"))
		f.publish(f.topics.Results, resultFor("req-42", "placed"))
	}()
	resp, err := c.WaitForOptimizationResult(context.Background(), 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "placed", resp.Workflow.WorkflowName)
}

func TestClientKeepsResultPublishedBeforeAck(t *testing.T) {
	f := newFakeTransport("req-42")
	f.early = "fast"
	c := connectedClient(t, f)
	defer c.Close()

	id, err := c.Submit(context.Background(), testDocuments())
	require.NoError(t, err)
	assert.Equal(t, "req-42", id)

	resp, err := c.WaitForOptimizationResult(context.Background(), 200*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "req-42", resp.OptimizationRequestID)
	assert.Equal(t, "fast", resp.Workflow.WorkflowName)
	assert.Equal(t, StateResponseReceived, c.State())
}

func TestClientDropsMalformedMessages(t *testing.T) {
	f := newFakeTransport("req-42")
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)
	c := connectedClient(t, f, WithMetrics(metrics))
	defer c.Close()

	_, err = c.Submit(context.Background(), testDocuments())
	require.NoError(t, err)

	f.publish(f.topics.Results, `{"optimizationRequestId": "req-42", "workflow": `)
	f.publish(f.topics.Results, `{"optimizationRequestId": "req-42"}`)
	f.publish(f.topics.Info, `not json`)
	f.publish(f.topics.Errors, `{"id":"req-42","action":"ERROR","message":"boom"}`)
	assert.Nil(t, c.Session().Result())
	assert.Equal(t, StateAwaitingResponse, c.State())
	assert.False(t, c.Session().Finished())

	f.publish(f.topics.Info, `{"id":"req-41","action":"OPTIMIZATION_COMPLETED"}`)
	assert.False(t, c.Session().Finished())
	f.publish(f.topics.Info, `{"id":"req-42","action":"OPTIMIZATION_COMPLETED"}`)
	assert.True(t, c.Session().Finished())

	msg, ok := c.Session().Poll(context.Background(), f.topics.Errors, time.Second)
	require.True(t, ok)
	assert.Contains(t, string(msg), "boom")

	f.publish(f.topics.Results, resultFor("req-42", "placed"))
	resp, err := c.WaitForOptimizationResult(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "placed", resp.Workflow.WorkflowName)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, fam := range families {
		names = append(names, fam.GetName())
	}
	assert.Contains(t, names, "crexplace_optimizer_session_malformed_messages_total")
	assert.Contains(t, names, "crexplace_optimizer_round_trip_seconds")
}

func TestClientTimeout(t *testing.T) {
	f := newFakeTransport("req-42")
	c := connectedClient(t, f)
	defer c.Close()

	_, err := c.Submit(context.Background(), testDocuments())
	require.NoError(t, err)

	resp, err := c.WaitForOptimizationResult(context.Background(), 20*time.Millisecond)
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, sdkerrors.IsTimeout(err))
	assert.False(t, sdkerrors.IsTransport(err))
	assert.Equal(t, StateTimedOut, c.State())
}

func TestClientCancelled(t *testing.T) {
	f := newFakeTransport("req-42")
	c := connectedClient(t, f)
	defer c.Close()

	_, err := c.Submit(context.Background(), testDocuments())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err = c.WaitForOptimizationResult(ctx, time.Minute)
	require.Error(t, err)
	assert.True(t, sdkerrors.IsCancelled(err))
	assert.Equal(t, StateCancelled, c.State())
}

func TestClientFailures(t *testing.T) {
	t.Run("submit before connect", func(t *testing.T) {
		c := NewClient(newFakeTransport("x").dialer())
		_, err := c.Submit(context.Background(), testDocuments())
		require.Error(t, err)
		assert.True(t, sdkerrors.IsNotConnected(err))
		assert.True(t, sdkerrors.IsTransport(err))
	})

	t.Run("wait before submit", func(t *testing.T) {
		c := connectedClient(t, newFakeTransport("x"))
		_, err := c.WaitForOptimizationResult(context.Background(), time.Millisecond)
		require.Error(t, err)
		assert.True(t, sdkerrors.IsTransport(err))
	})

	t.Run("connection refused", func(t *testing.T) {
		c := NewClient(func(ctx context.Context) (Transport, error) {
			return nil, errors.New("connection refused")
		})
		err := c.Connect(context.Background())
		require.Error(t, err)
		assert.True(t, sdkerrors.IsTransport(err))
		assert.Contains(t, err.Error(), "CONNECT_FAILED")
		assert.Equal(t, StateFailed, c.State())
	})

	t.Run("connect timeout", func(t *testing.T) {
		c := NewClient(func(ctx context.Context) (Transport, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}, WithConnectTimeout(10*time.Millisecond))
		err := c.Connect(context.Background())
		require.Error(t, err)
		assert.True(t, sdkerrors.IsTransport(err))
		assert.Contains(t, err.Error(), "CONNECT_TIMEOUT")
	})

	t.Run("acknowledgement without id", func(t *testing.T) {
		c := connectedClient(t, newFakeTransport(""))
		_, err := c.Submit(context.Background(), testDocuments())
		require.Error(t, err)
		assert.True(t, sdkerrors.IsTransport(err))
		assert.Equal(t, StateFailed, c.State())
	})

	t.Run("incomplete documents", func(t *testing.T) {
		c := connectedClient(t, newFakeTransport("x"))
		_, err := c.Submit(context.Background(), &Documents{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ENCODE_FAILED")
	})
}

func TestSessionQueueDropsOldest(t *testing.T) {
	topics := DefaultTopics("")
	s := NewSession(topics, 2, nil, nil)
	for _, msg := range []string{"one", "two", "three"} {
		s.Handle(topics.Broadcast, []byte(msg))
	}
	assert.Equal(t, 2, s.Pending(topics.Broadcast))

	msg, ok := s.Poll(context.Background(), topics.Broadcast, time.Second)
	require.True(t, ok)
	assert.Equal(t, "two", string(msg))
	msg, ok = s.Poll(context.Background(), topics.Broadcast, time.Second)
	require.True(t, ok)
	assert.Equal(t, "three", string(msg))

	_, ok = s.Poll(context.Background(), topics.Broadcast, 5*time.Millisecond)
	assert.False(t, ok)

	s.Handle("elsewhere", []byte("ignored"))
	assert.Equal(t, 0, s.Pending("elsewhere"))
}

func TestSessionResetsOnNewRequest(t *testing.T) {
	topics := DefaultTopics("")
	s := NewSession(topics, 0, nil, nil)
	s.SetRequestID("req-1")
	s.Handle(topics.Results, []byte(resultFor("req-1", "first")))
	require.NotNil(t, s.Result())

	s.SetRequestID("req-2")
	assert.Nil(t, s.Result())
	_, err := s.Wait(context.Background(), 5*time.Millisecond)
	assert.True(t, sdkerrors.IsTimeout(err))
}

func TestSessionHoldsUnmatchedResults(t *testing.T) {
	topics := DefaultTopics("")
	s := NewSession(topics, 0, nil, nil)

	s.Handle(topics.Results, []byte(resultFor("req-7", "early")))
	assert.Nil(t, s.Result())
	assert.Equal(t, 0, s.Pending(topics.Results))

	s.SetRequestID("req-7")
	resp, err := s.Wait(context.Background(), 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "early", resp.Workflow.WorkflowName)

	s.SetRequestID("req-8")
	s.SetRequestID("req-7")
	assert.Nil(t, s.Result(), "an adopted result is released")

	for i := 0; i <= maxHeldResults; i++ {
		s.Handle(topics.Results, []byte(resultFor(fmt.Sprintf("old-%d", i), "stale")))
	}
	s.SetRequestID("old-0")
	assert.Nil(t, s.Result(), "oldest held result is evicted")
	s.SetRequestID(fmt.Sprintf("old-%d", maxHeldResults))
	assert.NotNil(t, s.Result())
}
