// Package bridge reconnects split connections between the containers of a
// placed workflow.
package bridge

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/giannisaf2/crexdata-public/pkg/engine"
	sdkerrors "github.com/giannisaf2/crexdata-public/pkg/errors"
	"github.com/giannisaf2/crexdata-public/pkg/workflow"
)

// Bridger materializes split connections inside an engine process holding
// the generated containers.
type Bridger struct {
	logger          *zap.Logger
	channel         *engine.OutputPort
	connectionEntry string
	topics          topicSet
	fans            map[*engine.Process]*engine.Operator
}

// Option configures a Bridger.
type Option func(*Bridger)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Bridger) { b.logger = logger }
}

// WithChannelPort sets the port delivering the stream connection to
// streaming nests.
func WithChannelPort(port *engine.OutputPort) Option {
	return func(b *Bridger) { b.channel = port }
}

// WithConnectionEntry sets the repository entry edge containers read the
// stream connection from.
func WithConnectionEntry(entry string) Option {
	return func(b *Bridger) { b.connectionEntry = entry }
}

// NewBridger creates a bridger.
func NewBridger(opts ...Option) *Bridger {
	b := &Bridger{
		logger: zap.NewNop(),
		topics: make(topicSet),
		fans:   make(map[*engine.Process]*engine.Operator),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Bridge restores every split connection in proc. Streaming connections, and
// connections between two edge containers that do not start at a shared
// source, are carried by a bridging operator pair sharing one topic. All
// other connections are wired through the containers' port pairs.
func (b *Bridger) Bridge(proc *engine.Process, splits []*workflow.SplitConnection) error {
	for _, s := range splits {
		from := proc.OperatorByName(s.FromContainer)
		if from == nil {
			return sdkerrors.NewModelingError("CONTAINER_NOT_FOUND", "split connection "+s.Connection.String()+" starts in a missing container", s.FromContainer)
		}
		to := proc.OperatorByName(s.ToContainer)
		if to == nil {
			return sdkerrors.NewModelingError("CONTAINER_NOT_FOUND", "split connection "+s.Connection.String()+" ends in a missing container", s.ToContainer)
		}

		var err error
		if s.Streaming || (s.BetweenEdgeContainers && !s.FromSourceChain) {
			err = b.bridgeTopic(proc, s, from, to)
		} else {
			err = b.wireThrough(s, from, to)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridger) bridgeTopic(proc *engine.Process, s *workflow.SplitConnection, from, to *engine.Operator) error {
	topic := b.topics.claim(TopicName(s.Connection))

	sink, err := b.addBridgeOperator(proc, from, topic, true)
	if err != nil {
		return err
	}
	fromPort, err := innerOutput(from, s.Connection.FromOperator, s.Connection.FromPort)
	if err != nil {
		return err
	}
	if err := fromPort.ConnectTo(sink.InputPorts().ByName(engine.PortKafkaInput)); err != nil {
		return wrapConnect(err, s.Connection, from.Name())
	}

	source, err := b.addBridgeOperator(proc, to, topic, false)
	if err != nil {
		return err
	}
	toPort, err := innerInput(to, s.Connection.ToOperator, s.Connection.ToPort)
	if err != nil {
		return err
	}
	if err := source.OutputPorts().ByName(engine.PortKafkaOutput).ConnectTo(toPort); err != nil {
		return wrapConnect(err, s.Connection, to.Name())
	}

	b.logger.Info("Bridged split connection",
		zap.String("connection", s.Connection.String()),
		zap.String("topic", topic),
		zap.String("from", from.Name()),
		zap.String("to", to.Name()))
	return nil
}

// addBridgeOperator adds a topic writer (sink) or reader to container and
// feeds it the stream connection.
func (b *Bridger) addBridgeOperator(proc *engine.Process, container *engine.Operator, topic string, sink bool) (*engine.Operator, error) {
	inner := container.Subprocess(0)
	var desc *engine.Description
	var topicParam string
	switch {
	case engine.IsStreamingNest(container) && sink:
		desc, topicParam = engine.StreamKafkaSink, engine.ParamTopic
	case engine.IsStreamingNest(container):
		desc, topicParam = engine.StreamKafkaSource, engine.ParamTopic
	case engine.IsEdgeProcessing(container) && sink:
		desc, topicParam = engine.WriteKafkaTopic, engine.ParamKafkaTopic
	case engine.IsEdgeProcessing(container):
		desc, topicParam = engine.ReadKafkaTopic, engine.ParamKafkaTopic
	default:
		return nil, sdkerrors.NewModelingError("UNSUPPORTED_CONTAINER", "cannot bridge into container of class "+container.ClassKey(), container.Name())
	}

	op := engine.New(desc, inner.UniqueName(desc.Name))
	op.Parameters().Set(topicParam, topic)
	if err := inner.AddOperator(op); err != nil {
		return nil, err
	}
	connection := op.InputPorts().ByName(engine.PortKafkaConnection)

	if engine.IsEdgeProcessing(container) {
		ret := engine.New(engine.Retrieve, inner.UniqueName(engine.Retrieve.Name))
		ret.Parameters().Set(engine.ParamRepositoryEntry, b.connectionEntry)
		if err := inner.AddOperator(ret); err != nil {
			return nil, err
		}
		return op, ret.OutputPorts().ByName(engine.PortRetrieveOutput).ConnectTo(connection)
	}

	fan, err := b.channelFan(proc)
	if err != nil {
		return nil, err
	}
	outer, src, err := container.FreeInputPair()
	if err != nil {
		return nil, err
	}
	if err := fan.OutputPorts().NextFree().ConnectTo(outer); err != nil {
		return nil, err
	}
	return op, src.ConnectTo(connection)
}

// channelFan returns the multiply distributing the stream connection in proc,
// creating it on first use.
func (b *Bridger) channelFan(proc *engine.Process) (*engine.Operator, error) {
	if fan, ok := b.fans[proc]; ok {
		return fan, nil
	}
	if b.channel == nil {
		return nil, sdkerrors.NewModelingError("NO_CHANNEL", "streaming bridge needs a connection port", proc.Name())
	}
	fan, err := attachFan(proc, b.channel)
	if err != nil {
		return nil, err
	}
	b.fans[proc] = fan
	return fan, nil
}

// attachFan inserts a multiply behind port. A destination port already had
// stays connected through the first multiply output.
func attachFan(proc *engine.Process, port *engine.OutputPort) (*engine.Operator, error) {
	fan := engine.New(engine.Multiply, proc.UniqueName(engine.Multiply.Name))
	if err := proc.AddOperatorAt(fan, 0); err != nil {
		return nil, err
	}
	if dest := port.Destination(); dest != nil {
		port.Disconnect()
		if err := fan.OutputPorts().NextFree().ConnectTo(dest); err != nil {
			return nil, err
		}
	}
	if err := port.ConnectTo(fan.InputPorts().ByName(engine.PortMultiplyInput)); err != nil {
		return nil, err
	}
	return fan, nil
}

// wireThrough connects the endpoints through a new output pair of the source
// container and a new input pair of the target container.
func (b *Bridger) wireThrough(s *workflow.SplitConnection, from, to *engine.Operator) error {
	if !isContainer(from) || !isContainer(to) {
		return sdkerrors.NewModelingError("INCOMPATIBLE_CONTAINERS",
			fmt.Sprintf("cannot wire %s between %s and %s", s.Connection, from.ClassKey(), to.ClassKey()),
			from.Name(), to.Name())
	}

	fromPort, err := innerOutput(from, s.Connection.FromOperator, s.Connection.FromPort)
	if err != nil {
		return err
	}
	toPort, err := innerInput(to, s.Connection.ToOperator, s.Connection.ToPort)
	if err != nil {
		return err
	}

	innerSink, outerOut, err := from.FreeOutputPair()
	if err != nil {
		return err
	}
	outerIn, innerSrc, err := to.FreeInputPair()
	if err != nil {
		return err
	}
	if err := fromPort.ConnectTo(innerSink); err != nil {
		return wrapConnect(err, s.Connection, from.Name())
	}
	if err := outerOut.ConnectTo(outerIn); err != nil {
		return wrapConnect(err, s.Connection, from.Name(), to.Name())
	}
	if err := innerSrc.ConnectTo(toPort); err != nil {
		return wrapConnect(err, s.Connection, to.Name())
	}

	b.logger.Info("Wired split connection through containers",
		zap.String("connection", s.Connection.String()),
		zap.String("from", from.Name()),
		zap.String("to", to.Name()),
		zap.String("port", outerOut.Name()))
	return nil
}

func isContainer(op *engine.Operator) bool {
	return engine.IsStreamingNest(op) || engine.IsEdgeProcessing(op)
}

func innerOutput(container *engine.Operator, operator, port string) (*engine.OutputPort, error) {
	op := container.Subprocess(0).OperatorByName(operator)
	if op == nil {
		return nil, sdkerrors.NewModelingError("OPERATOR_NOT_FOUND", "operator is not part of container "+container.Name(), operator)
	}
	p := op.OutputPorts().ByName(port)
	if p == nil {
		return nil, sdkerrors.NewModelingError("UNRESOLVED_PORT", "output port does not exist", operator+"."+port)
	}
	return p, nil
}

func innerInput(container *engine.Operator, operator, port string) (*engine.InputPort, error) {
	op := container.Subprocess(0).OperatorByName(operator)
	if op == nil {
		return nil, sdkerrors.NewModelingError("OPERATOR_NOT_FOUND", "operator is not part of container "+container.Name(), operator)
	}
	p := op.InputPorts().ByName(port)
	if p == nil {
		return nil, sdkerrors.NewModelingError("UNRESOLVED_PORT", "input port does not exist", operator+"."+port)
	}
	return p, nil
}

func wrapConnect(err error, c *workflow.Connection, names ...string) error {
	return sdkerrors.NewError(sdkerrors.KindModeling, "CONNECT_FAILED", "cannot restore "+c.String(), err, names...)
}
