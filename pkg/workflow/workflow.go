// Package workflow holds the engine-agnostic description of a processing
// workflow: operators, ports, connections, parameters, nested sub-workflows
// and the placement decision produced by the optimizer.
//
// JSON tags match the documents exchanged with the optimizer service and must
// not be renamed.
package workflow

import (
	"encoding/json"
	"fmt"
)

// PortType tags a port as an ordinary operator port or as the inner boundary
// of the workflow's enclosing operator.
type PortType string

const (
	InputPort       PortType = "INPUT_PORT"
	OutputPort      PortType = "OUTPUT_PORT"
	InnerInputPort  PortType = "INNER_INPUT_PORT"
	InnerOutputPort PortType = "INNER_OUTPUT_PORT"
)

// IsInner reports whether the port belongs to the enclosing operator's boundary.
func (t PortType) IsInner() bool {
	return t == InnerInputPort || t == InnerOutputPort
}

// Object classes the splitter and bridger look at.
const (
	ClassStreamData = "StreamDataContainer"
	ClassExampleSet = "ExampleSet"
	ClassConnection = "ConnectionInformationContainerIOObject"
)

// Workflow is one level of a (possibly nested) workflow graph.
type Workflow struct {
	WorkflowName          string           `json:"workflowName"`
	EnclosingOperatorName string           `json:"enclosingOperatorName"`
	InnerSources          []*Port          `json:"innerSourcesPortsAndSchemas"`
	InnerSinks            []*Port          `json:"innerSinksPortsAndSchemas"`
	Connections           []*Connection    `json:"operatorConnections"`
	Operators             []*Operator      `json:"operators"`
	PlacementSites        []*PlacementSite `json:"placementSites,omitempty"`
}

// OperatorKind discriminates leaf operators from composites carrying nested workflows.
type OperatorKind int

const (
	Leaf OperatorKind = iota
	Composite
)

func (k OperatorKind) String() string {
	if k == Composite {
		return "composite"
	}
	return "leaf"
}

// Operator describes a single operator.
type Operator struct {
	Name                 string       `json:"name"`
	ClassKey             string       `json:"classKey"`
	IsEnabled            bool         `json:"isEnabled"`
	HasSubprocesses      bool         `json:"hasSubprocesses"`
	NumberOfSubprocesses int          `json:"numberOfSubprocesses,omitempty"`
	Inputs               []*Port      `json:"inputPortsAndSchemas"`
	Outputs              []*Port      `json:"outputPortsAndSchemas"`
	Parameters           []*Parameter `json:"parameters"`
	InnerWorkflows       []*Workflow  `json:"innerWorkflows,omitempty"`
	PlatformName         string       `json:"platformName,omitempty"`
}

// Kind reports whether the operator is a leaf or a composite.
func (o *Operator) Kind() OperatorKind {
	if o.HasSubprocesses || len(o.InnerWorkflows) > 0 {
		return Composite
	}
	return Leaf
}

// Input returns the input port with the given name.
func (o *Operator) Input(name string) *Port {
	for _, p := range o.Inputs {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Output returns the output port with the given name.
func (o *Operator) Output(name string) *Port {
	for _, p := range o.Outputs {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Parameter returns the parameter with the given key.
func (o *Operator) Parameter(key string) *Parameter {
	for _, p := range o.Parameters {
		if p.Key == key {
			return p
		}
	}
	return nil
}

// ParameterValue returns the value of the parameter with the given key.
func (o *Operator) ParameterValue(key string) (string, bool) {
	p := o.Parameter(key)
	if p == nil {
		return "", false
	}
	return p.Value, true
}

// Port describes an input, output or boundary port.
type Port struct {
	Name        string   `json:"name"`
	PortType    PortType `json:"portType"`
	IsConnected bool     `json:"isConnected"`
	ObjectClass string   `json:"objectClass,omitempty"`
	Schema      *Schema  `json:"schema,omitempty"`
}

// IsStreaming reports whether the port carries a data stream.
func (p *Port) IsStreaming() bool {
	return p != nil && p.ObjectClass == ClassStreamData
}

// Schema describes tabular data on a port.
type Schema struct {
	FromMetaData bool         `json:"fromMetaData"`
	Size         *int         `json:"size,omitempty"`
	Attributes   []*Attribute `json:"attributes"`
}

// Attribute is one column of a Schema.
type Attribute struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	SpecialRole string `json:"specialRole,omitempty"`
}

// Parameter is a key/value setting of an operator. TypeClass names the
// declared value kind and Range the allowed values.
type Parameter struct {
	Key          string `json:"key"`
	Value        string `json:"value"`
	DefaultValue string `json:"defaultValue"`
	TypeClass    string `json:"typeClass,omitempty"`
	Range        string `json:"range,omitempty"`
}

// Connection links an output port to an input port in the same workflow.
type Connection struct {
	FromOperator string   `json:"fromOperator"`
	FromPort     string   `json:"fromPort"`
	FromPortType PortType `json:"fromPortType"`
	ToOperator   string   `json:"toOperator"`
	ToPort       string   `json:"toPort"`
	ToPortType   PortType `json:"toPortType"`
}

// String renders the connection as "from.port -> to.port".
func (c *Connection) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", c.FromOperator, c.FromPort, c.ToOperator, c.ToPort)
}

// FromBoundary reports whether the connection starts at an inner source.
func (c *Connection) FromBoundary() bool {
	return c.FromPortType == InnerOutputPort
}

// ToBoundary reports whether the connection ends at an inner sink.
func (c *Connection) ToBoundary() bool {
	return c.ToPortType == InnerInputPort
}

// PlacementSite is a computing site of the placement decision.
type PlacementSite struct {
	SiteName           string               `json:"siteName"`
	AvailablePlatforms []*PlacementPlatform `json:"availablePlatforms"`
}

// PlacementPlatform lists the operators placed on one platform of a site.
type PlacementPlatform struct {
	PlatformName string               `json:"platformName"`
	Operators    []*PlacementOperator `json:"operators"`
}

// PlacementOperator references an operator by name.
type PlacementOperator struct {
	Name string `json:"name"`
}

// SplitConnection is a connection whose endpoints were placed in different containers.
type SplitConnection struct {
	Connection            *Connection `json:"originalConnection"`
	FromContainer         string      `json:"fromContainer"`
	ToContainer           string      `json:"toContainer"`
	Streaming             bool        `json:"isStreamingConnection"`
	BetweenEdgeContainers bool        `json:"betweenEdgeProcessingOperators"`
	FromSourceChain       bool        `json:"fromSourceChain"`
}

// ToBytes serializes the workflow to JSON.
func (w *Workflow) ToBytes() ([]byte, error) {
	return json.Marshal(w)
}

// FromBytes deserializes a workflow from JSON.
func FromBytes(data []byte) (*Workflow, error) {
	var w Workflow
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
	}
	return &w, nil
}

// Operator returns the operator of this level with the given name.
func (w *Workflow) Operator(name string) *Operator {
	for _, op := range w.Operators {
		if op.Name == name {
			return op
		}
	}
	return nil
}

// InnerSource returns the inner source port with the given name.
func (w *Workflow) InnerSource(name string) *Port {
	for _, p := range w.InnerSources {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// InnerSink returns the inner sink port with the given name.
func (w *Workflow) InnerSink(name string) *Port {
	for _, p := range w.InnerSinks {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// OutgoingConnections returns the connections of this level starting at the named operator.
func (w *Workflow) OutgoingConnections(operator string) []*Connection {
	var out []*Connection
	for _, c := range w.Connections {
		if c.FromOperator == operator {
			out = append(out, c)
		}
	}
	return out
}

// Walk visits every workflow level depth-first, parents before children.
// Returning false from fn stops the walk below that level.
func (w *Workflow) Walk(fn func(level *Workflow) bool) {
	if w == nil || !fn(w) {
		return
	}
	for _, op := range w.Operators {
		for _, inner := range op.InnerWorkflows {
			inner.Walk(fn)
		}
	}
}
