package engine

// Class keys of the operators this package knows how to build.
const (
	KeyStreamingNest     = "streaming:streaming_nest"
	KeyEdgeProcessing    = "custom-admin-extension:edge_processing"
	KeyEdgeProcessingAlt = "streaming:edge_processing"
	KeyOptimization      = "streaming:streaming_optimization"
	KeyMultiply          = "multiply"
	KeyRetrieve          = "retrieve"
	KeySubprocess        = "subprocess"
	KeyStreamKafkaSink   = "streaming:kafka_sink"
	KeyStreamKafkaSource = "streaming:kafka_source"
	KeyWriteKafkaTopic   = "kafka_connector:write_kafka_topic"
	KeyReadKafkaTopic    = "kafka_connector:read_kafka_topic"
)

// Well-known port and parameter names.
const (
	PortNestConnection  = "connection"
	PortAIHubConnection = "aihub_connection"
	PortRTSAConnection  = "rtsa_connection"
	PortMultiplyInput   = "input"
	PortMultiplyOutput  = "output"
	PortRetrieveOutput  = "output"
	PortKafkaConnection = "connection"
	PortKafkaInput      = "input"
	PortKafkaOutput     = "output"

	ParamRepositoryEntry = "repository_entry"
	ParamTopic           = "topic"
	ParamKafkaTopic      = "kafka_topic"
	ParamJobName         = "job_name"
	ParamWorkflowID      = "optimization_workflow_id"
)

// Subprocess names of the optimization chain.
const (
	LogicalWorkflow   = "Logical Workflow"
	OptimizedWorkflow = "Optimized Workflow"
)

var (
	StreamingNest = &Description{
		Key:          KeyStreamingNest,
		Name:         "Streaming Nest",
		Inputs:       []PortSpec{{Name: PortNestConnection, Class: ClassConnection}},
		Subprocesses: []string{OptimizedWorkflow},
		Throughput:   true,
		Parameters: []ParameterType{
			{Key: ParamJobName, Kind: KindString, Range: "string"},
			{Key: ParamWorkflowID, Kind: KindString, Range: "string", Optional: true},
		},
	}

	EdgeProcessing = &Description{
		Key:  KeyEdgeProcessing,
		Name: "Edge Processing",
		Inputs: []PortSpec{
			{Name: PortAIHubConnection, Class: ClassConnection},
			{Name: PortRTSAConnection, Class: ClassConnection},
		},
		Subprocesses: []string{OptimizedWorkflow},
		Throughput:   true,
		Parameters: []ParameterType{
			{Key: "name", Kind: KindString},
			{Key: "display_name", Kind: KindString},
			{Key: "continuous_execution", Kind: KindBoolean, Default: "true"},
			{Key: "sleep_time", Kind: KindInt, Default: "1000"},
		},
	}

	Optimization = &Description{
		Key:          KeyOptimization,
		Name:         "Streaming Optimization",
		Subprocesses: []string{LogicalWorkflow, OptimizedWorkflow},
		Parameters: []ParameterType{
			{Key: "workflow_name", Kind: KindString, Optional: true},
			{Key: "network_name", Kind: KindString, Optional: true},
			{Key: "dictionary_name", Kind: KindString, Optional: true},
		},
	}

	Multiply = &Description{
		Key:              KeyMultiply,
		Name:             "Multiply",
		Inputs:           []PortSpec{{Name: PortMultiplyInput, Class: ClassIOObject}},
		OutputGroup:      PortMultiplyOutput,
		OutputGroupClass: ClassIOObject,
	}

	Retrieve = &Description{
		Key:     KeyRetrieve,
		Name:    "Retrieve",
		Outputs: []PortSpec{{Name: PortRetrieveOutput, Class: ClassConnection}},
		Parameters: []ParameterType{
			{Key: ParamRepositoryEntry, Kind: KindRepository},
		},
	}

	Subprocess = &Description{
		Key:          KeySubprocess,
		Name:         "Subprocess",
		Subprocesses: []string{"Subprocess"},
		Throughput:   true,
	}

	StreamKafkaSink = &Description{
		Key:  KeyStreamKafkaSink,
		Name: "Kafka Sink",
		Inputs: []PortSpec{
			{Name: PortKafkaConnection, Class: ClassConnection},
			{Name: PortKafkaInput, Class: ClassStreamData},
		},
		Parameters: []ParameterType{{Key: ParamTopic, Kind: KindString}},
	}

	StreamKafkaSource = &Description{
		Key:     KeyStreamKafkaSource,
		Name:    "Kafka Source",
		Inputs:  []PortSpec{{Name: PortKafkaConnection, Class: ClassConnection}},
		Outputs: []PortSpec{{Name: PortKafkaConnection, Class: ClassConnection}, {Name: PortKafkaOutput, Class: ClassStreamData}},
		Parameters: []ParameterType{
			{Key: ParamTopic, Kind: KindString},
			{Key: "start_from_earliest", Kind: KindBoolean, Default: "false"},
		},
	}

	WriteKafkaTopic = &Description{
		Key:  KeyWriteKafkaTopic,
		Name: "Write Kafka Topic",
		Inputs: []PortSpec{
			{Name: PortKafkaConnection, Class: ClassConnection},
			{Name: PortKafkaInput, Class: ClassExampleSet},
		},
		Outputs:    []PortSpec{{Name: PortKafkaConnection, Class: ClassConnection}},
		Parameters: []ParameterType{{Key: ParamKafkaTopic, Kind: KindString}},
	}

	ReadKafkaTopic = &Description{
		Key:     KeyReadKafkaTopic,
		Name:    "Read Kafka Topic",
		Inputs:  []PortSpec{{Name: PortKafkaConnection, Class: ClassConnection}},
		Outputs: []PortSpec{{Name: PortKafkaConnection, Class: ClassConnection}, {Name: PortKafkaOutput, Class: ClassExampleSet}},
		Parameters: []ParameterType{
			{Key: ParamKafkaTopic, Kind: KindString},
			{Key: "offset_strategy", Kind: KindCategory, Default: "earliest", Range: "earliest,latest"},
		},
	}
)

// NewDefaultRegistry creates a registry with every built-in description registered.
// Edge processing is also registered under its alternative key.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, desc := range []*Description{
		StreamingNest, EdgeProcessing, Optimization, Multiply, Retrieve, Subprocess,
		StreamKafkaSink, StreamKafkaSource, WriteKafkaTopic, ReadKafkaTopic,
	} {
		_ = r.Register(desc)
	}
	_ = r.RegisterWithName(EdgeProcessing, KeyEdgeProcessingAlt)
	return r
}

// IsStreamingNest reports whether op is a streaming nest container.
func IsStreamingNest(op *Operator) bool {
	return op != nil && op.desc.Key == KeyStreamingNest
}

// IsEdgeProcessing reports whether op is an edge-processing container.
func IsEdgeProcessing(op *Operator) bool {
	return op != nil && (op.desc.Key == KeyEdgeProcessing || op.desc.Key == KeyEdgeProcessingAlt)
}

// NewOptimizationChain creates the chain holding a logical workflow in
// subprocess 0 and its placed rendition in subprocess 1.
func NewOptimizationChain(name string) *Operator {
	return New(Optimization, name)
}
