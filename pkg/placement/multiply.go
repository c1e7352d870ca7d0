package placement

import (
	"fmt"

	"github.com/giannisaf2/crexdata-public/pkg/engine"
	"github.com/giannisaf2/crexdata-public/pkg/workflow"
)

func newMultiply(name, class string, outputs int) *workflow.Operator {
	op := &workflow.Operator{
		Name:      name,
		ClassKey:  engine.KeyMultiply,
		IsEnabled: true,
		Inputs: []*workflow.Port{
			{Name: engine.PortMultiplyInput, PortType: workflow.InputPort, IsConnected: true, ObjectClass: class},
		},
		Outputs:    make([]*workflow.Port, 0, outputs),
		Parameters: []*workflow.Parameter{},
	}
	for i := 1; i <= outputs; i++ {
		op.Outputs = append(op.Outputs, &workflow.Port{
			Name:        fmt.Sprintf("%s %d", engine.PortMultiplyOutput, i),
			PortType:    workflow.OutputPort,
			IsConnected: true,
			ObjectClass: class,
		})
	}
	return op
}

func firstOutput(op *workflow.Operator) string {
	if len(op.Outputs) == 0 {
		return engine.PortRetrieveOutput
	}
	return op.Outputs[0].Name
}

func outputClass(op *workflow.Operator) string {
	if len(op.Outputs) == 0 || op.Outputs[0].ObjectClass == "" {
		return workflow.ClassConnection
	}
	return op.Outputs[0].ObjectClass
}
