package convert

import (
	"github.com/giannisaf2/crexdata-public/pkg/engine"
	"github.com/giannisaf2/crexdata-public/pkg/workflow"
)

func describeOutput(p *engine.OutputPort, portType workflow.PortType) *workflow.Port {
	port := &workflow.Port{Name: p.Name(), PortType: portType, IsConnected: p.IsConnected()}
	port.ObjectClass, port.Schema = inferSchema(p.Data(), p.MetaData())
	return port
}

func describeInput(p *engine.InputPort, portType workflow.PortType) *workflow.Port {
	port := &workflow.Port{Name: p.Name(), PortType: portType, IsConnected: p.IsConnected()}
	port.ObjectClass, port.Schema = inferSchema(p.Data(), p.MetaData())
	return port
}

// inferSchema prefers live data over static metadata. Metadata without a
// known size leaves the schema size unset.
func inferSchema(data *engine.IOObject, md *engine.MetaData) (string, *workflow.Schema) {
	if data != nil {
		if data.Table == nil {
			return data.Class, nil
		}
		size := data.Table.Size
		return data.Class, &workflow.Schema{
			FromMetaData: false,
			Size:         &size,
			Attributes:   attributes(data.Table.Attributes),
		}
	}
	if md == nil {
		return "", nil
	}
	if md.Table == nil {
		return md.Class, nil
	}
	schema := &workflow.Schema{FromMetaData: true, Attributes: attributes(md.Table.Attributes)}
	if md.Table.SizeKnown {
		size := md.Table.Size
		schema.Size = &size
	}
	return md.Class, schema
}

func attributes(roles []engine.AttributeRole) []*workflow.Attribute {
	out := make([]*workflow.Attribute, 0, len(roles))
	for _, r := range roles {
		out = append(out, &workflow.Attribute{Name: r.Name, Type: r.ValueType, SpecialRole: r.SpecialRole})
	}
	return out
}
