package engine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrPortInUse is returned when connecting a port that already has a peer.
var ErrPortInUse = errors.New("port is already connected")

// OutputPort produces data. It has at most one destination.
type OutputPort struct {
	name  string
	owner *Operator
	dest  *InputPort
	data  *IOObject
	meta  *MetaData
}

// Name returns the port name.
func (p *OutputPort) Name() string { return p.name }

// Owner returns the operator owning the port. Inner sources of a process are
// owned by the process's enclosing operator.
func (p *OutputPort) Owner() *Operator { return p.owner }

// IsConnected reports whether the port has a destination.
func (p *OutputPort) IsConnected() bool { return p.dest != nil }

// Destination returns the connected input port, or nil.
func (p *OutputPort) Destination() *InputPort { return p.dest }

// ConnectTo connects the port to in.
func (p *OutputPort) ConnectTo(in *InputPort) error {
	if in == nil {
		return fmt.Errorf("cannot connect %s to a nil port", p.name)
	}
	if p.dest != nil {
		return fmt.Errorf("%w: output %s", ErrPortInUse, p.name)
	}
	if in.source != nil {
		return fmt.Errorf("%w: input %s", ErrPortInUse, in.name)
	}
	p.dest = in
	in.source = p
	p.owner.portsChanged()
	in.owner.portsChanged()
	return nil
}

// Disconnect removes the connection to the destination, if any.
func (p *OutputPort) Disconnect() {
	if p.dest == nil {
		return
	}
	p.dest.source = nil
	p.dest = nil
}

// Deliver places live data on the port.
func (p *OutputPort) Deliver(data *IOObject) { p.data = data }

// Data returns the live data on the port, or nil.
func (p *OutputPort) Data() *IOObject { return p.data }

// SetMetaData sets the statically inferred description of the port.
func (p *OutputPort) SetMetaData(md *MetaData) { p.meta = md }

// MetaData returns the port metadata, or nil.
func (p *OutputPort) MetaData() *MetaData { return p.meta }

// InputPort consumes data. It has at most one source.
type InputPort struct {
	name   string
	owner  *Operator
	source *OutputPort
	meta   *MetaData
}

// Name returns the port name.
func (p *InputPort) Name() string { return p.name }

// Owner returns the operator owning the port. Inner sinks of a process are
// owned by the process's enclosing operator.
func (p *InputPort) Owner() *Operator { return p.owner }

// IsConnected reports whether the port has a source.
func (p *InputPort) IsConnected() bool { return p.source != nil }

// Source returns the connected output port, or nil.
func (p *InputPort) Source() *OutputPort { return p.source }

// Data returns the live data delivered by the source, or nil.
func (p *InputPort) Data() *IOObject {
	if p.source == nil {
		return nil
	}
	return p.source.data
}

// SetMetaData sets the expected description of the port.
func (p *InputPort) SetMetaData(md *MetaData) { p.meta = md }

// MetaData returns the port metadata. A connected port reports its source's metadata.
func (p *InputPort) MetaData() *MetaData {
	if p.source != nil && p.source.meta != nil {
		return p.source.meta
	}
	return p.meta
}

// OutputPorts is an ordered set of output ports. When prefix is set the set
// extends itself with "<prefix> N" ports on demand.
type OutputPorts struct {
	owner  *Operator
	ports  []*OutputPort
	prefix string
	class  string
}

// All returns the ports in order.
func (ps *OutputPorts) All() []*OutputPort { return ps.ports }

// Len returns the number of ports.
func (ps *OutputPorts) Len() int { return len(ps.ports) }

// ByIndex returns the port at index i, or nil.
func (ps *OutputPorts) ByIndex(i int) *OutputPort {
	if i < 0 || i >= len(ps.ports) {
		return nil
	}
	return ps.ports[i]
}

// ByName returns the named port. Extending sets create missing numbered ports.
func (ps *OutputPorts) ByName(name string) *OutputPort {
	for _, p := range ps.ports {
		if p.name == name {
			return p
		}
	}
	if n, ok := groupIndex(ps.prefix, name); ok {
		for ps.countGroup() < n {
			ps.addGroupPort()
		}
		ps.owner.portsChanged()
		return ps.ByName(name)
	}
	return nil
}

// Add appends a port with the given name and object class.
func (ps *OutputPorts) Add(name, class string) *OutputPort {
	p := &OutputPort{name: name, owner: ps.owner}
	if class != "" {
		p.meta = &MetaData{Class: class}
	}
	ps.ports = append(ps.ports, p)
	return p
}

// NextFree returns the first unconnected numbered port of an extending set.
func (ps *OutputPorts) NextFree() *OutputPort {
	for _, p := range ps.ports {
		if _, ok := groupIndex(ps.prefix, p.name); ok && !p.IsConnected() {
			return p
		}
	}
	if ps.prefix == "" {
		return nil
	}
	return ps.addGroupPort()
}

func (ps *OutputPorts) countGroup() int {
	n := 0
	for _, p := range ps.ports {
		if _, ok := groupIndex(ps.prefix, p.name); ok {
			n++
		}
	}
	return n
}

func (ps *OutputPorts) addGroupPort() *OutputPort {
	return ps.Add(fmt.Sprintf("%s %d", ps.prefix, ps.countGroup()+1), ps.class)
}

// ensureSpare keeps one unconnected numbered port at the end of an extending set.
func (ps *OutputPorts) ensureSpare() {
	if ps.prefix == "" {
		return
	}
	for _, p := range ps.ports {
		if _, ok := groupIndex(ps.prefix, p.name); ok && !p.IsConnected() {
			return
		}
	}
	ps.addGroupPort()
}

// InputPorts is an ordered set of input ports.
type InputPorts struct {
	owner  *Operator
	ports  []*InputPort
	prefix string
	class  string
}

// All returns the ports in order.
func (ps *InputPorts) All() []*InputPort { return ps.ports }

// Len returns the number of ports.
func (ps *InputPorts) Len() int { return len(ps.ports) }

// ByIndex returns the port at index i, or nil.
func (ps *InputPorts) ByIndex(i int) *InputPort {
	if i < 0 || i >= len(ps.ports) {
		return nil
	}
	return ps.ports[i]
}

// ByName returns the named port. Extending sets create missing numbered ports.
func (ps *InputPorts) ByName(name string) *InputPort {
	for _, p := range ps.ports {
		if p.name == name {
			return p
		}
	}
	if n, ok := groupIndex(ps.prefix, name); ok {
		for ps.countGroup() < n {
			ps.addGroupPort()
		}
		ps.owner.portsChanged()
		return ps.ByName(name)
	}
	return nil
}

// Add appends a port with the given name and object class.
func (ps *InputPorts) Add(name, class string) *InputPort {
	p := &InputPort{name: name, owner: ps.owner}
	if class != "" {
		p.meta = &MetaData{Class: class}
	}
	ps.ports = append(ps.ports, p)
	return p
}

func (ps *InputPorts) countGroup() int {
	n := 0
	for _, p := range ps.ports {
		if _, ok := groupIndex(ps.prefix, p.name); ok {
			n++
		}
	}
	return n
}

func (ps *InputPorts) addGroupPort() *InputPort {
	return ps.Add(fmt.Sprintf("%s %d", ps.prefix, ps.countGroup()+1), ps.class)
}

// groupIndex parses "<prefix> N" and returns N.
func groupIndex(prefix, name string) (int, bool) {
	if prefix == "" || !strings.HasPrefix(name, prefix+" ") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(name, prefix+" "))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
