package engine

// Object classes carried on ports.
const (
	ClassIOObject   = "IOObject"
	ClassExampleSet = "ExampleSet"
	ClassStreamData = "StreamDataContainer"
	ClassConnection = "ConnectionInformationContainerIOObject"
)

// IOObject is live data delivered to a port.
type IOObject struct {
	Class string
	Table *Table
}

// Table is the shape of tabular data held by an IOObject.
type Table struct {
	Size       int
	Attributes []AttributeRole
}

// AttributeRole is one column of a table.
type AttributeRole struct {
	Name        string
	ValueType   string
	SpecialRole string
}

// MetaData is the statically inferred description of what a port will carry.
type MetaData struct {
	Class string
	Table *TableMetaData
}

// TableMetaData describes a table whose size may be unknown.
type TableMetaData struct {
	Size       int
	SizeKnown  bool
	Attributes []AttributeRole
}
