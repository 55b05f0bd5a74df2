package message

import "fmt"

// typeEntry describes the codec metadata for one ScalarType: its wire size
// in bytes for fixed-width types (0 for variable-width), a human-readable
// name for logging, and whether the type is numeric.
type typeEntry struct {
	Name       string
	FixedSize  int
	IsNumeric  bool
}

// TypeTable replaces the long if/else chain edge_utils.c used to convert
// between OPC-UA variant types and wire values with a single lookup shared
// by Read decode, Write encode, Method argument marshaling, and
// notification decode.
var TypeTable = map[ScalarType]typeEntry{
	TypeBoolean:    {Name: "Boolean", FixedSize: 1},
	TypeSByte:      {Name: "SByte", FixedSize: 1, IsNumeric: true},
	TypeByte:       {Name: "Byte", FixedSize: 1, IsNumeric: true},
	TypeInt16:      {Name: "Int16", FixedSize: 2, IsNumeric: true},
	TypeUInt16:     {Name: "UInt16", FixedSize: 2, IsNumeric: true},
	TypeInt32:      {Name: "Int32", FixedSize: 4, IsNumeric: true},
	TypeUInt32:     {Name: "UInt32", FixedSize: 4, IsNumeric: true},
	TypeInt64:      {Name: "Int64", FixedSize: 8, IsNumeric: true},
	TypeUInt64:     {Name: "UInt64", FixedSize: 8, IsNumeric: true},
	TypeFloat:      {Name: "Float", FixedSize: 4, IsNumeric: true},
	TypeDouble:     {Name: "Double", FixedSize: 8, IsNumeric: true},
	TypeString:     {Name: "String"},
	TypeDateTime:   {Name: "DateTime", FixedSize: 8, IsNumeric: true},
	TypeGUID:       {Name: "Guid", FixedSize: 16},
	TypeByteString: {Name: "ByteString"},
	TypeStatusCode: {Name: "StatusCode", FixedSize: 4, IsNumeric: true},
}

// LookupType returns the codec entry for t, and false if t is not a known
// scalar type.
func LookupType(t ScalarType) (name string, fixedSize int, isNumeric bool, ok bool) {
	e, ok := TypeTable[t]
	if !ok {
		return "", 0, false, false
	}
	return e.Name, e.FixedSize, e.IsNumeric, true
}

// String renders t for logging, falling back to a numeric tag for unknown
// values instead of panicking.
func (t ScalarType) String() string {
	if e, ok := TypeTable[t]; ok {
		return e.Name
	}
	return fmt.Sprintf("ScalarType(%d)", uint8(t))
}
