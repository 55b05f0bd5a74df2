// Package codec converts between gopcua's *ua.Variant wire representation
// and message.Versatility, through internal/message.TypeTable rather than
// a hand-written if/else chain per call site. Both internal/executor and
// internal/subscription consult this package so Read decode, Write encode,
// Method argument marshaling and notification decode share one conversion
// path, per spec §9's explicit redesign instruction (replacing
// edge_utils.c's valueToEdgeType chain with a table lookup).
package codec

import (
	"fmt"

	"github.com/gopcua/opcua/ua"

	"github.com/nexus-edge/opcua-edge-adapter/internal/domain"
	"github.com/nexus-edge/opcua-edge-adapter/internal/message"
)

// scalarByVariantType maps ua.TypeID to message.ScalarType. This is the one
// place the wire type tag is translated; message.TypeTable then carries the
// size/name metadata for everything downstream.
var scalarByVariantType = map[ua.TypeID]message.ScalarType{
	ua.TypeIDBoolean:    message.TypeBoolean,
	ua.TypeIDSByte:      message.TypeSByte,
	ua.TypeIDByte:       message.TypeByte,
	ua.TypeIDInt16:      message.TypeInt16,
	ua.TypeIDUint16:     message.TypeUInt16,
	ua.TypeIDInt32:      message.TypeInt32,
	ua.TypeIDUint32:     message.TypeUInt32,
	ua.TypeIDInt64:      message.TypeInt64,
	ua.TypeIDUint64:     message.TypeUInt64,
	ua.TypeIDFloat:      message.TypeFloat,
	ua.TypeIDDouble:     message.TypeDouble,
	ua.TypeIDString:     message.TypeString,
	ua.TypeIDDateTime:   message.TypeDateTime,
	ua.TypeIDGUID:       message.TypeGUID,
	ua.TypeIDByteString: message.TypeByteString,
	ua.TypeIDStatusCode: message.TypeStatusCode,
}

// variantTypeByScalar is the inverse of scalarByVariantType, consulted when
// encoding a Versatility back to a *ua.Variant for Write/Method input.
var variantTypeByScalar = func() map[message.ScalarType]ua.TypeID {
	out := make(map[message.ScalarType]ua.TypeID, len(scalarByVariantType))
	for vt, st := range scalarByVariantType {
		out[st] = vt
	}
	return out
}()

// VariantToVersatility decodes a *ua.Variant into a message.Versatility.
// Scalar values are copied by value; a slice value is returned as the
// variant holds it, sharing its backing array. The deep copy that separates
// the two happens when the message carrying it is cloned at the queue
// boundary (message.Message.Clone).
func VariantToVersatility(v *ua.Variant) (*message.Versatility, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil variant", domain.ErrServiceResultBad)
	}
	scalar, ok := scalarByVariantType[v.Type()]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported variant type %v", domain.ErrNotSupport, v.Type())
	}
	if _, _, _, ok := message.LookupType(scalar); !ok {
		return nil, fmt.Errorf("%w: scalar type %v missing from TypeTable", domain.ErrInternalError, scalar)
	}

	isArray := v.ArrayLength() > 0 || v.ArrayDimensions() != nil
	return &message.Versatility{
		Type:        scalar,
		IsArray:     isArray,
		ArrayLength: int(v.ArrayLength()),
		Value:       v.Value(),
	}, nil
}

// VersatilityToVariant encodes a message.Versatility into a *ua.Variant,
// used by the Write and Method-input paths.
func VersatilityToVariant(v *message.Versatility) (*ua.Variant, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil versatility", domain.ErrParamInvalid)
	}
	if _, _, _, ok := message.LookupType(v.Type); !ok {
		return nil, fmt.Errorf("%w: unknown scalar type %v", domain.ErrParamInvalid, v.Type)
	}
	variant, err := ua.NewVariant(v.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrParamInvalid, err)
	}
	return variant, nil
}

// GuidString formats a 16-byte GUID as the lowercase
// 8-4-4-4-12 hex form the spec requires bit-exactly (spec §6), replacing
// edge_utils.c's self-referencing `sprintf(value, "%s…", value)` (flagged
// as undefined behavior in spec §9) with a buffered formatter.
func GuidString(guid [16]byte) string {
	return fmt.Sprintf("%08x-%04x-%04x-%02x%02x-%02x%02x%02x%02x%02x%02x",
		uint32(guid[0])<<24|uint32(guid[1])<<16|uint32(guid[2])<<8|uint32(guid[3]),
		uint16(guid[4])<<8|uint16(guid[5]),
		uint16(guid[6])<<8|uint16(guid[7]),
		guid[8], guid[9],
		guid[10], guid[11], guid[12], guid[13], guid[14], guid[15])
}

// ScalarTypeFor returns the message.ScalarType for a ua.TypeID, mirroring
// the decode direction of VariantToVersatility without requiring a full
// *ua.Variant (used by the subscription notification path, which only has
// a decoded Go value plus its ua.TypeID).
func ScalarTypeFor(t ua.TypeID) (message.ScalarType, bool) {
	st, ok := scalarByVariantType[t]
	return st, ok
}
