package codec

import (
	"testing"

	"github.com/gopcua/opcua/ua"

	"github.com/nexus-edge/opcua-edge-adapter/internal/message"
)

func TestVariantToVersatilityRoundTripsScalarTypes(t *testing.T) {
	cases := []struct {
		name  string
		value interface{}
		want  message.ScalarType
	}{
		{"bool", true, message.TypeBoolean},
		{"int32", int32(42), message.TypeInt32},
		{"uint16", uint16(7), message.TypeUInt16},
		{"double", float64(3.5), message.TypeDouble},
		{"string", "hello", message.TypeString},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := ua.NewVariant(tc.value)
			if err != nil {
				t.Fatalf("ua.NewVariant: %v", err)
			}
			vers, err := VariantToVersatility(v)
			if err != nil {
				t.Fatalf("VariantToVersatility: %v", err)
			}
			if vers.Type != tc.want {
				t.Fatalf("got scalar type %v, want %v", vers.Type, tc.want)
			}
			if vers.IsArray {
				t.Fatalf("expected scalar, got IsArray=true")
			}
			if vers.Value != tc.value {
				t.Fatalf("got value %v, want %v", vers.Value, tc.value)
			}
		})
	}
}

func TestVariantToVersatilityRejectsNil(t *testing.T) {
	if _, err := VariantToVersatility(nil); err == nil {
		t.Fatal("expected error for nil variant")
	}
}

func TestVersatilityToVariantRejectsNil(t *testing.T) {
	if _, err := VersatilityToVariant(nil); err == nil {
		t.Fatal("expected error for nil versatility")
	}
}

func TestVersatilityToVariantRejectsUnknownScalarType(t *testing.T) {
	v := &message.Versatility{Type: message.ScalarType(255), Value: 1}
	if _, err := VersatilityToVariant(v); err == nil {
		t.Fatal("expected error for unknown scalar type")
	}
}

func TestVersatilityToVariantEncodesValue(t *testing.T) {
	v := &message.Versatility{Type: message.TypeInt32, Value: int32(99)}
	variant, err := VersatilityToVariant(v)
	if err != nil {
		t.Fatalf("VersatilityToVariant: %v", err)
	}
	if variant.Value() != int32(99) {
		t.Fatalf("got %v, want 99", variant.Value())
	}
}

func TestScalarTypeForKnownAndUnknown(t *testing.T) {
	if st, ok := ScalarTypeFor(ua.TypeIDInt32); !ok || st != message.TypeInt32 {
		t.Fatalf("expected TypeInt32 for TypeIDInt32, got %v ok=%v", st, ok)
	}
	if _, ok := ScalarTypeFor(ua.TypeID(9999)); ok {
		t.Fatal("expected unknown ua.TypeID to report not-ok")
	}
}

func TestGuidStringFormatsLowercaseHyphenated(t *testing.T) {
	guid := [16]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F, 0x10}
	want := "01020304-0506-0708-090a-0b0c0d0e0f10"
	if got := GuidString(guid); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
