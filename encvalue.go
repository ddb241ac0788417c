package neemo

import (
	"encoding/binary"
	"encoding/json"
	"math"
)

// Canonical value encoding. The first byte is a type tag establishing the
// cross-type order null < false < true < number < string < structured; the
// payload is order-preserving within the type for scalars. Structured
// values (arrays, objects) carry canonical JSON and support equality only.
const (
	tagNull       = 0x05
	tagFalse      = 0x10
	tagTrue       = 0x11
	tagNumber     = 0x20
	tagString     = 0x30
	tagStructured = 0x40
)

const encodedNumberLen = 1 + 8

// normalizeValue maps a caller-supplied value onto the supported value
// domain (nil, bool, float64, string, []any, map[string]any), recursing
// into structured values. Unsupported shapes yield an EncodingError.
func normalizeValue(field string, v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return v, nil
	case float64:
		if math.IsNaN(v) {
			return nil, encodingErrf(field, v, "NaN is not a supported value")
		}
		if v == 0 {
			return float64(0), nil // fold -0 so equal numbers encode equally
		}
		return v, nil
	case float32:
		return normalizeValue(field, float64(v))
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, encodingErrf(field, v, "unparsable number %q", string(v))
		}
		return f, nil
	case string:
		return v, nil
	case []any:
		out := make([]any, len(v))
		for i, el := range v {
			nel, err := normalizeValue(field, el)
			if err != nil {
				return nil, err
			}
			out[i] = nel
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, el := range v {
			nel, err := normalizeValue(field, el)
			if err != nil {
				return nil, err
			}
			out[k] = nel
		}
		return out, nil
	default:
		return nil, encodingErrf(field, v, "unsupported value of type %T", v)
	}
}

// orderable reports whether a normalized value has an order-preserving
// encoding, i.e. may participate in range queries.
func orderable(v any) bool {
	switch v.(type) {
	case nil, bool, float64, string:
		return true
	default:
		return false
	}
}

// appendValue appends the canonical encoding of a normalized value.
func appendValue(buf []byte, field string, v any) ([]byte, error) {
	switch v := v.(type) {
	case nil:
		return append(buf, tagNull), nil
	case bool:
		if v {
			return append(buf, tagTrue), nil
		}
		return append(buf, tagFalse), nil
	case float64:
		buf = append(buf, tagNumber)
		return appendOrderedFloat(buf, v), nil
	case string:
		buf = append(buf, tagString)
		return append(buf, v...), nil
	case []any, map[string]any:
		data, err := json.Marshal(v) // canonical: object keys sort lexicographically
		if err != nil {
			return nil, encodingErrf(field, v, "structured value: %v", err)
		}
		buf = append(buf, tagStructured)
		return append(buf, data...), nil
	default:
		return nil, encodingErrf(field, v, "unsupported value of type %T", v)
	}
}

// encodeValue is appendValue for callers without a buffer to reuse.
func encodeValue(field string, v any) ([]byte, error) {
	v, err := normalizeValue(field, v)
	if err != nil {
		return nil, err
	}
	return appendValue(nil, field, v)
}

// decodeValue is the inverse of appendValue for values it produced.
func decodeValue(b []byte) (any, error) {
	if len(b) == 0 {
		return nil, corruptErrf(b, 0, nil, "empty canonical value")
	}
	tag, payload := b[0], b[1:]
	switch tag {
	case tagNull:
		if len(payload) != 0 {
			return nil, corruptErrf(b, 1, nil, "null value with payload")
		}
		return nil, nil
	case tagFalse:
		if len(payload) != 0 {
			return nil, corruptErrf(b, 1, nil, "boolean value with payload")
		}
		return false, nil
	case tagTrue:
		if len(payload) != 0 {
			return nil, corruptErrf(b, 1, nil, "boolean value with payload")
		}
		return true, nil
	case tagNumber:
		if len(payload) != 8 {
			return nil, corruptErrf(b, 1, nil, "number value with %d payload bytes, wanted 8", len(payload))
		}
		return decodeOrderedFloat(payload), nil
	case tagString:
		return string(payload), nil
	case tagStructured:
		var v any
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, corruptErrf(b, 1, err, "structured value")
		}
		return v, nil
	default:
		return nil, corruptErrf(b, 0, nil, "unknown value tag 0x%02x", tag)
	}
}

// appendOrderedFloat appends the big-endian IEEE 754 bits with the
// sign-magnitude flip: non-negative values get the sign bit set,
// negative values have all bits inverted. Byte order then equals
// numeric order, which a textual encoding cannot provide ("10" < "9").
func appendOrderedFloat(buf []byte, f float64) []byte {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], bits)
	return append(buf, tmp[:]...)
}

func decodeOrderedFloat(b []byte) float64 {
	bits := binary.BigEndian.Uint64(b)
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits)
}
