package neemo

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEncode(t *testing.T, v any) []byte {
	t.Helper()
	b, err := encodeValue("f", v)
	require.NoError(t, err)
	return b
}

func TestValueCodec_RoundTrip(t *testing.T) {
	values := []any{
		nil,
		false,
		true,
		float64(0),
		float64(42),
		float64(-42),
		float64(3.25),
		float64(-0.001),
		math.Inf(1),
		math.Inf(-1),
		"",
		"hello",
		"héllo wörld",
		"with\x00nul",
		[]any{float64(1), "two", nil},
		map[string]any{"b": float64(2), "a": "one"},
	}
	for _, v := range values {
		enc := mustEncode(t, v)
		dec, err := decodeValue(enc)
		require.NoError(t, err)
		assert.Equal(t, v, dec, "round trip of %v", v)
	}
}

func TestValueCodec_NumbersOrderNumerically(t *testing.T) {
	// The classic failure of textual encodings: "10" < "9". The canonical
	// encoding must order these numerically.
	numbers := []float64{
		math.Inf(-1), -1e300, -100, -10, -9, -1, -0.5, 0, 0.5, 1, 9, 10, 100, 1e300, math.Inf(1),
	}
	for i := 1; i < len(numbers); i++ {
		a := mustEncode(t, numbers[i-1])
		b := mustEncode(t, numbers[i])
		assert.Negative(t, bytes.Compare(a, b), "%v should encode before %v", numbers[i-1], numbers[i])
		assert.Len(t, a, encodedNumberLen)
	}
}

func TestValueCodec_CrossTypeOrder(t *testing.T) {
	ordered := []any{nil, false, true, float64(-1), float64(1e308), "", "a"}
	for i := 1; i < len(ordered); i++ {
		a := mustEncode(t, ordered[i-1])
		b := mustEncode(t, ordered[i])
		assert.Negative(t, bytes.Compare(a, b), "%v should encode before %v", ordered[i-1], ordered[i])
	}
}

func TestValueCodec_StringsOrderLexicographically(t *testing.T) {
	strs := []string{"", "a", "ab", "b", "ba"}
	for i := 1; i < len(strs); i++ {
		a := mustEncode(t, strs[i-1])
		b := mustEncode(t, strs[i])
		assert.Negative(t, bytes.Compare(a, b))
	}
}

func TestValueCodec_NegativeZeroFolds(t *testing.T) {
	a := mustEncode(t, math.Copysign(0, -1))
	b := mustEncode(t, float64(0))
	assert.Equal(t, b, a, "0 and -0 must encode identically")
}

func TestValueCodec_IntegersNormalize(t *testing.T) {
	for _, v := range []any{int(7), int32(7), int64(7), uint(7), uint16(7), float32(7)} {
		n, err := normalizeValue("f", v)
		require.NoError(t, err)
		assert.Equal(t, float64(7), n, "%T", v)
	}
}

func TestValueCodec_StructuredCanonical(t *testing.T) {
	// Equal objects encode identically regardless of construction order.
	a := mustEncode(t, map[string]any{"x": float64(1), "y": "z"})
	b := mustEncode(t, map[string]any{"y": "z", "x": float64(1)})
	assert.Equal(t, a, b)

	// Structured values are not range-orderable.
	v, err := normalizeValue("f", map[string]any{"x": float64(1)})
	require.NoError(t, err)
	assert.False(t, orderable(v))
	assert.True(t, orderable("s"))
	assert.True(t, orderable(float64(1)))
	assert.True(t, orderable(nil))
}

func TestValueCodec_RejectsUnsupportedShapes(t *testing.T) {
	var encErr *EncodingError

	_, err := encodeValue("f", make(chan int))
	require.ErrorAs(t, err, &encErr)

	_, err = encodeValue("f", math.NaN())
	require.ErrorAs(t, err, &encErr)

	_, err = encodeValue("f", map[int]any{1: "x"})
	require.ErrorAs(t, err, &encErr)

	// Nested unsupported values reject the whole structure.
	_, err = encodeValue("f", []any{float64(1), make(chan int)})
	require.ErrorAs(t, err, &encErr)
}

func TestValueCodec_DecodeRejectsGarbage(t *testing.T) {
	var corrErr *CorruptionError

	_, err := decodeValue(nil)
	require.ErrorAs(t, err, &corrErr)

	_, err = decodeValue([]byte{0xEE, 1, 2})
	require.ErrorAs(t, err, &corrErr)

	_, err = decodeValue([]byte{tagNumber, 1, 2}) // short payload
	require.ErrorAs(t, err, &corrErr)

	_, err = decodeValue([]byte{tagStructured, '{', 'x'})
	require.ErrorAs(t, err, &corrErr)
}
