package neemo

// Composite index keys: esc(field) 0x00 esc(canonicalValue) 0x00
// esc(docKey). esc replaces 0x00 with 0x00 0xFF, which preserves
// lexicographic order and makes the bare 0x00 terminator unambiguous.
// All three components are escaped, so the mapping from (field, value,
// docKey) to key bytes is injective even when values or document keys
// contain 0x00 or 0xFF.

const keyTerm = 0x00

func appendEscaped(buf, raw []byte) []byte {
	for _, b := range raw {
		if b == 0x00 {
			buf = append(buf, 0x00, 0xFF)
		} else {
			buf = append(buf, b)
		}
	}
	return buf
}

// takeEscaped splits b at the first terminator, returning the unescaped
// component and the remainder past the terminator. ok is false when no
// terminator is present.
func takeEscaped(b []byte) (component, rest []byte, ok bool) {
	var out []byte
	for i := 0; i < len(b); i++ {
		if b[i] != 0x00 {
			continue
		}
		if i+1 < len(b) && b[i+1] == 0xFF {
			out = append(out, b[:i]...)
			out = append(out, 0x00)
			b = b[i+2:]
			i = -1
			continue
		}
		out = append(out, b[:i]...)
		return out, b[i+1:], true
	}
	return nil, nil, false
}

// appendIndexKey builds the full composite key for one index entry.
// The document key suffix keeps entries distinct when several documents
// share a (field, value) pair; without it, later inserts would silently
// overwrite earlier entries and equality queries would return at most one
// document per value. The suffix is escaped like the other components:
// a raw suffix would make entry(f, "ab\x00c", "d") byte-identical to
// entry(f, "ab", "\xffc\x00d"), collapsing two live documents onto one
// physical entry.
func appendIndexKey(buf []byte, field string, canonicalValue []byte, docKey string) []byte {
	buf = appendEscaped(buf, []byte(field))
	buf = append(buf, keyTerm)
	buf = appendEscaped(buf, canonicalValue)
	buf = append(buf, keyTerm)
	buf = appendEscaped(buf, []byte(docKey))
	return buf
}

// equalityPrefix is the shared prefix of every entry for (field, value).
func equalityPrefix(field string, canonicalValue []byte) []byte {
	var buf []byte
	buf = appendEscaped(buf, []byte(field))
	buf = append(buf, keyTerm)
	buf = appendEscaped(buf, canonicalValue)
	buf = append(buf, keyTerm)
	return buf
}

// fieldPrefix is the shared prefix of every entry for a field.
func fieldPrefix(field string) []byte {
	var buf []byte
	buf = appendEscaped(buf, []byte(field))
	buf = append(buf, keyTerm)
	return buf
}

// splitIndexKey decomposes a composite key back into its components.
func splitIndexKey(key []byte) (field string, canonicalValue []byte, docKey string, err error) {
	f, rest, ok := takeEscaped(key)
	if !ok {
		return "", nil, "", corruptErrf(key, 0, nil, "index key missing field terminator")
	}
	cv, rest, ok := takeEscaped(rest)
	if !ok {
		return "", nil, "", corruptErrf(key, len(key)-len(rest), nil, "index key missing value terminator")
	}
	dk, ok := unescape(rest)
	if !ok {
		return "", nil, "", corruptErrf(key, len(key)-len(rest), nil, "index key with bare terminator in document key")
	}
	return string(f), cv, string(dk), nil
}

// unescape reverses appendEscaped over a whole component. ok is false when
// a bare 0x00 appears; only a terminator may be bare, and the final
// component has none.
func unescape(b []byte) (raw []byte, ok bool) {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		c := b[i]
		if c == 0x00 {
			if i+1 >= len(b) || b[i+1] != 0xFF {
				return nil, false
			}
			i++
		}
		out = append(out, c)
	}
	return out, true
}
