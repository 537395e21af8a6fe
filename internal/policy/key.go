package policy

// KeyPrefix namespaces every storage key written by the engines.
const KeyPrefix = "tp"

// Keys up to this many bytes are assembled in a fixed array; longer ones
// spill to a heap-sized buffer.
const inlineKeyCapacity = 128

// BuildKey derives the storage key "tp:<suffix>:<rawKey>".
func BuildKey(rawKey string, a Algorithm) string {
	suffix := a.Suffix()
	n := len(KeyPrefix) + 1 + len(suffix) + 1 + len(rawKey)

	var inline [inlineKeyCapacity]byte
	var buf []byte
	if n <= inlineKeyCapacity {
		buf = inline[:0]
	} else {
		buf = make([]byte, 0, n)
	}

	buf = append(buf, KeyPrefix...)
	buf = append(buf, ':')
	buf = append(buf, suffix...)
	buf = append(buf, ':')
	buf = append(buf, rawKey...)
	return string(buf)
}
