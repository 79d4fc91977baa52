package consensus

import (
	"fmt"
	"strconv"
	"strings"
)

// Tag is the literal first segment of a PoW consensus field.
const Tag = "PoW"

const fieldCount = 4

// Fields is the parsed form of a PoW consensus byte string:
// "PoW:<difficulty>:<nonce>:<time>".
type Fields struct {
	Difficulty uint8
	NonceASCII []byte
	Time       float64
}

// IsPoWBlock reports whether a raw consensus field's first colon-separated
// segment is the PoW tag. Any other first segment denotes a non-PoW,
// consensus-boundary block. Only the first segment is examined, so a
// field with fewer than four segments still counts as PoW if it starts
// with the tag.
func IsPoWBlock(raw []byte) bool {
	idx := indexByte(raw, ':')
	if idx < 0 {
		return string(raw) == Tag
	}
	return string(raw[:idx]) == Tag
}

// ParseFields decodes a consensus byte string into its four segments.
// Any malformed input returns an error; callers must turn that into a
// false verification result rather than propagating it.
func ParseFields(raw []byte) (Fields, error) {
	parts := strings.SplitN(string(raw), ":", fieldCount)
	if len(parts) != fieldCount {
		return Fields{}, fmt.Errorf("consensus: expected %d colon-separated segments, got %d", fieldCount, len(parts))
	}
	if parts[0] != Tag {
		return Fields{}, fmt.Errorf("consensus: not a PoW block (tag %q)", parts[0])
	}
	difficulty, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return Fields{}, fmt.Errorf("consensus: invalid difficulty %q: %w", parts[1], err)
	}
	if _, err := strconv.ParseUint(parts[2], 10, 64); err != nil {
		return Fields{}, fmt.Errorf("consensus: invalid nonce %q: %w", parts[2], err)
	}
	t, err := strconv.ParseFloat(parts[3], 64)
	if err != nil {
		return Fields{}, fmt.Errorf("consensus: invalid time %q: %w", parts[3], err)
	}
	return Fields{
		Difficulty: uint8(difficulty),
		NonceASCII: []byte(parts[2]),
		Time:       t,
	}, nil
}

// SerializeFields renders a PoW consensus field back to wire format.
func SerializeFields(difficulty uint8, nonceASCII []byte, startTime float64) []byte {
	return []byte(fmt.Sprintf("%s:%d:%s:%s", Tag, difficulty, nonceASCII, formatTime(startTime)))
}

func formatTime(t float64) string {
	return strconv.FormatFloat(t, 'f', -1, 64)
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
