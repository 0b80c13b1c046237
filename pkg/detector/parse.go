package detector

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// ParseBlockNumber accepts a positive integer given as a JSON number, a
// numeric JSON string or a 0x-prefixed hex string.
func ParseBlockNumber(raw json.RawMessage) (uint64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, ErrInvalidInput
	}

	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, ErrInvalidInput
		}
		s = strings.TrimSpace(s)
		if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
			n, err := strconv.ParseUint(s[2:], 16, 64)
			if err != nil || n == 0 {
				return 0, ErrInvalidInput
			}
			return n, nil
		}
	} else {
		s = string(raw)
	}

	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		// 1e6 and 42.0 are valid JSON numbers for an integral block.
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f < 1 || f >= 1<<63 || f != float64(uint64(f)) {
			return 0, ErrInvalidInput
		}
		n = uint64(f)
	}
	if n == 0 {
		return 0, ErrInvalidInput
	}
	return n, nil
}
