package processor

import (
	"encoding/json"
	"strconv"
	"strings"
)

// parseLiteral attempts to parse s as a number, boolean, list, or dict
// literal, as part of value pre-processing. A tuple literal
// "(1, 2, 3)" is accepted and converted to an ordered sequence, same as a
// list. Returns (nil, false) if s is none of these.
func parseLiteral(s string) (any, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, false
	}

	switch trimmed {
	case "true", "True":
		return true, true
	case "false", "False":
		return false, true
	}

	if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return i, true
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f, true
	}

	if strings.HasPrefix(trimmed, "(") && strings.HasSuffix(trimmed, ")") {
		trimmed = "[" + trimmed[1:len(trimmed)-1] + "]"
	}

	if (strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) ||
		(strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v, true
		}
	}

	return nil, false
}
