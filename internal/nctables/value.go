package nctables

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// parseLiteral interprets s as a stringified list or map literal. The server
// stores complex cell contents this way, sometimes with single quotes.
// Returns the parsed value, or s unchanged when the string is not a literal
// or does not parse. This path never fails.
func parseLiteral(s string) any {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || (trimmed[0] != '[' && trimmed[0] != '{') {
		return s
	}

	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
		return v
	}
	// Python-style repr with single quotes. Only safe to rewrite when the
	// literal contains no double quotes of its own.
	if !strings.Contains(trimmed, `"`) {
		requoted := strings.ReplaceAll(trimmed, "'", `"`)
		if err := json.Unmarshal([]byte(requoted), &v); err == nil {
			return v
		}
	}
	return s
}

// decodeCell parses literal strings and resolves select-column option ids to
// their labels. Unknown option ids pass through unchanged, and a resolved
// label is terminal: running the result through decodeCell again returns it
// as-is because labels are not numeric option ids.
func decodeCell(v any, columnID int64, options map[int64]map[int64]string) any {
	if s, ok := v.(string); ok {
		v = parseLiteral(s)
	}

	opts, ok := options[columnID]
	if !ok {
		return v
	}

	var id int64
	switch x := v.(type) {
	case float64:
		if x != math.Trunc(x) {
			return v
		}
		id = int64(x)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return v
		}
		id = n
	default:
		return v
	}

	if label, ok := opts[id]; ok {
		return label
	}
	return v
}
