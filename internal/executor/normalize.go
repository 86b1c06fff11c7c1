package executor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sentinela-io/sentinela/internal/monitordef"
)

// isoMillis is the timestamp format issue data is normalized to
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// NormalizeIssueData converts an issue data entry into a JSON-storable
// form: timestamps become ISO strings, primitives pass through and
// anything else is flattened to its string form
func NormalizeIssueData(data monitordef.IssueData) monitordef.IssueData {
	normalized := make(monitordef.IssueData, len(data))
	for key, value := range data {
		normalized[key] = normalizeValue(value)
	}
	return normalized
}

func normalizeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return v
	case time.Time:
		return v.UTC().Format(isoMillis)
	case *time.Time:
		if v == nil {
			return nil
		}
		return v.UTC().Format(isoMillis)
	case map[string]interface{}:
		nested := make(map[string]interface{}, len(v))
		for key, item := range v {
			nested[key] = normalizeValue(item)
		}
		return nested
	case []interface{}:
		items := make([]interface{}, len(v))
		for i, item := range v {
			items[i] = normalizeValue(item)
		}
		return items
	default:
		return fmt.Sprint(v)
	}
}
