package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Bytes returns the hex-encoded SHA-256 digest of raw payload bytes.
func Bytes(content []byte) string {
	digest := sha256.Sum256(content)
	return hex.EncodeToString(digest[:])
}

// Records returns a content hash over a record batch that is stable under
// field reordering: keys are sorted per record and numbers are rendered in a
// fixed format before hashing, so two deliveries of the same logical payload
// produce the same digest.
func Records(records []map[string]any) string {
	hasher := sha256.New()
	for i, record := range records {
		if i > 0 {
			hasher.Write([]byte{'\n'})
		}
		hasher.Write([]byte(canonicalRecord(record)))
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

func canonicalRecord(record map[string]any) string {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+canonicalValue(record[k]))
	}
	return strings.Join(parts, ";")
}

func canonicalValue(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case bool:
		return strconv.FormatBool(value)
	case float64:
		return strconv.FormatFloat(value, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(value), 'g', -1, 64)
	case int:
		return strconv.FormatInt(int64(value), 10)
	case int64:
		return strconv.FormatInt(value, 10)
	case []any:
		parts := make([]string, 0, len(value))
		for _, item := range value {
			parts = append(parts, canonicalValue(item))
		}
		return "[" + strings.Join(parts, ",") + "]"
	case map[string]any:
		return "{" + canonicalRecord(value) + "}"
	case json.Number:
		if f, err := value.Float64(); err == nil {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
		return value.String()
	default:
		return fmt.Sprintf("%v", value)
	}
}
