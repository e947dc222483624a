package masking

import "strings"

const maskToken = "****"

// MaskSecret keeps the last four characters and any prefix up to the last
// underscore, so "txn_abc123456" becomes "txn_****3456".
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	prefix, remainder := splitPrefix(trimmed)
	if len(remainder) <= 4 {
		return prefix + maskToken
	}

	return prefix + maskToken + remainder[len(remainder)-4:]
}

// MaskFields returns a copy of metadata where string values under the
// given keys are masked. Nested maps are walked with the same key set.
func MaskFields(metadata map[string]any, keys ...string) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}

	sensitive := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		sensitive[strings.ToLower(strings.TrimSpace(key))] = struct{}{}
	}
	return maskFields(metadata, sensitive)
}

func maskFields(input map[string]any, sensitive map[string]struct{}) map[string]any {
	out := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		_, hide := sensitive[strings.ToLower(trimmedKey)]
		out[trimmedKey] = maskValue(value, hide, sensitive)
	}
	return out
}

func maskValue(value any, hide bool, sensitive map[string]struct{}) any {
	switch cast := value.(type) {
	case string:
		if hide {
			return MaskSecret(cast)
		}
		return cast
	case *string:
		if cast == nil {
			return nil
		}
		return maskValue(*cast, hide, sensitive)
	case map[string]any:
		return maskFields(cast, sensitive)
	case []any:
		items := make([]any, 0, len(cast))
		for _, item := range cast {
			items = append(items, maskValue(item, hide, sensitive))
		}
		return items
	default:
		return value
	}
}

func splitPrefix(value string) (string, string) {
	lastUnderscore := strings.LastIndex(value, "_")
	if lastUnderscore == -1 || lastUnderscore == len(value)-1 {
		return "", value
	}
	return value[:lastUnderscore+1], value[lastUnderscore+1:]
}
