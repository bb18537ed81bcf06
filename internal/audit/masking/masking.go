package masking

import "strings"

const maskToken = "****"

var sensitiveKeys = []string{"email", "phone", "token", "address"}

// MaskValue redacts a value while keeping a short suffix for auditing.
func MaskValue(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskSensitive returns a copy of metadata with string values under
// personal-data keys redacted. Nested maps are walked.
func MaskSensitive(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}

	out := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		switch cast := value.(type) {
		case map[string]any:
			out[trimmedKey] = MaskSensitive(cast)
		case string:
			if isSensitive(trimmedKey) {
				out[trimmedKey] = MaskValue(cast)
			} else {
				out[trimmedKey] = cast
			}
		default:
			out[trimmedKey] = value
		}
	}
	return out
}

func isSensitive(key string) bool {
	key = strings.ToLower(key)
	for _, needle := range sensitiveKeys {
		if strings.Contains(key, needle) {
			return true
		}
	}
	return false
}
