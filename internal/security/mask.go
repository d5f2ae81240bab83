package security

import "strings"

var sensitiveKeys = []string{"password", "token", "secret", "pin", "passkey", "authorization"}

// MaskPhone keeps the country prefix and last three digits: 254712345678 -> 2547*****678.
func MaskPhone(phone string) string {
	if len(phone) <= 7 {
		return strings.Repeat("*", len(phone))
	}
	return phone[:4] + strings.Repeat("*", len(phone)-7) + phone[len(phone)-3:]
}

// MaskSensitive returns a copy of fields with secret-looking values redacted.
func MaskSensitive(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if isSensitive(k) {
			out[k] = "***"
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = MaskSensitive(nested)
			continue
		}
		out[k] = v
	}
	return out
}

func isSensitive(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}
