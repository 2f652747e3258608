// Package masking redacts payment references and contact details before
// they are written to audit rows or log lines.
package masking

import "strings"

const maskToken = "****"

// SensitiveKeys are metadata and log field keys whose values are never
// stored in clear.
var SensitiveKeys = []string{"receipt_ref", "reference", "account_number", "api_key", "email"}

// MaskSecret keeps an optional "xxx_" style prefix and the last four
// characters: "eft_99991234" becomes "eft_****1234".
func MaskSecret(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	prefix, rest := "", value
	if i := strings.LastIndexByte(value, '_'); i >= 0 && i < len(value)-1 {
		prefix, rest = value[:i+1], value[i+1:]
	}
	if len(rest) <= 4 {
		return prefix + maskToken
	}
	return prefix + maskToken + rest[len(rest)-4:]
}

// MaskEmail keeps the first letter of the mailbox and the domain so support
// can still tell which customer a row belongs to.
func MaskEmail(value string) string {
	value = strings.TrimSpace(value)
	at := strings.LastIndexByte(value, '@')
	if at <= 0 {
		return MaskSecret(value)
	}
	return value[:1] + maskToken + value[at:]
}

// Mask picks the masking rule for key.
func Mask(key, value string) string {
	if strings.EqualFold(key, "email") {
		return MaskEmail(value)
	}
	return MaskSecret(value)
}

// IsSensitive reports whether key is one of SensitiveKeys, ignoring case.
func IsSensitive(key string) bool {
	for _, k := range SensitiveKeys {
		if strings.EqualFold(k, strings.TrimSpace(key)) {
			return true
		}
	}
	return false
}

// MaskKeys copies input, masking string values under the given keys at any
// depth. Empty keys are dropped.
func MaskKeys(input map[string]any, keys ...string) map[string]any {
	if len(input) == 0 {
		return nil
	}
	sensitive := make(map[string]bool, len(keys))
	for _, k := range keys {
		sensitive[strings.ToLower(k)] = true
	}
	return maskMap(input, sensitive)
}

func maskMap(input map[string]any, sensitive map[string]bool) map[string]any {
	out := make(map[string]any, len(input))
	for key, value := range input {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		switch v := value.(type) {
		case map[string]any:
			out[key] = maskMap(v, sensitive)
		case string:
			if sensitive[strings.ToLower(key)] {
				v = Mask(key, v)
			}
			out[key] = v
		default:
			out[key] = value
		}
	}
	return out
}
