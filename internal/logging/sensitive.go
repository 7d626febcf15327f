// Package logging provides logging utilities for the engine.
package logging

import "strings"

// SensitiveFields contains metadata keys whose values must not reach logs.
var SensitiveFields = map[string]bool{
	"password":      true,
	"passwd":        true,
	"secret":        true,
	"token":         true,
	"api_key":       true,
	"apikey":        true,
	"access_token":  true,
	"refresh_token": true,
	"private_key":   true,
	"client_secret": true,
	"credentials":   true,
	"authorization": true,
	"bearer":        true,
	"jwt":           true,
	"session_id":    true,
	"cookie":        true,
	"otp":           true,
	"mfa_code":      true,
	"recovery_code": true,
}

// MaskedValue is the string used to replace sensitive values.
const MaskedValue = "[REDACTED]"

// IsSensitiveField reports whether a field name should be masked.
func IsSensitiveField(name string) bool {
	lower := strings.ToLower(name)
	if SensitiveFields[lower] {
		return true
	}
	for sensitive := range SensitiveFields {
		if strings.Contains(lower, sensitive) {
			return true
		}
	}
	return false
}

// MaskMetadata returns a copy of metadata with sensitive values redacted.
// The input map is never modified.
func MaskMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	masked := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if IsSensitiveField(k) {
			masked[k] = MaskedValue
		} else {
			masked[k] = v
		}
	}
	return masked
}
