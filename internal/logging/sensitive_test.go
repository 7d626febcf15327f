package logging

import "testing"

func TestIsSensitiveField(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"password", true},
		{"PASSWORD", true},
		{"user_password", true},
		{"api_key", true},
		{"refresh_token", true},
		{"mfa_code", true},
		{"email", false},
		{"user_agent", false},
		{"attempts", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSensitiveField(tt.name); got != tt.want {
				t.Errorf("IsSensitiveField(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestMaskMetadata(t *testing.T) {
	input := map[string]any{
		"password": "hunter2",
		"email":    "alice@example.com",
		"attempts": 4,
	}

	masked := MaskMetadata(input)

	if masked["password"] != MaskedValue {
		t.Errorf("password = %v, want %s", masked["password"], MaskedValue)
	}
	if masked["email"] != "alice@example.com" {
		t.Errorf("email = %v, should pass through", masked["email"])
	}
	if masked["attempts"] != 4 {
		t.Errorf("attempts = %v, should pass through", masked["attempts"])
	}

	// The input map must stay untouched.
	if input["password"] != "hunter2" {
		t.Errorf("input map was mutated: %v", input["password"])
	}
}

func TestMaskMetadata_Nil(t *testing.T) {
	if got := MaskMetadata(nil); got != nil {
		t.Errorf("MaskMetadata(nil) = %v, want nil", got)
	}
}
