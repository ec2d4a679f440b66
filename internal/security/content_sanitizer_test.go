package security

import "testing"

func TestTextSanitizer_Sanitize(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Jane Doe", "Jane Doe"},
		{"trim", "  Jane  ", "Jane"},
		{"bold", "<b>Jane</b> Doe", "Jane Doe"},
		{"script", "<script>alert(1)</script>Jane", "Jane"},
		{"ampersand", "Tom & Jerry", "Tom & Jerry"},
		{"event attr", `<img src=x onerror="alert(1)">Jane`, "Jane"},
		{"japanese", "山田 太郎", "山田 太郎"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTextSanitizer_Idempotent(t *testing.T) {
	s := NewTextSanitizer()
	input := `<a href="javascript:alert(1)">Shop</a> Owner`
	first := s.Sanitize(input)
	if second := s.Sanitize(first); second != first {
		t.Errorf("Sanitize is not idempotent: %q -> %q", first, second)
	}
}

func TestTextSanitizerInterface(t *testing.T) {
	var _ TextSanitizer = NewTextSanitizer()
}
