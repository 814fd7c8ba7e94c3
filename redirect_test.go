package authgate

import "testing"

func TestSafeReturnPath(t *testing.T) {
	cases := []struct {
		name      string
		candidate string
		want      string
	}{
		{"empty", "", "/home"},
		{"local path", "/dashboard", "/dashboard"},
		{"local path with query", "/settings?tab=mfa", "/settings?tab=mfa"},
		{"absolute url", "https://evil.example/phish", "/home"},
		{"scheme relative", "//evil.example", "/home"},
		{"backslash variant", "/\\evil.example", "/home"},
		{"relative path", "dashboard", "/home"},
		{"crlf injection", "/ok\r\nLocation: https://evil.example", "/home"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := safeReturnPath(tc.candidate, "/home"); got != tc.want {
				t.Fatalf("safeReturnPath(%q) = %q, want %q", tc.candidate, got, tc.want)
			}
		})
	}
}
