package authgate

import "strings"

// safeReturnPath accepts only local paths as post-login destinations and
// falls back to the configured default otherwise. Anything that could be
// interpreted as scheme-relative or absolute ("//evil", "https://evil",
// "\\evil") is rejected, closing the open-redirect hole.
func safeReturnPath(candidate, fallback string) string {
	if candidate == "" {
		return fallback
	}
	if !strings.HasPrefix(candidate, "/") {
		return fallback
	}
	if strings.HasPrefix(candidate, "//") || strings.HasPrefix(candidate, "/\\") {
		return fallback
	}
	if strings.ContainsAny(candidate, "\r\n") {
		return fallback
	}
	return candidate
}
