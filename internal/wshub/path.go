package wshub

import (
	"net/url"
	"strings"
)

// Normalize applies the manager's path normalization rule: URL-decode
// the input, then trim a single trailing '/' unless the
// result would be empty, in which case yield "/". The same rule is
// applied on both the store and lookup sides, which is why add/remove/
// try-get all route through this one function rather than each doing
// their own ad-hoc trimming.
func Normalize(path string) string {
	decoded, err := url.PathUnescape(path)
	if err != nil {
		decoded = path
	}

	trimmed := strings.TrimSuffix(decoded, "/")
	if trimmed == "" {
		return "/"
	}
	return trimmed
}

// ValidatePath checks the path grammar: non-empty, begins with '/', and
// contains neither '?' nor '#'. Manager.TryGet applies it before lookup;
// Manager.Add and Manager.Remove do not call it and only normalize the
// path they are given.
func ValidatePath(path string) bool {
	if path == "" {
		return false
	}
	if !strings.HasPrefix(path, "/") {
		return false
	}
	if strings.ContainsAny(path, "?#") {
		return false
	}
	return true
}
