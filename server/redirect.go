package server

import (
	"net/url"
	"regexp"
	"strings"
)

// RegexPatternPrefix marks a registered redirect pattern as a regular
// expression matched against the whole supplied redirect_uri.
const RegexPatternPrefix = "regex:"

// MatchRedirectURI reports whether supplied is allowed by a client's
// registered redirect pattern.
//
// A plain pattern is a URL: scheme and host must be equal and the pattern's
// path must be a prefix of the supplied path on a segment boundary, so
// "https://app.example/cb" allows "https://app.example/cb/done" but not
// "https://app.example/cbx". A "regex:" pattern must match the whole
// supplied URI. Fragments and userinfo are always rejected.
func MatchRedirectURI(pattern, supplied string) bool {
	if pattern == "" || supplied == "" {
		return false
	}

	suppliedURL, err := url.Parse(supplied)
	if err != nil || !suppliedURL.IsAbs() || suppliedURL.Host == "" {
		return false
	}
	if suppliedURL.Fragment != "" || strings.Contains(supplied, "#") || suppliedURL.User != nil {
		return false
	}

	if expr, ok := strings.CutPrefix(pattern, RegexPatternPrefix); ok {
		re, err := regexp.Compile(`^(?:` + expr + `)$`)
		if err != nil {
			return false
		}
		return re.MatchString(supplied)
	}

	registered, err := url.Parse(pattern)
	if err != nil || !registered.IsAbs() {
		return false
	}
	if !strings.EqualFold(registered.Scheme, suppliedURL.Scheme) {
		return false
	}
	if !strings.EqualFold(registered.Host, suppliedURL.Host) {
		return false
	}

	return pathHasPrefix(suppliedURL.EscapedPath(), registered.EscapedPath())
}

// ValidateRedirectPattern checks that a pattern can be registered
func ValidateRedirectPattern(pattern string) error {
	if pattern == "" {
		return ErrInvalidRequest("redirect_uri pattern is required")
	}
	if expr, ok := strings.CutPrefix(pattern, RegexPatternPrefix); ok {
		if _, err := regexp.Compile(expr); err != nil {
			return ErrInvalidRequest("redirect_uri pattern is not a valid regular expression")
		}
		return nil
	}
	u, err := url.Parse(pattern)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return ErrInvalidRequest("redirect_uri pattern must be an absolute URL")
	}
	if u.Fragment != "" || u.User != nil {
		return ErrInvalidRequest("redirect_uri pattern must not contain a fragment or userinfo")
	}
	switch strings.ToLower(u.Scheme) {
	case "javascript", "data", "file", "vbscript":
		return ErrInvalidRequest("redirect_uri pattern uses a forbidden scheme")
	}
	return nil
}

func pathHasPrefix(path, prefix string) bool {
	if prefix == "" || prefix == "/" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	if len(path) == len(prefix) || strings.HasSuffix(prefix, "/") {
		return true
	}
	return path[len(prefix)] == '/'
}
