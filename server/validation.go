package server

import (
	"fmt"
	"net"
	"net/url"

	"github.com/giantswarm/player-oidc/internal/util"
)

const (
	oauthSecurityBestPracticesURL = "https://datatracker.ietf.org/doc/html/rfc9700#section-2"
)

// validateHTTPSEnforcement requires an https issuer. Plain http is accepted
// on localhost (with a warning) and elsewhere only with AllowInsecureHTTP.
func (s *Server) validateHTTPSEnforcement() error {
	if s.Config.Issuer == "" {
		return fmt.Errorf("issuer is required")
	}

	issuerURL, err := url.Parse(s.Config.Issuer)
	if err != nil {
		return fmt.Errorf("invalid issuer URL: %w", err)
	}
	if issuerURL.Host == "" {
		return fmt.Errorf("issuer URL must be absolute: %s", s.Config.Issuer)
	}
	if issuerURL.RawQuery != "" || issuerURL.Fragment != "" {
		return fmt.Errorf("issuer URL must not contain a query or fragment")
	}

	switch issuerURL.Scheme {
	case "https":
		return nil
	case "http":
	default:
		return fmt.Errorf("invalid issuer URL scheme: %s (must be http or https)", issuerURL.Scheme)
	}

	hostname := issuerURL.Hostname()
	if isLocalhostHostname(hostname) {
		if !s.Config.AllowInsecureHTTP {
			s.Logger.Warn("⚠️  DEVELOPMENT WARNING: Running OAuth over HTTP on localhost",
				"issuer", s.Config.Issuer,
				"risk", "Passwords and tokens exposed on the local network",
				"to_suppress", "Set AllowInsecureHTTP=true in Config",
				"learn_more", oauthSecurityBestPracticesURL)
		}
		return nil
	}

	if !s.Config.AllowInsecureHTTP {
		return fmt.Errorf(
			"SECURITY ERROR: Issuer must use HTTPS in production (got %s://%s). "+
				"To run on localhost for development, set AllowInsecureHTTP=true",
			issuerURL.Scheme,
			hostname,
		)
	}

	s.Logger.Error("🚨 CRITICAL SECURITY WARNING: Running OAuth server over HTTP",
		"issuer", s.Config.Issuer,
		"hostname", hostname,
		"risk", "Player passwords and tokens exposed to network sniffing",
		"action_required", "Switch to HTTPS immediately",
		"learn_more", oauthSecurityBestPracticesURL)

	return nil
}

// isLocalhostHostname reports whether hostname is localhost, 0.0.0.0 or a
// loopback address (the whole 127.0.0.0/8 range and ::1).
func isLocalhostHostname(hostname string) bool {
	if hostname == "localhost" || hostname == "0.0.0.0" {
		return true
	}

	clean := hostname
	if len(hostname) > 2 && hostname[0] == '[' && hostname[len(hostname)-1] == ']' {
		clean = hostname[1 : len(hostname)-1]
	}

	if ip := net.ParseIP(clean); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// validateScope requires a non-empty scope made of supported values and
// returns it normalized.
func (s *Server) validateScope(scope string) (string, error) {
	scopes := util.SplitScope(scope)
	if len(scopes) == 0 {
		return "", ErrInvalidScope("scope is required")
	}
	for _, sc := range scopes {
		if !s.Config.isSupportedScope(sc) {
			return "", ErrInvalidScope(fmt.Sprintf("unsupported scope %q", util.SafeTruncate(sc, 32)))
		}
	}
	return util.NormalizeScope(scope), nil
}
