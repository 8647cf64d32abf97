// Package security enforces the URL allowlist for remote-access tools.
// Disabled policies allow everything; enabled policies allow only what the
// lists name, so an enabled policy with empty lists blocks all URLs.
package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/ensemble-ai/ensemble/pkg/config"
	"github.com/ensemble-ai/ensemble/pkg/logger"
)

// URLBlockedError reports a URL rejected by the policy. Tools surface it
// as a recoverable error string.
type URLBlockedError struct {
	URL    string
	Reason string
}

func (e *URLBlockedError) Error() string {
	return fmt.Sprintf("URL blocked: %s (%s)", e.URL, e.Reason)
}

// Policy is the compiled allowlist. Immutable after construction.
type Policy struct {
	enabled            bool
	allowDomains       []string
	allowNets          []*net.IPNet
	allowLocalhost     bool
	logBlockedAttempts bool
}

// NewPolicy compiles the url_security settings. Malformed CIDR entries are
// skipped with a warning.
func NewPolicy(settings config.URLSecuritySettings) *Policy {
	p := &Policy{
		enabled:            settings.Enabled,
		allowLocalhost:     settings.AllowLocalhost,
		logBlockedAttempts: settings.LogBlockedAttempts,
	}

	for _, domain := range settings.AllowDomains {
		p.allowDomains = append(p.allowDomains, strings.ToLower(strings.TrimSpace(domain)))
	}

	for _, cidr := range settings.AllowIPs {
		cidr = strings.TrimSpace(cidr)
		if !strings.Contains(cidr, "/") {
			// Bare IPs are treated as single-host ranges.
			if strings.Contains(cidr, ":") {
				cidr += "/128"
			} else {
				cidr += "/32"
			}
		}
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			logger.GetLogger().Warn("skipping malformed allow_ips entry", "entry", cidr, "error", err)
			continue
		}
		p.allowNets = append(p.allowNets, ipNet)
	}

	return p
}

// Validate checks rawURL against the policy. A nil return means allowed.
func (p *Policy) Validate(rawURL string) error {
	if !p.enabled {
		return nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return p.blocked(rawURL, "malformed URL")
	}

	if len(p.allowDomains) == 0 && len(p.allowNets) == 0 && !p.allowLocalhost {
		return p.blocked(rawURL, "no allow list is configured")
	}

	host := strings.ToLower(parsed.Hostname())

	if isLocalhost(host) {
		if p.allowLocalhost {
			return nil
		}
		return p.blocked(rawURL, "localhost not allowed")
	}

	if ip := net.ParseIP(host); ip != nil {
		for _, ipNet := range p.allowNets {
			if ipNet.Contains(ip) {
				return nil
			}
		}
		return p.blocked(rawURL, "IP not in allow list")
	}

	for _, pattern := range p.allowDomains {
		if matchDomain(pattern, host) {
			return nil
		}
	}
	return p.blocked(rawURL, "domain not in allow list")
}

func (p *Policy) blocked(rawURL, reason string) error {
	if p.logBlockedAttempts {
		logger.GetLogger().Warn("blocked URL access attempt", "url", rawURL, "reason", reason)
	}
	return &URLBlockedError{URL: rawURL, Reason: reason}
}

// matchDomain matches host against an allowlist pattern. "*.example.com"
// matches subdomains only, never the parent domain itself.
func matchDomain(pattern, host string) bool {
	if suffix, ok := strings.CutPrefix(pattern, "*."); ok {
		return strings.HasSuffix(host, "."+suffix)
	}
	return host == pattern
}

func isLocalhost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}
