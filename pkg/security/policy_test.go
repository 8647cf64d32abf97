package security

import (
	"errors"
	"testing"

	"github.com/ensemble-ai/ensemble/pkg/config"
)

func TestPolicy_Disabled(t *testing.T) {
	policy := NewPolicy(config.URLSecuritySettings{Enabled: false})

	for _, rawURL := range []string{
		"https://anywhere.example.com/x",
		"http://127.0.0.1:8080/",
		"http://10.0.0.1/",
	} {
		if err := policy.Validate(rawURL); err != nil {
			t.Errorf("Validate(%s) = %v, want nil when disabled", rawURL, err)
		}
	}
}

func TestPolicy_EnabledEmptyListsBlocksAll(t *testing.T) {
	policy := NewPolicy(config.URLSecuritySettings{Enabled: true})

	err := policy.Validate("https://example.com/")
	if err == nil {
		t.Fatal("Validate() = nil, want blocked when enabled with empty lists")
	}

	var blocked *URLBlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("error = %v, want *URLBlockedError", err)
	}
	if blocked.Reason != "no allow list is configured" {
		t.Errorf("Reason = %q, want %q", blocked.Reason, "no allow list is configured")
	}
}

func TestPolicy_DomainMatching(t *testing.T) {
	policy := NewPolicy(config.URLSecuritySettings{
		Enabled:      true,
		AllowDomains: []string{"api.example.com", "*.example.org"},
	})

	tests := []struct {
		name    string
		url     string
		allowed bool
	}{
		{name: "exact match", url: "https://api.example.com/v1", allowed: true},
		{name: "exact match case insensitive", url: "https://API.Example.COM/v1", allowed: true},
		{name: "other subdomain of exact", url: "https://www.example.com/", allowed: false},
		{name: "wildcard subdomain", url: "https://sub.example.org/", allowed: true},
		{name: "wildcard deep subdomain", url: "https://a.b.example.org/", allowed: true},
		{name: "wildcard does not match parent", url: "https://example.org/", allowed: false},
		{name: "wildcard suffix trick", url: "https://evilexample.org/", allowed: false},
		{name: "unlisted domain", url: "https://elsewhere.net/", allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.Validate(tt.url)
			if (err == nil) != tt.allowed {
				t.Errorf("Validate(%s) = %v, want allowed=%v", tt.url, err, tt.allowed)
			}
		})
	}
}

func TestPolicy_IPMatching(t *testing.T) {
	policy := NewPolicy(config.URLSecuritySettings{
		Enabled:  true,
		AllowIPs: []string{"10.0.0.0/8", "192.168.1.5"},
	})

	tests := []struct {
		url     string
		allowed bool
	}{
		{url: "http://10.1.2.3/", allowed: true},
		{url: "http://10.255.255.255:9000/x", allowed: true},
		{url: "http://192.168.1.5/", allowed: true},
		{url: "http://192.168.1.6/", allowed: false},
		{url: "http://8.8.8.8/", allowed: false},
	}

	for _, tt := range tests {
		err := policy.Validate(tt.url)
		if (err == nil) != tt.allowed {
			t.Errorf("Validate(%s) = %v, want allowed=%v", tt.url, err, tt.allowed)
		}
	}
}

func TestPolicy_Localhost(t *testing.T) {
	tests := []struct {
		name           string
		allowLocalhost bool
		url            string
		allowed        bool
	}{
		{name: "localhost allowed", allowLocalhost: true, url: "http://localhost:8000/", allowed: true},
		{name: "loopback ip allowed", allowLocalhost: true, url: "http://127.0.0.1/", allowed: true},
		{name: "loopback range allowed", allowLocalhost: true, url: "http://127.0.5.9/", allowed: true},
		{name: "ipv6 loopback allowed", allowLocalhost: true, url: "http://[::1]:8000/", allowed: true},
		{name: "localhost blocked", allowLocalhost: false, url: "http://localhost/", allowed: false},
		{name: "loopback blocked", allowLocalhost: false, url: "http://127.0.0.1/", allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := NewPolicy(config.URLSecuritySettings{
				Enabled:        true,
				AllowDomains:   []string{"api.example.com"},
				AllowLocalhost: tt.allowLocalhost,
			})
			err := policy.Validate(tt.url)
			if (err == nil) != tt.allowed {
				t.Errorf("Validate(%s) = %v, want allowed=%v", tt.url, err, tt.allowed)
			}
		})
	}
}

func TestPolicy_MalformedURL(t *testing.T) {
	policy := NewPolicy(config.URLSecuritySettings{
		Enabled:      true,
		AllowDomains: []string{"api.example.com"},
	})

	for _, rawURL := range []string{"not a url", "://missing", ""} {
		if err := policy.Validate(rawURL); err == nil {
			t.Errorf("Validate(%q) = nil, want blocked", rawURL)
		}
	}
}
