package extract

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// URLType is the detected category of a URL, driving extraction method
// dispatch (original URLType enum).
type URLType string

const (
	URLTypeDocumentation URLType = "documentation"
	URLTypeGitHub        URLType = "github"
	URLTypeVideo         URLType = "video"
	URLTypePDF           URLType = "pdf"
	URLTypeGeneric       URLType = "generic"
	URLTypeUnknown       URLType = "unknown"
)

var documentationPatterns = []string{
	"docs.", "documentation.", "doc.",
	"/docs/", "/documentation/", "/guide/",
	"readthedocs.io", "gitbook.io",
}

var videoHosts = []string{"youtube.com", "youtu.be", "vimeo.com"}

// DetectURLType classifies url by host/path heuristics (original
// detect_url_type).
func DetectURLType(rawURL string) URLType {
	lower := strings.ToLower(rawURL)
	parsed, err := url.Parse(lower)
	if err != nil {
		return URLTypeUnknown
	}
	hostname := parsed.Hostname()
	path := parsed.Path

	if strings.Contains(hostname, "github.com") {
		return URLTypeGitHub
	}
	for _, host := range videoHosts {
		if strings.Contains(hostname, host) {
			return URLTypeVideo
		}
	}
	if strings.HasSuffix(path, ".pdf") {
		return URLTypePDF
	}
	for _, pattern := range documentationPatterns {
		if strings.Contains(lower, pattern) {
			return URLTypeDocumentation
		}
	}
	return URLTypeGeneric
}

// ValidateURL rejects schemes other than http/https, missing hostnames,
// "localhost", and literal loopback/private/link-local/unspecified IP
// addresses — a SSRF guard mirroring original's validate_url. Hostnames
// are not resolved, so a public name that resolves to a private address
// is not rejected.
func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("extract: invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("extract: invalid url scheme %q, only http/https are supported", parsed.Scheme)
	}
	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("extract: url must have a hostname")
	}
	if host == "localhost" {
		return fmt.Errorf("extract: localhost urls are not allowed")
	}
	if ip := net.ParseIP(host); ip != nil && isBlockedIP(ip) {
		return fmt.Errorf("extract: private/loopback ip addresses are not allowed: %s", host)
	}
	return nil
}

func isBlockedIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast()
}
