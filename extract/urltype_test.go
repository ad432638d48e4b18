package extract

import "testing"

func TestDetectURLType(t *testing.T) {
	cases := map[string]URLType{
		"https://github.com/golang/go":           URLTypeGitHub,
		"https://www.youtube.com/watch?v=abc":    URLTypeVideo,
		"https://youtu.be/abc":                   URLTypeVideo,
		"https://example.com/whitepaper.pdf":     URLTypePDF,
		"https://docs.example.com/guide":         URLTypeDocumentation,
		"https://example.com/docs/intro":         URLTypeDocumentation,
		"https://example.readthedocs.io/en/latest/": URLTypeDocumentation,
		"https://example.com/some/article":       URLTypeGeneric,
	}
	for url, want := range cases {
		if got := DetectURLType(url); got != want {
			t.Errorf("DetectURLType(%q) = %q, want %q", url, got, want)
		}
	}
}

func TestValidateURLRejectsNonHTTPScheme(t *testing.T) {
	if err := ValidateURL("ftp://example.com/file"); err == nil {
		t.Error("expected error for ftp scheme")
	}
}

func TestValidateURLRejectsLocalhost(t *testing.T) {
	if err := ValidateURL("http://localhost:8080/x"); err == nil {
		t.Error("expected error for localhost")
	}
}

func TestValidateURLRejectsPrivateIP(t *testing.T) {
	if err := ValidateURL("http://10.0.0.5/x"); err == nil {
		t.Error("expected error for private ip")
	}
	if err := ValidateURL("http://127.0.0.1/x"); err == nil {
		t.Error("expected error for loopback ip")
	}
}

func TestValidateURLAcceptsPublicHTTPS(t *testing.T) {
	if err := ValidateURL("https://example.com/page"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}
