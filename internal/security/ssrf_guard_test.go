package security

import (
	"strings"
	"testing"
	"time"
)

// ValidateURLが安全な公開URLを許可することを検証
func TestValidateURL_AllowsPublicURLs(t *testing.T) {
	guard := NewSSRFGuard()

	urls := []string{
		"https://storage.example.com/documents/medical-note.pdf",
		"http://calendar.example.edu/events.rss",
		"https://8.8.8.8/doc.pdf",
	}
	for _, u := range urls {
		if err := guard.ValidateURL(u); err != nil {
			t.Errorf("ValidateURL(%q) = %v, want nil", u, err)
		}
	}
}

// ValidateURLが危険なスキームを拒否することを検証
func TestValidateURL_RejectsDisallowedSchemes(t *testing.T) {
	guard := NewSSRFGuard()

	urls := []string{
		"javascript:alert(1)",
		"file:///etc/passwd",
		"ftp://example.com/doc.pdf",
		"data:text/html,<script>alert(1)</script>",
	}
	for _, u := range urls {
		if err := guard.ValidateURL(u); err == nil {
			t.Errorf("ValidateURL(%q) = nil, want error", u)
		}
	}
}

// ValidateURLがプライベートIP・ループバック・メタデータIPを拒否することを検証
func TestValidateURL_RejectsBlockedIPs(t *testing.T) {
	guard := NewSSRFGuard()

	urls := []string{
		"http://10.0.0.5/doc.pdf",
		"http://172.16.1.1/doc.pdf",
		"http://192.168.1.10/doc.pdf",
		"http://127.0.0.1/doc.pdf",
		"http://169.254.169.254/latest/meta-data/",
		"http://0.0.0.0/",
		"http://[::1]/doc.pdf",
	}
	for _, u := range urls {
		if err := guard.ValidateURL(u); err == nil {
			t.Errorf("ValidateURL(%q) = nil, want error", u)
		}
	}
}

// ValidateURLがlocalhostと空URLを拒否することを検証
func TestValidateURL_RejectsLocalhostAndEmpty(t *testing.T) {
	guard := NewSSRFGuard()

	if err := guard.ValidateURL("http://localhost/doc.pdf"); err == nil {
		t.Error("expected localhost to be rejected")
	}
	if err := guard.ValidateURL("http://LOCALHOST/doc.pdf"); err == nil {
		t.Error("expected case-insensitive localhost match")
	}
	if err := guard.ValidateURL(""); err == nil {
		t.Error("expected empty URL to be rejected")
	}
	if err := guard.ValidateURL("https:///no-host"); err == nil {
		t.Error("expected empty host to be rejected")
	}
}

// NewSafeClientが非nilのクライアントを返すことを検証
func TestNewSafeClient_ReturnsClient(t *testing.T) {
	guard := NewSSRFGuard()

	client := guard.NewSafeClient(10*time.Second, 1024*1024)
	if client == nil {
		t.Fatal("expected non-nil client")
	}
	if client.Timeout != 10*time.Second {
		t.Errorf("client.Timeout = %v, want 10s", client.Timeout)
	}
}

// エラーメッセージが拒否理由を含むことを検証
func TestValidateURL_ErrorMessages(t *testing.T) {
	guard := NewSSRFGuard()

	err := guard.ValidateURL("ftp://example.com/")
	if err == nil || !strings.Contains(err.Error(), "scheme") {
		t.Errorf("expected scheme error, got %v", err)
	}

	err = guard.ValidateURL("http://10.0.0.1/")
	if err == nil || !strings.Contains(err.Error(), "blocked IP") {
		t.Errorf("expected blocked IP error, got %v", err)
	}
}
