package id

import (
	"strings"
	"testing"
)

func TestNewSessionToken(t *testing.T) {
	token := NewSessionToken("tv_live")
	if !strings.HasPrefix(token, "tv_live-") {
		t.Errorf("token must be slot-prefixed, got %q", token)
	}
	if len(strings.Split(token, "-")) < 3 {
		t.Errorf("token must carry timestamp and random suffix, got %q", token)
	}
}

func TestNewSessionToken_unique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		token := NewSessionToken("tv_live")
		if _, dup := seen[token]; dup {
			t.Fatalf("duplicate token %q", token)
		}
		seen[token] = struct{}{}
	}
}
