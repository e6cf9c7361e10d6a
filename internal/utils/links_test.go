package utils

import "testing"

func TestHasLink(t *testing.T) {
	cases := []struct {
		content string
		want    bool
	}{
		{"see https://example.com/x", true},
		{"visit www.example.com now", true},
		{"join chat.whatsapp.com/AbCdEf", true},
		{"wa.me/551199999999", true},
		{"no links here", false},
	}
	for _, tc := range cases {
		if got := HasLink(tc.content); got != tc.want {
			t.Fatalf("HasLink(%q) = %v, want %v", tc.content, got, tc.want)
		}
	}
}

func TestHasMassTag(t *testing.T) {
	if !HasMassTag("hey @everyone wake up") {
		t.Fatalf("expected @everyone to match")
	}
	if !HasMassTag("ping @all") {
		t.Fatalf("expected @all to match")
	}
	if HasMassTag("hello @john") {
		t.Fatalf("plain mentions must not match")
	}
}

func TestNormalizeURL(t *testing.T) {
	normalized, domain, err := NormalizeURL("https://Example.com/path?utm_source=test&x=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if domain != "example.com" {
		t.Fatalf("unexpected domain: %s", domain)
	}
	if normalized != "https://example.com/path?x=1" {
		t.Fatalf("unexpected normalized url: %s", normalized)
	}
}

func TestExtractURLs(t *testing.T) {
	urls := ExtractURLs("a https://one.example and https://two.example/x done")
	if len(urls) != 2 {
		t.Fatalf("expected two urls, got %v", urls)
	}
}
