package config

import (
	"reflect"
	"testing"
)

func TestNormalizeHostBlocklist(t *testing.T) {
	input := []string{" Example.com ", "http://Example.com/path", "sub.example.com", "https://sub.example.com", "10.0.0.0/8", "10.1.2.3/8"}
	want := []string{"example.com", "sub.example.com", "10.0.0.0/8"}

	got := NormalizeHostBlocklist(input)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("NormalizeHostBlocklist(%v) = %v, want %v", input, got, want)
	}
}

func TestHostBlocklistBlocks(t *testing.T) {
	blocklist := NewHostBlocklist([]string{"example.com", "192.168.0.0/16", "203.0.113.9"})

	cases := []struct {
		host     string
		blocked  bool
		testName string
	}{
		{"http://example.com", true, "exact host"},
		{"https://api.example.com/resource", true, "subdomain"},
		{"proxy.example.com", true, "bare subdomain"},
		{"https://example.net", false, "different domain"},
		{"192.168.4.20", true, "inside cidr"},
		{"192.169.0.1", false, "outside cidr"},
		{"203.0.113.9", true, "single ip"},
		{"", false, "empty"},
	}

	for _, tc := range cases {
		if got := blocklist.Blocks(tc.host); got != tc.blocked {
			t.Errorf("%s: Blocks(%q) = %v, want %v", tc.testName, tc.host, got, tc.blocked)
		}
	}
}

func TestEmptyHostBlocklist(t *testing.T) {
	var blocklist HostBlocklist
	if blocklist.Blocks("example.com") {
		t.Fatal("zero HostBlocklist should block nothing")
	}
}

func TestHostBlocklistKeepsAddressesOutOfSuffixMatching(t *testing.T) {
	blocklist := NewHostBlocklist([]string{"example.com", "203.0.113.9", "198.51.100.7/32", "2001:db8::1"})

	if len(blocklist.hosts) != 1 || len(blocklist.addrs) != 3 || len(blocklist.prefixes) != 0 {
		t.Fatalf("hosts=%d addrs=%d prefixes=%d, want 1/3/0", len(blocklist.hosts), len(blocklist.addrs), len(blocklist.prefixes))
	}

	cases := map[string]bool{
		"198.51.100.7":         true,
		"[2001:db8::1]":        true,
		"x.203.0.113.9":        false,
		"notexample.com":       false,
		"deep.api.example.com": true,
	}
	for host, want := range cases {
		if got := blocklist.Blocks(host); got != want {
			t.Errorf("Blocks(%q) = %v, want %v", host, got, want)
		}
	}
}
