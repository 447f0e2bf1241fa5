/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package utils

import (
	"strings"
	"testing"
)

func TestIsLocalDomain(t *testing.T) {
	tests := []struct {
		name   string
		domain string
		local  bool
	}{
		{"exact match", "example.com", true},
		{"uppercase", "EXAMPLE.COM", true},
		{"mixed case", "Example.Com", true},
		{"with leading space", " example.com", true},
		{"with trailing dot", "example.com.", true},
		{"subdomain", "mail.example.com", false},
		{"other domain", "external.org", false},
		{"empty string", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsLocalDomain(tt.domain, "example.com")
			if result != tt.local {
				t.Errorf("IsLocalDomain(%q) = %v, want %v", tt.domain, result, tt.local)
			}
		})
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		username string
		domain   string
		wantErr  bool
	}{
		{"plain", "alice@example.com", "alice", "example.com", false},
		{"angle brackets", "<alice@example.com>", "alice", "example.com", false},
		{"with spaces", "  carol@external.org ", "carol", "external.org", false},
		{"no @ symbol", "alice", "", "", true},
		{"two @ symbols", "alice@bob@example.com", "", "", true},
		{"@ at start", "@example.com", "", "", true},
		{"@ at end", "alice@", "", "", true},
		{"empty string", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			username, domain, err := ParseAddress(tt.email)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseAddress(%q) expected error, got nil", tt.email)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAddress(%q) unexpected error: %v", tt.email, err)
			}
			if username != tt.username || domain != tt.domain {
				t.Errorf("ParseAddress(%q) = (%q, %q), want (%q, %q)",
					tt.email, username, domain, tt.username, tt.domain)
			}
		})
	}
}

func TestCreateAddressRoundtrip(t *testing.T) {
	addr := CreateAddress("alice", "example.com")
	if addr != "alice@example.com" {
		t.Fatalf("CreateAddress() = %q", addr)
	}
	username, domain, err := ParseAddress(addr)
	if err != nil {
		t.Fatalf("Failed to parse created address: %v", err)
	}
	if CreateAddress(username, domain) != addr {
		t.Errorf("Roundtrip failed: got %s@%s, want %s", username, domain, addr)
	}
}

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		name    string
		domain  string
		want    string
		wantErr bool
	}{
		{"lowercase", "example.com", "example.com", false},
		{"uppercase", "EXTERNAL.ORG", "external.org", false},
		{"trailing dot", "external.org.", "external.org", false},
		{"surrounding space", "  external.org ", "external.org", false},
		{"unicode", "bücher.example", "xn--bcher-kva.example", false},
		{"empty", "  ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeDomain(tt.domain)
			if tt.wantErr {
				if err == nil {
					t.Errorf("NormalizeDomain(%q) expected error, got %q", tt.domain, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeDomain(%q) unexpected error: %v", tt.domain, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeDomain(%q) = %q, want %q", tt.domain, got, tt.want)
			}
			if strings.HasSuffix(got, ".") {
				t.Errorf("NormalizeDomain(%q) kept trailing dot", tt.domain)
			}
		})
	}
}
