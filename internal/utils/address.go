/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package utils

import (
	"fmt"
	"strings"

	"golang.org/x/net/idna"
)

// NormalizeDomain returns the lowercase ASCII (punycode) form of a domain
// with surrounding space and any trailing root dot removed.
func NormalizeDomain(domain string) (string, error) {
	d := strings.TrimSuffix(strings.TrimSpace(domain), ".")
	if d == "" {
		return "", fmt.Errorf("empty domain")
	}
	ascii, err := idna.Lookup.ToASCII(d)
	if err != nil {
		return "", fmt.Errorf("idna.Lookup.ToASCII: %w", err)
	}
	return strings.ToLower(ascii), nil
}

// IsLocalDomain checks if domain is the server's own domain (case-insensitive)
func IsLocalDomain(domain, serverDomain string) bool {
	d := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(domain), "."))
	s := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(serverDomain), "."))
	return d != "" && d == s
}

func CreateAddress(username, domain string) string {
	return fmt.Sprintf("%s@%s", username, domain)
}

// ParseAddress splits an address into its user and domain parts. The address
// must contain exactly one "@" with something on either side of it. Angle
// brackets from an SMTP path are stripped.
func ParseAddress(email string) (string, string, error) {
	email = strings.TrimSpace(email)
	email = strings.TrimSuffix(strings.TrimPrefix(email, "<"), ">")
	if strings.Count(email, "@") != 1 {
		return "", "", fmt.Errorf("invalid email address")
	}
	at := strings.Index(email, "@")
	username, domain := email[:at], email[at+1:]
	if username == "" || domain == "" {
		return "", "", fmt.Errorf("invalid email address")
	}
	return username, domain, nil
}
