/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package dnscache

import (
	"context"
	"net"
	"strings"

	"go.uber.org/atomic"
)

// MockResolver is a Resolver used for testing. Names are matched
// lowercased and without a trailing dot.
type MockResolver struct {
	MX   map[string][]*net.MX
	A    map[string][]string
	AAAA map[string][]string

	// Fail makes a lookup return ErrServFail. Format "type name", for
	// example "aaaa mx.example.com".
	Fail map[string]bool

	// Queries counts every lookup made against the mock.
	Queries atomic.Int64
}

var _ Resolver = (*MockResolver)(nil)

func mockName(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}

func (r *MockResolver) failing(qtype, name string) bool {
	return r.Fail[qtype+" "+name]
}

func (r *MockResolver) LookupMX(ctx context.Context, domain string) ([]*net.MX, error) {
	r.Queries.Inc()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := mockName(domain)
	if r.failing("mx", name) {
		return nil, ErrServFail
	}
	records := r.MX[name]
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	out := make([]*net.MX, 0, len(records))
	for _, mx := range records {
		c := *mx
		out = append(out, &c)
	}
	return out, nil
}

func (r *MockResolver) lookupIP(ctx context.Context, qtype, host string, records map[string][]string) ([]net.IP, error) {
	r.Queries.Inc()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := mockName(host)
	if r.failing(qtype, name) {
		return nil, ErrServFail
	}
	var ips []net.IP
	for _, s := range records[name] {
		if ip := net.ParseIP(s); ip != nil {
			ips = append(ips, ip)
		}
	}
	if len(ips) == 0 {
		return nil, ErrNotFound
	}
	return ips, nil
}

func (r *MockResolver) LookupA(ctx context.Context, host string) ([]net.IP, error) {
	return r.lookupIP(ctx, "a", host, r.A)
}

func (r *MockResolver) LookupAAAA(ctx context.Context, host string) ([]net.IP, error) {
	return r.lookupIP(ctx, "aaaa", host, r.AAAA)
}
