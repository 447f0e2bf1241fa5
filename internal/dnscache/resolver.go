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
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	mdns "github.com/miekg/dns"
)

// ErrNotFound is returned by a Resolver when a name has no records of the
// requested type, including NXDOMAIN.
var ErrNotFound = errors.New("dns: no records found")

var ErrServFail = errors.New("dns: server failure")

// Resolver looks up the records needed to find a domain's mail exchanges.
// Names are passed without a trailing dot.
type Resolver interface {
	LookupMX(ctx context.Context, domain string) ([]*net.MX, error)
	LookupA(ctx context.Context, host string) ([]net.IP, error)
	LookupAAAA(ctx context.Context, host string) ([]net.IP, error)
}

type ResolverConfig struct {
	// Nameservers to query as host or host:port. When empty the servers
	// from /etc/resolv.conf are used, falling back to public DNS.
	Nameservers []string

	// Timeout for a single query. Default is 5 seconds.
	Timeout time.Duration

	// Retries across the full nameserver list. Default is 2.
	Retries int
}

// DNSResolver implements Resolver using github.com/miekg/dns.
type DNSResolver struct {
	config ResolverConfig
	client *mdns.Client
}

func NewResolver(config ResolverConfig) *DNSResolver {
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	if config.Retries == 0 {
		config.Retries = 2
	}
	if len(config.Nameservers) == 0 {
		config.Nameservers = systemNameservers()
	} else {
		servers := make([]string, 0, len(config.Nameservers))
		for _, s := range config.Nameservers {
			servers = append(servers, withPort(s))
		}
		config.Nameservers = servers
	}
	return &DNSResolver{
		config: config,
		client: &mdns.Client{
			Timeout: config.Timeout,
		},
	}
}

func withPort(server string) string {
	server = strings.TrimSpace(server)
	if _, _, err := net.SplitHostPort(server); err != nil {
		return net.JoinHostPort(server, "53")
	}
	return server
}

func systemNameservers() []string {
	config, err := mdns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(config.Servers) == 0 {
		return []string{"8.8.8.8:53", "1.1.1.1:53"}
	}
	servers := make([]string, 0, len(config.Servers))
	for _, s := range config.Servers {
		servers = append(servers, net.JoinHostPort(s, config.Port))
	}
	return servers
}

func (r *DNSResolver) Config() ResolverConfig {
	return r.config
}

func (r *DNSResolver) query(ctx context.Context, name string, qtype uint16) (*mdns.Msg, error) {
	m := new(mdns.Msg)
	m.SetQuestion(mdns.Fqdn(name), qtype)
	m.RecursionDesired = true

	var lastErr error
	for i := 0; i <= r.config.Retries; i++ {
		for _, server := range r.config.Nameservers {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			resp, _, err := r.client.ExchangeContext(ctx, m, server)
			if err != nil {
				lastErr = fmt.Errorf("dns query to %s failed: %w", server, err)
				continue
			}
			switch resp.Rcode {
			case mdns.RcodeSuccess:
				return resp, nil
			case mdns.RcodeNameError:
				return nil, ErrNotFound
			case mdns.RcodeServerFailure:
				lastErr = ErrServFail
			default:
				lastErr = fmt.Errorf("dns: unexpected rcode %s", mdns.RcodeToString[resp.Rcode])
			}
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrServFail
}

func (r *DNSResolver) LookupMX(ctx context.Context, domain string) ([]*net.MX, error) {
	resp, err := r.query(ctx, domain, mdns.TypeMX)
	if err != nil {
		return nil, err
	}
	var records []*net.MX
	for _, rr := range resp.Answer {
		if mx, ok := rr.(*mdns.MX); ok {
			records = append(records, &net.MX{Host: mx.Mx, Pref: mx.Preference})
		}
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

func (r *DNSResolver) LookupA(ctx context.Context, host string) ([]net.IP, error) {
	resp, err := r.query(ctx, host, mdns.TypeA)
	if err != nil {
		return nil, err
	}
	var ips []net.IP
	for _, rr := range resp.Answer {
		if a, ok := rr.(*mdns.A); ok {
			ips = append(ips, a.A)
		}
	}
	if len(ips) == 0 {
		return nil, ErrNotFound
	}
	return ips, nil
}

func (r *DNSResolver) LookupAAAA(ctx context.Context, host string) ([]net.IP, error) {
	resp, err := r.query(ctx, host, mdns.TypeAAAA)
	if err != nil {
		return nil, err
	}
	var ips []net.IP
	for _, rr := range resp.Answer {
		if aaaa, ok := rr.(*mdns.AAAA); ok {
			ips = append(ips, aaaa.AAAA)
		}
	}
	if len(ips) == 0 {
		return nil, ErrNotFound
	}
	return ips, nil
}
