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
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gologme/log"

	merrors "github.com/JB-SelfCompany/mailforge/internal/errors"
	"github.com/JB-SelfCompany/mailforge/internal/metrics"
	"github.com/JB-SelfCompany/mailforge/internal/utils"
)

const DefaultTTL = 60 * time.Second

// Exchange is a mail exchange host and the addresses it resolved to, A
// records first.
type Exchange struct {
	Host      string
	Priority  uint16
	Addresses []net.IP
}

type entry struct {
	exchanges []Exchange
	expiresAt time.Time
}

// Cache resolves and caches the ranked mail exchanges of a domain. Every
// cached list is non-empty and every exchange in it has an address.
type Cache struct {
	resolver Resolver
	ttl      time.Duration
	log      *log.Logger
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

func NewCache(resolver Resolver, ttl time.Duration, log *log.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		resolver: resolver,
		ttl:      ttl,
		log:      log,
		now:      time.Now,
		entries:  make(map[string]entry),
	}
}

// ResolveExchanges returns the exchanges for domain in ascending priority
// order. The returned slice is a copy and may be modified by the caller.
func (c *Cache) ResolveExchanges(ctx context.Context, domain string) ([]Exchange, error) {
	key, err := utils.NormalizeDomain(domain)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", merrors.ErrNoExchangeFound, domain, err)
	}

	if cached, ok := c.lookup(key); ok {
		return copyExchanges(cached), nil
	}

	exchanges, err := c.resolve(ctx, key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = entry{
		exchanges: exchanges,
		expiresAt: c.now().Add(c.ttl),
	}
	c.mu.Unlock()

	return copyExchanges(exchanges), nil
}

// lookup returns an unexpired entry. Expired entries are removed.
func (c *Cache) lookup(key string) ([]Exchange, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		metrics.ExchangeCache.WithLabelValues("miss").Inc()
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		metrics.ExchangeCache.WithLabelValues("expired").Inc()
		return nil, false
	}
	metrics.ExchangeCache.WithLabelValues("hit").Inc()
	return e.exchanges, true
}

// Len returns the number of entries held, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Invalidate drops any cached entry for domain.
func (c *Cache) Invalidate(domain string) {
	key, err := utils.NormalizeDomain(domain)
	if err != nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *Cache) resolve(ctx context.Context, domain string) ([]Exchange, error) {
	records, err := c.resolver.LookupMX(ctx, domain)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w for %s", merrors.ErrNoExchangeFound, domain)
		}
		return nil, fmt.Errorf("%w for %s: %v", merrors.ErrNoExchangeFound, domain, err)
	}

	// A single "." target is a null MX: the domain accepts no mail.
	hosts := make([]*net.MX, 0, len(records))
	for _, mx := range records {
		host := strings.ToLower(strings.TrimSuffix(mx.Host, "."))
		if host == "" {
			continue
		}
		hosts = append(hosts, &net.MX{Host: host, Pref: mx.Pref})
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("%w for %s: null MX", merrors.ErrNoExchangeFound, domain)
	}
	sort.SliceStable(hosts, func(i, j int) bool {
		return hosts[i].Pref < hosts[j].Pref
	})

	type addresses struct {
		v4, v6 []net.IP
	}
	results := make([]addresses, len(hosts))
	var wg sync.WaitGroup
	for i, mx := range hosts {
		wg.Add(2)
		go func(i int, host string) {
			defer wg.Done()
			ips, err := c.resolver.LookupA(ctx, host)
			if err != nil {
				c.log.Debugf("A lookup for %s failed: %v", host, err)
				return
			}
			results[i].v4 = ips
		}(i, mx.Host)
		go func(i int, host string) {
			defer wg.Done()
			ips, err := c.resolver.LookupAAAA(ctx, host)
			if err != nil {
				c.log.Debugf("AAAA lookup for %s failed: %v", host, err)
				return
			}
			results[i].v6 = ips
		}(i, mx.Host)
	}
	wg.Wait()

	exchanges := make([]Exchange, 0, len(hosts))
	for i, mx := range hosts {
		addrs := append(append([]net.IP{}, results[i].v4...), results[i].v6...)
		if len(addrs) == 0 {
			c.log.Debugf("Dropping exchange %s for %s: no addresses", mx.Host, domain)
			continue
		}
		exchanges = append(exchanges, Exchange{
			Host:      mx.Host,
			Priority:  mx.Pref,
			Addresses: addrs,
		})
	}
	if len(exchanges) == 0 {
		return nil, fmt.Errorf("%w for %s", merrors.ErrNoAddressResolved, domain)
	}
	return exchanges, nil
}

func copyExchanges(in []Exchange) []Exchange {
	out := make([]Exchange, len(in))
	for i, e := range in {
		out[i] = Exchange{
			Host:      e.Host,
			Priority:  e.Priority,
			Addresses: append([]net.IP(nil), e.Addresses...),
		}
	}
	return out
}
