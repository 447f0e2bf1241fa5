/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/JB-SelfCompany/mailforge/internal/metrics"
)

// Transport opens outbound connections to remote exchanges.
type Transport interface {
	Dial(ctx context.Context, address string) (net.Conn, error)
}

type TCPTransport struct {
	dialer    net.Dialer
	ioTimeout time.Duration
}

// NewTCPTransport returns a transport that gives up connecting after
// dialTimeout and fails any single read or write that stalls for longer
// than ioTimeout. Zero disables either limit.
func NewTCPTransport(dialTimeout, ioTimeout time.Duration) *TCPTransport {
	return &TCPTransport{
		dialer:    net.Dialer{Timeout: dialTimeout},
		ioTimeout: ioTimeout,
	}
}

func (t *TCPTransport) Dial(ctx context.Context, address string) (net.Conn, error) {
	c, err := t.dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	if t.ioTimeout > 0 {
		return newDeadlineConn(c, t.ioTimeout), nil
	}
	return c, nil
}

// Listen opens a TCP listener whose accepted connections are counted
// under the given endpoint name.
func Listen(address, endpoint string) (net.Listener, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("net.Listen: %w", err)
	}
	return &countingListener{Listener: l, endpoint: endpoint}, nil
}

type countingListener struct {
	net.Listener
	endpoint string
}

func (l *countingListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err == nil {
		metrics.Connections.WithLabelValues(l.endpoint).Inc()
	}
	return c, err
}
