/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package transport

import (
	"net"
	"time"
)

// deadlineConn wraps a net.Conn and pushes its deadline forward before
// every Read and Write, so the timeout bounds a stall rather than the
// whole conversation.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func newDeadlineConn(conn net.Conn, timeout time.Duration) net.Conn {
	return &deadlineConn{Conn: conn, timeout: timeout}
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(b)
}
