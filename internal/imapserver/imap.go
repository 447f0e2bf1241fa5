/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package imapserver

import (
	"errors"
	"net"
	"time"

	"github.com/emersion/go-imap"
	idle "github.com/emersion/go-imap-idle"
	"github.com/emersion/go-imap/server"
	"github.com/emersion/go-sasl"
	"github.com/gologme/log"
)

type IMAPServer struct {
	server  *server.Server
	backend *Backend
	notify  *IMAPNotify
	done    chan struct{}
	log     *log.Logger
}

func NewIMAPServer(backend *Backend, insecure bool) (*IMAPServer, *IMAPNotify) {
	s := &IMAPServer{
		server:  server.New(backend),
		backend: backend,
		done:    make(chan struct{}),
		log:     backend.Log,
	}
	s.notify = NewIMAPNotify(s.server, backend, backend.Log)
	s.server.AllowInsecureAuth = insecure
	s.server.Enable(idle.NewExtension())
	s.server.EnableAuth(sasl.Login, func(conn server.Conn) sasl.Server {
		return sasl.NewLoginServer(func(username, password string) error {
			user, err := s.backend.Login(conn.Info(), username, password)
			if err != nil {
				return err
			}
			ctx := conn.Context()
			ctx.State = imap.AuthenticatedState
			ctx.User = user
			return nil
		})
	})
	return s, s.notify
}

// Start serves l in the background until Close is called.
func (s *IMAPServer) Start(l net.Listener) {
	go func() {
		defer close(s.done)
		if err := s.server.Serve(l); err != nil && !errors.Is(err, net.ErrClosed) {
			s.log.Errorf("IMAP server error: %v", err)
		}
	}()
}

// Close stops the server and waits briefly for the serving goroutine.
func (s *IMAPServer) Close() error {
	if err := s.server.Close(); err != nil {
		return err
	}
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		s.log.Warnf("IMAP server goroutine did not exit within timeout")
	}
	return nil
}
