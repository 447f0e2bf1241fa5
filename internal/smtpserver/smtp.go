/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package smtpserver

import (
	"net"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

const MaxMessageBytes = 32 * 1024 * 1024

type Config struct {
	Domain       string
	ReadTimeout  time.Duration // zero means none
	WriteTimeout time.Duration
}

type SMTPServer struct {
	server  *smtp.Server
	backend *Backend
}

// NewSMTPServer returns a submission or inter-server receiver depending on
// the backend mode. Submission offers AUTH PLAIN and AUTH LOGIN.
func NewSMTPServer(backend *Backend, config Config) *SMTPServer {
	srv := smtp.NewServer(backend)
	srv.Domain = config.Domain
	srv.MaxMessageBytes = MaxMessageBytes
	srv.MaxRecipients = 50
	srv.ReadTimeout = config.ReadTimeout
	srv.WriteTimeout = config.WriteTimeout

	switch backend.Mode {
	case BackendModeSubmission:
		srv.AllowInsecureAuth = true
		srv.EnableAuth(sasl.Login, func(conn *smtp.Conn) sasl.Server {
			return sasl.NewLoginServer(func(username, password string) error {
				state := conn.State()
				session, err := backend.Login(&state, username, password)
				if err != nil {
					return err
				}
				conn.SetSession(session)
				return nil
			})
		})
	case BackendModeInterServer:
		srv.AuthDisabled = true
	}

	return &SMTPServer{
		server:  srv,
		backend: backend,
	}
}

func (s *SMTPServer) Serve(l net.Listener) error {
	return s.server.Serve(l)
}

func (s *SMTPServer) Close() error {
	return s.server.Close()
}
