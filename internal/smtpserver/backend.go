/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package smtpserver

import (
	"context"

	"github.com/emersion/go-smtp"
	"github.com/gologme/log"

	"github.com/JB-SelfCompany/mailforge/internal/storage/types"
)

type BackendMode int

const (
	// BackendModeSubmission accepts mail from authenticated local users
	// for any destination.
	BackendModeSubmission BackendMode = iota
	// BackendModeInterServer accepts unauthenticated mail from other
	// servers for local accounts only.
	BackendModeInterServer
)

type Authenticator interface {
	Authenticate(identity, secret string) (*types.Account, error)
}

type AccountFinder interface {
	AccountFind(username, domain string) (*types.Account, error)
}

type Router interface {
	Route(ctx context.Context, msg *types.Message) (*types.Message, error)
}

type LocalDeliverer interface {
	DeliverLocally(ctx context.Context, msg *types.Message) (*types.Message, error)
}

type Backend struct {
	Mode     BackendMode
	Domain   string
	Log      *log.Logger
	Auth     Authenticator  // submission
	Router   Router         // submission
	Accounts AccountFinder  // inter-server
	Local    LocalDeliverer // inter-server
}

func (b *Backend) Login(state *smtp.ConnectionState, username, password string) (smtp.Session, error) {
	if b.Mode != BackendModeSubmission {
		return nil, smtp.ErrAuthUnsupported
	}
	account, err := b.Auth.Authenticate(username, password)
	if err != nil {
		b.Log.Warnf("Authentication failed for %q from %s: %v", username, remoteAddr(state), err)
		return nil, replyFor(err)
	}
	b.Log.Debugf("Authenticated %s from %s", account.Address(), remoteAddr(state))
	return &SessionLocal{
		backend: b,
		state:   state,
		account: account,
	}, nil
}

func (b *Backend) AnonymousLogin(state *smtp.ConnectionState) (smtp.Session, error) {
	if b.Mode != BackendModeInterServer {
		return nil, errAuthRequired
	}
	return &SessionRemote{
		backend: b,
		state:   state,
	}, nil
}

func remoteAddr(state *smtp.ConnectionState) string {
	if state == nil || state.RemoteAddr == nil {
		return "unknown"
	}
	return state.RemoteAddr.String()
}
