/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package smtpsender

import (
	"context"
	"fmt"

	"github.com/gologme/log"

	merrors "github.com/JB-SelfCompany/mailforge/internal/errors"
	"github.com/JB-SelfCompany/mailforge/internal/storage/types"
	"github.com/JB-SelfCompany/mailforge/internal/utils"
)

type LocalDeliverer interface {
	DeliverLocally(ctx context.Context, msg *types.Message) (*types.Message, error)
}

type RemoteDeliverer interface {
	DeliverRemotely(ctx context.Context, msg *types.Message) (*types.Message, error)
}

// Router sends each message down exactly one delivery path, chosen by
// whether the recipient domain is the server's own.
type Router struct {
	domain string
	local  LocalDeliverer
	remote RemoteDeliverer
	log    *log.Logger
}

func NewRouter(domain string, local LocalDeliverer, remote RemoteDeliverer, log *log.Logger) *Router {
	return &Router{
		domain: domain,
		local:  local,
		remote: remote,
		log:    log,
	}
}

func (r *Router) Route(ctx context.Context, msg *types.Message) (*types.Message, error) {
	_, domain, err := utils.ParseAddress(msg.ToAddress)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", msg.ToAddress, merrors.ErrMalformedRecipient)
	}
	if utils.IsLocalDomain(domain, r.domain) {
		r.log.Debugf("Routing %s -> %s locally", msg.FromAddress, msg.ToAddress)
		return r.local.DeliverLocally(ctx, msg)
	}
	r.log.Debugf("Routing %s -> %s remotely", msg.FromAddress, msg.ToAddress)
	return r.remote.DeliverRemotely(ctx, msg)
}
