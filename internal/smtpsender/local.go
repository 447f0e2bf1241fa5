/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package smtpsender

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gologme/log"

	merrors "github.com/JB-SelfCompany/mailforge/internal/errors"
	"github.com/JB-SelfCompany/mailforge/internal/metrics"
	"github.com/JB-SelfCompany/mailforge/internal/storage"
	"github.com/JB-SelfCompany/mailforge/internal/storage/types"
	"github.com/JB-SelfCompany/mailforge/internal/utils"
)

// Notifier is told about every message delivered to a local account.
type Notifier interface {
	NotifyNew(account *types.Account) error
}

// Archiver keeps a raw copy of a delivered message.
type Archiver interface {
	Store(domain, username string, r io.Reader) error
}

type LocalDelivery struct {
	Storage  storage.Storage
	Hostname string
	Log      *log.Logger
	Archive  Archiver // optional
	Notify   Notifier // optional
}

// DeliverLocally stores msg in the recipient's inbox. Archiving and
// notification are best effort and never fail the delivery.
func (l *LocalDelivery) DeliverLocally(ctx context.Context, msg *types.Message) (*types.Message, error) {
	start := time.Now()
	defer func() {
		metrics.DeliveryDuration.WithLabelValues("local").Observe(time.Since(start).Seconds())
	}()

	username, domain, err := utils.ParseAddress(msg.ToAddress)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", msg.ToAddress, merrors.ErrMalformedRecipient)
	}
	account, err := l.Storage.AccountFind(username, domain)
	if err != nil {
		metrics.Deliveries.WithLabelValues("local", "error").Inc()
		return nil, fmt.Errorf("l.Storage.AccountFind: %w", err)
	}
	if account == nil {
		metrics.Deliveries.WithLabelValues("local", "notfound").Inc()
		return nil, fmt.Errorf("%s: %w", msg.ToAddress, merrors.ErrRecipientNotFound)
	}

	m := msg.Copy()
	m.ToDomain = domain
	if m.FromDomain == "" {
		if _, fromDomain, err := utils.ParseAddress(m.FromAddress); err == nil {
			m.FromDomain = fromDomain
		}
	}
	m.Status = types.StatusSent
	m.Folder = types.FolderInbox
	m.SentAt = time.Now()
	m.UserID = account.ID
	m.ErrorMessage = ""

	stored, err := l.Storage.MessageCreate(m)
	if err != nil {
		metrics.Deliveries.WithLabelValues("local", "error").Inc()
		return nil, fmt.Errorf("l.Storage.MessageCreate: %w", err)
	}
	metrics.Deliveries.WithLabelValues("local", "ok").Inc()
	l.Log.Infof("Delivered message %d from %s to %s", stored.ID, stored.FromAddress, account.Address())

	if l.Archive != nil {
		raw, err := utils.ComposeBytes(stored, utils.ComposeOptions{Hostname: l.Hostname})
		if err == nil {
			err = l.Archive.Store(account.Domain, account.Username, bytes.NewReader(raw))
		}
		if err != nil {
			l.Log.Warnf("Failed to archive message %d for %s: %v", stored.ID, account.Address(), err)
		}
	}
	if l.Notify != nil {
		if err := l.Notify.NotifyNew(account); err != nil {
			l.Log.Warnf("Failed to notify %s: %v", account.Address(), err)
		}
	}
	return stored, nil
}
