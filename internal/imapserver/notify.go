/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package imapserver

import (
	"fmt"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/server"
	"github.com/gologme/log"

	"github.com/JB-SelfCompany/mailforge/internal/storage/types"
)

// IMAPNotify pushes new mail to connections that have the recipient's
// INBOX selected.
type IMAPNotify struct {
	server  *server.Server
	backend *Backend
	log     *log.Logger
}

func NewIMAPNotify(s *server.Server, backend *Backend, log *log.Logger) *IMAPNotify {
	return &IMAPNotify{
		server:  s,
		backend: backend,
		log:     log,
	}
}

func (ext *IMAPNotify) NotifyNew(account *types.Account) error {
	count, err := ext.backend.count(account, types.FolderInbox)
	if err != nil {
		return fmt.Errorf("ext.backend.count: %w", err)
	}

	notified := 0
	ext.server.ForEachConn(func(c server.Conn) {
		ctx := c.Context()
		session, ok := ctx.User.(*Session)
		if !ok || session.account.ID != account.ID {
			return
		}
		mbox, ok := ctx.Mailbox.(*Mailbox)
		if !ok || mbox.folder != types.FolderInbox {
			return
		}
		_ = c.WriteResp(&imap.DataResp{
			Fields: []interface{}{uint32(count), imap.RawString("EXISTS")},
		})
		_ = c.WriteResp(&imap.DataResp{
			Fields: []interface{}{uint32(1), imap.RawString("RECENT")},
		})
		notified++
	})

	if notified > 0 {
		ext.log.Debugf("Sent EXISTS %d to %d connection(s) of %s", count, notified, account.Address())
	}
	return nil
}
