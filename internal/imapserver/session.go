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

	"github.com/emersion/go-imap/backend"

	"github.com/JB-SelfCompany/mailforge/internal/storage/types"
)

var errFixedFolders = errors.New("folders cannot be changed")

// Session is the authenticated state of one IMAP connection.
type Session struct {
	backend *Backend
	account *types.Account
}

var _ backend.User = (*Session)(nil)

func (s *Session) Username() string {
	return s.account.Address()
}

func (s *Session) Account() *types.Account {
	return s.account
}

func (s *Session) ListMailboxes(subscribed bool) ([]backend.Mailbox, error) {
	mailboxes := make([]backend.Mailbox, 0, len(types.Folders))
	for _, folder := range types.Folders {
		mailboxes = append(mailboxes, s.mailbox(folder, folder.DisplayName()))
	}
	return mailboxes, nil
}

// GetMailbox matches names case-insensitively. An unknown name gives an
// empty mailbox rather than an error.
func (s *Session) GetMailbox(name string) (backend.Mailbox, error) {
	folder, ok := types.ParseFolder(name)
	if ok {
		name = folder.DisplayName()
	}
	return s.mailbox(folder, name), nil
}

func (s *Session) mailbox(folder types.Folder, name string) *Mailbox {
	return &Mailbox{
		session: s,
		folder:  folder,
		name:    name,
	}
}

func (s *Session) CreateMailbox(name string) error {
	return errFixedFolders
}

func (s *Session) DeleteMailbox(name string) error {
	return errFixedFolders
}

func (s *Session) RenameMailbox(existingName, newName string) error {
	return errFixedFolders
}

func (s *Session) Logout() error {
	return nil
}
