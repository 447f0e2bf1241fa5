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

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/backend"
	"github.com/gologme/log"

	"github.com/JB-SelfCompany/mailforge/internal/storage/types"
)

const DefaultFetchLimit = 50

var errLoginFailed = errors.New("LOGIN failed")

type Authenticator interface {
	Authenticate(identity, secret string) (*types.Account, error)
}

type MessageStore interface {
	MessageCount(filter types.MessageFilter) (int, error)
	MessageList(filter types.MessageFilter, limit int, order types.Order) ([]*types.Message, error)
}

type Backend struct {
	Auth     Authenticator
	Storage  MessageStore
	Log      *log.Logger
	Hostname string

	// FetchLimit caps how many of the newest messages FETCH returns.
	FetchLimit int

	// HonorFetchRange restricts FETCH to the requested sequence set. When
	// false the set is ignored and the newest messages are returned.
	HonorFetchRange bool
}

var _ backend.Backend = (*Backend)(nil)

func (b *Backend) Login(conn *imap.ConnInfo, username, password string) (backend.User, error) {
	account, err := b.Auth.Authenticate(username, password)
	if err != nil {
		remote := "unknown"
		if conn != nil && conn.RemoteAddr != nil {
			remote = conn.RemoteAddr.String()
		}
		b.Log.Warnf("IMAP login failed for %q from %s: %v", username, remote, err)
		return nil, errLoginFailed
	}
	b.Log.Debugf("IMAP login for %s", account.Address())
	return &Session{
		backend: b,
		account: account,
	}, nil
}

func (b *Backend) fetchLimit() int {
	if b.FetchLimit <= 0 {
		return DefaultFetchLimit
	}
	return b.FetchLimit
}

// folderFilter returns the query behind a folder for account. ok is false
// for a folder that never has any messages.
func folderFilter(account *types.Account, folder types.Folder) (types.MessageFilter, bool) {
	address := account.Address()
	switch folder {
	case types.FolderInbox:
		return types.MessageFilter{
			ToAddress:   address,
			NotStatuses: []types.Status{types.StatusSpam, types.StatusScheduled},
		}, true
	case types.FolderSent:
		return types.MessageFilter{
			FromAddress: address,
			Statuses:    []types.Status{types.StatusSent},
		}, true
	case types.FolderSpam:
		return types.MessageFilter{
			ToAddress: address,
			Statuses:  []types.Status{types.StatusSpam},
		}, true
	case types.FolderDrafts:
		return types.MessageFilter{Collection: types.CollectionDrafts, UserID: account.ID}, true
	case types.FolderStarred:
		return types.MessageFilter{Collection: types.CollectionStars, UserID: account.ID}, true
	}
	return types.MessageFilter{}, false
}

func (b *Backend) count(account *types.Account, folder types.Folder) (int, error) {
	filter, ok := folderFilter(account, folder)
	if !ok {
		return 0, nil
	}
	return b.Storage.MessageCount(filter)
}
