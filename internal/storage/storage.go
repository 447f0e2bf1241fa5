/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package storage

import (
	"github.com/JB-SelfCompany/mailforge/internal/storage/types"
)

type Storage interface {
	// AccountFind returns nil, nil when no account matches.
	AccountFind(username, domain string) (*types.Account, error)
	AccountFindByAPIKey(key string) (*types.Account, error)
	AccountCreate(account *types.Account) (int64, error)

	MessageCreate(msg *types.Message) (*types.Message, error)
	MessageCount(filter types.MessageFilter) (int, error)
	MessageList(filter types.MessageFilter, limit int, order types.Order) ([]*types.Message, error)

	DraftCreate(msg *types.Message) (*types.Message, error)
	StarCreate(userID, messageID int64) error

	Close() error
}
