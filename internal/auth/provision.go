/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package auth

import (
	"fmt"
	"strings"

	"github.com/JB-SelfCompany/mailforge/internal/storage/types"
	"github.com/JB-SelfCompany/mailforge/internal/utils"
)

type AccountCreator interface {
	AccountCreate(account *types.Account) (int64, error)
}

// CreateAccount stores a new active account for address with a bcrypt hash
// of password. With withAPIKey the returned account carries its new key,
// which is not recoverable afterwards.
func CreateAccount(store AccountCreator, address, password string, withAPIKey bool) (*types.Account, error) {
	username, domain, err := utils.ParseAddress(address)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", address, err)
	}
	domain, err = utils.NormalizeDomain(domain)
	if err != nil {
		return nil, fmt.Errorf("utils.NormalizeDomain: %w", err)
	}
	if strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("password cannot be empty")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	account := &types.Account{
		Username:     username,
		Domain:       domain,
		PasswordHash: hash,
		Active:       true,
	}
	if withAPIKey {
		if account.APIKey, err = GenerateAPIKey(); err != nil {
			return nil, err
		}
	}

	id, err := store.AccountCreate(account)
	if err != nil {
		return nil, fmt.Errorf("store.AccountCreate: %w", err)
	}
	account.ID = id
	return account, nil
}
