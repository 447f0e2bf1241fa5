/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gologme/log"
	"golang.org/x/crypto/bcrypt"

	merrors "github.com/JB-SelfCompany/mailforge/internal/errors"
	"github.com/JB-SelfCompany/mailforge/internal/storage/types"
	"github.com/JB-SelfCompany/mailforge/internal/utils"
)

// Accounts is the part of the repository the authenticator needs.
type Accounts interface {
	AccountFind(username, domain string) (*types.Account, error)
	AccountFindByAPIKey(key string) (*types.Account, error)
}

// Authenticator resolves submission and retrieval credentials to an
// account. The secret is tried as an API key first and then as the
// password of the named identity.
type Authenticator struct {
	accounts Accounts
	domain   string
	log      *log.Logger
}

func NewAuthenticator(accounts Accounts, domain string, log *log.Logger) *Authenticator {
	return &Authenticator{
		accounts: accounts,
		domain:   domain,
		log:      log,
	}
}

// Authenticate returns the account for identity and secret. An identity
// without a domain is taken to be on the server's own domain.
func (a *Authenticator) Authenticate(identity, secret string) (*types.Account, error) {
	if secret == "" {
		return nil, merrors.ErrAuthenticationFailed
	}

	account, err := a.accounts.AccountFindByAPIKey(secret)
	if err != nil {
		return nil, fmt.Errorf("a.accounts.AccountFindByAPIKey: %w", err)
	}
	if account != nil {
		if !usable(account) {
			return nil, fmt.Errorf("%s: %w", account.Address(), merrors.ErrAccountDisabled)
		}
		return account, nil
	}

	username, domain := strings.TrimSpace(identity), a.domain
	if strings.Contains(username, "@") {
		if username, domain, err = utils.ParseAddress(identity); err != nil {
			return nil, merrors.ErrAuthenticationFailed
		}
	}
	if username == "" {
		return nil, merrors.ErrAuthenticationFailed
	}

	account, err = a.accounts.AccountFind(username, domain)
	if err != nil {
		return nil, fmt.Errorf("a.accounts.AccountFind: %w", err)
	}
	if account == nil || !VerifyPassword(account.PasswordHash, secret) {
		a.log.Debugf("Authentication failed for %s@%s", username, domain)
		return nil, merrors.ErrAuthenticationFailed
	}
	if !usable(account) {
		return nil, fmt.Errorf("%s: %w", account.Address(), merrors.ErrAccountDisabled)
	}
	return account, nil
}

func usable(account *types.Account) bool {
	return account.Active && !account.IsBanned
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt.GenerateFromPassword: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword checks password against a bcrypt hash, or against a
// legacy unsalted SHA-256 hex digest.
func VerifyPassword(hash, password string) bool {
	if strings.HasPrefix(hash, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	}
	sum := sha256.Sum256([]byte(password))
	digest := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(hash)), []byte(digest)) == 1
}

// GenerateAPIKey returns a random 256-bit key, hex encoded.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("rand.Read: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
