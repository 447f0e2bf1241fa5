/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package sqlite3

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	merrors "github.com/JB-SelfCompany/mailforge/internal/errors"
	"github.com/JB-SelfCompany/mailforge/internal/storage/types"
	sqlite3 "github.com/mattn/go-sqlite3"
)

type TableAccounts struct {
	db                 *sql.DB
	writer             *Writer
	selectAccount      *sql.Stmt
	selectAccountByKey *sql.Stmt
	insertAccount      *sql.Stmt
}

const accountsSchema = `
	CREATE TABLE IF NOT EXISTS users (
		id				INTEGER PRIMARY KEY AUTOINCREMENT,
		username		TEXT NOT NULL COLLATE NOCASE,
		domain			TEXT NOT NULL COLLATE NOCASE,
		password_hash	TEXT NOT NULL,
		api_key			TEXT UNIQUE,
		is_banned		BOOLEAN NOT NULL DEFAULT 0,
		active			BOOLEAN NOT NULL DEFAULT 1,
		created_at		INTEGER NOT NULL,
		UNIQUE (username, domain)
	);
`

const accountColumns = `id, username, domain, password_hash, api_key, is_banned, active, created_at`

const selectAccountStmt = `
	SELECT ` + accountColumns + ` FROM users
	WHERE username = $1 AND domain = $2
`

const selectAccountByKeyStmt = `
	SELECT ` + accountColumns + ` FROM users
	WHERE api_key = $1
`

const insertAccountStmt = `
	INSERT INTO users (username, domain, password_hash, api_key, is_banned, active, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id
`

func NewTableAccounts(db *sql.DB, writer *Writer) (*TableAccounts, error) {
	t := &TableAccounts{
		db:     db,
		writer: writer,
	}
	_, err := db.Exec(accountsSchema)
	if err != nil {
		return nil, fmt.Errorf("db.Exec: %w", err)
	}
	t.selectAccount, err = db.Prepare(selectAccountStmt)
	if err != nil {
		return nil, fmt.Errorf("db.Prepare(selectAccountStmt): %w", err)
	}
	t.selectAccountByKey, err = db.Prepare(selectAccountByKeyStmt)
	if err != nil {
		return nil, fmt.Errorf("db.Prepare(selectAccountByKeyStmt): %w", err)
	}
	t.insertAccount, err = db.Prepare(insertAccountStmt)
	if err != nil {
		return nil, fmt.Errorf("db.Prepare(insertAccountStmt): %w", err)
	}
	return t, nil
}

func scanAccount(row *sql.Row) (*types.Account, error) {
	var apiKey sql.NullString
	var createdAt int64
	a := &types.Account{}
	err := row.Scan(
		&a.ID, &a.Username, &a.Domain, &a.PasswordHash, &apiKey,
		&a.IsBanned, &a.Active, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("row.Scan: %w", err)
	}
	a.APIKey = apiKey.String
	a.CreatedAt = time.Unix(createdAt, 0)
	return a, nil
}

func (t *TableAccounts) AccountFind(username, domain string) (*types.Account, error) {
	return scanAccount(t.selectAccount.QueryRow(username, domain))
}

func (t *TableAccounts) AccountFindByAPIKey(key string) (*types.Account, error) {
	if strings.TrimSpace(key) == "" {
		return nil, nil
	}
	return scanAccount(t.selectAccountByKey.QueryRow(key))
}

func (t *TableAccounts) AccountCreate(account *types.Account) (int64, error) {
	var id int64
	var apiKey sql.NullString
	if account.APIKey != "" {
		apiKey = sql.NullString{String: account.APIKey, Valid: true}
	}
	err := t.writer.Do(t.db, nil, func(txn *sql.Tx) error {
		return txn.Stmt(t.insertAccount).QueryRow(
			account.Username, account.Domain, account.PasswordHash, apiKey,
			account.IsBanned, account.Active, time.Now().Unix(),
		).Scan(&id)
	})
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
		return 0, fmt.Errorf("%s: %w", account.Address(), merrors.ErrAccountExists)
	}
	return id, err
}
