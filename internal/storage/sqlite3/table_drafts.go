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
	"fmt"
	"time"

	"github.com/JB-SelfCompany/mailforge/internal/storage/types"
)

type TableDrafts struct {
	db          *sql.DB
	writer      *Writer
	insertDraft *sql.Stmt
}

const draftsSchema = `
	CREATE TABLE IF NOT EXISTS drafts (
		id				INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id			INTEGER NOT NULL REFERENCES users(id),
		from_address	TEXT NOT NULL DEFAULT '',
		to_address		TEXT NOT NULL DEFAULT '',
		subject			TEXT NOT NULL DEFAULT '',
		body			TEXT NOT NULL DEFAULT '',
		html_body		TEXT NOT NULL DEFAULT '',
		created_at		INTEGER NOT NULL
	);
`

// Drafts are presented in the messages column layout.
const draftColumns = `id, from_address, substr(from_address, instr(from_address, '@') + 1),
	to_address, substr(to_address, instr(to_address, '@') + 1), subject, body, html_body,
	'text/html', 'pending', NULL, 'drafts', NULL, user_id, created_at, NULL`

const insertDraftStmt = `
	INSERT INTO drafts (user_id, from_address, to_address, subject, body, html_body, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id
`

func NewTableDrafts(db *sql.DB, writer *Writer) (*TableDrafts, error) {
	t := &TableDrafts{
		db:     db,
		writer: writer,
	}
	_, err := db.Exec(draftsSchema)
	if err != nil {
		return nil, fmt.Errorf("db.Exec: %w", err)
	}
	t.insertDraft, err = db.Prepare(insertDraftStmt)
	if err != nil {
		return nil, fmt.Errorf("db.Prepare(insertDraftStmt): %w", err)
	}
	return t, nil
}

func (t *TableDrafts) DraftCreate(msg *types.Message) (*types.Message, error) {
	if msg.UserID == 0 {
		return nil, fmt.Errorf("draft without owning account")
	}
	stored := msg.Copy()
	stored.Status = types.StatusPending
	stored.Folder = types.FolderDrafts
	stored.ContentType = types.DefaultContentType
	stored.CreatedAt = time.Now()
	err := t.writer.Do(t.db, nil, func(txn *sql.Tx) error {
		return txn.Stmt(t.insertDraft).QueryRow(
			stored.UserID, stored.FromAddress, stored.ToAddress, stored.Subject,
			stored.TextBody, stored.HTMLBody, stored.CreatedAt.Unix(),
		).Scan(&stored.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("t.insertDraft.QueryRow: %w", err)
	}
	return stored, nil
}
