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
	"strings"
	"time"

	merrors "github.com/JB-SelfCompany/mailforge/internal/errors"
	"github.com/JB-SelfCompany/mailforge/internal/storage/types"
)

type TableMessages struct {
	db            *sql.DB
	writer        *Writer
	insertMessage *sql.Stmt
}

const messagesSchema = `
	CREATE TABLE IF NOT EXISTS messages (
		id				INTEGER PRIMARY KEY AUTOINCREMENT,
		from_address	TEXT NOT NULL COLLATE NOCASE,
		from_domain		TEXT NOT NULL COLLATE NOCASE,
		to_address		TEXT NOT NULL COLLATE NOCASE,
		to_domain		TEXT NOT NULL COLLATE NOCASE,
		subject			TEXT NOT NULL DEFAULT '',
		body			TEXT NOT NULL DEFAULT '',
		html_body		TEXT NOT NULL DEFAULT '',
		content_type	TEXT NOT NULL DEFAULT 'text/html',
		status			TEXT NOT NULL,
		error_message	TEXT,
		folder			TEXT NOT NULL DEFAULT 'inbox',
		sent_at			INTEGER,	-- unix seconds, set once sent
		user_id			INTEGER REFERENCES users(id),
		created_at		INTEGER NOT NULL,
		message_id		TEXT,
		CHECK (status <> 'failed' OR (error_message IS NOT NULL AND error_message <> '')),
		CHECK (status <> 'sent' OR sent_at IS NOT NULL)
	);

	CREATE INDEX IF NOT EXISTS messages_to_address ON messages (to_address, status);
	CREATE INDEX IF NOT EXISTS messages_from_address ON messages (from_address, status);
`

const messageColumns = `id, from_address, from_domain, to_address, to_domain, subject, body, html_body,
	content_type, status, error_message, folder, sent_at, user_id, created_at, message_id`

const insertMessageStmt = `
	INSERT INTO messages (from_address, from_domain, to_address, to_domain, subject, body, html_body,
		content_type, status, error_message, folder, sent_at, user_id, created_at, message_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	RETURNING id
`

func NewTableMessages(db *sql.DB, writer *Writer) (*TableMessages, error) {
	t := &TableMessages{
		db:     db,
		writer: writer,
	}
	_, err := db.Exec(messagesSchema)
	if err != nil {
		return nil, fmt.Errorf("db.Exec: %w", err)
	}
	t.insertMessage, err = db.Prepare(insertMessageStmt)
	if err != nil {
		return nil, fmt.Errorf("db.Prepare(insertMessageStmt): %w", err)
	}
	return t, nil
}

func checkInvariants(msg *types.Message) error {
	if !msg.Status.Valid() {
		return fmt.Errorf("status %q: %w", msg.Status, merrors.ErrInvariantViolation)
	}
	if msg.Status == types.StatusFailed && msg.ErrorMessage == "" {
		return fmt.Errorf("failed without error message: %w", merrors.ErrInvariantViolation)
	}
	if msg.Status == types.StatusSent && msg.SentAt.IsZero() {
		return fmt.Errorf("sent without sent_at: %w", merrors.ErrInvariantViolation)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullInt64 {
	return sql.NullInt64{Int64: t.Unix(), Valid: !t.IsZero()}
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

// MessageCreate stores msg and returns a copy carrying the new ID and
// creation time.
func (t *TableMessages) MessageCreate(msg *types.Message) (*types.Message, error) {
	if err := checkInvariants(msg); err != nil {
		return nil, err
	}
	stored := msg.Copy()
	if stored.ContentType == "" {
		stored.ContentType = types.DefaultContentType
	}
	if stored.Folder == "" {
		stored.Folder = types.FolderInbox
	}
	stored.CreatedAt = time.Now()
	err := t.writer.Do(t.db, nil, func(txn *sql.Tx) error {
		return txn.Stmt(t.insertMessage).QueryRow(
			stored.FromAddress, stored.FromDomain, stored.ToAddress, stored.ToDomain,
			stored.Subject, stored.TextBody, stored.HTMLBody, stored.ContentType,
			string(stored.Status), nullString(stored.ErrorMessage), string(stored.Folder),
			nullTime(stored.SentAt), nullID(stored.UserID), stored.CreatedAt.Unix(),
			nullString(stored.MessageID),
		).Scan(&stored.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("t.insertMessage.QueryRow: %w", err)
	}
	return stored, nil
}

func (t *TableMessages) MessageCount(filter types.MessageFilter) (int, error) {
	from, where, args := filterQuery(filter)
	var count int
	err := t.db.QueryRow("SELECT COUNT(*) FROM "+from+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("db.QueryRow: %w", err)
	}
	return count, nil
}

// MessageList returns up to limit messages matching filter. A limit of zero
// or less returns every match.
func (t *TableMessages) MessageList(filter types.MessageFilter, limit int, order types.Order) ([]*types.Message, error) {
	from, where, args := filterQuery(filter)
	query := "SELECT " + selectColumns(filter.Collection) + " FROM " + from + where
	if order == types.OldestFirst {
		query += " ORDER BY sort_at ASC, id ASC"
	} else {
		query += " ORDER BY sort_at DESC, id DESC"
	}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := t.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("db.Query: %w", err)
	}
	defer rows.Close() // nolint:errcheck
	var messages []*types.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}
	return messages, nil
}

// selectColumns maps every collection onto the messages column layout so
// that one scanner serves them all. sort_at is the ordering key.
func selectColumns(c types.Collection) string {
	switch c {
	case types.CollectionDrafts:
		return draftColumns + `, created_at AS sort_at`
	case types.CollectionStars:
		return messageColumns + `, starred_at AS sort_at`
	default:
		return messageColumns + `, COALESCE(sent_at, created_at) AS sort_at`
	}
}

func filterQuery(filter types.MessageFilter) (string, string, []interface{}) {
	var conds []string
	var args []interface{}
	var from string
	switch filter.Collection {
	case types.CollectionDrafts:
		from = "drafts"
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
		return from, " WHERE " + strings.Join(conds, " AND "), args
	case types.CollectionStars:
		from = "(SELECT m.*, s.created_at AS starred_at, s.user_id AS starred_by FROM stars s JOIN messages m ON m.id = s.message_id)"
		conds = append(conds, "starred_by = ?")
		args = append(args, filter.UserID)
		return from, " WHERE " + strings.Join(conds, " AND "), args
	default:
		from = "messages"
	}
	if filter.ToAddress != "" {
		conds = append(conds, "to_address = ?")
		args = append(args, filter.ToAddress)
	}
	if filter.FromAddress != "" {
		conds = append(conds, "from_address = ?")
		args = append(args, filter.FromAddress)
	}
	if filter.UserID != 0 {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if len(filter.Statuses) > 0 {
		conds = append(conds, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, s := range filter.Statuses {
			args = append(args, string(s))
		}
	}
	if len(filter.NotStatuses) > 0 {
		conds = append(conds, "status NOT IN ("+placeholders(len(filter.NotStatuses))+")")
		for _, s := range filter.NotStatuses {
			args = append(args, string(s))
		}
	}
	if len(conds) == 0 {
		return from, "", args
	}
	return from, " WHERE " + strings.Join(conds, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func scanMessage(rows *sql.Rows) (*types.Message, error) {
	var status, folder string
	var errorMessage, messageID sql.NullString
	var sentAt, userID sql.NullInt64
	var createdAt, sortAt int64
	msg := &types.Message{}
	err := rows.Scan(
		&msg.ID, &msg.FromAddress, &msg.FromDomain, &msg.ToAddress, &msg.ToDomain,
		&msg.Subject, &msg.TextBody, &msg.HTMLBody, &msg.ContentType,
		&status, &errorMessage, &folder, &sentAt, &userID, &createdAt, &messageID,
		&sortAt,
	)
	if err != nil {
		return nil, fmt.Errorf("rows.Scan: %w", err)
	}
	msg.Status = types.Status(status)
	msg.Folder = types.Folder(folder)
	msg.ErrorMessage = errorMessage.String
	msg.MessageID = messageID.String
	msg.UserID = userID.Int64
	msg.CreatedAt = time.Unix(createdAt, 0)
	if sentAt.Valid {
		msg.SentAt = time.Unix(sentAt.Int64, 0)
	}
	return msg, nil
}
