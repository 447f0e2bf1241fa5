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
)

type TableStars struct {
	db         *sql.DB
	writer     *Writer
	insertStar *sql.Stmt
}

const starsSchema = `
	CREATE TABLE IF NOT EXISTS stars (
		user_id		INTEGER NOT NULL REFERENCES users(id),
		message_id	INTEGER NOT NULL REFERENCES messages(id),
		created_at	INTEGER NOT NULL,
		PRIMARY KEY (user_id, message_id)
	);
`

const insertStarStmt = `
	INSERT OR IGNORE INTO stars (user_id, message_id, created_at) VALUES ($1, $2, $3)
`

func NewTableStars(db *sql.DB, writer *Writer) (*TableStars, error) {
	t := &TableStars{
		db:     db,
		writer: writer,
	}
	_, err := db.Exec(starsSchema)
	if err != nil {
		return nil, fmt.Errorf("db.Exec: %w", err)
	}
	t.insertStar, err = db.Prepare(insertStarStmt)
	if err != nil {
		return nil, fmt.Errorf("db.Prepare(insertStarStmt): %w", err)
	}
	return t, nil
}

// StarCreate stars a message for an account. Starring twice is a no-op.
func (t *TableStars) StarCreate(userID, messageID int64) error {
	return t.writer.Do(t.db, nil, func(txn *sql.Tx) error {
		_, err := txn.Stmt(t.insertStar).Exec(userID, messageID, time.Now().Unix())
		return err
	})
}
