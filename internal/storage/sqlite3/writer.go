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
	"sync"
)

// Writer serialises every write to the database.
type Writer struct {
	mutex sync.Mutex
}

func NewWriter() *Writer {
	return &Writer{}
}

// Do runs f inside txn, or inside a new transaction when txn is nil. The
// transaction is committed when f returns nil and rolled back otherwise.
func (w *Writer) Do(db *sql.DB, txn *sql.Tx, f func(txn *sql.Tx) error) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if txn != nil {
		return f(txn)
	}
	txn, err := db.Begin()
	if err != nil {
		return fmt.Errorf("db.Begin: %w", err)
	}
	if err = f(txn); err != nil {
		_ = txn.Rollback()
		return err
	}
	if err = txn.Commit(); err != nil {
		return fmt.Errorf("txn.Commit: %w", err)
	}
	return nil
}
