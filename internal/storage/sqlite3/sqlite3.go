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

	"github.com/gologme/log"
	_ "github.com/mattn/go-sqlite3"
)

type SQLite3Storage struct {
	*TableAccounts
	*TableMessages
	*TableDrafts
	*TableStars
	db     *sql.DB
	writer *Writer
}

func NewSQLite3Storage(filename string, logger *log.Logger) (*SQLite3Storage, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_journal=WAL&_sync=NORMAL&_foreign_keys=on", filename)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	s := &SQLite3Storage{
		db:     db,
		writer: NewWriter(),
	}
	if s.TableAccounts, err = NewTableAccounts(db, s.writer); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewTableAccounts: %w", err)
	}
	if err = RunMigrations(db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("RunMigrations: %w", err)
	}
	if s.TableMessages, err = NewTableMessages(db, s.writer); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewTableMessages: %w", err)
	}
	if s.TableDrafts, err = NewTableDrafts(db, s.writer); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewTableDrafts: %w", err)
	}
	if s.TableStars, err = NewTableStars(db, s.writer); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewTableStars: %w", err)
	}
	return s, nil
}

func (s *SQLite3Storage) Close() error {
	return s.db.Close()
}
