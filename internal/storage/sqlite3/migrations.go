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

	"github.com/gologme/log"
)

const (
	currentSchemaVersion = 2
)

// GetSchemaVersion returns the current schema version from the database.
// Returns 1 if the schema_version table doesn't exist (legacy database).
func GetSchemaVersion(db *sql.DB) (int, error) {
	var tableName string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)
	if errors.Is(err, sql.ErrNoRows) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to check schema_version table: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query schema version: %w", err)
	}

	return version, nil
}

// SetSchemaVersion records version as applied.
func SetSchemaVersion(db *sql.DB, version int) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL,
			applied_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	_, err = db.Exec("INSERT INTO schema_version (version, applied_at) VALUES (?, strftime('%s', 'now'))", version)
	if err != nil {
		return fmt.Errorf("failed to insert schema version: %w", err)
	}

	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check for %s.%s: %w", table, column, err)
	}
	return count > 0, nil
}

// migrateV1toV2 adds the message_id column to the messages table. Databases
// created before outbound mail carried a Message-ID lack it.
func migrateV1toV2(db *sql.DB, logger *log.Logger) error {
	var tableExists int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='messages'").Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("failed to check for messages table: %w", err)
	}
	if tableExists == 0 {
		// Will be created with the current schema
		return nil
	}

	exists, err := columnExists(db, "messages", "message_id")
	if err != nil {
		return err
	}
	if exists {
		logger.Debugln("Column message_id already exists, migration already completed")
		return nil
	}

	logger.Infoln("Migrating database schema from v1 to v2...")
	if _, err = db.Exec("ALTER TABLE messages ADD COLUMN message_id TEXT"); err != nil {
		return fmt.Errorf("failed to add message_id column: %w", err)
	}
	logger.Infoln("Migration to v2 completed successfully")
	return nil
}

// RunMigrations brings the database to the current schema version.
func RunMigrations(db *sql.DB, logger *log.Logger) error {
	version, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	logger.Debugf("Current database schema version: %d, target version: %d", version, currentSchemaVersion)
	if version >= currentSchemaVersion {
		return nil
	}

	for v := version; v < currentSchemaVersion; v++ {
		switch v {
		case 1:
			if err := migrateV1toV2(db, logger); err != nil {
				return fmt.Errorf("migration v1->v2 failed: %w", err)
			}
			if err := SetSchemaVersion(db, 2); err != nil {
				return fmt.Errorf("failed to set schema version to 2: %w", err)
			}
		default:
			return fmt.Errorf("unknown migration version: %d", v)
		}
	}

	return nil
}
