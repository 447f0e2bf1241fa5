/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/emersion/go-maildir"
)

// Archive keeps a raw copy of every locally delivered message in a Maildir
// per account, laid out as <base>/<domain>/<username>.
type Archive struct {
	basePath string
	mu       sync.Mutex
}

func NewArchive(basePath string) (*Archive, error) {
	if basePath == "" {
		return nil, fmt.Errorf("basePath cannot be empty")
	}
	if err := os.MkdirAll(basePath, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &Archive{basePath: basePath}, nil
}

func (a *Archive) BasePath() string {
	return a.basePath
}

func (a *Archive) dir(domain, username string) (maildir.Dir, error) {
	d, u := sanitizeName(domain), sanitizeName(username)
	if d == "" || u == "" {
		return "", fmt.Errorf("invalid archive owner %q@%q", username, domain)
	}
	return maildir.Dir(filepath.Join(a.basePath, d, u)), nil
}

// ensure creates the Maildir for an account if it doesn't exist yet.
func (a *Archive) ensure(domain, username string) (maildir.Dir, error) {
	dir, err := a.dir(domain, username)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(filepath.Join(string(dir), "cur")); os.IsNotExist(err) {
		if err := os.MkdirAll(string(dir), 0700); err != nil {
			return "", fmt.Errorf("os.MkdirAll: %w", err)
		}
		if err := dir.Init(); err != nil {
			return "", fmt.Errorf("dir.Init: %w", err)
		}
	}
	return dir, nil
}

// Store delivers the raw message into the account's new/ directory.
func (a *Archive) Store(domain, username string, r io.Reader) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	dir, err := a.ensure(domain, username)
	if err != nil {
		return err
	}
	delivery, err := maildir.NewDelivery(string(dir))
	if err != nil {
		return fmt.Errorf("maildir.NewDelivery: %w", err)
	}
	if _, err := io.Copy(delivery, r); err != nil {
		_ = delivery.Abort()
		return fmt.Errorf("io.Copy: %w", err)
	}
	if err := delivery.Close(); err != nil {
		return fmt.Errorf("delivery.Close: %w", err)
	}
	return nil
}

// Count returns the number of archived messages for an account. Messages
// still in new/ are moved to cur/ as a side effect.
func (a *Archive) Count(domain, username string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	dir, err := a.dir(domain, username)
	if err != nil {
		return 0, err
	}
	if _, err := os.Stat(filepath.Join(string(dir), "cur")); os.IsNotExist(err) {
		return 0, nil
	}
	if _, err := dir.Unseen(); err != nil {
		return 0, fmt.Errorf("dir.Unseen: %w", err)
	}
	msgs, err := dir.Messages()
	if err != nil {
		return 0, fmt.Errorf("dir.Messages: %w", err)
	}
	return len(msgs), nil
}

// sanitizeName lowercases a path component and removes anything that
// could escape the archive root.
func sanitizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	name = strings.ReplaceAll(name, "\x00", "")
	return name
}
