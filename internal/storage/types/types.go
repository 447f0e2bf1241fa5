/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package types

import (
	"strings"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusSpam      Status = "spam"
	StatusScheduled Status = "scheduled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed, StatusSpam, StatusScheduled:
		return true
	}
	return false
}

type Folder string

const (
	FolderInbox   Folder = "inbox"
	FolderSent    Folder = "sent"
	FolderDrafts  Folder = "drafts"
	FolderSpam    Folder = "spam"
	FolderStarred Folder = "starred"
)

// Folders in the order they are listed to retrieval clients.
var Folders = []Folder{FolderInbox, FolderSent, FolderDrafts, FolderSpam, FolderStarred}

// DisplayName is the mailbox name shown to retrieval clients.
func (f Folder) DisplayName() string {
	if f == FolderInbox {
		return "INBOX"
	}
	s := string(f)
	return strings.ToUpper(s[:1]) + s[1:]
}

// ParseFolder matches a client supplied mailbox name case-insensitively.
func ParseFolder(name string) (Folder, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, f := range Folders {
		if string(f) == n {
			return f, true
		}
	}
	return "", false
}

const DefaultContentType = "text/html"

type Message struct {
	ID           int64
	FromAddress  string
	FromDomain   string
	ToAddress    string
	ToDomain     string
	Subject      string
	TextBody     string
	HTMLBody     string
	ContentType  string
	Status       Status
	ErrorMessage string
	Folder       Folder
	SentAt       time.Time // delivery or attempt time, zero when never attempted
	UserID       int64     // 0 when no owning account
	CreatedAt    time.Time
	MessageID    string // RFC 5322 Message-ID, when one was generated
}

// Size is the retrieval size of a message, the sum of its body parts.
func (m *Message) Size() int {
	return len(m.TextBody) + len(m.HTMLBody)
}

func (m *Message) Copy() *Message {
	c := *m
	return &c
}

type Account struct {
	ID           int64
	Username     string
	Domain       string
	PasswordHash string
	APIKey       string // empty when none
	IsBanned     bool
	Active       bool
	CreatedAt    time.Time
}

func (a *Account) Address() string {
	return a.Username + "@" + a.Domain
}

// Collection names the table a filter reads from.
type Collection int

const (
	CollectionMessages Collection = iota
	CollectionDrafts
	CollectionStars
)

// MessageFilter selects messages from a collection. Empty fields are not
// applied.
type MessageFilter struct {
	Collection  Collection
	ToAddress   string
	FromAddress string
	Statuses    []Status // status IN (...)
	NotStatuses []Status // status NOT IN (...)
	UserID      int64
}

type Order int

const (
	NewestFirst Order = iota
	OldestFirst
)
