/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package imapserver

import (
	"fmt"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/gologme/log"

	"github.com/JB-SelfCompany/mailforge/internal/storage/sqlite3"
	"github.com/JB-SelfCompany/mailforge/internal/storage/types"
)

func setupStorage(t *testing.T) *sqlite3.SQLite3Storage {
	t.Helper()
	s, err := sqlite3.NewSQLite3Storage(filepath.Join(t.TempDir(), "test.db"), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createAccount(t *testing.T, s *sqlite3.SQLite3Storage, username, passwordHash string) *types.Account {
	t.Helper()
	account := &types.Account{Username: username, Domain: "example.com", PasswordHash: passwordHash, Active: true}
	id, err := s.AccountCreate(account)
	if err != nil {
		t.Fatalf("AccountCreate: %v", err)
	}
	account.ID = id
	return account
}

func putMessage(t *testing.T, s *sqlite3.SQLite3Storage, from, to string, status types.Status, subject string, sentAt time.Time) *types.Message {
	t.Helper()
	msg := &types.Message{
		FromAddress: from,
		FromDomain:  "example.com",
		ToAddress:   to,
		ToDomain:    "example.com",
		Subject:     subject,
		TextBody:    "text of " + subject,
		HTMLBody:    "<p>" + subject + "</p>",
		Status:      status,
		SentAt:      sentAt,
	}
	stored, err := s.MessageCreate(msg)
	if err != nil {
		t.Fatalf("MessageCreate: %v", err)
	}
	return stored
}

func listAll(t *testing.T, mbox *Mailbox, uid bool, seqSet *imap.SeqSet) []*imap.Message {
	t.Helper()
	ch := make(chan *imap.Message, 100)
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchRFC822Size, imap.FetchUid, imap.FetchFlags}
	if err := mbox.ListMessages(uid, seqSet, items, ch); err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	var out []*imap.Message
	for m := range ch {
		out = append(out, m)
	}
	return out
}

func TestFolderQueries(t *testing.T) {
	s := setupStorage(t)
	alice := createAccount(t, s, "alice", "x")
	bob := createAccount(t, s, "bob", "x")
	now := time.Now()

	putMessage(t, s, "bob@example.com", "alice@example.com", types.StatusSent, "inbox 1", now)
	putMessage(t, s, "carol@external.org", "alice@example.com", types.StatusSent, "inbox 2", now)
	putMessage(t, s, "spammer@external.org", "alice@example.com", types.StatusSpam, "spam", time.Time{})
	putMessage(t, s, "bob@example.com", "alice@example.com", types.StatusScheduled, "later", time.Time{})
	starred := putMessage(t, s, "alice@example.com", "bob@example.com", types.StatusSent, "sent 1", now)
	putMessage(t, s, "alice@example.com", "carol@external.org", types.StatusSent, "sent 2", now)
	if _, err := s.DraftCreate(&types.Message{UserID: alice.ID, FromAddress: "alice@example.com", ToAddress: "bob@example.com", Subject: "draft"}); err != nil {
		t.Fatalf("DraftCreate: %v", err)
	}
	if err := s.StarCreate(alice.ID, starred.ID); err != nil {
		t.Fatalf("StarCreate: %v", err)
	}

	backend := &Backend{Storage: s, Log: log.New(io.Discard, "", 0), Hostname: "example.com"}
	session := &Session{backend: backend, account: alice}
	bobSession := &Session{backend: backend, account: bob}

	tests := []struct {
		name    string
		session *Session
		mailbox string
		want    int
	}{
		{"inbox excludes spam and scheduled", session, "INBOX", 2},
		{"inbox case-insensitive", session, "inbox", 2},
		{"sent", session, "Sent", 2},
		{"spam", session, "SPAM", 1},
		{"drafts", session, "Drafts", 1},
		{"starred", session, "Starred", 1},
		{"unknown folder", session, "Archive", 0},
		{"other account inbox", bobSession, "INBOX", 1},
		{"other account drafts", bobSession, "Drafts", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := tt.session.GetMailbox(tt.mailbox)
			if err != nil {
				t.Fatalf("GetMailbox(%q): %v", tt.mailbox, err)
			}
			mbox := m.(*Mailbox)
			status, err := mbox.Status([]imap.StatusItem{imap.StatusMessages, imap.StatusRecent, imap.StatusUidValidity})
			if err != nil {
				t.Fatalf("Status: %v", err)
			}
			if int(status.Messages) != tt.want || int(status.Recent) != tt.want {
				t.Errorf("Status messages/recent = %d/%d, want %d", status.Messages, status.Recent, tt.want)
			}
			if status.UidValidity != 1 {
				t.Errorf("UidValidity = %d, want 1", status.UidValidity)
			}
			if got := listAll(t, mbox, false, nil); len(got) != tt.want {
				t.Errorf("ListMessages returned %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestListMailboxes(t *testing.T) {
	session := &Session{backend: &Backend{}, account: &types.Account{Username: "alice", Domain: "example.com"}}
	mailboxes, err := session.ListMailboxes(false)
	if err != nil {
		t.Fatalf("ListMailboxes: %v", err)
	}
	want := []string{"INBOX", "Sent", "Drafts", "Spam", "Starred"}
	if len(mailboxes) != len(want) {
		t.Fatalf("ListMailboxes returned %d, want %d", len(mailboxes), len(want))
	}
	for i, m := range mailboxes {
		info, _ := m.Info()
		if info.Name != want[i] || info.Delimiter != "/" {
			t.Errorf("mailbox %d = %q %q, want %q \"/\"", i, info.Name, info.Delimiter, want[i])
		}
	}
	if err := session.CreateMailbox("Archive"); err == nil {
		t.Error("CreateMailbox succeeded")
	}
}

func TestListMessagesOrderAndEnvelope(t *testing.T) {
	s := setupStorage(t)
	alice := createAccount(t, s, "alice", "x")
	base := time.Now().Add(-time.Hour)
	var ids []int64
	for i, subject := range []string{"first", "second", ""} {
		m := putMessage(t, s, "bob@example.com", "alice@example.com", types.StatusSent, subject, base.Add(time.Duration(i)*time.Minute))
		ids = append(ids, m.ID)
	}

	backend := &Backend{Storage: s, Log: log.New(io.Discard, "", 0), Hostname: "example.com"}
	mbox := (&Session{backend: backend, account: alice}).mailbox(types.FolderInbox, "INBOX")

	got := listAll(t, mbox, false, nil)
	if len(got) != 3 {
		t.Fatalf("ListMessages returned %d, want 3", len(got))
	}
	for i, m := range got {
		if m.SeqNum != uint32(i+1) {
			t.Errorf("message %d SeqNum = %d", i, m.SeqNum)
		}
		if want := uint32(ids[len(ids)-1-i]); m.Uid != want {
			t.Errorf("message %d Uid = %d, want %d (newest first)", i, m.Uid, want)
		}
	}
	if got[0].Envelope.Subject != noSubject {
		t.Errorf("empty subject rendered as %q", got[0].Envelope.Subject)
	}
	if got[2].Envelope.Subject != "first" {
		t.Errorf("oldest subject = %q", got[2].Envelope.Subject)
	}
	from := got[2].Envelope.From
	if len(from) != 1 || from[0].MailboxName != "bob" || from[0].HostName != "example.com" {
		t.Errorf("envelope from = %+v", from)
	}
	if want := uint32(len("text of first") + len("<p>first</p>")); got[2].Size != want {
		t.Errorf("Size = %d, want %d", got[2].Size, want)
	}
}

func TestWithDefaultItems(t *testing.T) {
	tests := []struct {
		name  string
		items []imap.FetchItem
		want  []imap.FetchItem
	}{
		{"none", nil, []imap.FetchItem{imap.FetchUid, imap.FetchRFC822Size, imap.FetchEnvelope}},
		{"flags", []imap.FetchItem{imap.FetchFlags},
			[]imap.FetchItem{imap.FetchUid, imap.FetchRFC822Size, imap.FetchEnvelope, imap.FetchFlags}},
		{"duplicates dropped", []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, imap.FetchInternalDate},
			[]imap.FetchItem{imap.FetchUid, imap.FetchRFC822Size, imap.FetchEnvelope, imap.FetchInternalDate}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := withDefaultItems(tt.items)
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("withDefaultItems(%v) = %v, want %v", tt.items, got, tt.want)
			}
		})
	}
}

func TestListMessagesFlagsOnlyStillCarriesEnvelope(t *testing.T) {
	s := setupStorage(t)
	alice := createAccount(t, s, "alice", "x")
	stored := putMessage(t, s, "bob@example.com", "alice@example.com", types.StatusSent, "hello", time.Now())

	backend := &Backend{Storage: s, Log: log.New(io.Discard, "", 0), Hostname: "example.com"}
	mbox := (&Session{backend: backend, account: alice}).mailbox(types.FolderInbox, "INBOX")

	ch := make(chan *imap.Message, 10)
	if err := mbox.ListMessages(false, nil, []imap.FetchItem{imap.FetchFlags}, ch); err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	m, ok := <-ch
	if !ok {
		t.Fatal("ListMessages returned nothing")
	}
	for _, item := range defaultItems {
		if _, ok := m.Items[item]; !ok {
			t.Errorf("missing item %s", item)
		}
	}
	if m.Uid != uint32(stored.ID) || m.Envelope == nil || m.Envelope.Subject != "hello" {
		t.Errorf("message = uid %d envelope %+v", m.Uid, m.Envelope)
	}
}

func TestListMessagesRangeAndLimit(t *testing.T) {
	s := setupStorage(t)
	alice := createAccount(t, s, "alice", "x")
	for i := 0; i < 5; i++ {
		putMessage(t, s, "bob@example.com", "alice@example.com", types.StatusSent, "m", time.Now().Add(time.Duration(i)*time.Second))
	}
	seqSet, err := imap.ParseSeqSet("1:2")
	if err != nil {
		t.Fatalf("ParseSeqSet: %v", err)
	}

	tests := []struct {
		name  string
		limit int
		honor bool
		want  int
	}{
		{"range ignored", 0, false, 5},
		{"range honored", 0, true, 2},
		{"limit", 3, false, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &Backend{Storage: s, Log: log.New(io.Discard, "", 0), FetchLimit: tt.limit, HonorFetchRange: tt.honor}
			mbox := (&Session{backend: backend, account: alice}).mailbox(types.FolderInbox, "INBOX")
			if got := listAll(t, mbox, false, seqSet); len(got) != tt.want {
				t.Errorf("ListMessages returned %d, want %d", len(got), tt.want)
			}
		})
	}
}
