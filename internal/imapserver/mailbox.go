/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package imapserver

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/backend"
	"github.com/emersion/go-imap/backend/backendutil"
	"github.com/emersion/go-message/textproto"

	"github.com/JB-SelfCompany/mailforge/internal/storage/types"
	"github.com/JB-SelfCompany/mailforge/internal/utils"
)

const noSubject = "(No Subject)"

var mailboxFlags = []string{
	imap.SeenFlag, imap.AnsweredFlag, imap.FlaggedFlag, imap.DeletedFlag, imap.DraftFlag,
}

// Mailbox is a read-only view of one folder of the session's account.
type Mailbox struct {
	session *Session
	folder  types.Folder // empty when the name matched no folder
	name    string
}

var _ backend.Mailbox = (*Mailbox)(nil)

func (mbox *Mailbox) Name() string {
	return mbox.name
}

func (mbox *Mailbox) Info() (*imap.MailboxInfo, error) {
	info := &imap.MailboxInfo{
		Attributes: []string{},
		Delimiter:  "/",
		Name:       mbox.name,
	}
	return info, nil
}

func (mbox *Mailbox) backend() *Backend {
	return mbox.session.backend
}

// messages returns the newest messages of the folder, newest first.
func (mbox *Mailbox) messages() ([]*types.Message, error) {
	filter, ok := folderFilter(mbox.session.account, mbox.folder)
	if !ok {
		return nil, nil
	}
	messages, err := mbox.backend().Storage.MessageList(filter, mbox.backend().fetchLimit(), types.NewestFirst)
	if err != nil {
		return nil, fmt.Errorf("mbox.backend().Storage.MessageList: %w", err)
	}
	return messages, nil
}

func (mbox *Mailbox) Status(items []imap.StatusItem) (*imap.MailboxStatus, error) {
	status := imap.NewMailboxStatus(mbox.name, items)
	status.Flags = mailboxFlags
	status.PermanentFlags = mailboxFlags

	count, err := mbox.backend().count(mbox.session.account, mbox.folder)
	if err != nil {
		return nil, fmt.Errorf("mbox.backend().count: %w", err)
	}

	for _, name := range items {
		switch name {
		case imap.StatusMessages:
			status.Messages = uint32(count)

		case imap.StatusRecent:
			status.Recent = uint32(count)

		case imap.StatusUidNext:
			status.UidNext = 1
			newest, err := mbox.messages()
			if err != nil {
				return nil, err
			}
			for _, m := range newest {
				if uint32(m.ID) >= status.UidNext {
					status.UidNext = uint32(m.ID) + 1
				}
			}

		case imap.StatusUidValidity:
			status.UidValidity = 1

		case imap.StatusUnseen:
			status.Unseen = 0
		}
	}

	return status, nil
}

func (mbox *Mailbox) SetSubscribed(subscribed bool) error {
	return nil
}

func (mbox *Mailbox) Check() error {
	return nil
}

func (mbox *Mailbox) included(uid bool, seqSet *imap.SeqSet, seq uint32, m *types.Message) bool {
	if !mbox.backend().HonorFetchRange || seqSet == nil {
		return true
	}
	if uid {
		return seqSet.Contains(uint32(m.ID))
	}
	return seqSet.Contains(seq)
}

func (mbox *Mailbox) ListMessages(uid bool, seqSet *imap.SeqSet, items []imap.FetchItem, ch chan<- *imap.Message) error {
	defer close(ch)

	messages, err := mbox.messages()
	if err != nil {
		return err
	}

	items = withDefaultItems(items)
	for i, m := range messages {
		seq := uint32(i + 1)
		if !mbox.included(uid, seqSet, seq, m) {
			continue
		}
		fetched, err := mbox.fetch(seq, m, items)
		if err != nil {
			mbox.backend().Log.Warnf("Failed to render message %d: %v", m.ID, err)
			continue
		}
		ch <- fetched
	}
	return nil
}

// defaultItems are returned on every FETCH line whatever the client asked for.
var defaultItems = []imap.FetchItem{imap.FetchUid, imap.FetchRFC822Size, imap.FetchEnvelope}

func withDefaultItems(items []imap.FetchItem) []imap.FetchItem {
	out := append([]imap.FetchItem{}, defaultItems...)
	for _, item := range items {
		switch item {
		case imap.FetchUid, imap.FetchRFC822Size, imap.FetchEnvelope:
			continue
		}
		out = append(out, item)
	}
	return out
}

func (mbox *Mailbox) fetch(seq uint32, m *types.Message, items []imap.FetchItem) (*imap.Message, error) {
	fetched := imap.NewMessage(seq, items)
	fetched.Uid = uint32(m.ID)

	var raw []byte
	get := func() (*bufio.Reader, textproto.Header, error) {
		if raw == nil {
			var err error
			raw, err = utils.ComposeBytes(m, utils.ComposeOptions{Hostname: mbox.backend().Hostname})
			if err != nil {
				return nil, textproto.Header{}, fmt.Errorf("utils.ComposeBytes: %w", err)
			}
		}
		br := bufio.NewReader(bytes.NewReader(raw))
		hdr, err := textproto.ReadHeader(br)
		if err != nil {
			return nil, textproto.Header{}, fmt.Errorf("textproto.ReadHeader: %w", err)
		}
		return br, hdr, nil
	}

	for _, item := range items {
		switch item {
		case imap.FetchEnvelope:
			fetched.Envelope = envelope(m)

		case imap.FetchBody, imap.FetchBodyStructure:
			body, hdr, err := get()
			if err != nil {
				return nil, err
			}
			if fetched.BodyStructure, err = backendutil.FetchBodyStructure(hdr, body, item == imap.FetchBodyStructure); err != nil {
				return nil, fmt.Errorf("backendutil.FetchBodyStructure: %w", err)
			}

		case imap.FetchFlags:
			fetched.Flags = mbox.flags()

		case imap.FetchInternalDate:
			fetched.InternalDate = messageDate(m)

		case imap.FetchRFC822Size:
			fetched.Size = uint32(m.Size())

		case imap.FetchUid:
			fetched.Uid = uint32(m.ID)

		default:
			section, err := imap.ParseBodySectionName(item)
			if err != nil {
				continue
			}
			body, hdr, err := get()
			if err != nil {
				return nil, err
			}
			l, err := backendutil.FetchBodySection(hdr, body, section)
			if err != nil {
				continue
			}
			fetched.Body[section] = l
		}
	}
	return fetched, nil
}

func (mbox *Mailbox) flags() []string {
	switch mbox.folder {
	case types.FolderDrafts:
		return []string{imap.DraftFlag}
	case types.FolderStarred:
		return []string{imap.FlaggedFlag}
	case types.FolderSent:
		return []string{imap.SeenFlag}
	}
	return []string{}
}

func messageDate(m *types.Message) time.Time {
	if !m.SentAt.IsZero() {
		return m.SentAt
	}
	return m.CreatedAt
}

func envelopeAddress(address string) []*imap.Address {
	user, domain, err := utils.ParseAddress(address)
	if err != nil {
		return []*imap.Address{{MailboxName: address}}
	}
	return []*imap.Address{{MailboxName: user, HostName: domain}}
}

func envelope(m *types.Message) *imap.Envelope {
	subject := m.Subject
	if subject == "" {
		subject = noSubject
	}
	from := envelopeAddress(m.FromAddress)
	env := &imap.Envelope{
		Date:    messageDate(m),
		Subject: subject,
		From:    from,
		Sender:  from,
		ReplyTo: from,
		To:      envelopeAddress(m.ToAddress),
	}
	if m.MessageID != "" {
		env.MessageId = "<" + m.MessageID + ">"
	}
	return env
}

// SearchMessages ignores the criteria and matches every listed message.
func (mbox *Mailbox) SearchMessages(uid bool, criteria *imap.SearchCriteria) ([]uint32, error) {
	messages, err := mbox.messages()
	if err != nil {
		return nil, err
	}
	ids := make([]uint32, 0, len(messages))
	for i, m := range messages {
		if uid {
			ids = append(ids, uint32(m.ID))
		} else {
			ids = append(ids, uint32(i+1))
		}
	}
	return ids, nil
}

func (mbox *Mailbox) CreateMessage(flags []string, date time.Time, body imap.Literal) error {
	return errors.New("APPEND is not supported")
}

// UpdateMessagesFlags accepts and discards flag changes. Flags are derived
// from the folder.
func (mbox *Mailbox) UpdateMessagesFlags(uid bool, seqSet *imap.SeqSet, op imap.FlagsOp, flags []string) error {
	return nil
}

func (mbox *Mailbox) CopyMessages(uid bool, seqSet *imap.SeqSet, destName string) error {
	return errors.New("COPY is not supported")
}

func (mbox *Mailbox) Expunge() error {
	return nil
}
