/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package smtpsender

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/gologme/log"

	"github.com/JB-SelfCompany/mailforge/internal/dnscache"
	merrors "github.com/JB-SelfCompany/mailforge/internal/errors"
	"github.com/JB-SelfCompany/mailforge/internal/logging"
	"github.com/JB-SelfCompany/mailforge/internal/storage/types"
	"github.com/JB-SelfCompany/mailforge/internal/transport"
)

type memMessages struct {
	mu       sync.Mutex
	messages []*types.Message
}

func (m *memMessages) MessageCreate(msg *types.Message) (*types.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := msg.Copy()
	c.ID = int64(len(m.messages) + 1)
	c.CreatedAt = time.Now()
	m.messages = append(m.messages, c)
	return c.Copy(), nil
}

type refusingTransport struct {
	dials []string
}

func (r *refusingTransport) Dial(ctx context.Context, address string) (net.Conn, error) {
	r.dials = append(r.dials, address)
	return nil, errors.New("connection refused")
}

// received is what the loopback exchange accepted.
type received struct {
	mu   sync.Mutex
	from string
	rcpt []string
	data []byte
}

type sinkBackend struct {
	got *received
}

func (b *sinkBackend) Login(state *smtp.ConnectionState, username, password string) (smtp.Session, error) {
	return nil, smtp.ErrAuthUnsupported
}

func (b *sinkBackend) AnonymousLogin(state *smtp.ConnectionState) (smtp.Session, error) {
	return &sinkSession{got: b.got}, nil
}

type sinkSession struct {
	got *received
}

func (s *sinkSession) Mail(from string, opts smtp.MailOptions) error {
	s.got.mu.Lock()
	defer s.got.mu.Unlock()
	s.got.from = from
	return nil
}

func (s *sinkSession) Rcpt(to string) error {
	s.got.mu.Lock()
	defer s.got.mu.Unlock()
	s.got.rcpt = append(s.got.rcpt, to)
	return nil
}

func (s *sinkSession) Data(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.got.mu.Lock()
	defer s.got.mu.Unlock()
	s.got.data = b
	return nil
}

func (s *sinkSession) Reset() {}

func (s *sinkSession) Logout() error { return nil }

// startExchange runs a plain SMTP server on loopback and returns its port.
func startExchange(t *testing.T) (int, *received) {
	t.Helper()
	got := &received{}
	srv := smtp.NewServer(&sinkBackend{got: got})
	srv.Domain = "mx.external.org"
	srv.AuthDisabled = true
	srv.AllowInsecureAuth = true

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	go srv.Serve(l) // nolint:errcheck
	t.Cleanup(func() { srv.Close() })
	return l.Addr().(*net.TCPAddr).Port, got
}

func externalExchanges() *dnscache.MockResolver {
	return &dnscache.MockResolver{
		MX: map[string][]*net.MX{
			"external.org": {
				{Host: "backup.external.org.", Pref: 20},
				{Host: "mx.external.org.", Pref: 10},
			},
		},
		A: map[string][]string{
			"mx.external.org":     {"127.0.0.1"},
			"backup.external.org": {"127.0.0.2"},
		},
	}
}

func newRemote(store MessageWriter, resolver dnscache.Resolver, tr transport.Transport, port int) *RemoteDelivery {
	logger := log.New(io.Discard, "", 0)
	return &RemoteDelivery{
		Storage:   store,
		Exchanges: dnscache.NewCache(resolver, time.Minute, logger),
		Transport: tr,
		Hostname:  "example.com",
		Port:      port,
		Log:       logger,
		Ops:       logging.NewOperationLogger(logger),
	}
}

func TestDeliverRemotelyConnectFailure(t *testing.T) {
	store := &memMessages{}
	tr := &refusingTransport{}
	remote := newRemote(store, externalExchanges(), tr, 0)

	before := time.Now()
	_, err := remote.DeliverRemotely(context.Background(), &types.Message{
		FromAddress: "alice@example.com",
		ToAddress:   "carol@external.org",
		Subject:     "Hello",
		TextBody:    "hi carol",
	})
	if !errors.Is(err, merrors.ErrTransportFailure) {
		t.Fatalf("DeliverRemotely error = %v, want ErrTransportFailure", err)
	}
	if len(tr.dials) != 1 || tr.dials[0] != "127.0.0.1:25" {
		t.Errorf("dials = %v, want only the best exchange on port 25", tr.dials)
	}
	if len(store.messages) != 1 {
		t.Fatalf("records = %d, want 1", len(store.messages))
	}
	m := store.messages[0]
	if m.Status != types.StatusFailed {
		t.Errorf("status = %s, want failed", m.Status)
	}
	if m.FromAddress != "alice@example.com" || m.ToAddress != "carol@external.org" {
		t.Errorf("addresses = %s -> %s", m.FromAddress, m.ToAddress)
	}
	if m.ErrorMessage == "" || m.ErrorMessage != err.Error() {
		t.Errorf("error message = %q, want %q", m.ErrorMessage, err.Error())
	}
	if m.SentAt.Before(before) || m.SentAt.After(time.Now()) {
		t.Errorf("SentAt = %v, want the attempt time", m.SentAt)
	}
}

func TestDeliverRemotelyNoExchange(t *testing.T) {
	store := &memMessages{}
	tr := &refusingTransport{}
	remote := newRemote(store, &dnscache.MockResolver{}, tr, 0)

	_, err := remote.DeliverRemotely(context.Background(), &types.Message{
		FromAddress: "alice@example.com",
		ToAddress:   "carol@nowhere.invalid",
		TextBody:    "hi",
	})
	if !errors.Is(err, merrors.ErrNoExchangeFound) {
		t.Fatalf("DeliverRemotely error = %v, want ErrNoExchangeFound", err)
	}
	if len(tr.dials) != 0 {
		t.Errorf("dials = %v, want none", tr.dials)
	}
	if len(store.messages) != 1 || store.messages[0].Status != types.StatusFailed {
		t.Fatalf("want exactly one failed record, got %+v", store.messages)
	}
	if store.messages[0].SentAt.IsZero() {
		t.Error("failed record has no attempt time")
	}
}

func TestDeliverRemotelyMalformed(t *testing.T) {
	store := &memMessages{}
	remote := newRemote(store, externalExchanges(), &refusingTransport{}, 0)

	_, err := remote.DeliverRemotely(context.Background(), &types.Message{
		FromAddress: "alice@example.com",
		ToAddress:   "carol",
	})
	if !errors.Is(err, merrors.ErrMalformedRecipient) {
		t.Fatalf("DeliverRemotely error = %v, want ErrMalformedRecipient", err)
	}
	if len(store.messages) != 0 {
		t.Errorf("records = %d, want 0", len(store.messages))
	}
}

func TestDeliverRemotelySuccess(t *testing.T) {
	port, got := startExchange(t)
	store := &memMessages{}
	remote := newRemote(store, externalExchanges(), transport.NewTCPTransport(5*time.Second, 5*time.Second), port)

	stored, err := remote.DeliverRemotely(context.Background(), &types.Message{
		FromAddress: "alice@example.com",
		ToAddress:   "carol@external.org",
		Subject:     "Quarterly report",
		TextBody:    "plain version",
		HTMLBody:    "<p>html version</p>",
	})
	if err != nil {
		t.Fatalf("DeliverRemotely: %v", err)
	}
	if stored.Status != types.StatusSent || stored.Folder != types.FolderSent {
		t.Errorf("stored status/folder = %s/%s, want sent/sent", stored.Status, stored.Folder)
	}
	if stored.SentAt.IsZero() {
		t.Error("stored SentAt is zero")
	}
	if !strings.HasSuffix(stored.MessageID, "@example.com") {
		t.Errorf("MessageID = %q", stored.MessageID)
	}
	if len(store.messages) != 1 {
		t.Fatalf("records = %d, want 1", len(store.messages))
	}

	got.mu.Lock()
	defer got.mu.Unlock()
	if got.from != "alice@example.com" {
		t.Errorf("MAIL FROM = %q", got.from)
	}
	if len(got.rcpt) != 1 || got.rcpt[0] != "carol@external.org" {
		t.Errorf("RCPT TO = %v", got.rcpt)
	}
	for _, want := range []string{
		"multipart/alternative",
		"Subject: Quarterly report",
		"X-Mailer: mailforge",
		"Received: by example.com",
		stored.MessageID,
		"plain version",
		"html version",
	} {
		if !bytes.Contains(got.data, []byte(want)) {
			t.Errorf("DATA missing %q", want)
		}
	}
}
