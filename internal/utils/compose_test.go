/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package utils

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/JB-SelfCompany/mailforge/internal/storage/types"
)

func readParts(t *testing.T, raw []byte) (*mail.Reader, map[string]string) {
	t.Helper()
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("mail.CreateReader: %v", err)
	}
	parts := make(map[string]string)
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextPart: %v", err)
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		b, err := io.ReadAll(p.Body)
		if err != nil {
			t.Fatalf("read part: %v", err)
		}
		parts[ct] = string(b)
	}
	return mr, parts
}

func TestCompose(t *testing.T) {
	sent := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		msg       *types.Message
		multipart bool
		parts     map[string]string
	}{
		{
			name:      "text and html",
			msg:       &types.Message{TextBody: "plain ünïcode", HTMLBody: "<p>rich</p>"},
			multipart: true,
			parts:     map[string]string{"text/plain": "plain ünïcode", "text/html": "<p>rich</p>"},
		},
		{
			name:  "text only",
			msg:   &types.Message{TextBody: "just text"},
			parts: map[string]string{"text/plain": "just text"},
		},
		{
			name:  "html only",
			msg:   &types.Message{HTMLBody: "<b>bold</b>"},
			parts: map[string]string{"text/html": "<b>bold</b>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.msg.FromAddress = "alice@example.com"
			tt.msg.ToAddress = "carol@external.org"
			tt.msg.Subject = "Greetings"
			tt.msg.SentAt = sent
			tt.msg.MessageID = "abc@example.com"

			raw, err := ComposeBytes(tt.msg, ComposeOptions{Hostname: "example.com"})
			if err != nil {
				t.Fatalf("ComposeBytes: %v", err)
			}
			mr, parts := readParts(t, raw)

			if subject, _ := mr.Header.Subject(); subject != "Greetings" {
				t.Errorf("Subject = %q", subject)
			}
			if id, _ := mr.Header.MessageID(); id != "abc@example.com" {
				t.Errorf("Message-ID = %q", id)
			}
			if date, _ := mr.Header.Date(); !date.Equal(sent) {
				t.Errorf("Date = %v, want %v", date, sent)
			}
			from, _ := mr.Header.AddressList("From")
			if len(from) != 1 || from[0].Address != "alice@example.com" {
				t.Errorf("From = %v", from)
			}
			if mr.Header.Get("X-Mailer") != Mailer {
				t.Errorf("X-Mailer = %q", mr.Header.Get("X-Mailer"))
			}
			if mr.Header.Has("Received") {
				t.Error("unexpected Received header")
			}
			ct, _, _ := mr.Header.ContentType()
			if got := ct == "multipart/alternative"; got != tt.multipart {
				t.Errorf("Content-Type = %q", ct)
			}
			if len(parts) != len(tt.parts) {
				t.Errorf("parts = %v, want %v", parts, tt.parts)
			}
			for ct, body := range tt.parts {
				if parts[ct] != body {
					t.Errorf("part %s = %q, want %q", ct, parts[ct], body)
				}
			}
		})
	}
}

func TestComposeDefaults(t *testing.T) {
	msg := &types.Message{
		ID:          42,
		FromAddress: "alice@example.com",
		ToAddress:   "bob@example.com",
		TextBody:    "hi",
	}
	raw, err := ComposeBytes(msg, ComposeOptions{Hostname: "example.com", Received: true})
	if err != nil {
		t.Fatalf("ComposeBytes: %v", err)
	}
	mr, _ := readParts(t, raw)
	if id, _ := mr.Header.MessageID(); id != "42@example.com" {
		t.Errorf("Message-ID = %q, want 42@example.com", id)
	}
	if !strings.HasPrefix(mr.Header.Get("Received"), "by example.com (mailforge);") {
		t.Errorf("Received = %q", mr.Header.Get("Received"))
	}
	if date, err := mr.Header.Date(); err != nil || time.Since(date) > time.Minute {
		t.Errorf("Date = %v, %v", date, err)
	}
}

func TestNewMessageID(t *testing.T) {
	a, b := NewMessageID("example.com"), NewMessageID("example.com")
	if a == b {
		t.Fatalf("NewMessageID returned %q twice", a)
	}
	if !strings.HasSuffix(a, "@example.com") {
		t.Errorf("NewMessageID = %q", a)
	}
}
