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
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/oklog/ulid/v2"

	"github.com/JB-SelfCompany/mailforge/internal/storage/types"
)

const Mailer = "mailforge"

// NewMessageID returns a unique Message-ID (without angle brackets) on
// hostname.
func NewMessageID(hostname string) string {
	return fmt.Sprintf("%s@%s", ulid.Make().String(), hostname)
}

type ComposeOptions struct {
	// Hostname used for the Received trace header and for Message-IDs of
	// stored messages that never had one.
	Hostname string

	// Received adds a Received trace header.
	Received bool
}

// Compose renders a stored message as RFC 5322. Messages with both a text
// and an HTML body become multipart/alternative.
func Compose(w io.Writer, msg *types.Message, opts ComposeOptions) error {
	var h mail.Header
	date := msg.SentAt
	if date.IsZero() {
		date = msg.CreatedAt
	}
	if date.IsZero() {
		date = time.Now()
	}
	if opts.Received {
		h.Add("Received", fmt.Sprintf("by %s (%s); %s", opts.Hostname, Mailer, time.Now().Format(time.RFC1123Z)))
	}
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{{Address: msg.FromAddress}})
	h.SetAddressList("To", []*mail.Address{{Address: msg.ToAddress}})
	h.SetSubject(msg.Subject)
	switch {
	case msg.MessageID != "":
		h.SetMessageID(msg.MessageID)
	case msg.ID != 0:
		h.SetMessageID(fmt.Sprintf("%d@%s", msg.ID, opts.Hostname))
	}
	h.Set("X-Mailer", Mailer)
	h.Set("MIME-Version", "1.0")

	if msg.TextBody != "" && msg.HTMLBody != "" {
		h.SetContentType("multipart/alternative", nil)
		mw, err := message.CreateWriter(w, h.Header)
		if err != nil {
			return fmt.Errorf("message.CreateWriter: %w", err)
		}
		if err := writePart(mw, "text/plain", msg.TextBody); err != nil {
			return err
		}
		if err := writePart(mw, "text/html", msg.HTMLBody); err != nil {
			return err
		}
		return mw.Close()
	}

	body, mediaType := msg.TextBody, "text/plain"
	if msg.HTMLBody != "" {
		body, mediaType = msg.HTMLBody, "text/html"
	}
	h.SetContentType(mediaType, map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	bw, err := message.CreateWriter(w, h.Header)
	if err != nil {
		return fmt.Errorf("message.CreateWriter: %w", err)
	}
	if _, err := io.WriteString(bw, body); err != nil {
		return fmt.Errorf("io.WriteString: %w", err)
	}
	return bw.Close()
}

func writePart(mw *message.Writer, mediaType, body string) error {
	var ph message.Header
	ph.SetContentType(mediaType, map[string]string{"charset": "utf-8"})
	ph.Set("Content-Transfer-Encoding", "quoted-printable")
	pw, err := mw.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("mw.CreatePart: %w", err)
	}
	if _, err := io.WriteString(pw, body); err != nil {
		return fmt.Errorf("io.WriteString: %w", err)
	}
	return pw.Close()
}

// ComposeBytes is Compose into a buffer.
func ComposeBytes(msg *types.Message, opts ComposeOptions) ([]byte, error) {
	var buf bytes.Buffer
	if err := Compose(&buf, msg, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
