/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package smtpserver

import (
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/JB-SelfCompany/mailforge/internal/storage/types"
)

// ParsedMessage is the part of a received message that gets stored.
type ParsedMessage struct {
	Subject   string
	MessageID string
	TextBody  string
	HTMLBody  string
}

// ParseMessage reads an RFC 5322 message and keeps the first text/plain and
// text/html inline parts. Attachments are dropped.
func ParseMessage(r io.Reader) (*ParsedMessage, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("mail.CreateReader: %w", err)
	}
	defer mr.Close() // nolint:errcheck

	parsed := &ParsedMessage{}
	parsed.Subject, _ = mr.Header.Subject()
	parsed.MessageID, _ = mr.Header.MessageID()

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, fmt.Errorf("mr.NextPart: %w", err)
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		switch strings.ToLower(ct) {
		case "text/plain", "":
			if parsed.TextBody != "" {
				continue
			}
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return nil, fmt.Errorf("read text part: %w", err)
			}
			parsed.TextBody = string(b)
		case "text/html":
			if parsed.HTMLBody != "" {
				continue
			}
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return nil, fmt.Errorf("read html part: %w", err)
			}
			parsed.HTMLBody = string(b)
		}
	}
	return parsed, nil
}

// Message builds the record for one envelope recipient.
func (p *ParsedMessage) Message(from, to string) *types.Message {
	contentType := "text/plain"
	if p.HTMLBody != "" {
		contentType = "text/html"
	}
	return &types.Message{
		FromAddress: from,
		ToAddress:   to,
		Subject:     p.Subject,
		TextBody:    p.TextBody,
		HTMLBody:    p.HTMLBody,
		ContentType: contentType,
		Status:      types.StatusPending,
		MessageID:   p.MessageID,
	}
}
