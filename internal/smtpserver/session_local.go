/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package smtpserver

import (
	"context"
	"fmt"
	"io"

	"github.com/emersion/go-smtp"

	"github.com/JB-SelfCompany/mailforge/internal/storage/types"
	"github.com/JB-SelfCompany/mailforge/internal/utils"
)

// SessionLocal is a submission session of an authenticated account. Every
// message is sent as the account regardless of the MAIL FROM given.
type SessionLocal struct {
	backend *Backend
	state   *smtp.ConnectionState
	account *types.Account
	from    string
	rcpt    []string
}

func (s *SessionLocal) Mail(from string, opts smtp.MailOptions) error {
	s.rcpt = s.rcpt[:0]
	s.from = s.account.Address()
	if from != "" && from != s.from {
		s.backend.Log.Debugf("Rewriting MAIL FROM %s to %s", from, s.from)
	}
	return nil
}

func (s *SessionLocal) Rcpt(to string) error {
	if _, _, err := utils.ParseAddress(to); err != nil {
		return &smtp.SMTPError{
			Code:         553,
			EnhancedCode: smtp.EnhancedCode{5, 1, 3},
			Message:      fmt.Sprintf("Malformed recipient address %q", to),
		}
	}
	s.rcpt = append(s.rcpt, to)
	return nil
}

// Data routes the message once per recipient. Recipients that fail do not
// stop delivery to the others, but the first failure is returned.
func (s *SessionLocal) Data(r io.Reader) error {
	parsed, err := ParseMessage(r)
	if err != nil {
		s.backend.Log.Warnf("Rejected unparseable message from %s: %v", s.from, err)
		return &smtp.SMTPError{
			Code:         554,
			EnhancedCode: smtp.EnhancedCode{5, 6, 0},
			Message:      "Message could not be parsed",
		}
	}

	var first error
	for _, to := range s.rcpt {
		if _, err := s.backend.Router.Route(context.Background(), parsed.Message(s.from, to)); err != nil {
			s.backend.Log.Errorf("Failed to deliver message from %s to %s: %v", s.from, to, err)
			if first == nil {
				first = err
			}
			continue
		}
		s.backend.Log.Infof("Accepted message from %s for %s", s.from, to)
	}
	if first != nil {
		return replyFor(first)
	}
	return nil
}

func (s *SessionLocal) Reset() {
	s.rcpt = s.rcpt[:0]
	s.from = ""
}

func (s *SessionLocal) Logout() error {
	return nil
}
