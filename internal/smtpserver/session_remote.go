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
	"io"

	"github.com/emersion/go-smtp"

	"github.com/JB-SelfCompany/mailforge/internal/utils"
)

// SessionRemote accepts mail from other servers for local accounts.
type SessionRemote struct {
	backend *Backend
	state   *smtp.ConnectionState
	from    string
	rcpt    []string
}

func (s *SessionRemote) Mail(from string, opts smtp.MailOptions) error {
	s.rcpt = s.rcpt[:0]
	s.from = from
	s.backend.Log.Debugf("MAIL FROM %s via %s", from, remoteAddr(s.state))
	return nil
}

func (s *SessionRemote) Rcpt(to string) error {
	username, domain, err := utils.ParseAddress(to)
	if err != nil {
		return &smtp.SMTPError{
			Code:         553,
			EnhancedCode: smtp.EnhancedCode{5, 1, 3},
			Message:      "Malformed recipient address",
		}
	}
	if !utils.IsLocalDomain(domain, s.backend.Domain) {
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 7, 1},
			Message:      "Relaying not permitted",
		}
	}
	account, err := s.backend.Accounts.AccountFind(username, domain)
	if err != nil {
		s.backend.Log.Errorf("Failed to look up %s: %v", to, err)
		return replyFor(err)
	}
	if account == nil {
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 1, 1},
			Message:      "No such user here",
		}
	}
	s.rcpt = append(s.rcpt, to)
	return nil
}

func (s *SessionRemote) Data(r io.Reader) error {
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
		stored, err := s.backend.Local.DeliverLocally(context.Background(), parsed.Message(s.from, to))
		if err != nil {
			s.backend.Log.Errorf("Failed to store message from %s to %s: %v", s.from, to, err)
			if first == nil {
				first = err
			}
			continue
		}
		s.backend.Log.Infof("Stored mail from %s for %s (ID=%d)", s.from, to, stored.ID)
	}
	if first != nil {
		return replyFor(first)
	}
	return nil
}

func (s *SessionRemote) Reset() {
	s.rcpt = s.rcpt[:0]
	s.from = ""
}

func (s *SessionRemote) Logout() error {
	return nil
}
