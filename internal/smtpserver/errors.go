/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package smtpserver

import (
	"errors"

	"github.com/emersion/go-smtp"

	merrors "github.com/JB-SelfCompany/mailforge/internal/errors"
)

var errAuthRequired = &smtp.SMTPError{
	Code:         530,
	EnhancedCode: smtp.EnhancedCode{5, 7, 0},
	Message:      "Authentication required",
}

// replyFor maps a delivery or authentication error to the reply sent to
// the client.
func replyFor(err error) *smtp.SMTPError {
	var smtpErr *smtp.SMTPError
	switch {
	case errors.As(err, &smtpErr):
		return smtpErr
	case errors.Is(err, merrors.ErrMalformedRecipient):
		return &smtp.SMTPError{Code: 553, EnhancedCode: smtp.EnhancedCode{5, 1, 3}, Message: "Malformed recipient address"}
	case errors.Is(err, merrors.ErrRecipientNotFound):
		return &smtp.SMTPError{Code: 550, EnhancedCode: smtp.EnhancedCode{5, 1, 1}, Message: "No such user here"}
	case errors.Is(err, merrors.ErrNoExchangeFound), errors.Is(err, merrors.ErrNoAddressResolved):
		return &smtp.SMTPError{Code: 554, EnhancedCode: smtp.EnhancedCode{5, 4, 4}, Message: "Unable to route to recipient domain"}
	case errors.Is(err, merrors.ErrTransportFailure):
		return &smtp.SMTPError{Code: 451, EnhancedCode: smtp.EnhancedCode{4, 4, 1}, Message: "Remote server did not accept the message"}
	case errors.Is(err, merrors.ErrAuthenticationFailed), errors.Is(err, merrors.ErrAccountDisabled):
		return &smtp.SMTPError{Code: 535, EnhancedCode: smtp.EnhancedCode{5, 7, 8}, Message: "Authentication credentials invalid"}
	default:
		return &smtp.SMTPError{Code: 451, EnhancedCode: smtp.EnhancedCode{4, 3, 0}, Message: "Local error in processing"}
	}
}
