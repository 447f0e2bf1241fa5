/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package errors holds the sentinel errors shared between the delivery
// engine and the protocol front ends. Callers wrap them with fmt.Errorf and
// classify with errors.Is.
package errors

import "errors"

// Routing and delivery errors.
var (
	// ErrMalformedRecipient is returned when a recipient address does not
	// have exactly one "@" with a non-empty user and domain.
	ErrMalformedRecipient = errors.New("malformed recipient address")

	// ErrRecipientNotFound is returned when a local recipient has no account.
	ErrRecipientNotFound = errors.New("recipient not found")

	// ErrTransportFailure wraps any failure talking to a remote exchange.
	ErrTransportFailure = errors.New("remote transport failure")
)

// Exchange resolution errors.
var (
	// ErrNoExchangeFound is returned when a domain publishes no usable MX.
	ErrNoExchangeFound = errors.New("no mail exchange found")

	// ErrNoAddressResolved is returned when no exchange host has an address.
	ErrNoAddressResolved = errors.New("no exchange address resolved")
)

// Authentication errors.
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrAccountDisabled      = errors.New("account disabled")
)

// Storage errors.
var (
	// ErrInvariantViolation is returned when a message record would break
	// the status invariants (failed needs an error, sent needs a time).
	ErrInvariantViolation = errors.New("message record violates status invariant")

	ErrAccountExists = errors.New("account already exists")
)
