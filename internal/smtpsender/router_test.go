/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package smtpsender

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/gologme/log"

	merrors "github.com/JB-SelfCompany/mailforge/internal/errors"
	"github.com/JB-SelfCompany/mailforge/internal/storage/types"
)

type countingDeliverer struct {
	calls []string
}

func (d *countingDeliverer) DeliverLocally(ctx context.Context, msg *types.Message) (*types.Message, error) {
	d.calls = append(d.calls, msg.ToAddress)
	return msg, nil
}

func (d *countingDeliverer) DeliverRemotely(ctx context.Context, msg *types.Message) (*types.Message, error) {
	d.calls = append(d.calls, msg.ToAddress)
	return msg, nil
}

func TestRouterRoute(t *testing.T) {
	tests := []struct {
		name    string
		to      string
		local   int
		remote  int
		wantErr error
	}{
		{"local domain", "bob@example.com", 1, 0, nil},
		{"local domain uppercase", "bob@EXAMPLE.com", 1, 0, nil},
		{"external domain", "carol@external.org", 0, 1, nil},
		{"subdomain is remote", "carol@mail.example.com", 0, 1, nil},
		{"no @", "bob", 0, 0, merrors.ErrMalformedRecipient},
		{"two @", "bob@a@example.com", 0, 0, merrors.ErrMalformedRecipient},
		{"empty user", "@example.com", 0, 0, merrors.ErrMalformedRecipient},
		{"empty domain", "bob@", 0, 0, merrors.ErrMalformedRecipient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local, remote := &countingDeliverer{}, &countingDeliverer{}
			router := NewRouter("example.com", local, remote, log.New(io.Discard, "", 0))

			_, err := router.Route(context.Background(), &types.Message{
				FromAddress: "alice@example.com",
				ToAddress:   tt.to,
			})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Route(%q) error = %v, want %v", tt.to, err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("Route(%q) unexpected error: %v", tt.to, err)
			}
			if len(local.calls) != tt.local {
				t.Errorf("local deliveries = %d, want %d", len(local.calls), tt.local)
			}
			if len(remote.calls) != tt.remote {
				t.Errorf("remote deliveries = %d, want %d", len(remote.calls), tt.remote)
			}
		})
	}
}
