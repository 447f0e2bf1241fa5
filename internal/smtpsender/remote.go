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
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/gologme/log"

	"github.com/JB-SelfCompany/mailforge/internal/dnscache"
	merrors "github.com/JB-SelfCompany/mailforge/internal/errors"
	"github.com/JB-SelfCompany/mailforge/internal/logging"
	"github.com/JB-SelfCompany/mailforge/internal/metrics"
	"github.com/JB-SelfCompany/mailforge/internal/storage/types"
	"github.com/JB-SelfCompany/mailforge/internal/transport"
	"github.com/JB-SelfCompany/mailforge/internal/utils"
)

const DefaultRemotePort = 25

type ExchangeResolver interface {
	ResolveExchanges(ctx context.Context, domain string) ([]dnscache.Exchange, error)
}

type MessageWriter interface {
	MessageCreate(msg *types.Message) (*types.Message, error)
}

// RemoteDelivery hands messages directly to the best ranked exchange of
// the recipient domain. There is one attempt per message and no fallback
// to lower ranked exchanges.
type RemoteDelivery struct {
	Storage   MessageWriter
	Exchanges ExchangeResolver
	Transport transport.Transport
	Hostname  string
	Port      int  // zero means DefaultRemotePort
	StartTLS  bool // use STARTTLS when offered
	VerifyTLS bool
	Log       *log.Logger
	Ops       *logging.OperationLogger
}

// DeliverRemotely attempts delivery and records exactly one message with
// the outcome. A failure is recorded before it is returned.
func (r *RemoteDelivery) DeliverRemotely(ctx context.Context, msg *types.Message) (*types.Message, error) {
	_, domain, err := utils.ParseAddress(msg.ToAddress)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", msg.ToAddress, merrors.ErrMalformedRecipient)
	}

	start := time.Now()
	m := msg.Copy()
	m.ToDomain = domain
	if m.FromDomain == "" {
		if _, fromDomain, err := utils.ParseAddress(m.FromAddress); err == nil {
			m.FromDomain = fromDomain
		}
	}
	m.Folder = types.FolderSent
	m.MessageID = utils.NewMessageID(r.Hostname)

	r.Ops.StartOperation(m.MessageID, m.FromAddress, m.ToAddress)
	sendErr := r.send(ctx, m, domain)
	r.Ops.EndOperation(m.MessageID, sendErr)
	metrics.DeliveryDuration.WithLabelValues("remote").Observe(time.Since(start).Seconds())
	m.SentAt = time.Now()

	if sendErr != nil {
		m.Status = types.StatusFailed
		m.ErrorMessage = sendErr.Error()
		result := "error"
		if errors.Is(sendErr, merrors.ErrNoExchangeFound) || errors.Is(sendErr, merrors.ErrNoAddressResolved) {
			result = "dns"
		}
		metrics.Deliveries.WithLabelValues("remote", result).Inc()
		stored, err := r.Storage.MessageCreate(m)
		if err != nil {
			r.Log.Errorf("Failed to record failed delivery to %s: %v", m.ToAddress, err)
			return nil, fmt.Errorf("%w (recording failed: %v)", sendErr, err)
		}
		return stored, sendErr
	}

	m.Status = types.StatusSent
	metrics.Deliveries.WithLabelValues("remote", "ok").Inc()
	stored, err := r.Storage.MessageCreate(m)
	if err != nil {
		return nil, fmt.Errorf("r.Storage.MessageCreate: %w", err)
	}
	r.Log.Infof("Sent message %s from %s to %s", m.MessageID, m.FromAddress, m.ToAddress)
	return stored, nil
}

func (r *RemoteDelivery) port() int {
	if r.Port == 0 {
		return DefaultRemotePort
	}
	return r.Port
}

func (r *RemoteDelivery) send(ctx context.Context, m *types.Message, domain string) error {
	exchanges, err := r.Exchanges.ResolveExchanges(ctx, domain)
	if err != nil {
		return err
	}
	best := exchanges[0]
	address := net.JoinHostPort(best.Addresses[0].String(), strconv.Itoa(r.port()))
	r.Ops.LogMilestone(m.MessageID, "RESOLVE", fmt.Sprintf("%s (priority %d) at %s", best.Host, best.Priority, address))

	if err := func() error {
		conn, err := r.Transport.Dial(ctx, address)
		if err != nil {
			return fmt.Errorf("r.Transport.Dial: %w", err)
		}
		client, err := smtp.NewClient(conn, best.Host)
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("smtp.NewClient: %w", err)
		}
		defer client.Close() // nolint:errcheck
		r.Ops.LogMilestone(m.MessageID, "CONNECT", address)

		if err := client.Hello(r.Hostname); err != nil {
			return fmt.Errorf("client.Hello: %w", err)
		}

		if ok, _ := client.Extension("STARTTLS"); ok && r.StartTLS {
			config := &tls.Config{
				ServerName:         best.Host,
				InsecureSkipVerify: !r.VerifyTLS, // nolint:gosec
			}
			if err := client.StartTLS(config); err != nil {
				return fmt.Errorf("client.StartTLS: %w", err)
			}
			r.Ops.LogMilestone(m.MessageID, "STARTTLS", best.Host)
		}

		if err := client.Mail(m.FromAddress, nil); err != nil {
			return fmt.Errorf("client.Mail: %w", err)
		}
		if err := client.Rcpt(m.ToAddress); err != nil {
			return fmt.Errorf("client.Rcpt: %w", err)
		}

		writer, err := client.Data()
		if err != nil {
			return fmt.Errorf("client.Data: %w", err)
		}
		if err := utils.Compose(writer, m, utils.ComposeOptions{Hostname: r.Hostname, Received: true}); err != nil {
			_ = writer.Close()
			return fmt.Errorf("utils.Compose: %w", err)
		}
		if err := writer.Close(); err != nil {
			return fmt.Errorf("writer.Close: %w", err)
		}
		r.Ops.LogMilestone(m.MessageID, "DATA", "accepted")

		if err := client.Quit(); err != nil {
			r.Log.Warnf("Remote server %s did not accept QUIT: %v", best.Host, err)
		}
		return nil
	}(); err != nil {
		return fmt.Errorf("%w: %v", merrors.ErrTransportFailure, err)
	}
	return nil
}
