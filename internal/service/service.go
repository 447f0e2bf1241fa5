/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package service wires the repository, delivery engine and protocol
// servers together and runs them.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/gologme/log"
	"go.uber.org/atomic"

	"github.com/JB-SelfCompany/mailforge/internal/auth"
	"github.com/JB-SelfCompany/mailforge/internal/config"
	"github.com/JB-SelfCompany/mailforge/internal/dnscache"
	"github.com/JB-SelfCompany/mailforge/internal/imapserver"
	"github.com/JB-SelfCompany/mailforge/internal/logging"
	"github.com/JB-SelfCompany/mailforge/internal/metrics"
	"github.com/JB-SelfCompany/mailforge/internal/smtpsender"
	"github.com/JB-SelfCompany/mailforge/internal/smtpserver"
	"github.com/JB-SelfCompany/mailforge/internal/storage"
	"github.com/JB-SelfCompany/mailforge/internal/storage/archive"
	"github.com/JB-SelfCompany/mailforge/internal/storage/sqlite3"
	"github.com/JB-SelfCompany/mailforge/internal/transport"
)

type Option func(*Service)

// WithResolver replaces the DNS resolver used for exchange lookups.
func WithResolver(r dnscache.Resolver) Option {
	return func(s *Service) {
		s.resolver = r
	}
}

// WithTransport replaces the transport used for remote delivery.
func WithTransport(t transport.Transport) Option {
	return func(s *Service) {
		s.transport = t
	}
}

type Service struct {
	config    *config.Config
	out       io.Writer
	logger    *log.Logger
	resolver  dnscache.Resolver
	transport transport.Transport

	storage    *sqlite3.SQLite3Storage
	cache      *dnscache.Cache
	router     *smtpsender.Router
	imapServer *imapserver.IMAPServer
	imapNotify *imapserver.IMAPNotify
	submission *smtpserver.SMTPServer
	bridge     *smtpserver.SMTPServer
	metrics    *http.Server

	running atomic.Bool
	stopped bool // servers cannot be restarted once closed
	mu      sync.Mutex
	done    []chan struct{}
}

// New validates cfg and returns a service logging to out. Initialize must
// be called before Start.
func New(cfg *config.Config, out io.Writer, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	s := &Service{
		config: cfg,
		out:    out,
		logger: logging.New(out, "Mailforge", color.FgHiWhite, cfg.Logging.Level),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) componentLogger(name string, attr color.Attribute) *log.Logger {
	return logging.New(s.out, name, attr, s.config.Logging.Level)
}

// Initialize opens the repository and builds the delivery engine and the
// protocol servers without listening yet.
func (s *Service) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.storage != nil {
		return fmt.Errorf("service already initialized")
	}
	cfg := s.config

	storageLog := s.componentLogger("Storage", color.FgYellow)
	st, err := sqlite3.NewSQLite3Storage(cfg.Database, storageLog)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.storage = st
	s.logger.Infof("Using database file %q", cfg.Database)

	var arch *archive.Archive
	if cfg.Archive.Path != "" {
		if arch, err = archive.NewArchive(cfg.Archive.Path); err != nil {
			return fmt.Errorf("failed to initialize archive: %w", err)
		}
		s.logger.Infof("Archiving delivered mail under %q", arch.BasePath())
	}

	dnsLog := s.componentLogger("DNS", color.FgBlue)
	if s.resolver == nil {
		s.resolver = dnscache.NewResolver(dnscache.ResolverConfig{
			Nameservers: cfg.DNS.Nameservers,
			Timeout:     cfg.DNS.Timeout,
		})
	}
	s.cache = dnscache.NewCache(s.resolver, cfg.DNS.CacheTTL, dnsLog)

	if s.transport == nil {
		s.transport = transport.NewTCPTransport(cfg.Remote.DialTimeout, cfg.Remote.IOTimeout)
	}

	imapLog := s.componentLogger("IMAP", color.FgMagenta)
	authenticator := auth.NewAuthenticator(st, cfg.Domain, s.componentLogger("Auth", color.FgRed))
	imapBackend := &imapserver.Backend{
		Auth:            authenticator,
		Storage:         st,
		Log:             imapLog,
		Hostname:        cfg.Domain,
		FetchLimit:      cfg.IMAP.FetchLimit,
		HonorFetchRange: cfg.IMAP.HonorFetchRange,
	}
	s.imapServer, s.imapNotify = imapserver.NewIMAPServer(imapBackend, cfg.IMAP.AllowInsecureAuth)

	deliveryLog := s.componentLogger("Delivery", color.FgGreen)
	local := &smtpsender.LocalDelivery{
		Storage:  st,
		Hostname: cfg.Domain,
		Log:      deliveryLog,
		Notify:   s.imapNotify,
	}
	if arch != nil {
		local.Archive = arch
	}
	remote := &smtpsender.RemoteDelivery{
		Storage:   st,
		Exchanges: s.cache,
		Transport: s.transport,
		Hostname:  cfg.Domain,
		Port:      cfg.Remote.Port,
		StartTLS:  cfg.Remote.StartTLS,
		VerifyTLS: cfg.Remote.VerifyTLS,
		Log:       deliveryLog,
		Ops:       logging.NewOperationLogger(deliveryLog),
	}
	s.router = smtpsender.NewRouter(cfg.Domain, local, remote, deliveryLog)

	smtpLog := s.componentLogger("SMTP", color.FgCyan)
	serverConfig := smtpserver.Config{
		Domain:       cfg.Domain,
		ReadTimeout:  cfg.SMTP.ReadTimeout,
		WriteTimeout: cfg.SMTP.WriteTimeout,
	}
	s.submission = smtpserver.NewSMTPServer(&smtpserver.Backend{
		Mode:   smtpserver.BackendModeSubmission,
		Domain: cfg.Domain,
		Log:    smtpLog,
		Auth:   authenticator,
		Router: s.router,
	}, serverConfig)
	s.bridge = smtpserver.NewSMTPServer(&smtpserver.Backend{
		Mode:     smtpserver.BackendModeInterServer,
		Domain:   cfg.Domain,
		Log:      smtpLog,
		Accounts: st,
		Local:    local,
	}, serverConfig)

	if cfg.Metrics.Addr != "" {
		s.metrics = metrics.NewServer(cfg.Metrics.Addr)
	}
	return nil
}

// Start listens on every configured endpoint. If any listener cannot be
// opened the ones already opened are closed again.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.storage == nil {
		return fmt.Errorf("service not initialized, call Initialize() first")
	}
	if s.running.Load() {
		return fmt.Errorf("service already running")
	}
	if s.stopped {
		return fmt.Errorf("service was stopped, create a new one")
	}
	cfg := s.config

	imapListener, err := transport.Listen(cfg.IMAPAddr(), "imap")
	if err != nil {
		return fmt.Errorf("failed to listen for IMAP on %s: %w", cfg.IMAPAddr(), err)
	}
	submissionListener, err := transport.Listen(cfg.SubmissionAddr(), "submission")
	if err != nil {
		imapListener.Close()
		return fmt.Errorf("failed to listen for submission on %s: %w", cfg.SubmissionAddr(), err)
	}
	bridgeListener, err := transport.Listen(cfg.BridgeAddr(), "interserver")
	if err != nil {
		imapListener.Close()
		submissionListener.Close()
		return fmt.Errorf("failed to listen for inter-server SMTP on %s: %w", cfg.BridgeAddr(), err)
	}

	s.running.Store(true)
	s.imapServer.Start(imapListener)
	s.logger.Infof("IMAP server listening on %s", imapListener.Addr())
	s.serve("Submission SMTP", s.submission, submissionListener)
	s.serve("Inter-server SMTP", s.bridge, bridgeListener)

	if s.metrics != nil {
		done := make(chan struct{})
		s.done = append(s.done, done)
		go func() {
			defer close(done)
			s.logger.Infof("Metrics listening on %s", s.metrics.Addr)
			if err := s.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Errorf("Metrics server error: %v", err)
			}
		}()
	}

	s.logger.Infof("Mail service started for domain %s", cfg.Domain)
	return nil
}

func (s *Service) serve(name string, srv *smtpserver.SMTPServer, l net.Listener) {
	done := make(chan struct{})
	s.done = append(s.done, done)
	s.logger.Infof("%s server listening on %s", name, l.Addr())
	go func() {
		defer close(done)
		if err := srv.Serve(l); err != nil && s.running.Load() {
			s.logger.Errorf("%s server stopped: %v", name, err)
		}
	}()
}

// Stop closes the listeners and waits briefly for the servers to exit.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running.CompareAndSwap(true, false) {
		s.mu.Unlock()
		return fmt.Errorf("service not running")
	}
	s.stopped = true
	s.logger.Infoln("Stopping mail service...")

	if err := s.imapServer.Close(); err != nil {
		s.logger.Errorf("Error closing IMAP server: %v", err)
	}
	if err := s.submission.Close(); err != nil {
		s.logger.Errorf("Error closing submission server: %v", err)
	}
	if err := s.bridge.Close(); err != nil {
		s.logger.Errorf("Error closing inter-server server: %v", err)
	}
	if s.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.metrics.Shutdown(ctx); err != nil {
			s.logger.Errorf("Error closing metrics server: %v", err)
		}
		cancel()
	}
	done := s.done
	s.done = nil
	s.mu.Unlock()

	timeout := time.NewTimer(3 * time.Second)
	defer timeout.Stop()
	for _, ch := range done {
		select {
		case <-ch:
		case <-timeout.C:
			s.logger.Warnf("Timeout waiting for server goroutines (continuing anyway)")
			return nil
		}
	}
	s.logger.Infoln("Mail service stopped")
	return nil
}

// Close releases the repository. The service must be stopped first.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return fmt.Errorf("service still running, call Stop() first")
	}
	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		s.storage = nil
	}
	return nil
}

func (s *Service) IsRunning() bool {
	return s.running.Load()
}

// Storage is the repository once Initialize has run, nil otherwise.
func (s *Service) Storage() storage.Storage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storage == nil {
		return nil
	}
	return s.storage
}

func (s *Service) Router() *smtpsender.Router {
	return s.router
}
