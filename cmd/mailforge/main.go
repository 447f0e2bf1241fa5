/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/JB-SelfCompany/mailforge/internal/auth"
	"github.com/JB-SelfCompany/mailforge/internal/config"
	"github.com/JB-SelfCompany/mailforge/internal/logging"
	"github.com/JB-SelfCompany/mailforge/internal/service"
	"github.com/JB-SelfCompany/mailforge/internal/storage/sqlite3"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	createUser := flag.String("createuser", "", "create an account with the given address and exit")
	withAPIKey := flag.Bool("apikey", false, "also generate an API key for -createuser")
	flag.Parse()

	logger := logging.New(os.Stderr, "Mailforge", color.FgHiWhite, "info")

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	if *createUser != "" {
		if err := runCreateUser(cfg, *createUser, *withAPIKey); err != nil {
			logger.Fatalf("Failed to create account: %v", err)
		}
		return
	}

	svc, err := service.New(cfg, os.Stderr)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	if err := svc.Initialize(); err != nil {
		logger.Fatalf("Failed to initialize: %v", err)
	}
	if err := svc.Start(); err != nil {
		svc.Close()
		logger.Fatalf("Failed to start: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Infof("Received %s, shutting down", sig)

	if err := svc.Stop(); err != nil {
		logger.Errorf("Failed to stop: %v", err)
	}
	if err := svc.Close(); err != nil {
		logger.Errorf("Failed to close: %v", err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func runCreateUser(cfg *config.Config, address string, withAPIKey bool) error {
	password, err := readPassword()
	if err != nil {
		return err
	}

	store, err := sqlite3.NewSQLite3Storage(cfg.Database, logging.Discard())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	account, err := auth.CreateAccount(store, address, string(password), withAPIKey)
	if err != nil {
		return err
	}
	fmt.Printf("Created account %s\n", account.Address())
	if account.APIKey != "" {
		fmt.Printf("API key: %s\n", account.APIKey)
	}
	return nil
}

func readPassword() ([]byte, error) {
	fmt.Print("New password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	if !bytes.Equal(password, confirm) {
		return nil, fmt.Errorf("passwords do not match")
	}
	return password, nil
}
