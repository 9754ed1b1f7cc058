// Copyright (c) 2025 Justin Cranford
//
//

// Package main provides the identity-rp service entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "identity-rp",
		Short: "WebAuthn Relying Party service",
		Long: `WebAuthn (FIDO2) relying-party service.

Registers and authenticates users via public-key credentials and, on
successful authentication, issues short-lived RS256-signed bearer tokens
whose verification keys are published at a JWKS endpoint.

Endpoints:
  POST /register/start
  POST /register/complete
  POST /authenticate/start
  POST /authenticate/complete
  GET  /.well-known/jwks.json
  GET  /health, /ready, /live, /metrics`,
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newHealthCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
