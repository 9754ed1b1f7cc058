// Copyright (c) 2025 Justin Cranford
//
//

package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// newHealthCommand polls this service's own /health endpoint, grounded on
// the teacher's multi-service cmd/identity health poller, narrowed here to
// a single target since identity-rp is a single binary.
func newHealthCommand() *cobra.Command {
	var addr string

	var timeoutStr string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check health of the running relying-party server",
		Long: `Poll the /health endpoint and report readiness.
Exit 0 if healthy, exit 1 otherwise.

Examples:
  identity-rp health --addr http://127.0.0.1:8443`,
		RunE: func(_ *cobra.Command, _ []string) error {
			timeout, err := time.ParseDuration(timeoutStr)
			if err != nil {
				return fmt.Errorf("invalid timeout: %w", err)
			}

			client := &http.Client{Timeout: timeout}

			resp, err := client.Get(addr + "/health")
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
			}

			fmt.Println("healthy")

			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "http://127.0.0.1:8443", "base URL of the running server")
	cmd.Flags().StringVar(&timeoutStr, "timeout", "5s", "request timeout")

	return cmd
}
