// Command ista is the operator CLI for the provisioning service. Every
// verb talks to the HTTP API; nothing here touches storage directly,
// so the policy and audit path is identical for humans and automation.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	authToken string
)

func main() {
	root := &cobra.Command{
		Use:           "ista",
		Short:         "Provision and govern synthetic test data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", envOr("ISTA_SERVER", "http://localhost:8080"), "base URL of the provisioning service")
	root.PersistentFlags().StringVar(&authToken, "token", os.Getenv("ISTA_TOKEN"), "bearer token for authenticated endpoints")

	root.AddCommand(
		newProvisionCmd(),
		newStatusCmd(),
		newCleanupCmd(),
		newDatasetsCmd(),
		newAuditCmd(),
		newHealthCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
