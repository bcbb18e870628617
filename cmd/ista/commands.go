package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"ista/internal/orchestrator"
)

func newProvisionCmd() *cobra.Command {
	var (
		seed     int64
		versions map[string]string
	)
	cmd := &cobra.Command{
		Use:   "provision <dataset> [dataset...]",
		Short: "Generate, mask and persist the named datasets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refs := make([]orchestrator.DatasetRef, len(args))
			for i, name := range args {
				refs[i] = orchestrator.DatasetRef{Name: name, Version: versions[name]}
			}
			payload := map[string]any{
				"action":   "provision",
				"datasets": refs,
			}
			if cmd.Flags().Changed("seed") {
				payload["seed"] = seed
			}

			var result orchestrator.Result
			if err := newClient().do(http.MethodPost, "/provision", payload, &result); err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 0, "run seed; omit to use the server default")
	cmd.Flags().StringToStringVar(&versions, "version", nil, "dataset version overrides, e.g. --version users=v2")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var collections []string
	cmd := &cobra.Command{
		Use:   "status [requestID]",
		Short: "Show a recorded run, or collection stats with --collection",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			client := newClient()
			if len(args) == 1 {
				var result orchestrator.Result
				if err := client.do(http.MethodGet, "/provision/"+url.PathEscape(args[0]), nil, &result); err != nil {
					return err
				}
				return printJSON(result)
			}
			if len(collections) == 0 {
				return fmt.Errorf("pass a request ID or --collection")
			}
			for _, collection := range collections {
				var stats map[string]any
				if err := client.do(http.MethodGet, "/collections/"+url.PathEscape(collection)+"/stats", nil, &stats); err != nil {
					return err
				}
				if err := printJSON(stats); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&collections, "collection", nil, "collections to report stats for")
	return cmd
}

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup <requestID>",
		Short: "Delete the records one provisioning run inserted",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var result orchestrator.Result
			if err := newClient().do(http.MethodDelete, "/provision/"+url.PathEscape(args[0]), nil, &result); err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

func newDatasetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List the datasets the catalog knows about",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			var body struct {
				Datasets []string `json:"datasets"`
			}
			if err := newClient().do(http.MethodGet, "/datasets", nil, &body); err != nil {
				return err
			}
			fmt.Println(strings.Join(body.Datasets, "\n"))
			return nil
		},
	}
}

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit ledger",
	}

	var actor, action, resource string
	list := &cobra.Command{
		Use:   "list",
		Short: "Show audit entries, optionally filtered",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			q := url.Values{}
			if actor != "" {
				q.Set("actor", actor)
			}
			if action != "" {
				q.Set("action", action)
			}
			if resource != "" {
				q.Set("resource", resource)
			}
			path := "/audit"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			var body map[string]any
			if err := newClient().do(http.MethodGet, path, nil, &body); err != nil {
				return err
			}
			return printJSON(body)
		},
	}
	list.Flags().StringVar(&actor, "actor", "", "filter by actor")
	list.Flags().StringVar(&action, "action", "", "filter by action")
	list.Flags().StringVar(&resource, "resource", "", "filter by resource")

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Recompute the hash chain and report integrity",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			var result struct {
				Valid     bool   `json:"valid"`
				Entries   int    `json:"entries"`
				BrokenSeq uint64 `json:"brokenSeq"`
			}
			if err := newClient().do(http.MethodGet, "/audit/verify", nil, &result); err != nil {
				return err
			}
			if !result.Valid {
				return fmt.Errorf("audit chain broken at seq %d (%d entries)", result.BrokenSeq, result.Entries)
			}
			fmt.Printf("audit chain intact (%d entries)\n", result.Entries)
			return nil
		},
	}

	cmd.AddCommand(list, verify)
	return cmd
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the service and its document store",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			var body map[string]string
			if err := newClient().do(http.MethodGet, "/healthz", nil, &body); err != nil {
				return err
			}
			fmt.Println(body["status"])
			return nil
		},
	}
}
