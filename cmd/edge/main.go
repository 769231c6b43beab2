// Command edge is the gateway process and operator CLI: start the
// listener, inspect queue state, and inject or clear fault presets.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/egosumscientia/mini-pacs-edge/internal/admission"
	"github.com/egosumscientia/mini-pacs-edge/internal/config"
	"github.com/egosumscientia/mini-pacs-edge/internal/store"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:          "edge",
		Short:        "Mini PACS edge gateway",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config.yaml")

	root.AddCommand(startCmd(), statusCmd(), injectFaultCmd(), clearFaultsCmd())

	if len(os.Args) > 1 && !knownCommand(root, os.Args[1]) {
		fmt.Fprintf(os.Stderr, "edge: unknown subcommand %q\n", os.Args[1])
		os.Exit(2)
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// knownCommand reports whether arg names one of root's registered
// subcommands or a help/flag-style argument cobra handles itself.
func knownCommand(root *cobra.Command, arg string) bool {
	if len(arg) > 0 && arg[0] == '-' {
		return true
	}
	for _, c := range root.Commands() {
		if c.Name() == arg {
			return true
		}
	}
	return false
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the gateway listener and forwarder",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			params := store.ParamsFromEnv()
			db, err := store.Connect(ctx, params, 10)
			if err != nil {
				return err
			}
			defer db.Close()

			gw, err := admission.New(ctx, configPath, db)
			if err != nil {
				return err
			}
			return gw.Run(ctx)
		},
	}
}

func statusCmd() *cobra.Command {
	var study string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue state counts, or records for a single study with --study",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			params := store.ParamsFromEnv()
			db, err := store.Connect(ctx, params, 10)
			if err != nil {
				return err
			}
			defer db.Close()

			if study != "" {
				rows, err := db.GetStudyRows(ctx, study)
				if err != nil {
					return err
				}
				if len(rows) == 0 {
					fmt.Println("No records found")
					return nil
				}
				for _, r := range rows {
					fmt.Printf("%+v\n", r)
				}
				return nil
			}

			counts, err := db.GetCounts(ctx)
			if err != nil {
				return err
			}
			for _, state := range []store.State{store.StateQueued, store.StateForwarding, store.StateSent, store.StateFailed} {
				fmt.Printf("%s: %d\n", state, counts[state])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&study, "study", "", "limit to records for this study UID")
	return cmd
}

func injectFaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inject-fault <name>",
		Short: "Set a fault preset (reject_all, disk_full, io_delay_ms, random_fail_rate)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if _, ok := config.FaultPresets[name]; !ok {
				return fmt.Errorf("unknown fault: %s", name)
			}
			if err := config.InjectFault(configPath, name); err != nil {
				return err
			}
			fmt.Printf("Injected fault: %s\n", name)
			return nil
		},
	}
}

func clearFaultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-faults",
		Short: "Clear all active fault presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ClearFaults(configPath); err != nil {
				return err
			}
			fmt.Println("Faults cleared")
			return nil
		},
	}
}
