package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Manage raw server configs (HTTP transport only)",
	GroupID: "system",
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <json-value>",
	Short: "Create or update a config",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		hc, err := httpClient()
		if err != nil {
			return err
		}
		value := []byte(args[1])
		if !json.Valid(value) {
			return fmt.Errorf("value must be valid JSON")
		}
		c, err := hc.SetConfig(context.Background(), args[0], value)
		if err != nil {
			return fmt.Errorf("setting config %s: %w", args[0], err)
		}
		output(c, func() { printConfigTable(c) })
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a config by key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hc, err := httpClient()
		if err != nil {
			return err
		}
		c, err := hc.GetConfig(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("getting config %s: %w", args[0], err)
		}
		output(c, func() { printConfigTable(c) })
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list <namespace>",
	Short: "List configs in a namespace (e.g. throttle)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hc, err := httpClient()
		if err != nil {
			return err
		}
		cs, err := hc.ListConfigs(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("listing configs: %w", err)
		}
		output(cs, func() {
			if len(cs) == 0 {
				fmt.Fprintln(stdout, "No configs found.")
				return
			}
			for _, c := range cs {
				fmt.Fprintf(stdout, "%s\t%s\n", c.Key, string(c.Value))
			}
		})
		return nil
	},
}

var configDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a config by key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hc, err := httpClient()
		if err != nil {
			return err
		}
		if err := hc.DeleteConfig(context.Background(), args[0]); err != nil {
			return fmt.Errorf("deleting config %s: %w", args[0], err)
		}
		fmt.Fprintf(stdout, "Deleted config %q\n", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configDeleteCmd)
}
