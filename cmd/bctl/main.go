package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/budgets/internal/client"
	"github.com/alfredjeanlab/budgets/internal/ui"
)

var (
	serverAddr string
	httpURL    string
	transport  string
	authToken  string
	jsonOutput bool
	actor      string

	budgetClient client.BudgetClient
)

func defaultActor() string {
	if s := os.Getenv("BUDGETS_ACTOR"); s != "" {
		return s
	}
	out, err := exec.Command("git", "config", "user.name").Output()
	if err == nil {
		name := strings.TrimSpace(string(out))
		if name != "" {
			return name
		}
	}
	return "unknown"
}

func defaultHTTPURL() string {
	if s := os.Getenv("BUDGETS_HTTP_URL"); s != "" {
		return s
	}
	if u := activeRemoteURL(); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func defaultServer() string {
	if s := os.Getenv("BUDGETS_SERVER"); s != "" {
		return s
	}
	if a := activeRemoteGRPCAddr(); a != "" {
		return a
	}
	return "localhost:9090"
}

func defaultToken() string {
	if s := os.Getenv("BUDGETS_TOKEN"); s != "" {
		return s
	}
	return activeRemoteToken()
}

// noClient skips the client setup of the root command for subcommands that
// only touch local state.
func noClient(*cobra.Command, []string) error { return nil }

var rootCmd = &cobra.Command{
	Use:           "bctl <command>",
	Short:         "CLI client for the clipping budget service",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch transport {
		case "http":
			budgetClient = client.NewHTTPClient(httpURL, authToken)
		case "grpc":
			c, err := client.NewGRPCClient(serverAddr, authToken)
			if err != nil {
				return fmt.Errorf("failed to connect to server: %w", err)
			}
			budgetClient = c
		default:
			return fmt.Errorf("unknown transport %q (must be http or grpc)", transport)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if budgetClient != nil {
			budgetClient.Close()
		}
	},
}

// httpClient returns the HTTP client for commands only the REST API serves.
func httpClient() (*client.HTTPClient, error) {
	c, ok := budgetClient.(*client.HTTPClient)
	if !ok {
		return nil, fmt.Errorf("this command requires --transport=http")
	}
	return c, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", defaultHTTPURL(), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", defaultServer(), "gRPC server address")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", "http", "transport protocol (http or grpc)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", defaultToken(), "bearer token for authentication")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", defaultActor(), "actor name recorded in the audit log")

	rootCmd.AddGroup(
		&cobra.Group{ID: "budgets", Title: "Budgets:"},
		&cobra.Group{ID: "forecast", Title: "Forecasting:"},
		&cobra.Group{ID: "views", Title: "Views:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Budgets
	rootCmd.AddCommand(cycleCmd)
	rootCmd.AddCommand(segmentCmd)
	rootCmd.AddCommand(spendCmd)

	// Forecasting
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(funnelCmd)

	// Views
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(watchCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	ui.ConfigureColor(os.Stdout)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
