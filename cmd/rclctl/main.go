package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rmacdonaldsmith/rcl-go/internal/transport/remote"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand(viper.New())
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCommand builds the command tree. Every persistent flag can also be
// set through an RCL_ environment variable, e.g. RCL_SERVER or RCL_CLIENT_ID.
func newRootCommand(v *viper.Viper) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rclctl",
		Short: "rcl transport bridge command line interface",
		Long: `rclctl talks to an rcl-transportd bridge. It publishes and watches topics,
including their QoS events, resolves security directories and checks bridge
health.`,
		SilenceUsage: true,
	}

	v.SetEnvPrefix("RCL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	flags := rootCmd.PersistentFlags()
	flags.String("server", "localhost:7447", "Bridge address")
	flags.String("client-id", "rclctl", "Client ID used when logging in")
	flags.String("token", "", "JWT token (if already issued)")
	flags.Bool("login", false, "Log in to obtain a token before running the command")
	flags.Duration("timeout", 10*time.Second, "Per-call timeout")
	flags.Bool("json", false, "Output JSON")
	for _, name := range []string{"server", "client-id", "token", "login", "timeout", "json"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}

	rootCmd.AddCommand(newSecureRootCommand(v))
	rootCmd.AddCommand(newPublishCommand(v))
	rootCmd.AddCommand(newWatchCommand(v))
	rootCmd.AddCommand(newHealthCommand(v))
	return rootCmd
}

// dial connects to the bridge with the global configuration
func dial(ctx context.Context, v *viper.Viper) (*remote.Client, error) {
	client, err := remote.NewClient(remote.ClientConfig{
		ServerAddress: v.GetString("server"),
		ClientID:      v.GetString("client-id"),
		Token:         v.GetString("token"),
		Timeout:       v.GetDuration("timeout"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	if v.GetBool("login") {
		if err := client.Authenticate(ctx); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	return client, nil
}
