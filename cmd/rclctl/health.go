package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
)

func newHealthCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check bridge health",
		Long:  "Check the serving status of the rcl-transportd bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			client, err := dial(ctx, v)
			if err != nil {
				return err
			}
			defer client.Close()

			status, err := client.CheckHealth(ctx)
			if err != nil {
				return fmt.Errorf("failed to check health: %w", err)
			}

			if v.GetBool("json") {
				data, err := protojson.Marshal(&healthpb.HealthCheckResponse{Status: status})
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
			} else {
				fmt.Fprintf(out, "Checking health of %s...\n", v.GetString("server"))
				if status == healthpb.HealthCheckResponse_SERVING {
					fmt.Fprintf(out, "✅ Bridge is healthy!\n")
				} else {
					fmt.Fprintf(out, "❌ Bridge is not healthy!\n")
				}
				fmt.Fprintf(out, "Status: %s\n", status)
			}

			if status != healthpb.HealthCheckResponse_SERVING {
				return fmt.Errorf("bridge is %s", status)
			}
			return nil
		},
	}

	return cmd
}
