package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rmacdonaldsmith/rcl-go/internal/transport/intraprocess"
)

func newPublishCommand(v *viper.Viper) *cobra.Command {
	var (
		count    int
		interval time.Duration
		lease    time.Duration
		deadline time.Duration
	)

	cmd := &cobra.Command{
		Use:   "publish <topic> <message>",
		Short: "Publish a message to a topic",
		Long: `Publish a message to a topic on the bridge. The publisher lives for the
duration of the command; --count and --interval repeat the message.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic, message := args[0], args[1]
			ctx := cmd.Context()

			client, err := dial(ctx, v)
			if err != nil {
				return err
			}
			defer client.Close()

			pub, err := client.CreatePublisher(ctx, topic, intraprocess.QoS{
				Deadline:                deadline,
				LivelinessLeaseDuration: lease,
			})
			if err != nil {
				return err
			}
			defer func() {
				_ = pub.Destroy(context.Background())
			}()

			for i := 0; i < count; i++ {
				if i > 0 && interval > 0 {
					select {
					case <-ctx.Done():
						return nil
					case <-time.After(interval):
					}
				}
				if err := pub.Publish(ctx, []byte(message)); err != nil {
					return fmt.Errorf("failed to publish: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✅ Published to %s (%d bytes)\n", topic, len(message))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&count, "count", 1, "Number of times to publish the message")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Delay between repeated messages")
	cmd.Flags().DurationVar(&lease, "liveliness-lease", 0, "Liveliness lease duration of the publisher")
	cmd.Flags().DurationVar(&deadline, "deadline", 0, "Offered deadline of the publisher")

	return cmd
}
