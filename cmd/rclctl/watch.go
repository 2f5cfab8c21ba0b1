package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rmacdonaldsmith/rcl-go/internal/transport/intraprocess"
	"github.com/rmacdonaldsmith/rcl-go/pkg/allocator"
	"github.com/rmacdonaldsmith/rcl-go/pkg/event"
	"github.com/rmacdonaldsmith/rcl-go/pkg/rcl"
	"github.com/rmacdonaldsmith/rcl-go/pkg/transport"
	"github.com/rmacdonaldsmith/rcl-go/pkg/waitset"
)

func newWatchCommand(v *viper.Viper) *cobra.Command {
	var (
		count    int
		idle     time.Duration
		deadline time.Duration
		lease    time.Duration
		depth    int
	)

	cmd := &cobra.Command{
		Use:   "watch <topic>",
		Short: "Print messages and QoS events of a topic",
		Long: `Subscribe to a topic on the bridge and print every message together with
liveliness changes of its publishers. With --deadline, missed deadlines are
reported too. Runs until interrupted, --count messages were received or
nothing happened for --idle.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), v, cmd.OutOrStdout(), args[0], watchOptions{
				count: count,
				idle:  idle,
				qos: intraprocess.QoS{
					Depth:                   depth,
					Deadline:                deadline,
					LivelinessLeaseDuration: lease,
				},
			})
		},
	}

	cmd.Flags().IntVar(&count, "count", 0, "Exit after this many messages (0 runs forever)")
	cmd.Flags().DurationVar(&idle, "idle", 0, "Exit with an error after this long without activity (0 waits forever)")
	cmd.Flags().DurationVar(&deadline, "deadline", 0, "Requested deadline of the subscription")
	cmd.Flags().DurationVar(&lease, "liveliness-lease", 0, "Liveliness lease duration of the subscription")
	cmd.Flags().IntVar(&depth, "depth", 0, "Queue depth of the subscription (0 uses the bridge default)")

	return cmd
}

type watchOptions struct {
	count int
	idle  time.Duration
	qos   intraprocess.QoS
}

func runWatch(ctx context.Context, v *viper.Viper, out io.Writer, topic string, opts watchOptions) error {
	client, err := dial(ctx, v)
	if err != nil {
		return err
	}
	defer client.Close()

	sub, err := client.CreateSubscription(ctx, topic, opts.qos)
	if err != nil {
		return err
	}
	defer func() {
		_ = sub.Destroy(context.Background())
	}()

	rctx, err := rcl.NewContext(ctx, client)
	if err != nil {
		return err
	}
	defer func() {
		_ = rctx.Shutdown()
	}()

	events := []*event.Event{{}}
	if opts.qos.Deadline > 0 {
		events = append(events, &event.Event{})
	}
	if err := events[0].InitSubscriptionEvent(sub, event.SubscriptionLivelinessChanged, allocator.Default()); err != nil {
		return fmt.Errorf("failed to create liveliness event: %w", err)
	}
	if len(events) > 1 {
		if err := events[1].InitSubscriptionEvent(sub, event.SubscriptionRequestedDeadlineMissed, allocator.Default()); err != nil {
			_ = events[0].Fini()
			return fmt.Errorf("failed to create deadline event: %w", err)
		}
	}
	defer func() {
		for _, ev := range events {
			_ = ev.Fini()
		}
	}()

	ws := &waitset.WaitSet{}
	if err := ws.Init(waitset.Counts{Subscriptions: 1, Events: len(events)}, rctx, allocator.Default()); err != nil {
		return err
	}
	defer func() {
		_ = ws.Fini()
	}()

	timeout := time.Duration(-1)
	if opts.idle > 0 {
		timeout = opts.idle
	}

	fmt.Fprintf(out, "👀 Watching %s...\n", topic)
	received := 0
	for opts.count <= 0 || received < opts.count {
		if err := ws.Clear(); err != nil {
			return err
		}
		if _, err := ws.AddSubscription(sub); err != nil {
			return err
		}
		for _, ev := range events {
			if _, err := ws.AddEvent(ev); err != nil {
				return err
			}
		}

		err := ws.Wait(timeout)
		switch {
		case err == nil:
		case errors.Is(err, rcl.ErrShutdown):
			return nil
		case errors.Is(err, rcl.ErrTimeout):
			return fmt.Errorf("no activity on %s for %s", topic, opts.idle)
		default:
			return err
		}

		for _, ev := range ws.Events() {
			if ev != nil {
				printEvent(out, ev)
			}
		}

		if ws.Subscriptions()[0] == nil {
			continue
		}
		for opts.count <= 0 || received < opts.count {
			data, ok, err := sub.Take(ctx)
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			received++
			fmt.Fprintf(out, "📨 %s: %s\n", topic, data)
		}
	}
	return nil
}

// printEvent takes the pending status of ev and prints it.
func printEvent(out io.Writer, ev *event.Event) {
	status := transport.NewStatus(event.TransportType(ev.OwnerKind(), ev.Type()))
	if err := ev.Take(status); err != nil {
		if !errors.Is(err, rcl.ErrEventTakeFailed) {
			fmt.Fprintf(out, "⚠️  Failed to take %s: %v\n", ev.Type(), err)
		}
		return
	}

	switch st := status.(type) {
	case *transport.LivelinessChangedStatus:
		fmt.Fprintf(out, "💓 Liveliness changed: alive=%d (%+d) not_alive=%d (%+d)\n",
			st.AliveCount, st.AliveCountChange, st.NotAliveCount, st.NotAliveCountChange)
	case *transport.RequestedDeadlineMissedStatus:
		fmt.Fprintf(out, "⏰ Deadline missed: total=%d (%+d)\n", st.TotalCount, st.TotalCountChange)
	}
}
