package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-compliance-tasks/internal/client"
)

// WatchCmd tails the task change feed.
func WatchCmd() *cobra.Command {
	var addr, password, channel string
	var db int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream task changes as they happen",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rdb, err := client.NewRedisClient(ctx, addr, password, db)
			if err != nil {
				return err
			}
			defer rdb.Close()

			events, stop, err := client.NewChangeFeed(rdb, channel, zerolog.Nop()).Subscribe(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = stop() }()

			fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (Ctrl-C to stop)\n", addr)
			for ev := range events {
				writeEvent(cmd.OutOrStdout(), ev)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&addr, "redis", envOr("REDIS_ADDR", "localhost:6379"), "redis address")
	f.StringVar(&password, "redis-password", "", "redis password")
	f.IntVar(&db, "redis-db", 0, "redis database")
	f.StringVar(&channel, "channel", client.DefaultChangeChannel, "change feed channel")
	return cmd
}
