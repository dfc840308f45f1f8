package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"contentplanner/config"
	"contentplanner/pkg/db"
	"contentplanner/pkg/logger"
	"contentplanner/pkg/mq"
	"contentplanner/pkg/outbox"
)

func outboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and recover document change events",
	}
	cmd.AddCommand(outboxReplayCmd())
	cmd.AddCommand(outboxRequeueCmd())
	return cmd
}

// withReplay builds a ReplayService from config and runs fn with it.
func withReplay(cmd *cobra.Command, fn func(ctx context.Context, svc *outbox.ReplayService) error) error {
	dir, _ := cmd.Flags().GetString("config-dir")
	cfg, err := config.Load(dir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.NewLogger(cfg.Log.Development)
	defer log.Sync()

	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	pub, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	defer pub.Close()

	return fn(context.Background(), outbox.NewReplayService(outbox.NewRepository(pool), pub, log))
}

func outboxReplayCmd() *cobra.Command {
	var (
		eventID int64
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Publish one event (--id) or every failed event right away",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReplay(cmd, func(ctx context.Context, svc *outbox.ReplayService) error {
				if eventID > 0 {
					if err := svc.ReplayEvent(ctx, eventID); err != nil {
						return err
					}
					fmt.Printf("Replayed event %d\n", eventID)
					return nil
				}
				n, err := svc.ReplayFailedEvents(ctx, limit)
				if err != nil {
					return err
				}
				fmt.Printf("Replayed %d failed events\n", n)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&eventID, "id", 0, "replay a single event by id")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum failed events to replay")
	return cmd
}

func outboxRequeueCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "requeue",
		Short: "Reset failed events to pending for the dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReplay(cmd, func(ctx context.Context, svc *outbox.ReplayService) error {
				n, err := svc.RequeueFailed(ctx, limit)
				if err != nil {
					return err
				}
				fmt.Printf("Requeued %d failed events\n", n)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum events to requeue")
	return cmd
}
