package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"

	"line-relay/internal/app"
	"line-relay/internal/config"
	"line-relay/internal/domain"
	"line-relay/internal/usecase"
)

const historyLongDesc string = `Inspect or clear one user's conversation history.

The store is chosen by the same environment variables the relay uses
(HISTORY_POLICY, HISTORY_BACKEND, HISTORY_TABLE, SQLITE_PATH, CACHE_ADDR).

Examples:
  relayctl history show U4af4980629...
  relayctl history show --json U4af4980629...
  relayctl history clear U4af4980629...`

type historyCommander struct {
	asJSON bool

	// openStore is replaced in tests.
	openStore func(ctx context.Context) (usecase.HistoryStore, func() error, error)
}

func newHistoryCmd() *cobra.Command {
	cmder := &historyCommander{openStore: openConfiguredStore}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or clear a user's history",
		Long:  historyLongDesc,
	}

	showCmd := &cobra.Command{
		Use:   "show <userId>",
		Short: "Print the context the next turn would be assembled from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.show(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
	showCmd.Flags().BoolVar(&cmder.asJSON, "json", false, "Print messages as JSON")

	clearCmd := &cobra.Command{
		Use:   "clear <userId>",
		Short: "Delete a user's history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.clear(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}

	cmd.AddCommand(showCmd, clearCmd)
	return cmd
}

func openConfiguredStore(ctx context.Context) (usecase.HistoryStore, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("could not load AWS config: %w", err)
	}
	return app.NewHistoryStore(cfg.History, awsCfg)
}

type jsonMessage struct {
	Role    domain.Role `json:"role"`
	Content string      `json:"content"`
}

func (c *historyCommander) show(ctx context.Context, out io.Writer, userID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	store, closeFn, err := c.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	h, err := store.History(ctx, userID)
	if err != nil {
		return fmt.Errorf("could not read history for %s: %w", userID, err)
	}
	msgs := usecase.HistoryMessages(h)

	if c.asJSON {
		rows := make([]jsonMessage, 0, len(msgs))
		for _, m := range msgs {
			rows = append(rows, jsonMessage{Role: m.Role, Content: m.Text()})
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(msgs) == 0 {
		fmt.Fprintf(out, "no history for %s (%s)\n", userID, store.Policy())
		return nil
	}
	for _, m := range msgs {
		fmt.Fprintf(out, "[%s] %s\n", m.Role, m.Text())
	}
	return nil
}

func (c *historyCommander) clear(ctx context.Context, out io.Writer, userID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	store, closeFn, err := c.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	if err := store.Clear(ctx, userID); err != nil {
		return fmt.Errorf("could not clear history for %s: %w", userID, err)
	}
	fmt.Fprintf(out, "cleared history for %s (%s)\n", userID, store.Policy())
	return nil
}
