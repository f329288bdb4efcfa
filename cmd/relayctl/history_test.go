package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"line-relay/internal/domain"
	"line-relay/internal/repository"
	"line-relay/internal/usecase"
)

func sqliteCommander(t *testing.T) (*historyCommander, *repository.SQLiteLog) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	seed, err := repository.OpenSQLiteLog(path, 5)
	require.NoError(t, err)
	t.Cleanup(func() { _ = seed.Close() })

	cmder := &historyCommander{openStore: func(context.Context) (usecase.HistoryStore, func() error, error) {
		store, err := repository.OpenSQLiteLog(path, 5)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}}
	return cmder, seed
}

func TestHistoryShow_Chronological(t *testing.T) {
	cmder, seed := sqliteCommander(t)
	ctx := context.Background()
	require.NoError(t, seed.Persist(ctx, "U1", domain.History{}, domain.Exchange{Timestamp: 1, UserMessage: "A", AIMessage: "B"}))
	require.NoError(t, seed.Persist(ctx, "U1", domain.History{}, domain.Exchange{Timestamp: 2, UserMessage: "C", AIMessage: "D"}))

	var out bytes.Buffer
	require.NoError(t, cmder.show(ctx, &out, "U1"))
	require.Equal(t, "[user] A\n[assistant] B\n[user] C\n[assistant] D\n", out.String())
}

func TestHistoryShow_JSON(t *testing.T) {
	cmder, seed := sqliteCommander(t)
	ctx := context.Background()
	require.NoError(t, seed.Persist(ctx, "U1", domain.History{}, domain.Exchange{Timestamp: 1, UserMessage: "A", AIMessage: "B"}))

	cmder.asJSON = true
	var out bytes.Buffer
	require.NoError(t, cmder.show(ctx, &out, "U1"))

	var rows []jsonMessage
	require.NoError(t, json.Unmarshal(out.Bytes(), &rows))
	require.Equal(t, []jsonMessage{{Role: domain.RoleUser, Content: "A"}, {Role: domain.RoleAssistant, Content: "B"}}, rows)
}

func TestHistoryShow_Empty(t *testing.T) {
	cmder, _ := sqliteCommander(t)
	var out bytes.Buffer
	require.NoError(t, cmder.show(context.Background(), &out, "U404"))
	require.Equal(t, "no history for U404 (durable-log)\n", out.String())
}

func TestHistoryClear(t *testing.T) {
	cmder, seed := sqliteCommander(t)
	ctx := context.Background()
	require.NoError(t, seed.Persist(ctx, "U1", domain.History{}, domain.Exchange{Timestamp: 1, UserMessage: "A", AIMessage: "B"}))

	var out bytes.Buffer
	require.NoError(t, cmder.clear(ctx, &out, "U1"))
	require.Contains(t, out.String(), "cleared history for U1")

	h, err := seed.History(ctx, "U1")
	require.NoError(t, err)
	require.Empty(t, h.Exchanges)
}

func TestHistoryCmd_RequiresUserID(t *testing.T) {
	cmd := newHistoryCmd()
	cmd.SetArgs([]string{"show"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	require.Error(t, cmd.Execute())
}
