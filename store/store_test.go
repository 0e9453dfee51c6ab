package store_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/uselocalchat/localchat/chat"
	"github.com/uselocalchat/localchat/store"
	"github.com/uselocalchat/localchat/store/db/sqlite"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	driver, err := sqlite.New(filepath.Join(t.TempDir(), "localchat_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { driver.Close() })

	st := store.New(driver)
	require.NoError(t, st.EnsureSchema(context.Background()))
	return st
}

func TestChatLifecycle(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	created, err := st.CreateChat(ctx, &store.Chat{
		ID: "c1", UserID: "u1", Title: "Trip planning", Visibility: "private",
	})
	require.NoError(t, err)
	require.Equal(t, "c1", created.ID)
	require.NotZero(t, created.CreatedTs)

	id := "c1"
	got, err := st.GetChat(ctx, &store.FindChat{ID: &id})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Trip planning", got.Title)

	record := got.Record()
	require.Equal(t, chat.VisibilityPrivate, record.Visibility)

	require.NoError(t, st.DeleteChat(ctx, "c1"))
	got, err = st.GetChat(ctx, &store.FindChat{ID: &id})
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestCreateChatIdempotent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	first, err := st.CreateChat(ctx, &store.Chat{ID: "c1", UserID: "u1", Title: "Original", Visibility: "private"})
	require.NoError(t, err)

	// A duplicate create leaves the stored row untouched.
	second, err := st.CreateChat(ctx, &store.Chat{ID: "c1", UserID: "u2", Title: "Usurper", Visibility: "public"})
	require.NoError(t, err)
	require.Equal(t, first.Title, second.Title)
	require.Equal(t, "u1", second.UserID)
}

func TestGetChatAbsent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	id := "ghost"
	got, err := st.GetChat(ctx, &store.FindChat{ID: &id})
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestListChatsByUser(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	for _, c := range []*store.Chat{
		{ID: "a", UserID: "u1", Title: "one", Visibility: "private"},
		{ID: "b", UserID: "u1", Title: "two", Visibility: "private"},
		{ID: "c", UserID: "u2", Title: "other", Visibility: "private"},
	} {
		_, err := st.CreateChat(ctx, c)
		require.NoError(t, err)
	}

	user := "u1"
	list, err := st.ListChats(ctx, &store.FindChat{UserID: &user})
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestMessagesRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	_, err := st.CreateChat(ctx, &store.Chat{ID: "c1", UserID: "u1", Title: "t", Visibility: "private"})
	require.NoError(t, err)

	ui := chat.Message{
		ID:      "m1",
		Role:    chat.RoleAssistant,
		Content: "checking",
		ToolInvocations: []chat.ToolInvocation{
			{State: chat.ToolStateResult, ToolCallID: "w1", ToolName: "getWeather", Result: json.RawMessage(`"sunny"`)},
		},
		ChatID: "c1",
	}
	row, err := store.FromUIMessage(ui)
	require.NoError(t, err)
	require.NoError(t, st.CreateMessages(ctx, []*store.Message{row}))

	rows, err := st.ListMessages(ctx, &store.FindMessage{ChatID: "c1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	back, err := rows[0].UIMessage()
	require.NoError(t, err)
	require.Equal(t, ui.ID, back.ID)
	require.Equal(t, ui.Role, back.Role)
	require.Equal(t, ui.Content, back.Content)
	require.Len(t, back.ToolInvocations, 1)
	require.Equal(t, "w1", back.ToolInvocations[0].ToolCallID)
	require.False(t, back.CreatedAt.IsZero())
}

func TestDeleteChatCascadesMessages(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	_, err := st.CreateChat(ctx, &store.Chat{ID: "c1", UserID: "u1", Title: "t", Visibility: "private"})
	require.NoError(t, err)
	require.NoError(t, st.CreateMessages(ctx, []*store.Message{
		{ID: "m1", ChatID: "c1", Role: "user", Content: "hi", CreatedTs: 1},
		{ID: "m2", ChatID: "c1", Role: "assistant", Content: "hello", CreatedTs: 2},
	}))

	require.NoError(t, st.DeleteChat(ctx, "c1"))

	rows, err := st.ListMessages(ctx, &store.FindMessage{ChatID: "c1"})
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestCreateMessagesAtomic(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	_, err := st.CreateChat(ctx, &store.Chat{ID: "c1", UserID: "u1", Title: "t", Visibility: "private"})
	require.NoError(t, err)

	// The second row violates the chat foreign key; neither row survives.
	err = st.CreateMessages(ctx, []*store.Message{
		{ID: "m1", ChatID: "c1", Role: "user", Content: "hi", CreatedTs: 1},
		{ID: "m2", ChatID: "missing", Role: "user", Content: "lost", CreatedTs: 2},
	})
	require.Error(t, err)

	rows, err := st.ListMessages(ctx, &store.FindMessage{ChatID: "c1"})
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestListMessagesOrdered(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	_, err := st.CreateChat(ctx, &store.Chat{ID: "c1", UserID: "u1", Title: "t", Visibility: "private"})
	require.NoError(t, err)
	require.NoError(t, st.CreateMessages(ctx, []*store.Message{
		{ID: "m2", ChatID: "c1", Role: "assistant", Content: "second", CreatedTs: 20},
		{ID: "m1", ChatID: "c1", Role: "user", Content: "first", CreatedTs: 10},
	}))

	rows, err := st.ListMessages(ctx, &store.FindMessage{ChatID: "c1"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "first", rows[0].Content)
	require.Equal(t, "second", rows[1].Content)
}
