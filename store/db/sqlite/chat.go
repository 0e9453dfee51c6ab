package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/uselocalchat/localchat/store"
)

func (d *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			title      TEXT NOT NULL,
			visibility TEXT NOT NULL DEFAULT 'private',
			created_ts BIGINT NOT NULL DEFAULT (strftime('%s', 'now'))
		)`,
		`CREATE TABLE IF NOT EXISTS message (
			id               TEXT PRIMARY KEY,
			chat_id          TEXT NOT NULL REFERENCES chat(id) ON DELETE CASCADE,
			role             TEXT NOT NULL,
			content          TEXT NOT NULL,
			tool_invocations TEXT NOT NULL DEFAULT '',
			created_ts       BIGINT NOT NULL DEFAULT (strftime('%s', 'now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_message_chat ON message(chat_id)`,
	}
	for _, s := range stmts {
		if _, err := d.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) CreateChat(ctx context.Context, create *store.Chat) (*store.Chat, error) {
	// ON CONFLICT DO NOTHING makes creation idempotent: the second of two
	// racing creates for one id is a no-op.
	stmt := `INSERT INTO chat (id, user_id, title, visibility)
	         VALUES (?, ?, ?, ?)
	         ON CONFLICT (id) DO NOTHING`
	if _, err := d.db.ExecContext(ctx, stmt, create.ID, create.UserID, create.Title, create.Visibility); err != nil {
		return nil, err
	}
	return d.GetChat(ctx, &store.FindChat{ID: &create.ID})
}

func (d *DB) ListChats(ctx context.Context, find *store.FindChat) ([]*store.Chat, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.ID; v != nil {
		where, args = append(where, "id = ?"), append(args, *v)
	}
	if v := find.UserID; v != nil {
		where, args = append(where, "user_id = ?"), append(args, *v)
	}
	query := fmt.Sprintf(
		`SELECT id, user_id, title, visibility, created_ts
		 FROM chat WHERE %s ORDER BY created_ts DESC`,
		strings.Join(where, " AND "),
	)
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.Chat
	for rows.Next() {
		c := &store.Chat{}
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.Visibility, &c.CreatedTs); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (d *DB) GetChat(ctx context.Context, find *store.FindChat) (*store.Chat, error) {
	list, err := d.ListChats(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (d *DB) DeleteChat(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM chat WHERE id = ?`, id)
	return err
}

func (d *DB) CreateMessages(ctx context.Context, creates []*store.Message) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt := `INSERT INTO message (id, chat_id, role, content, tool_invocations, created_ts)
	         VALUES (?, ?, ?, ?, ?, ?)`
	for _, m := range creates {
		if _, err := tx.ExecContext(ctx, stmt, m.ID, m.ChatID, m.Role, m.Content, m.ToolInvocations, m.CreatedTs); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	query := `SELECT id, chat_id, role, content, tool_invocations, created_ts
	          FROM message WHERE chat_id = ? ORDER BY created_ts ASC, id ASC`
	rows, err := d.db.QueryContext(ctx, query, find.ChatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.Message
	for rows.Next() {
		m := &store.Message{}
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.ToolInvocations, &m.CreatedTs); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}
