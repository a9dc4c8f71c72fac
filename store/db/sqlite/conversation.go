package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/flowchat-io/flowchat/store"
)

// CreateConversationRecord appends one snapshot to the log.
func (d *DB) CreateConversationRecord(ctx context.Context, create *store.ConversationRecord) (*store.ConversationRecord, error) {
	stmt := `
		INSERT INTO conversation_state (
			uid, user_id, user_name, version, intent, entities, slots, events,
			button, synonym_dict, response, loop_stack
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id, created_ts
	`
	record := *create
	err := d.db.QueryRowContext(ctx, stmt,
		create.UID,
		create.UserID,
		create.UserName,
		create.Version,
		create.Intent,
		create.Entities,
		create.Slots,
		create.Events,
		create.Button,
		create.Synonyms,
		create.Response,
		create.LoopStack,
	).Scan(
		&record.ID,
		&record.CreatedTs,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create conversation record")
	}
	return &record, nil
}

// GetLatestConversationRecord returns the newest record for a user, or nil
// when the user has no history.
func (d *DB) GetLatestConversationRecord(ctx context.Context, userID string) (*store.ConversationRecord, error) {
	query := `
		SELECT id, uid, user_id, user_name, version, intent, entities, slots,
			events, button, synonym_dict, response, loop_stack, created_ts
		FROM conversation_state
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT 1
	`
	record, err := scanConversationRecord(d.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get latest conversation record")
	}
	return record, nil
}

// ListConversationRecords lists records newest first.
func (d *DB) ListConversationRecords(ctx context.Context, find *store.FindConversationRecord) ([]*store.ConversationRecord, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *find.UserID)
	}

	query := `SELECT id, uid, user_id, user_name, version, intent, entities, slots,
			events, button, synonym_dict, response, loop_stack, created_ts
		FROM conversation_state
		WHERE ` + where[0]
	if len(where) > 1 {
		query += " AND " + where[1]
	}
	query += " ORDER BY id DESC"

	if find.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversation records")
	}
	defer rows.Close()

	var records []*store.ConversationRecord
	for rows.Next() {
		record, err := scanConversationRecord(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation record")
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// ListLatestConversationRecords returns the newest record per user, newest
// first, for at most limit users.
func (d *DB) ListLatestConversationRecords(ctx context.Context, limit int) ([]*store.ConversationRecord, error) {
	query := `
		SELECT id, uid, user_id, user_name, version, intent, entities, slots,
			events, button, synonym_dict, response, loop_stack, created_ts
		FROM conversation_state
		WHERE id IN (SELECT MAX(id) FROM conversation_state GROUP BY user_id)
		ORDER BY id DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list latest conversation records")
	}
	defer rows.Close()

	var records []*store.ConversationRecord
	for rows.Next() {
		record, err := scanConversationRecord(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation record")
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversationRecord(row rowScanner) (*store.ConversationRecord, error) {
	var record store.ConversationRecord
	var button, synonyms, response sql.NullString
	err := row.Scan(
		&record.ID,
		&record.UID,
		&record.UserID,
		&record.UserName,
		&record.Version,
		&record.Intent,
		&record.Entities,
		&record.Slots,
		&record.Events,
		&button,
		&synonyms,
		&response,
		&record.LoopStack,
		&record.CreatedTs,
	)
	if err != nil {
		return nil, err
	}
	if button.Valid {
		record.Button = &button.String
	}
	if synonyms.Valid {
		record.Synonyms = &synonyms.String
	}
	if response.Valid {
		record.Response = &response.String
	}
	return &record, nil
}
