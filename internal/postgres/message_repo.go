package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepository struct {
	db *pgxpool.Pool
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageColumns = `id, sender_id, receiver_id, content, client_message_id, created_at, read_at`

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var m domain.Message
	if err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content,
		&m.ClientMessageID, &m.CreatedAt, &m.ReadAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// Insert сохраняет сообщение идемпотентно. Повторная отправка того же
// (sender, receiver, content, client_message_id) внутри dedupWindow
// возвращает исходную строку с Duplicate=true; гонка конкурентных
// ретраев разрешается частичным уникальным индексом uq_messages_client_id
// (ON CONFLICT DO NOTHING + повторный SELECT), второй строки не бывает.
func (r *MessageRepository) Insert(ctx context.Context, m *domain.Message, dedupWindow time.Duration) (*domain.Message, error) {
	if m.ClientMessageID != nil {
		existing, err := r.findRecentDuplicate(ctx, m, dedupWindow)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			existing.Duplicate = true
			return existing, nil
		}
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO messages (id, sender_id, receiver_id, content, client_message_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (sender_id, receiver_id, client_message_id)
			WHERE client_message_id IS NOT NULL
			DO NOTHING
		RETURNING `+messageColumns,
		m.ID, m.SenderID, m.ReceiverID, m.Content, m.ClientMessageID)

	inserted, err := scanMessage(row)
	if err == nil {
		return inserted, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	// конфликт по индексу: параллельный ретрай успел первым
	row = r.db.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE sender_id=$1 AND receiver_id=$2 AND client_message_id=$3`,
		m.SenderID, m.ReceiverID, m.ClientMessageID)
	existing, err := scanMessage(row)
	if err != nil {
		return nil, fmt.Errorf("select after conflict: %w", err)
	}
	existing.Duplicate = true
	return existing, nil
}

func (r *MessageRepository) findRecentDuplicate(ctx context.Context, m *domain.Message, window time.Duration) (*domain.Message, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE sender_id=$1 AND receiver_id=$2 AND client_message_id=$3
		  AND content=$4 AND created_at > $5`,
		m.SenderID, m.ReceiverID, m.ClientMessageID, m.Content,
		time.Now().Add(-window))

	existing, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dedup lookup: %w", err)
	}
	return existing, nil
}

func (r *MessageRepository) Get(ctx context.Context, id string) (*domain.Message, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id=$1`, id)
	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// MarkRead проставляет read_at один раз. updated=false, если read_at
// уже стоял (повторный вызов — no-op, возвращается исходная отметка).
func (r *MessageRepository) MarkRead(ctx context.Context, id string, readerID int64) (*domain.Message, bool, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE messages SET read_at = now()
		WHERE id=$1 AND receiver_id=$2 AND read_at IS NULL
		RETURNING `+messageColumns, id, readerID)

	m, err := scanMessage(row)
	if err == nil {
		return m, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("mark read: %w", err)
	}

	// строка не обновилась: нет сообщения, чужой reader или уже прочитано
	m, err = r.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if m.ReceiverID != readerID {
		return nil, false, domain.ErrNotReceiver
	}
	return m, false, nil
}

// ListPair возвращает сообщения пары по одному из трёх режимов:
// since — восходящий порядок от отметки времени (sync-путь);
// beforeID — страница назад от курсора; иначе — последние limit.
// Результат всегда по возрастанию created_at (ULID id — вторичный ключ).
func (r *MessageRepository) ListPair(ctx context.Context, userID, otherID int64, since *time.Time, beforeID string, limit int) ([]domain.Message, error) {
	const pairCond = `((sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1))`

	var (
		rows pgx.Rows
		err  error
		desc bool
	)
	switch {
	case since != nil:
		rows, err = r.db.Query(ctx, `
			SELECT `+messageColumns+` FROM messages
			WHERE `+pairCond+` AND created_at > $3
			ORDER BY created_at ASC, id ASC
			LIMIT $4`, userID, otherID, *since, limit)
	case beforeID != "":
		desc = true
		rows, err = r.db.Query(ctx, `
			SELECT `+messageColumns+` FROM messages
			WHERE `+pairCond+` AND id < $3
			ORDER BY id DESC
			LIMIT $4`, userID, otherID, beforeID, limit)
	default:
		desc = true
		rows, err = r.db.Query(ctx, `
			SELECT `+messageColumns+` FROM messages
			WHERE `+pairCond+`
			ORDER BY id DESC
			LIMIT $3`, userID, otherID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	if desc {
		reverse(out)
	}
	return out, nil
}

// ListInbox — сообщения, адресованные userID, с created_at > since
// (восходящий порядок). Основа messages:sync.
func (r *MessageRepository) ListInbox(ctx context.Context, userID int64, since time.Time, limit int) ([]domain.Message, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE receiver_id=$1 AND created_at > $2
		ORDER BY created_at ASC, id ASC
		LIMIT $3`, userID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

func collectMessages(rows pgx.Rows) ([]domain.Message, error) {
	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content,
			&m.ClientMessageID, &m.CreatedAt, &m.ReadAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func reverse(ms []domain.Message) {
	for i, j := 0, len(ms)-1; i < j; i, j = i+1, j-1 {
		ms[i], ms[j] = ms[j], ms[i]
	}
}
