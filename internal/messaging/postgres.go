package messaging

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campus-market/campus_market/internal/apperr"
)

const foreignKeyViolation = "23503"

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a Postgres-backed thread store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Open inserts the thread unless it already exists and returns the stored row.
func (s *PostgresStore) Open(ctx context.Context, thread Thread) (Thread, error) {
	if _, err := s.db.Exec(ctx, `INSERT INTO threads (thread_key, participants, created_at)
        VALUES ($1, $2, $3) ON CONFLICT (thread_key) DO NOTHING`,
		string(thread.Key), thread.Participants, thread.CreatedAt.UTC()); err != nil {
		return Thread{}, err
	}
	return s.Get(ctx, thread.Key)
}

// Get loads a thread with its messages in append order.
func (s *PostgresStore) Get(ctx context.Context, key ThreadKey) (Thread, error) {
	t, err := scanThread(s.db.QueryRow(ctx, `SELECT thread_key, participants, created_at FROM threads WHERE thread_key = $1`, string(key)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Thread{}, apperr.NotFound("thread", string(key))
		}
		return Thread{}, err
	}
	if t.Messages, err = s.messages(ctx, key); err != nil {
		return Thread{}, err
	}
	return t, nil
}

// Append adds a message to the end of the thread.
func (s *PostgresStore) Append(ctx context.Context, key ThreadKey, msg Message) error {
	_, err := s.db.Exec(ctx, `INSERT INTO messages (thread_key, from_user_id, body, created_at) VALUES ($1, $2, $3, $4)`,
		string(key), msg.FromUserID, msg.Text, msg.At.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return apperr.NotFound("thread", string(key))
	}
	return err
}

// ListFor returns every thread that includes userID.
func (s *PostgresStore) ListFor(ctx context.Context, userID string) ([]Thread, error) {
	rows, err := s.db.Query(ctx, `SELECT thread_key, participants, created_at FROM threads
        WHERE $1 = ANY(participants) ORDER BY seq`, userID)
	if err != nil {
		return nil, err
	}
	threads, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Thread, error) {
		return scanThread(row)
	})
	if err != nil {
		return nil, err
	}

	for i := range threads {
		if threads[i].Messages, err = s.messages(ctx, threads[i].Key); err != nil {
			return nil, err
		}
	}
	return threads, nil
}

func (s *PostgresStore) messages(ctx context.Context, key ThreadKey) ([]Message, error) {
	rows, err := s.db.Query(ctx, `SELECT from_user_id, body, created_at FROM messages WHERE thread_key = $1 ORDER BY seq`, string(key))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.FromUserID, &m.Text, &m.At); err != nil {
			return nil, err
		}
		m.At = m.At.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanThread(row pgx.Row) (Thread, error) {
	var (
		t   Thread
		key string
	)
	if err := row.Scan(&key, &t.Participants, &t.CreatedAt); err != nil {
		return Thread{}, err
	}
	t.Key = ThreadKey(key)
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}
