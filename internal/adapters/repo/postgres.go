package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chat-automation/internal/domain"
	"chat-automation/internal/infra/metrics"
)

const documentsSchema = `
CREATE TABLE IF NOT EXISTS automation_documents (
  collection TEXT PRIMARY KEY,
  payload JSONB NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres хранит коллекции как JSONB-документы, по строке на коллекцию.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.DocumentStore = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 5*time.Second)
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// Migrate создаёт таблицу документов.
func (p *Postgres) Migrate(ctx context.Context) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, documentsSchema)
	metrics.ObserveNetworkRequest("postgres", "migrate", "automation_documents", start, err)
	return err
}

// Load возвращает документ коллекции.
func (p *Postgres) Load(ctx context.Context, collection string) ([]byte, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	var payload []byte
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT payload FROM automation_documents WHERE collection = $1`, collection).Scan(&payload)
	metrics.ObserveNetworkRequest("postgres", "documents_select", collection, start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// Save переписывает документ коллекции.
func (p *Postgres) Save(ctx context.Context, collection string, payload []byte) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO automation_documents (collection, payload, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (collection) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()
`, collection, payload)
	metrics.ObserveNetworkRequest("postgres", "documents_upsert", collection, start, err)
	return err
}
