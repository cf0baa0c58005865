package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/benchmark"
	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/scenario"
)

// Postgres backs a framework through a task table. Workers claim pending
// rows and flip their status; the probe counts terminal statuses.
type Postgres struct {
	db    *sql.DB
	dsn   string
	table string
}

// NewPostgres connects, pings, and ensures the task table exists. prefix
// namespaces the framework's table; it defaults to "benchmark".
func NewPostgres(dsn, prefix string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if prefix == "" {
		prefix = "benchmark"
	}
	p := &Postgres{db: db, dsn: dsn, table: prefix + "_tasks"}
	if err := p.ensureTable(); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) ensureTable() error {
	createSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			kind TEXT NOT NULL,
			arg INT NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			enqueued_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			completed_at TIMESTAMPTZ
		)
	`, p.table)
	if _, err := p.db.Exec(createSQL); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	indexSQL := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_status_idx ON %s (status)",
		p.table, p.table)
	if _, err := p.db.Exec(indexSQL); err != nil {
		return fmt.Errorf("create status index: %w", err)
	}
	return nil
}

func (p *Postgres) Name() string { return "postgres" }

// Enqueue inserts envelopes as pending rows in multi-row batches.
func (p *Postgres) Enqueue(ctx context.Context, specs []scenario.TaskSpec) ([]benchmark.TaskHandle, error) {
	envs, handles := buildEnvelopes(specs)

	for start := 0; start < len(envs); start += enqueueBatchSize {
		end := min(start+enqueueBatchSize, len(envs))
		if err := p.insertBatch(ctx, envs[start:end]); err != nil {
			return nil, fmt.Errorf("enqueue batch at %d: %w", start, err)
		}
	}

	return handles, nil
}

func (p *Postgres) insertBatch(ctx context.Context, envs []Envelope) error {
	placeholders := make([]string, len(envs))
	args := make([]interface{}, 0, len(envs)*3)

	for i, env := range envs {
		placeholders[i] = fmt.Sprintf("($%d, $%d, $%d)", i*3+1, i*3+2, i*3+3)
		args = append(args, env.ID, env.Kind, env.Arg)
	}

	query := fmt.Sprintf("INSERT INTO %s (id, kind, arg) VALUES %s",
		p.table, strings.Join(placeholders, ", "))

	_, err := p.db.ExecContext(ctx, query, args...)
	return err
}

// Counts tallies terminal task rows.
func (p *Postgres) Counts(ctx context.Context) (int, int, error) {
	query := fmt.Sprintf(`SELECT
		count(*) FILTER (WHERE status = 'completed'),
		count(*) FILTER (WHERE status = 'failed')
		FROM %s`, p.table)

	var completed, failed int
	if err := p.db.QueryRowContext(ctx, query).Scan(&completed, &failed); err != nil {
		return 0, 0, fmt.Errorf("count tasks: %w", err)
	}
	return completed, failed, nil
}

// Reset truncates the task table.
func (p *Postgres) Reset(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, fmt.Sprintf("TRUNCATE %s", p.table)); err != nil {
		return fmt.Errorf("reset task table: %w", err)
	}
	return nil
}

// CheckIsolation rejects a sibling backend writing to the same table of
// the same database.
func (p *Postgres) CheckIsolation(other *Postgres) error {
	if p.dsn == other.dsn && p.table == other.table {
		return fmt.Errorf("queue isolation: both frameworks use table %s of the same database", p.table)
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
