package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"mindpages/internal/config"
	"mindpages/internal/models"
)

// DefaultHistoryLimit is the number of rows returned by Recent when no limit is given.
const DefaultHistoryLimit = 20

type Ingestion struct {
	bun.BaseModel `bun:"table:ingestions,alias:i"`
	ID            int64     `bun:"id,pk,autoincrement"`
	RequestID     string    `bun:"request_id,notnull"`
	Collection    string    `bun:"collection,notnull"`
	Filename      string    `bun:"filename,notnull"`
	Pages         int       `bun:"pages,notnull"`
	Chunks        int       `bun:"chunks,notnull"`
	Sources       int       `bun:"sources,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens a lazy connection pool. Nothing is dialed until the first query.
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database url is required")
	}
	return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.URL))), nil
}

func InitDB(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*Ingestion)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create ingestions table: %w", err)
	}
	return nil
}

// Recorder writes and lists ingestion history rows.
type Recorder struct {
	db *bun.DB
}

func NewRecorder(db *bun.DB) *Recorder {
	return &Recorder{db: db}
}

func (r *Recorder) Record(ctx context.Context, entry models.Ingestion) error {
	_, err := r.insertQuery(entry).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to store ingestion: %w", err)
	}
	return nil
}

func (r *Recorder) insertQuery(entry models.Ingestion) *bun.InsertQuery {
	row := &Ingestion{
		RequestID:  entry.RequestID,
		Collection: entry.Collection,
		Filename:   entry.Filename,
		Pages:      entry.Pages,
		Chunks:     entry.Chunks,
		Sources:    entry.Sources,
		CreatedAt:  entry.CreatedAt,
	}
	return r.db.NewInsert().Model(row)
}

// Recent returns the latest rows, newest first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]models.Ingestion, error) {
	var rows []Ingestion
	if err := r.recentQuery(&rows, limit).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list ingestions: %w", err)
	}

	out := make([]models.Ingestion, len(rows))
	for i, row := range rows {
		out[i] = models.Ingestion{
			RequestID:  row.RequestID,
			Collection: row.Collection,
			Filename:   row.Filename,
			Pages:      row.Pages,
			Chunks:     row.Chunks,
			Sources:    row.Sources,
			CreatedAt:  row.CreatedAt,
		}
	}
	return out, nil
}

func (r *Recorder) recentQuery(rows *[]Ingestion, limit int) *bun.SelectQuery {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return r.db.NewSelect().
		Model(rows).
		OrderExpr("created_at DESC").
		Limit(limit)
}

func (r *Recorder) Close() error {
	return r.db.Close()
}
