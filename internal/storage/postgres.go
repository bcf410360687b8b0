package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/NoahNelson/Pipes/internal/fingerprint"
	"github.com/NoahNelson/Pipes/internal/model"
)

// 3 parameters per row keeps a full batch under the 65535 parameter limit.
const postgresBatchSize = 20000

type PostgresClient struct {
	db *sql.DB
}

// NewPostgresClient connects with a postgres:// DSN and creates the corpus
// tables if they are missing.
func NewPostgresClient(ctx context.Context, dsn string) (*PostgresClient, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to postgres: %w", err)
	}

	if err := createPostgresTables(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

func createPostgresTables(ctx context.Context, db *sql.DB) error {
	createRecordingsTable := `
    CREATE TABLE IF NOT EXISTS recordings (
        id BIGSERIAL PRIMARY KEY,
        name TEXT NOT NULL UNIQUE,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	// The primary key leads with hash, which also serves hash lookups.
	createFingerprintsTable := `
    CREATE TABLE IF NOT EXISTS fingerprints (
        hash BIGINT NOT NULL,
        "offset" BIGINT NOT NULL,
        recording_id BIGINT NOT NULL REFERENCES recordings (id) ON DELETE CASCADE,
        PRIMARY KEY (hash, "offset", recording_id)
    );
    CREATE INDEX IF NOT EXISTS idx_fingerprints_recording ON fingerprints (recording_id);
    `

	if _, err := db.ExecContext(ctx, createRecordingsTable); err != nil {
		return fmt.Errorf("creating recordings table: %w", err)
	}
	if _, err := db.ExecContext(ctx, createFingerprintsTable); err != nil {
		return fmt.Errorf("creating fingerprints table: %w", err)
	}
	return nil
}

func (c *PostgresClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *PostgresClient) RegisterRecording(ctx context.Context, name string) (int64, error) {
	if c == nil || c.db == nil {
		return 0, errClientNil
	}
	if strings.TrimSpace(name) == "" {
		return 0, ErrEmptyName
	}

	// The no-op update makes RETURNING yield the existing row on conflict.
	var id int64
	err := c.db.QueryRowContext(ctx, `
        INSERT INTO recordings (name) VALUES ($1)
        ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
        RETURNING id`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("registering recording: %w", err)
	}
	return id, nil
}

func (c *PostgresClient) StoreFingerprints(ctx context.Context, recordingID int64, records []fingerprint.Record) error {
	if c == nil || c.db == nil {
		return errClientNil
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for start := 0; start < len(records); start += postgresBatchSize {
		end := min(start+postgresBatchSize, len(records))
		batch := records[start:end]

		valueStrings := make([]string, 0, len(batch))
		valueArgs := make([]any, 0, len(batch)*3)
		for i, r := range batch {
			p := i*3 + 1
			valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d)", p, p+1, p+2))
			valueArgs = append(valueArgs, int64(r.Hash), r.Offset, recordingID)
		}

		insertQuery := fmt.Sprintf(`
            INSERT INTO fingerprints (hash, "offset", recording_id)
            VALUES %s
            ON CONFLICT (hash, "offset", recording_id) DO NOTHING
        `, strings.Join(valueStrings, ","))

		if _, err := tx.ExecContext(ctx, insertQuery, valueArgs...); err != nil {
			return fmt.Errorf("batch insert fingerprints: %w", err)
		}
	}

	return tx.Commit()
}

func (c *PostgresClient) CouplesByHash(ctx context.Context, hash uint32) ([]model.Couple, error) {
	if c == nil || c.db == nil {
		return nil, errClientNil
	}

	rows, err := c.db.QueryContext(ctx, `SELECT recording_id, "offset" FROM fingerprints WHERE hash = $1`, int64(hash))
	if err != nil {
		return nil, fmt.Errorf("querying fingerprints: %w", err)
	}
	defer rows.Close()

	var couples []model.Couple
	for rows.Next() {
		var cpl model.Couple
		if err := rows.Scan(&cpl.CandidateID, &cpl.Offset); err != nil {
			return nil, err
		}
		couples = append(couples, cpl)
	}
	return couples, rows.Err()
}

func (c *PostgresClient) ListRecordings(ctx context.Context) ([]model.Recording, error) {
	if c == nil || c.db == nil {
		return nil, errClientNil
	}

	rows, err := c.db.QueryContext(ctx, `
        SELECT r.id, r.name, r.created_at, COUNT(f.hash)
        FROM recordings r
        LEFT JOIN fingerprints f ON f.recording_id = r.id
        GROUP BY r.id
        ORDER BY r.id`)
	if err != nil {
		return nil, fmt.Errorf("listing recordings: %w", err)
	}
	defer rows.Close()

	var recs []model.Recording
	for rows.Next() {
		var r model.Recording
		if err := rows.Scan(&r.ID, &r.Name, &r.CreatedAt, &r.Fingerprints); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (c *PostgresClient) DeleteRecording(ctx context.Context, id int64) error {
	if c == nil || c.db == nil {
		return errClientNil
	}

	res, err := c.db.ExecContext(ctx, `DELETE FROM recordings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting recording: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("recording %d: %w", id, ErrNotFound)
	}
	return nil
}
