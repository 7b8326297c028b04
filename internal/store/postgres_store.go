package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adcanvas/adcanvas/internal/domain"
	_ "github.com/lib/pq"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS image_batches (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	audience_id TEXT NOT NULL,
	status TEXT NOT NULL,
	webhook_url TEXT NOT NULL DEFAULT '',
	config JSONB NOT NULL,
	errors JSONB NOT NULL DEFAULT '[]',
	warnings JSONB NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS generated_images (
	id TEXT PRIMARY KEY,
	batch_id TEXT NOT NULL REFERENCES image_batches(id),
	image_type TEXT NOT NULL,
	audience_id TEXT NOT NULL,
	persona_id TEXT NOT NULL DEFAULT '',
	product_ids JSONB NOT NULL,
	storage_path TEXT NOT NULL,
	storage_url TEXT NOT NULL DEFAULT '',
	width INT NOT NULL,
	height INT NOT NULL,
	validation JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS generated_images_batch_idx ON generated_images (batch_id);

CREATE TABLE IF NOT EXISTS render_usage (
	batch_id TEXT NOT NULL REFERENCES image_batches(id),
	images_generated INT NOT NULL,
	pixels_rendered BIGINT NOT NULL,
	compute_time_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

// PostgresStore implements BatchStore, ImageStore, and UsageStore on a
// shared connection pool.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateBatch(ctx context.Context, batch domain.Batch) error {
	configJSON, err := json.Marshal(batch.Config)
	if err != nil {
		return fmt.Errorf("marshal batch config: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO image_batches (id, project_id, audience_id, status, webhook_url, config, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		batch.ID,
		batch.ProjectID,
		batch.AudienceID,
		batch.Status,
		batch.WebhookURL,
		configJSON,
		batch.CreatedAt,
		batch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	return nil
}

func (s *PostgresStore) GetBatch(ctx context.Context, id string) (domain.Batch, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, project_id, audience_id, status, webhook_url, config, errors, warnings, created_at, updated_at
		 FROM image_batches
		 WHERE id = $1`,
		id,
	)

	var (
		batch        domain.Batch
		configJSON   []byte
		errorsJSON   []byte
		warningsJSON []byte
	)
	if err := row.Scan(
		&batch.ID,
		&batch.ProjectID,
		&batch.AudienceID,
		&batch.Status,
		&batch.WebhookURL,
		&configJSON,
		&errorsJSON,
		&warningsJSON,
		&batch.CreatedAt,
		&batch.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return domain.Batch{}, false, nil
		}
		return domain.Batch{}, false, fmt.Errorf("query batch: %w", err)
	}

	if err := json.Unmarshal(configJSON, &batch.Config); err != nil {
		return domain.Batch{}, false, fmt.Errorf("unmarshal batch config: %w", err)
	}
	if err := json.Unmarshal(errorsJSON, &batch.Errors); err != nil {
		return domain.Batch{}, false, fmt.Errorf("unmarshal batch errors: %w", err)
	}
	if err := json.Unmarshal(warningsJSON, &batch.Warnings); err != nil {
		return domain.Batch{}, false, fmt.Errorf("unmarshal batch warnings: %w", err)
	}

	return batch, true, nil
}

func (s *PostgresStore) UpdateBatchStatus(ctx context.Context, id, status string) (domain.Batch, error) {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE image_batches
		 SET status = $1, updated_at = $2
		 WHERE id = $3`,
		status,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return domain.Batch{}, fmt.Errorf("update batch status: %w", err)
	}

	return s.mustGet(ctx, id)
}

func (s *PostgresStore) SetBatchOutcome(ctx context.Context, id, status string, errs, warnings []string) (domain.Batch, error) {
	errorsJSON, err := marshalStrings(errs)
	if err != nil {
		return domain.Batch{}, fmt.Errorf("marshal batch errors: %w", err)
	}
	warningsJSON, err := marshalStrings(warnings)
	if err != nil {
		return domain.Batch{}, fmt.Errorf("marshal batch warnings: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`UPDATE image_batches
		 SET status = $1, errors = $2, warnings = $3, updated_at = $4
		 WHERE id = $5`,
		status,
		errorsJSON,
		warningsJSON,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return domain.Batch{}, fmt.Errorf("update batch outcome: %w", err)
	}

	return s.mustGet(ctx, id)
}

func (s *PostgresStore) mustGet(ctx context.Context, id string) (domain.Batch, error) {
	batch, ok, err := s.GetBatch(ctx, id)
	if err != nil {
		return domain.Batch{}, err
	}
	if !ok {
		return domain.Batch{}, ErrBatchNotFound
	}
	return batch, nil
}

func (s *PostgresStore) InsertGeneratedImage(ctx context.Context, img domain.GeneratedImage) error {
	productIDsJSON, err := json.Marshal(img.ProductIDs)
	if err != nil {
		return fmt.Errorf("marshal product ids: %w", err)
	}
	validationJSON, err := json.Marshal(img.Validation)
	if err != nil {
		return fmt.Errorf("marshal validation summary: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO generated_images (id, batch_id, image_type, audience_id, persona_id, product_ids, storage_path, storage_url, width, height, validation, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		img.ID,
		img.BatchID,
		string(img.Type),
		img.AudienceID,
		img.PersonaID,
		productIDsJSON,
		img.StoragePath,
		img.StorageURL,
		img.Width,
		img.Height,
		validationJSON,
		img.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert generated image: %w", err)
	}

	return nil
}

func (s *PostgresStore) ListBatchImages(ctx context.Context, batchID string) ([]domain.GeneratedImage, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, batch_id, image_type, audience_id, persona_id, product_ids, storage_path, storage_url, width, height, validation, created_at
		 FROM generated_images
		 WHERE batch_id = $1
		 ORDER BY created_at`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("query batch images: %w", err)
	}
	defer rows.Close()

	var images []domain.GeneratedImage
	for rows.Next() {
		var (
			img            domain.GeneratedImage
			imageType      string
			productIDsJSON []byte
			validationJSON []byte
		)
		if err := rows.Scan(
			&img.ID,
			&img.BatchID,
			&imageType,
			&img.AudienceID,
			&img.PersonaID,
			&productIDsJSON,
			&img.StoragePath,
			&img.StorageURL,
			&img.Width,
			&img.Height,
			&validationJSON,
			&img.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan generated image: %w", err)
		}

		img.Type = domain.ImageType(imageType)
		if err := json.Unmarshal(productIDsJSON, &img.ProductIDs); err != nil {
			return nil, fmt.Errorf("unmarshal product ids: %w", err)
		}
		if err := json.Unmarshal(validationJSON, &img.Validation); err != nil {
			return nil, fmt.Errorf("unmarshal validation summary: %w", err)
		}

		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batch images: %w", err)
	}

	return images, nil
}

func (s *PostgresStore) InsertRenderUsage(ctx context.Context, usage domain.RenderUsage) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO render_usage (batch_id, images_generated, pixels_rendered, compute_time_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		usage.BatchID,
		usage.ImagesGenerated,
		usage.PixelsRendered,
		usage.ComputeTimeMS,
		usage.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert render usage: %w", err)
	}
	return nil
}

// marshalStrings keeps NULLs out of the JSONB columns; an empty slice is
// stored as [].
func marshalStrings(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	return json.Marshal(values)
}
