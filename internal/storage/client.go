package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const presignedGetExpiry = 7 * 24 * time.Hour

type Config struct {
	Endpoint string
	Access   string
	Secret   string
	Bucket   string
	UseSSL   bool

	// PublicBaseURL, when set, is joined with the object key to form the
	// stored URL instead of presigning. Use it when the bucket sits behind a
	// public CDN.
	PublicBaseURL string
}

// StoredObject is the durable address of an uploaded render.
type StoredObject struct {
	Path string
	URL  string
}

type Client struct {
	minio         *minio.Client
	bucket        string
	publicBaseURL string
}

func NewClient(cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Access, cfg.Secret, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	return &Client{
		minio:         mc,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

func (c *Client) Bucket() string {
	return c.bucket
}

func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.minio.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if exists {
		return nil
	}

	if err := c.minio.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		exists, checkErr := c.minio.BucketExists(ctx, c.bucket)
		if checkErr == nil && exists {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", c.bucket, err)
	}

	return nil
}

// Upload writes a finished render and returns where it can be fetched from.
func (c *Client) Upload(ctx context.Context, objectKey string, data []byte, contentType string) (StoredObject, error) {
	if err := c.WriteObject(ctx, objectKey, data, contentType); err != nil {
		return StoredObject{}, err
	}

	if c.publicBaseURL != "" {
		return StoredObject{
			Path: objectKey,
			URL:  c.publicBaseURL + "/" + objectKey,
		}, nil
	}

	u, err := c.minio.PresignedGetObject(ctx, c.bucket, objectKey, presignedGetExpiry, nil)
	if err != nil {
		return StoredObject{}, fmt.Errorf("presign get object %s: %w", objectKey, err)
	}

	return StoredObject{Path: objectKey, URL: u.String()}, nil
}

func (c *Client) ReadObject(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := c.minio.GetObject(ctx, c.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", objectKey, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", objectKey, err)
	}
	return data, nil
}

func (c *Client) WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error {
	reader := bytes.NewReader(data)
	_, err := c.minio.PutObject(
		ctx,
		c.bucket,
		objectKey,
		reader,
		int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return fmt.Errorf("put object %s: %w", objectKey, err)
	}
	return nil
}
