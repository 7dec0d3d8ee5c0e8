// Package storage archives topic snapshots in S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mfenderov/knowra/pkg/models"
)

// TopicsPrefix is where topic snapshots live in the bucket.
const TopicsPrefix = "topics"

// Config holds S3/MinIO client configuration.
type Config struct {
	Endpoint        string // "localhost:9000" for MinIO
	Bucket          string // "knowra"
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// Client wraps the MinIO/S3 client for topic snapshots.
type Client struct {
	minioClient *minio.Client
	bucket      string
}

// New creates a new S3/MinIO client.
func New(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if config.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	minioClient, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Client{
		minioClient: minioClient,
		bucket:      config.Bucket,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.minioClient.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}

	if err := c.minioClient.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// ObjectName returns the key a topic snapshot is stored under.
func ObjectName(prefix, slug string) string {
	return path.Join(prefix, slug+".json")
}

// PutTopic writes a JSON snapshot of topic under prefix/<slug>.json.
func (c *Client) PutTopic(ctx context.Context, prefix string, topic *models.Topic) error {
	if topic.Slug == "" {
		return fmt.Errorf("topic %q has no slug", topic.Title)
	}

	data, err := json.MarshalIndent(topic, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal topic: %w", err)
	}

	_, err = c.minioClient.PutObject(ctx, c.bucket, ObjectName(prefix, topic.Slug), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to put topic: %w", err)
	}
	return nil
}

// ListTopics returns the object names of all snapshots under prefix.
func (c *Client) ListTopics(ctx context.Context, prefix string) ([]string, error) {
	var names []string

	objectCh := c.minioClient.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    strings.TrimSuffix(prefix, "/") + "/",
		Recursive: true,
	})

	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		if strings.HasSuffix(object.Key, ".json") {
			names = append(names, object.Key)
		}
	}

	return names, nil
}

// GetTopic reads the snapshot stored at objectName.
func (c *Client) GetTopic(ctx context.Context, objectName string) (*models.Topic, error) {
	object, err := c.minioClient.GetObject(ctx, c.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get topic: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("failed to read topic: %w", err)
	}

	var topic models.Topic
	if err := json.Unmarshal(data, &topic); err != nil {
		return nil, fmt.Errorf("failed to unmarshal topic: %w", err)
	}

	return &topic, nil
}

// Bucket returns the bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}
