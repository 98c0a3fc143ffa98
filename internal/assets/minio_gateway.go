// Package assets is the gateway to binary asset storage. Uploads return the
// public URL that article content references; deletes take that URL back.
package assets

import (
	"context"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"inkwell/api/internal/util"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL is the externally reachable base for stored objects. When
	// empty, URLs are derived from the endpoint.
	PublicURL string
}

// MinioGateway stores assets in a MinIO (or any S3-compatible) bucket.
type MinioGateway struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

func NewMinioGateway(cfg Config) (*MinioGateway, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	baseURL := strings.TrimRight(cfg.PublicURL, "/")
	if baseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}

	return &MinioGateway{client: client, bucket: cfg.Bucket, baseURL: baseURL}, nil
}

// Upload stores the binary under folder/sessionID and returns its public URL.
// Uploads made while drafting are tagged so a bucket lifecycle rule can sweep
// drafts that never reach an explicit save.
func (g *MinioGateway) Upload(ctx context.Context, body io.Reader, size int64, contentType, folder, sessionID string, draft bool) (string, error) {
	objectName := ObjectName(folder, sessionID, util.NewID(""))
	opts := minio.PutObjectOptions{ContentType: contentType}
	if draft {
		opts.UserTags = map[string]string{"draft": "true"}
	}
	if _, err := g.client.PutObject(ctx, g.bucket, objectName, body, size, opts); err != nil {
		return "", fmt.Errorf("upload asset %s: %w", objectName, err)
	}
	return g.baseURL + "/" + objectName, nil
}

// Delete removes the object behind a URL previously returned by Upload.
// URLs outside this gateway's base are ignored, not errors: article bodies
// may embed external media the reconciler must never touch.
func (g *MinioGateway) Delete(ctx context.Context, url string) error {
	objectName, ok := g.objectFromURL(url)
	if !ok {
		log.Printf("assets: skip delete of foreign url %s", url)
		return nil
	}
	if err := g.client.RemoveObject(ctx, g.bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete asset %s: %w", objectName, err)
	}
	return nil
}

func (g *MinioGateway) objectFromURL(url string) (string, bool) {
	if !strings.HasPrefix(url, g.baseURL+"/") {
		return "", false
	}
	objectName := strings.TrimPrefix(url, g.baseURL+"/")
	if objectName == "" {
		return "", false
	}
	return objectName, true
}

// ObjectName builds the storage key for an upload. Folder and session parts
// are sanitized so callers cannot escape the bucket layout. The folder may
// carry separators ("articles/art-1"); each segment is sanitized on its own
// so nesting survives.
func ObjectName(folder, sessionID, id string) string {
	return path.Join(sanitizeFolder(folder, "uploads"), sanitizeSegment(sessionID, "anonymous"), id)
}

func sanitizeFolder(value, fallback string) string {
	parts := make([]string, 0, 2)
	for _, part := range strings.Split(value, "/") {
		if cleaned := sanitizeSegment(part, ""); cleaned != "" {
			parts = append(parts, cleaned)
		}
	}
	if len(parts) == 0 {
		return fallback
	}
	return path.Join(parts...)
}

func sanitizeSegment(value, fallback string) string {
	cleaned := make([]rune, 0, len(value))
	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			cleaned = append(cleaned, r)
		}
	}
	if len(cleaned) == 0 {
		return fallback
	}
	return string(cleaned)
}
