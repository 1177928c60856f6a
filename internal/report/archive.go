package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config holds the settings for an S3-compatible export archive.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// URLExpiry bounds presigned download links. Defaults to one hour.
	URLExpiry time.Duration
}

// ArchivedExport locates an export written to the archive.
type ArchivedExport struct {
	Key       string
	URL       string
	ExpiresAt time.Time
}

// objectStore is the subset of *minio.Client used by S3Archive.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucket, object string, expires time.Duration, params url.Values) (*url.URL, error)
}

// S3Archive writes export documents to an S3-compatible bucket and returns
// presigned download links.
type S3Archive struct {
	client objectStore
	bucket string
	region string
	expiry time.Duration

	initOnce sync.Once
	initErr  error
}

// NewS3Archive validates cfg and creates the minio client. The bucket is
// created on first use if it does not exist.
func NewS3Archive(cfg S3Config) (*S3Archive, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("report: s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("report: s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("report: s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("report: init s3 client: %w", err)
	}
	return newS3Archive(client, bucket, region, cfg.URLExpiry), nil
}

func newS3Archive(client objectStore, bucket, region string, expiry time.Duration) *S3Archive {
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &S3Archive{client: client, bucket: bucket, region: region, expiry: expiry}
}

func (a *S3Archive) ensureBucket(ctx context.Context) error {
	a.initOnce.Do(func() {
		exists, err := a.client.BucketExists(ctx, a.bucket)
		if err != nil {
			a.initErr = err
			return
		}
		if exists {
			return
		}
		a.initErr = a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.region})
	})
	return a.initErr
}

// Put uploads an encoded export under projectID and returns a presigned link.
// Every failure is an *ExportError.
func (a *S3Archive) Put(ctx context.Context, projectID, fileName, contentType string, data []byte, now time.Time) (ArchivedExport, error) {
	if err := a.ensureBucket(ctx); err != nil {
		return ArchivedExport{}, &ExportError{Sink: "s3", Err: fmt.Errorf("ensure bucket: %w", err)}
	}

	key := objectKey(projectID, fileName, now)
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:        contentType,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", fileName),
	})
	if err != nil {
		return ArchivedExport{}, &ExportError{Sink: "s3", Err: fmt.Errorf("put %s: %w", key, err)}
	}

	u, err := a.client.PresignedGetObject(ctx, a.bucket, key, a.expiry, nil)
	if err != nil {
		return ArchivedExport{}, &ExportError{Sink: "s3", Err: fmt.Errorf("presign %s: %w", key, err)}
	}
	return ArchivedExport{Key: key, URL: u.String(), ExpiresAt: now.Add(a.expiry)}, nil
}

func objectKey(projectID, fileName string, now time.Time) string {
	return strings.TrimSpace(projectID) + "/" + now.UTC().Format("20060102T150405Z") + "-" + strings.TrimLeft(fileName, "/")
}
