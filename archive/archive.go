// Package archive stores documents in S3-compatible object storage before
// they are purged from the document store.
package archive

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"
)

// ObjectStorage is a S3-compatible storage interface.
type ObjectStorage interface {
	Upload(ctx context.Context, key string, body io.ReadSeeker) (string, error)
	Download(ctx context.Context, w io.WriterAt, URI string) (int64, error)
}

// ObjectStorageImpl is our implementation of the ObjectStorage interface.
type ObjectStorageImpl struct {
	bucket     string
	client     s3iface.S3API
	downloader *s3manager.Downloader
}

var _ ObjectStorage = (*ObjectStorageImpl)(nil)

// New returns a pointer to a new ObjectStorageImpl writing to bucket.
func New(sess *session.Session, bucket string) *ObjectStorageImpl {
	return NewWithClient(s3.New(sess), bucket)
}

func NewWithClient(client s3iface.S3API, bucket string) *ObjectStorageImpl {
	return &ObjectStorageImpl{
		bucket:     bucket,
		client:     client,
		downloader: s3manager.NewDownloaderWithClient(client),
	}
}

// Upload writes body under key and returns the object URI. Archived
// documents are small so a single PutObject is enough.
func (s *ObjectStorageImpl) Upload(ctx context.Context, key string, body io.ReadSeeker) (string, error) {
	if s.bucket == "" {
		return "", errors.New("archive bucket is not configured")
	}
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", errors.Wrapf(err, "uploading %s", key)
	}
	return (&url.URL{Scheme: "s3", Host: s.bucket, Path: "/" + key}).String(), nil
}

// Download writes the contents of a remote file into the given writer.
func (s *ObjectStorageImpl) Download(ctx context.Context, w io.WriterAt, URI string) (n int64, err error) {
	bucket, key, err := getBucketAndKey(URI)
	if err != nil {
		return -1, err
	}
	req := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	return s.downloader.DownloadWithContext(ctx, w, req)
}

func getBucketAndKey(URI string) (bucket string, key string, err error) {
	u, err := url.Parse(URI)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", errors.Errorf("%q is not an s3:// URI", URI)
	}
	return u.Hostname(), strings.TrimPrefix(u.Path, "/"), nil
}
