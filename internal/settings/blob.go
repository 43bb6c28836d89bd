package settings

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

// BlobConfig points at an S3 compatible bucket.
type BlobConfig struct {
	Endpoint      string
	Bucket        string
	Prefix        string
	Region        string
	AccessKeyFile string
	SecretKeyFile string
}

// Enabled reports whether enough is configured to mirror to a bucket.
func (c BlobConfig) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != "" && strings.TrimSpace(c.Bucket) != ""
}

// BlobStore mirrors the record to object storage.
type BlobStore struct {
	client *minio.Client
	bucket string
	key    string
}

func NewBlobStore(cfg BlobConfig) (*BlobStore, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	bucket := strings.TrimSpace(cfg.Bucket)
	accessKeyFile := strings.TrimSpace(cfg.AccessKeyFile)
	secretKeyFile := strings.TrimSpace(cfg.SecretKeyFile)
	if endpoint == "" || bucket == "" || accessKeyFile == "" || secretKeyFile == "" {
		return nil, errors.New("missing blob configuration")
	}

	accessKey, err := readSecretFile(accessKeyFile)
	if err != nil {
		return nil, errors.Wrap(err, "read blob access key")
	}
	secretKey, err := readSecretFile(secretKeyFile)
	if err != nil {
		return nil, errors.Wrap(err, "read blob secret key")
	}

	host, secure, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, errors.Wrap(err, "init s3 client")
	}

	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = "elxbridge"
	}
	return &BlobStore{client: client, bucket: bucket, key: path.Join(prefix, "settings.json")}, nil
}

func (s *BlobStore) Load(ctx context.Context) (Record, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key, minio.GetObjectOptions{})
	if err != nil {
		return Record{}, wrapBlobError(err)
	}
	defer obj.Close()

	if _, err := obj.Stat(); err != nil {
		return Record{}, wrapBlobError(err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return Record{}, errors.Wrap(err, "read blob")
	}
	return Decode(data)
}

func (s *BlobStore) Save(ctx context.Context, record Record) error {
	data, err := Encode(record)
	if err != nil {
		return err
	}
	reader := bytes.NewReader(data)
	_, err = s.client.PutObject(ctx, s.bucket, s.key, reader, int64(reader.Len()), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return wrapBlobError(err)
	}
	return nil
}

func wrapBlobError(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotFound
	}
	return errors.Wrap(err, "blob store")
}

func parseEndpoint(raw string) (string, bool, error) {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, errors.Wrap(err, "parse endpoint")
		}
		if u.Host == "" {
			return "", false, errors.Errorf("invalid endpoint: %q", raw)
		}
		return u.Host, u.Scheme == "https", nil
	}
	return raw, true, nil
}

func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
