// Package blob stages event files kept in S3-compatible object storage
// onto local disk and publishes run outputs back to it.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/banshee-data/tagprobe/internal/fill"
	"github.com/banshee-data/tagprobe/internal/monitoring"
	"github.com/banshee-data/tagprobe/internal/source"
)

// Scheme prefixes object storage locations.
const Scheme = "s3://"

// ErrBadURI is returned for locations that are not s3://bucket/key.
var ErrBadURI = errors.New("bad object URI")

// Config holds explicit construction parameters. Empty credentials fall
// back to the default AWS chain.
type Config struct {
	Region          string
	Endpoint        string // optional, for MinIO and other S3-compatible stores
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool
}

// Environment variables read by ConfigFromEnv:
//
//	TAGPROBE_S3_REGION=<region> (default us-east-1)
//	TAGPROBE_S3_ENDPOINT=<url>
//	TAGPROBE_S3_PATH_STYLE=true|false
//	AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY
func ConfigFromEnv() Config {
	return Config{
		Region:    os.Getenv("TAGPROBE_S3_REGION"),
		Endpoint:  os.Getenv("TAGPROBE_S3_ENDPOINT"),
		PathStyle: strings.EqualFold(os.Getenv("TAGPROBE_S3_PATH_STYLE"), "true"),
	}
}

// IsRemote reports whether loc names an object storage location.
func IsRemote(loc string) bool { return strings.HasPrefix(loc, Scheme) }

// ParseURI splits s3://bucket/key.
func ParseURI(uri string) (bucket, key string, err error) {
	if !IsRemote(uri) {
		return "", "", fmt.Errorf("%w: %q", ErrBadURI, uri)
	}
	bucket, key, _ = strings.Cut(strings.TrimPrefix(uri, Scheme), "/")
	if bucket == "" {
		return "", "", fmt.Errorf("%w: %q has no bucket", ErrBadURI, uri)
	}
	return bucket, key, nil
}

// Join appends elem to an object prefix.
func Join(prefix string, elem ...string) string {
	bucket, key, _ := strings.Cut(strings.TrimPrefix(prefix, Scheme), "/")
	return Scheme + bucket + "/" + strings.TrimPrefix(path.Join(append([]string{key}, elem...)...), "/")
}

// Stager copies objects to and from a local staging directory.
type Stager struct {
	client *s3.Client
	dir    string
}

// New creates a Stager that downloads into dir.
func New(ctx context.Context, cfg Config, dir string) (*Stager, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewWithClient(client, dir), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *s3.Client, dir string) *Stager {
	return &Stager{client: client, dir: dir}
}

// Fetch downloads uri into the staging directory and returns the local
// path. Concurrent fetches of the same object get distinct files.
func (s *Stager) Fetch(ctx context.Context, uri string) (string, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return "", err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return "", fmt.Errorf("get %s: %w", uri, err)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create staging directory: %w", err)
	}
	local := filepath.Join(s.dir, uuid.NewString()+"-"+path.Base(key))
	tmp := local + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(f, out.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("download %s: %w", uri, err)
	}
	if err := os.Rename(tmp, local); err != nil {
		return "", err
	}
	monitoring.L().Debug("staged object", zap.String("uri", uri), zap.String("path", local), zap.Int64("bytes", n))
	return local, nil
}

// Publish uploads every regular file in dir under prefix and returns the
// object URIs written.
func (s *Stager) Publish(ctx context.Context, dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var uris []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		uri := Join(prefix, e.Name())
		if err := s.put(ctx, filepath.Join(dir, e.Name()), uri); err != nil {
			return uris, err
		}
		uris = append(uris, uri)
	}
	return uris, nil
}

func (s *Stager) put(ctx context.Context, local, uri string) error {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return err
	}
	f, err := os.Open(local)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{Bucket: &bucket, Key: &key, Body: f}); err != nil {
		return fmt.Errorf("put %s: %w", uri, err)
	}
	return nil
}

// Opener returns a fill.Opener that resolves event files against the
// object prefix, stages them and opens the local copy with open.
func (s *Stager) Opener(prefix string, open fill.Opener) fill.Opener {
	return func(ctx context.Context, p string) (source.Container, error) {
		local, err := s.Fetch(ctx, Join(prefix, filepath.Base(p)))
		if err != nil {
			return nil, err
		}
		return open(ctx, local)
	}
}
