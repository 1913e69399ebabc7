// Package publish uploads run reports to S3-compatible object storage.
package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// ErrNoBucket is returned when publishing is requested without a bucket.
var ErrNoBucket = errors.New("publish: bucket not set")

// Config selects the destination bucket.
type Config struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// Enabled reports whether a bucket is configured.
func (c Config) Enabled() bool {
	return c.Bucket != ""
}

// putter is the subset of the S3 client used for uploads.
type putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Publisher writes report artifacts under a run-scoped prefix.
type Publisher struct {
	cfg     Config
	client  putter
	logger  *zap.Logger
	timeout time.Duration
}

// New loads AWS credentials from the default chain and builds a Publisher.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Publisher, error) {
	if !cfg.Enabled() {
		return nil, ErrNoBucket
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryMode(aws.RetryModeStandard),
	}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("publish: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return newPublisher(cfg, client, logger), nil
}

func newPublisher(cfg Config, client putter, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{cfg: cfg, client: client, logger: logger, timeout: 60 * time.Second}
}

// Key returns the object key for name within run.
func (p *Publisher) Key(run, name string) string {
	return path.Join(strings.Trim(p.cfg.Prefix, "/"), run, name)
}

// Upload stores body under Key(run, name) and returns its location.
func (p *Publisher) Upload(ctx context.Context, run, name, contentType string, body []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	key := p.Key(run, name)
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		Metadata:    map[string]string{"run-id": run},
	})
	if err != nil {
		return "", fmt.Errorf("publish: put s3://%s/%s: %w", p.cfg.Bucket, key, err)
	}

	loc := p.location(key)
	p.logger.Info("report published",
		zap.String("bucket", p.cfg.Bucket),
		zap.String("key", key),
		zap.Int("size", len(body)))
	return loc, nil
}

// location is an https URL when an endpoint is configured, an s3:// URI
// otherwise.
func (p *Publisher) location(key string) string {
	if p.cfg.Endpoint == "" {
		return "s3://" + p.cfg.Bucket + "/" + key
	}
	u, err := url.Parse(p.cfg.Endpoint)
	if err != nil {
		return "s3://" + p.cfg.Bucket + "/" + key
	}
	if p.cfg.PathStyle {
		u.Path = path.Join("/", u.Path, p.cfg.Bucket, key)
	} else {
		u.Host = p.cfg.Bucket + "." + u.Host
		u.Path = path.Join("/", u.Path, key)
	}
	return u.String()
}
