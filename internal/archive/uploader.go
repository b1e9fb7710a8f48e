package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/nao1215/mentionscan/internal/config"
	"github.com/nao1215/mentionscan/internal/model"
)

// Environment variables carrying static credentials for S3-compatible
// deployments. When unset, the standard AWS credential chain applies.
const (
	accessKeyEnv = "MENTIONSCAN_S3_ACCESS_KEY"
	secretKeyEnv = "MENTIONSCAN_S3_SECRET_KEY"
)

// ErrArchiveDisabled is returned by NewUploader when no bucket is
// configured.
var ErrArchiveDisabled = errors.New("archive is not configured: set archive.bucket in the config file")

// ObjectPutter is the slice of the S3 client the uploader uses.
// *s3.Client satisfies it.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader stores rendered reports in an S3-compatible bucket.
type Uploader struct {
	client ObjectPutter
	bucket string
	prefix string
}

// UploaderOption configures an Uploader.
type UploaderOption func(*Uploader)

// WithClient replaces the S3 client built from configuration.
// Tests use this to avoid network access.
func WithClient(client ObjectPutter) UploaderOption {
	return func(u *Uploader) {
		u.client = client
	}
}

// NewUploader builds an Uploader from the archive configuration.
// Returns ErrArchiveDisabled when no bucket is configured.
func NewUploader(ctx context.Context, cfg config.Archive, opts ...UploaderOption) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, ErrArchiveDisabled
	}

	u := &Uploader{
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}

	for _, opt := range opts {
		opt(u)
	}

	if u.client == nil {
		client, err := newClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		u.client = client
	}

	return u, nil
}

// newClient builds the real S3 client from the AWS credential chain.
func newClient(ctx context.Context, cfg config.Archive) (*s3.Client, error) {
	loadOpts := make([]func(*awsconfig.LoadOptions) error, 0, 2)
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}

	// Static credentials from the environment override the default chain.
	// This is how MinIO-style deployments without AWS profiles authenticate.
	if access, secret := os.Getenv(accessKeyEnv), os.Getenv(secretKeyEnv); access != "" && secret != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(access, secret, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// Custom endpoints rarely resolve virtual-host bucket names.
			o.UsePathStyle = true
		}
	}), nil
}

// Upload stores one rendered report and returns the object key it was
// written under.
func (u *Uploader) Upload(ctx context.Context, report *model.MentionReport, body []byte, format string) (string, error) {
	key := u.ObjectKey(report, format)

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType(format)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload report %s: %w", report.ID, err)
	}

	return key, nil
}

// ObjectKey returns the bucket key a report is stored under:
// {prefix}/{kind}/{range-start}-{report-id}.{ext}.
func (u *Uploader) ObjectKey(report *model.MentionReport, format string) string {
	name := fmt.Sprintf("%s-%s.%s",
		report.Range.Start.Format("2006-01-02"),
		report.ID,
		extension(format),
	)
	return path.Join(u.prefix, string(report.Kind), name)
}

// extension maps an output format to an object key extension.
func extension(format string) string {
	switch format {
	case "json":
		return "json"
	case "markdown":
		return "md"
	default:
		return "txt"
	}
}

// contentType maps an output format to the stored Content-Type.
func contentType(format string) string {
	switch format {
	case "json":
		return "application/json"
	case "markdown":
		return "text/markdown"
	default:
		return "text/plain; charset=utf-8"
	}
}
