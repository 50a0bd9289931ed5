package delivery

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/seftconsumer/internal/logging"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in)
	}

	headBucket = func(c *s3.Client, ctx context.Context, in *s3.HeadBucketInput) (*s3.HeadBucketOutput, error) {
		return c.HeadBucket(ctx, in)
	}
)

// S3Config points at an S3-compatible store such as MinIO.
type S3Config struct {
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
	Bucket       string
}

// S3Deliverer writes files as objects keyed {path}/{fileName}.
type S3Deliverer struct {
	cfg    S3Config
	client *s3.Client
	logger logging.Logger
}

func NewS3Deliverer(ctx context.Context, cfg S3Config, logger logging.Logger) (*S3Deliverer, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("s3: load config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Deliverer{cfg: cfg, client: client, logger: logger.With("module", "s3", "bucket", cfg.Bucket)}, nil
}

func (d *S3Deliverer) Deliver(ctx context.Context, dir, fileName string, data []byte) error {
	key := objectKey(dir, fileName)
	_, err := putObject(d.client, ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("s3: put %s: %w", key, err)
	}
	d.logger.Info(ctx, "delivered file to object store", "key", key)
	return nil
}

func (d *S3Deliverer) Ping(ctx context.Context) error {
	_, err := headBucket(d.client, ctx, &s3.HeadBucketInput{Bucket: aws.String(d.cfg.Bucket)})
	if err != nil {
		return fmt.Errorf("s3: head bucket %s: %w", d.cfg.Bucket, err)
	}
	return nil
}

func objectKey(dir, fileName string) string {
	return strings.TrimPrefix(path.Join(dir, fileName), "/")
}
