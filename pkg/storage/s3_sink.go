package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/bizdir-scraper/pkg/config"
	"github.com/Sriram-PR/bizdir-scraper/pkg/models"
	"github.com/Sriram-PR/bizdir-scraper/pkg/utils"
)

// S3API is the subset of the S3 client the sink uses
type S3API interface {
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads each record as a single-row CSV object named {prefix}{batch}_{uuid}.csv.
// Dedup goes through a KeyIndex since objects are never read back.
type S3Sink struct {
	client      S3API
	bucket      string
	region      string
	prefix      string
	index       KeyIndex
	ownsIndex   bool // Close the index with the sink
	dedupFields []string
	log         *logrus.Entry

	mu           sync.Mutex
	bucketExists bool
}

// NewS3Client builds an S3 client from the default AWS credential chain, overridden by static keys and a custom endpoint when set
func NewS3Client(ctx context.Context, cfg config.S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: loading AWS configuration: %w", utils.ErrObjectStorage, err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// NewS3Sink creates an object-storage sink. The bucket is created lazily on the first upload.
func NewS3Sink(client S3API, cfg config.S3Config, index KeyIndex, dedupFields []string, log *logrus.Entry) *S3Sink {
	return &S3Sink{
		client:      client,
		bucket:      cfg.Bucket,
		region:      cfg.Region,
		prefix:      cfg.Prefix,
		index:       index,
		dedupFields: dedupFields,
		log:         log,
	}
}

// Persist implements Sink
func (s *S3Sink) Persist(ctx context.Context, batch string, rec *models.Record) (bool, error) {
	key := utils.NormalizeDedupKey(rec.DedupKey(s.dedupFields))
	if key != "" {
		claimed, err := s.index.Claim(ctx, batch, key)
		if err != nil {
			return false, err
		}
		if !claimed {
			s.log.WithFields(logrus.Fields{"batch": batch, "dedup_key": key}).Info("Duplicate record, skipping upload")
			return false, nil
		}
	}

	objectKey, err := s.upload(ctx, batch, rec)
	if err != nil {
		if key != "" {
			if relErr := s.index.Release(ctx, batch, key); relErr != nil {
				s.log.Warnf("Failed to release dedup key after upload error: %v", relErr)
			}
		}
		return false, err
	}

	s.log.WithField("batch", batch).Debugf("Uploaded s3://%s/%s", s.bucket, objectKey)
	return true, nil
}

func (s *S3Sink) upload(ctx context.Context, batch string, rec *models.Record) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	keys := rec.Keys()
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = rec.Value(k)
	}
	if err := cw.Write(keys); err != nil {
		return "", fmt.Errorf("%w: encoding CSV header: %w", utils.ErrParsing, err)
	}
	if err := cw.Write(values); err != nil {
		return "", fmt.Errorf("%w: encoding CSV row: %w", utils.ErrParsing, err)
	}
	cw.Flush()

	objectKey := s.ObjectKey(batch, uuid.NewString())
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return "", fmt.Errorf("%w: putting object %s: %w", utils.ErrObjectStorage, objectKey, err)
	}
	return objectKey, nil
}

// ObjectKey returns the object name for one record
func (s *S3Sink) ObjectKey(batch, id string) string {
	return s.prefix + utils.SanitizeFilename(batch) + "_" + id + ".csv"
}

// ensureBucket creates the bucket once; a bucket we already own counts as success
func (s *S3Sink) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bucketExists {
		return nil
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
	if s.region != "" && s.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}

	_, err := s.client.CreateBucket(ctx, input)
	if err != nil && !isBucketOwned(err) {
		return fmt.Errorf("%w: creating bucket %s: %w", utils.ErrObjectStorage, s.bucket, err)
	}
	if err == nil {
		s.log.Infof("Created bucket %s", s.bucket)
	}
	s.bucketExists = true
	return nil
}

func isBucketOwned(err error) bool {
	var owned *types.BucketAlreadyOwnedByYou
	if errors.As(err, &owned) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "BucketAlreadyOwnedByYou"
}

// Close implements Sink
func (s *S3Sink) Close() error {
	if s.ownsIndex {
		return s.index.Close()
	}
	return nil
}
