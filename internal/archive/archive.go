// Package archive persists a finished run's ExecutionResult and event log
// for later audit: MessagePack-encoded (compact, and the wire format the
// teacher's display bridge already speaks) and uploaded to S3 via the AWS
// SDK's managed uploader.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/arutneva1/IB-Trade/internal/domain"
	"github.com/arutneva1/IB-Trade/internal/errs"
)

// Record is the archived shape of a single run: its final execution result,
// event log, and when it happened. Kept distinct from domain.ExecutionResult
// so the wire format can evolve independently of the in-process type.
type Record struct {
	RunAt     time.Time               `msgpack:"run_at"`
	Result    domain.ExecutionResult  `msgpack:"result"`
	EventLog  []domain.EventLogEntry  `msgpack:"event_log"`
}

// Uploader is the narrow S3 surface archive.Store needs, so tests can stub
// it without standing up a real bucket.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Store archives Records to a single S3 bucket/prefix.
type Store struct {
	uploader Uploader
	bucket   string
	prefix   string
}

// NewStore builds a Store from an AWS config's default S3 client, wrapped
// in the SDK's managed uploader (handles multipart for large event logs
// transparently).
func NewStore(cfg aws.Config, bucket, prefix string) *Store {
	client := s3.NewFromConfig(cfg)
	return &Store{uploader: manager.NewUploader(client), bucket: bucket, prefix: prefix}
}

// NewStoreWithUploader wires a caller-supplied uploader, for tests.
func NewStoreWithUploader(uploader Uploader, bucket, prefix string) *Store {
	return &Store{uploader: uploader, bucket: bucket, prefix: prefix}
}

// NewR2Store builds a Store against a Cloudflare R2 bucket using static
// credentials. R2 speaks the S3 API behind an account-scoped endpoint, so the
// only differences from plain S3 are the base endpoint and the "auto" region.
func NewR2Store(ctx context.Context, accountID, accessKeyID, secretAccessKey, bucket, prefix string) (*Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, errs.NewConnectionError(err, "load r2 credentials")
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID))
	})
	return &Store{uploader: manager.NewUploader(client), bucket: bucket, prefix: prefix}, nil
}

// Save MessagePack-encodes record and uploads it under a timestamp-derived
// key, returning that key.
func (s *Store) Save(ctx context.Context, record Record) (string, error) {
	data, err := msgpack.Marshal(record)
	if err != nil {
		return "", errs.NewRuntimeError("encode archive record: %v", err)
	}

	key := fmt.Sprintf("%s/%s.msgpack", s.prefix, record.RunAt.UTC().Format("20060102T150405.000000000Z"))

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", errs.NewConnectionError(err, "upload archive record to s3")
	}

	return key, nil
}
