package sync

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const snapshotContentType = "application/x-ndjson"

// objectPutter is the subset of *s3.Client the destination uses.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Destination uploads each snapshot to a fixed key in an S3-compatible
// bucket. With an archive prefix it also keeps a timestamped copy per sync.
type S3Destination struct {
	client        objectPutter
	bucket        string
	key           string
	archivePrefix string
	now           func() time.Time
}

// NewS3Destination creates an S3 destination. A non-empty endpoint enables
// path-style addressing for MinIO and similar stores.
func NewS3Destination(ctx context.Context, bucket, key, region, endpoint, archivePrefix string) (*S3Destination, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	var opts []func(*s3.Options)
	if endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}
	return newS3Destination(s3.NewFromConfig(cfg, opts...), bucket, key, archivePrefix), nil
}

func newS3Destination(client objectPutter, bucket, key, archivePrefix string) *S3Destination {
	return &S3Destination{
		client:        client,
		bucket:        bucket,
		key:           key,
		archivePrefix: archivePrefix,
		now:           time.Now,
	}
}

func (d *S3Destination) Name() string { return "s3" }

// Write uploads data to the snapshot key, then to the archive key when an
// archive prefix is set. Objects carry the payload's SHA-256 as metadata.
func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	if err := d.put(ctx, d.key, data, checksum); err != nil {
		return err
	}
	if d.archivePrefix == "" {
		return nil
	}
	return d.put(ctx, d.archiveKey(), data, checksum)
}

// archiveKey names the timestamped copy, e.g. prefix/2026/03/02/T120000Z.jsonl.
func (d *S3Destination) archiveKey() string {
	ts := d.now().UTC()
	return path.Join(d.archivePrefix, ts.Format("2006/01/02"), ts.Format("T150405Z")+".jsonl")
}

func (d *S3Destination) put(ctx context.Context, key string, data []byte, checksum string) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(snapshotContentType),
		Metadata:    map[string]string{"snapshot-sha256": checksum},
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}
