package sync

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type putCall struct {
	bucket, key, contentType, checksum string
	body                               string
}

type fakePutter struct {
	calls []putCall
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.calls = append(f.calls, putCall{
		bucket:      aws.ToString(in.Bucket),
		key:         aws.ToString(in.Key),
		contentType: aws.ToString(in.ContentType),
		checksum:    in.Metadata["snapshot-sha256"],
		body:        string(body),
	})
	return &s3.PutObjectOutput{}, nil
}

func TestS3Destination_Write(t *testing.T) {
	fake := &fakePutter{}
	dest := newS3Destination(fake, "ops", "budgets/snapshot.jsonl", "")

	if err := dest.Write(context.Background(), []byte("abc")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(fake.calls))
	}
	c := fake.calls[0]
	if c.bucket != "ops" || c.key != "budgets/snapshot.jsonl" || c.body != "abc" {
		t.Fatalf("upload = %+v", c)
	}
	if c.contentType != "application/x-ndjson" {
		t.Fatalf("content type = %q", c.contentType)
	}
	// sha256("abc")
	if c.checksum != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("checksum = %q", c.checksum)
	}
}

func TestS3Destination_Archive(t *testing.T) {
	fake := &fakePutter{}
	dest := newS3Destination(fake, "ops", "budgets/snapshot.jsonl", "budgets/archive")
	dest.now = func() time.Time { return time.Date(2026, 3, 2, 12, 30, 5, 0, time.UTC) }

	if err := dest.Write(context.Background(), []byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(fake.calls) != 2 {
		t.Fatalf("expected 2 uploads, got %d", len(fake.calls))
	}
	if got := fake.calls[1].key; got != "budgets/archive/2026/03/02/T123005Z.jsonl" {
		t.Fatalf("archive key = %q", got)
	}
	if fake.calls[0].checksum != fake.calls[1].checksum {
		t.Fatal("archive copy should carry the same checksum")
	}
}

func TestS3Destination_Error(t *testing.T) {
	boom := errors.New("access denied")
	dest := newS3Destination(&fakePutter{err: boom}, "ops", "k", "archive")

	err := dest.Write(context.Background(), []byte("x"))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
}
