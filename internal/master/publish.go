package master

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

type ObjectStorage interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Publisher uploads the written master document to an S3 compatible bucket.
type S3Publisher struct {
	storage ObjectStorage
	bucket  string
	key     string
}

func NewS3Publisher(storage ObjectStorage, bucket, key string) *S3Publisher {
	return &S3Publisher{
		storage: storage,
		bucket:  bucket,
		key:     key,
	}
}

func (p *S3Publisher) Publish(ctx context.Context, fn string) error {
	data, err := os.ReadFile(fn)
	if err != nil {
		return err
	}
	checksum := sha256.Sum256(data)
	_, err = p.storage.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(p.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"checksum": hex.EncodeToString(checksum[:]),
		},
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("failed to publish master to %s/%s (%s): %w", p.bucket, p.key, apiErr.ErrorCode(), err)
		}
		return fmt.Errorf("failed to publish master to %s/%s: %w", p.bucket, p.key, err)
	}
	return nil
}
