package sync

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Options locates the ledger object.
type S3Options struct {
	Bucket string
	Key    string
	Region string
	// Endpoint overrides the AWS endpoint for MinIO and other S3-compatible
	// stores. Setting it switches to path-style addressing.
	Endpoint string
}

// S3Destination uploads the ledger export as a single object.
type S3Destination struct {
	client objectPutter
	bucket string
	key    string
}

// NewS3Destination loads AWS credentials from the default chain.
func NewS3Destination(ctx context.Context, o S3Options) (*S3Destination, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(o.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(so *s3.Options) {
		if o.Endpoint != "" {
			so.BaseEndpoint = aws.String(o.Endpoint)
			so.UsePathStyle = true
		}
	})
	return &S3Destination{client: client, bucket: o.Bucket, key: o.Key}, nil
}

func (d *S3Destination) Name() string { return "s3" }

// Write overwrites the object. S3 rejects the upload if the body does not
// match its SHA-256 checksum.
func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	sum := sha256.Sum256(data)
	in := &s3.PutObjectInput{
		Bucket:            aws.String(d.bucket),
		Key:               aws.String(d.key),
		Body:              bytes.NewReader(data),
		ContentType:       aws.String("application/x-ndjson"),
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
		ChecksumSHA256:    aws.String(base64.StdEncoding.EncodeToString(sum[:])),
		Metadata:          objectMetadata(data),
	}
	if _, err := d.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", d.bucket, d.key, err)
	}
	return nil
}

// objectMetadata copies the export header counts onto the object so they
// can be read with a HEAD request.
func objectMetadata(data []byte) map[string]string {
	line, _, _ := bytes.Cut(data, []byte("\n"))
	var h header
	if json.Unmarshal(line, &h) != nil || h.Type != "header" {
		return nil
	}
	return map[string]string{
		"ledger-version": h.Version,
		"charters":       strconv.Itoa(h.CharterCount),
		"sections":       strconv.Itoa(h.SectionCount),
		"versions":       strconv.Itoa(h.VersionCount),
	}
}
