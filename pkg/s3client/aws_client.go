package s3client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// AWSClient implements Client on top of aws-sdk-go-v2. Every request except
// uploads is retried with exponential backoff; the uploader retries
// individual parts through the SDK retryer.
type AWSClient struct {
	client   *s3.Client
	uploader *manager.Uploader
	retry    retryPolicy
}

func NewAWSClient(cfg aws.Config, optFns ...func(*s3.Options)) *AWSClient {
	client := s3.NewFromConfig(cfg, optFns...)
	return &AWSClient{
		client:   client,
		uploader: manager.NewUploader(client),
		retry:    defaultRetryPolicy,
	}
}

func (c *AWSClient) ListObjects(ctx context.Context, req *ListObjectsRequest) ([]ObjectInfo, error) {
	var items []ObjectInfo

	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(req.Bucket),
		Prefix: aws.String(req.Prefix),
	})

	for paginator.HasMorePages() {
		page, err := withRetry(ctx, c.retry, func() (*s3.ListObjectsV2Output, error) {
			return paginator.NextPage(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			if obj.Key == nil || obj.Size == nil {
				continue
			}

			items = append(items, ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified).UTC(),
			})
		}
	}

	return items, nil
}

func (c *AWSClient) HeadObject(ctx context.Context, req *HeadObjectRequest) (*ObjectInfo, error) {
	resp, err := withRetry(ctx, c.retry, func() (*s3.HeadObjectOutput, error) {
		return c.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(req.Bucket),
			Key:    aws.String(req.Key),
		})
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("failed to head object %s: %w", req.Key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to head object %s: %w", req.Key, err)
	}

	return &ObjectInfo{
		Key:          req.Key,
		Size:         aws.ToInt64(resp.ContentLength),
		LastModified: aws.ToTime(resp.LastModified).UTC(),
		Metadata:     resp.Metadata,
	}, nil
}

func (c *AWSClient) GetObject(ctx context.Context, req *GetObjectRequest) (io.ReadCloser, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(req.Bucket),
		Key:    aws.String(req.Key),
	}
	if req.Length > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-%d", req.Offset, req.Offset+req.Length-1))
	}

	resp, err := withRetry(ctx, c.retry, func() (*s3.GetObjectOutput, error) {
		return c.client.GetObject(ctx, input)
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("failed to get object %s: %w", req.Key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get object %s: %w", req.Key, err)
	}

	return resp.Body, nil
}

func (c *AWSClient) PutObject(ctx context.Context, req *PutObjectRequest) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(req.Bucket),
		Key:           aws.String(req.Key),
		Body:          req.Body,
		ContentLength: aws.Int64(req.Size),
		Metadata:      req.Metadata,
	}

	if req.ContentType != "" {
		input.ContentType = aws.String(req.ContentType)
	}
	if req.IfNoneMatch {
		input.IfNoneMatch = aws.String("*")
	}

	if _, err := c.uploader.Upload(ctx, input); err != nil {
		if isPreconditionFailed(err) {
			return fmt.Errorf("failed to put object %s: %w", req.Key, ErrPreconditionFailed)
		}
		return fmt.Errorf("failed to put object %s: %w", req.Key, err)
	}

	return nil
}

func (c *AWSClient) DeleteObject(ctx context.Context, req *DeleteObjectRequest) error {
	_, err := withRetry(ctx, c.retry, func() (*s3.DeleteObjectOutput, error) {
		return c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(req.Bucket),
			Key:    aws.String(req.Key),
		})
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete object %s: %w", req.Key, err)
	}

	return nil
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}
	return httpStatusCode(err) == http.StatusNotFound
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed" {
		return true
	}
	return httpStatusCode(err) == http.StatusPreconditionFailed
}

var _ Client = (*AWSClient)(nil)
