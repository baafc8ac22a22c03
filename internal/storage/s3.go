// Package storage persists sessions and redacted conversation history
// to S3-compatible object storage as JSON documents.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/session"
)

// Config holds object store configuration.
type Config struct {
	Bucket   string
	Region   string
	Endpoint string // optional, for S3-compatible stores
	Prefix   string
}

// api is the slice of the S3 client the store uses. Tests inject a mock.
type api interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// ObjectStore implements session.Store on top of S3. Layout:
//
//	{prefix}sessions/{session_id}.json
//	{prefix}conversations/{session_id}/messages.json
type ObjectStore struct {
	client api
	bucket string
	prefix string
	logger *zap.Logger
}

// NewObjectStore creates an object store using the default AWS
// credential chain.
func NewObjectStore(ctx context.Context, cfg Config, logger *zap.Logger) (*ObjectStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object store: bucket must not be empty")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("object store: region must not be empty")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("object store: loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newObjectStoreWithClient(client, cfg.Bucket, cfg.Prefix, logger)
}

// newObjectStoreWithClient creates an ObjectStore with a pre-configured
// client. Used in tests to inject a mock.
func newObjectStoreWithClient(client api, bucket, prefix string, logger *zap.Logger) (*ObjectStore, error) {
	if client == nil {
		return nil, fmt.Errorf("object store: client must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ObjectStore{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger,
	}, nil
}

var _ session.Store = (*ObjectStore)(nil)

func (o *ObjectStore) sessionKey(id string) string {
	return fmt.Sprintf("%ssessions/%s.json", o.prefix, id)
}

func (o *ObjectStore) messagesKey(id string) string {
	return fmt.Sprintf("%sconversations/%s/messages.json", o.prefix, id)
}

// SaveSession implements session.Store.
func (o *ObjectStore) SaveSession(ctx context.Context, s *session.Session) error {
	return o.put(ctx, o.sessionKey(s.ID), s)
}

// LoadSession implements session.Store.
func (o *ObjectStore) LoadSession(ctx context.Context, id string) (*session.Session, error) {
	var s session.Session
	if err := o.get(ctx, o.sessionKey(id), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteSession implements session.Store. Removes both the session
// record and its conversation history.
func (o *ObjectStore) DeleteSession(ctx context.Context, id string) error {
	for _, key := range []string{o.sessionKey(id), o.messagesKey(id)} {
		_, err := o.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(o.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return fmt.Errorf("object store: deleting s3://%s/%s: %w", o.bucket, key, err)
		}
	}
	o.logger.Debug("session objects deleted", zap.String("session_id", id))
	return nil
}

// SaveMessages implements session.Store. The full history document is
// rewritten on every call; callers already hold redacted content only.
func (o *ObjectStore) SaveMessages(ctx context.Context, sessionID string, messages []session.Message) error {
	return o.put(ctx, o.messagesKey(sessionID), messages)
}

// LoadMessages implements session.Store.
func (o *ObjectStore) LoadMessages(ctx context.Context, sessionID string) ([]session.Message, error) {
	var messages []session.Message
	if err := o.get(ctx, o.messagesKey(sessionID), &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// ListSessionIDs returns the ids of every stored session.
func (o *ObjectStore) ListSessionIDs(ctx context.Context) ([]string, error) {
	prefix := o.prefix + "sessions/"
	var ids []string
	var token *string
	for {
		out, err := o.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(o.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("object store: listing s3://%s/%s: %w", o.bucket, prefix, err)
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if len(key) <= len(prefix)+len(".json") {
				continue
			}
			ids = append(ids, key[len(prefix):len(key)-len(".json")])
		}
		if out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}
	return ids, nil
}

func (o *ObjectStore) put(ctx context.Context, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("object store: marshaling %s: %w", key, err)
	}

	_, err = o.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(o.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("object store: uploading s3://%s/%s: %w", o.bucket, key, err)
	}

	o.logger.Debug("object written",
		zap.String("bucket", o.bucket),
		zap.String("key", key),
		zap.Int("bytes", len(data)),
	)
	return nil
}

func (o *ObjectStore) get(ctx context.Context, key string, v any) error {
	out, err := o.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return session.ErrStoreNotFound
		}
		return fmt.Errorf("object store: fetching s3://%s/%s: %w", o.bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return fmt.Errorf("object store: reading s3://%s/%s: %w", o.bucket, key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("object store: decoding s3://%s/%s: %w", o.bucket, key, err)
	}
	return nil
}
