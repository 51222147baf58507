// Package attachments issues presigned S3 URLs for note attachments. Blobs
// never pass through the sync service; clients move them directly.
package attachments

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/server/models"
	"github.com/google/uuid"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}

	now = time.Now
)

// Config describes the S3-compatible backend.
type Config struct {
	AccessKey    string
	SecretKey    string
	Bucket       string
	Region       string
	BaseEndpoint string
	Expiry       time.Duration
}

type Presigner struct {
	cfg Config

	once      sync.Once
	client    *s3.PresignClient
	clientErr error
}

func NewPresigner(cfg Config) *Presigner {
	if cfg.Expiry <= 0 {
		cfg.Expiry = 15 * time.Minute
	}
	return &Presigner{cfg: cfg}
}

// ObjectKey returns a fresh storage key under the owner's and note's prefix.
func ObjectKey(ownerID, noteID string) string {
	return keyPrefix(ownerID, noteID) + uuid.NewString()
}

func keyPrefix(ownerID, noteID string) string {
	return fmt.Sprintf("users/%s/%s/", ownerID, noteID)
}

func (p *Presigner) presignClient(ctx context.Context) (*s3.PresignClient, error) {
	p.once.Do(func() {
		cfg, err := loadDefaultAWSConfig(ctx,
			config.WithRegion(p.cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				p.cfg.AccessKey,
				p.cfg.SecretKey,
				"",
			)))
		if err != nil {
			p.clientErr = fmt.Errorf("load aws config: %w", err)
			return
		}

		client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(p.cfg.BaseEndpoint)
			o.UsePathStyle = true
		})
		p.client = newS3PresignClient(client)
	})
	return p.client, p.clientErr
}

// PresignUpload returns a PUT URL for a new attachment of noteID.
func (p *Presigner) PresignUpload(ctx context.Context, ownerID, noteID string) (*models.AttachmentTicket, error) {
	if noteID == "" {
		return nil, fmt.Errorf("%w: note id required", common.ErrValidation)
	}
	pc, err := p.presignClient(ctx)
	if err != nil {
		return nil, err
	}

	bucket := p.cfg.Bucket
	key := ObjectKey(ownerID, noteID)
	req, err := presignPutObject(pc, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(p.cfg.Expiry))
	if err != nil {
		return nil, fmt.Errorf("presign put: %w", err)
	}

	return &models.AttachmentTicket{NoteID: noteID, Key: key, URL: req.URL, ExpiresAt: now().Add(p.cfg.Expiry)}, nil
}

// PresignDownload returns a GET URL for key. Keys outside the owner's note
// prefix are refused with common.ErrorUnauthorized.
func (p *Presigner) PresignDownload(ctx context.Context, ownerID, noteID, key string) (*models.AttachmentTicket, error) {
	if noteID == "" || key == "" {
		return nil, fmt.Errorf("%w: note id and key required", common.ErrValidation)
	}
	if !strings.HasPrefix(key, keyPrefix(ownerID, noteID)) {
		return nil, common.ErrorUnauthorized
	}
	pc, err := p.presignClient(ctx)
	if err != nil {
		return nil, err
	}

	bucket := p.cfg.Bucket
	req, err := presignGetObject(pc, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(p.cfg.Expiry))
	if err != nil {
		return nil, fmt.Errorf("presign get: %w", err)
	}

	return &models.AttachmentTicket{NoteID: noteID, Key: key, URL: req.URL, ExpiresAt: now().Add(p.cfg.Expiry)}, nil
}
