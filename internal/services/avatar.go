package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const avatarURLExpiry = 5 * time.Minute

// ErrUnsupportedContentType is returned for avatar formats that are not accepted.
var ErrUnsupportedContentType = errors.New("unsupported content type")

var avatarExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
}

// AvatarStore records where a user's avatar lives
type AvatarStore interface {
	UpdateAvatarKey(ctx context.Context, userID, key string) error
}

// AvatarConfig configures the object storage holding avatars
type AvatarConfig struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string
}

// AvatarService issues upload URLs for profile pictures
type AvatarService struct {
	users     AvatarStore
	presigner *s3.PresignClient
	bucket    string
}

// NewAvatarService creates a new avatar service
func NewAvatarService(ctx context.Context, users AvatarStore, cfg AvatarConfig) (*AvatarService, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &AvatarService{
		users:     users,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
	}, nil
}

// AvatarUploadRequest represents a request for an avatar upload URL
type AvatarUploadRequest struct {
	ContentType string `json:"content_type"`
}

// AvatarUploadResponse carries the pre-signed upload URL
type AvatarUploadResponse struct {
	UploadURL string `json:"upload_url"`
	Key       string `json:"key"`
	ExpiresIn int    `json:"expires_in"`
}

// PresignUpload returns a URL the client can PUT the avatar to and records the
// new key on the user
func (s *AvatarService) PresignUpload(ctx context.Context, userID, contentType string) (*AvatarUploadResponse, error) {
	if contentType == "" {
		contentType = "image/jpeg"
	}
	ext, ok := avatarExtensions[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
	}

	key := fmt.Sprintf("avatars/%s/%s.%s", userID, uuid.New().String(), ext)

	request, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = avatarURLExpiry
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate pre-signed URL: %w", err)
	}

	if err := s.users.UpdateAvatarKey(ctx, userID, key); err != nil {
		return nil, fmt.Errorf("failed to store avatar key: %w", err)
	}

	return &AvatarUploadResponse{
		UploadURL: request.URL,
		Key:       key,
		ExpiresIn: int(avatarURLExpiry / time.Second),
	}, nil
}
