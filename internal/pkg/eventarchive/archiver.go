package eventarchive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"

	"github.com/loadway/Loadway/app/models"
)

// Archiver writes reconciled payment events to S3 for long-term retention.
type Archiver struct {
	s3Client *s3.Client
	config   *Config
}

// NewArchiver creates an S3-backed event archiver
func NewArchiver(cfg *Config) (*Archiver, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("event archival is disabled")
	}

	awsConfig, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// S3-compatible stores want path-style URLs
			o.UsePathStyle = true
			o.UseAccelerate = false
		}
	})

	archiver := &Archiver{
		s3Client: s3Client,
		config:   cfg,
	}

	log.Infof("[EventArchive] Initialized S3 archiver for bucket: %s", cfg.Bucket)
	return archiver, nil
}

// ArchiveEvent uploads one payment event as a JSON object. The object key is
// derived from the event identity, so re-archiving overwrites idempotently.
func (a *Archiver) ArchiveEvent(ctx context.Context, event models.PaymentEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %d: %w", event.ID, err)
	}

	key := fmt.Sprintf("%s/%s/%s-%d-%s.json",
		a.config.KeyPrefix,
		event.CreatedAt.UTC().Format("2006/01/02"),
		event.SessionID,
		event.AttemptSequence,
		event.EventType,
	)

	_, err = a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload event %d: %w", event.ID, err)
	}

	log.Infof("[EventArchive] Archived event %d as %s", event.ID, key)
	return nil
}
