package eventarchive

import (
	"strings"

	"github.com/loadway/Loadway/internal/pkg/env"
)

// Config holds the S3 settings for payment event archival.
type Config struct {
	Enabled         bool
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	EndpointURL     string
	KeyPrefix       string
}

// NewConfigFromEnv loads archive settings from the environment.
func NewConfigFromEnv() *Config {
	return &Config{
		Enabled:         env.GetEnv("ARCHIVE_S3_ENABLED", "false") == "true",
		Region:          env.GetEnv("ARCHIVE_S3_REGION", "eu-central-1"),
		Bucket:          env.GetEnv("ARCHIVE_S3_BUCKET", ""),
		AccessKeyID:     env.GetEnv("ARCHIVE_S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("ARCHIVE_S3_SECRET_ACCESS_KEY", ""),
		EndpointURL:     env.GetEnv("ARCHIVE_S3_ENDPOINT_URL", ""),
		KeyPrefix:       strings.Trim(env.GetEnv("ARCHIVE_S3_KEY_PREFIX", "payment-events"), "/"),
	}
}

// IsEnabled reports whether archival is configured and switched on.
func (c *Config) IsEnabled() bool {
	return c.Enabled && c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}
