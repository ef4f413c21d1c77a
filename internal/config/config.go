package config

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const EnvPrefix = "PLUGINMASTER"

type Config struct {
	PluginsDir        string        `envconfig:"PLUGINS_DIR" default:"./plugins"`
	Output            string        `envconfig:"OUTPUT" default:"pluginmaster.json"`
	Owner             string        `envconfig:"OWNER" default:"thakyZ"`
	GitHubAPIURL      string        `envconfig:"GITHUB_API_URL"`
	HTTPTimeout       time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`
	StrictHistory     bool          `envconfig:"STRICT_HISTORY"`
	Offline           bool          `envconfig:"OFFLINE"`
	S3Bucket          string        `envconfig:"S3_BUCKET"`
	S3Key             string        `envconfig:"S3_KEY" default:"pluginmaster.json"`
	R2AccountID       string        `envconfig:"R2_ACCOUNT_ID"`
	S3AccessKeyID     string        `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string        `envconfig:"S3_SECRET_ACCESS_KEY"`
	MetricsProjectID  string        `envconfig:"METRICS_PROJECT_ID"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"info"`
	Version           string        `ignored:"true"`
}

func NewConfigFromEnv() (*Config, error) {
	var cfg Config
	err := envconfig.Process(EnvPrefix, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.PluginsDir == "" {
		return fmt.Errorf("plugins directory is empty")
	}
	if c.Output == "" {
		return fmt.Errorf("output path is empty")
	}
	if c.Owner == "" && !c.Offline {
		return fmt.Errorf("releases owner is empty")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("invalid http timeout: %s", c.HTTPTimeout)
	}
	if c.S3Bucket != "" && c.S3Key == "" {
		return fmt.Errorf("s3 key is required when a bucket is configured")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func (c *Config) PublishEnabled() bool {
	return c.S3Bucket != ""
}

func (c *Config) GetBucket() *string {
	return &c.S3Bucket
}

func (c *Config) r2CloudflareEndpointResolver(_, _ string, _ ...interface{}) (aws.Endpoint, error) {
	return aws.Endpoint{
		URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.R2AccountID),
	}, nil
}

// CreateS3Client builds a client for the configured bucket. Static credentials
// and the R2 endpoint are only applied when set, otherwise the default AWS
// credential chain and endpoints are used.
func (c *Config) CreateS3Client(ctx context.Context) (*s3.Client, error) {
	opts := make([]func(*awsConfig.LoadOptions) error, 0)
	if c.S3AccessKeyID != "" {
		opts = append(opts, awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.S3AccessKeyID,
			c.S3SecretAccessKey,
			"",
		)))
	}
	if c.R2AccountID != "" {
		opts = append(opts,
			awsConfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(c.r2CloudflareEndpointResolver)),
			awsConfig.WithRegion("auto"),
		)
	}
	s3Cfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(s3Cfg), nil
}
