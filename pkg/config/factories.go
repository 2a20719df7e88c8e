package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/dittoweb/internal/logger"
	"github.com/marmos91/dittoweb/pkg/content"
	"github.com/marmos91/dittoweb/pkg/content/cache"
	contentFs "github.com/marmos91/dittoweb/pkg/content/fs"
	contentMemory "github.com/marmos91/dittoweb/pkg/content/memory"
	contentS3 "github.com/marmos91/dittoweb/pkg/content/s3"
	"github.com/mitchellh/mapstructure"
)

// CreateContentStore creates the document root store based on configuration.
//
// This factory function uses the Type field to determine which store implementation
// to create, then decodes the type-specific configuration from the corresponding
// map and passes it to the store's constructor. When the size cache is enabled
// the store is wrapped with it before being returned.
//
// Supported types:
//   - "filesystem": Uses pkg/content/fs (local directory, the usual document root)
//   - "memory": Uses pkg/content/memory (ephemeral, mostly for tests and demos)
//   - "s3": Uses pkg/content/s3 (Amazon S3 or compatible storage)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Content store configuration
//   - mr: Metrics components (may be nil)
//
// Returns:
//   - content.ContentStore: Initialized content store
//   - error: Configuration or initialization error
func CreateContentStore(ctx context.Context, cfg *ContentConfig, mr *MetricsResult) (content.ContentStore, error) {
	var s3Metrics contentS3.S3Metrics
	var cacheMetrics cache.CacheMetrics
	if mr != nil {
		s3Metrics = mr.S3Metrics
		cacheMetrics = mr.CacheMetrics
	}

	var (
		store content.ContentStore
		err   error
	)
	switch cfg.Type {
	case "filesystem":
		store, err = createFilesystemContentStore(ctx, cfg.Filesystem)
	case "memory":
		store, err = createMemoryContentStore(ctx, cfg.Memory)
	case "s3":
		store, err = createS3ContentStore(ctx, cfg.S3, s3Metrics)
	default:
		return nil, fmt.Errorf("unknown content store type: %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if !cfg.Cache.Enabled {
		return store, nil
	}

	cached, err := cache.New(store, cache.Config{
		Path:     cfg.Cache.Path,
		InMemory: cfg.Cache.InMemory,
		TTL:      cfg.Cache.TTL,
		Metrics:  cacheMetrics,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create size cache: %w", err)
	}

	logger.Info("Size cache enabled: in_memory=%v, path=%s, ttl=%v",
		cfg.Cache.InMemory, cfg.Cache.Path, cfg.Cache.TTL)

	return cached, nil
}

// createFilesystemContentStore creates a filesystem-based content store.
func createFilesystemContentStore(ctx context.Context, options map[string]any) (content.ContentStore, error) {
	// Define the configuration struct for filesystem content store
	type FilesystemContentStoreConfig struct {
		Path   string `mapstructure:"path"`
		Create bool   `mapstructure:"create"`
	}

	// Decode the options into the config struct
	var storeCfg FilesystemContentStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem content store config: %w", err)
	}

	// Validate required fields
	if storeCfg.Path == "" {
		return nil, fmt.Errorf("filesystem content store: path is required")
	}

	// Create the store
	store, err := contentFs.NewFSContentStore(ctx, storeCfg.Path, storeCfg.Create)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem content store: %w", err)
	}

	return store, nil
}

// createMemoryContentStore creates an in-memory content store.
func createMemoryContentStore(ctx context.Context, options map[string]any) (content.ContentStore, error) {
	type MemoryContentStoreConfig struct {
		MaxSizeBytes uint64 `mapstructure:"max_size_bytes"`
	}

	var storeCfg MemoryContentStoreConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &storeCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(options); err != nil {
		return nil, fmt.Errorf("failed to decode memory content store config: %w", err)
	}

	store, err := contentMemory.NewMemoryContentStore(ctx, storeCfg.MaxSizeBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory content store: %w", err)
	}

	return store, nil
}

// createS3ContentStore creates an S3-based content store.
func createS3ContentStore(ctx context.Context, options map[string]any, metrics contentS3.S3Metrics) (content.ContentStore, error) {
	// Define the configuration struct for S3 content store
	type S3ContentStoreConfig struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		MaxRetries      int    `mapstructure:"max_retries"`
		SkipBucketCheck bool   `mapstructure:"skip_bucket_check"`
	}

	// Decode the options into the config struct
	var storeCfg S3ContentStoreConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &storeCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(options); err != nil {
		return nil, fmt.Errorf("failed to decode S3 content store config: %w", err)
	}

	// Validate required fields
	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 content store: bucket is required")
	}

	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 content store: region is required")
	}

	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	var configOptions []func(*awsConfig.LoadOptions) error

	configOptions = append(configOptions, awsConfig.WithRegion(storeCfg.Region))

	// Set credentials if provided, otherwise use default credential chain
	if storeCfg.AccessKeyID != "" && storeCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			storeCfg.AccessKeyID,
			storeCfg.SecretAccessKey,
			"", // session token (empty for static credentials)
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	// Default to 10 attempts if not specified (AWS default is 3)
	maxRetries := storeCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	cfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		// Custom endpoints (MinIO, Localstack) need path-style addressing
		if storeCfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(storeCfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	// ========================================================================
	// Step 3: Create S3 Content Store
	// ========================================================================

	store, err := contentS3.NewS3ContentStore(ctx, contentS3.S3ContentStoreConfig{
		Client:          client,
		Bucket:          storeCfg.Bucket,
		KeyPrefix:       storeCfg.KeyPrefix,
		SkipBucketCheck: storeCfg.SkipBucketCheck,
		Metrics:         metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 content store: %w", err)
	}

	logger.Info("S3 content store initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)

	return store, nil
}
