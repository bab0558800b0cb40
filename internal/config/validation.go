package config

import "fmt"

// validSSLModes are the sslmode values accepted by libpq/pgx.
var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks the configuration for consistency. It is called by Load
// before any component sees the config; callers constructing a Config by hand
// (tests) should call it themselves.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidEmbedderModel)
	}
	if c.EmbedderDimension <= 0 || c.EmbedderDimension > 4096 {
		return fmt.Errorf("%w: got %d, want 1-4096", ErrInvalidEmbedderDimension, c.EmbedderDimension)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap %d must be in [0, chunk_size)", ErrInvalidChunking, c.ChunkOverlap)
	}

	if c.EmbedWorkers <= 0 || c.EmbedWorkers > MaxEmbedWorkers {
		return fmt.Errorf("%w: got %d, want 1-%d", ErrInvalidWorkers, c.EmbedWorkers, MaxEmbedWorkers)
	}
	if c.EmbedRateLimit < 0 {
		return fmt.Errorf("%w: embed_rate_limit must not be negative", ErrInvalidWorkers)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: got %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	if c.UploadDir == "" {
		return ErrInvalidUploadDir
	}

	return nil
}
