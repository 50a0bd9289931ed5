package config

import (
	"time"

	"github.com/dmitrijs2005/seftconsumer/internal/envx"
)

// parseEnv overlays values from the environment. Variable names follow the
// deployment's existing SEFT_*, ANTI_VIRUS_* and SDX_* settings.
func parseEnv(c *Config) {
	c.LogLevel = envx.String("LOGGING_LEVEL", c.LogLevel)

	c.DatabaseDSN = envx.String("SEFT_DATABASE_DSN", c.DatabaseDSN)
	c.QueueName = envx.String("SEFT_QUEUE", c.QueueName)
	c.QuarantineQueueName = envx.String("SEFT_QUARANTINE_QUEUE", c.QuarantineQueueName)
	c.Workers = envx.Int("SEFT_CONSUMER_WORKERS", c.Workers)
	c.RetryDelay = envx.Seconds("SEFT_RETRY_DELAY", c.RetryDelay)
	c.VisibilityTimeout = envx.Seconds("SEFT_VISIBILITY_TIMEOUT", c.VisibilityTimeout)

	c.KeysFile = envx.String("SDX_SEFT_CONSUMER_KEYS_FILE", c.KeysFile)
	c.KeyPurpose = envx.String("SEFT_KEY_PURPOSE", c.KeyPurpose)

	c.DeliveryBackend = envx.String("SEFT_DELIVERY_BACKEND", c.DeliveryBackend)
	c.DeliveryRoot = envx.String("SEFT_CONSUMER_FTP_FOLDER", c.DeliveryRoot)
	c.FTPHost = envx.String("SEFT_FTP_HOST", c.FTPHost)
	c.FTPPort = envx.Int("SEFT_FTP_PORT", c.FTPPort)
	c.FTPUser = envx.String("SEFT_FTP_USER", c.FTPUser)
	c.FTPPassword = envx.String("SEFT_FTP_PASS", c.FTPPassword)
	c.S3Region = envx.String("SEFT_S3_REGION", c.S3Region)
	c.S3BaseEndpoint = envx.String("SEFT_S3_ENDPOINT", c.S3BaseEndpoint)
	c.S3AccessKey = envx.String("SEFT_S3_ACCESS_KEY", c.S3AccessKey)
	c.S3SecretKey = envx.String("SEFT_S3_SECRET_KEY", c.S3SecretKey)
	c.S3Bucket = envx.String("SEFT_S3_BUCKET", c.S3Bucket)

	c.ScanEnabled = envx.Bool("ANTI_VIRUS_ENABLED", c.ScanEnabled)
	c.ScanBaseURL = envx.String("ANTI_VIRUS_BASE_URL", c.ScanBaseURL)
	c.ScanAPIKey = envx.String("ANTI_VIRUS_API_KEY", c.ScanAPIKey)
	c.ScanCACert = envx.String("ANTI_VIRUS_CA_CERT", c.ScanCACert)
	c.ScanRule = envx.String("ANTI_VIRUS_RULE", c.ScanRule)
	c.ScanUserAgent = envx.String("ANTI_VIRUS_USER_AGENT", c.ScanUserAgent)
	c.ScanWaitInterval = envx.Seconds("ANTI_VIRUS_WAIT_TIME", c.ScanWaitInterval)
	c.ScanMaxAttempts = envx.Int("ANTI_VIRUS_MAX_ATTEMPTS", c.ScanMaxAttempts)
	c.RedisAddr = envx.String("SEFT_REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = envx.String("SEFT_REDIS_PASSWORD", c.RedisPassword)

	c.ReceiptURL = envx.String("SEFT_RECEIPT_URL", c.ReceiptURL)
	c.ReceiptUser = envx.String("SEFT_RECEIPT_USER", c.ReceiptUser)
	c.ReceiptPassword = envx.String("SEFT_RECEIPT_PASS", c.ReceiptPassword)

	// Milliseconds, as in the existing deployment manifests.
	delay := envx.Int("SEFT_CONSUMER_HEALTHCHECK_DELAY", int(c.HealthCheckInterval/time.Millisecond))
	c.HealthCheckInterval = time.Duration(delay) * time.Millisecond
}
