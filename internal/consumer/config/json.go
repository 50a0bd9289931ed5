package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/seftconsumer/internal/timex"
)

// JsonConfig is the on-disk form of Config. Duration fields accept "5s" or
// integer nanoseconds. Fields left out of the file keep their current
// value.
type JsonConfig struct {
	LogLevel string `json:"log_level"`

	DatabaseDSN         string         `json:"database_dsn"`
	QueueName           string         `json:"queue_name"`
	QuarantineQueueName string         `json:"quarantine_queue_name"`
	Workers             int            `json:"workers"`
	PollInterval        timex.Duration `json:"poll_interval"`
	VisibilityTimeout   timex.Duration `json:"visibility_timeout"`
	RetryDelay          timex.Duration `json:"retry_delay"`

	KeysFile   string `json:"keys_file"`
	KeyPurpose string `json:"key_purpose"`

	DeliveryBackend string `json:"delivery_backend"`
	DeliveryRoot    string `json:"delivery_root"`
	FTPHost         string `json:"ftp_host"`
	FTPPort         int    `json:"ftp_port"`
	FTPUser         string `json:"ftp_user"`
	FTPPassword     string `json:"ftp_password"`
	S3Region        string `json:"s3_region"`
	S3BaseEndpoint  string `json:"s3_base_endpoint"`
	S3AccessKey     string `json:"s3_access_key"`
	S3SecretKey     string `json:"s3_secret_key"`
	S3Bucket        string `json:"s3_bucket"`

	ScanEnabled      *bool          `json:"scan_enabled"`
	ScanBaseURL      string         `json:"scan_base_url"`
	ScanAPIKey       string         `json:"scan_api_key"`
	ScanCACert       string         `json:"scan_ca_cert"`
	ScanRule         string         `json:"scan_rule"`
	ScanUserAgent    string         `json:"scan_user_agent"`
	ScanWaitInterval timex.Duration `json:"scan_wait_interval"`
	ScanMaxAttempts  int            `json:"scan_max_attempts"`
	RedisAddr        string         `json:"redis_addr"`
	RedisPassword    string         `json:"redis_password"`

	ReceiptURL      string `json:"receipt_url"`
	ReceiptUser     string `json:"receipt_user"`
	ReceiptPassword string `json:"receipt_password"`

	HealthAddrGRPC      string         `json:"health_addr_grpc"`
	HealthAddrHTTP      string         `json:"health_addr_http"`
	HealthCheckInterval timex.Duration `json:"health_check_interval"`
}

// parseJSON overlays the JSON file at path onto c.
func parseJSON(c *Config, path string) error {
	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	j := &JsonConfig{}
	if err := json.Unmarshal(file, j); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	str(&c.LogLevel, j.LogLevel)

	str(&c.DatabaseDSN, j.DatabaseDSN)
	str(&c.QueueName, j.QueueName)
	str(&c.QuarantineQueueName, j.QuarantineQueueName)
	num(&c.Workers, j.Workers)
	dur(&c.PollInterval, j.PollInterval)
	dur(&c.VisibilityTimeout, j.VisibilityTimeout)
	dur(&c.RetryDelay, j.RetryDelay)

	str(&c.KeysFile, j.KeysFile)
	str(&c.KeyPurpose, j.KeyPurpose)

	str(&c.DeliveryBackend, j.DeliveryBackend)
	str(&c.DeliveryRoot, j.DeliveryRoot)
	str(&c.FTPHost, j.FTPHost)
	num(&c.FTPPort, j.FTPPort)
	str(&c.FTPUser, j.FTPUser)
	str(&c.FTPPassword, j.FTPPassword)
	str(&c.S3Region, j.S3Region)
	str(&c.S3BaseEndpoint, j.S3BaseEndpoint)
	str(&c.S3AccessKey, j.S3AccessKey)
	str(&c.S3SecretKey, j.S3SecretKey)
	str(&c.S3Bucket, j.S3Bucket)

	if j.ScanEnabled != nil {
		c.ScanEnabled = *j.ScanEnabled
	}
	str(&c.ScanBaseURL, j.ScanBaseURL)
	str(&c.ScanAPIKey, j.ScanAPIKey)
	str(&c.ScanCACert, j.ScanCACert)
	str(&c.ScanRule, j.ScanRule)
	str(&c.ScanUserAgent, j.ScanUserAgent)
	dur(&c.ScanWaitInterval, j.ScanWaitInterval)
	num(&c.ScanMaxAttempts, j.ScanMaxAttempts)
	str(&c.RedisAddr, j.RedisAddr)
	str(&c.RedisPassword, j.RedisPassword)

	str(&c.ReceiptURL, j.ReceiptURL)
	str(&c.ReceiptUser, j.ReceiptUser)
	str(&c.ReceiptPassword, j.ReceiptPassword)

	str(&c.HealthAddrGRPC, j.HealthAddrGRPC)
	str(&c.HealthAddrHTTP, j.HealthAddrHTTP)
	dur(&c.HealthCheckInterval, j.HealthCheckInterval)

	return nil
}

func str(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func num(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func dur(dst *time.Duration, v timex.Duration) {
	if v.IsSet() {
		*dst = v.Duration
	}
}
