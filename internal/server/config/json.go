package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/taskkeeper/internal/flagx"
	"github.com/dmitrijs2005/taskkeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "15m" and integer nanoseconds are accepted.
// Fields left out of the file keep their current value.
type JsonConfig struct {
	HTTPAddr                     string         `json:"http_addr"`
	GRPCAddr                     string         `json:"grpc_addr"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	UploadDir                    string         `json:"upload_dir"`
	MaxUploadSize                int64          `json:"max_upload_size"`
	BlobBackend                  string         `json:"blob_backend"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
	RedisAddr                    string         `json:"redis_addr"`
	LoginRateLimit               int64          `json:"login_rate_limit"`
	LoginRateWindow              timex.Duration `json:"login_rate_window"`
	CORSOrigin                   string         `json:"cors_origin"`
	LogLevel                     string         `json:"log_level"`
}

// parseJson loads the file named by -c / -config into config. Without the
// flag nothing happens. An unreadable file or invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFileFlag()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	if c.AccessTokenValidityDuration.Duration != 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration.Duration != 0 {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	setString(&config.UploadDir, c.UploadDir)
	if c.MaxUploadSize != 0 {
		config.MaxUploadSize = c.MaxUploadSize
	}
	setString(&config.BlobBackend, c.BlobBackend)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.RedisAddr, c.RedisAddr)
	if c.LoginRateLimit != 0 {
		config.LoginRateLimit = c.LoginRateLimit
	}
	if c.LoginRateWindow.Duration != 0 {
		config.LoginRateWindow = c.LoginRateWindow.Duration
	}
	setString(&config.CORSOrigin, c.CORSOrigin)
	setString(&config.LogLevel, c.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
