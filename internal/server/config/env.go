package config

import "github.com/dmitrijs2005/taskkeeper/internal/flagx"

// parseEnv overlays values from environment variables. Unset or empty
// variables leave the field untouched.
//
//	HTTP_ADDR, GRPC_ADDR, DATABASE_DSN, JWT_SECRET,
//	ACCESS_TOKEN_TTL, REFRESH_TOKEN_TTL, FILE_UPLOAD_PATH, MAX_UPLOAD_SIZE,
//	BLOB_BACKEND, S3_ROOT_USER, S3_ROOT_PASSWORD, S3_BUCKET, S3_REGION,
//	S3_BASE_ENDPOINT, REDIS_ADDR, LOGIN_RATE_LIMIT, LOGIN_RATE_WINDOW,
//	CORS_ORIGIN, LOG_LEVEL
func parseEnv(config *Config) error {
	flagx.EnvString(&config.HTTPAddr, "HTTP_ADDR")
	flagx.EnvString(&config.GRPCAddr, "GRPC_ADDR")
	flagx.EnvString(&config.DatabaseDSN, "DATABASE_DSN")
	flagx.EnvString(&config.SecretKey, "JWT_SECRET")
	if err := flagx.EnvDuration(&config.AccessTokenValidityDuration, "ACCESS_TOKEN_TTL"); err != nil {
		return err
	}
	if err := flagx.EnvDuration(&config.RefreshTokenValidityDuration, "REFRESH_TOKEN_TTL"); err != nil {
		return err
	}
	flagx.EnvString(&config.UploadDir, "FILE_UPLOAD_PATH")
	if err := flagx.EnvInt64(&config.MaxUploadSize, "MAX_UPLOAD_SIZE"); err != nil {
		return err
	}
	flagx.EnvString(&config.BlobBackend, "BLOB_BACKEND")
	flagx.EnvString(&config.S3RootUser, "S3_ROOT_USER")
	flagx.EnvString(&config.S3RootPassword, "S3_ROOT_PASSWORD")
	flagx.EnvString(&config.S3Bucket, "S3_BUCKET")
	flagx.EnvString(&config.S3Region, "S3_REGION")
	flagx.EnvString(&config.S3BaseEndpoint, "S3_BASE_ENDPOINT")
	flagx.EnvString(&config.RedisAddr, "REDIS_ADDR")
	if err := flagx.EnvInt64(&config.LoginRateLimit, "LOGIN_RATE_LIMIT"); err != nil {
		return err
	}
	if err := flagx.EnvDuration(&config.LoginRateWindow, "LOGIN_RATE_WINDOW"); err != nil {
		return err
	}
	flagx.EnvString(&config.CORSOrigin, "CORS_ORIGIN")
	flagx.EnvString(&config.LogLevel, "LOG_LEVEL")
	return nil
}
