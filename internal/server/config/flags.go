package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/taskkeeper/internal/flagx"
)

// serverFlags lists the flags parseFlags owns.
var serverFlags = []string{
	"-a", "-g", "-d", "-s", "-t", "-r", "-f", "-l", "-k",
	"-u", "-p", "-b", "-region", "-e", "-redis", "-o", "-log",
}

// parseFlags populates server Config fields from command-line flags.
//
// Supported flags:
//
//	-a string       REST bind address (e.g., ":5000")
//	-g string       gRPC health bind address (e.g., ":50051")
//	-d string       PostgreSQL DSN, or "memory"
//	-s string       JWT HMAC secret key
//	-t int          access token validity, minutes
//	-r int          refresh token validity, minutes
//	-f string       upload directory
//	-l int          max upload request size, bytes
//	-k string       blob backend: local or s3
//	-u string       S3 root user
//	-p string       S3 root password
//	-b string       S3 bucket name
//	-region string  S3 region
//	-e string       S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-redis string   Redis address for the login limiter
//	-o string       CORS allowed origin
//	-log string     log level
//
// os.Args is first filtered with flagx.FilterArgs so flags meant for other
// components (-c) do not break parsing.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], serverFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run REST server")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "address and port to run gRPC health server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh_token_validity_duration (in minutes)")

	fs.StringVar(&config.UploadDir, "f", config.UploadDir, "upload directory")
	fs.Int64Var(&config.MaxUploadSize, "l", config.MaxUploadSize, "max upload size (bytes)")
	fs.StringVar(&config.BlobBackend, "k", config.BlobBackend, "blob backend (local|s3)")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "region", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "Redis address")
	fs.StringVar(&config.CORSOrigin, "o", config.CORSOrigin, "CORS allowed origin")
	fs.StringVar(&config.LogLevel, "log", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	// minute-granular flags only override when given explicitly
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
		case "r":
			config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Minute
		}
	})
}
