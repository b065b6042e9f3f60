package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/desacikupa/umkmdesa/internal"
	"github.com/desacikupa/umkmdesa/internal/config"
	"github.com/desacikupa/umkmdesa/internal/logging"
	"github.com/desacikupa/umkmdesa/pkg"

	log "github.com/sirupsen/logrus"
)

// used only outside of production, when UMKM_JWT_SECRET is not set
const devJWTSecret = "umkm-desa-development-secret"

func main() {
	fmt.Println("starting ...")

	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	flag.Parse()

	log.Warnf("---->> running in [%s] environment", *env)

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		panic(err)
	}

	sentryDSN := os.Getenv("SENTRY_DSN")
	logging.Setup(logging.LoggerSetupParams{
		LogFileName:      cfg.LogsPath,
		LogToStdout:      cfg.LogToStdout,
		LogLevel:         cfg.LogLevel,
		LogFormatJSON:    cfg.LogFormatJSON,
		Environment:      cfg.Environment,
		SentryEnabled:    cfg.SentryEnabled,
		SentryDSN:        sentryDSN,
		SentryServerName: "umkm-desa-service",
	})

	log.Debugf("using port: %d", cfg.Port)
	log.Debugf("using server logs path: [%s]", cfg.LogsPath)

	versionInfo, err := tryGetLastCommitHash()
	if err != nil {
		log.Tracef("failed to get last commit hash / version info: %s", err)
	} else {
		log.Tracef("running version: %s", versionInfo)
	}

	jwtSecret := os.Getenv("UMKM_JWT_SECRET")
	if jwtSecret == "" {
		if cfg.IsProduction() {
			log.Fatalln("jwt secret not set. use UMKM_JWT_SECRET")
		}
		log.Errorf("jwt secret not set, falling back to the development secret. use UMKM_JWT_SECRET")
		jwtSecret = devJWTSecret
	}

	postgresPassword := os.Getenv("UMKM_POSTGRES_PASS")
	if postgresPassword == "" {
		log.Errorf("postgres password not set. use UMKM_POSTGRES_PASS")
	}

	redisPassword := os.Getenv("UMKM_REDIS_PASS")
	if redisPassword == "" {
		log.Errorf("redis password not set. use UMKM_REDIS_PASS")
	}

	s3AccessKey := os.Getenv("UMKM_S3_ACCESS_KEY")
	s3SecretKey := os.Getenv("UMKM_S3_SECRET_KEY")
	if cfg.ImageStore == config.ImageStoreS3 && (s3AccessKey == "" || s3SecretKey == "") {
		log.Warnln("s3 keys not set, falling back to the default aws credentials chain. use UMKM_S3_ACCESS_KEY and UMKM_S3_SECRET_KEY")
	}

	if otelServiceName := os.Getenv("OTEL_SERVICE_NAME"); otelServiceName == "" {
		log.Warnln("OTEL_SERVICE_NAME env var not set")
	}

	honeycombEnabled := os.Getenv("HONEYCOMB_ENABLED") == "true"
	if honeycombEnabled {
		if honeycombApiKey := os.Getenv("HONEYCOMB_API_KEY"); honeycombApiKey == "" {
			log.Warnln("HONEYCOMB_API_KEY env var not set")
		}
	} else {
		log.Debugln("honeycomb tracing disabled")
	}

	chOsInterrupt := make(chan os.Signal, 1)
	signal.Notify(chOsInterrupt, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())

	server, err := internal.NewServer(
		ctx,
		internal.NewServerParams{
			Config:                  cfg,
			VersionInfo:             versionInfo,
			JWTSecret:               jwtSecret,
			PostgresPassword:        postgresPassword,
			RedisPassword:           redisPassword,
			S3AccessKey:             s3AccessKey,
			S3SecretKey:             s3SecretKey,
			HoneycombTracingEnabled: honeycombEnabled,
		},
	)
	if err != nil {
		log.Fatalf("new server: %s", err)
	}

	server.Serve(cfg.Host, cfg.Port)

	receivedSig := <-chOsInterrupt
	log.Warnf("signal [%s] received, killing everything ...", receivedSig)
	cancel()

	server.GracefulShutdown()
}

// tryGetLastCommitHash will try to get the last commit hash
// assumes that the built main executable is in project root
func tryGetLastCommitHash() (string, error) {
	cmd := exec.Command("/usr/bin/git", "rev-parse", "HEAD")
	stdout, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(pkg.BytesToString(stdout)), nil
}
