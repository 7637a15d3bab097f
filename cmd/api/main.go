package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"
	"github.com/matrimony-api/internal/application/job"
	"github.com/matrimony-api/internal/config"
	"github.com/matrimony-api/internal/infrastructure/awsconf"
	"github.com/matrimony-api/internal/infrastructure/dynamo"
	"github.com/matrimony-api/internal/infrastructure/ephemeris"
	"github.com/matrimony-api/internal/infrastructure/gateway"
	"github.com/matrimony-api/internal/infrastructure/geo"
	jwtinfra "github.com/matrimony-api/internal/infrastructure/jwt"
	"github.com/matrimony-api/internal/infrastructure/llm"
	"github.com/matrimony-api/internal/infrastructure/msg91"
	"github.com/matrimony-api/internal/infrastructure/qstash"
	redisinfra "github.com/matrimony-api/internal/infrastructure/redis"
	s3infra "github.com/matrimony-api/internal/infrastructure/s3"
	"github.com/matrimony-api/internal/infrastructure/smtp"
	"github.com/matrimony-api/internal/infrastructure/sns"
	transporthttp "github.com/matrimony-api/internal/transport/http"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("load config", err)
	}
	if cfg.InternalSecret == "" {
		slog.Warn("INTERNAL_ROUTE_SECRET is empty; delayed-job callbacks will be rejected")
	}

	ctx := context.Background()

	awsCfg, err := awsconf.Load(ctx, cfg)
	if err != nil {
		fatal("aws config", err)
	}
	endpoint := awsconf.Endpoint(cfg)

	dynamoClient := dynamo.NewClient(awsCfg, endpoint)
	// Creates tables if they don't exist.
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)

	redisClient, err := redisinfra.NewClient(ctx, cfg.Redis)
	if err != nil {
		fatal("redis client", err)
	}
	defer redisClient.Close()

	jwtProvider, err := jwtinfra.NewProvider(cfg.JWT)
	if err != nil {
		fatal("jwt provider", err)
	}

	s3Client := s3infra.NewClient(awsCfg, endpoint)
	imageStore := s3infra.NewStore(s3Client, cfg.S3BucketName, cfg.AWSRegion, cfg.AWSEndpointURL)

	var smsSender sns.SMSSender = sns.LogSender{}
	if cfg.SNSRegion != "" && endpoint == nil {
		smsSender = sns.NewSender(awsCfg, cfg.SNSRegion)
	} else {
		slog.Warn("SNS not configured, logging SMS instead")
	}

	var mailer transporthttp.Mailer
	if cfg.Email.MSG91AuthKey != "" {
		mailer = msg91.NewMailer(cfg.Email)
	} else {
		slog.Warn("MSG91 not configured, using SMTP fallback", "host", cfg.Email.SMTPHost)
		mailer = smtp.NewMailer(cfg.Email)
	}

	var dispatcher job.Dispatcher
	if cfg.QStash.Token != "" {
		dispatcher = qstash.NewPublisher(cfg.QStash.URL, cfg.QStash.Token, cfg.BaseURL, cfg.InternalSecret)
	} else {
		slog.Warn("QStash not configured, delayed jobs run in-process")
		local := qstash.NewLocalScheduler(cfg.BaseURL, cfg.InternalSecret)
		defer local.Close()
		dispatcher = local
	}

	zone, err := time.LoadLocation(cfg.Astrology.BusinessZone)
	if err != nil {
		fatal("load business timezone", err)
	}

	deps := &transporthttp.Deps{
		UserRepo:     dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users),
		BrokerRepo:   dynamo.NewBrokerRepo(dynamoClient, cfg.DynamoTables.Brokers),
		Cache:        redisinfra.NewCache(redisClient),
		OTPLimiter:   redisinfra.NewOTPLimiter(redisClient, cfg.OTP.LimitWindow, cfg.OTP.LimitMax),
		ImageStore:   imageStore,
		Mailer:       mailer,
		SMSSender:    smsSender,
		JWTProvider:  jwtProvider,
		Dispatcher:   dispatcher,
		Gateway:      gateway.NewClient(cfg.Payment.BaseURL, cfg.Payment.KeyID, cfg.Payment.KeySecret, cfg.Payment.WebhookSecret),
		Geo:          geo.NewClient(cfg.Astrology.GeocoderURL, cfg.Astrology.UserAgent, cfg.Astrology.TimezoneURL, cfg.Astrology.TimezoneKey),
		Ephemeris:    ephemeris.NewClient(cfg.Astrology.EphemerisURL, cfg.Astrology.EphemerisKey),
		LLM:          llm.NewClient(cfg.Astrology.LLMBaseURL, cfg.Astrology.LLMAPIKey, cfg.Astrology.LLMModel),
		BusinessZone: zone,
		HealthChecks: map[string]func(context.Context) error{
			"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
			"dynamodb": func(ctx context.Context) error {
				_, err := dynamoClient.DescribeTable(ctx, &dynamodb.DescribeTableInput{
					TableName: aws.String(cfg.DynamoTables.Users),
				})
				return err
			},
		},
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
