package http

import (
	"context"
	"time"

	"github.com/matrimony-api/internal/application/job"
	"github.com/matrimony-api/internal/infrastructure/dynamo"
	"github.com/matrimony-api/internal/infrastructure/ephemeris"
	"github.com/matrimony-api/internal/infrastructure/gateway"
	"github.com/matrimony-api/internal/infrastructure/geo"
	jwtinfra "github.com/matrimony-api/internal/infrastructure/jwt"
	"github.com/matrimony-api/internal/infrastructure/llm"
	redisinfra "github.com/matrimony-api/internal/infrastructure/redis"
	s3infra "github.com/matrimony-api/internal/infrastructure/s3"
	"github.com/matrimony-api/internal/infrastructure/sns"
)

// Mailer is the templated-email capability shared by every service.
type Mailer interface {
	SendTemplate(ctx context.Context, to, templateID string, vars map[string]string) error
}

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo     *dynamo.UserRepo
	BrokerRepo   *dynamo.BrokerRepo
	Cache        *redisinfra.Cache
	OTPLimiter   *redisinfra.OTPLimiter
	ImageStore   *s3infra.Store
	Mailer       Mailer
	SMSSender    sns.SMSSender
	JWTProvider  *jwtinfra.Provider
	Dispatcher   job.Dispatcher
	Gateway      *gateway.Client
	Geo          *geo.Client
	Ephemeris    *ephemeris.Client
	LLM          *llm.Client
	BusinessZone *time.Location
	// HealthChecks are run by /v1/health-check/ready, keyed by dependency name.
	HealthChecks map[string]func(context.Context) error
}
