package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ceotind/sharp-form-backend/internal/auth"
	"github.com/ceotind/sharp-form-backend/internal/config"
	"github.com/ceotind/sharp-form-backend/internal/db"
	"github.com/ceotind/sharp-form-backend/internal/filecheck"
	"github.com/ceotind/sharp-form-backend/internal/ratelimit"
	"github.com/ceotind/sharp-form-backend/internal/repository"
	"github.com/ceotind/sharp-form-backend/internal/s3blob"
	"github.com/ceotind/sharp-form-backend/internal/service"
	"github.com/ceotind/sharp-form-backend/internal/store"
	"github.com/ceotind/sharp-form-backend/internal/store/memory"
)

const initTimeout = 30 * time.Second

// app holds the wired services and the resources to release on exit.
type app struct {
	tokens  *auth.TokenIssuer
	limiter ratelimit.Limiter
	health  store.Pinger

	auth      *service.AuthService
	forms     *service.FormService
	responses *service.ResponseService
	files     *service.FileService

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	a := &app{tokens: auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)}
	links := auth.NewLinkSigner(a.tokens, cfg.PublicBaseURL)

	var (
		pool      *db.Pool
		forms     store.FormStore
		responses store.ResponseStore
		users     store.UserStore
		blobs     store.BlobStore
	)

	if cfg.StoreBackend == "oxidb" || cfg.BlobBackend == "oxidb" {
		p, err := db.NewPool(cfg.OxiDBHost, cfg.OxiDBPort, cfg.PoolSize)
		if err != nil {
			return nil, fmt.Errorf("connect to oxidb: %w", err)
		}
		pool = p
		a.closers = append(a.closers, p.Close)
		a.health = p
		log.Info().Str("host", cfg.OxiDBHost).Int("port", cfg.OxiDBPort).Int("poolSize", cfg.PoolSize).Msg("connected to oxidb")
	}

	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()

	switch cfg.StoreBackend {
	case "oxidb":
		formRepo, respRepo, userRepo := repository.NewFormRepo(pool), repository.NewResponseRepo(pool), repository.NewUserRepo(pool)
		for name, ensure := range map[string]func(context.Context) error{
			"forms":     formRepo.EnsureIndexes,
			"responses": respRepo.EnsureIndexes,
			"users":     userRepo.EnsureIndexes,
		} {
			if err := ensure(initCtx); err != nil {
				a.Close()
				return nil, fmt.Errorf("ensure %s indexes: %w", name, err)
			}
		}
		forms, responses, users = formRepo, respRepo, userRepo
	default:
		forms, responses, users = memory.NewFormStore(), memory.NewResponseStore(), memory.NewUserStore()
		log.Warn().Msg("using in-memory document store; data is lost on restart")
	}

	switch cfg.BlobBackend {
	case "oxidb":
		blobRepo := repository.NewBlobRepo(pool, cfg.Bucket, links)
		if err := blobRepo.EnsureBucket(initCtx); err != nil {
			a.Close()
			return nil, fmt.Errorf("ensure bucket: %w", err)
		}
		blobs = blobRepo
	case "s3":
		s3Store, err := s3blob.New(initCtx, s3blob.Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("s3: %w", err)
		}
		blobs = s3Store
	default:
		blobs = memory.NewBlobStore(links)
	}

	switch cfg.RateLimitBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		a.closers = append(a.closers, func() { _ = client.Close() })
		if err := client.Ping(initCtx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable; uploads are not limited until it recovers")
		}
		a.limiter = ratelimit.NewRedis(client, cfg.UploadRateMax, cfg.UploadRateWindow)
	default:
		a.limiter = ratelimit.NewMemory(cfg.UploadRateMax, cfg.UploadRateWindow)
	}

	var google auth.FederatedVerifier
	if cfg.GoogleClientID != "" {
		google = auth.NewGoogleVerifier(cfg.GoogleClientID)
	}

	a.auth = service.NewAuthService(users, a.tokens, google)
	a.forms = service.NewFormService(forms, responses, blobs)
	a.responses = service.NewResponseService(forms, responses)
	a.files = service.NewFileService(blobs, filecheck.New(cfg.UploadMaxBytes), links, service.FileOptions{
		Retention: cfg.RetentionPeriod,
		LinkTTL:   cfg.SignedURLTTL,
	})
	return a, nil
}
