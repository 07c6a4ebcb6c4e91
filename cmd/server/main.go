package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/vidstream/backend/internal/config"
	"github.com/vidstream/backend/internal/events"
	"github.com/vidstream/backend/internal/hash"
	"github.com/vidstream/backend/internal/httpserver"
	"github.com/vidstream/backend/internal/logging"
	"github.com/vidstream/backend/internal/media"
	mw "github.com/vidstream/backend/internal/middleware"
	"github.com/vidstream/backend/internal/repo"
	"github.com/vidstream/backend/internal/search"
	"github.com/vidstream/backend/internal/service"
	"github.com/vidstream/backend/internal/tokens"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := logging.New(cfg.LogLevel)

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	var uploader media.Uploader
	if cfg.CloudinaryName != "" {
		cld, err := media.NewCloudinary(cfg.CloudinaryName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
		if err != nil {
			log.Fatalf("cloudinary init error: %v", err)
		}
		uploader = cld
	} else {
		logger.Warn("cloudinary not configured, media uploads disabled")
	}

	producer := events.NewProducer(cfg.KafkaBrokers, cfg.UserEventsTopic)
	if producer == nil {
		logger.Warn("kafka not configured, user events disabled")
	}

	var index *search.Index
	if cfg.ESURL != "" {
		esClient, err := search.NewClient(cfg.ESURL, cfg.ESUser, cfg.ESPassword)
		if err != nil {
			log.Fatalf("elasticsearch init error: %v", err)
		}
		index = &search.Index{ES: esClient, Name: "user_profiles"}
	} else {
		logger.Warn("elasticsearch not configured, channel search disabled")
	}

	userRepo := &repo.UserRepo{DB: db}
	issuer := &tokens.Issuer{
		AccessSecret:  cfg.AccessTokenSecret,
		RefreshSecret: cfg.RefreshTokenSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	}

	svc := &service.UserService{
		Repo:   userRepo,
		Hasher: hash.New(cfg.BcryptCost),
		Tokens: issuer,
		Media:  uploader,
		Events: producer,
		Search: index,

		RevokeSessionsOnPasswordChange: cfg.RevokeSessionsOnPasswordChange,
	}

	e := echo.New()
	e.HideBanner = true
	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(echomw.Recover(), echomw.RequestID())
	e.Use(mw.RequestLogger(logger))
	e.HTTPErrorHandler = httpserver.ErrorHandler(logger)

	httpserver.Register(e, &httpserver.Deps{
		UserHandler: &httpserver.UserHTTP{Svc: svc},
		Auth:        mw.NewAuth(issuer, userRepo),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()
	logger.Info("server started", "port", cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	}

	if err := producer.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}

	logger.Info("shutdown complete")
}
