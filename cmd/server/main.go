package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/emigresto/meal-reservation/internal/config"
	"github.com/emigresto/meal-reservation/internal/database"
	"github.com/emigresto/meal-reservation/internal/handler"
	"github.com/emigresto/meal-reservation/internal/logging"
	"github.com/emigresto/meal-reservation/internal/queue"
	"github.com/emigresto/meal-reservation/internal/repository"
	"github.com/emigresto/meal-reservation/internal/router"
	"github.com/emigresto/meal-reservation/internal/service"
	"github.com/emigresto/meal-reservation/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		logrus.WithError(err).Fatal("configure logging")
	}
	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}

func run(cfg config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbOpts := cfg.DB.Options()
	db, err := database.Open(ctx, dbOpts)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db, dbOpts.Driver); err != nil {
		return err
	}

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		log.Warn("redis unavailable: rate limiting, response cache and sweep lock disabled")
	} else {
		defer rdb.Close()
	}

	var events service.EventPublisher
	if cfg.Events.Enabled {
		events = queue.NewPublisher(cfg.Events.URL, log)
	}

	svc := service.New(service.Deps{
		DB:            db,
		TxOptions:     database.TxOptions(dbOpts.Driver),
		Reservations:  repository.NewReservationRepo(db),
		Periods:       repository.NewPeriodRepo(db),
		Weekdays:      repository.NewWeekdayRepo(db),
		Beneficiaries: repository.NewBeneficiaryRepo(db),
		Occupancy:     repository.NewOccupancyRepo(db),
		Policy: service.Policy{
			SameDayCutoff:  cfg.Booking.Cutoff(),
			MaxAdvanceDays: cfg.Booking.MaxAdvanceDays,
		},
		Clock:          service.LocalClock(cfg.Location()),
		Events:         events,
		Logger:         log,
		SweepBatchSize: cfg.Sweeper.BatchSize,
	})

	e := echo.New()
	e.HideBanner = true

	guard := router.Guard{
		JWTSecret: cfg.JWTSecret,
		Redis:     rdb,
		RateLimit: cfg.RateLimit,
		Cache:     cfg.Cache,
		Log:       log,
	}
	router.RegisterRoutes(e, db)
	router.RegisterReservations(e, handler.NewReservationHandler(svc, log), guard)
	router.RegisterCatalog(e, handler.NewCatalogHandler(svc, log), guard)
	var locker worker.Locker
	if rdb != nil {
		locker = worker.NewRedisLocker(rdb)
	}
	sw := worker.NewExpirySweeper(svc, cfg.Sweeper.Interval, locker, cfg.Sweeper.LockTTL, log)
	router.RegisterAdmin(e, &handler.AdminHandler{Sweeper: sw, Log: log}, guard)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := ":" + cfg.Port
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env, "driver": dbOpts.Driver}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if cfg.Sweeper.Enabled {
		g.Go(func() error {
			sw.Start(gctx)
			return nil
		})
	}

	if cfg.Events.ConsumerEnabled {
		consumer := queue.NewConsumer(cfg.Events.URL, cfg.Events.LogDir, log)
		g.Go(func() error {
			if err := consumer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	return g.Wait()
}
