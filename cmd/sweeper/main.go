// Command sweeper expires every VALID reservation dated before the current
// week and prints how many rows changed.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/emigresto/meal-reservation/internal/config"
	"github.com/emigresto/meal-reservation/internal/database"
	"github.com/emigresto/meal-reservation/internal/logging"
	"github.com/emigresto/meal-reservation/internal/queue"
	"github.com/emigresto/meal-reservation/internal/repository"
	"github.com/emigresto/meal-reservation/internal/service"
	"github.com/emigresto/meal-reservation/internal/worker"
)

func main() {
	migrate := flag.Bool("migrate", false, "apply pending migrations before sweeping")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		logrus.WithError(err).Fatal("configure logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, ran, err := sweep(ctx, cfg, log, *migrate)
	if err != nil {
		log.WithError(err).Fatal("sweep failed")
	}
	if !ran {
		fmt.Println("skipped: another instance holds the sweep lock")
		return
	}
	fmt.Printf("%d reservation(s) expired\n", n)
}

func sweep(ctx context.Context, cfg config.Config, log *logrus.Logger, migrate bool) (int, bool, error) {
	opts := cfg.DB.Options()
	db, err := database.Open(ctx, opts)
	if err != nil {
		return 0, false, err
	}
	defer db.Close()
	if migrate {
		if err := database.Migrate(ctx, db, opts.Driver); err != nil {
			return 0, false, err
		}
	}

	var events service.EventPublisher
	if cfg.Events.Enabled {
		events = queue.NewPublisher(cfg.Events.URL, log)
	}
	svc := service.New(service.Deps{
		DB:             db,
		TxOptions:      database.TxOptions(opts.Driver),
		Reservations:   repository.NewReservationRepo(db),
		Periods:        repository.NewPeriodRepo(db),
		Weekdays:       repository.NewWeekdayRepo(db),
		Beneficiaries:  repository.NewBeneficiaryRepo(db),
		Occupancy:      repository.NewOccupancyRepo(db),
		Clock:          service.LocalClock(cfg.Location()),
		Events:         events,
		Logger:         log,
		SweepBatchSize: cfg.Sweeper.BatchSize,
	})

	var locker worker.Locker
	if rdb := config.NewRedisClient(cfg.Redis); rdb != nil {
		defer rdb.Close()
		locker = worker.NewRedisLocker(rdb)
	}
	n, ran := worker.NewExpirySweeper(svc, cfg.Sweeper.Interval, locker, cfg.Sweeper.LockTTL, log).RunOnce(ctx)
	if err := ctx.Err(); err != nil {
		return n, ran, err
	}
	return n, ran, nil
}
