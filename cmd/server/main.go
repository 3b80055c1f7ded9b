package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/cinema-seat-coordinator/internal/config"
	"github.com/iliyamo/cinema-seat-coordinator/internal/database"
	"github.com/iliyamo/cinema-seat-coordinator/internal/handler"
	"github.com/iliyamo/cinema-seat-coordinator/internal/queue"
	"github.com/iliyamo/cinema-seat-coordinator/internal/repository"
	"github.com/iliyamo/cinema-seat-coordinator/internal/reservation"
	"github.com/iliyamo/cinema-seat-coordinator/internal/router"
)

func main() {
	_ = godotenv.Load() // a missing .env is fine, the environment may be set already
	cfg := config.Load()

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(logLevel(cfg.LogLevel))
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			if v.Error != nil {
				c.Logger().Warnf("%s %s -> %d (%s): %v", v.Method, v.URI, v.Status, v.Latency, v.Error)
				return nil
			}
			c.Logger().Infof("%s %s -> %d (%s)", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	store, closeStore := openStore(cfg, e.Logger)
	defer closeStore()

	var events reservation.EventSink
	var publisher *queue.Publisher
	if cfg.Events.Enabled {
		publisher = queue.NewPublisher(cfg.Events.URL, cfg.Events.Buffer, logger("publisher", cfg.LogLevel))
		publisher.Start()
		events = publisher
	}

	coord := reservation.NewCoordinator(store, reservation.Options{
		DefaultTTL: cfg.Hold.DefaultTTL,
		MaxTTL:     cfg.Hold.MaxTTL,
		MaxSeats:   cfg.Hold.MaxSeats,
		Events:     events,
	})

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	sweeper := reservation.NewSweeper(coord, reservation.SweeperConfig{
		Interval:  cfg.Sweep.Interval,
		BatchSize: cfg.Sweep.BatchSize,
	}, logger("sweeper", cfg.LogLevel))
	sweeper.Start(bgCtx)

	consumerDone := make(chan struct{})
	if cfg.Events.ConsumerEnabled {
		consumer := queue.NewConsumer(cfg.Events.URL, cfg.Events.LogDir, logger("booking-consumer", cfg.LogLevel))
		go func() {
			defer close(consumerDone)
			if err := consumer.Run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				e.Logger.Errorf("booking consumer stopped: %v", err)
			}
		}()
	} else {
		close(consumerDone)
	}

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		e.Logger.Warn("redis unavailable: rate limiting and response cache disabled")
	} else {
		defer rdb.Close()
	}

	router.Register(e, handler.NewReservationHandler(coord), router.Options{
		JWTSecret: cfg.JWTSecret,
		Redis:     rdb,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
	})

	addr := ":" + cfg.Port
	go func() {
		e.Logger.Infof("listening on %s (env=%s, store=%s)", addr, cfg.Env, cfg.StoreDriver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.Logger.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	e.Logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Errorf("server shutdown: %v", err)
	}
	sweeper.Stop()
	bgCancel()
	<-consumerDone
	if publisher != nil {
		publisher.Close()
	}
}

// openStore builds the configured store.  The memory driver is seeded with
// the demo showtime so the API is usable without a database.
func openStore(cfg config.Config, l echo.Logger) (reservation.Store, func()) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		store := repository.NewMemoryStore()
		show, seats := repository.DemoShowtime(time.Now())
		if err := store.AddShowtime(show, seats); err != nil {
			l.Fatalf("seed memory store: %v", err)
		}
		l.Infof("memory store seeded with showtime %d (%d seats)", show.ID, len(seats))
		return store, func() {}
	default:
		db, err := database.Open(cfg.DB.User, cfg.DB.Pass, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name)
		if err != nil {
			l.Fatalf("db open: %v", err)
		}
		if cfg.DB.Migrate {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := database.Migrate(ctx, db); err != nil {
				l.Fatalf("migrate: %v", err)
			}
		}
		return repository.NewMySQLStore(db), func() { _ = db.Close() }
	}
}

func logger(prefix, level string) *log.Logger {
	l := log.New(prefix)
	l.SetLevel(logLevel(level))
	return l
}

func logLevel(s string) log.Lvl {
	switch s {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	}
	return log.INFO
}
