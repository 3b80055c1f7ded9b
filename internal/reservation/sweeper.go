package reservation

import (
	"context"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
)

// SweeperConfig controls the background expiry loop.
type SweeperConfig struct {
	Interval  time.Duration
	BatchSize int
}

// DefaultSweeperConfig returns a 10s interval and batches of 100 holds.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{Interval: 10 * time.Second, BatchSize: 100}
}

// Sweeper expires lapsed holds that nobody touched.  Foreground operations
// already expire holds lazily; the sweeper bounds how long an abandoned
// hold keeps its seats.
type Sweeper struct {
	coord  *Coordinator
	cfg    SweeperConfig
	logger *log.Logger

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSweeper returns a sweeper driving coord.  A nil logger uses gommon's
// default logger.
func NewSweeper(coord *Coordinator, cfg SweeperConfig, logger *log.Logger) *Sweeper {
	def := DefaultSweeperConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if logger == nil {
		logger = log.New("sweeper")
	}
	return &Sweeper{coord: coord, cfg: cfg, logger: logger, done: make(chan struct{})}
}

// Start runs the sweep loop in the background until Stop is called or ctx
// is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		s.logger.Infof("hold sweeper started, interval %v", s.cfg.Interval)
		for {
			select {
			case <-ticker.C:
				s.tick(ctx)
			case <-s.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
	s.wg.Wait()
}

func (s *Sweeper) tick(ctx context.Context) {
	n, err := s.SweepOnce(ctx)
	if err != nil {
		s.logger.Errorf("hold sweep: %v", err)
	}
	if n > 0 {
		s.logger.Infof("expired %d holds", n)
	}
}

// SweepOnce expires every hold that is lapsed right now, working in
// batches of cfg.BatchSize.  Each hold is expired in its own unit of work;
// a failure on one hold is logged and the rest still run.  Holds that
// failed stay in the listing, so each page asks for that many extra rows
// and they never crowd out later holds.  It returns the number of holds
// expired and the error that stopped listing, if any.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	total := 0
	seen := make(map[string]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		limit := s.cfg.BatchSize + len(seen) - total
		batch, err := s.coord.store.ExpiredHolds(ctx, s.coord.now(), limit)
		if err != nil {
			return total, storageErr("list expired holds", err)
		}
		fresh := 0
		for _, h := range batch {
			if _, ok := seen[h.ID]; ok {
				continue
			}
			seen[h.ID] = struct{}{}
			fresh++
			expired, err := s.coord.ExpireHold(ctx, h.ID)
			if err != nil {
				s.logger.Warnf("expire hold %s: %v", h.ID, err)
				continue
			}
			if expired {
				total++
			}
		}
		if len(batch) < limit || fresh == 0 {
			return total, nil
		}
	}
}
