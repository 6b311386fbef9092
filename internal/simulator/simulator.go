package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/plantpulse/mes-backend/internal/core/domain"
	"github.com/plantpulse/mes-backend/internal/core/ports"
)

// Simulator drives synthetic shop-floor activity through the dispatcher so
// demo environments show live traffic without real equipment. All mutations
// go through the regular dispatcher operations; the simulator never touches
// dispatcher state directly.
type Simulator struct {
	dispatcher ports.EventDispatcher
	interval   time.Duration
	logger     *slog.Logger

	// rng is injectable for deterministic tests.
	rng *rand.Rand
}

// New creates a simulator that ticks at the given interval.
func New(dispatcher ports.EventDispatcher, interval time.Duration, logger *slog.Logger) *Simulator {
	return &Simulator{
		dispatcher: dispatcher,
		interval:   interval,
		logger:     logger,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run ticks until the context is cancelled.
func (s *Simulator) Run(ctx context.Context) {
	s.logger.Info("simulator started", "interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("simulator stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one round of synthetic activity. Exported so tests can step
// the simulator without waiting on the ticker.
func (s *Simulator) Tick(ctx context.Context) {
	// Occasionally adjust a random material's stock level.
	if s.rng.Float64() < 0.3 {
		materialNum := s.rng.Intn(5) + 1
		quantity := s.rng.Intn(100) + 1

		s.dispatcher.UpdateStock(ctx, domain.UpdateStockAction{
			MaterialID: fmt.Sprintf("MAT-%03d", materialNum),
			Quantity:   quantity,
			Operation:  domain.StockAdjust,
			Reason:     "Cycle count adjustment",
		})
	}

	// Advance a subset of active work orders.
	for _, wo := range s.dispatcher.ActiveWorkOrders() {
		if s.rng.Float64() >= 0.2 {
			continue
		}

		next := wo.Progress + s.rng.Intn(10) + 1
		if next >= 100 {
			s.dispatcher.CompleteWorkOrder(ctx, domain.CompleteWorkOrderAction{
				WorkOrderID: wo.WorkOrderID,
				OperatorID:  wo.OperatorID,
				TimeSpent:   int(time.Since(wo.StartedAt).Minutes()),
			})
			continue
		}

		s.dispatcher.UpdateWorkOrderProgress(ctx, domain.UpdateProgressAction{
			WorkOrderID: wo.WorkOrderID,
			Progress:    next,
		})
	}
}
