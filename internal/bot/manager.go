package bot

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"dex-dip-bot/config"
	"dex-dip-bot/internal/cache"
	"dex-dip-bot/internal/capital"
	"dex-dip-bot/internal/database"
	"dex-dip-bot/internal/events"
	"dex-dip-bot/internal/orders"
	"dex-dip-bot/internal/splitexec"
	"dex-dip-bot/internal/venue"
)

// Manager wires the bot fleet around the one shared allocator. All bots trade
// from the same wallet, so capital checks must go through a single arena.
type Manager struct {
	allocator *capital.Allocator
	recorder  *orders.Recorder
	bots      []*Bot
	logger    zerolog.Logger
}

// NewManager builds one bot per configured instance. adapter, repo and
// cacheSvc are shared; repo and cacheSvc may be nil when those backends are
// disabled.
func NewManager(
	cfg *config.Config,
	adapter venue.Adapter,
	repo *database.Repository,
	cacheSvc *cache.Service,
	bus *events.Bus,
	logger zerolog.Logger,
) (*Manager, error) {
	m := &Manager{
		allocator: capital.NewAllocator(cfg.CapitalConfig, logger),
		recorder:  orders.NewRecorder(),
		logger:    logger.With().Str("component", "Manager").Logger(),
	}

	for _, bc := range cfg.BotConfigs {
		idGen, err := orders.NewGenerator(cacheSvc, bc.InstanceID, logger)
		if err != nil {
			return nil, fmt.Errorf("bot %s: %w", bc.InstanceID, err)
		}
		executor := splitexec.New(adapter, bc.Tier, bc.Split, logger)
		m.bots = append(m.bots, New(bc, adapter, m.allocator, executor, idGen, m.recorder, repo, cacheSvc, bus, logger))
	}
	return m, nil
}

// Allocator exposes the shared capital arena.
func (m *Manager) Allocator() *capital.Allocator { return m.allocator }

// Bots returns the managed fleet.
func (m *Manager) Bots() []*Bot { return m.bots }

// RestoreAll loads persisted state for every bot before the loops start.
func (m *Manager) RestoreAll(ctx context.Context) error {
	for _, b := range m.bots {
		if err := b.Restore(ctx); err != nil {
			return fmt.Errorf("restore %s: %w", b.InstanceID(), err)
		}
	}
	return nil
}

// StartAll launches every bot loop.
func (m *Manager) StartAll() error {
	for _, b := range m.bots {
		if err := b.Start(); err != nil {
			return err
		}
	}
	m.logger.Info().Int("bots", len(m.bots)).Msg("fleet started")
	return nil
}

// StopAll halts every bot and waits for in-flight cycles.
func (m *Manager) StopAll() {
	for _, b := range m.bots {
		b.Stop()
	}
	m.logger.Info().Msg("fleet stopped")
}
