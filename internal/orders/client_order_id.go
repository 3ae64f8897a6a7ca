// Package orders provides client order id generation and trade attempt
// tracking. Every swap submission carries a caller-visible client order id
// derived from (instance id, side, date, sequence); venues treat a duplicate
// id as a no-op, which makes retries safe.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"dex-dip-bot/internal/cache"
	"dex-dip-bot/internal/venue"
)

const (
	// MaxClientOrderIDLength keeps ids within common venue limits.
	MaxClientOrderIDLength = 36

	// FallbackMarker identifies ids generated while Redis was unavailable.
	FallbackMarker = "FB"
)

var (
	ErrEmptyInstanceID      = errors.New("instance id cannot be empty")
	ErrInstanceIDTooLong    = errors.New("instance id leaves no room for the id suffix")
	ErrClientOrderIDTooLong = errors.New("client order id exceeds maximum length")
)

// Generator produces client order ids.
// Format: [INSTANCE]-[B|S]-[DDMMM]-[NNNNN] (e.g. "bot1-B-15JAN-00042").
// Fallback: [INSTANCE]-[B|S]-FB-[8CHAR] when the sequence store is down.
type Generator struct {
	cacheService *cache.Service
	instanceID   string
	logger       zerolog.Logger
}

// NewGenerator creates a Generator for one bot instance. cacheService may be
// nil; every id is then a fallback id.
func NewGenerator(cacheService *cache.Service, instanceID string, logger zerolog.Logger) (*Generator, error) {
	if instanceID == "" {
		return nil, ErrEmptyInstanceID
	}
	// "-B-15JAN-00042" is 14 characters.
	if len(instanceID) > MaxClientOrderIDLength-14 {
		return nil, fmt.Errorf("%w: %q", ErrInstanceIDTooLong, instanceID)
	}

	return &Generator{
		cacheService: cacheService,
		instanceID:   instanceID,
		logger:       logger.With().Str("component", "OrderIdGenerator").Logger(),
	}, nil
}

// Generate creates a new client order id with an atomic daily sequence.
// Falls back to a random id when Redis is unavailable.
func (g *Generator) Generate(ctx context.Context, side venue.Side) string {
	now := time.Now().UTC()
	dateStr := strings.ToUpper(now.Format("02Jan"))

	if g.cacheService != nil && g.cacheService.IsHealthy() {
		dateKey := now.Format("20060102")
		seq, err := g.cacheService.IncrementDailySequence(ctx, g.instanceID, dateKey)
		if err == nil {
			return fmt.Sprintf("%s-%s-%s-%05d", g.instanceID, sideCode(side), dateStr, seq)
		}
		g.logger.Warn().Err(err).Msg("sequence unavailable, using fallback id")
	}

	return g.GenerateFallback(side)
}

// GenerateFallback creates a random client order id without the sequence
// store.
func (g *Generator) GenerateFallback(side venue.Side) string {
	unique := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%s-%s-%s", g.instanceID, sideCode(side), FallbackMarker, unique)
}

// IsFallbackID reports whether an id was generated without the sequence
// store.
func IsFallbackID(id string) bool {
	return strings.Contains(id, "-"+FallbackMarker+"-")
}

// Validate checks an id against the venue length and structure limits.
func Validate(id string) error {
	if id == "" {
		return errors.New("client order id cannot be empty")
	}
	if len(id) > MaxClientOrderIDLength {
		return fmt.Errorf("%w: %q is %d characters (max %d)", ErrClientOrderIDTooLong, id, len(id), MaxClientOrderIDLength)
	}
	if len(strings.Split(id, "-")) < 3 {
		return fmt.Errorf("malformed client order id %q", id)
	}
	return nil
}

// ParseSide extracts the trade side from a generated id. The side code is
// the segment after the instance id, but instance ids may themselves contain
// dashes, so scan for the single-character code.
func ParseSide(id string) (venue.Side, error) {
	for _, part := range strings.Split(id, "-") {
		switch part {
		case "B":
			return venue.SideBuy, nil
		case "S":
			return venue.SideSell, nil
		}
	}
	return "", fmt.Errorf("no side code in client order id %q", id)
}

func sideCode(side venue.Side) string {
	if side == venue.SideSell {
		return "S"
	}
	return "B"
}
