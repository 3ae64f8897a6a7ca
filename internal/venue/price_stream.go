package venue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// PriceHandler receives streaming mid prices for the traded pair.
type PriceHandler func(price float64, ts time.Time)

// PriceStream maintains a websocket subscription to the venue's price feed
// and forwards ticks to a handler. It reconnects with backoff until the
// context is cancelled. The trading cycle itself never depends on the stream;
// it only enriches the analytics window between cycles.
type PriceStream struct {
	url     string
	pair    string
	logger  zerolog.Logger
	handler PriceHandler

	mu        sync.Mutex
	conn      *websocket.Conn
	lastPrice float64
}

type priceTick struct {
	Pair    string  `json:"pair"`
	Price   float64 `json:"price"`
	TsMilli int64   `json:"ts"`
}

// NewPriceStream creates a price stream client for one pair.
func NewPriceStream(url, pair string, handler PriceHandler, logger zerolog.Logger) *PriceStream {
	return &PriceStream{
		url:     url,
		pair:    pair,
		handler: handler,
		logger:  logger.With().Str("component", "PriceStream").Str("pair", pair).Logger(),
	}
}

// Run connects and pumps ticks until ctx is cancelled.
func (s *PriceStream) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		err := s.connectAndPump(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("price stream disconnected")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// LastPrice returns the most recent streamed price, 0 if none seen yet.
func (s *PriceStream) LastPrice() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPrice
}

func (s *PriceStream) connectAndPump(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	sub := map[string]interface{}{"op": "subscribe", "channel": "price", "pair": s.pair}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}
	s.logger.Info().Msg("price stream connected")

	// Close the connection when ctx is cancelled so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var tick priceTick
		if err := json.Unmarshal(msg, &tick); err != nil {
			s.logger.Debug().Err(err).Msg("skipping unparsable tick")
			continue
		}
		if tick.Pair != s.pair || tick.Price <= 0 {
			continue
		}

		s.mu.Lock()
		s.lastPrice = tick.Price
		s.mu.Unlock()

		if s.handler != nil {
			s.handler(tick.Price, time.UnixMilli(tick.TsMilli))
		}
	}
}
