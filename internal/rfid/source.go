package rfid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
)

// Frame is the JSON message a reader gateway sends per tag observation.
type Frame struct {
	EPC  string  `json:"epc"`
	RSSI float64 `json:"rssi"`
}

// WebSocketSource reads tag frames from a reader gateway and feeds them to a
// matcher for one session. It reconnects after a dropped connection.
type WebSocketSource struct {
	URL            string
	SessionID      int64
	ReconnectDelay time.Duration

	matcher *Matcher
	logger  zerolog.Logger
}

// NewWebSocketSource creates a source bound to a matcher and session.
func NewWebSocketSource(url string, sessionID int64, m *Matcher) *WebSocketSource {
	return &WebSocketSource{
		URL:            url,
		SessionID:      sessionID,
		ReconnectDelay: 2 * time.Second,
		matcher:        m,
		logger:         m.logger.With().Str("reader", url).Logger(),
	}
}

// Run connects and forwards frames until ctx is cancelled.
func (s *WebSocketSource) Run(ctx context.Context) error {
	for {
		err := s.stream(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Warn().Err(err).Dur("retry_in", s.ReconnectDelay).Msg("reader connection lost")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.ReconnectDelay):
		}
	}
}

func (s *WebSocketSource) stream(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, s.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial reader: %w", err)
	}
	defer conn.CloseNow()

	s.logger.Info().Int64("session", s.SessionID).Msg("reader connected")

	for {
		var f Frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			if errors.Is(err, context.Canceled) || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("failed to read frame: %w", err)
		}
		if f.EPC == "" {
			continue
		}
		read := Read{SessionID: s.SessionID, EPC: f.EPC, RSSI: f.RSSI, At: time.Now()}
		if err := s.matcher.Submit(ctx, read); err != nil {
			return err
		}
	}
}
