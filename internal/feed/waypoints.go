package feed

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yegors/flighttrack/internal/config"
	"github.com/yegors/flighttrack/internal/tracker"
	"github.com/yegors/flighttrack/internal/wire"
	"github.com/yegors/flighttrack/pkg/logger"
)

// WaypointDialer opens the short-lived per-aircraft waypoint channel
// after a landing is detected. Each Stream call owns one connection;
// many can run concurrently and each is independently cancelled through
// its context.
type WaypointDialer struct {
	cfg config.FeedConfig
	log *logger.Logger
}

// NewWaypointDialer creates a waypoint stream dialer
func NewWaypointDialer(cfg config.FeedConfig, log *logger.Logger) *WaypointDialer {
	return &WaypointDialer{cfg: cfg, log: log.Named("waypoints")}
}

// Stream connects the waypoint channel for one reporter and delivers
// decoded waypoints until the context expires or the server closes the
// stream. Returns nil on a normal closure.
func (d *WaypointDialer) Stream(ctx context.Context, reporterID uint32, deliver func(tracker.Waypoint)) error {
	u, err := url.Parse(d.cfg.WaypointURL)
	if err != nil {
		return fmt.Errorf("invalid waypoint URL: %w", err)
	}
	q := u.Query()
	q.Set("reporter", strconv.FormatUint(uint64(reporterID), 10))
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{
		HandshakeTimeout: time.Duration(d.cfg.HandshakeTimeoutSecs) * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to open waypoint channel: %w", err)
	}
	defer conn.Close()

	// ReadMessage has no context awareness; close the socket to unblock
	// it when the collection window ends.
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
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		records, dropped, err := wire.DecodeWaypointFrame(data)
		if err != nil {
			d.log.Warn("Dropping malformed waypoint frame",
				logger.Uint32("reporter_id", reporterID), logger.Error(err))
			continue
		}
		if dropped > 0 {
			d.log.Debug("Skipped unusable waypoint records",
				logger.Uint32("reporter_id", reporterID), logger.Int("dropped", dropped))
		}
		for _, rec := range records {
			deliver(tracker.Waypoint{
				X:       rec.X,
				Y:       rec.Y,
				Airport: rec.Airport,
				Runway:  rec.Runway,
				RateFPM: rec.Value,
				At:      rec.Timestamp,
			})
		}
	}
}
