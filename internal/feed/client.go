package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yegors/flighttrack/internal/config"
	"github.com/yegors/flighttrack/internal/wire"
	"github.com/yegors/flighttrack/pkg/logger"
)

// TrafficHandler receives the usable records of each decoded traffic
// frame, already filtered to the configured network id
type TrafficHandler func([]wire.AircraftRecord)

// Status is the feed connection state reported on the operational endpoint
type Status struct {
	Connected      bool      `json:"connected"`
	Disabled       bool      `json:"disabled"`
	DisabledReason string    `json:"disabled_reason,omitempty"`
	LastMessageAt  time.Time `json:"last_message_at"`
	Reconnects     int       `json:"reconnects"`
}

// Client maintains the primary traffic stream. It reconnects with
// exponential backoff on transient failures, rotates through the
// configured proxy pool one entry per attempt, and disables itself
// permanently on authentication failures or when the attempt ceiling is
// reached. A disabled feed requires a restart; retrying bad credentials
// only gets the account banned.
type Client struct {
	cfg     config.FeedConfig
	handler TrafficHandler
	log     *logger.Logger
	proxies []*url.URL

	mu             sync.Mutex
	conn           *websocket.Conn
	connected      bool
	disabled       bool
	disabledReason string
	lastMessage    time.Time
	reconnects     int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewClient creates a feed client. The handler is invoked on the reader
// goroutine, one frame at a time.
func NewClient(cfg config.FeedConfig, handler TrafficHandler, log *logger.Logger) (*Client, error) {
	proxies := make([]*url.URL, 0, len(cfg.Proxies))
	for _, raw := range cfg.Proxies {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", raw, err)
		}
		proxies = append(proxies, u)
	}
	return &Client{
		cfg:     cfg,
		handler: handler,
		log:     log.Named("feed"),
		proxies: proxies,
		stopCh:  make(chan struct{}),
	}, nil
}

// Start launches the connection loop
func (c *Client) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
	c.log.Info("Feed client started",
		logger.String("url", c.cfg.URL),
		logger.Uint32("network_id", c.cfg.NetworkID),
		logger.Int("proxies", len(c.proxies)))
}

// Stop closes the connection and waits for the loop to exit
func (c *Client) Stop() {
	close(c.stopCh)
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
	c.wg.Wait()
	c.log.Info("Feed client stopped")
}

// Status returns the current connection state
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Connected:      c.connected,
		Disabled:       c.disabled,
		DisabledReason: c.disabledReason,
		LastMessageAt:  c.lastMessage,
		Reconnects:     c.reconnects,
	}
}

func (c *Client) run(ctx context.Context) {
	attempt := 0
	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		conn, resp, err := c.dial(ctx, attempt)
		if err != nil {
			authFailed := isAuthFailure(resp)
			status := 0
			if resp != nil {
				status = resp.StatusCode
				resp.Body.Close()
			}
			if authFailed {
				c.disable(fmt.Sprintf("authentication rejected (HTTP %d)", status))
				return
			}
			attempt++
			if attempt >= c.cfg.ReconnectMaxAttempts {
				c.disable(fmt.Sprintf("gave up after %d connection attempts", attempt))
				return
			}
			delay := c.backoff(attempt)
			c.log.Warn("Feed connection failed, retrying",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Error(err))
			select {
			case <-time.After(delay):
			case <-c.stopCh:
				return
			case <-ctx.Done():
				return
			}
			continue
		}

		// A successful connection resets the backoff schedule
		attempt = 0
		c.setConn(conn)
		readErr := c.readLoop(conn)
		c.setConn(nil)

		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if websocket.IsCloseError(readErr, websocket.ClosePolicyViolation) {
			c.disable("server closed the stream with a policy violation")
			return
		}
		c.mu.Lock()
		c.reconnects++
		c.mu.Unlock()
		c.log.Warn("Feed connection lost, reconnecting", logger.Error(readErr))
	}
}

func (c *Client) dial(ctx context.Context, attempt int) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: time.Duration(c.cfg.HandshakeTimeoutSecs) * time.Second,
	}
	if len(c.proxies) > 0 {
		proxy := c.proxies[attempt%len(c.proxies)]
		dialer.Proxy = http.ProxyURL(proxy)
		c.log.Debug("Dialing through proxy", logger.String("proxy", proxy.Host))
	}
	return dialer.DialContext(ctx, c.cfg.URL, nil)
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	c.log.Info("Feed connected")
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		records, dropped, err := wire.DecodeTrafficFrame(data)
		if err != nil {
			// The frame is unusable but the stream itself is fine
			c.log.Warn("Dropping malformed traffic frame",
				logger.Int("bytes", len(data)), logger.Error(err))
			continue
		}
		if dropped > 0 {
			c.log.Debug("Skipped unusable aircraft records", logger.Int("dropped", dropped))
		}

		filtered := records[:0]
		for _, rec := range records {
			if rec.NetworkID == c.cfg.NetworkID {
				filtered = append(filtered, rec)
			}
		}

		c.mu.Lock()
		c.lastMessage = time.Now()
		c.mu.Unlock()

		if len(filtered) > 0 {
			c.handler(filtered)
		}
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	base := time.Duration(c.cfg.ReconnectBaseDelaySecs) * time.Second
	return base << (attempt - 1)
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.connected = conn != nil
	c.mu.Unlock()
}

func (c *Client) disable(reason string) {
	c.mu.Lock()
	c.disabled = true
	c.disabledReason = reason
	c.connected = false
	c.mu.Unlock()
	c.log.Error("Feed permanently disabled", logger.String("reason", reason))
}

func isAuthFailure(resp *http.Response) bool {
	return resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden)
}
