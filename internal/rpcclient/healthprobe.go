package rpcclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// HealthProbe keeps a lightweight websocket connection open to an RPC
// endpoint's pubsub port purely to detect liveness ahead of a real
// submission, reconnecting with backoff the way the teacher's market
// data client does. It does not relay data; OnDown is invoked when
// the endpoint drops so the pool can be nudged into quarantine early.
type HealthProbe struct {
	url            string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *zap.Logger
	onDown         func()

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewHealthProbe(url string, reconnectDelay, pingInterval time.Duration, onDown func(), log *zap.Logger) *HealthProbe {
	return &HealthProbe{
		url:            url,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		onDown:         onDown,
		log:            log,
	}
}

func (p *HealthProbe) Run(ctx context.Context) error {
	for {
		if err := p.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.fireDown(err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.reconnectDelay):
				continue
			}
		}
		err := p.pingLoop(ctx)
		p.reset()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.fireDown(err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.reconnectDelay):
		}
	}
}

func (p *HealthProbe) connect(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, p.url, nil)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
	return nil
}

func (p *HealthProbe) pingLoop(ctx context.Context) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return errors.New("rpcclient: health probe not connected")
	}
	ticker := time.NewTicker(p.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, p.pingInterval)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func (p *HealthProbe) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		_ = p.conn.Close(websocket.StatusNormalClosure, "reset")
		p.conn = nil
	}
}

func (p *HealthProbe) fireDown(err error) {
	if p.log != nil {
		p.log.Warn("rpc endpoint health probe down", zap.String("url", p.url), zap.Error(err))
	}
	if p.onDown != nil {
		p.onDown()
	}
}
