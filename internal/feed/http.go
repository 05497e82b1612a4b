package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/internal/types"
)

// HTTPPoller is a minimal PriceFeed that polls a price endpoint
// (e.g. a Jupiter price API) on a fixed interval, grounded on the
// teacher's internal/hl/rest.Client request pattern. Like the other
// adapters in this module, it exists only to make the CLI runnable
// end-to-end; the spec places the real oracle transport deliberately
// out of scope.
type HTTPPoller struct {
	url      string
	interval time.Duration
	http     *http.Client

	cancel context.CancelFunc
}

func NewHTTPPoller(url string, interval time.Duration, timeout time.Duration) *HTTPPoller {
	return &HTTPPoller{url: url, interval: interval, http: &http.Client{Timeout: timeout}}
}

type priceResponse struct {
	Price      string `json:"price"`
	Confidence string `json:"confidence,omitempty"`
}

func (p *HTTPPoller) Subscribe(ctx context.Context) (<-chan types.PriceTick, <-chan error) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	ticks := make(chan types.PriceTick)
	errs := make(chan error, 1)

	go func() {
		defer close(ticks)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tick, err := p.fetch(ctx)
				if err != nil {
					select {
					case errs <- err:
					default:
					}
					continue
				}
				select {
				case ticks <- tick:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ticks, errs
}

func (p *HTTPPoller) fetch(ctx context.Context) (types.PriceTick, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return types.PriceTick{}, err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return types.PriceTick{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return types.PriceTick{}, fmt.Errorf("price feed http %d: %s", resp.StatusCode, string(body))
	}
	var pr priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return types.PriceTick{}, err
	}
	price, err := decimal.NewFromString(pr.Price)
	if err != nil {
		return types.PriceTick{}, fmt.Errorf("parse price: %w", err)
	}
	tick := types.PriceTick{Price: price, Timestamp: time.Now()}
	if pr.Confidence != "" {
		if conf, err := decimal.NewFromString(pr.Confidence); err == nil {
			tick.Confidence = conf
			tick.HasConfidence = true
		}
	}
	return tick, nil
}

func (p *HTTPPoller) Close() error {
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}
