package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Prober polls a health URL and feeds the result into a Monitor.
type Prober struct {
	monitor  *Monitor
	url      string
	interval time.Duration
	client   *http.Client
	logger   *zap.Logger
}

// NewProber creates a prober. A zero interval defaults to 15s and a zero
// timeout to 3s.
func NewProber(monitor *Monitor, url string, interval, timeout time.Duration, logger *zap.Logger) *Prober {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{
		monitor:  monitor,
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.Named("prober"),
	}
}

// Probe performs one reachability check and updates the monitor. Any HTTP
// response below 500 counts as reachable.
func (p *Prober) Probe(ctx context.Context) bool {
	reachable := p.check(ctx) == nil
	p.monitor.Set(reachable)
	return reachable
}

func (p *Prober) check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("probe failed", zap.String("url", p.url), zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		err := fmt.Errorf("probe %s: status %d", p.url, resp.StatusCode)
		p.logger.Debug("probe failed", zap.Error(err))
		return err
	}
	return nil
}

// Run probes immediately and then on every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	p.Probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}
