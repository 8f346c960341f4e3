package health

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Push sends the default registry to a Prometheus pushgateway.
// Short-lived runs use this instead of being scraped.
func Push(ctx context.Context, url, job string, labels map[string]string) error {
	p := push.New(url, job).Gatherer(prometheus.DefaultGatherer)
	for k, v := range labels {
		p = p.Grouping(k, v)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
