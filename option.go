package presale

import (
	"github.com/vitwit/presale/logger"
	"github.com/vitwit/presale/metrics"
	"github.com/vitwit/presale/verification"
)

type Option func(*Presale)

func WithLogger(l logger.Logger) Option {
	return func(p *Presale) {
		p.log = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(p *Presale) {
		p.rec = r
	}
}

// WithScheduler overrides the poll-wait clock; tests inject a fake here
// so verification runs without real delays.
func WithScheduler(s verification.Scheduler) Option {
	return func(p *Presale) {
		p.sched = s
	}
}
