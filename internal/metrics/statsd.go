package metrics

import (
	"fmt"
	"time"

	statsd "github.com/smira/go-statsd"

	"streamloader/internal/log"
)

type wrappedLogger struct {
	log log.Modular
}

func (w wrappedLogger) Printf(msg string, args ...any) {
	w.log.Warnf(fmt.Sprintf(msg, args...))
}

// Statsd reports loader metrics over the StatsD protocol.
type Statsd struct {
	client *statsd.Client
	tags   []statsd.Tag
	prefix string
}

// NewStatsd dials a statsd client at addr:port, flushing at the given
// period and tagging every metric with the given static tags.
func NewStatsd(host string, port int, prefix string, tags map[string]string, period time.Duration, logger log.Modular) *Statsd {
	addr := fmt.Sprintf("%s:%d", host, port)
	opts := []statsd.Option{
		statsd.FlushInterval(period),
		statsd.Logger(wrappedLogger{log: logger}),
	}
	client := statsd.NewClient(addr, opts...)
	statsdTags := make([]statsd.Tag, 0, len(tags))
	for k, v := range tags {
		statsdTags = append(statsdTags, statsd.StringTag(k, v))
	}
	return &Statsd{client: client, tags: statsdTags, prefix: prefix}
}

func (s *Statsd) path(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "." + name
}

// IncrGood implements Reporter.
func (s *Statsd) IncrGood(n int64) { s.client.Incr(s.path("events.good"), n, s.tags...) }

// IncrBad implements Reporter.
func (s *Statsd) IncrBad(n int64) { s.client.Incr(s.path("events.bad"), n, s.tags...) }

// IncrAck implements Reporter.
func (s *Statsd) IncrAck(n int64) { s.client.Incr(s.path("batches.acked"), n, s.tags...) }

// ObserveInsertLatency implements Reporter.
func (s *Statsd) ObserveInsertLatency(d time.Duration) {
	s.client.Timing(s.path("insert.latency_ms"), d.Milliseconds(), s.tags...)
}

// ObserveBatchSize implements Reporter.
func (s *Statsd) ObserveBatchSize(n int64) {
	s.client.Gauge(s.path("batch.size"), n, s.tags...)
}

// Close implements Reporter.
func (s *Statsd) Close() error {
	return s.client.Close()
}
