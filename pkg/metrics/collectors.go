package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheState снимок кэша результатов на момент скрейпа
type CacheState struct {
	Keys        int64
	Hits        int64
	Misses      int64
	Evictions   int64
	MemoryBytes int64
}

// StateSource источники состояния сервиса, nil-поля пропускаются
type StateSource struct {
	Cache   func(ctx context.Context) (CacheState, error)
	History func(ctx context.Context) (int64, error) // число сохранённых расчётов
}

// StateCollector опрашивает кэш и историю при каждом скрейпе.
// Ошибка источника не роняет скрейп, а выставляет state_source_up в 0.
type StateCollector struct {
	src     StateSource
	timeout time.Duration

	cacheKeys      *prometheus.Desc
	cacheHits      *prometheus.Desc
	cacheMisses    *prometheus.Desc
	cacheEvictions *prometheus.Desc
	cacheMemory    *prometheus.Desc
	calculations   *prometheus.Desc
	sourceUp       *prometheus.Desc
}

// NewStateCollector создаёт коллектор; timeout ограничивает опрос одного источника
func NewStateCollector(namespace, subsystem string, src StateSource, timeout time.Duration) *StateCollector {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, nil)
	}
	return &StateCollector{
		src:            src,
		timeout:        timeout,
		cacheKeys:      desc("solve_cache_keys", "Results currently held in the solve cache"),
		cacheHits:      desc("solve_cache_backend_hits_total", "Hits reported by the cache backend"),
		cacheMisses:    desc("solve_cache_backend_misses_total", "Misses reported by the cache backend"),
		cacheEvictions: desc("solve_cache_evictions_total", "Entries evicted by the in-memory cache"),
		cacheMemory:    desc("solve_cache_memory_bytes", "Memory used by cached results"),
		calculations:   desc("history_calculations", "Calculations stored in history"),
		sourceUp:       desc("state_source_up", "Whether the last poll of a state source succeeded", "source"),
	}
}

// InitStateCollector регистрирует коллектор в prometheus.DefaultRegisterer
func InitStateCollector(namespace, subsystem string, src StateSource) *StateCollector {
	c := NewStateCollector(namespace, subsystem, src, 0)
	prometheus.MustRegister(c)
	return c
}

// Describe implements prometheus.Collector
func (c *StateCollector) Describe(ch chan<- *prometheus.Desc) {
	if c.src.Cache != nil {
		ch <- c.cacheKeys
		ch <- c.cacheHits
		ch <- c.cacheMisses
		ch <- c.cacheEvictions
		ch <- c.cacheMemory
	}
	if c.src.History != nil {
		ch <- c.calculations
	}
	ch <- c.sourceUp
}

// Collect implements prometheus.Collector
func (c *StateCollector) Collect(ch chan<- prometheus.Metric) {
	if c.src.Cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		s, err := c.src.Cache(ctx)
		cancel()
		c.up(ch, "cache", err)
		if err == nil {
			ch <- prometheus.MustNewConstMetric(c.cacheKeys, prometheus.GaugeValue, float64(s.Keys))
			ch <- prometheus.MustNewConstMetric(c.cacheHits, prometheus.CounterValue, float64(s.Hits))
			ch <- prometheus.MustNewConstMetric(c.cacheMisses, prometheus.CounterValue, float64(s.Misses))
			ch <- prometheus.MustNewConstMetric(c.cacheEvictions, prometheus.CounterValue, float64(s.Evictions))
			ch <- prometheus.MustNewConstMetric(c.cacheMemory, prometheus.GaugeValue, float64(s.MemoryBytes))
		}
	}

	if c.src.History != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		n, err := c.src.History(ctx)
		cancel()
		c.up(ch, "history", err)
		if err == nil {
			ch <- prometheus.MustNewConstMetric(c.calculations, prometheus.GaugeValue, float64(n))
		}
	}
}

func (c *StateCollector) up(ch chan<- prometheus.Metric, source string, err error) {
	v := 1.0
	if err != nil {
		v = 0
	}
	ch <- prometheus.MustNewConstMetric(c.sourceUp, prometheus.GaugeValue, v, source)
}
