package main

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"broker/pkg/cache"
	"broker/pkg/dataset"
)

var cacheCmd = &cli.Command{
	Name:  "cache",
	Usage: "Inspect or clear the shared Redis result cache of broker-svc",
	Subcommands: []*cli.Command{
		{
			Name:   "stats",
			Usage:  "Print cache statistics",
			Action: cacheStats,
		},
		{
			Name:  "clear",
			Usage: "Drop cached results, all of them or only the one for --input",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "input",
					Aliases: []string{"i"},
					Usage:   "specify the problem.csv whose result should be dropped",
				},
			},
			Action: cacheClear,
		},
	},
}

// openSolveCache подключается к кэшу из конфигурации. In-memory кэш живёт
// внутри процесса broker-svc, поэтому снаружи доступен только redis.
func openSolveCache(c *cli.Context) (*cache.SolveCache, func() error, error) {
	cfg := loadedConfig(c)
	if !cfg.Cache.Enabled {
		return nil, nil, errors.New("cache is disabled (cache.enabled)")
	}
	if cfg.Cache.Driver != cache.BackendRedis {
		return nil, nil, fmt.Errorf("cache.driver is %q, only the redis cache is reachable from brokerctl", cfg.Cache.Driver)
	}

	backend, err := cache.New(cache.FromConfig(&cfg.Cache))
	if err != nil {
		return nil, nil, err
	}
	return cache.NewSolveCache(backend, cfg.Cache.DefaultTTL), backend.Close, nil
}

func cacheStats(c *cli.Context) error {
	sc, closeFn, err := openSolveCache(c)
	if err != nil {
		return err
	}
	defer closeFn()

	s, err := sc.Stats(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "backend:  %s\n", s.Backend)
	fmt.Fprintf(c.App.Writer, "keys:     %d\n", s.TotalKeys)
	fmt.Fprintf(c.App.Writer, "memory:   %d bytes\n", s.MemoryBytes)
	fmt.Fprintf(c.App.Writer, "hit rate: %.2f (%d hits, %d misses)\n", s.HitRate, s.Hits, s.Misses)
	return nil
}

func cacheClear(c *cli.Context) error {
	sc, closeFn, err := openSolveCache(c)
	if err != nil {
		return err
	}
	defer closeFn()

	if path := c.String("input"); path != "" {
		p, err := dataset.LoadFile(path)
		if err != nil {
			return err
		}
		if err := sc.Invalidate(c.Context, p); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "dropped cached result for %s\n", path)
		return nil
	}

	n, err := sc.InvalidateAll(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "dropped %d cached results\n", n)
	return nil
}
