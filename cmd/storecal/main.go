package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"

	"storecal/internal/agenda"
	"storecal/internal/calendar"
	"storecal/internal/config"
	"storecal/internal/datemath"
	"storecal/internal/ics"
	appLog "storecal/internal/log"
	"storecal/internal/metrics"
	"storecal/internal/notify"
	"storecal/internal/notify/redisbus"
	"storecal/internal/present"
	"storecal/internal/store"
	"storecal/internal/store/memory"
	"storecal/internal/store/postgres"
	"storecal/internal/web"
)

const version = "0.3.0"

type flagConfig struct {
	configPath string
	envFile    string
	listen     string
	once       bool
	watch      bool
	business   string
	view       string
	filter     string
}

func main() {
	appLog.Info("storecal starting", "version", version)
	defer appLog.Sync()

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if err := config.ApplyEnv(conf, flags.envFile); err != nil {
		appLog.Error("failed to apply environment", err, "env_file", flags.envFile)
		os.Exit(1)
	}
	// CLI --listen overrides config file and environment.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	loc, _ := conf.Location()

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"postgres", conf.DatabaseDSN != "",
		"redis", conf.RedisURL != "",
		"expand_recurring", conf.Expand(),
		"refresh", conf.RefreshCron,
		"feeds", len(conf.HolidayFeeds),
		"once", flags.once,
		"watch", flags.watch,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, conf, loc, flags); err != nil {
		appLog.Error("storecal failed", err)
		appLog.Sync()
		os.Exit(1)
	}
	appLog.Info("storecal exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./storecal.yaml", "Path to config file")
	flag.StringVar(&cfg.envFile, "env", ".env", "Optional dotenv file with STORECAL_* overrides")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Import feeds, print the agenda of -business and exit")
	flag.BoolVar(&cfg.watch, "watch", false, "Keep the agenda of -business on the terminal, redrawn on every change")
	flag.StringVar(&cfg.business, "business", "", "Business id for -once and -watch")
	flag.StringVar(&cfg.view, "view", "week", "Agenda view: day, week, month or list")
	flag.StringVar(&cfg.filter, "filter", "all", "Agenda type filter")

	flag.Parse()

	return cfg
}

func run(ctx context.Context, conf *config.Config, loc *time.Location, flags flagConfig) error {
	view, err := datemath.ParseViewType(flags.view)
	if err != nil {
		return err
	}
	if (flags.once || flags.watch) && flags.business == "" {
		return errors.New("-once and -watch need -business")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	st, closeStore, poolStats, err := openStore(ctx, conf)
	if err != nil {
		return err
	}
	defer closeStore()

	bus, closeBus, err := openBus(ctx, conf)
	if err != nil {
		return err
	}
	defer closeBus()

	svc := calendar.NewService(st, bus, calendar.Options{
		Location:               loc,
		SkipExpansion:          !conf.Expand(),
		MaxOccurrencesPerEvent: conf.MaxOccurrencesPerEvent,
		Metrics:                m,
	})

	importer := ics.NewImporter(ics.NewFetcher(conf.FeedCacheDir, &http.Client{Timeout: 30 * time.Second}), svc, loc, m)
	feeds := feedsFromConfig(conf.HolidayFeeds)

	agendaQuery := func() calendar.Query {
		return calendar.ViewQuery(flags.business, time.Now().In(loc), view, present.ParseFilter(flags.filter), loc)
	}
	title := fmt.Sprintf("%s · %s", flags.business, view)

	if flags.once {
		if len(feeds) > 0 {
			if err := importer.Run(ctx, feeds); err != nil {
				appLog.Error("feed import finished with errors", err)
			}
		}
		res, err := svc.FetchWindow(ctx, agendaQuery())
		if err != nil {
			fmt.Println(agenda.RenderError(title, err))
			return err
		}
		fmt.Println(agenda.Render(title, res.Occurrences, loc))
		return nil
	}

	sched := cron.New(cron.WithLocation(loc))
	if len(feeds) > 0 {
		if _, err := sched.AddFunc(conf.RefreshCron, func() {
			if err := importer.Run(ctx, feeds); err != nil {
				appLog.Error("scheduled feed import finished with errors", err)
			}
		}); err != nil {
			return fmt.Errorf("schedule feed refresh: %w", err)
		}
		go func() {
			if err := importer.Run(ctx, feeds); err != nil {
				appLog.Error("initial feed import finished with errors", err)
			}
		}()
	}
	if poolStats != nil {
		if _, err := sched.AddFunc("@every 30s", func() { m.RecordDBPoolStats(poolStats()) }); err != nil {
			return fmt.Errorf("schedule pool stats: %w", err)
		}
	}

	if flags.watch {
		v, err := calendar.NewView(svc, bus)
		if err != nil {
			return err
		}
		defer v.Close()
		v.OnChange(func(s calendar.Snapshot) {
			switch s.State {
			case calendar.StateSuccess:
				fmt.Print("\033[H\033[2J" + agenda.Render(title, s.Occurrences, loc) + "\n")
			case calendar.StateError:
				fmt.Print("\033[H\033[2J" + agenda.RenderError(title, s.Err) + "\n")
			}
		})
		v.Request(agendaQuery())
		// Days-until labels and the "today" window move at midnight.
		if _, err := sched.AddFunc("@midnight", func() { v.Request(agendaQuery()) }); err != nil {
			return fmt.Errorf("schedule midnight refresh: %w", err)
		}
	}

	sched.Start()
	defer func() {
		<-sched.Stop().Done()
	}()

	srv := web.NewServer(svc, web.Options{
		BasicAuth:    conf.BasicAuth,
		Metrics:      m,
		Gatherer:     reg,
		CalendarName: "storecal",
	})
	err = srv.ListenAndServe(ctx, conf.Listen)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// openStore picks Postgres when a DSN is configured and the in-memory store
// otherwise. poolStats is nil for the memory store.
func openStore(ctx context.Context, conf *config.Config) (store.Store, func(), func() sql.DBStats, error) {
	if conf.DatabaseDSN == "" {
		appLog.Info("store: using in-memory store; data is lost on exit")
		return memory.New(nil), func() {}, nil, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	pg, err := postgres.Connect(connectCtx, conf.DatabaseDSN)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := pg.Migrate(connectCtx); err != nil {
		_ = pg.Close()
		return nil, nil, nil, fmt.Errorf("migrate: %w", err)
	}
	appLog.Info("store: connected to postgres")
	closeFn := func() {
		if err := pg.Close(); err != nil {
			appLog.Error("store: close postgres failed", err)
		}
	}
	return pg, closeFn, pg.Stats, nil
}

func openBus(ctx context.Context, conf *config.Config) (notify.Bus, func(), error) {
	if conf.RedisURL == "" {
		return notify.NewMemory(), func() {}, nil
	}
	rb, err := redisbus.Dial(ctx, conf.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	appLog.Info("notify: using redis change bus")
	return rb, func() {
		if err := rb.Close(); err != nil {
			appLog.Error("notify: close redis failed", err)
		}
	}, nil
}

func feedsFromConfig(in []config.FeedConfig) []ics.Feed {
	out := make([]ics.Feed, 0, len(in))
	for _, f := range in {
		out = append(out, ics.Feed{
			ID:                f.ID,
			Name:              f.Name,
			URL:               f.URL,
			BusinessID:        f.BusinessID,
			Communities:       f.Communities,
			DemandIncreasePct: f.DemandIncreasePct,
		})
	}
	return out
}
