package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"llmarena/internal/arena"
	"llmarena/internal/config"
	"llmarena/internal/domain"
	"llmarena/internal/market"
	"llmarena/internal/store"
	"llmarena/internal/util"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: arena <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  run           Run a trading session for all competitors\n")
	fmt.Fprintf(os.Stderr, "  status        Show the competitor leaderboard\n")
	fmt.Fprintf(os.Stderr, "  next-session  Print the next upcoming session\n")
	fmt.Fprintf(os.Stderr, "  init-db       Create the database schema and register competitors\n")
	fmt.Fprintf(os.Stderr, "  export        Export trades and equity curves to Parquet\n")
	fmt.Fprintf(os.Stderr, "  version       Print the arena version\n")
	fmt.Fprintf(os.Stderr, "\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	if os.Args[1] == "version" {
		fmt.Printf("arena %s\n", version)
		return
	}

	cfgPath := "config/arena.yaml"
	if p := os.Getenv("ARENA_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	util.SetDefault(util.NewLogger(cfg.Logging.Level))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	switch os.Args[1] {
	case "run":
		err = cmdRun(ctx, cfg, st, os.Args[2:])
	case "status":
		err = cmdStatus(ctx, st)
	case "next-session":
		err = cmdNextSession(ctx, cfg, st)
	case "init-db":
		err = cmdInitDB(ctx, cfg, st)
	case "export":
		err = cmdExport(ctx, cfg, st)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func cmdRun(ctx context.Context, cfg *config.Config, st store.Store, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	sessionFlag := fs.String("session", "", "session type: OPEN or CLOSE (default: decided by the gate)")
	marketFlag := fs.String("market", "us_equity", "market: us_equity or crypto")
	dateFlag := fs.String("date", "", "session date YYYY-MM-DD (default: today)")
	dryRun := fs.Bool("dry-run", false, "invoke agents but execute and persist nothing")
	force := fs.Bool("force", false, "skip the session gate window check")
	fs.Parse(args)

	marketType := domain.MarketType(*marketFlag)
	adapters, err := buildAdapters(cfg)
	if err != nil {
		return err
	}
	if _, ok := adapters[marketType]; !ok {
		return fmt.Errorf("market %s is not enabled", marketType)
	}

	now := time.Now()
	sessionDate := *dateFlag
	if sessionDate == "" {
		sessionDate = now.Format("2006-01-02")
	}

	sessionType := domain.SessionType(*sessionFlag)
	gate := arena.NewGate(adapters, st, cfg.DomainCompetitors())

	if sessionType == "" {
		next, ok, err := gate.NextSession(ctx, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no upcoming session found")
		}
		sessionType = next.SessionType
		marketType = next.Market
	}

	if !*force {
		ok, reason, err := gate.ShouldRun(ctx, marketType, sessionType, now)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Printf("gate closed: %s\n", reason)
			return nil
		}
	}

	var enricher market.Enricher
	if key := cfg.Markets.USEquity.AlphaVantageKey; key != "" && cfg.Markets.USEquity.Enabled {
		enricher = market.NewAlphaVantageClient(key)
	}

	runner := arena.NewRunner(st, adapters, arena.RunnerConfig{
		Competitors:     cfg.DomainCompetitors(),
		Tickers:         cfg.Tickers(),
		SlippageBps:     cfg.Sim.SlippageBps,
		FeeBps:          cfg.Sim.FeeBps,
		MaxRetries:      cfg.Agents.MaxRetries,
		DailyCallLimits: cfg.DailyCallLimits(),
		APIKeys:         cfg.APIKeys(),
		HistoryDays:     cfg.Sim.HistoryDays,
		HeadlineLimit:   cfg.Sim.HeadlineLimit,
		Enricher:        enricher,
	})

	results, err := runner.RunSession(ctx, marketType, sessionType, sessionDate, *dryRun)
	if err != nil {
		return err
	}

	fmt.Printf("%s %s session on %s:\n", marketType, sessionType, sessionDate)
	for id, res := range results {
		switch res.Status {
		case arena.StatusRan:
			fmt.Printf("  %-12s ran: %d fills, equity %.2f -> %.2f",
				id, len(res.Fills), res.EquityBefore, res.EquityAfter)
			if len(res.Errors) > 0 {
				fmt.Printf(" (%d errors)", len(res.Errors))
			}
			fmt.Println()
		case arena.StatusSkipped:
			fmt.Printf("  %-12s skipped: %s\n", id, res.SkipReason)
		case arena.StatusFailed:
			fmt.Printf("  %-12s failed: %s\n", id, res.Err)
		}
	}
	return nil
}

func cmdStatus(ctx context.Context, st store.Store) error {
	board, err := st.Leaderboard(ctx)
	if err != nil {
		return err
	}
	if len(board) == 0 {
		fmt.Println("no competitors registered (run init-db first)")
		return nil
	}

	fmt.Printf("%-4s %-16s %-24s %12s %9s %9s %7s\n",
		"#", "NAME", "MODEL", "EQUITY", "RETURN", "MAX DD", "TRADES")
	for i, e := range board {
		fmt.Printf("%-4d %-16s %-24s %12.2f %8.2f%% %8.2f%% %7d\n",
			i+1, e.Name, e.Model, e.CurrentEquity,
			e.TotalReturn*100, e.MaxDrawdown*100, e.NumTrades)
	}
	return nil
}

func cmdNextSession(ctx context.Context, cfg *config.Config, st store.Store) error {
	adapters, err := buildAdapters(cfg)
	if err != nil {
		return err
	}

	gate := arena.NewGate(adapters, st, cfg.DomainCompetitors())
	next, ok, err := gate.NextSession(ctx, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("no session in the next 7 days")
		return nil
	}
	fmt.Printf("next session: %s %s at %s (in %s)\n",
		next.Market, next.SessionType,
		next.Time.Format(time.RFC3339),
		time.Until(next.Time).Round(time.Minute))
	return nil
}

func cmdInitDB(ctx context.Context, cfg *config.Config, st store.Store) error {
	if err := st.Init(ctx); err != nil {
		return err
	}
	for _, c := range cfg.DomainCompetitors() {
		if err := st.SaveCompetitor(ctx, c); err != nil {
			return err
		}
		fmt.Printf("registered competitor %s (%s / %s)\n", c.ID, c.Provider, c.Model)
	}
	fmt.Printf("database ready at %s\n", cfg.Storage.SQLitePath)
	return nil
}

func cmdExport(ctx context.Context, cfg *config.Config, st store.Store) error {
	exporter := store.NewExporter(st, cfg.Storage.ExportDir)
	paths, err := exporter.ExportAll(ctx)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Println("nothing to export")
		return nil
	}
	for _, p := range paths {
		fmt.Println(p)
	}
	return nil
}

// buildAdapters constructs an adapter for each enabled market.
func buildAdapters(cfg *config.Config) (map[domain.MarketType]market.Adapter, error) {
	adapters := make(map[domain.MarketType]market.Adapter)

	if cfg.Markets.USEquity.Enabled {
		eq, err := market.NewEquityAdapter(
			cfg.Markets.USEquity.APIKey,
			cfg.Markets.USEquity.APISecret,
			cfg.Markets.USEquity.BaseURL,
			cfg.Markets.USEquity.Feed,
		)
		if err != nil {
			return nil, fmt.Errorf("creating equity adapter: %w", err)
		}
		adapters[domain.MarketUSEquity] = eq
	}

	if cfg.Markets.Crypto.Enabled {
		cr, err := market.NewCryptoAdapter(
			cfg.Markets.Crypto.APIKey,
			cfg.Markets.Crypto.SessionTimes,
			cfg.Markets.Crypto.Timezone,
		)
		if err != nil {
			return nil, fmt.Errorf("creating crypto adapter: %w", err)
		}
		adapters[domain.MarketCrypto] = cr
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no markets enabled in config")
	}
	return adapters, nil
}
