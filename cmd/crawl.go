package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/keiba-crawler/internal/api"
	"github.com/JakeFAU/keiba-crawler/internal/app"
	"github.com/JakeFAU/keiba-crawler/internal/orchestrator"
)

const (
	dayLayout    = "20060102"
	defaultStart = "20080101"
)

type sessionFlags struct {
	proxies    []string
	offline    bool
	statusAddr string
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.proxies, "proxy", nil, "upstream proxy for one fetch session (repeatable)")
	cmd.Flags().BoolVar(&f.offline, "offline", false, "use cached pages only; never fetch")
	cmd.Flags().StringVar(&f.statusAddr, "status-addr", "", "serve /status, /healthz and /metrics on this address while crawling")
}

// newCrawlCmd creates the 'crawl' command and its phases.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs a crawl phase",
	}
	cmd.AddCommand(newCrawlRacesCmd())
	cmd.AddCommand(newCrawlDetailsCmd())
	return cmd
}

func newCrawlRacesCmd() *cobra.Command {
	var (
		flags      sessionFlags
		start, end string
	)
	cmd := &cobra.Command{
		Use:   "races",
		Short: "Crawls calendars, race lists and race results between two dates",
		Long: `Crawls calendars, race lists and race results between --start and --end.
--start defaults to 20080101 and --end defaults to today in crawler.timezone.`,
		Example: `  keiba-crawler crawl races
  keiba-crawler crawl races --start 20240101 --end 20240131
  keiba-crawler crawl races --start 20240101 --end 20241231 --proxy http://p1:8080 --proxy http://p2:8080`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			from, to, err := dayRange(start, end, time.Now().In(a.Config().Location()))
			if err != nil {
				return err
			}
			return runCrawl(cmd, flags, func(ctx context.Context, o *orchestrator.Orchestrator) (orchestrator.Summary, error) {
				return o.RunRaces(ctx, from, to)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&start, "start", defaultStart, "first day, YYYYMMDD")
	cmd.Flags().StringVar(&end, "end", "", "last day, YYYYMMDD (default today)")
	return cmd
}

func newCrawlDetailsCmd() *cobra.Command {
	var (
		flags sessionFlags
		shard orchestrator.Shard
	)
	cmd := &cobra.Command{
		Use:   "details",
		Short: "Caches horse and pedigree pages of every stored horse",
		Long: `Caches the horse and pedigree pages of every horse id known to the sink.
Run several processes with --shards N and distinct --shard values to split the work.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := shard.Validate(); err != nil {
				return err
			}
			return runCrawl(cmd, flags, func(ctx context.Context, o *orchestrator.Orchestrator) (orchestrator.Summary, error) {
				return o.RunDetails(ctx, shard)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&shard.Index, "shard", 0, "index of this process's shard")
	cmd.Flags().IntVar(&shard.Count, "shards", 1, "total number of shards")
	return cmd
}

type phaseFunc func(context.Context, *orchestrator.Orchestrator) (orchestrator.Summary, error)

func runCrawl(cmd *cobra.Command, flags sessionFlags, phase phaseFunc) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	logger := a.Logger()

	fetchers, err := a.Sessions(ctx, app.SessionOptions{Offline: flags.offline, Proxies: flags.proxies})
	if err != nil {
		return err
	}
	o := a.Orchestrator(fetchers, flags.offline)

	addr := flags.statusAddr
	if addr == "" {
		addr = a.Config().Status.Addr
	}

	crawlCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(crawlCtx)
	if addr != "" {
		srv := api.NewServer(o, a.Checks(), logger)
		g.Go(func() error { return srv.ListenAndServe(gctx, addr) })
	}

	var summary orchestrator.Summary
	g.Go(func() error {
		defer stop()
		var runErr error
		summary, runErr = phase(gctx, o)
		return runErr
	})
	err = g.Wait()

	logger.Info("crawl finished",
		zap.String("run_id", summary.RunID),
		zap.Int("fetched", summary.Fetched),
		zap.Int("cache_hits", summary.CacheHits),
		zap.Int("races", summary.Races),
		zap.Int("rows", summary.Rows),
		zap.Int("failures", len(summary.Failures)),
	)
	if perr := printSummary(cmd.OutOrStdout(), summary); perr != nil {
		logger.Warn("print summary failed", zap.Error(perr))
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func printSummary(w io.Writer, s orchestrator.Summary) error {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle("run " + s.RunID)
	t.AppendRows([]table.Row{
		{"fetched", s.Fetched},
		{"cache hits", s.CacheHits},
		{"races", s.Races},
		{"rows", s.Rows},
		{"failures", len(s.Failures)},
		{"elapsed", s.Finished.Sub(s.Started).Round(time.Millisecond)},
	})
	for _, f := range s.Failures {
		t.AppendRow(table.Row{f.Stage, fmt.Sprintf("%s: %v", f.Key, f.Err)})
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func parseDay(name, value string) (time.Time, error) {
	day, err := time.Parse(dayLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must be YYYYMMDD: %w", name, err)
	}
	return day, nil
}

// dayRange parses the crawl bounds. An empty end resolves to the calendar day
// of today.
func dayRange(start, end string, today time.Time) (time.Time, time.Time, error) {
	from, err := parseDay("start", start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end == "" {
		end = today.Format(dayLayout)
	}
	to, err := parseDay("end", end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}
