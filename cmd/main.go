package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cli/browser"
	"github.com/spf13/cobra"

	"github.com/Zachdehooge/forest-loss-dashboard/internal/analytics"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/apperrors"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/chart"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/generator"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/output"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/query"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/server"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/stats"
)

var (
	cfgFile    string
	verbose    bool
	addr       string
	openPage   bool
	county     string
	fromYear   int
	toYear     int
	year       int
	metricName string
	outputFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "forest-loss",
		Short: "Liberia forest loss dashboard",
		Long: `Forest Loss tracks annual tree-cover loss in Liberia from the Hansen
Global Forest Change dataset, computed on Google Earth Engine, and serves it
as an interactive map with per-county statistics.`,
		RunE:          runServe,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./.forestloss.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	addServeFlags(rootCmd)

	addServeCmd(rootCmd)
	addStatsCmd(rootCmd)
	addCountiesCmd(rootCmd)
	addExportCmd(rootCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		report(err)
		os.Exit(1)
	}
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8501)")
	cmd.Flags().BoolVar(&openPage, "open", false, "Open the dashboard in a browser")
}

func addServeCmd(rootCmd *cobra.Command) {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web dashboard",
		RunE:  runServe,
	}
	addServeFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	tracker := analytics.New(a.cfg.Analytics, a.logger)
	defer tracker.Close()

	srv := server.New(server.Deps{
		Config:    a.cfg,
		Reference: a.ref,
		Catalog:   a.catalog,
		Builder:   a.builder,
		Stats:     a.stats,
		Maps:      a.view,
		Tiles:     a.view.Tiles(),
		Metrics:   a.metrics,
		Analytics: tracker,
		Logger:    a.logger,
	})

	listen := addr
	if listen == "" {
		listen = a.cfg.Server.Addr
	}
	if openPage {
		url := localURL(listen)
		go func() {
			time.Sleep(500 * time.Millisecond)
			if err := browser.OpenURL(url); err != nil {
				a.logger.Warn("could not open browser", "url", url, "error", err)
			}
		}()
	}

	if err := srv.Run(ctx, listen); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// localURL turns a listen address like ":8501" into a browsable URL.
func localURL(listen string) string {
	if strings.HasPrefix(listen, ":") {
		return "http://localhost" + listen + "/"
	}
	return "http://" + listen + "/"
}

// addStatsCmd adds a 'stats' subcommand printing yearly loss for one county
func addStatsCmd(rootCmd *cobra.Command) {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print yearly forest loss for a county",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			sel := query.Selection{County: county, From: fromYear, To: toYear}
			if sel.County == "" {
				sel.County = a.catalog.National()
			}
			if sel.From == 0 {
				sel.From = a.ref.FirstYear()
			}
			if sel.To == 0 {
				sel.To = a.ref.LastYear()
			}

			rows, err := a.stats.Select(cmd.Context(), sel)
			if err != nil {
				return err
			}

			p := output.NewPrinter()
			p.Header(fmt.Sprintf("Forest loss, %s", sel))
			if err := output.StatsTable(p.Out(), rows); err != nil {
				return err
			}
			if last, ok := stats.Latest(rows); ok {
				p.Info("Cumulative loss %d-%d: %s ha (%.2f%% of %d forest)",
					a.ref.FirstYear(), last.Year, p.Loss(chart.Thousands(last.CumulativeHa)), last.Percent, a.ref.BaseYear())
			}
			return nil
		},
	}

	statsCmd.Flags().StringVarP(&county, "county", "c", "", "County name (default the national total)")
	statsCmd.Flags().IntVar(&fromYear, "from", 0, "First year (default 2001)")
	statsCmd.Flags().IntVar(&toYear, "to", 0, "Last year (default 2024)")
	rootCmd.AddCommand(statsCmd)
}

// addCountiesCmd adds a 'counties' subcommand listing the catalog, or with
// --year comparing counties for that year
func addCountiesCmd(rootCmd *cobra.Command) {
	countiesCmd := &cobra.Command{
		Use:   "counties",
		Short: "List counties, or compare their loss with --year",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			p := output.NewPrinter()
			if year == 0 {
				p.Header(fmt.Sprintf("Counties of %s", a.ref.Country()))
				for _, name := range a.catalog.Counties() {
					fmt.Fprintln(p.Out(), name)
				}
				return nil
			}

			rows, err := a.stats.CountyComparison(cmd.Context(), year)
			if err != nil {
				return err
			}
			p.Header(fmt.Sprintf("Loss by county, %d-%d", a.ref.FirstYear(), year))
			return output.CountiesTable(p.Out(), rows)
		},
	}

	countiesCmd.Flags().IntVar(&year, "year", 0, "Compare counties through this year")
	rootCmd.AddCommand(countiesCmd)
}

// addExportCmd adds an 'export' subcommand writing a static dashboard page
func addExportCmd(rootCmd *cobra.Command) {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write a static HTML dashboard and JSON snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			name := county
			if name == "" {
				name = a.catalog.National()
			}
			through := year
			if through == 0 {
				through = a.ref.LastYear()
			}
			if err := a.builder.Validate(query.SingleYear(name, through)); err != nil {
				return err
			}
			metric := chart.ParseMetric(metricName)

			sel := query.Selection{County: name, From: a.ref.FirstYear(), To: through}
			rows, err := a.stats.Select(ctx, sel)
			if err != nil {
				return err
			}
			countyRows, err := a.stats.CountyComparison(ctx, through)
			if err != nil {
				return err
			}

			trend, err := chart.Trend(rows, chart.TrendOptions{Metric: metric})
			if err != nil {
				return err
			}
			bars, err := chart.Counties(countyRows, metric)
			if err != nil {
				return err
			}

			m, err := a.view.Outline(ctx, sel, countyRows)
			if err != nil {
				return err
			}

			snapshot, err := generator.Export(outputFile, generator.Page{
				Selection:     sel,
				Counties:      a.catalog.Options(),
				FirstYear:     a.ref.FirstYear(),
				LastYear:      a.ref.LastYear(),
				BaseYear:      a.ref.BaseYear(),
				Metric:        metric,
				Rows:          rows,
				CountyRows:    countyRows,
				Map:           m,
				MapHeight:     a.cfg.Map.Height,
				TrendChart:    generator.DataURI(trend),
				CountiesChart: generator.DataURI(bars),
				GeneratedAt:   time.Now(),
			})
			if err != nil {
				return err
			}

			p := output.NewPrinter()
			p.Success("Dashboard saved to %s", outputFile)
			p.Info("Snapshot saved to %s", snapshot)
			return nil
		},
	}

	exportCmd.Flags().StringVarP(&outputFile, "output", "o", "liberia.html", "Output HTML file path")
	exportCmd.Flags().StringVarP(&county, "county", "c", "", "County name (default the national total)")
	exportCmd.Flags().IntVar(&year, "year", 0, "Show loss through this year (default 2024)")
	exportCmd.Flags().StringVar(&metricName, "metric", "cumulative", "Chart metric: cumulative or annual")
	rootCmd.AddCommand(exportCmd)
}

// report prints err for a person. Internal errors keep their full chain.
func report(err error) {
	reportTo(output.NewPrinter(), err)
}

func reportTo(p *output.Printer, err error) {
	if apperrors.CodeOf(err) == apperrors.CodeInternal {
		p.Error("%v", err)
		return
	}
	p.Error("%s", apperrors.UserMessage(err))
}
