// Command ledgersync replicates bank ledgers into a local SQLite store and
// reconstructs daily balance history from the replica.
//
// Subcommands:
//
//	sync      pull accounts and transactions from the remote ledger source
//	history   print reconstructed daily balances
//	export    write CSV and chart exports
//	simulate  replay matched transfers into a benchmark position
//	status    show recent sync runs
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/finvault/ledgersync/internal/app"
	"github.com/finvault/ledgersync/internal/common"
	"github.com/finvault/ledgersync/internal/models"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: ledgersync <command> [flags]

Commands:
  sync       Sync accounts and transactions from the remote ledger source
  history    Print reconstructed daily balance history
  export     Write transactions, accounts, and balance history exports
  simulate   Simulate matched transfers as benchmark purchases
  status     Show recent sync runs

Flags:
  -config    Path to config file (default: ledgersync.toml next to binary)

Run "ledgersync <command> -h" for command-specific flags.
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var run func(ctx context.Context, a *app.App, args []string) error
	switch command {
	case "sync":
		run = runSync
	case "history":
		run = runHistory
	case "export":
		run = runExport
	case "simulate":
		run = runSimulate
	case "status":
		run = runStatus
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		usage()
		os.Exit(2)
	}

	configPath := os.Getenv("LEDGERSYNC_CONFIG")
	// Peel off a leading -config flag shared by every subcommand.
	filtered := args[:0:0]
	for i := 0; i < len(args); i++ {
		if args[i] == "-config" && i+1 < len(args) {
			configPath = args[i+1]
			i++
			continue
		}
		filtered = append(filtered, args[i])
	}

	a, err := app.NewApp(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, a, filtered); err != nil {
		a.Logger.Error().Err(err).Str("command", command).Msg("Command failed")
		os.Exit(1)
	}
}

func runSync(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	full := fs.Bool("full", false, "force a full sync regardless of last run age")
	quiet := fs.Bool("quiet", false, "suppress the startup banner")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !*quiet {
		common.PrintBanner(a.Config, a.Logger)
	}

	stats, err := a.SyncService.Run(ctx, *full)
	if err != nil {
		return err
	}

	fmt.Printf("Synced %d accounts (%d failed): %d transactions (%d new, %d updated, %d skipped)\n",
		stats.AccountsSynced, stats.AccountsFailed, stats.TransactionsSynced,
		stats.NewTransactions, stats.UpdatedTransactions, stats.SkippedRecords)
	if stats.AccountsFailed > 0 {
		return fmt.Errorf("%d account(s) failed to sync", stats.AccountsFailed)
	}
	return nil
}

func runHistory(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	days := fs.Int("days", 30, "number of most recent days to print (0 for all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	balances, err := a.HistoryService.Reconstruct(ctx)
	if err != nil {
		return err
	}
	if len(balances) == 0 {
		fmt.Println("No balance history available - run sync first")
		return nil
	}

	rows := a.HistoryService.Pivot(balances)
	if *days > 0 && len(rows) > *days {
		rows = rows[:*days]
	}

	fmt.Printf("%-12s %14s %14s\n", "DATE", "TOTAL", "CHANGE")
	for _, row := range rows {
		change := ""
		if row.PortfolioChange != nil {
			change = row.PortfolioChange.StringFixed(2)
		}
		fmt.Printf("%-12s %14s %14s\n",
			row.Date.Format(models.DateLayout), row.PortfolioTotal.StringFixed(2), change)
	}
	return nil
}

func runExport(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	what := fs.String("what", "all", "what to export: transactions, accounts, history, chart, all")
	if err := fs.Parse(args); err != nil {
		return err
	}

	type exporter struct {
		name string
		fn   func(context.Context) (string, error)
	}
	var exports []exporter
	switch *what {
	case "transactions":
		exports = []exporter{{"transactions", a.ExportService.ExportTransactionsCSV}}
	case "accounts":
		exports = []exporter{{"accounts", a.ExportService.ExportAccountsCSV}}
	case "history":
		exports = []exporter{{"history", a.ExportService.ExportBalanceHistoryCSV}}
	case "chart":
		exports = []exporter{{"chart", a.ExportService.ExportBalanceChart}}
	case "all":
		exports = []exporter{
			{"transactions", a.ExportService.ExportTransactionsCSV},
			{"accounts", a.ExportService.ExportAccountsCSV},
			{"history", a.ExportService.ExportBalanceHistoryCSV},
			{"chart", a.ExportService.ExportBalanceChart},
		}
	default:
		return fmt.Errorf("unknown export target: %s", *what)
	}

	for _, e := range exports {
		path, err := e.fn(ctx)
		if err != nil {
			return fmt.Errorf("export %s: %w", e.name, err)
		}
		fmt.Printf("Wrote %s\n", path)
	}
	return nil
}

func runSimulate(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	symbol := fs.String("symbol", a.Config.Simulate.BenchmarkSymbol, "benchmark symbol")
	pattern := fs.String("pattern", a.Config.Simulate.TransferPattern, "transfer description pattern")
	if err := fs.Parse(args); err != nil {
		return err
	}

	result, err := a.SimulationService.Run(ctx, *symbol, *pattern)
	if err != nil {
		return err
	}

	fmt.Printf("Simulated %d buys of %s (%d transfers skipped)\n",
		len(result.Buys), result.Symbol, len(result.SkippedTransfers))
	for _, buy := range result.Buys {
		fmt.Printf("  %s  %10s -> %12s shares @ %s\n",
			buy.Transfer.Date.Format(models.DateLayout),
			buy.Transfer.Amount.StringFixed(2), buy.Shares.String(), buy.Price.StringFixed(2))
	}
	fmt.Printf("Total invested: %s\n", result.TotalInvested.StringFixed(2))
	fmt.Printf("Final combined value: %s\n", result.FinalValue.StringFixed(2))
	return nil
}

func runStatus(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	limit := fs.Int("limit", 10, "number of recent runs to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	runs, err := a.Storage.Ledger().ListSyncRuns(ctx, *limit)
	if err != nil {
		return err
	}
	fmt.Printf("ledgersync %s\n\n", common.VersionString())
	if len(runs) == 0 {
		fmt.Println("No sync runs recorded")
		return nil
	}

	fmt.Printf("%-36s %-12s %-11s %-20s %8s %6s %8s\n",
		"RUN", "TYPE", "STATUS", "STARTED", "TXNS", "NEW", "DURATION")
	for _, run := range runs {
		duration := ""
		if run.CompletedAt != nil {
			duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Printf("%-36s %-12s %-11s %-20s %8d %6d %8s\n",
			run.ID, run.SyncType, run.Status,
			run.StartedAt.Format("2006-01-02 15:04:05"),
			run.Stats.TransactionsSynced, run.Stats.NewTransactions, duration)
		if run.Error != "" {
			fmt.Printf("    error: %s\n", run.Error)
		}
	}
	return nil
}
