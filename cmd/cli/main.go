package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/app"
	"github.com/dvloznov/finance-ledger/internal/config"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"github.com/rs/zerolog"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	commands := map[string]func(*app.App, zerolog.Logger, []string){
		"debts":       runDebts,
		"create":      runCreate,
		"pay":         runPay,
		"settle":      runSettle,
		"plan":        runPlan,
		"credit":      runCredit,
		"simulate":    runSimulate,
		"buy":         runBuy,
		"balances":    runBalances,
		"rate":        runRate,
		"migrate-ids": runMigrateIDs,
		"backups":     runBackups,
	}

	switch os.Args[1] {
	case "help", "-h", "--help":
		printUsage()
		return
	}
	run, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal().Err(err).Msg("Failed to load config")
	}
	logger.SetLevel(cfg.Log.Level)
	log := logger.NewFromFormat(cfg.Log.Format)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	a, err := app.New(ctx, cfg, log)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger")
	}
	defer a.Close()

	run(a, log, os.Args[2:])
}

func printUsage() {
	fmt.Println("Debt Ledger CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  debts        List debts (pending only unless -all)")
	fmt.Println("  create       Record a new debt")
	fmt.Println("  pay          Apply a partial payment to a pending debt")
	fmt.Println("  settle       Pay off a debt and post the expense")
	fmt.Println("  plan         Split a purchase into biweekly installments")
	fmt.Println("  credit       Show available revolving credit")
	fmt.Println("  simulate     Compute the down payment for a purchase on credit")
	fmt.Println("  buy          Record a purchase on a revolving line")
	fmt.Println("  balances     Show balances by location and currency")
	fmt.Println("  rate         Show or override the exchange rate")
	fmt.Println("  migrate-ids  Renumber every debt in purchase-date order")
	fmt.Println("  backups      List or take worksheet snapshots in Cloud Storage")
	fmt.Println("  help         Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func commandContext(log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	return logger.WithContext(ctx, log), cancel
}

func fail(log zerolog.Logger, err error, msg string) {
	log.Fatal().Err(err).Str("detail", domain.UserMessage(err)).Msg(msg)
}

func parseDate(log zerolog.Logger, name, raw string) *civil.Date {
	if raw == "" {
		return nil
	}
	d, err := civil.ParseDate(raw)
	if err != nil {
		log.Fatal().Err(err).Str(name, raw).Msg("Error: invalid date format, expected YYYY-MM-DD")
	}
	return &d
}

func runDebts(a *app.App, log zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("debts", flag.ExitOnError)
	all := fs.Bool("all", false, "Include settled debts")
	fs.Parse(args)

	ctx, cancel := commandContext(log)
	defer cancel()

	debts, err := a.Ledger.ListDebts(ctx, !*all)
	if err != nil {
		fail(log, err, "Failed to list debts")
	}
	if len(debts) == 0 {
		fmt.Println("No debts.")
		return
	}

	var owed float64
	fmt.Printf("%-10s %-10s %-30s %10s %10s %10s %-9s %s\n", "ID", "DATE", "DESCRIPTION", "TOTAL", "PAID", "REMAINING", "STATUS", "NEXT DUE")
	for _, d := range debts {
		due := "-"
		if d.NextDueDate != nil {
			due = d.NextDueDate.String()
		}
		fmt.Printf("%-10s %-10s %-30s %10.2f %10.2f %10.2f %-9s %s\n",
			d.ID, d.PurchaseDate, truncate(d.Description, 30), d.TotalAmount, d.PaidAmount, d.RemainingAmount, d.Status, due)
		if d.Pending() {
			owed += d.RemainingAmount
		}
	}
	fmt.Printf("\nTotal owed: %.2f\n", domain.RoundCents(owed))
}

func runCreate(a *app.App, log zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	description := fs.String("description", "", "What was bought (required)")
	total := fs.Float64("total", 0, "Total amount in USD (required)")
	initial := fs.Float64("initial", 0, "Initial payment already made")
	kind := fs.String("kind", "", "Debt kind: daily, principal, custody or normal (append \"imported\" to mark imports)")
	purchased := fs.String("date", "", "Purchase date YYYY-MM-DD (defaults to today)")
	due := fs.String("due", "", "Next due date YYYY-MM-DD")
	fs.Parse(args)

	if *description == "" || *total <= 0 {
		log.Fatal().Msg("Usage: cli create -description TEXT -total AMOUNT [-initial AMOUNT] [-kind KIND]")
	}

	ctx, cancel := commandContext(log)
	defer cancel()

	created, err := a.Ledger.CreateDebt(ctx, ledger.NewDebt{
		Description:    *description,
		TotalAmount:    *total,
		InitialPayment: *initial,
		Kind:           domain.ParseKind(*kind),
		PurchaseDate:   parseDate(log, "date", *purchased),
		DueDate:        parseDate(log, "due", *due),
		Source:         "cli",
	})
	if err != nil {
		fail(log, err, "Failed to create debt")
	}
	fmt.Printf("Created %s (%s): %.2f remaining, %s\n", created.ID, created.Kind, created.Remaining, created.Status)
}

func runPay(a *app.App, log zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("pay", flag.ExitOnError)
	reference := fs.String("ref", "", "Debt ID or part of its description (required)")
	amount := fs.Float64("amount", 0, "Payment amount in USD (required)")
	fs.Parse(args)

	if *reference == "" || *amount <= 0 {
		log.Fatal().Msg("Usage: cli pay -ref ID_OR_TEXT -amount AMOUNT")
	}

	ctx, cancel := commandContext(log)
	defer cancel()

	p, err := a.Ledger.RecordInstallmentPayment(ctx, *reference, *amount)
	if err != nil {
		fail(log, err, "Failed to record payment")
	}
	fmt.Println(p.Message)
	if len(p.Ambiguous) > 0 {
		fmt.Printf("Note: %q also matched %s\n", *reference, strings.Join(p.Ambiguous, ", "))
	}
}

func runSettle(a *app.App, log zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("settle", flag.ExitOnError)
	id := fs.String("id", "", "Debt ID (required)")
	date := fs.String("date", "", "Payment date YYYY-MM-DD (defaults to today)")
	rate := fs.Float64("rate", 0, "Exchange rate to use instead of looking one up")
	fs.Parse(args)

	if *id == "" {
		log.Fatal().Msg("Usage: cli settle -id DEBT_ID [-date YYYY-MM-DD] [-rate RATE]")
	}

	ctx, cancel := commandContext(log)
	defer cancel()

	paid := parseDate(log, "date", *date)
	day := civil.DateOf(time.Now())
	if paid != nil {
		day = *paid
	}
	r := *rate
	if r <= 0 {
		var err error
		if r, err = a.Rates.RateFor(ctx, paid); err != nil {
			fail(log, err, "Failed to look up settlement rate")
		}
	}

	s, err := a.Ledger.SettleDebtFully(ctx, *id, day, r)
	if err != nil {
		fail(log, err, "Failed to settle debt")
	}
	fmt.Println(s.Message)

	if err := a.Recorder.Post(ctx, s.Expense); err != nil {
		fail(log, err, "Debt settled but the expense was not posted")
	}
	fmt.Printf("Posted expense of %.2f %s at rate %.2f\n", -s.Expense.SignedAmount, s.Expense.Currency, r)
}

func runPlan(a *app.App, log zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	description := fs.String("description", "", "What was bought (required)")
	amount := fs.Float64("amount", 0, "Amount of each installment (required)")
	count := fs.Int("count", 0, "Number of installments (required)")
	start := fs.String("start", "", "First due date YYYY-MM-DD (defaults to today)")
	line := fs.String("line", "", "Revolving line the plan draws on")
	fs.Parse(args)

	if *description == "" || *amount <= 0 || *count <= 0 {
		log.Fatal().Msg("Usage: cli plan -description TEXT -amount AMOUNT -count N [-start YYYY-MM-DD]")
	}

	ctx, cancel := commandContext(log)
	defer cancel()

	startDate := civil.DateOf(time.Now())
	if d := parseDate(log, "start", *start); d != nil {
		startDate = *d
	}
	plan, err := a.Ledger.CreateInstallmentPlan(ctx, ledger.PlanRequest{
		Description:       *description,
		InstallmentAmount: *amount,
		Count:             *count,
		StartDate:         startDate,
		Line:              *line,
		Source:            "cli",
	})
	if err != nil {
		if len(plan.IDs) > 0 {
			log.Error().Strs("created", plan.IDs).Msg("Plan only partially created")
		}
		fail(log, err, "Failed to create installment plan")
	}
	fmt.Println(plan.Message)
	fmt.Printf("IDs: %s\n", strings.Join(plan.IDs, ", "))
}

func runCredit(a *app.App, log zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("credit", flag.ExitOnError)
	fs.Parse(args)

	ctx, cancel := commandContext(log)
	defer cancel()

	lines, err := a.Ledger.AvailableCredit(ctx)
	if err != nil {
		fail(log, err, "Failed to compute available credit")
	}
	fmt.Printf("%-10s %10s %10s %10s\n", "LINE", "USED", "LIMIT", "AVAILABLE")
	for _, l := range lines {
		fmt.Printf("%-10s %10.2f %10.2f %10.2f\n", l.Line, l.Used, l.Limit, l.Available)
	}
}

func runSimulate(a *app.App, log zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	amount := fs.Float64("amount", 0, "Purchase amount in USD (required)")
	line := fs.String("line", "daily", "Revolving line: daily or principal")
	fs.Parse(args)

	if *amount <= 0 {
		log.Fatal().Msg("Usage: cli simulate -amount AMOUNT [-line daily|principal]")
	}

	ctx, cancel := commandContext(log)
	defer cancel()

	sim, err := a.Ledger.SimulatePurchase(ctx, *amount, *line)
	if err != nil {
		fail(log, err, "Simulation failed")
	}
	printSimulation(sim)
}

func runBuy(a *app.App, log zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("buy", flag.ExitOnError)
	description := fs.String("description", "", "What was bought (required)")
	amount := fs.Float64("amount", 0, "Purchase amount in USD (required)")
	line := fs.String("line", "daily", "Revolving line: daily or principal")
	date := fs.String("date", "", "Purchase date YYYY-MM-DD (defaults to today)")
	fs.Parse(args)

	if *description == "" || *amount <= 0 {
		log.Fatal().Msg("Usage: cli buy -description TEXT -amount AMOUNT [-line daily|principal]")
	}

	ctx, cancel := commandContext(log)
	defer cancel()

	purchaseDate := parseDate(log, "date", *date)
	p, err := a.Ledger.PurchaseOnCredit(ctx, ledger.PurchaseRequest{
		Description:  *description,
		Amount:       *amount,
		Line:         *line,
		PurchaseDate: purchaseDate,
		Source:       "cli",
	})
	if err != nil {
		fail(log, err, "Purchase failed")
	}
	printSimulation(p.Simulation)
	fmt.Printf("Recorded %s: %.2f remaining\n", p.Debt.ID, p.Debt.Remaining)

	if p.Simulation.DownPayment > 0 {
		if _, err := a.Recorder.SaveDownPayment(ctx, p.Debt.ID, *description, p.Simulation.DownPayment, purchaseDate); err != nil {
			fail(log, err, "Debt recorded but down payment expense not saved")
		}
		fmt.Printf("Down payment of %.2f USD saved to transactions\n", p.Simulation.DownPayment)
	}
}

func printSimulation(sim ledger.Simulation) {
	fmt.Printf("Line:          %s\n", sim.Line)
	fmt.Printf("Available:     %.2f\n", sim.AvailableBefore)
	fmt.Printf("Down payment:  %.2f\n", sim.DownPayment)
	fmt.Printf("Financed:      %.2f\n", sim.FinanceAmount)
	if sim.Adjusted {
		fmt.Println("The down payment was raised to fit the available credit.")
	}
}

func runBalances(a *app.App, log zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("balances", flag.ExitOnError)
	location := fs.String("location", "", "Show only this location")
	fs.Parse(args)

	ctx, cancel := commandContext(log)
	defer cancel()

	if *location != "" {
		report, err := a.Aggregator.LocationBalance(ctx, *location)
		if err != nil {
			fail(log, err, "Failed to compute location balance")
		}
		fmt.Printf("%s\n", report.Location)
		for _, h := range report.Holdings {
			fmt.Printf("  %-5s %14.2f  (%s)\n", h.Currency, h.Amount, usd(h.USD, h.Converted))
		}
		fmt.Printf("Total: %.2f USD\n", report.TotalUSD)
		return
	}

	p, err := a.Aggregator.Portfolio(ctx)
	if err != nil {
		fail(log, err, "Failed to compute balances")
	}
	fmt.Printf("%-15s %-5s %14s %14s\n", "LOCATION", "CUR", "AMOUNT", "USD")
	for _, h := range p.Holdings {
		fmt.Printf("%-15s %-5s %14.2f %14s\n", h.Location, h.Currency, h.Amount, usd(h.USD, h.Converted))
	}
	fmt.Printf("\nPortfolio: %.2f USD (rate %.2f)\n", p.TotalUSD, p.CurrentRate)
}

func usd(v float64, converted bool) string {
	if !converted {
		return "no rate"
	}
	return fmt.Sprintf("%.2f USD", v)
}

func runRate(a *app.App, log zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("rate", flag.ExitOnError)
	date := fs.String("date", "", "Look up the historical rate for YYYY-MM-DD")
	set := fs.Float64("set", 0, "Set a manual override for this process")
	fs.Parse(args)

	ctx, cancel := commandContext(log)
	defer cancel()

	if d := parseDate(log, "date", *date); d != nil {
		r, err := a.Rates.HistoricalRate(ctx, *d)
		if err != nil {
			fail(log, err, "Historical rate unavailable")
		}
		fmt.Printf("%s: %.2f\n", d, r)
		return
	}
	if *set > 0 {
		if err := a.Rates.SetManualOverride(ctx, *set); err != nil {
			fail(log, err, "Failed to set manual rate")
		}
	}
	info := a.Rates.Info(ctx)
	fmt.Printf("Rate: %.2f (%s)\n", info.Rate, info.Source)
	if info.LastAPI > 0 {
		fmt.Printf("Last API rate: %.2f\n", info.LastAPI)
	}
}

func runMigrateIDs(a *app.App, log zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("migrate-ids", flag.ExitOnError)
	withBackup := fs.Bool("backup", true, "Snapshot both worksheets to Cloud Storage first")
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	if *withBackup {
		b, err := a.Backup(ctx)
		if err != nil {
			fail(log, err, "Backup unavailable, rerun with -backup=false to skip it")
		}
		snaps, err := b.Tables(ctx, a.BackupTables()...)
		if err != nil {
			fail(log, err, "Backup failed")
		}
		for _, s := range snaps {
			if err := b.Verify(ctx, s); err != nil {
				fail(log, err, "Backup verification failed")
			}
			fmt.Printf("Backed up %s (%d rows) to %s\n", s.Table, s.Rows, s.URI)
		}
	}

	m, err := a.Ledger.MigrateLegacyIDs(ctx)
	if err != nil {
		fail(log, err, "Migration failed")
	}
	fmt.Printf("Renumbered %d of %d debts.\n", m.Renamed, m.Total)
}

func runBackups(a *app.App, log zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("backups", flag.ExitOnError)
	take := fs.Bool("take", false, "Snapshot both worksheets now")
	limit := fs.Int("n", 5, "Snapshots to list per table")
	fs.Parse(args)

	ctx, cancel := commandContext(log)
	defer cancel()

	b, err := a.Backup(ctx)
	if err != nil {
		fail(log, err, "Backup unavailable")
	}

	if *take {
		snaps, err := b.Tables(ctx, a.BackupTables()...)
		if err != nil {
			fail(log, err, "Backup failed")
		}
		for _, s := range snaps {
			fmt.Printf("Backed up %s (%d rows) to %s\n", s.Table, s.Rows, s.URI)
		}
		return
	}

	for _, t := range a.BackupTables() {
		stored, err := b.List(ctx, t.Name)
		if err != nil {
			fail(log, err, "Failed to list backups")
		}
		fmt.Printf("%s: %d snapshots\n", t.Name, len(stored))
		for i, s := range stored {
			if i == *limit {
				break
			}
			fmt.Printf("  %s  %8d bytes  %s\n", s.Taken.Format(time.RFC3339), s.Size, s.URI)
		}
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
