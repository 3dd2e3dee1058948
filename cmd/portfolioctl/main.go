// main.go - Admin control tool for the portfolio analytics service
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"portfolio/internal"
	"portfolio/internal/config"
	"portfolio/internal/database"
	"portfolio/internal/http"
	"portfolio/internal/seeder"
	"portfolio/internal/timeframe"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// Execute runs the command with the given app and args. app is nil when
	// the application could not be initialized.
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// The set of available commands
var commands = []Command{
	&MigrateCommand{},
	&SeedCommand{},
	&StatusCommand{},
	&HashPasswordCommand{in: os.Stdin, out: os.Stdout},
	&StatsCommand{out: os.Stdout},
	&RealtimeCommand{out: os.Stdout},
	&HelpCommand{out: os.Stdout},
}

func main() {
	flag.Parse()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs(os.Args[1:])

	cmd := findCommand(cmdName)
	if cmd == nil {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	var app *internal.Application
	if needsApp(cmd) {
		var err error
		app, err = internal.NewApp()
		if err != nil {
			log.Printf("Warning: Failed to initialize app: %v", err)
		}
	}

	err := cmd.Execute(ctx, app, args)

	if app != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		if shutdownErr := app.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Printf("Warning: Cleanup error: %v", shutdownErr)
		}
		cancelShutdown()
		app.Services.Close()
	}

	if err != nil {
		log.Fatalf("Command failed: %v", err)
	}
}

// needsApp is false for commands that never touch the database.
func needsApp(cmd Command) bool {
	switch cmd.(type) {
	case *HashPasswordCommand, *HelpCommand:
		return false
	}
	return true
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("app initialization failed, cannot run migrations")
	}

	log.Println("Running database migrations...")
	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	log.Println("Migrations completed successfully")
	return nil
}

// SeedCommand populates the DB with sample traffic
type SeedCommand struct{}

func (c *SeedCommand) Name() string        { return "seed" }
func (c *SeedCommand) Description() string { return "Seeds the database with sample traffic" }

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	sessions := fs.Int("sessions", 500, "number of sessions to generate")
	days := fs.Int("days", 30, "spread sessions over this many days")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if app == nil {
		return fmt.Errorf("unable to initialise app")
	}
	if !config.GetConfig().IsDevelopment() {
		return fmt.Errorf("seeding is only allowed in development")
	}

	se := seeder.NewSeeder(app.DBManager.GetConnection(), slog.Default(), *sessions)
	se.Days = *days
	summary, err := se.Run(ctx)
	if err != nil {
		return err
	}
	log.Printf("Seeded %d sessions, %d page views, %d events", summary.Sessions, summary.PageViews, summary.Events)
	return nil
}

// StatusCommand prints row counts and connection pool statistics
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows the current system status" }

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("cannot check status: app initialization failed")
	}

	db := app.DBManager.GetConnection()
	counts, err := database.TableCounts(db)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	log.Println("System Status:")
	log.Println("- Database: Connected")

	tables := make([]string, 0, len(counts))
	for table := range counts {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		log.Printf("- %s: %d rows", table, counts[table])
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}
	stats := sqlDB.Stats()
	log.Printf("- Max Open Connections: %d", stats.MaxOpenConnections)
	log.Printf("- Open Connections: %d", stats.OpenConnections)
	log.Printf("- In Use: %d", stats.InUse)
	log.Printf("- Idle: %d", stats.Idle)
	return nil
}

// HashPasswordCommand prints a bcrypt hash for PORTFOLIO_DASHBOARD_PASSWORD
type HashPasswordCommand struct {
	in  io.Reader
	out io.Writer
}

func (c *HashPasswordCommand) Name() string { return "hash-password" }
func (c *HashPasswordCommand) Description() string {
	return "Prints a bcrypt hash to use as the dashboard password"
}

func (c *HashPasswordCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	var password string
	if len(args) >= 1 {
		password = args[0]
	} else {
		var err error
		password, err = c.prompt()
		if err != nil {
			return err
		}
	}

	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("password cannot be empty")
	}

	hash, err := http.HashDashboardPassword(password)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, hash)
	return nil
}

// prompt reads the password twice without echo when stdin is a terminal,
// and a single line otherwise.
func (c *HashPasswordCommand) prompt() (string, error) {
	if f, ok := c.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(os.Stderr, "Enter dashboard password: ")
		first, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}

		fmt.Fprint(os.Stderr, "Confirm dashboard password: ")
		second, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}

		if string(first) != string(second) {
			return "", fmt.Errorf("passwords do not match")
		}
		return string(first), nil
	}

	line, err := bufio.NewReader(c.in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// StatsCommand prints a stats report as JSON
type StatsCommand struct {
	out io.Writer
}

func (c *StatsCommand) Name() string { return "stats" }
func (c *StatsCommand) Description() string {
	return "Prints the stats report for a range (24h, 7d, 30d, 90d) as JSON"
}

func (c *StatsCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	var value string
	if len(args) >= 1 {
		value = args[0]
	}
	label, err := timeframe.ValidateRange(value)
	if err != nil {
		return err
	}
	if app == nil {
		return fmt.Errorf("app initialization failed, cannot compute stats")
	}

	report, err := app.Services.Engine.ComputeStats(ctx, label)
	if err != nil {
		return err
	}
	for section, message := range report.Errors {
		log.Printf("Warning: section %s failed: %s", section, message)
	}
	return writeJSON(c.out, report)
}

// RealtimeCommand prints the realtime snapshot as JSON
type RealtimeCommand struct {
	out io.Writer
}

func (c *RealtimeCommand) Name() string        { return "realtime" }
func (c *RealtimeCommand) Description() string { return "Prints the realtime snapshot as JSON" }

func (c *RealtimeCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("app initialization failed, cannot compute realtime snapshot")
	}

	report, err := app.Services.Engine.ComputeRealtime(ctx)
	if err != nil {
		return err
	}
	return writeJSON(c.out, report)
}

// HelpCommand implements a command to show usage information
type HelpCommand struct {
	out io.Writer
}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	printUsage(c.out)
	return nil
}

// Helper functions

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseArgs splits the command name from its arguments
func parseArgs(args []string) (string, []string) {
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: portfolioctl [command] [args...]")
	fmt.Fprintln(w, "Available commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %s: %s\n", cmd.Name(), cmd.Description())
	}
}
