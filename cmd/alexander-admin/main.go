// Package main is the entry point for the Alexander Library admin CLI.
// This tool provides administrative commands for managing users, tokens,
// categories and lending operations.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/prn-tf/alexander-library/internal/app"
	"github.com/prn-tf/alexander-library/internal/config"
	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/logging"
	"github.com/prn-tf/alexander-library/internal/repository"
	"github.com/prn-tf/alexander-library/internal/service"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// defaultReminderWindow selects reservations due within two days.
const defaultReminderWindow = 48 * time.Hour

// command is one "<group> <action>" entry point.
type command struct {
	usage string
	run   func(ctx context.Context, a *app.App, args []string) error
}

var commands = map[string]command{
	"user create":    {"--email <email> [--name <name>] [--role USER|LIBRARIAN]", userCreate},
	"user list":      {"[--limit n] [--offset n]", userList},
	"user blacklist": {"--as <librarian-email> --id <user-id> [--remove]", userBlacklist},
	"token issue":    {"--email <email>", tokenIssue},
	"category add":   {"--as <librarian-email> --name <name> [--description <text>]", categoryAdd},
	"reminders send": {"--as <librarian-email> [--within 48h]", remindersSend},
	"audit":          {"--book <book-id>", audit},
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("Alexander Library Admin CLI\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		return
	case "help", "-h", "--help":
		printUsage()
		return
	}

	name, args := os.Args[1], os.Args[2:]
	cmd, ok := commands[name]
	if !ok && len(args) > 0 {
		name = name + " " + args[0]
		cmd, ok = commands[name]
		args = args[1:]
	}
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
		printUsage()
		os.Exit(1)
	}

	if err := execute(cmd, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func execute(cmd command, args []string) error {
	// --config is read here; each command's flag set declares it too.
	global := flag.NewFlagSet("global", flag.ContinueOnError)
	global.ParseErrorsWhitelist.UnknownFlags = true
	global.SetOutput(nopWriter{})
	configPath := global.StringP("config", "c", "", "path to the configuration file")
	_ = global.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger.With().Str("component", "admin").Logger(), app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	return cmd.run(ctx, a, args)
}

// =============================================================================
// Users and tokens
// =============================================================================

func userCreate(ctx context.Context, a *app.App, args []string) error {
	fs := newFlagSet("user create")
	email := fs.String("email", "", "email address")
	name := fs.String("name", "", "display name")
	role := fs.String("role", string(domain.RoleUser), "USER or LIBRARIAN")
	if err := fs.Parse(args); err != nil {
		return err
	}

	out, err := a.Users.Create(ctx, service.CreateUserInput{
		Email: *email,
		Name:  *name,
		Role:  domain.Role(*role),
	})
	if err != nil {
		return err
	}
	fmt.Printf("Created user %d <%s> with role %s\n", out.User.ID, out.User.Email, out.User.Role)
	return nil
}

func userList(ctx context.Context, a *app.App, args []string) error {
	fs := newFlagSet("user list")
	limit := fs.Int("limit", 50, "page size")
	offset := fs.Int("offset", 0, "page offset")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// Listing bypasses the actor check; the CLI runs with operator rights.
	page, err := a.Repos.User.List(ctx, repository.ListOptions{Limit: *limit, Offset: *offset})
	if err != nil {
		return err
	}
	for _, u := range page.Items {
		note := ""
		if u.IsBlacklisted {
			note = " (blacklisted)"
		}
		fmt.Printf("%6d  %-10s %s%s\n", u.ID, u.Role, u.Email, note)
	}
	fmt.Printf("%d of %d users\n", len(page.Items), page.Total)
	return nil
}

func userBlacklist(ctx context.Context, a *app.App, args []string) error {
	fs := newFlagSet("user blacklist")
	as := fs.String("as", "", "email of the acting librarian")
	id := fs.Int64("id", 0, "user id")
	remove := fs.Bool("remove", false, "lift the blacklist instead of setting it")
	if err := fs.Parse(args); err != nil {
		return err
	}

	actor, err := lookupActor(ctx, a, *as)
	if err != nil {
		return err
	}
	user, err := a.Users.SetBlacklisted(ctx, service.SetBlacklistedInput{
		Actor:       actor,
		UserID:      *id,
		Blacklisted: !*remove,
	})
	if err != nil {
		return err
	}
	fmt.Printf("User %d blacklisted: %t\n", user.ID, user.IsBlacklisted)
	return nil
}

func tokenIssue(ctx context.Context, a *app.App, args []string) error {
	fs := newFlagSet("token issue")
	email := fs.String("email", "", "email of the token subject")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if a.Tokens == nil {
		return errors.New("auth.jwt_secret is not configured")
	}

	user, err := a.Users.GetByEmail(ctx, *email)
	if err != nil {
		return err
	}
	token, expires, err := a.Tokens.Issue(user)
	if err != nil {
		return err
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expires.Format(time.RFC3339))
	return nil
}

// =============================================================================
// Catalog and lending
// =============================================================================

func categoryAdd(ctx context.Context, a *app.App, args []string) error {
	fs := newFlagSet("category add")
	as := fs.String("as", "", "email of the acting librarian")
	name := fs.String("name", "", "category name")
	description := fs.String("description", "", "category description")
	if err := fs.Parse(args); err != nil {
		return err
	}

	actor, err := lookupActor(ctx, a, *as)
	if err != nil {
		return err
	}
	category, err := a.Categories.AddCategory(ctx, service.AddCategoryInput{
		Actor:       actor,
		Name:        *name,
		Description: *description,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Created category %d %q\n", category.ID, category.Name)
	return nil
}

func remindersSend(ctx context.Context, a *app.App, args []string) error {
	fs := newFlagSet("reminders send")
	as := fs.String("as", "", "email of the acting librarian")
	within := fs.Duration("within", defaultReminderWindow, "remind reservations due within this window")
	if err := fs.Parse(args); err != nil {
		return err
	}

	actor, err := lookupActor(ctx, a, *as)
	if err != nil {
		return err
	}
	out, err := a.Reservations.SendDueReminders(ctx, service.SendDueRemindersInput{
		Actor:  actor,
		Within: *within,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Queued %d reminders\n", out.Queued)
	return nil
}

func audit(ctx context.Context, a *app.App, args []string) error {
	fs := newFlagSet("audit")
	bookID := fs.Int64("book", 0, "book id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	result, err := a.Coordinator.Audit(ctx, *bookID)
	if err != nil {
		return err
	}
	fmt.Printf("Book %d: status=%s total=%d available=%d active=%d\n",
		result.BookID, result.Status, result.TotalCopies, result.AvailableCopies, result.ActiveReservations)
	if !result.Consistent() {
		return fmt.Errorf("book %d is inconsistent", result.BookID)
	}
	fmt.Println("OK")
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

func lookupActor(ctx context.Context, a *app.App, email string) (*domain.User, error) {
	if email == "" {
		return nil, errors.New("--as is required")
	}
	return a.Users.GetByEmail(ctx, email)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringP("config", "c", "", "path to the configuration file")
	return fs
}

func sortedCommandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func printUsage() {
	fmt.Println(`Alexander Library Admin CLI

Usage:
  alexander-admin <command> [--config path] [arguments]

Commands:`)
	for _, name := range sortedCommandNames() {
		fmt.Printf("  %-16s %s\n", name, commands[name].usage)
	}
	fmt.Println(`  version          Print version information
  help             Show this help message

Examples:
  alexander-admin user create --email admin@example.com --role LIBRARIAN
  alexander-admin token issue --email admin@example.com
  alexander-admin category add --as admin@example.com --name Fiction
  alexander-admin reminders send --as admin@example.com --within 24h
  alexander-admin audit --book 42`)
}
