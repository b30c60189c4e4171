// Package storyctl implements the storykeeper admin command line: schema
// migration and account creation against a PostgreSQL database.
package storyctl

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/storykeeper/internal/common"
	"github.com/dmitrijs2005/storykeeper/internal/flagx"
	"github.com/dmitrijs2005/storykeeper/internal/server/auth"
	"github.com/dmitrijs2005/storykeeper/internal/server/config"
	"github.com/dmitrijs2005/storykeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/storykeeper/internal/server/services"
	"golang.org/x/term"
)

const usage = `usage: storyctl <command> [flags]

commands:
  migrate                               apply database migrations
  create-user -name NAME -email EMAIL   create an account (password is prompted)

Database and other settings come from the server configuration
(environment, .env, -c config.json, -d DSN).`

var (
	// readPassword is a test seam for term.ReadPassword.
	readPassword = term.ReadPassword

	openDB = func(dsn string) (*sql.DB, error) {
		return sql.Open("pgx", dsn)
	}

	runMigrations = func(ctx context.Context, db *sql.DB) error {
		return repomanager.NewPostgresRepositoryManager().RunMigrations(ctx, db)
	}
)

var ErrUsage = errors.New(usage)

// Run executes the command named by args[0].
func Run(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	if len(args) == 0 {
		return ErrUsage
	}

	switch args[0] {
	case "migrate":
		return migrate(ctx, cfg, out)
	case "create-user":
		return createUser(ctx, cfg, args[1:], out)
	case "help", "-h", "--help":
		fmt.Fprintln(out, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%w", args[0], ErrUsage)
	}
}

func connect(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	if cfg.DatabaseDSN == "" {
		return nil, errors.New("a database DSN is required (DATABASE_DSN or -d)")
	}
	db, err := openDB(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}

func migrate(ctx context.Context, cfg *config.Config, out io.Writer) error {
	db, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := runMigrations(ctx, db); err != nil {
		return err
	}
	fmt.Fprintln(out, "migrations applied")
	return nil
}

func createUser(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	var name, email string

	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&name, "name", "", "full name")
	fs.StringVar(&email, "email", "", "email address")
	if err := fs.Parse(flagx.FilterArgs(args, []string{"-name", "-email"})); err != nil {
		return err
	}
	if name == "" || email == "" {
		return fmt.Errorf("-name and -email are required\n%w", ErrUsage)
	}

	password, err := promptPassword(out)
	if err != nil {
		return err
	}

	db, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	us := services.NewUserService(db, repomanager.NewPostgresRepositoryManager(), auth.NewIssuer(cfg.SecretKey, cfg.TokenTTL), cfg)
	u, _, err := us.Register(ctx, name, email, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "created user %s (%s)\n", u.Email, u.ID)
	return nil
}

// promptPassword reads the password twice without echo. The raw buffers
// are wiped before returning.
func promptPassword(out io.Writer) (string, error) {
	fmt.Fprint(out, "Enter password: ")
	first, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(first)

	fmt.Fprint(out, "Repeat password: ")
	second, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(second)

	if subtle.ConstantTimeCompare(first, second) != 1 {
		return "", errors.New("passwords do not match")
	}
	if len(first) == 0 {
		return "", errors.New("password must not be empty")
	}
	return string(first), nil
}
