// Package admin implements the operator command line: seeding accounts
// (including the first administrator, which self-registration can never
// create), hashing a password for manual provisioning and minting tokens.
//
// Usage:
//
//	libraryctl create-user -u alice -r Admin [-d DSN] [-c config.json]
//	libraryctl hash
//	libraryctl token -u alice -r Admin [-s SECRET]
//
// Store and secret settings come from the same sources as the server
// (defaults, -c JSON file, LIBRARY_* environment, short flags).
package admin

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dmitrijs2005/libraryauth/internal/cryptox"
	"github.com/dmitrijs2005/libraryauth/internal/flagx"
	"github.com/dmitrijs2005/libraryauth/internal/logging"
	"github.com/dmitrijs2005/libraryauth/internal/server/auth"
	"github.com/dmitrijs2005/libraryauth/internal/server/config"
	"github.com/dmitrijs2005/libraryauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/libraryauth/internal/server/services"
)

var ErrUnknownCommand = errors.New("unknown command")

const usage = `usage: libraryctl <command> [flags]

commands:
  create-user -u NAME [-r Admin|User]   create an account, prompting for its password
  hash                                  print a salt and hash for a prompted password
  token -u NAME [-r Admin|User]         print a signed access token
`

type App struct {
	config *config.Config
	out    io.Writer
	logger logging.Logger
}

func NewApp(cfg *config.Config, out io.Writer) *App {
	return &App{
		config: cfg,
		out:    out,
		logger: logging.NewJSONLogger(os.Stderr, slog.LevelWarn),
	}
}

// Run dispatches args[0] to its command. The remaining args may mix the
// command's own flags with server configuration flags; each side only
// parses what it recognizes.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return ErrUnknownCommand
	}

	switch args[0] {
	case "create-user":
		return a.createUser(ctx, args[1:])
	case "hash":
		return a.hash()
	case "token":
		return a.token(args[1:])
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	}

	fmt.Fprint(a.out, usage)
	return fmt.Errorf("%w: %q", ErrUnknownCommand, args[0])
}

type principalFlags struct {
	userName string
	role     string
}

func parsePrincipalFlags(name string, args []string) (principalFlags, error) {
	var pf principalFlags
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&pf.userName, "u", "", "user name")
	fs.StringVar(&pf.role, "r", string(auth.RoleUser), "role (Admin or User)")
	if err := flagx.ParseKnown(fs, args); err != nil {
		return pf, err
	}
	return pf, nil
}

func (a *App) createUser(ctx context.Context, args []string) error {
	pf, err := parsePrincipalFlags("create-user", args)
	if err != nil {
		return err
	}
	role, err := auth.ParseRole(pf.role)
	if err != nil {
		return err
	}

	password, err := GetNewPassword(a.out)
	if err != nil {
		return err
	}

	db, rm, err := repomanager.Open(ctx, a.config.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := rm.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	tokens, err := auth.NewProvider([]byte(a.config.SecretKey))
	if err != nil {
		return err
	}

	us := services.NewUserService(db, rm, tokens, a.config, services.WithLogger(a.logger))
	id, err := us.Seed(ctx, pf.userName, password, role)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "created %s (%s) id=%s\n", id.UserName, id.Role, id.ID)
	return nil
}

func (a *App) hash() error {
	password, err := GetNewPassword(a.out)
	if err != nil {
		return err
	}

	salt, err := cryptox.GenerateSalt()
	if err != nil {
		return err
	}
	hash, err := cryptox.ComputeHash(password, salt)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "salt: %s\nhash: %s\n", salt, hash)
	return nil
}

func (a *App) token(args []string) error {
	pf, err := parsePrincipalFlags("token", args)
	if err != nil {
		return err
	}
	role, err := auth.ParseRole(pf.role)
	if err != nil {
		return err
	}
	if pf.userName == "" {
		return errors.New("token: -u is required")
	}

	tokens, err := auth.NewProvider([]byte(a.config.SecretKey))
	if err != nil {
		return err
	}
	tok, err := tokens.CreateToken(a.config.TokenTTL, auth.Principal{Subject: pf.userName, Role: role})
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, tok)
	return nil
}
