// Command photoctl is the operator CLI for photovault.
//
// It reads the same environment as the server (internal/config) and talks
// to the stores directly, so it works before the server has ever started:
//
//	photoctl bootstrap-admin --name Admin --email admin@example.com --username admin
//	photoctl reconcile --grace 1h
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sakif/photovault/internal/auth"
	"github.com/sakif/photovault/internal/backend"
	"github.com/sakif/photovault/internal/config"
	"github.com/sakif/photovault/internal/logging"
	"github.com/sakif/photovault/internal/metrics"
	"github.com/sakif/photovault/internal/reconcile"
	"github.com/sakif/photovault/internal/service"
)

func main() {
	if err := newRootCmd(newCLI()).Execute(); err != nil {
		os.Exit(1)
	}
}

// cli holds the process-level seams the commands use. Tests replace stdin,
// stdout and readPassword so nothing touches a real terminal.
type cli struct {
	stdin        io.Reader
	stdout       io.Writer
	readPassword func(fd int) ([]byte, error)
	isTerminal   func(fd int) bool
}

func newCLI() *cli {
	return &cli{
		stdin:        os.Stdin,
		stdout:       os.Stdout,
		readPassword: term.ReadPassword,
		isTerminal:   term.IsTerminal,
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "photovault-ctl",
		Short: "Operator commands for photovault",
		Long: `photoctl runs one-off maintenance against photovault's stores.

Configuration comes from the same environment variables as the server
(METADATA_BACKEND, BLOB_BACKEND, DB_PATH, MONGODB_URI, JWT_SECRET, ...).`,
		SilenceUsage: true,
	}
	root.SetIn(c.stdin)
	root.SetOut(c.stdout)

	root.AddCommand(newBootstrapCmd(c), newReconcileCmd(c))
	return root
}

// session is what every command needs: config, a logger and open stores.
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	backends *backend.Backends
	closeLog io.Closer
}

func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	backends, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		closeLog.Close()
		return nil, fmt.Errorf("opening backends: %w", err)
	}
	return &session{cfg: cfg, logger: logger, backends: backends, closeLog: closeLog}, nil
}

func (s *session) Close() {
	if err := s.backends.Close(context.Background()); err != nil {
		s.logger.Warn("closing backends", slog.String("error", err.Error()))
	}
	s.closeLog.Close()
}

// =========================================================================
// bootstrap-admin
// =========================================================================

func newBootstrapCmd(c *cli) *cobra.Command {
	var (
		in            service.CreateUserInput
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "bootstrap-admin",
		Short: "Create the first account (refused once any account exists)",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := c.password(cmd, passwordStdin)
			if err != nil {
				return err
			}
			in.Password = password

			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			tokens, err := auth.NewTokenService(s.cfg.Auth.JWTSecret, s.cfg.Auth.TokenTTL)
			if err != nil {
				return err
			}
			users := service.NewUserService(s.backends.Users, tokens,
				auth.NewPasswordService(s.cfg.Auth.PasswordCost), s.backends.Locker, s.logger)

			user, err := users.BootstrapAdmin(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (id %s)\n", user.Username, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "login email")
	cmd.Flags().StringVar(&in.Username, "username", "", "unique username")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from the first line of stdin")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

// password reads the admin password without echoing it. Scripts pipe it in
// with --password-stdin; an interactive shell gets a hidden prompt.
func (c *cli) password(cmd *cobra.Command, fromStdin bool) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(c.stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fd := int(os.Stdin.Fd())
	if !c.isTerminal(fd) {
		return "", errors.New("stdin is not a terminal: use --password-stdin")
	}

	fmt.Fprint(cmd.OutOrStdout(), "Password: ")
	first, err := c.readPassword(fd)
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), "Confirm password: ")
	second, err := c.readPassword(fd)
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}

// =========================================================================
// reconcile
// =========================================================================

func newReconcileCmd(c *cli) *cobra.Command {
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Delete blobs that no photo record references",
		Long: `reconcile runs one orphan sweep and exits.

A blob younger than --grace is never touched: it may belong to an upload
whose record is still being written. The default is RECONCILE_GRACE.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			if !cmd.Flags().Changed("grace") {
				grace = s.cfg.Reconcile.Grace
			}

			sweeper := reconcile.NewSweeper(s.backends.Blobs, s.backends.Photos, metrics.New(), s.logger, grace)
			res, err := sweeper.Sweep(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, skipped %d (within grace), reclaimed %d, failed %d\n",
				res.Scanned, res.Skipped, res.Reclaimed, res.Failed)
			if res.Failed > 0 {
				return fmt.Errorf("%d orphaned blobs could not be deleted", res.Failed)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&grace, "grace", reconcile.DefaultGrace, "minimum blob age before it can be reclaimed")
	return cmd
}
