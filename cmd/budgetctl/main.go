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

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"budgetly/internal/auth"
	"budgetly/internal/backend"
	"budgetly/internal/log"
	"budgetly/internal/storage"
)

func main() {
	if err := execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	root := newRootCmd(stdin, stdout, stderr)
	root.SetArgs(args)
	return root.Execute()
}

// newRootCmd builds the command tree. Settings resolve from flags, then
// environment (DATA_BACKEND, SQLITE_DB_PATH, SUPABASE_URL, SUPABASE_KEY),
// then an optional config file.
func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	v := viper.New()
	v.AutomaticEnv()
	var cfgFile string

	root := &cobra.Command{
		Use:           "budgetctl",
		Short:         "Operator tasks for budgetly",
		Long:          `budgetctl provisions accounts and manages the budgetly database schema.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile == "" {
				return nil
			}
			v.SetConfigFile(cfgFile)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config file: %w", err)
			}
			return nil
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (toml, yaml or json)")
	flags.String("backend", "sqlite", "Data backend ("+strings.Join(backend.GetBackendTypeStrings(), ", ")+"); memory is refused")
	flags.String("db", "./data/budgetly.db", "Path to the SQLite database")
	_ = v.BindPFlag("data_backend", flags.Lookup("backend"))
	_ = v.BindPFlag("sqlite_db_path", flags.Lookup("db"))
	_ = v.BindEnv("supabase_url")
	_ = v.BindEnv("supabase_key")

	root.AddCommand(newAddUserCmd(v), newMigrateCmd(v))
	return root
}

func newAddUserCmd(v *viper.Viper) *cobra.Command {
	var email, name, password string

	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create an account",
		Example: "  budgetctl adduser --email ana@example.com --name Ana\n" +
			"  budgetctl adduser --email ana@example.com --password secret --backend supabase",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if password == "" {
				fmt.Fprint(out, "Password: ")
				var err error
				password, err = readPassword(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
				fmt.Fprintln(out)
			}
			if strings.TrimSpace(password) == "" {
				return errors.New("password cannot be empty")
			}

			repo, cleanup, err := openRepository(cmd.Context(), v, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer cleanup()

			u, err := auth.Provision(cmd.Context(), repo, auth.Account{
				Email:       email,
				DisplayName: name,
				Password:    password,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Account %s created for %s with ID %s\n", u.Email, u.DisplayName, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Sign-in email")
	cmd.Flags().StringVar(&name, "name", "", "Display name (defaults to the email's local part)")
	cmd.Flags().StringVar(&password, "password", "", "Password (optional, will prompt if omitted)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newMigrateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQLite migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := v.GetString("sqlite_db_path")
			if path == "" {
				return errors.New("SQLite database path cannot be empty")
			}
			// Opening the repository creates the directory and migrates.
			repo, err := storage.NewSQLiteRepository(path)
			if err != nil {
				return err
			}
			if err := repo.Close(); err != nil {
				return err
			}
			version, dirty, err := storage.MigrationVersion(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema at version %d (dirty=%t): %s\n", version, dirty, path)
			return nil
		},
	}
}

// openRepository opens the configured persistent backend. The memory
// backend is refused since accounts would vanish on exit.
func openRepository(ctx context.Context, v *viper.Viper, stderr io.Writer) (storage.Repository, func(), error) {
	cfg := backend.Config{
		Type:         backend.BackendType(v.GetString("data_backend")),
		SQLiteDBPath: v.GetString("sqlite_db_path"),
		SupabaseURL:  v.GetString("supabase_url"),
		SupabaseKey:  v.GetString("supabase_key"),
	}
	if cfg.Type == backend.MemoryBackend {
		return nil, nil, errors.New("the memory backend does not persist accounts")
	}

	logger := log.NewText(stderr, slog.LevelWarn, log.ComponentBackend)
	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return res.Repository, func() { _ = res.Cleanup() }, nil
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	// Pipes and tests.
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
