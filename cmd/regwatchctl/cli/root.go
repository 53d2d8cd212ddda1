// Package cli implements regwatchctl, a terminal client for the compliance lists.
package cli

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/regwatch/regwatch/internal/auth"
	"github.com/regwatch/regwatch/internal/backend"
	"github.com/regwatch/regwatch/internal/listing"
	"github.com/regwatch/regwatch/internal/shared"
)

type globalOptions struct {
	backendURL string
	token      string
	jwtSecret  string
	role       string
	timeout    time.Duration
	redisAddr  string
	pageSize   int
	verbose    bool
}

// NewRootCommand builds the regwatchctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:          "regwatchctl",
		Short:        "Query FDA compliance lists from the terminal",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.backendURL, "backend", envOr("BACKEND_URL", "http://127.0.0.1:3000"), "backend base URL")
	flags.StringVar(&opts.token, "token", os.Getenv("REGWATCH_TOKEN"), "bearer token sent to the backend")
	flags.StringVar(&opts.jwtSecret, "jwt-secret", os.Getenv("BACKEND_JWT_SECRET"), "mint a service token with this secret when --token is empty")
	flags.StringVar(&opts.role, "role", envOr("BACKEND_ROLE", "web_anon"), "database role claimed by minted tokens")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "backend request timeout")
	flags.StringVar(&opts.redisAddr, "redis", envOr("REDIS_ADDR", "127.0.0.1:6379"), "redis address used by job commands")
	flags.IntVar(&opts.pageSize, "page-size", listing.DefaultPageSize, "records requested per backend call")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log backend requests to stderr")

	root.AddCommand(
		newKindsCommand(),
		newListCommand(opts),
		newFiltersCommand(opts),
		newBrowseCommand(opts),
		newJobsCommand(opts),
	)
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (o *globalOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// credentials prefers an explicit token, then a minted service token, then anonymous access.
func (o *globalOptions) credentials() shared.SessionContext {
	if o.token != "" {
		return shared.StaticToken(o.token)
	}
	if o.jwtSecret != "" {
		return auth.NewServiceToken(auth.NewTokenIssuer(o.jwtSecret, o.role, time.Hour))
	}
	return shared.StaticToken("")
}

func (o *globalOptions) client(cmd *cobra.Command) (*backend.Client, *slog.Logger, error) {
	logger := o.logger(cmd.ErrOrStderr())
	client, err := backend.NewClient(o.backendURL, o.timeout, logger)
	if err != nil {
		return nil, nil, err
	}
	return client.WithCredentials(o.credentials()), logger, nil
}
