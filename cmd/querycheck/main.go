// Command querycheck compiles search queries against the configured field
// settings and prints the parse tree and compiled query. It exits with status
// 2 if any query is malformed.
//
// With -sync-settings it instead writes the configured field tables to the
// Postgres settings store, replacing what is there.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/peterbourgon/ff/v3"

	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/searcher/compiler"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/settings"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/postgres"
)

const (
	exitOK        = 0
	exitError     = 1
	exitMalformed = 2
)

type options struct {
	configPath   string
	useDB        bool
	syncSettings bool
	compact      bool
	logLevel     string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	var opts options
	fs := flag.NewFlagSet("querycheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to the service config YAML (defaults apply when empty)")
	fs.BoolVar(&opts.useDB, "use-db", false, "Overlay field settings stored in Postgres")
	fs.BoolVar(&opts.syncSettings, "sync-settings", false, "Write the configured field settings to Postgres and exit")
	fs.BoolVar(&opts.compact, "compact", false, "Print compiled JSON on one line")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "Log level")
	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("QC")); err != nil {
		fmt.Fprintf(stderr, "Flag error: %v\n", err)
		return exitError
	}
	logger.Setup(opts.logLevel, "text")

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return exitError
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if opts.syncSettings {
		if err := syncSettings(ctx, cfg); err != nil {
			fmt.Fprintf(stderr, "sync failed: %v\n", err)
			return exitError
		}
		fmt.Fprintln(stdout, "field settings synced")
		return exitOK
	}

	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "usage: querycheck [flags] QUERY...")
		return exitError
	}

	qctx, err := loadContext(ctx, cfg, opts.useDB)
	if err != nil {
		fmt.Fprintf(stderr, "loading settings: %v\n", err)
		return exitError
	}

	code := exitOK
	for _, q := range fs.Args() {
		if err := check(stdout, q, qctx, opts.compact); err != nil {
			var malformed *parser.MalformedQueryError
			if !errors.As(err, &malformed) {
				fmt.Fprintf(stderr, "%q: %v\n", q, err)
				return exitError
			}
			fmt.Fprintf(stdout, "query:    %s\nerror:    %s\n          %s^\n\n", q, malformed.Message, pad(malformed.Position))
			code = exitMalformed
		}
	}
	return code
}

func check(w io.Writer, raw string, qctx compiler.Context, compact bool) error {
	ast, err := parser.Parse(raw)
	if err != nil {
		return err
	}
	node := compiler.Compile(ast, qctx)

	var out []byte
	if compact {
		out, err = json.Marshal(node)
	} else {
		out, err = json.MarshalIndent(node, "          ", "  ")
	}
	if err != nil {
		return fmt.Errorf("encoding compiled query: %w", err)
	}
	fmt.Fprintf(w, "query:    %s\nast:      %s\ncompiled: %s\n\n", raw, ast, out)
	return nil
}

func loadContext(ctx context.Context, cfg *config.Config, useDB bool) (compiler.Context, error) {
	if !useDB {
		return settings.Build(cfg.Search, nil), nil
	}
	pg, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return compiler.Context{}, err
	}
	defer pg.Close()
	provider := settings.NewProvider(cfg.Search, settings.NewStore(pg))
	if err := provider.Reload(ctx); err != nil {
		return compiler.Context{}, err
	}
	return provider.Current(), nil
}

func syncSettings(ctx context.Context, cfg *config.Config) error {
	pg, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pg.Close()
	return settings.NewStore(pg).Replace(ctx, settings.RowsFromConfig(cfg.Search))
}

// pad returns spaces that line a caret up under byte offset pos of the
// printed query.
func pad(pos int) string {
	b := make([]byte, pos)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}
