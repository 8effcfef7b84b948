// Package settings owns the compilation context. It is built from the search
// configuration, optionally overlaid with rows from PostgreSQL, and swapped
// atomically on reload so in-flight compilations keep the context they began
// with.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/searcher/compiler"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/resilience"
)

type Provider struct {
	base    config.SearchConfig
	loader  Loader
	current atomic.Pointer[compiler.Context]
	loaded  atomic.Int64
	logger  *slog.Logger
}

// NewProvider starts from the configured tables. loader may be nil, in which
// case Reload is a no-op.
func NewProvider(cfg config.SearchConfig, loader Loader) *Provider {
	p := &Provider{
		base:   cfg,
		loader: loader,
		logger: slog.Default().With("component", "settings"),
	}
	initial := Build(cfg, nil)
	p.current.Store(&initial)
	return p
}

// Current returns the context to compile against.
func (p *Provider) Current() compiler.Context {
	return *p.current.Load()
}

// LoadedAt reports when rows were last applied; zero if never.
func (p *Provider) LoadedAt() time.Time {
	ns := p.loaded.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Reload reads the overlay rows and swaps in a new context. On failure the
// previous context stays in place.
func (p *Provider) Reload(ctx context.Context) error {
	if p.loader == nil {
		return nil
	}
	var rows []Row
	err := resilience.Retry(ctx, "settings-load", resilience.RetryConfig{MaxAttempts: 3}, func(ctx context.Context) error {
		var err error
		rows, err = p.loader.LoadRows(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("reloading field settings: %w", err)
	}
	next := Build(p.base, rows)
	p.current.Store(&next)
	p.loaded.Store(time.Now().UnixNano())
	p.logger.Info("field settings reloaded", "rows", len(rows), "default_fields", next.Fields())
	return nil
}

// Run reloads every interval until ctx is done.
func (p *Provider) Run(ctx context.Context, interval time.Duration) {
	if p.loader == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := p.Reload(ctx); err != nil {
				p.logger.Error("settings reload failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Build merges rows over cfg. Alias, range and exact rows add to or override
// the configured entries; any default rows replace the default field list.
func Build(cfg config.SearchConfig, rows []Row) compiler.Context {
	aliases := make(map[string]string, len(cfg.FieldAliases))
	for k, v := range cfg.FieldAliases {
		aliases[k] = v
	}
	ranges := append([]string(nil), cfg.RangeFields...)
	exact := make(map[string]compiler.ExactField, len(cfg.ExactFields))
	for name, ef := range cfg.ExactFields {
		values := make(map[string]string, len(ef.Values))
		for k, v := range ef.Values {
			values[k] = v
		}
		exact[name] = compiler.ExactField{Field: ef.Field, ValueAliases: values}
	}

	var defaults []string
	for _, r := range rows {
		switch r.Kind {
		case KindAlias:
			aliases[r.Name] = r.Target
		case KindRange:
			ranges = append(ranges, r.Name)
		case KindDefault:
			defaults = append(defaults, r.Name)
		case KindExact:
			ef := exact[r.Name]
			if ef.ValueAliases == nil {
				ef.ValueAliases = make(map[string]string)
			}
			if r.Value != "" {
				ef.ValueAliases[r.Value] = r.Target
				if ef.Field == "" {
					ef.Field = r.Name
				}
			} else {
				ef.Field = r.Target
			}
			exact[r.Name] = ef
		default:
			slog.Warn("ignoring field setting of unknown kind", "kind", r.Kind, "name", r.Name)
		}
	}
	if defaults == nil {
		defaults = cfg.DefaultFields
	}
	return compiler.NewContext(defaults, aliases, ranges, exact)
}

// RowsFromConfig renders cfg's tables as rows, sorted for stable output.
func RowsFromConfig(cfg config.SearchConfig) []Row {
	var rows []Row
	for _, f := range cfg.DefaultFields {
		rows = append(rows, Row{Kind: KindDefault, Name: f})
	}
	for from, to := range cfg.FieldAliases {
		rows = append(rows, Row{Kind: KindAlias, Name: from, Target: to})
	}
	for _, f := range cfg.RangeFields {
		rows = append(rows, Row{Kind: KindRange, Name: f})
	}
	for name, ef := range cfg.ExactFields {
		rows = append(rows, Row{Kind: KindExact, Name: name, Target: ef.Field})
		for from, to := range ef.Values {
			rows = append(rows, Row{Kind: KindExact, Name: name, Target: to, Value: from})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Value < b.Value
	})
	return rows
}
