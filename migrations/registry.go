package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	consent "github.com/goliatone/go-consent"
	persistence "github.com/goliatone/go-persistence-bun"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	// SourceLabel identifies consent migrations next to other modules' migrations.
	SourceLabel = "go-consent"
)

// Tables lists the tables owned by the consent migrations. Each table has a
// migration of the same name.
var Tables = []string{"consent_sessions", "consent_activity"}

// Migration is one up/down pair named <version>_<name>.
type Migration struct {
	Version string
	Name    string
}

// DialectSet is the migration tree for one dialect.
type DialectSet struct {
	Dialect    string
	Path       string
	FS         fs.FS
	Migrations []Migration
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type options struct {
	dialects []string
	source   fs.FS
}

type Option func(*options)

// WithDialects limits registration to the named dialects.
func WithDialects(dialects ...string) Option {
	return func(o *options) {
		var next []string
		for _, dialect := range dialects {
			dialect = strings.TrimSpace(strings.ToLower(dialect))
			if dialect != "" && !slices.Contains(next, dialect) {
				next = append(next, dialect)
			}
		}
		if len(next) > 0 {
			o.dialects = next
		}
	}
}

// WithSource replaces the embedded migration tree.
func WithSource(fsys fs.FS) Option {
	return func(o *options) {
		if fsys != nil {
			o.source = fsys
		}
	}
}

// Load reads the postgres tree and its sqlite subtree and checks that both
// dialects carry the same migrations and cover every consent table.
func Load(source fs.FS) ([]DialectSet, error) {
	if source == nil {
		source = consent.GetMigrationsFS()
	}
	base, basePath, err := migrationsRoot(source)
	if err != nil {
		return nil, err
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite tree: %w", err)
	}

	sets := []DialectSet{
		{Dialect: DialectPostgres, Path: basePath, FS: base},
		{Dialect: DialectSQLite, Path: path.Join(basePath, "sqlite"), FS: sqliteFS},
	}
	for i := range sets {
		if sets[i].Migrations, err = scan(sets[i].FS); err != nil {
			return nil, fmt.Errorf("migrations: %s %q: %w", sets[i].Dialect, sets[i].Path, err)
		}
	}
	if !slices.Equal(sets[0].Migrations, sets[1].Migrations) {
		return nil, fmt.Errorf("migrations: postgres and sqlite trees differ")
	}
	for _, table := range Tables {
		if !slices.ContainsFunc(sets[0].Migrations, func(m Migration) bool { return m.Name == table }) {
			return nil, fmt.Errorf("migrations: no migration creates %s", table)
		}
	}
	return sets, nil
}

// Register hands each selected dialect tree to registerFn under SourceLabel.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) ([]DialectSet, error) {
	if registerFn == nil {
		return nil, fmt.Errorf("migrations: register function is required")
	}
	cfg := options{dialects: []string{DialectPostgres, DialectSQLite}}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	sets, err := Load(cfg.source)
	if err != nil {
		return nil, err
	}
	var registered []DialectSet
	for _, set := range sets {
		if !slices.Contains(cfg.dialects, set.Dialect) {
			continue
		}
		if err := registerFn(ctx, set.Dialect, SourceLabel, set.FS); err != nil {
			return registered, fmt.Errorf("migrations: register %s (%s): %w", set.Dialect, set.Path, err)
		}
		registered = append(registered, set)
	}
	if len(registered) == 0 {
		return nil, fmt.Errorf("migrations: no tree matches dialects %v", cfg.dialects)
	}
	return registered, nil
}

// Apply registers the tree for dialect on client and runs the migrations.
func Apply(ctx context.Context, client *persistence.Client, dialect string) error {
	if client == nil {
		return fmt.Errorf("migrations: persistence client is required")
	}
	_, err := Register(ctx, func(_ context.Context, _ string, _ string, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	}, WithDialects(dialect))
	if err != nil {
		return err
	}
	return client.Migrate(ctx)
}

func scan(fsys fs.FS) ([]Migration, error) {
	ups, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return nil, err
	}
	if len(ups) == 0 {
		return nil, fmt.Errorf("no *.up.sql files")
	}
	slices.Sort(ups)
	out := make([]Migration, 0, len(ups))
	for _, up := range ups {
		stem := strings.TrimSuffix(up, ".up.sql")
		version, name, ok := strings.Cut(stem, "_")
		if !ok || version == "" || name == "" || strings.Trim(version, "0123456789") != "" {
			return nil, fmt.Errorf("migration %q is not named <version>_<name>", up)
		}
		if _, err := fs.Stat(fsys, stem+".down.sql"); err != nil {
			return nil, fmt.Errorf("migration %q has no down file", stem)
		}
		out = append(out, Migration{Version: version, Name: name})
	}
	return out, nil
}

func migrationsRoot(root fs.FS) (fs.FS, string, error) {
	if sub, err := fs.Sub(root, "data/sql/migrations"); err == nil {
		if _, statErr := fs.Stat(sub, "."); statErr == nil {
			if matches, _ := fs.Glob(sub, "*.sql"); len(matches) > 0 {
				return sub, "data/sql/migrations", nil
			}
		}
	}
	if matches, _ := fs.Glob(root, "*.sql"); len(matches) > 0 {
		return root, ".", nil
	}
	return nil, "", fmt.Errorf("migrations: data/sql/migrations not found")
}
