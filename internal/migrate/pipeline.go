package migrate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/MariuszDW/BuyBuy-sub001/internal/database"
	"github.com/MariuszDW/BuyBuy-sub001/internal/model"
)

// TempSuffix is appended to the store path for the store being built.
const TempSuffix = ".migrating"

// Pipeline runs upgrade steps against a store until it reaches Target.
// It must own the store file exclusively while it runs.
type Pipeline struct {
	store         Store
	steps         []Step
	target        int64
	logger        *slog.Logger
	beforeMigrate func(ctx context.Context, path string) error
}

type Option func(*Pipeline)

func WithSteps(steps []Step) Option {
	return func(p *Pipeline) { p.steps = steps }
}

func WithTarget(version int64) Option {
	return func(p *Pipeline) { p.target = version }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithBeforeMigrate registers fn to run before each step touches the store,
// e.g. to take a backup. An error from fn aborts the migration.
func WithBeforeMigrate(fn func(ctx context.Context, path string) error) Option {
	return func(p *Pipeline) { p.beforeMigrate = fn }
}

// NewPipeline returns a pipeline over store with the built-in steps and
// database.CurrentVersion as target.
func NewPipeline(store Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:  store,
		steps:  Steps(),
		target: database.CurrentVersion,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Target() int64 {
	return p.target
}

// ShouldMigrate reports whether the store at path is behind the target and
// a step applies to it. Missing stores and stores without schema metadata
// are left to the engine. A store that cannot be brought to the target
// returns *model.UnsupportedSchemaVersionError.
func (p *Pipeline) ShouldMigrate(ctx context.Context, path string) (bool, error) {
	version, err := p.store.Version(ctx, path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read schema version: %w", err)
	}

	switch {
	case version == 0, version == p.target:
		return false, nil
	case version > p.target:
		return false, p.unsupported(path, version)
	}
	if _, ok := findStep(p.steps, version); !ok {
		return false, p.unsupported(path, version)
	}
	return true, nil
}

// PerformMigration applies the one step that starts at the store's current
// version and returns the path of the upgraded store, which is path itself.
// On failure the store at path is left as it was and the error is a
// *model.MigrationError.
func (p *Pipeline) PerformMigration(ctx context.Context, path string) (string, error) {
	version, err := p.store.Version(ctx, path)
	if err != nil {
		return "", &model.MigrationError{From: version, To: p.target, Err: err}
	}
	step, ok := findStep(p.steps, version)
	if !ok || version >= p.target {
		return "", p.unsupported(path, version)
	}

	fail := func(stage string, err error) (string, error) {
		return "", &model.MigrationError{From: step.From, To: step.To, Err: fmt.Errorf("%s: %w", stage, err)}
	}

	if p.beforeMigrate != nil {
		if err := p.beforeMigrate(ctx, path); err != nil {
			return fail("before migrate", err)
		}
	}

	p.logger.Info("migrating store", "path", path, "from", step.From, "to", step.To, "step", step.Name)

	ds, err := p.store.Load(ctx, path)
	if err != nil {
		return fail("load", err)
	}
	if ds.Version != step.From {
		return fail("load", fmt.Errorf("loaded version %d, step expects %d", ds.Version, step.From))
	}

	if err := runTransform(step, ds); err != nil {
		return fail("transform", err)
	}
	ds.Version = step.To

	tmp := path + TempSuffix
	if err := p.store.Remove(tmp); err != nil {
		return fail("clear temp store", err)
	}
	if err := p.store.Write(ctx, tmp, ds); err != nil {
		p.discard(tmp)
		return fail("write", err)
	}
	if err := p.store.Replace(ctx, tmp, path); err != nil {
		p.discard(tmp)
		return fail("swap", err)
	}

	p.logger.Info("store migrated", "path", path, "version", step.To,
		"lists", ds.Count(ListsTable), "items", ds.Count(ItemsTable))
	return path, nil
}

// Run migrates the store at path step by step until it reaches the target.
func (p *Pipeline) Run(ctx context.Context, path string) error {
	for range len(p.steps) + 1 {
		ok, err := p.ShouldMigrate(ctx, path)
		if err != nil || !ok {
			return err
		}
		if _, err := p.PerformMigration(ctx, path); err != nil {
			return err
		}
	}
	return fmt.Errorf("store %s did not reach version %d", path, p.target)
}

func runTransform(step Step, ds *Dataset) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step %q panicked: %v", step.Name, r)
		}
	}()
	return step.Transform(ds)
}

func (p *Pipeline) discard(tmp string) {
	if err := p.store.Remove(tmp); err != nil {
		p.logger.Warn("failed to remove temp store", "path", tmp, "error", err)
	}
}

func (p *Pipeline) unsupported(path string, version int64) error {
	return &model.UnsupportedSchemaVersionError{Path: path, Found: version, Target: p.target}
}
