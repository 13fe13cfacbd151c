// Package refine runs the passes that turn a raw dump into a repaired one:
// schema extraction, statement partitioning, row repair and assembly. Every
// run works in its own Workspace, which is removed on every exit path.
package refine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/koustreak/sqlrefine/internal/datasource"
	"github.com/koustreak/sqlrefine/internal/errs"
	"github.com/koustreak/sqlrefine/internal/logger"
	"github.com/koustreak/sqlrefine/internal/metrics"
	"github.com/koustreak/sqlrefine/internal/partition"
	"github.com/koustreak/sqlrefine/internal/repair"
	"github.com/koustreak/sqlrefine/internal/schema"
)

// DefaultOutputDir is where refined dumps go when no directory is given.
const DefaultOutputDir = "results"

// Config holds the directories a Refiner writes to.
type Config struct {
	// OutputDir receives <base>.sql for every dump refined.
	OutputDir string `yaml:"output_dir"`

	// WorkDir is the parent of per-run workspaces. Empty means the system
	// temp directory.
	WorkDir string `yaml:"work_dir"`
}

// DefaultConfig writes to DefaultOutputDir and works in the temp directory.
func DefaultConfig() Config {
	return Config{OutputDir: DefaultOutputDir}
}

// Result describes a finished run.
type Result struct {
	Path      string                   `json:"path"`
	Checksum  string                   `json:"checksum"` // xxh3-64 of the output, hex
	Bytes     int64                    `json:"bytes"`
	Schema    schema.Stats             `json:"schema"`
	Partition partition.Stats          `json:"partition"`
	Repair    repair.Stats             `json:"repair"`
	Durations map[string]time.Duration `json:"durations"`
}

// Refiner runs the pipeline. The zero value is usable: it writes to
// DefaultOutputDir, reports to nobody and does not log.
type Refiner struct {
	Config   Config
	Observer Observer
	Logger   *logger.Logger
}

// New returns a Refiner with the given configuration, observer and logger.
// A nil observer or logger disables that output.
func New(cfg Config, obs Observer, log *logger.Logger) *Refiner {
	return &Refiner{Config: cfg, Observer: obs, Logger: log}
}

// step identifies one stage of a run for messages, metrics and logs.
type step struct {
	n     int
	key   string
	title string
}

var (
	stepExtract   = step{1, "extract", "Extract CREATE TABLEs and metadata"}
	stepPartition = step{2, "partition", "Extract INSERT statements"}
	stepRepair    = step{3, "repair", "Refine INSERT values"}
	stepAssemble  = step{4, "assemble", "Concatenate into final SQL"}
	stepCleanup   = step{5, "cleanup", "Cleanup"}
)

func (s step) String() string { return fmt.Sprintf("Step %d: %s", s.n, s.title) }

// run is the state of one Run call.
type run struct {
	ctx context.Context
	src datasource.Source
	ws  *Workspace
	obs Observer
	log *logger.Logger
	res *Result
}

// Run refines the dump src into <OutputDir>/<base>.sql, where base is the
// source name without its extension.
//
// The source is opened once per pass. Cancellation of ctx is honored
// between steps. Any error aborts the run; the workspace is removed
// regardless.
func (r *Refiner) Run(ctx context.Context, src datasource.Source) (res *Result, err error) {
	defer func() { metrics.RecordRun(err) }()

	base := datasource.BaseName(src.Name())
	outDir := r.Config.OutputDir
	if outDir == "" {
		outDir = DefaultOutputDir
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, errs.FromFS("create output dir", err)
	}

	ws, err := NewWorkspace(r.Config.WorkDir, base)
	if err != nil {
		return nil, err
	}
	defer ws.Close()

	rn := &run{
		ctx: ctx,
		src: src,
		ws:  ws,
		obs: r.Observer,
		log: r.Logger,
		res: &Result{
			Path:      filepath.Join(outDir, base+".sql"),
			Durations: make(map[string]time.Duration, 5),
		},
	}
	if rn.obs == nil {
		rn.obs = Nop
	}
	if rn.log == nil {
		rn.log = logger.Nop()
	}
	rn.log = rn.log.With().Str("dump", src.Name()).Logger()

	rn.obs.Progress(0)
	stages := []struct {
		step     step
		fn       func() error
		progress int
	}{
		{stepExtract, rn.extractSchema, 25},
		{stepPartition, rn.splitStatements, 50},
		{stepRepair, rn.repairRows, 75},
		{stepAssemble, rn.assemble, 90},
		{stepCleanup, rn.cleanup, 100},
	}
	for _, st := range stages {
		if err := rn.stage(st.step, st.fn); err != nil {
			return nil, err
		}
		rn.obs.Progress(st.progress)
	}

	rn.log.InfoWith("dump refined", map[string]interface{}{
		"path":     rn.res.Path,
		"bytes":    rn.res.Bytes,
		"checksum": rn.res.Checksum,
	})
	return rn.res, nil
}

// Refine is the single-call entry point: it refines the dump at inputPath
// into outputDir, or DefaultOutputDir when outputDir is empty, and returns
// the path of the refined file.
func Refine(ctx context.Context, inputPath string, obs Observer, outputDir string) (string, error) {
	cfg := DefaultConfig()
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	res, err := New(cfg, obs, nil).Run(ctx, datasource.NewLocal(inputPath))
	if err != nil {
		return "", err
	}
	return res.Path, nil
}

// stage runs fn as step s, timing it and reporting start and finish.
func (rn *run) stage(s step, fn func() error) error {
	if err := rn.ctx.Err(); err != nil {
		return errs.Wrap(errs.ErrKindTimeout, "refine canceled before "+s.key, err)
	}

	start := time.Now()
	rn.obs.Message(fmt.Sprintf("[%s] Starting: %s", start.Format(time.DateTime), s))

	err := fn()

	end := time.Now()
	d := end.Sub(start)
	rn.res.Durations[s.key] = d
	metrics.RecordStep(s.key, err, d)
	rn.log.Stage(s.key, d, err)
	if err != nil {
		return err
	}

	rn.obs.Message(fmt.Sprintf("[%s] Finished: %s (took %s)", end.Format(time.DateTime), s, formatElapsed(d)))
	return nil
}

// formatElapsed renders d as whole minutes and seconds, e.g. "2m 5s".
func formatElapsed(d time.Duration) string {
	secs := int(d / time.Second)
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}

// --- steps ---

func (rn *run) extractSchema() error {
	in, err := rn.src.Open(rn.ctx)
	if err != nil {
		return err
	}
	defer in.Close()

	schemaOut := rn.ws.Writer(ArtifactSchema)
	sideOut := rn.ws.Writer(ArtifactSide)
	ext, err := schema.Extract(in, schemaOut, sideOut)
	if closeErr := errors.Join(schemaOut.Close(), sideOut.Close()); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	rn.res.Schema = ext.Stats

	metaOut := rn.ws.Writer(ArtifactMetadata)
	if err := ext.Metadata.WriteJSON(metaOut); err != nil {
		metaOut.Close()
		return errs.Wrap(errs.ErrKindIO, "write column metadata", err)
	}
	return metaOut.Close()
}

func (rn *run) splitStatements() error {
	in, err := rn.src.Open(rn.ctx)
	if err != nil {
		return err
	}
	defer in.Close()

	insertOut := rn.ws.Writer(ArtifactInserts)
	sideOut := rn.ws.Writer(ArtifactSide)
	stats, err := partition.Split(in, insertOut, sideOut)
	if closeErr := errors.Join(insertOut.Close(), sideOut.Close()); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	rn.res.Partition = stats

	metrics.RecordRows("inserts", stats.Inserts)
	metrics.RecordRows("diverted", stats.Diverted)
	metrics.RecordRows("unterminated", stats.Unterminated)
	return nil
}

func (rn *run) repairRows() error {
	if !rn.ws.Exists(ArtifactInserts) {
		rn.log.Debug("no insert statements, nothing to repair")
		return nil
	}

	metaIn, err := rn.ws.Open(ArtifactMetadata)
	if err != nil {
		return err
	}
	meta, err := schema.ReadJSON(metaIn)
	metaIn.Close()
	if err != nil {
		return errs.Wrap(errs.ErrKindIO, "read column metadata", err)
	}

	in, err := rn.ws.Open(ArtifactInserts)
	if err != nil {
		return err
	}
	defer in.Close()

	out := rn.ws.Writer(ArtifactRepaired)
	stats, err := repair.New(meta).Run(in, out)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	rn.res.Repair = stats

	for kind, n := range map[string]int{
		"rows":        stats.Rows,
		"repaired":    stats.Repaired,
		"nulled":      stats.Nulled,
		"defaulted":   stats.Defaulted,
		"fallbacks":   stats.Fallbacks,
		"truncated":   stats.Truncated,
		"enum_fixed":  stats.EnumFixed,
		"passthrough": stats.Passthrough,
	} {
		metrics.RecordRows(kind, n)
	}
	return nil
}

func (rn *run) assemble() error {
	fragments := []Artifact{ArtifactSchema, ArtifactRepaired, ArtifactSide}
	sum, n, err := Assemble(rn.ws, fragments, rn.res.Path)
	if err != nil {
		return err
	}
	rn.res.Checksum, rn.res.Bytes = sum, n
	rn.obs.Message("Final concatenated SQL: " + rn.res.Path)
	return nil
}

func (rn *run) cleanup() error {
	if err := rn.ws.Close(); err != nil {
		return err
	}
	rn.obs.Message("Cleanup complete, only the output folder kept.")
	return nil
}
