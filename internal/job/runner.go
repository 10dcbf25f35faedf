// Package job runs one scrub job end to end: load the column config, read
// and parse the upload, call the suppression API in size-bounded batches,
// reconcile the results and persist the outputs and final status.
package job

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadscrub/internal/blob"
	"github.com/sells-group/leadscrub/internal/metrics"
	"github.com/sells-group/leadscrub/internal/model"
	"github.com/sells-group/leadscrub/internal/scrub"
	"github.com/sells-group/leadscrub/internal/store"
	"github.com/sells-group/leadscrub/pkg/blacklist"
)

// Documents is the part of the document store a job uses.
type Documents interface {
	GetJob(ctx context.Context, path string) (*model.Job, error)
	AppendStatus(ctx context.Context, path, runID string, stage model.Stage) error
	Complete(ctx context.Context, path, runID string, results model.Results, outputs map[string]string) error
}

// Config tunes a Runner.
type Config struct {
	OutputBucket    string
	UploadPrefix    string
	MaxPayloadBytes int
	Concurrency     int
	IOTimeout       time.Duration
	Defaults        model.ColumnDefaults
}

// Outcome describes a finished job.
type Outcome struct {
	RunID       string
	Results     model.Results
	OutputFiles map[string]string
}

// Runner executes scrub jobs. It holds no per-job state and is safe for
// concurrent use.
type Runner struct {
	cfg      Config
	docs     Documents
	blobs    blob.Store
	api      blacklist.Client
	metrics  *metrics.Recorder
	validate *validator.Validate
}

// NewRunner creates a Runner. rec may be nil.
func NewRunner(cfg Config, docs Documents, blobs blob.Store, api blacklist.Client, rec *metrics.Recorder) *Runner {
	if cfg.MaxPayloadBytes <= 0 {
		cfg.MaxPayloadBytes = scrub.DefaultMaxPayloadBytes
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = 30 * time.Second
	}
	return &Runner{
		cfg:      cfg,
		docs:     docs,
		blobs:    blobs,
		api:      api,
		metrics:  rec,
		validate: validator.New(),
	}
}

// jobState is the working set of one job.
type jobState struct {
	trigger model.Trigger
	runID   string
	cols    model.Columns
	raw     []byte
	header  []string
	rows    [][]string
	layout  scrub.Layout
	log     *zap.Logger
}

// Run processes one trigger. Errors are *Error values; IsAbort tells the
// caller whether redelivering the trigger could help.
func (r *Runner) Run(ctx context.Context, t model.Trigger) (out *Outcome, err error) {
	st := &jobState{trigger: t, runID: uuid.New().String()}
	st.log = zap.L().With(
		zap.String("file_id", t.FileID),
		zap.String("config_path", t.ConfigDocumentPath),
		zap.String("run_id", st.runID),
	)
	start := time.Now()

	defer func() {
		outcome := metrics.OutcomeDone
		if err != nil {
			outcome = string(KindOf(err))
		}
		r.metrics.JobFinished(outcome, time.Since(start))

		switch {
		case err == nil:
			st.log.Info("job: done",
				zap.Int("total", out.Results.Total),
				zap.Int("clean", out.Results.Clean),
				zap.Int("dnc", out.Results.DNC),
				zap.Duration("elapsed", time.Since(start)),
			)
		case IsAbort(err):
			st.log.Warn("job: aborted", zap.String("kind", outcome), zap.Error(err))
		default:
			st.log.Error("job: failed", zap.String("kind", outcome), zap.Error(err))
		}
	}()

	if err := r.validate.Struct(t); err != nil {
		return nil, newError(KindMalformedTrigger, "validate trigger", err)
	}
	st.log.Info("job: starting", zap.String("file_name", t.FileName), zap.String("bucket", t.Bucket))

	if err := r.load(ctx, st); err != nil {
		return nil, err
	}

	r.setStatus(ctx, st, model.StagePrepared)

	var (
		results model.Results
		outputs map[string]string
	)
	if st.cols.Mode == model.ModeBulk {
		results, outputs, err = r.runBulk(ctx, st)
	} else {
		results, outputs, err = r.runLookup(ctx, st)
	}
	if err != nil {
		return nil, err
	}

	ioCtx, cancel := context.WithTimeout(ctx, r.cfg.IOTimeout)
	defer cancel()
	if err := r.docs.Complete(ioCtx, t.ConfigDocumentPath, st.runID, results, outputs); err != nil {
		return nil, newError(KindDownstreamWrite, "record results", err)
	}

	return &Outcome{RunID: st.runID, Results: results, OutputFiles: outputs}, nil
}

// load reads the config document and the input file into st.
func (r *Runner) load(ctx context.Context, st *jobState) error {
	t := st.trigger

	ioCtx, cancel := context.WithTimeout(ctx, r.cfg.IOTimeout)
	defer cancel()
	doc, err := r.docs.GetJob(ioCtx, t.ConfigDocumentPath)
	if errors.Is(err, store.ErrNotFound) {
		return newError(KindConfigNotFound, "load config", err)
	}
	if err != nil {
		return newError(KindInputRead, "load config", err)
	}

	if err := r.validate.Struct(doc.Config); err != nil {
		return newError(KindInvalidConfig, "validate config", err)
	}
	cols, err := doc.Config.Normalize(r.cfg.Defaults)
	if err != nil {
		return newError(KindInvalidConfig, "normalize config", err)
	}
	if len(cols.PhoneIndexes) == 0 {
		return newError(KindInvalidConfig, "normalize config", eris.New("no phone columns configured"))
	}
	st.cols = cols

	name := path.Join(r.cfg.UploadPrefix, t.FileName)
	ioCtx, cancel = context.WithTimeout(ctx, r.cfg.IOTimeout)
	defer cancel()
	raw, err := r.blobs.Read(ioCtx, t.Bucket, name)
	if err != nil {
		return newError(KindInputRead, "read input", err)
	}
	st.raw = raw

	rows, err := parseInput(t.FileName, raw)
	if err != nil {
		return newError(KindInputRead, "parse input", err)
	}
	if len(rows) == 0 {
		return newError(KindEmptyInput, "parse input", eris.Errorf("no rows in %s", name))
	}
	// A header-only file carries no phones and completes as a pass-through.
	if cols.HasHeader {
		st.header, rows = rows[0], rows[1:]
	}
	st.rows = rows
	st.layout = scrub.NewLayout(cols, st.header, rows)

	st.log.Info("job: input parsed",
		zap.Int("rows", len(rows)),
		zap.Int("width", st.layout.Width),
		zap.Ints("phone_columns", cols.PhoneIndexes),
		zap.String("mode", string(cols.Mode)),
	)
	return nil
}

// setStatus records a non-terminal stage. A failed write is logged and the
// job continues; only DONE gates success.
func (r *Runner) setStatus(ctx context.Context, st *jobState, stage model.Stage) {
	ioCtx, cancel := context.WithTimeout(ctx, r.cfg.IOTimeout)
	defer cancel()
	if err := r.docs.AppendStatus(ioCtx, st.trigger.ConfigDocumentPath, st.runID, stage); err != nil {
		st.log.Warn("job: failed to update status", zap.String("stage", string(stage)), zap.Error(err))
	}
}

// write persists one output file under {fileId}/ in the output bucket and
// returns its object name.
func (r *Runner) write(ctx context.Context, st *jobState, kind string, data []byte) (string, error) {
	name := outputName(st.trigger.FileID, st.trigger.FileName, kind)

	ioCtx, cancel := context.WithTimeout(ctx, r.cfg.IOTimeout)
	defer cancel()
	if err := r.blobs.Write(ioCtx, r.cfg.OutputBucket, name, data, blob.ContentTypeCSV); err != nil {
		return "", newError(KindDownstreamWrite, "write "+kind+" output", err)
	}
	r.metrics.OutputWritten(kind)
	st.log.Info("job: output written", zap.String("kind", kind), zap.String("path", name), zap.Int("bytes", len(data)))
	return name, nil
}

// outputName derives {fileId}/{base}_{kind}.csv from the uploaded file name.
func outputName(fileID, fileName, kind string) string {
	base := path.Base(strings.ReplaceAll(fileName, `\`, "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	return fileID + "/" + base + "_" + kind + ".csv"
}
