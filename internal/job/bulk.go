package job

import (
	"bytes"
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadscrub/internal/model"
	"github.com/sells-group/leadscrub/internal/scrub"
	"github.com/sells-group/leadscrub/internal/tabular"
	"github.com/sells-group/leadscrub/pkg/blacklist"
)

// runBulk explodes the input one row per phone, uploads it in size-bounded
// files and merges the categorized results back into one row per lead.
func (r *Runner) runBulk(ctx context.Context, st *jobState) (model.Results, map[string]string, error) {
	expanded := scrub.Expand(st.rows, st.layout)
	nonPhoneNames := st.layout.NonPhoneNames(st.header)
	uploadHeader := scrub.UploadHeader(nonPhoneNames)
	batches := scrub.RecordBatches(expanded, uploadHeader, r.cfg.MaxPayloadBytes)
	st.log.Info("job: uploading records", zap.Int("records", len(expanded)), zap.Int("batches", len(batches)))

	perBatch := make([][]scrub.CategoryFile, len(batches))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, batch := range batches {
		g.Go(func() error {
			file, err := scrub.UploadFile(uploadHeader, batch)
			if err != nil {
				return eris.Wrapf(err, "render upload batch %d", i+1)
			}

			start := time.Now()
			res, err := r.api.BulkUpload(gCtx, file)
			r.metrics.APICall("bulk", err, time.Since(start))
			if err != nil {
				return eris.Wrapf(err, "bulk batch %d of %d (%d records)", i+1, len(batches), len(batch))
			}

			files, err := categoryFiles(res)
			if err != nil {
				return eris.Wrapf(err, "bulk batch %d of %d", i+1, len(batches))
			}
			perBatch[i] = files
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.Results{}, nil, newError(KindExternalService, "bulk upload", err)
	}
	r.setStatus(ctx, st, model.StageAPICalled)

	var files []scrub.CategoryFile
	for _, fs := range perBatch {
		files = append(files, fs...)
	}
	b := scrub.Merge(st.layout, expanded, files)

	total := len(expanded)
	clean := min(b.Count(scrub.CleanCategory), total)
	results := model.Results{Total: total, Clean: clean, DNC: total - clean}
	r.metrics.Phones(total, results.DNC)
	st.log.Info("job: bulk merge complete",
		zap.Strings("categories", b.Categories()),
		zap.Int("clean", clean),
		zap.Int("dnc", results.DNC),
	)

	merged, err := tabular.WriteCSV(model.View{
		Header: b.Header(nonPhoneNames, st.cols.PhoneNames),
		Rows:   b.Rows(),
	})
	if err != nil {
		return model.Results{}, nil, newError(KindDownstreamWrite, "render merged output", err)
	}
	mergedPath, err := r.write(ctx, st, "merged", merged)
	if err != nil {
		return model.Results{}, nil, err
	}
	return results, map[string]string{model.OutputMerged: mergedPath}, nil
}

// categoryFiles parses every category CSV of one bulk response. Entries are
// parsed one by one so each keeps its own header.
func categoryFiles(res []blacklist.CategoryCSV) ([]scrub.CategoryFile, error) {
	files := make([]scrub.CategoryFile, 0, len(res))
	for _, f := range res {
		text, err := tabular.DecodeText(f.Data)
		if err != nil {
			return nil, eris.Wrapf(err, "decode category file %s", f.Entry)
		}
		rows, err := tabular.ReadCSV(bytes.NewReader(text), tabular.CSVOptions{LazyQuotes: true})
		if err != nil {
			return nil, eris.Wrapf(err, "parse category file %s", f.Entry)
		}
		files = append(files, scrub.CategoryFile{Category: f.Category, Rows: rows})
	}
	return files, nil
}
