package job

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadscrub/internal/model"
	"github.com/sells-group/leadscrub/internal/scrub"
	"github.com/sells-group/leadscrub/internal/tabular"
)

// runLookup sends the distinct phones to the JSON lookup endpoint, then
// splits the input into clean and blacklisted outputs.
func (r *Runner) runLookup(ctx context.Context, st *jobState) (model.Results, map[string]string, error) {
	phones := scrub.DedupPhones(st.rows, st.layout)
	batches := scrub.PhoneBatches(phones, r.cfg.MaxPayloadBytes)
	st.log.Info("job: looking up phones", zap.Int("phones", len(phones)), zap.Int("batches", len(batches)))

	suppressed := scrub.NewSuppressedSet()
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, batch := range batches {
		g.Go(func() error {
			start := time.Now()
			got, err := r.api.Lookup(gCtx, batch)
			r.metrics.APICall("lookup", err, time.Since(start))
			if err != nil {
				return eris.Wrapf(err, "lookup batch %d of %d (%d phones)", i+1, len(batches), len(batch))
			}
			suppressed.Add(got...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.Results{}, nil, newError(KindExternalService, "lookup", err)
	}
	r.setStatus(ctx, st, model.StageAPICalled)

	dnc := suppressed.CountIn(phones)
	r.metrics.Phones(len(phones), dnc)
	results := model.Results{Total: len(phones), Clean: len(phones) - dnc, DNC: dnc}
	st.log.Info("job: lookup complete", zap.Int("suppressed", suppressed.Len()), zap.Int("dnc", dnc))

	if dnc == 0 {
		clean, err := passThrough(st)
		if err != nil {
			return model.Results{}, nil, newError(KindDownstreamWrite, "render clean output", err)
		}
		cleanPath, err := r.write(ctx, st, "clean", clean)
		if err != nil {
			return model.Results{}, nil, err
		}
		return results, map[string]string{
			model.OutputClean:       cleanPath,
			model.OutputBlacklisted: "",
		}, nil
	}

	cleanView, blView := scrub.BlankRetain(st.header, st.rows, st.layout, suppressed, st.layout.KeyFunc(st.cols.LeadIdentity))
	clean, err := tabular.WriteCSV(cleanView)
	if err != nil {
		return model.Results{}, nil, newError(KindDownstreamWrite, "render clean output", err)
	}
	blacklisted, err := tabular.WriteCSV(blView)
	if err != nil {
		return model.Results{}, nil, newError(KindDownstreamWrite, "render blacklisted output", err)
	}

	cleanPath, err := r.write(ctx, st, "clean", clean)
	if err != nil {
		return model.Results{}, nil, err
	}
	blPath, err := r.write(ctx, st, "blacklisted", blacklisted)
	if err != nil {
		return model.Results{}, nil, err
	}
	return results, map[string]string{
		model.OutputClean:       cleanPath,
		model.OutputBlacklisted: blPath,
	}, nil
}

// passThrough returns the clean output when nothing was suppressed: the
// uploaded bytes for CSV input, the parsed rows rendered as CSV otherwise.
func passThrough(st *jobState) ([]byte, error) {
	if tabular.FormatOf(st.trigger.FileName) == tabular.FormatCSV {
		return st.raw, nil
	}
	rows := st.rows
	if st.header != nil {
		rows = append([][]string{st.header}, st.rows...)
	}
	return tabular.WriteCSV(model.View{Rows: rows})
}

// parseInput decodes the uploaded file.
func parseInput(fileName string, raw []byte) ([][]string, error) {
	return tabular.Parse(fileName, raw)
}
