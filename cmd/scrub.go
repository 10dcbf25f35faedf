package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadscrub/internal/job"
	"github.com/sells-group/leadscrub/internal/model"
)

var scrubCmd = &cobra.Command{
	Use:   "scrub",
	Short: "Run one scrub job",
	Long:  "Runs one scrub job from flags or from a raw trigger message (--message <file> or --message - for stdin).",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		t, err := scrubTrigger(cmd)
		if err != nil {
			return err
		}

		env, err := initScrub(ctx, "scrub")
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.Runner.Run(ctx, t)
		return reportScrub(cmd.OutOrStdout(), t, out, err)
	},
}

// reportScrub prints the outcome. Aborted jobs have nothing to redo, so they
// are logged and exit zero like an acknowledged push.
func reportScrub(w io.Writer, t model.Trigger, out *job.Outcome, err error) error {
	if job.IsAbort(err) {
		zap.L().Warn("scrub: job aborted",
			zap.String("file_id", t.FileID),
			zap.String("kind", string(job.KindOf(err))),
			zap.Error(err),
		)
		return nil
	}
	if err != nil {
		return eris.Wrapf(err, "scrub %s", t.FileID)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// scrubTrigger builds the trigger from --message or the individual flags.
func scrubTrigger(cmd *cobra.Command) (model.Trigger, error) {
	msg, _ := cmd.Flags().GetString("message")
	if msg != "" {
		data, err := readMessage(msg, cmd.InOrStdin())
		if err != nil {
			return model.Trigger{}, err
		}
		return job.DecodeTrigger(data)
	}

	fileID, _ := cmd.Flags().GetString("file-id")
	fileName, _ := cmd.Flags().GetString("file-name")
	bucket, _ := cmd.Flags().GetString("bucket")
	configPath, _ := cmd.Flags().GetString("config-path")
	return model.Trigger{
		FileID:             fileID,
		FileName:           fileName,
		Bucket:             bucket,
		ConfigDocumentPath: configPath,
	}, nil
}

func readMessage(src string, stdin io.Reader) ([]byte, error) {
	if src == "-" {
		data, err := io.ReadAll(stdin)
		return data, eris.Wrap(err, "read message from stdin")
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, eris.Wrapf(err, "read message %s", src)
	}
	return data, nil
}

func init() {
	scrubCmd.Flags().String("file-id", "", "upload id; outputs are written under <file-id>/")
	scrubCmd.Flags().String("file-name", "", "uploaded file name (.csv or .xlsx)")
	scrubCmd.Flags().String("bucket", "", "bucket holding the upload")
	scrubCmd.Flags().String("config-path", "", "job document path")
	scrubCmd.Flags().String("message", "", "raw trigger JSON file, or - for stdin")
	scrubCmd.MarkFlagsMutuallyExclusive("message", "file-id")
	rootCmd.AddCommand(scrubCmd)
}
