package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/leadscrub/internal/model"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage job documents",
	Long:  "Commands for creating column configs and inspecting job status, results and outputs.",
}

// -- jobs put-config --

var jobsPutConfigCmd = &cobra.Command{
	Use:   "put-config <path>",
	Short: "Create or replace the column config of a job document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cc, err := columnConfigFromFlags(cmd)
		if err != nil {
			return err
		}
		if err := validator.New().Struct(cc); err != nil {
			return eris.Wrap(err, "jobs put-config: invalid config")
		}
		if _, err := cc.Normalize(cfg.Scrub.ColumnDefaults()); err != nil {
			return eris.Wrap(err, "jobs put-config")
		}

		if err := cfg.Validate("jobs"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.PutConfig(ctx, args[0], cc); err != nil {
			return eris.Wrap(err, "jobs put-config")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved config for %s (phone columns %v)\n", args[0], cc.PhoneColumnIndexes)
		return nil
	},
}

// columnConfigFromFlags reads --file when given, otherwise the individual
// column flags.
func columnConfigFromFlags(cmd *cobra.Command) (model.ColumnConfig, error) {
	var cc model.ColumnConfig

	if file, _ := cmd.Flags().GetString("file"); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return cc, eris.Wrapf(err, "read %s", file)
		}
		if err := yaml.Unmarshal(data, &cc); err != nil {
			return cc, eris.Wrapf(err, "parse %s", file)
		}
		return cc, nil
	}

	if !cmd.Flags().Changed("phone-columns") {
		return cc, eris.New("either --file or --phone-columns is required")
	}
	cc.PhoneColumnIndexes, _ = cmd.Flags().GetIntSlice("phone-columns")
	cc.PhoneColumns, _ = cmd.Flags().GetStringSlice("phone-names")
	if cmd.Flags().Changed("header") {
		header, _ := cmd.Flags().GetBool("header")
		cc.HasHeaderRow = model.Bool(header)
	}
	mode, _ := cmd.Flags().GetString("mode")
	cc.Mode = model.Mode(mode)
	identity, _ := cmd.Flags().GetString("lead-identity")
	cc.LeadIdentity = model.LeadIdentity(identity)
	return cc, nil
}

// -- jobs show --

var jobsShowCmd = &cobra.Command{
	Use:   "show <path>",
	Short: "Show a job document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("jobs"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		doc, err := st.GetJob(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "jobs show")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(doc)
		}
		formatJob(cmd.OutOrStdout(), doc)
		return nil
	},
}

// formatJob writes a human-readable job summary.
func formatJob(w io.Writer, doc *model.Job) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush() //nolint:errcheck

	fmt.Fprintf(tw, "Path:\t%s\n", doc.Path)
	fmt.Fprintf(tw, "Phone columns:\t%v\n", doc.Config.PhoneColumnIndexes)
	if len(doc.Config.PhoneColumns) > 0 {
		fmt.Fprintf(tw, "Phone names:\t%v\n", doc.Config.PhoneColumns)
	}
	if doc.Config.HasHeaderRow != nil {
		fmt.Fprintf(tw, "Header row:\t%t\n", *doc.Config.HasHeaderRow)
	}
	if doc.Config.Mode != "" {
		fmt.Fprintf(tw, "Mode:\t%s\n", doc.Config.Mode)
	}
	if doc.Config.LeadIdentity != "" {
		fmt.Fprintf(tw, "Lead identity:\t%s\n", doc.Config.LeadIdentity)
	}

	if doc.Status != nil {
		fmt.Fprintf(tw, "Status:\t%s (%s)\n", doc.Status.Stage, doc.Status.LastUpdated.Format(time.RFC3339))
	} else {
		fmt.Fprintf(tw, "Status:\t-\n")
	}
	for _, h := range doc.History {
		fmt.Fprintf(tw, "  %s\t%s\n", h.LastUpdated.Format(time.RFC3339), h.Stage)
	}

	if doc.Results != nil {
		fmt.Fprintf(tw, "Results:\ttotal=%d clean=%d dnc=%d\n", doc.Results.Total, doc.Results.Clean, doc.Results.DNC)
	}
	keys := make([]string, 0, len(doc.OutputFiles))
	for k := range doc.OutputFiles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := doc.OutputFiles[k]
		if v == "" {
			v = "-"
		}
		fmt.Fprintf(tw, "%s:\t%s\n", k, v)
	}
}

// addColumnFlags registers the column config flags on cmd.
func addColumnFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("file", "", "YAML column config document")
	f.IntSlice("phone-columns", nil, "zero-based phone column indexes, e.g. 2,3")
	f.StringSlice("phone-names", nil, "display names for the phone columns")
	f.Bool("header", true, "first row is a header")
	f.String("mode", "", "lookup or bulk (default from config)")
	f.String("lead-identity", "", "first_column or non_phone_columns (default from config)")
	cmd.MarkFlagsMutuallyExclusive("file", "phone-columns")
}

func init() {
	addColumnFlags(jobsPutConfigCmd)
	jobsShowCmd.Flags().Bool("json", false, "print the raw document as JSON")

	jobsCmd.AddCommand(jobsPutConfigCmd, jobsShowCmd)
	rootCmd.AddCommand(jobsCmd)
}
