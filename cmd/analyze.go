package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sells-group/qualify-cli/internal/model"
	"github.com/sells-group/qualify-cli/internal/qualify"
)

// analysisFlags are shared by analyze and batch.
type analysisFlags struct {
	business model.Business
	depth    string
	workflow string
	tier     string
}

func (f *analysisFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.business.Name, "business", "", "business name (required)")
	fs.StringVar(&f.business.Description, "description", "", "what the business does")
	fs.StringVar(&f.business.TargetAudience, "audience", "", "target audience")
	fs.StringVar(&f.business.Industry, "industry", "", "industry")
	fs.StringVar(&f.business.Website, "website", "", "business website")
	fs.StringVar(&f.depth, "depth", string(model.DepthLight), "analysis depth: light, deep or extended")
	fs.StringVar(&f.workflow, "workflow", "", "workflow name (default: the depth name)")
	fs.StringVar(&f.tier, "tier", "", "model tier: economy, balanced or premium (default by depth)")
}

func (f *analysisFlags) options() qualify.Options {
	return qualify.Options{Workflow: f.workflow, Tier: model.Tier(f.tier)}
}

var (
	analyzeFlags  analysisFlags
	analyzeFormat string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <profile>",
	Short: "Qualify one profile against a business",
	Long:  "Qualify one profile, given as @handle, handle or profile URL, and print the outcome.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initQualify(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		out := env.Service.RunAnalysis(ctx, args[0], analyzeFlags.business, model.Depth(analyzeFlags.depth), analyzeFlags.options())
		if err := writeOutcome(cmd.OutOrStdout(), out, analyzeFormat); err != nil {
			return err
		}
		if out.Verdict == model.VerdictError {
			return eris.New(out.Error)
		}
		return nil
	},
}

func init() {
	analyzeFlags.register(analyzeCmd.Flags())
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "json", "output format: json or pretty")
	rootCmd.AddCommand(analyzeCmd)
}

func writeOutcome(w io.Writer, out *qualify.Outcome, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "pretty":
		_, err := fmt.Fprintln(w, renderOutcome(out))
		return err
	default:
		return eris.Errorf("unknown format %q", format)
	}
}
