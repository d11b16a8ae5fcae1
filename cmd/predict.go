package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"tumorscope/ml"
)

// flagName maps concave_points_mean to concave-points-mean
func flagName(feature string) string {
	return strings.ReplaceAll(feature, "_", "-")
}

func newPredictCmd(a *app) *cobra.Command {
	raw := ml.DefaultFeatures()
	var asJSON bool
	var lang string

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Classify one set of measurements",
		Long:  "Classify one set of measurements. Unset features keep their form defaults.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := raw.Validate(); err != nil {
				return &exitError{code: 2, err: err}
			}
			loader := ml.NewArtifactLoader(a.cfg.ArtifactPaths(), a.logger)
			if _, err := loader.Get(); err != nil {
				return err
			}
			predictor, err := ml.NewPredictor(loader)
			if err != nil {
				return err
			}
			result, err := predictor.Predict(raw)
			if err != nil {
				return err
			}
			tag, err := language.Parse(lang)
			if err != nil {
				return &exitError{code: 2, err: fmt.Errorf("--lang: %w", err)}
			}
			return writePrediction(cmd.OutOrStdout(), result, tag, asJSON)
		},
	}
	for i, spec := range ml.FeatureOrder {
		cmd.Flags().Float64Var(&raw[i], flagName(spec.Name), spec.Default,
			fmt.Sprintf("%s [%g, %g]", spec.Label, spec.Min, spec.Max))
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	cmd.Flags().StringVar(&lang, "lang", "en", "language for the confidence figure")
	return cmd
}

func writePrediction(w io.Writer, result ml.PredictionResult, tag language.Tag, asJSON bool) error {
	display := ml.Render(result, tag)
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			ml.PredictionResult
			Display ml.Display `json:"display"`
		}{result, display})
	}
	_, err := fmt.Fprintf(w, "%s\n%s: %s\n", display.Headline, display.ConfidenceLabel, display.Confidence)
	return err
}

func newFeaturesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "features",
		Short: "List the model inputs in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeFeatures(cmd.OutOrStdout())
		},
	}
}

func writeFeatures(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tGROUP\tMIN\tMAX\tDEFAULT\tLABEL")
	for i, spec := range ml.FeatureOrder {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%g\t%g\t%g\t%s\n", i, spec.Name, spec.Group, spec.Min, spec.Max, spec.Default, spec.Label)
	}
	return tw.Flush()
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load the artifacts once and report where they were looked for",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := ml.NewArtifactLoader(a.cfg.ArtifactPaths(), a.logger)
			_, loadErr := loader.Get()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(map[string]interface{}{
				"state":       loader.State(),
				"diagnostics": loader.Diagnose(),
			}); err != nil {
				return err
			}
			if loadErr != nil {
				return &exitError{code: 1, err: loadErr}
			}
			return nil
		},
	}
}

