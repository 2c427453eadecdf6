package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Ajanth06/medsafe-udi-sub000/internal/core"
	"github.com/Ajanth06/medsafe-udi-sub000/pkg/domain"
)

func newCheckCmd() *cobra.Command {
	var (
		locale string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "check FILE...",
		Short: "Derive and validate failure-mode rows from JSON or YAML files",
		Long: `Each file holds one failure-mode row or a list of rows, as JSON or YAML,
using the same field names as the HTTP API. The command exits with status 1
when any row fails validation.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var evals []fileEvaluation
			for _, path := range args {
				rows, err := readRowsFile(path)
				if err != nil {
					return err
				}
				for i, row := range rows {
					evals = append(evals, fileEvaluation{
						File:       path,
						Index:      i,
						Evaluation: core.Evaluate(row, locale),
					})
				}
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(evals); err != nil {
					return fmt.Errorf("write evaluations: %w", err)
				}
			} else {
				printEvaluations(out, evals)
			}
			invalid := 0
			for _, e := range evals {
				if !e.Valid {
					invalid++
				}
			}
			if invalid > 0 {
				return exitCodeError{code: 1, msg: fmt.Sprintf("%d of %d rows invalid", invalid, len(evals))}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&locale, "locale", domain.LocaleGerman, "Label locale (de or en)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print evaluations as JSON")
	return cmd
}

type fileEvaluation struct {
	File  string `json:"file"`
	Index int    `json:"index"`
	core.Evaluation
}

// readRowsFile decodes one row or a list of rows. YAML is a superset of
// JSON, so both go through the YAML decoder and are re-encoded as JSON to
// reuse the row's JSON field names and legacy status spellings.
func readRowsFile(path string) ([]domain.FailureMode, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", path, err)
	}
	switch doc.(type) {
	case []any:
		var rows []domain.FailureMode
		if err := json.Unmarshal(asJSON, &rows); err != nil {
			return nil, fmt.Errorf("decode rows in %s: %w", path, err)
		}
		return rows, nil
	case map[string]any:
		var row domain.FailureMode
		if err := json.Unmarshal(asJSON, &row); err != nil {
			return nil, fmt.Errorf("decode row in %s: %w", path, err)
		}
		return []domain.FailureMode{row}, nil
	default:
		return nil, fmt.Errorf("%s: expected a row object or a list of rows", path)
	}
}

func printEvaluations(w io.Writer, evals []fileEvaluation) {
	ok := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()
	for _, e := range evals {
		label := e.File + "#" + strconv.Itoa(e.Index+1)
		if e.Row.Effect != "" {
			label += " (" + e.Row.Effect + ")"
		}
		status := ok("OK")
		if !e.Valid {
			status = bad("INVALID")
		}
		fmt.Fprintf(w, "%s %s: RPN %d, %s, %s\n", status, label, e.Derived.RPN, e.Labels.RiskLevel, acceptabilityColor(e.Derived.Acceptability).Sprint(e.Labels.Acceptability))
		for _, fe := range e.Errors {
			fmt.Fprintf(w, "    %s [%s]: %s\n", fe.Field, fe.Code, fe.Message)
		}
	}
}

func acceptabilityColor(a domain.Acceptability) *color.Color {
	switch a {
	case domain.AcceptabilityNotAcceptable:
		return color.New(color.FgRed, color.Bold)
	case domain.AcceptabilityReview:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgGreen)
	}
}
