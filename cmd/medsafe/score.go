package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Ajanth06/medsafe-udi-sub000/pkg/domain"
)

func newScoreCmd() *cobra.Command {
	var locale string
	cmd := &cobra.Command{
		Use:   "score SEVERITY OCCURRENCE DETECTION",
		Short: "Print the RPN, risk level and acceptability for three ratings",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ratings [3]float64
			for i, arg := range args {
				v, err := strconv.ParseFloat(arg, 64)
				if err != nil {
					return fmt.Errorf("rating %q is not a number", arg)
				}
				ratings[i] = v
			}
			rpn := domain.ComputeRPN(ratings[0], ratings[1], ratings[2])
			level := domain.ClassifyRiskLevel(rpn)
			acceptability := domain.ClassifyAcceptability(level)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "RPN: %d\n", rpn)
			fmt.Fprintf(out, "Risk level: %s\n", level.Label(locale))
			fmt.Fprintf(out, "Acceptability: %s\n", acceptabilityColor(acceptability).Sprint(acceptability.Label(locale)))
			return nil
		},
	}
	cmd.Flags().StringVar(&locale, "locale", domain.LocaleGerman, "Label locale (de or en)")
	return cmd
}
