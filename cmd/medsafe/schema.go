package main

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/Ajanth06/medsafe-udi-sub000/pkg/domain"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of a failure-mode row as accepted by check and the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := json.MarshalIndent(failureModeSchema(), "", "  ")
			if err != nil {
				return fmt.Errorf("encode schema: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}

func failureModeSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
		Mapper:                     mapDomainType,
	}
	s := r.Reflect(&domain.FailureMode{})
	s.Title = "FMEA failure mode"
	return s
}

var (
	dateType          = reflect.TypeOf(domain.Date{})
	actionStatusType  = reflect.TypeOf(domain.ActionStatus(""))
	reasonType        = reflect.TypeOf(domain.ReassessmentReason(""))
	riskLevelType     = reflect.TypeOf(domain.RiskLevel(""))
	acceptabilityType = reflect.TypeOf(domain.Acceptability(""))
)

func mapDomainType(t reflect.Type) *jsonschema.Schema {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t {
	case dateType:
		return &jsonschema.Schema{Type: "string", Format: "date"}
	case actionStatusType:
		return enumSchema(domain.ActionOpen, domain.ActionInProgress, domain.ActionClosed)
	case reasonType:
		return enumSchema(domain.ReassessmentReasons()...)
	case riskLevelType:
		return enumSchema(domain.RiskLow, domain.RiskMedium, domain.RiskHigh)
	case acceptabilityType:
		return enumSchema(domain.AcceptabilityAcceptable, domain.AcceptabilityReview, domain.AcceptabilityNotAcceptable)
	}
	return nil
}

func enumSchema[T ~string](values ...T) *jsonschema.Schema {
	enum := make([]any, len(values))
	for i, v := range values {
		enum[i] = string(v)
	}
	return &jsonschema.Schema{Type: "string", Enum: enum}
}
