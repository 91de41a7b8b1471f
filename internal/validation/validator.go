package validation

import (
	"fmt"

	"github.com/renvik/convograph/pkg/schema"
)

// ExpressionLinter parse-checks opaque decision action expressions.
// Implementations live in internal/expressions; lint findings are always
// advisory because generated code carries the expression verbatim.
type ExpressionLinter interface {
	Name() string
	Check(expression string) error
}

// FlowValidator orchestrates the two-pass acceptance gate:
// 1. Structural (JSON Schema)
// 2. Graph-semantic (id uniqueness, reference resolution)
type FlowValidator struct {
	structural *StructuralValidator
	linter     ExpressionLinter
}

// NewFlowValidator creates a FlowValidator.
// linter may be nil to skip advisory expression checks.
func NewFlowValidator(linter ExpressionLinter) (*FlowValidator, error) {
	sv, err := NewStructuralValidator()
	if err != nil {
		return nil, err
	}
	return &FlowValidator{structural: sv, linter: linter}, nil
}

// Validate runs both passes and returns an aggregated result.
// Structural errors short-circuit: the graph pass is skipped because the
// graph may not even decode coherently.
func (fv *FlowValidator) Validate(doc *schema.FlowDocument) *schema.ValidationResult {
	result := fv.structural.ValidateDocument(doc)
	if !result.Valid() {
		return result
	}
	result.Merge(ValidateGraph(doc))
	return result
}

// ValidateRaw validates imported JSON bytes: structural pass on the raw
// bytes, then the graph pass on the decoded document.
func (fv *FlowValidator) ValidateRaw(raw []byte) (*schema.FlowDocument, *schema.ValidationResult) {
	result := fv.structural.ValidateStructure(raw)
	if !result.Valid() {
		return nil, result
	}

	doc, err := Decode(raw)
	if err != nil {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return nil, result
	}
	result.Merge(ValidateGraph(doc))
	return doc, result
}

// Lint is the live-editing variant: dangling references are downgraded to
// warnings (the user may repoint them or undo), and decision actions get
// advisory parse checks. Structural and duplicate-id errors stay errors.
func (fv *FlowValidator) Lint(doc *schema.FlowDocument) *schema.ValidationResult {
	strict := fv.Validate(doc)

	result := &schema.ValidationResult{Warnings: strict.Warnings}
	for _, issue := range strict.Errors {
		if issue.Code == schema.ErrCodeDangling {
			issue.Severity = schema.SeverityWarning
			result.Warnings = append(result.Warnings, issue)
			continue
		}
		result.Errors = append(result.Errors, issue)
	}

	if fv.linter != nil && doc != nil {
		lintActions(doc, fv.linter, result)
	}
	return result
}

// lintActions parse-checks every decision action expression.
func lintActions(doc *schema.FlowDocument, linter ExpressionLinter, result *schema.ValidationResult) {
	for ni := range doc.Nodes {
		for fi := range doc.Nodes[ni].Data.Functions {
			fn := &doc.Nodes[ni].Data.Functions[fi]
			if fn.Decision == nil || fn.Decision.Action == "" {
				continue
			}
			if err := linter.Check(fn.Decision.Action); err != nil {
				result.AddWarning(
					fmt.Sprintf("nodes[%d].data.functions[%d].decision.action", ni, fi),
					schema.ErrCodeExpression,
					fmt.Sprintf("action does not parse as %s: %s", linter.Name(), err))
			}
		}
	}
}
