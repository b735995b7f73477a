// Package rules holds the pure domain rules applied when an inspection is
// finalized: scoring, status determination and finalize validation.
package rules

import (
	"fmt"
	"strings"

	"github.com/sanorte/vistorias/internal/offline/schema"
)

// CalculateScore returns the conformity percentage of the evaluated items.
// An item is evaluated when it is answered and not NAO_APLICAVEL. With no
// evaluated items the score is 100. The result is rounded half up.
func CalculateScore(items []*schema.InspectionItem) int {
	evaluated, conforme := 0, 0
	for _, it := range items {
		if !it.Answer.IsSet() || it.Answer == schema.AnswerNaoAplicavel {
			continue
		}
		evaluated++
		if it.Answer == schema.AnswerConforme {
			conforme++
		}
	}
	if evaluated == 0 {
		return 100
	}
	return (200*conforme + evaluated) / (2 * evaluated)
}

// DetermineStatus returns NEEDS_ADJUSTMENT if any item is NAO_CONFORME and
// FINALIZED otherwise.
func DetermineStatus(items []*schema.InspectionItem) schema.Status {
	for _, it := range items {
		if it.Answer == schema.AnswerNaoConforme {
			return schema.StatusNeedsAdjustment
		}
	}
	return schema.StatusFinalized
}

// AllResolved reports whether every NAO_CONFORME item carries a complete
// resolution. It is false when there is nothing to resolve.
func AllResolved(items []*schema.InspectionItem) bool {
	pending := 0
	for _, it := range items {
		if it.Answer != schema.AnswerNaoConforme {
			continue
		}
		pending++
		if !it.IsResolved() {
			return false
		}
	}
	return pending > 0
}

// ErrorCode identifies a finalize validation failure.
type ErrorCode string

const (
	CodeSignatureRequired ErrorCode = "SIGNATURE_REQUIRED"
	CodeMissingAnswers    ErrorCode = "MISSING_ANSWERS"
	CodePhotoRequired     ErrorCode = "PHOTO_REQUIRED"
)

// FinalizeError is one reason an inspection cannot be finalized.
type FinalizeError struct {
	Code            ErrorCode `json:"code"`
	Message         string    `json:"message"`
	ChecklistItemID string    `json:"checklistItemId,omitempty"`
}

func (e FinalizeError) Error() string {
	return e.Message
}

// Validation is the outcome of ValidateFinalize.
type Validation struct {
	Valid  bool            `json:"valid"`
	Errors []FinalizeError `json:"errors,omitempty"`
}

// Messages returns the human readable messages in order.
func (v Validation) Messages() []string {
	out := make([]string, len(v.Errors))
	for i, e := range v.Errors {
		out[i] = e.Message
	}
	return out
}

// ValidateFinalize checks that an inspection can be finalized:
//   - a signature with a non-blank signer name exists
//   - every active checklist item has an answer (reported once, with a count)
//   - every NAO_CONFORME item whose checklist item requires a photo has at
//     least one evidence linked to it (reported per item)
func ValidateFinalize(checklist *schema.Checklist, items []*schema.InspectionItem, evidences []*schema.Evidence, signature *schema.Signature) Validation {
	var errs []FinalizeError

	if signature == nil || strings.TrimSpace(signature.SignerName) == "" {
		errs = append(errs, FinalizeError{
			Code:    CodeSignatureRequired,
			Message: "Assinatura do líder/encarregado é obrigatória.",
		})
	}

	answers := make(map[string]schema.Answer, len(items))
	for _, it := range items {
		if it.Answer.IsSet() {
			answers[it.ChecklistItemID] = it.Answer
		}
	}

	var active []schema.ChecklistItem
	if checklist != nil {
		active = checklist.ActiveItems()
	}
	missing := 0
	for _, ci := range active {
		if _, ok := answers[ci.ID]; !ok {
			missing++
		}
	}
	if missing > 0 {
		errs = append(errs, FinalizeError{
			Code:    CodeMissingAnswers,
			Message: fmt.Sprintf("Existem itens sem resposta (%d).", missing),
		})
	}

	withEvidence := make(map[string]bool, len(evidences))
	for _, ev := range evidences {
		if ev.InspectionItemID != "" {
			withEvidence[ev.InspectionItemID] = true
		}
	}
	for _, it := range items {
		if it.Answer != schema.AnswerNaoConforme || checklist == nil {
			continue
		}
		ci, ok := checklist.ItemByID(it.ChecklistItemID)
		if !ok || !ci.RequiresPhotoOnNonConformity {
			continue
		}
		if !withEvidence[it.ID] {
			errs = append(errs, FinalizeError{
				Code:            CodePhotoRequired,
				Message:         fmt.Sprintf("O item %q requer foto obrigatória.", ci.Title),
				ChecklistItemID: ci.ID,
			})
		}
	}

	return Validation{Valid: len(errs) == 0, Errors: errs}
}
