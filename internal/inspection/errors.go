package inspection

import (
	"errors"
	"strings"

	"github.com/sanorte/vistorias/internal/rules"
)

var (
	// ErrNotDraft is returned when answers or header fields of an inspection
	// that already left DRAFT are edited.
	ErrNotDraft = errors.New("inspection is not a draft")

	// ErrNotAdjustable is returned when resolving items of an inspection
	// that is not NEEDS_ADJUSTMENT.
	ErrNotAdjustable = errors.New("inspection has no pending adjustments")

	// ErrUnknownItem is returned when a checklist item is not part of the
	// inspection or of its checklist.
	ErrUnknownItem = errors.New("unknown checklist item")
)

// FinalizeRejectedError lists every reason a Finalize call was refused.
type FinalizeRejectedError struct {
	Validation rules.Validation
}

func (e *FinalizeRejectedError) Error() string {
	return "cannot finalize inspection: " + strings.Join(e.Validation.Messages(), "; ")
}

// Has reports whether the rejection contains the given failure code.
func (e *FinalizeRejectedError) Has(code rules.ErrorCode) bool {
	for _, fe := range e.Validation.Errors {
		if fe.Code == code {
			return true
		}
	}
	return false
}
