package reasoning

import (
	"context"

	"github.com/harborstay/concierge/services/agent/datatypes"
)

// Intent classifies what the user is trying to do this turn.
type Intent string

const (
	IntentProvideInfo Intent = "provide_info"
	IntentSelectOffer Intent = "select_offer"
	IntentCancel      Intent = "cancel"
	IntentReset       Intent = "reset"
	IntentOther       Intent = "other"
)

// Interpretation is the structured reading of one user message against the
// current constraints.
type Interpretation struct {
	Intent Intent                    `json:"intent"`
	Delta  datatypes.ConstraintDelta `json:"constraint_delta"`

	// OfferRef is what the user said to identify an offer when Intent is
	// select_offer: an exact offer_id or a fuzzy reference like a hotel name.
	OfferRef string `json:"offer_ref,omitempty"`

	// ReplyHint is optional free text the model suggests weaving into the
	// reply. It is grounding-checked before use and dropped on violation.
	ReplyHint string `json:"reply_hint,omitempty"`
}

// Interpreter is the narrow contract for the external reasoning capability.
//
// Implementations must degrade, never fail structurally: an unparseable
// message yields IntentOther with an empty delta and a nil error. Errors are
// reserved for transport-level failures the caller may want to log; callers
// still treat those as IntentOther.
type Interpreter interface {
	Interpret(ctx context.Context, message string, current datatypes.Constraints) (Interpretation, error)
}
