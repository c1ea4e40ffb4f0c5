package engine

import (
	"strconv"

	"github.com/smilemakc/flowcore/internal/apperrors"
)

// Ceilings holds the per-run token and depth guards of spec.md §4.4/§6,
// set per run through Options.Ceilings. They are not read from blueprint
// metadata, and the HTTP run request does not carry them.
type Ceilings struct {
	TokenCeiling int64
	DepthCeiling int
}

// CheckTokens returns a apperrors.KindTokenBudget error once st.TokensUsed
// has reached c.TokenCeiling (0 = unlimited).
func (c Ceilings) CheckTokens(st *State) error {
	if c.TokenCeiling <= 0 {
		return nil
	}
	if st.TokensUsed >= c.TokenCeiling {
		return apperrors.New(apperrors.KindTokenBudget, "engine.ceiling",
			&ceilingError{kind: "token", used: st.TokensUsed, limit: c.TokenCeiling})
	}
	return nil
}

// CheckDepth returns a apperrors.KindDepthExceeded error once st.Depth has
// reached c.DepthCeiling (0 = unlimited), per spec.md §4.4's recursive
// re-entry bound.
func (c Ceilings) CheckDepth(st *State) error {
	if c.DepthCeiling <= 0 {
		return nil
	}
	if st.Depth >= c.DepthCeiling {
		return apperrors.New(apperrors.KindDepthExceeded, "engine.ceiling",
			&ceilingError{kind: "depth", used: int64(st.Depth), limit: int64(c.DepthCeiling)})
	}
	return nil
}

type ceilingError struct {
	kind  string
	used  int64
	limit int64
}

func (e *ceilingError) Error() string {
	return e.kind + " ceiling exceeded: used " + strconv.FormatInt(e.used, 10) +
		" of " + strconv.FormatInt(e.limit, 10)
}
