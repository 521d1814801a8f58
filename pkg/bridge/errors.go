package bridge

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrIdentityFrozen is returned when node identity is changed while the
// element is connected to the graph. Identity is only mutable in NULL.
var ErrIdentityFrozen = errors.New("bridge: node identity cannot change while connected")

// ErrFormatFrozen is returned when caps are renegotiated to a different
// format within a single session. Renegotiation requires a full stop.
var ErrFormatFrozen = errors.New("bridge: format is frozen for this session")

// OpenError reports a NULL→READY failure. The element remains in NULL.
type OpenError struct {
	Cause error
}

func (e *OpenError) Error() string { return "bridge: open failed: " + e.Cause.Error() }
func (e *OpenError) Unwrap() error { return e.Cause }

// CloseError reports an endpoint teardown failure. It is logged by the
// controller and never propagated; teardown always runs to completion.
type CloseError struct {
	Cause error
}

func (e *CloseError) Error() string { return "bridge: close failed: " + e.Cause.Error() }
func (e *CloseError) Unwrap() error { return e.Cause }

// NegotiationReject reports that no proposed format satisfies the template.
// Streaming must not start after a reject.
type NegotiationReject struct {
	Template  string
	Proposals int
}

func (e *NegotiationReject) Error() string {
	return fmt.Sprintf("bridge: no acceptable format among %d proposals for %s", e.Proposals, e.Template)
}

// TranslationDrop reports that a buffer or message could not be translated
// and was discarded. It never interrupts pipeline flow. Kind is a bounded
// classification used for metric labels.
type TranslationDrop struct {
	Kind   string
	Reason string
}

func (e *TranslationDrop) Error() string { return "bridge: buffer dropped: " + e.Reason }

// InvalidTransitionError reports a request that does not follow the lattice.
type InvalidTransitionError struct {
	From, To State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("bridge: invalid transition %s -> %s", e.From, e.To)
}
