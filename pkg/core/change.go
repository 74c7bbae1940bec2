package core

import "fmt"

// Result types the server annotates changes with when include_types is set.
const (
	ResultAdd       = "add"
	ResultRemove    = "remove"
	ResultChange    = "change"
	ResultInitial   = "initial"
	ResultUninitial = "uninitial"
	ResultState     = "state"
)

// Change is one change-feed event. ResultType is present only when the
// query asked for include_types.
type Change[T any] struct {
	ResultType *string `json:"type,omitempty"`
	OldVal     *T      `json:"old_val"`
	NewVal     *T      `json:"new_val"`
}

// Action classifies a change for callers that branch on it.
type Action int

// Action constants.
const (
	// ActionInvalid means the change carried no result type.
	ActionInvalid Action = iota
	ActionAdd
	ActionRemove
	ActionChange
	ActionInitial
	// ActionUnsupported is any other result type, passed through unchanged.
	ActionUnsupported
)

func (a Action) String() string {
	switch a {
	case ActionAdd:
		return "add"
	case ActionRemove:
		return "remove"
	case ActionChange:
		return "change"
	case ActionInitial:
		return "initial"
	case ActionUnsupported:
		return "unsupported"
	}
	return "invalid"
}

// Action maps ResultType onto an Action.
func (c Change[T]) Action() Action {
	if c.ResultType == nil {
		return ActionInvalid
	}
	switch *c.ResultType {
	case ResultAdd:
		return ActionAdd
	case ResultRemove:
		return ActionRemove
	case ResultChange:
		return ActionChange
	case ResultInitial:
		return ActionInitial
	default:
		return ActionUnsupported
	}
}

// Type returns the result type string, or "" when absent.
func (c Change[T]) Type() string {
	if c.ResultType == nil {
		return ""
	}
	return *c.ResultType
}

// Validate checks that the values present agree with the result type: add
// and initial carry only new_val, remove only old_val, change both. Untyped
// and other result types need at least one of the two. The change decoder
// turns a failing document into an Unexpected one.
func (c Change[T]) Validate() error {
	hasOld, hasNew := c.OldVal != nil, c.NewVal != nil
	var ok bool
	switch c.Action() {
	case ActionAdd, ActionInitial:
		ok = hasNew && !hasOld
	case ActionRemove:
		ok = hasOld && !hasNew
	case ActionChange:
		ok = hasOld && hasNew
	default:
		ok = hasOld || hasNew
	}
	if ok {
		return nil
	}
	typ := c.Type()
	if typ == "" {
		typ = "untyped"
	}
	return fmt.Errorf("%s change with old_val present=%t, new_val present=%t", typ, hasOld, hasNew)
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }
