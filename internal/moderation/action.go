package moderation

import (
	"fmt"
	"strings"
	"time"
)

// Action is a requested moderation action. The set of actions is closed:
// Warn, Ban, Terminate and Unban are the only implementations.
type Action interface {
	// Code is the form value that selects this action.
	Code() string
	String() string
	accept(v ActionVisitor)
}

// ActionVisitor handles every action kind. Adding an action adds a method
// here, so every consumer stops compiling until it handles the new kind.
type ActionVisitor interface {
	VisitWarn(Warn)
	VisitBan(Ban)
	VisitTerminate(Terminate)
	VisitUnban(Unban)
}

// Visit dispatches a to the method of v matching its concrete kind.
func Visit(a Action, v ActionVisitor) {
	a.accept(v)
}

type (
	// Warn records a warning with no expiry.
	Warn struct{}
	// Ban suspends the target until the given instant.
	Ban struct{ Until time.Time }
	// Terminate permanently closes the target's account.
	Terminate struct{}
	// Unban reverses the target's active sanction.
	Unban struct{}
)

func (Warn) Code() string      { return "1" }
func (Ban) Code() string       { return "2" }
func (Terminate) Code() string { return "3" }
func (Unban) Code() string     { return "4" }

func (Warn) String() string      { return "warn" }
func (Ban) String() string       { return "ban" }
func (Terminate) String() string { return "terminate" }
func (Unban) String() string     { return "unban" }

func (a Warn) accept(v ActionVisitor)      { v.VisitWarn(a) }
func (a Ban) accept(v ActionVisitor)       { v.VisitBan(a) }
func (a Terminate) accept(v ActionVisitor) { v.VisitTerminate(a) }
func (a Unban) accept(v ActionVisitor)     { v.VisitUnban(a) }

// IsReversal reports whether a deactivates a sanction instead of creating one.
func IsReversal(a Action) bool {
	_, ok := a.(Unban)
	return ok
}

// banDateLayouts are the accepted banDate encodings, most specific first.
var banDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.DateOnly,
}

// BanDateLayout is how ban dates are rendered in notes and messages.
const BanDateLayout = time.DateOnly

// ParseAction turns the submitted action code and ban date into an Action.
// The ban date is parsed and checked against now before anything else
// touches it; a ban that does not end strictly after now is rejected.
func ParseAction(code, banDate string, now time.Time) (Action, error) {
	a, ok := ActionByCode(code)
	if !ok {
		return nil, fieldError(FieldAction, ErrInvalidAction, "must be a valid moderation action")
	}
	if _, isBan := a.(Ban); !isBan {
		return a, nil
	}

	until, err := parseBanDate(banDate)
	if err != nil {
		return nil, fieldError(FieldBanDate, ErrInvalidBanDate, "Invalid date")
	}
	if !until.After(now) {
		return nil, fieldError(FieldBanDate, ErrInvalidBanDate, "Invalid date")
	}
	return Ban{Until: until}, nil
}

// Actions returns one value of every action kind, in code order.
func Actions() []Action {
	return []Action{Warn{}, Ban{}, Terminate{}, Unban{}}
}

// ActionByCode returns the action kind selected by a form code. A Ban
// returned here carries no end date.
func ActionByCode(code string) (Action, bool) {
	code = strings.TrimSpace(code)
	for _, a := range Actions() {
		if a.Code() == code {
			return a, true
		}
	}
	return nil, false
}

func parseBanDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty ban date")
	}
	for _, layout := range banDateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised ban date %q", s)
}

// Resolution is the canonical outcome of resolving an action against a target.
type Resolution struct {
	Action         Action
	Kind           SanctionKind // empty for reversals
	EffectiveUntil time.Time
	AuditNote      string
	Message        string
}

// Resolve maps an action to the sanction kind, audit note and user-facing
// message for the given target and reason. It performs no I/O.
func Resolve(a Action, target, reason string, now time.Time) (Resolution, error) {
	r := &resolver{target: target, reason: reason, now: now}
	Visit(a, r)
	if r.err != nil {
		return Resolution{}, r.err
	}
	r.res.Action = a
	return r.res, nil
}

type resolver struct {
	target string
	reason string
	now    time.Time

	res Resolution
	err error
}

var _ ActionVisitor = (*resolver)(nil)

func (r *resolver) VisitWarn(Warn) {
	r.res = Resolution{
		Kind:           SanctionWarning,
		EffectiveUntil: r.now,
		AuditNote:      fmt.Sprintf("Warn %s: %s", r.target, r.reason),
		Message:        r.target + " has been warned",
	}
}

func (r *resolver) VisitBan(b Ban) {
	if !b.Until.After(r.now) {
		r.err = fieldError(FieldBanDate, ErrInvalidBanDate, "Invalid date")
		return
	}
	date := b.Until.UTC().Format(BanDateLayout)
	r.res = Resolution{
		Kind:           SanctionBan,
		EffectiveUntil: b.Until,
		AuditNote:      fmt.Sprintf("Ban %s until %s: %s", r.target, date, r.reason),
		Message:        r.target + " has been banned until " + date,
	}
}

func (r *resolver) VisitTerminate(Terminate) {
	r.res = Resolution{
		Kind:           SanctionTermination,
		EffectiveUntil: r.now,
		AuditNote:      fmt.Sprintf("Terminate %s: %s", r.target, r.reason),
		Message:        r.target + " has been terminated",
	}
}

func (r *resolver) VisitUnban(Unban) {
	r.res = Resolution{
		AuditNote: "Unban " + r.target,
		Message:   r.target + " has been unbanned",
	}
}
