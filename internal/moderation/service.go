package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bluesky-social/indigo/atproto/syntax"
	"github.com/rs/zerolog/log"

	"tangled.org/arabica.social/sanctions/internal/ratelimit"
	"tangled.org/arabica.social/sanctions/internal/tracing"
)

// RateLimitAction is the action name moderation attempts are counted under.
const RateLimitAction = "moderateUser"

// Audit log page sizes
const (
	DefaultAuditLimit = 50
	MaxAuditLimit     = 200
)

// ErrReportNotFound is returned when a pre-fill references an unknown report.
var ErrReportNotFound = errors.New("report not found")

var tidClock = syntax.NewTIDClock(0)

// generateTID generates a TID (timestamp-based identifier) using the AT Protocol TID format.
// The shared clock keeps identifiers unique and increasing within the process.
func generateTID() string {
	return tidClock.Next().String()
}

// Actor is the authenticated moderator behind a request.
type Actor struct {
	Identity
	ClientAddr string
}

// Request is a submitted moderation form.
type Request struct {
	Username string `json:"username" url:"username"`
	Action   string `json:"action" url:"action"`
	BanDate  string `json:"banDate,omitempty" url:"banDate,omitempty"`
	Reason   string `json:"reason" url:"reason"`
	ReportID string `json:"report,omitempty" url:"report,omitempty"`
}

// Outcome is the result of a committed moderation action.
type Outcome struct {
	Message  string
	Sanction Sanction
	Audit    AuditEntry
}

// Prefill is a moderation form populated from a report.
type Prefill struct {
	Form   Request `json:"form"`
	Report *Report `json:"report,omitempty"`
}

// Service runs the moderation workflow. It is the only writer of sanctions
// and moderation audit entries.
type Service struct {
	store    Store
	limiter  ratelimit.Limiter
	policies *Policies
	now      func() time.Time
}

// NewService creates a moderation service.
func NewService(store Store, limiter ratelimit.Limiter, policies *Policies) *Service {
	if policies == nil {
		policies = StaticPolicies(DefaultPolicy())
	}
	return &Service{
		store:    store,
		limiter:  limiter,
		policies: policies,
		now:      time.Now,
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Policy returns the policy currently in force.
func (s *Service) Policy() Policy {
	return s.policies.Current()
}

func authorise(actor Actor, minLevel int) error {
	if actor.ID == "" || actor.PermissionLevel < minLevel {
		return fmt.Errorf("%w: level %d, need %d", ErrInsufficientLevel, actor.PermissionLevel, minLevel)
	}
	return nil
}

// Moderate validates and applies one moderation request on behalf of actor.
//
// Rejections are returned as ValidationErrors (one or several) or a
// RateLimitError and leave the store untouched. Any other error is an
// infrastructure failure.
func (s *Service) Moderate(ctx context.Context, actor Actor, req Request) (out *Outcome, err error) {
	ctx, span := tracing.ModerationSpan(ctx, "moderate", actor.ID, req.Username)
	defer func() {
		switch {
		case err == nil:
			tracing.Outcome(span, "committed")
		case IsRejection(err):
			tracing.Outcome(span, "rejected")
		default:
			tracing.EndWithError(span, err)
		}
		span.End()
	}()

	policy := s.policies.Current()
	if err := authorise(actor, policy.ModerateLevel); err != nil {
		return nil, err
	}

	now := s.now()
	req = normalise(req)

	action, err := validateRequest(policy, req, now)
	if err != nil {
		return nil, err
	}

	target, err := NewEligibilityChecker(s.store, policy.StaffLevel).Check(ctx, actor.Identity, req.Username)
	if err != nil {
		return nil, err
	}

	if err := NewConflictGuard(s.store).Check(ctx, action, target.ID); err != nil {
		return nil, err
	}

	res, err := Resolve(action, target.Username, req.Reason, now)
	if err != nil {
		return nil, err
	}

	key := ratelimit.Key(actor.ID, RateLimitAction, actor.ClientAddr)
	decision, err := s.limiter.Allow(ctx, key, policy.RateLimit.Quota, time.Duration(policy.RateLimit.Window))
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	if !decision.Allowed {
		log.Warn().
			Str("actor", actor.ID).
			Str("client_ip", actor.ClientAddr).
			Dur("retry_after", decision.RetryAfter).
			Msg("moderation: rate limit exceeded")
		return nil, &RateLimitError{RetryAfter: decision.RetryAfter}
	}

	entry := AuditEntry{
		ID:        generateTID(),
		Category:  AuditCategoryModeration,
		ActorID:   actor.ID,
		TargetID:  target.ID,
		Note:      res.AuditNote,
		Timestamp: now,
	}

	if IsReversal(action) {
		return s.reverse(ctx, actor, target, res, entry)
	}
	return s.apply(ctx, actor, target, req, res, entry)
}

func (s *Service) apply(ctx context.Context, actor Actor, target *Identity, req Request, res Resolution, entry AuditEntry) (*Outcome, error) {
	sanction := Sanction{
		ID:             generateTID(),
		ModeratorID:    actor.ID,
		TargetID:       target.ID,
		Kind:           res.Kind,
		Active:         true,
		EffectiveUntil: res.EffectiveUntil,
		Reason:         req.Reason,
		ReportID:       req.ReportID,
		CreatedAt:      entry.Timestamp,
	}
	entry.SanctionID = sanction.ID

	if err := s.store.ApplySanction(ctx, sanction, entry); err != nil {
		if errors.Is(err, ErrAlreadySanctioned) {
			// Another moderator committed first.
			return nil, alreadySanctioned()
		}
		return nil, fmt.Errorf("apply sanction: %w", err)
	}

	log.Info().
		Str("actor", actor.ID).
		Str("target", target.ID).
		Str("sanction_id", sanction.ID).
		Str("kind", string(sanction.Kind)).
		Time("effective_until", sanction.EffectiveUntil).
		Str("report_id", sanction.ReportID).
		Msg("moderation: sanction applied")

	return &Outcome{Message: res.Message, Sanction: sanction, Audit: entry}, nil
}

func (s *Service) reverse(ctx context.Context, actor Actor, target *Identity, res Resolution, entry AuditEntry) (*Outcome, error) {
	reversed, err := s.store.ReverseSanction(ctx, target.ID, actor.ID, entry)
	if err != nil {
		if errors.Is(err, ErrNothingToReverse) {
			return nil, nothingToReverse()
		}
		return nil, fmt.Errorf("reverse sanction: %w", err)
	}
	entry.SanctionID = reversed.ID

	log.Info().
		Str("actor", actor.ID).
		Str("target", target.ID).
		Str("sanction_id", reversed.ID).
		Str("kind", string(reversed.Kind)).
		Msg("moderation: sanction reversed")

	return &Outcome{Message: res.Message, Sanction: *reversed, Audit: entry}, nil
}

func normalise(req Request) Request {
	req.Username = strings.TrimSpace(req.Username)
	req.Action = strings.TrimSpace(req.Action)
	req.BanDate = strings.TrimSpace(req.BanDate)
	req.Reason = strings.TrimSpace(req.Reason)
	req.ReportID = strings.TrimSpace(req.ReportID)
	return req
}

// validateRequest checks every form field and returns all field errors at once.
func validateRequest(policy Policy, req Request, now time.Time) (Action, error) {
	var errs ValidationErrors

	if !policy.Username.contains(utf8.RuneCountInString(req.Username)) {
		errs = append(errs, fieldError(FieldUsername, ErrInvalidUsername,
			fmt.Sprintf("must be between %d and %d characters", policy.Username.Min, policy.Username.Max)))
	}

	action, err := ParseAction(req.Action, req.BanDate, now)
	if err != nil {
		var ve *ValidationError
		if !errors.As(err, &ve) {
			return nil, err
		}
		errs = append(errs, ve)
	}

	if !policy.Reason.contains(utf8.RuneCountInString(req.Reason)) {
		errs = append(errs, fieldError(FieldReason, ErrInvalidReason,
			fmt.Sprintf("must be between %d and %d characters", policy.Reason.Min, policy.Reason.Max)))
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return action, nil
}

// Prefill builds a moderation form from the report with the given id.
// An empty id yields an empty form.
func (s *Service) Prefill(ctx context.Context, actor Actor, reportID string) (*Prefill, error) {
	if err := authorise(actor, s.policies.Current().ModerateLevel); err != nil {
		return nil, err
	}

	reportID = strings.TrimSpace(reportID)
	if reportID == "" {
		return &Prefill{}, nil
	}

	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", reportID, err)
	}
	if report == nil {
		return nil, ErrReportNotFound
	}

	return &Prefill{
		Form: Request{
			Username: report.Reportee,
			Reason:   report.Note,
			ReportID: report.ID,
		},
		Report: report,
	}, nil
}

// History returns every sanction recorded against username, newest first.
func (s *Service) History(ctx context.Context, actor Actor, username string) ([]Sanction, error) {
	if err := authorise(actor, s.policies.Current().ModerateLevel); err != nil {
		return nil, err
	}

	target, err := NewEligibilityChecker(s.store, 0).Resolve(ctx, strings.TrimSpace(username))
	if errors.Is(err, ErrTargetNotFound) {
		return nil, fieldError(FieldUsername, ErrTargetNotFound, "User does not exist")
	}
	if err != nil {
		return nil, err
	}

	sanctions, err := s.store.ListSanctions(ctx, target.ID)
	if err != nil {
		return nil, fmt.Errorf("list sanctions: %w", err)
	}
	return sanctions, nil
}

// AuditLog returns the newest audit entries. limit is clamped to
// [1, MaxAuditLimit]; zero or negative means DefaultAuditLimit.
func (s *Service) AuditLog(ctx context.Context, actor Actor, limit int) ([]AuditEntry, error) {
	if err := authorise(actor, s.policies.Current().AuditLevel); err != nil {
		return nil, err
	}

	switch {
	case limit <= 0:
		limit = DefaultAuditLimit
	case limit > MaxAuditLimit:
		limit = MaxAuditLimit
	}

	entries, err := s.store.ListAuditLog(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	return entries, nil
}
