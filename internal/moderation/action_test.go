package moderation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestParseAction(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		banDate   string
		want      Action
		wantField string
	}{
		{name: "warn", code: "1", want: Warn{}},
		{name: "warn ignores ban date", code: "1", banDate: "garbage", want: Warn{}},
		{name: "ban date only", code: "2", banDate: "2026-03-02", want: Ban{Until: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)}},
		{name: "ban datetime-local", code: "2", banDate: "2026-03-01T12:30", want: Ban{Until: time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)}},
		{name: "ban rfc3339", code: "2", banDate: "2026-04-01T00:00:00Z", want: Ban{Until: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)}},
		{name: "terminate", code: "3", want: Terminate{}},
		{name: "unban", code: "4", want: Unban{}},
		{name: "code is trimmed", code: " 3 ", want: Terminate{}},
		{name: "ban without date", code: "2", wantField: FieldBanDate},
		{name: "ban malformed date", code: "2", banDate: "next tuesday", wantField: FieldBanDate},
		{name: "ban in the past", code: "2", banDate: "2026-02-28", wantField: FieldBanDate},
		{name: "ban exactly now", code: "2", banDate: "2026-03-01T12:00:00Z", wantField: FieldBanDate},
		{name: "unknown code", code: "5", wantField: FieldAction},
		{name: "empty code", code: "", wantField: FieldAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAction(tt.code, tt.banDate, testNow)
			if tt.wantField != "" {
				var ve *ValidationError
				require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
				assert.Equal(t, tt.wantField, ve.Field)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseActionBanDateErrors(t *testing.T) {
	_, err := ParseAction("2", "2020-01-01", testNow)
	assert.ErrorIs(t, err, ErrInvalidBanDate)
	assert.Equal(t, map[string][]string{FieldBanDate: {"Invalid date"}}, FieldErrors(err))

	_, err = ParseAction("7", "", testNow)
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestResolve(t *testing.T) {
	reason := "Repeated spam in chat channel"
	until := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		action  Action
		kind    SanctionKind
		until   time.Time
		note    string
		message string
	}{
		{"warn", Warn{}, SanctionWarning, testNow, "Warn alice: " + reason, "alice has been warned"},
		{"ban", Ban{Until: until}, SanctionBan, until, "Ban alice until 2026-03-02: " + reason, "alice has been banned until 2026-03-02"},
		{"terminate", Terminate{}, SanctionTermination, testNow, "Terminate alice: " + reason, "alice has been terminated"},
		{"unban", Unban{}, "", time.Time{}, "Unban alice", "alice has been unbanned"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Resolve(tt.action, "alice", reason, testNow)
			require.NoError(t, err)
			assert.Equal(t, tt.action, res.Action)
			assert.Equal(t, tt.kind, res.Kind)
			assert.True(t, tt.until.Equal(res.EffectiveUntil))
			assert.Equal(t, tt.note, res.AuditNote)
			assert.Equal(t, tt.message, res.Message)
		})
	}
}

func TestResolveRejectsExpiredBan(t *testing.T) {
	_, err := Resolve(Ban{Until: testNow.Add(-time.Second)}, "bob", "whatever reason here", testNow)
	assert.ErrorIs(t, err, ErrInvalidBanDate)
}

func TestActionCodesRoundTrip(t *testing.T) {
	for _, a := range []Action{Warn{}, Ban{Until: testNow.Add(time.Hour)}, Terminate{}, Unban{}} {
		parsed, err := ParseAction(a.Code(), testNow.Add(time.Hour).Format(time.RFC3339), testNow)
		require.NoError(t, err)
		assert.Equal(t, a.String(), parsed.String())
	}
	assert.True(t, IsReversal(Unban{}))
	assert.False(t, IsReversal(Ban{}))
}

func TestActionsCoverEveryKind(t *testing.T) {
	v := &countingVisitor{seen: map[string]int{}}
	codes := map[string]bool{}
	for _, a := range Actions() {
		Visit(a, v)
		codes[a.Code()] = true

		byCode, ok := ActionByCode(a.Code())
		require.True(t, ok)
		assert.Equal(t, a, byCode)
	}
	assert.Equal(t, map[string]int{"warn": 1, "ban": 1, "terminate": 1, "unban": 1}, v.seen)
	assert.Len(t, codes, len(Actions()))

	_, ok := ActionByCode("5")
	assert.False(t, ok)
}

type countingVisitor struct{ seen map[string]int }

func (v *countingVisitor) VisitWarn(Warn)           { v.seen["warn"]++ }
func (v *countingVisitor) VisitBan(Ban)             { v.seen["ban"]++ }
func (v *countingVisitor) VisitTerminate(Terminate) { v.seen["terminate"]++ }
func (v *countingVisitor) VisitUnban(Unban)         { v.seen["unban"]++ }

func TestVisitDispatchesByKind(t *testing.T) {
	v := &countingVisitor{seen: map[string]int{}}
	for _, a := range []Action{Warn{}, Ban{}, Ban{}, Terminate{}, Unban{}} {
		Visit(a, v)
	}
	assert.Equal(t, map[string]int{"warn": 1, "ban": 2, "terminate": 1, "unban": 1}, v.seen)
}
