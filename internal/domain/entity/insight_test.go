package entity

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Action
		wantErr bool
	}{
		{name: "define", input: "define", want: ActionDefine},
		{name: "upper case", input: "TRANSLATE", want: ActionTranslate},
		{name: "padded", input: "  grammar ", want: ActionGrammar},
		{name: "unknown", input: "summarize", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAction(tt.input)
			if tt.wantErr {
				var ve *ValidationError
				assert.ErrorAs(t, err, &ve)
				assert.Equal(t, "action", ve.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateSelection(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     string
		wantKind ErrorKind
	}{
		{name: "trimmed", input: "  猫  ", want: "猫"},
		{name: "empty", input: "", wantKind: KindInvalidText},
		{name: "whitespace only", input: " \n\t ", wantKind: KindInvalidText},
		{name: "exactly at limit", input: strings.Repeat("a", MaxSelectionChars), want: strings.Repeat("a", MaxSelectionChars)},
		{name: "over limit", input: strings.Repeat("a", MaxSelectionChars+1), wantKind: KindTextTooLong},
		{name: "multibyte at limit", input: strings.Repeat("語", MaxSelectionChars), want: strings.Repeat("語", MaxSelectionChars)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateSelection(tt.input)
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, KindOf(err))
				assert.False(t, IsRetryable(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateRequest(t *testing.T) {
	nc := &NoteContext{NoteType: NoteTypeVocabulary, AllFields: map[string]string{"Front": "猫"}, SelectedText: "猫"}

	assert.NoError(t, ValidateRequest(NewInsightRequest(ActionDefine, "猫", nc)))
	assert.ErrorIs(t, ValidateRequest(NewInsightRequest(ActionDefine, " ", nc)), ErrInvalidText)
	assert.ErrorIs(t, ValidateRequest(NewInsightRequest(ActionDefine, "猫", nil)), ErrMissingContext)
	assert.ErrorIs(t, ValidateRequest(NewInsightRequest(ActionDefine, "猫", &NoteContext{})), ErrMissingContext)
	assert.ErrorIs(t, ValidateRequest(nil), ErrMissingContext)
}

func TestValidateRequest_Action(t *testing.T) {
	nc := &NoteContext{NoteType: NoteTypeVocabulary, AllFields: map[string]string{"Front": "猫"}, SelectedText: "猫"}

	tests := []struct {
		name    string
		action  Action
		wantErr bool
	}{
		{"define", ActionDefine, false},
		{"empty", Action(""), true},
		{"unknown", Action("summarize"), true},
		{"wrong case", Action("Define"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(NewInsightRequest(tt.action, "猫", nc))
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "action", ve.Field)
		})
	}
}

func TestNoteContext_Valid(t *testing.T) {
	assert.True(t, (&NoteContext{AllFields: map[string]string{"a": "b"}, SelectedText: "b"}).Valid())
	assert.False(t, (&NoteContext{AllFields: map[string]string{}, SelectedText: "b"}).Valid())
	assert.False(t, (&NoteContext{AllFields: map[string]string{"a": "b"}, SelectedText: "  "}).Valid())

	var nilCtx *NoteContext
	assert.False(t, nilCtx.Valid())
}

func TestInsightError(t *testing.T) {
	cause := errors.New("HTTP 503: unavailable")

	backend := NewBackendError(cause, true)
	assert.ErrorIs(t, backend, ErrBackend)
	assert.ErrorIs(t, backend, cause)
	assert.True(t, IsRetryable(backend))
	assert.Equal(t, "AI backend error: HTTP 503: unavailable", backend.Error())

	exhausted := NewMaxRetriesExceeded(3, backend)
	assert.ErrorIs(t, exhausted, ErrMaxRetriesExceeded)
	assert.False(t, IsRetryable(exhausted))
	assert.Equal(t, KindMaxRetriesExceeded, KindOf(exhausted))
	assert.Contains(t, exhausted.Error(), "HTTP 503: unavailable")

	wrapped := fmt.Errorf("handler: %w", exhausted)
	assert.Equal(t, KindMaxRetriesExceeded, KindOf(wrapped))
	assert.Equal(t, ErrorKind(""), KindOf(cause))
	assert.False(t, IsRetryable(cause))
}
