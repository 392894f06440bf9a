package entity

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Action is the kind of AI assistance requested for a selection.
type Action string

const (
	ActionDefine    Action = "define"
	ActionExplain   Action = "explain"
	ActionTranslate Action = "translate"
	ActionGrammar   Action = "grammar"
	ActionContext   Action = "context"
)

// Actions lists every supported action in display order.
var Actions = []Action{ActionDefine, ActionExplain, ActionTranslate, ActionGrammar, ActionContext}

// Valid reports whether a is one of the supported actions.
func (a Action) Valid() bool {
	switch a {
	case ActionDefine, ActionExplain, ActionTranslate, ActionGrammar, ActionContext:
		return true
	}
	return false
}

// ParseAction converts s (case-insensitive) to an Action.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", &ValidationError{Field: "action", Message: fmt.Sprintf("invalid action %q", s)}
	}
	return a, nil
}

// NoteType tags the structural schema of a note. Unknown non-empty values are
// accepted as opaque tags.
type NoteType string

const (
	NoteTypeBasic         NoteType = "basic"
	NoteTypeBasicReversed NoteType = "basic-reversed"
	NoteTypeVocabulary    NoteType = "vocabulary"
	NoteTypeSentence      NoteType = "sentence"
	NoteTypeCloze         NoteType = "cloze"
)

const (
	// MaxSelectionChars bounds the selection of a request.
	MaxSelectionChars = 1000
	// MaxContextSelectionChars bounds the selection copy stored in a NoteContext.
	MaxContextSelectionChars = 500
)

// NoteContext is the flattened, size-bounded view of a note handed to every request.
type NoteContext struct {
	NoteType     NoteType          `json:"noteType"`
	AllFields    map[string]string `json:"allFields"`
	CurrentField string            `json:"currentField"`
	SelectedText string            `json:"selectedText"`
	NoteID       string            `json:"noteId,omitempty"`
	DeckID       string            `json:"deckId,omitempty"`
}

// Valid reports whether the context can be submitted.
func (c *NoteContext) Valid() bool {
	return c != nil && len(c.AllFields) > 0 && strings.TrimSpace(c.SelectedText) != ""
}

// InsightRequest is one request unit. It is immutable once built.
type InsightRequest struct {
	Action       Action
	SelectedText string
	Context      *NoteContext
	Timestamp    time.Time
}

// NewInsightRequest builds a request stamped with the current time.
func NewInsightRequest(action Action, selectedText string, nc *NoteContext) *InsightRequest {
	return &InsightRequest{
		Action:       action,
		SelectedText: selectedText,
		Context:      nc,
		Timestamp:    time.Now(),
	}
}

// InsightResponse is one result unit.
type InsightResponse struct {
	Action       Action    `json:"action"`
	SelectedText string    `json:"selectedText"`
	Insight      string    `json:"insight"`
	Suggestion   string    `json:"suggestion,omitempty"`
	Examples     []string  `json:"examples,omitempty"`
	Confidence   *float64  `json:"confidence,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	// Source names the backend that produced the response.
	Source string `json:"source,omitempty"`
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

// ValidateSelection trims text and checks the request bounds.
func ValidateSelection(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrInvalidText
	}
	if utf8.RuneCountInString(text) > MaxSelectionChars {
		return "", &InsightError{
			Kind:    KindTextTooLong,
			Message: fmt.Sprintf("selected text must be at most %d characters", MaxSelectionChars),
		}
	}
	return trimmed, nil
}

// ValidateRequest runs the fail-fast checks that precede any backend call.
func ValidateRequest(req *InsightRequest) error {
	if req == nil {
		return ErrMissingContext
	}
	if !req.Action.Valid() {
		return &ValidationError{Field: "action", Message: fmt.Sprintf("invalid action %q", req.Action)}
	}
	if _, err := ValidateSelection(req.SelectedText); err != nil {
		return err
	}
	if req.Context == nil || strings.TrimSpace(string(req.Context.NoteType)) == "" {
		return ErrMissingContext
	}
	return nil
}
