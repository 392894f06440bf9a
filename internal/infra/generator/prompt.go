package generator

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"langcard-insight/internal/domain/entity"
)

// systemInstruction is shared by every backend.
const systemInstruction = `You are a language-learning assistant embedded in a flashcard editor.
The learner selected a piece of text inside one field of a note and asked for help with it.
Use the other fields of the note as context, answer in the learner's language (the language of the note's definition or translation fields when present), and be concise.

Reply with a single JSON object and nothing else:
{"insight": string, "suggestion": string, "examples": [string], "confidence": number}
- insight: the answer, at most a few sentences
- suggestion: optional improvement for the note, or ""
- examples: zero to three short example sentences using the selection
- confidence: how sure you are, between 0 and 1`

var actionInstructions = map[entity.Action]string{
	entity.ActionDefine:    "Define the selected text as it is used in this note.",
	entity.ActionExplain:   "Explain the meaning and nuance of the selected text.",
	entity.ActionTranslate: "Translate the selected text and point out anything that does not translate directly.",
	entity.ActionGrammar:   "Explain the grammar of the selected text: its structure, conjugation or particles.",
	entity.ActionContext:   "Explain how the selected text relates to the rest of the note.",
}

// BuildPrompt renders the user prompt for req. Fields are listed in name order
// so that identical requests produce identical prompts.
func BuildPrompt(req *entity.InsightRequest) string {
	var b strings.Builder

	instruction, ok := actionInstructions[req.Action]
	if !ok {
		instruction = actionInstructions[entity.ActionExplain]
	}
	b.WriteString(instruction)
	b.WriteString("\n\n")

	if nc := req.Context; nc != nil {
		fmt.Fprintf(&b, "Note type: %s\n", nc.NoteType)
		if nc.CurrentField != "" {
			fmt.Fprintf(&b, "Field being edited: %s\n", nc.CurrentField)
		}
		names := make([]string, 0, len(nc.AllFields))
		for name := range nc.AllFields {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("Fields:\n")
		for _, name := range names {
			fmt.Fprintf(&b, "- %s: %s\n", name, nc.AllFields[name])
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Selected text: %s\n", strings.TrimSpace(req.SelectedText))
	return b.String()
}

// wireInsight is the JSON object the backends are asked to produce.
type wireInsight struct {
	Insight    string   `json:"insight"`
	Suggestion string   `json:"suggestion"`
	Examples   []string `json:"examples"`
	Confidence *float64 `json:"confidence"`
}

var errEmptyOutput = errors.New("backend returned no text")

// ParseInsight converts raw model output into a response.
//
// Output that is not a JSON object is taken verbatim as the insight; some models
// ignore the format instruction for short answers. Output that looks like JSON
// but does not parse is an error, so the attempt can be retried.
func ParseInsight(raw string) (*entity.InsightResponse, error) {
	s := StripCodeFences(raw)
	if s == "" {
		return nil, errEmptyOutput
	}
	if !strings.HasPrefix(s, "{") {
		return &entity.InsightResponse{Insight: s}, nil
	}

	var w wireInsight
	if err := json.Unmarshal([]byte(s), &w); err != nil {
		return nil, fmt.Errorf("malformed JSON output: %w", err)
	}
	if strings.TrimSpace(w.Insight) == "" {
		return nil, errors.New("JSON output has no insight")
	}

	examples := make([]string, 0, len(w.Examples))
	for _, e := range w.Examples {
		if e = strings.TrimSpace(e); e != "" {
			examples = append(examples, e)
		}
	}
	if len(examples) == 0 {
		examples = nil
	}

	return &entity.InsightResponse{
		Insight:    strings.TrimSpace(w.Insight),
		Suggestion: strings.TrimSpace(w.Suggestion),
		Examples:   examples,
		Confidence: w.Confidence,
	}, nil
}

// StripCodeFences removes a surrounding Markdown code fence.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
