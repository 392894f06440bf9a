package insight

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"langcard-insight/internal/domain/entity"
	"langcard-insight/internal/utils/text"
)

// Note is the structured note handed over by the editor.
type Note struct {
	ID     string          `json:"id,omitempty"`
	DeckID string          `json:"deckId,omitempty"`
	Type   entity.NoteType `json:"type"`
	Fields []NoteField     `json:"fields"`
}

// NoteField is one named field. Value may contain rich-text HTML.
type NoteField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ContextOptions bounds the size of a built context.
type ContextOptions struct {
	// MaxFieldChars caps each field value, in runes. Default: 500
	MaxFieldChars int
	// MaxTotalChars caps the sum of all field values, in runes. Default: 2000
	MaxTotalChars int
	// IncludeEmpty keeps fields whose plain text is empty.
	IncludeEmpty bool
}

// DefaultContextOptions returns the default size limits.
func DefaultContextOptions() ContextOptions {
	return ContextOptions{
		MaxFieldChars: 500,
		MaxTotalChars: 2000,
	}
}

// fieldPriority lists, per note type, the fields most useful to the model.
var fieldPriority = map[entity.NoteType][]string{
	entity.NoteTypeBasic:         {"Front", "Back"},
	entity.NoteTypeBasicReversed: {"Front", "Back"},
	entity.NoteTypeVocabulary:    {"Word", "Reading", "Meaning", "Example", "Notes"},
	entity.NoteTypeSentence:      {"Sentence", "Translation", "Notes"},
	entity.NoteTypeCloze:         {"Text", "Extra"},
}

const ellipsis = "…"

// BuildContext flattens note into a NoteContext for the given selection.
//
// Field values are reduced to plain text and empty fields are dropped unless
// opts.IncludeEmpty is set. The selection is trimmed; an empty selection yields
// entity.ErrInvalidText and a selection longer than entity.MaxContextSelectionChars
// is truncated in the returned context.
func BuildContext(note Note, currentField, selection string, opts ContextOptions) (*entity.NoteContext, error) {
	trimmed := strings.TrimSpace(selection)
	if trimmed == "" {
		return nil, entity.ErrInvalidText
	}
	if note.Type == "" {
		return nil, entity.ErrMissingContext
	}

	fields := make([]NoteField, 0, len(note.Fields))
	for _, f := range note.Fields {
		fields = append(fields, NoteField{Name: f.Name, Value: PlainText(f.Value)})
	}

	all := OptimizeFields(note.Type, fields, currentField, opts)
	if len(all) == 0 {
		return nil, entity.ErrMissingContext
	}

	return &entity.NoteContext{
		NoteType:     note.Type,
		AllFields:    all,
		CurrentField: currentField,
		SelectedText: text.Truncate(trimmed, entity.MaxContextSelectionChars, ""),
		NoteID:       note.ID,
		DeckID:       note.DeckID,
	}, nil
}

// OptimizeFields orders fields by priority and applies the size limits.
//
// The current field comes first, then the note type's priority list, then the
// remaining fields in note order. Fields are added until the total budget is
// spent; the current field is always kept.
func OptimizeFields(noteType entity.NoteType, fields []NoteField, currentField string, opts ContextOptions) map[string]string {
	opts = withContextDefaults(opts)

	ordered := prioritize(noteType, fields, currentField)
	out := make(map[string]string, len(ordered))
	budget := opts.MaxTotalChars

	for _, f := range ordered {
		value := strings.TrimSpace(f.Value)
		if value == "" && !opts.IncludeEmpty {
			continue
		}
		value = text.Truncate(value, opts.MaxFieldChars, ellipsis)
		n := text.CountRunes(value)

		if f.Name == currentField {
			out[f.Name] = value
			budget -= n
			continue
		}
		if budget <= 0 {
			break
		}
		if n > budget {
			value = text.Truncate(value, budget, ellipsis)
			n = budget
		}
		out[f.Name] = value
		budget -= n
	}
	return out
}

// PlainText converts a rich-text field value to plain text with collapsed whitespace.
// Values that fail to parse are returned with whitespace collapsed only.
func PlainText(value string) string {
	if !strings.ContainsAny(value, "<&") {
		return strings.Join(strings.Fields(value), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(value))
	if err != nil {
		return strings.Join(strings.Fields(value), " ")
	}
	doc.Find("br").ReplaceWithHtml(" ")
	doc.Find("script,style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func prioritize(noteType entity.NoteType, fields []NoteField, currentField string) []NoteField {
	byName := make(map[string]int, len(fields))
	for i, f := range fields {
		if _, dup := byName[f.Name]; !dup {
			byName[f.Name] = i
		}
	}

	used := make([]bool, len(fields))
	ordered := make([]NoteField, 0, len(fields))
	take := func(name string) {
		if i, ok := byName[name]; ok && !used[i] {
			used[i] = true
			ordered = append(ordered, fields[i])
		}
	}

	take(currentField)
	for _, name := range fieldPriority[noteType] {
		take(name)
	}
	for i, f := range fields {
		if !used[i] {
			if j := byName[f.Name]; j != i {
				continue
			}
			used[i] = true
			ordered = append(ordered, f)
		}
	}
	return ordered
}

func withContextDefaults(opts ContextOptions) ContextOptions {
	def := DefaultContextOptions()
	if opts.MaxFieldChars <= 0 {
		opts.MaxFieldChars = def.MaxFieldChars
	}
	if opts.MaxTotalChars <= 0 {
		opts.MaxTotalChars = def.MaxTotalChars
	}
	return opts
}
