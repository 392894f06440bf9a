package insight

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"langcard-insight/internal/domain/entity"
	"langcard-insight/internal/utils/text"
)

func vocabularyNote() Note {
	return Note{
		ID:     "n-1",
		DeckID: "d-jp",
		Type:   entity.NoteTypeVocabulary,
		Fields: []NoteField{
			{Name: "Word", Value: "<b>猫</b>"},
			{Name: "Reading", Value: "ねこ"},
			{Name: "Meaning", Value: "cat<br>feline"},
			{Name: "Audio", Value: ""},
		},
	}
}

func TestBuildContext(t *testing.T) {
	nc, err := BuildContext(vocabularyNote(), "Word", "  猫  ", DefaultContextOptions())
	require.NoError(t, err)

	want := &entity.NoteContext{
		NoteType: entity.NoteTypeVocabulary,
		AllFields: map[string]string{
			"Word":    "猫",
			"Reading": "ねこ",
			"Meaning": "cat feline",
		},
		CurrentField: "Word",
		SelectedText: "猫",
		NoteID:       "n-1",
		DeckID:       "d-jp",
	}
	if diff := cmp.Diff(want, nc); diff != "" {
		t.Errorf("BuildContext() mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, nc.Valid())
}

func TestBuildContext_IncludeEmpty(t *testing.T) {
	opts := DefaultContextOptions()
	opts.IncludeEmpty = true

	nc, err := BuildContext(vocabularyNote(), "Word", "猫", opts)
	require.NoError(t, err)

	value, ok := nc.AllFields["Audio"]
	assert.True(t, ok)
	assert.Empty(t, value)
}

func TestBuildContext_Errors(t *testing.T) {
	tests := []struct {
		name      string
		note      Note
		selection string
		want      error
	}{
		{"empty selection", vocabularyNote(), "", entity.ErrInvalidText},
		{"whitespace selection", vocabularyNote(), " \t ", entity.ErrInvalidText},
		{"missing note type", Note{Fields: []NoteField{{Name: "Front", Value: "x"}}}, "x", entity.ErrMissingContext},
		{"no fields", Note{Type: entity.NoteTypeBasic}, "x", entity.ErrMissingContext},
		{"only empty fields", Note{Type: entity.NoteTypeBasic, Fields: []NoteField{{Name: "Front", Value: "<br>"}}}, "x", entity.ErrMissingContext},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nc, err := BuildContext(tt.note, "Front", tt.selection, DefaultContextOptions())
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, nc)
		})
	}
}

func TestBuildContext_TruncatesSelection(t *testing.T) {
	selection := strings.Repeat("語", 800)

	nc, err := BuildContext(vocabularyNote(), "Word", selection, DefaultContextOptions())
	require.NoError(t, err)

	assert.Equal(t, entity.MaxContextSelectionChars, text.CountRunes(nc.SelectedText))
}

func TestOptimizeFields_Limits(t *testing.T) {
	long := strings.Repeat("a", 900)
	fields := []NoteField{
		{Name: "Notes", Value: long},
		{Name: "Example", Value: long},
		{Name: "Meaning", Value: long},
		{Name: "Word", Value: long},
		{Name: "Extra1", Value: long},
		{Name: "Extra2", Value: long},
	}
	opts := ContextOptions{MaxFieldChars: 500, MaxTotalChars: 1200}

	got := OptimizeFields(entity.NoteTypeVocabulary, fields, "Word", opts)

	total := 0
	for name, v := range got {
		n := text.CountRunes(v)
		assert.LessOrEqual(t, n, 500, "field %s", name)
		total += n
	}
	assert.LessOrEqual(t, total, 1200)

	// current field first, then the vocabulary priority list
	assert.Equal(t, 500, text.CountRunes(got["Word"]))
	assert.Equal(t, 500, text.CountRunes(got["Meaning"]))
	assert.Equal(t, 200, text.CountRunes(got["Example"]))
	assert.True(t, strings.HasSuffix(got["Word"], "…"))
	assert.NotContains(t, got, "Extra1")
	assert.NotContains(t, got, "Notes")
}

func TestOptimizeFields_CurrentFieldAlwaysKept(t *testing.T) {
	fields := []NoteField{
		{Name: "Front", Value: strings.Repeat("x", 100)},
		{Name: "Back", Value: strings.Repeat("y", 100)},
	}
	opts := ContextOptions{MaxFieldChars: 100, MaxTotalChars: 50}

	got := OptimizeFields(entity.NoteTypeBasic, fields, "Back", opts)

	if diff := cmp.Diff(map[string]string{"Back": strings.Repeat("y", 100)}, got); diff != "" {
		t.Errorf("OptimizeFields() mismatch (-want +got):\n%s", diff)
	}
}

func TestOptimizeFields_UnknownNoteTypeKeepsNoteOrder(t *testing.T) {
	fields := []NoteField{
		{Name: "Kanji", Value: "漢字"},
		{Name: "Kana", Value: "かんじ"},
		{Name: "Kanji", Value: "duplicate"},
	}

	got := OptimizeFields("custom-jp", fields, "", ContextOptions{})

	want := map[string]string{"Kanji": "漢字", "Kana": "かんじ"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("OptimizeFields() mismatch (-want +got):\n%s", diff)
	}
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain  text\n here", "plain text here"},
		{"<div>食べる<br/>to eat</div>", "食べる to eat"},
		{"<span style=\"color:red\">赤</span>い", "赤い"},
		{"fish &amp; chips", "fish & chips"},
		{"<style>.x{}</style><p>body</p><script>alert(1)</script>", "body"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, PlainText(tt.in))
		})
	}
}
