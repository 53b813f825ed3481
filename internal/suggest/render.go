package suggest

import "github.com/FrancescoCarrabino/feelghost/internal/editor"

const (
	// AnnotationClass tags the ghost-text widget for styling.
	AnnotationClass = "cm-inline-suggestion"
	// AnnotationOpacity is the low-emphasis opacity of ghost text.
	AnnotationOpacity = 0.4
)

// Annotation describes a non-editable inline widget drawn at Pos. It is not
// part of the document text.
type Annotation struct {
	Pos     int
	Text    string
	Side    int
	Class   string
	Opacity float64
	// ID identifies the dispatch the text came from.
	ID string
	// Doc is the document Pos refers to.
	Doc editor.Snapshot
}

// Widget builds the ghost-text descriptor for text at pos.
func Widget(pos int, text string) Annotation {
	return Annotation{
		Pos:     pos,
		Text:    text,
		Side:    1,
		Class:   AnnotationClass,
		Opacity: AnnotationOpacity,
	}
}

// Render returns the annotation for st at caret, or nil when idle.
func Render(st State, caret int) *Annotation {
	if !st.Active() || st.Text() == "" {
		return nil
	}
	a := Widget(caret, st.Text())
	a.ID = st.ID()
	a.Doc = st.Doc()
	return &a
}

func (a *Annotation) equal(b *Annotation) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Pos == b.Pos && a.Text == b.Text && a.Doc.Equal(b.Doc)
}
