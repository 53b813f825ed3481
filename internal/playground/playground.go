// Package playground is a terminal editor for trying suggestions without an
// LSP client. It drives a suggest.Overlay the same way an editor plugin does.
package playground

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/FrancescoCarrabino/feelghost/internal/editor"
	"github.com/FrancescoCarrabino/feelghost/internal/suggest"
)

var (
	titleStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("230")).
			Padding(0, 1)

	caretStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	// Ghost text: faint and italic, never part of the buffer.
	suggestionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Faint(true).
			Italic(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// refreshMsg asks the model to redraw after the overlay changed on its own.
type refreshMsg struct{}

// Notifier is the overlay surface for a running program. Annotations are
// read back from the overlay in View, so it only triggers a redraw.
type Notifier struct {
	mu      sync.Mutex
	program *tea.Program
}

// Attach sets the program redraws are sent to.
func (n *Notifier) Attach(p *tea.Program) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.program = p
}

func (n *Notifier) RenderAnnotation(*suggest.Annotation) {
	n.mu.Lock()
	p := n.program
	n.mu.Unlock()
	if p != nil {
		// Send blocks until the program loop reads it.
		go p.Send(refreshMsg{})
	}
}

// Model is the bubbletea model of the playground.
type Model struct {
	overlay *suggest.Overlay
	title   string
	status  string
	width   int
}

// NewModel returns a model editing through overlay.
func NewModel(overlay *suggest.Overlay, title string) Model {
	return Model{overlay: overlay, title: title, status: "type a FEEL expression"}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case refreshMsg:
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	st := m.overlay.State()

	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit

	case tea.KeyTab:
		if _, ok := m.overlay.OnKey("tab"); ok {
			m.status = "accepted suggestion"
			return m, nil
		}
		m.apply(insertText(st, "  "))

	case tea.KeyRunes:
		m.apply(insertText(st, string(msg.Runes)))

	case tea.KeySpace:
		m.apply(insertText(st, " "))

	case tea.KeyEnter:
		m.apply(insertText(st, "\n"))

	case tea.KeyBackspace:
		m.apply(deleteBackward(st))

	case tea.KeyLeft:
		m.apply(moveTo(st, prevRune(st.Doc.String(), st.Selection.Primary().Head)))

	case tea.KeyRight:
		m.apply(moveTo(st, nextRune(st.Doc.String(), st.Selection.Primary().Head)))

	case tea.KeyHome:
		text := st.Doc.String()
		head := st.Selection.Primary().Head
		m.apply(moveTo(st, strings.LastIndexByte(text[:head], '\n')+1))

	case tea.KeyEnd:
		text := st.Doc.String()
		head := st.Selection.Primary().Head
		end := len(text)
		if i := strings.IndexByte(text[head:], '\n'); i >= 0 {
			end = head + i
		}
		m.apply(moveTo(st, end))
	}
	return m, nil
}

func (m *Model) apply(tr editor.Transaction) {
	if len(tr.Changes) == 0 && tr.Selection == nil {
		return
	}
	if err := m.overlay.ApplyTransaction(tr); err != nil {
		log.Printf("[FG][playground] Failed to apply edit: %v", err)
		m.status = fmt.Sprintf("edit failed: %v", err)
		return
	}
	m.status = ""
}

func (m Model) View() string {
	st := m.overlay.State()
	text := st.Doc.String()
	head := st.Selection.Primary().Head

	ghost := ""
	if a := m.overlay.Annotation(); a != nil && a.Doc.Equal(st.Doc) && a.Pos == head {
		ghost = suggestionStyle.Render(a.Text)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")
	b.WriteString(text[:head])
	b.WriteString(caretStyle.Render("│"))
	b.WriteString(ghost)
	b.WriteString(text[head:])
	b.WriteString("\n\n")

	status := "tab accept · esc quit"
	if m.status != "" {
		status = m.status + " · " + status
	}
	line := statusStyle
	if m.width > 0 {
		line = line.MaxWidth(m.width)
	}
	b.WriteString(line.Render(status))
	b.WriteString("\n")
	return b.String()
}

// insertText replaces every selection range with s.
func insertText(st editor.State, s string) editor.Transaction {
	tr := st.ChangeByRange(func(r editor.Range, _ bool) editor.RangeResult {
		return editor.RangeResult{
			Changes: []editor.Change{{From: r.From(), To: r.To(), Insert: s}},
			Range:   editor.Cursor(r.From() + len(s)),
		}
	})
	tr.UserEvent = editor.EventType
	return tr
}

// deleteBackward removes each selection, or the rune before each caret.
func deleteBackward(st editor.State) editor.Transaction {
	text := st.Doc.String()
	tr := st.ChangeByRange(func(r editor.Range, _ bool) editor.RangeResult {
		from := r.From()
		if r.Empty() {
			from = prevRune(text, r.Head)
		}
		if from == r.To() {
			return editor.RangeResult{Range: r}
		}
		return editor.RangeResult{
			Changes: []editor.Change{{From: from, To: r.To()}},
			Range:   editor.Cursor(from),
		}
	})
	if !tr.DocChanged() {
		return editor.Transaction{}
	}
	tr.UserEvent = editor.EventDelete
	return tr
}

func moveTo(st editor.State, pos int) editor.Transaction {
	if pos == st.Selection.Primary().Head && len(st.Selection.Ranges) == 1 {
		return editor.Transaction{}
	}
	sel := editor.Single(pos)
	return editor.Transaction{Selection: &sel, UserEvent: editor.EventSelect}
}

func prevRune(text string, pos int) int {
	if pos <= 0 {
		return 0
	}
	_, size := utf8.DecodeLastRuneInString(text[:pos])
	return pos - size
}

func nextRune(text string, pos int) int {
	if pos >= len(text) {
		return len(text)
	}
	_, size := utf8.DecodeRuneInString(text[pos:])
	return pos + size
}

// Run starts an interactive session on initial text and blocks until the
// user quits.
func Run(fetch suggest.FetchFunc, delay time.Duration, title, initial string, opts ...tea.ProgramOption) error {
	n := &Notifier{}
	overlay := suggest.New(fetch,
		suggest.WithDelay(delay),
		suggest.WithSurface(n),
		suggest.WithInitialState(editor.NewState(initial)),
	)
	defer overlay.Close()

	p := tea.NewProgram(NewModel(overlay, title), opts...)
	n.Attach(p)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("playground: %w", err)
	}
	return nil
}
