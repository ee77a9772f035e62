package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/billmal071/kobodl/internal/kobo"
)

// bookItem wraps a library book for the list component
type bookItem struct {
	book kobo.Book
}

func (b bookItem) Title() string { return b.book.Title }

func (b bookItem) Description() string {
	var parts []string
	if b.book.Author != "" {
		parts = append(parts, b.book.Author)
	}
	if b.book.Archived {
		parts = append(parts, "archived")
	}
	if b.book.Read {
		parts = append(parts, "read")
	}
	if len(parts) == 0 {
		return DimStyle.Render("No metadata available")
	}
	return DimStyle.Render(strings.Join(parts, " | "))
}

func (b bookItem) FilterValue() string { return b.book.Title }

// bookDelegate renders library books with a checkbox marker
type bookDelegate struct {
	picked *map[string]bool
}

func (d bookDelegate) Height() int                             { return 2 }
func (d bookDelegate) Spacing() int                            { return 0 }
func (d bookDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d bookDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	entry, ok := item.(bookItem)
	if !ok {
		return
	}

	marker := "[ ]"
	if (*d.picked)[entry.book.RevisionID] {
		marker = "[x]"
	}

	title := entry.book.Title
	if len(title) > 60 {
		title = title[:57] + "..."
	}

	var str string
	if index == m.Index() {
		str = SelectedStyle.Render(fmt.Sprintf("  ➤ %s %s", marker, title))
	} else {
		str = NormalStyle.Render(fmt.Sprintf("    %s %s", marker, title))
	}
	str += "\n" + DimStyle.Render(fmt.Sprintf("        %s", entry.Description()))

	fmt.Fprint(w, str)
}

// PickerModel is the Bubble Tea model for selecting books to download
type PickerModel struct {
	list     list.Model
	picked   map[string]bool
	order    []kobo.Book
	done     bool
	quitting bool
}

// NewPicker creates a book picker over the given library
func NewPicker(books []kobo.Book) PickerModel {
	items := make([]list.Item, len(books))
	for i, book := range books {
		items[i] = bookItem{book: book}
	}

	picked := make(map[string]bool)
	delegate := bookDelegate{picked: &picked}

	height := 4 + len(books)*2
	if height > 40 {
		height = 40
	}
	l := list.New(items, delegate, 70, height)
	l.Title = "Select books to download"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(false)
	l.Styles.Title = TitleStyle

	return PickerModel{
		list:   l,
		picked: picked,
		order:  books,
	}
}

func (m PickerModel) Init() tea.Cmd {
	return nil
}

func (m PickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case " ":
			if item, ok := m.list.SelectedItem().(bookItem); ok {
				id := item.book.RevisionID
				m.picked[id] = !m.picked[id]
			}
			return m, nil
		case "enter":
			// Enter with nothing toggled downloads the highlighted book.
			if len(m.selection()) == 0 {
				if item, ok := m.list.SelectedItem().(bookItem); ok {
					m.picked[item.book.RevisionID] = true
				}
			}
			m.done = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.list.SetWidth(msg.Width)
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m PickerModel) View() string {
	if m.done {
		n := len(m.selection())
		return SuccessStyle.Render(fmt.Sprintf("\n  ✓ Selected %d book(s)\n", n))
	}
	if m.quitting {
		return DimStyle.Render("\n  Cancelled.\n")
	}

	help := HelpStyle.Render("  ↑/↓: navigate • space: toggle • enter: download • q/esc: cancel")
	return "\n" + m.list.View() + "\n" + help
}

// selection returns the picked books in library order
func (m PickerModel) selection() []kobo.Book {
	var books []kobo.Book
	for _, book := range m.order {
		if m.picked[book.RevisionID] {
			books = append(books, book)
		}
	}
	return books
}

// RunPicker displays the picker and returns the chosen books. A cancelled
// picker returns an empty selection and no error.
func RunPicker(books []kobo.Book) ([]kobo.Book, error) {
	if len(books) == 0 {
		return nil, fmt.Errorf("no books to select from")
	}

	model := NewPicker(books)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return nil, err
	}

	picker := finalModel.(PickerModel)
	if picker.quitting {
		return nil, nil
	}
	return picker.selection(), nil
}
