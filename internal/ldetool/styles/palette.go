package styles

import (
	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/lipgloss/v2"
)

// VS Code dark colors, shared by the TUI and the summary style.
const (
	Foreground = "#D4D4D4"
	Link       = "#4FC1FF"
	InlineCode = "#EACD53" // (234, 205, 83)
	Function   = "#DCDCAA"
	Comment    = "#6A9955"
	Heading    = "#569CD6"
	Background = "#1E1E1E"
	Number     = "#B5CEA8"
	Selection  = "#264F78"
	LineNumber = "#858585"
	Purple     = "#C586C0"
	Danger     = "#F44747"
	Caution    = "#CCA700"
)

// TUI styles.
var (
	Title    = lipgloss.NewStyle().Foreground(lipgloss.Color(Heading)).Bold(true).MarginLeft(2)
	Addr     = lipgloss.NewStyle().Foreground(lipgloss.Color(LineNumber))
	AddrSel  = lipgloss.NewStyle().Foreground(lipgloss.Color(Purple))
	Name     = lipgloss.NewStyle().Foreground(lipgloss.Color(Function))
	Dim      = lipgloss.NewStyle().Foreground(lipgloss.Color(LineNumber))
	Status   = lipgloss.NewStyle().Foreground(lipgloss.Color(Foreground)).Background(lipgloss.Color(Selection)).Padding(0, 1)
	ErrText  = lipgloss.NewStyle().Foreground(lipgloss.Color(Danger))
	WarnText = lipgloss.NewStyle().Foreground(lipgloss.Color(Caution))
	OKText   = lipgloss.NewStyle().Foreground(lipgloss.Color(Comment))
	Tab      = lipgloss.NewStyle().Foreground(lipgloss.Color(LineNumber)).Padding(0, 1)
	TabOn    = lipgloss.NewStyle().Foreground(lipgloss.Color(Foreground)).Background(lipgloss.Color(Selection)).Bold(true).Padding(0, 1)
)

// SummaryStyle is the glamour style of the TUI summary pane.
func SummaryStyle() ansi.StyleConfig {
	h := func(prefix string) ansi.StyleBlock {
		return ansi.StyleBlock{StylePrimitive: ansi.StylePrimitive{
			Prefix: prefix,
			Color:  stringPtr(Heading),
			Bold:   boolPtr(true),
		}}
	}
	return ansi.StyleConfig{
		Document: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color: stringPtr(Foreground),
			},
		},
		BlockQuote: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color:  stringPtr(Comment),
				Italic: boolPtr(true),
			},
			Indent:      uintPtr(1),
			IndentToken: stringPtr("│ "),
		},
		List: ansi.StyleList{
			LevelIndent: 2,
		},
		Heading: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				BlockSuffix: "\n",
				Color:       stringPtr(Heading),
				Bold:        boolPtr(true),
			},
		},
		H1: h("# "),
		H2: h("## "),
		H3: h("### "),
		Strong: ansi.StylePrimitive{
			Bold:  boolPtr(true),
			Color: stringPtr(Foreground),
		},
		HorizontalRule: ansi.StylePrimitive{
			Color:  stringPtr(LineNumber),
			Format: "\n────────────────────────────────────────\n",
		},
		Item: ansi.StylePrimitive{
			BlockPrefix: "• ",
		},
		Code: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color: stringPtr(InlineCode),
			},
		},
		CodeBlock: ansi.StyleCodeBlock{
			StyleBlock: ansi.StyleBlock{
				StylePrimitive: ansi.StylePrimitive{
					Color: stringPtr(Foreground),
				},
				Margin: uintPtr(1),
			},
		},
		Text: ansi.StylePrimitive{
			Color: stringPtr(Foreground),
		},
	}
}
