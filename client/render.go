package client

import (
	"fmt"
	"os"
	"strings"

	"github.com/Cod-e-Codes/clack/shared"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

type themeStyles struct {
	User    lipgloss.Style
	Time    lipgloss.Style
	Msg     lipgloss.Style
	Banner  lipgloss.Style
	Mention lipgloss.Style
}

func getThemeStyles(theme string) themeStyles {
	switch theme {
	case "slack":
		return themeStyles{
			User:    lipgloss.NewStyle().Foreground(lipgloss.Color("#36C5F0")).Bold(true),
			Time:    lipgloss.NewStyle().Foreground(lipgloss.Color("#999999")),
			Msg:     lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")),
			Banner:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")).Bold(true),
			Mention: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF00FF")),
		}
	case "discord":
		return themeStyles{
			User:    lipgloss.NewStyle().Foreground(lipgloss.Color("#7289DA")).Bold(true),
			Time:    lipgloss.NewStyle().Foreground(lipgloss.Color("#99AAB5")),
			Msg:     lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")),
			Banner:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")).Bold(true),
			Mention: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFD700")),
		}
	case "aim":
		return themeStyles{
			User:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FFCC00")).Bold(true),
			Time:    lipgloss.NewStyle().Foreground(lipgloss.Color("#00AEEF")),
			Msg:     lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")),
			Banner:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")).Bold(true),
			Mention: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFD700")),
		}
	default:
		return themeStyles{
			User:    lipgloss.NewStyle().Bold(true),
			Time:    lipgloss.NewStyle().Faint(true),
			Msg:     lipgloss.NewStyle(),
			Banner:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")).Bold(true),
			Mention: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFD700")),
		}
	}
}

// Renderer turns server messages and local notices into display text. The
// plain theme, or an unstyled renderer, prints text verbatim.
type Renderer struct {
	username string
	styled   bool
	styles   themeStyles
	markdown *glamour.TermRenderer
}

// NewRenderer creates a renderer for theme. Styling is applied only when
// styled is true, normally when stdout is a terminal.
func NewRenderer(theme, username string, styled bool) *Renderer {
	r := &Renderer{
		username: username,
		styled:   styled && theme != "plain",
		styles:   getThemeStyles(theme),
	}
	if r.styled {
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)
		if err == nil {
			r.markdown = md
		}
	}
	return r
}

// Styled reports whether output is decorated.
func (r *Renderer) Styled() bool { return r.styled }

// Message formats a message received from the server.
func (r *Renderer) Message(msg shared.Message) string {
	text, ok := msg.(*shared.TextMessage)
	if !ok {
		return r.Notice("Unexpected message type: " + msg.String())
	}
	if !r.styled {
		return text.Text()
	}

	body := r.styles.Msg.Render(text.Text())
	if r.username != "" && strings.Contains(text.Text(), "@"+r.username) {
		body = r.styles.Mention.Render(text.Text())
	}
	return fmt.Sprintf("%s %s: %s",
		r.styles.Time.Render("["+text.Timestamp().Local().Format("15:04")+"]"),
		r.styles.User.Render(text.Username()),
		body,
	)
}

// Help formats the server's command summary, as markdown when styled.
func (r *Renderer) Help(msg shared.Message) string {
	text, ok := msg.(*shared.TextMessage)
	if !ok || r.markdown == nil {
		return r.Message(msg)
	}
	out, err := r.markdown.Render(text.Text())
	if err != nil {
		return r.Message(msg)
	}
	return strings.TrimRight(out, "\n")
}

// Notice formats a local status or error line.
func (r *Renderer) Notice(s string) string {
	if !r.styled {
		return s
	}
	return r.styles.Banner.Render(s)
}

// StdoutIsTerminal reports whether stdout is attached to a terminal.
func StdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
