// Package output renders command results for terminals, markdown consumers
// and machines.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/term"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

// Mode selects how output is rendered.
type Mode string

// Output modes.
const (
	// ModeAuto renders text on a TTY and markdown otherwise.
	ModeAuto     Mode = "auto"
	ModeText     Mode = "text"
	ModeMarkdown Mode = "markdown"
	ModeJSON     Mode = "json"
	ModeYAML     Mode = "yaml"
)

// Modes lists the accepted mode names.
func Modes() []string {
	return []string{string(ModeAuto), string(ModeText), string(ModeMarkdown), string(ModeJSON), string(ModeYAML)}
}

// ParseMode validates a mode name. Empty means auto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeText, ModeMarkdown, ModeJSON, ModeYAML:
		return m, nil
	case "md":
		return ModeMarkdown, nil
	default:
		return "", fmt.Errorf("invalid output mode %q: must be one of %s", s, strings.Join(Modes(), ", "))
	}
}

// Renderer writes command output in the configured mode.
type Renderer struct {
	out     io.Writer
	errOut  io.Writer
	mode    Mode
	isTTY   bool
	styles  *Styles
	printer *message.Printer
	title   cases.Caser
}

// NewRenderer creates a renderer, detecting whether out is a terminal.
func NewRenderer(out, errOut io.Writer, mode Mode) *Renderer {
	isTTY := false
	if f, ok := out.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}
	return NewRendererWithTTY(out, errOut, isTTY, mode)
}

// NewRendererWithTTY creates a renderer with an explicit TTY state.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode Mode) *Renderer {
	if mode == "" {
		mode = ModeAuto
	}
	return &Renderer{
		out:     out,
		errOut:  errOut,
		mode:    mode,
		isTTY:   isTTY,
		styles:  newStyles(lipgloss.NewRenderer(out), isTTY),
		printer: message.NewPrinter(language.English),
		title:   cases.Title(language.English),
	}
}

// EffectiveMode resolves auto to text or markdown.
func (r *Renderer) EffectiveMode() Mode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if r.isTTY {
		return ModeText
	}
	return ModeMarkdown
}

// IsTTY reports whether output goes to a terminal.
func (r *Renderer) IsTTY() bool { return r.isTTY }

// Writer returns the output writer.
func (r *Renderer) Writer() io.Writer { return r.out }

// Styles returns the text-mode styles.
func (r *Renderer) Styles() *Styles { return r.styles }

// Println writes a line.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Printf writes formatted output.
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.out, format, a...)
}

// Header writes a heading of the given level.
func (r *Renderer) Header(level int, text string) {
	if r.EffectiveMode() == ModeMarkdown {
		r.Printf("%s %s\n\n", strings.Repeat("#", max(level, 1)), text)
		return
	}
	style := r.styles.Header1
	if level > 1 {
		style = r.styles.Header2
	}
	r.Println(style.Render(text))
	r.Println()
}

// Success writes a success status line.
func (r *Renderer) Success(msg string) { r.status(r.styles.Success, "✓", msg) }

// Warning writes a warning status line to the error stream.
func (r *Renderer) Warning(msg string) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Warning.Render("! "+msg))
}

// Fail writes a failure status line.
func (r *Renderer) Fail(msg string) { r.status(r.styles.Error, "✗", msg) }

// Muted renders secondary text.
func (r *Renderer) Muted(s string) string { return r.styles.Muted.Render(s) }

func (r *Renderer) status(style lipgloss.Style, mark, msg string) {
	if r.EffectiveMode() == ModeMarkdown {
		r.Printf("- %s %s\n", mark, msg)
		return
	}
	r.Println(style.Render(mark + " " + msg))
}

// Number formats an integer with thousands separators.
func (r *Renderer) Number(n int) string {
	return r.printer.Sprintf("%d", n)
}

// Title title-cases a status or label.
func (r *Renderer) Title(s string) string {
	return r.title.String(strings.ReplaceAll(s, "_", " "))
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// YAML writes v as YAML.
func (r *Renderer) YAML(v any) error {
	enc := yaml.NewEncoder(r.out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// Structured writes v as JSON or YAML depending on the effective mode and
// reports whether it did.
func (r *Renderer) Structured(v any) (bool, error) {
	switch r.EffectiveMode() {
	case ModeJSON:
		return true, r.JSON(v)
	case ModeYAML:
		return true, r.YAML(v)
	default:
		return false, nil
	}
}

// Table writes rows as a box table in text mode and a pipe table in
// markdown mode.
func (r *Renderer) Table(header []string, rows [][]string) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)

	hr := make(table.Row, len(header))
	for i, h := range header {
		hr[i] = h
	}
	t.AppendHeader(hr)
	for _, row := range rows {
		tr := make(table.Row, len(row))
		for i, c := range row {
			tr[i] = c
		}
		t.AppendRow(tr)
	}

	if r.EffectiveMode() == ModeMarkdown {
		t.RenderMarkdown()
		r.Println()
		return
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}
