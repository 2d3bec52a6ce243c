package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"golang.org/x/term"

	"adibuild/internal/executor"
)

// runPager shows a build log in a scrollable view when out is a terminal too
// small to hold it. Otherwise the lines are printed as is.
func runPager(out io.Writer, title string, lines []string) error {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return printLines(out, lines)
	}
	if _, height, err := term.GetSize(int(f.Fd())); err == nil && len(lines) <= height-2 {
		return printLines(out, lines)
	}

	app := tview.NewApplication()
	lv := newLogView(title, lines)
	app.SetInputCapture(lv.keys(app.Stop))
	if err := app.SetRoot(lv.root, true).SetFocus(lv.text).Run(); err != nil {
		return fmt.Errorf("pager execution failed: %w", err)
	}
	return nil
}

// logView is the pager layout: the log with error and warning lines
// highlighted, and a status line.
type logView struct {
	root *tview.Flex
	text *tview.TextView
	// errRows are the rows classified as errors, ascending.
	errRows []int
}

func newLogView(title string, lines []string) *logView {
	lv := &logView{}
	var b strings.Builder
	for i, raw := range lines {
		line := tview.Escape(raw)
		switch executor.Classify(raw) {
		case executor.ClassError:
			lv.errRows = append(lv.errRows, i)
			line = "[red::b]" + line + "[-:-:-]"
		case executor.ClassWarning:
			line = "[yellow]" + line + "[-]"
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	lv.text = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(false).
		SetText(b.String())
	lv.text.SetBorder(true).SetTitle(" " + title + " ")
	lv.text.ScrollToEnd()

	status := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText(fmt.Sprintf("[gray]%d lines, %d errors. g/G top/bottom, n next error, q quit.[-]",
			len(lines), len(lv.errRows)))

	lv.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(lv.text, 0, 1, true).
		AddItem(status, 1, 0, false)
	return lv
}

// keys handles the pager bindings on top of the text view's own scrolling.
func (lv *logView) keys(stop func()) func(*tcell.EventKey) *tcell.EventKey {
	return func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyEsc || ev.Key() == tcell.KeyCtrlQ {
			stop()
			return nil
		}
		if ev.Key() != tcell.KeyRune {
			return ev
		}
		switch ev.Rune() {
		case 'q':
			stop()
		case 'g':
			lv.text.ScrollToBeginning()
		case 'G':
			lv.text.ScrollToEnd()
		case 'n':
			lv.nextError()
		default:
			return ev
		}
		return nil
	}
}

// nextError scrolls to the first error row below the top of the view,
// wrapping around to the first error.
func (lv *logView) nextError() {
	if len(lv.errRows) == 0 {
		return
	}
	top, _ := lv.text.GetScrollOffset()
	row := lv.errRows[0]
	for _, r := range lv.errRows {
		if r > top {
			row = r
			break
		}
	}
	lv.text.ScrollTo(row, 0)
}

func printLines(out io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}
