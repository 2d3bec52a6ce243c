package cli

import (
	"fmt"
	"io"

	"github.com/gookit/color"
)

var (
	colInfo    = color.Info
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
)

type styler interface {
	Sprintf(format string, a ...any) string
}

// arrowf prints "-> " followed by a styled message line.
func arrowf(w io.Writer, st styler, format string, a ...any) {
	fmt.Fprintln(w, colArrow.Sprint("-> ")+st.Sprintf(format, a...))
}
