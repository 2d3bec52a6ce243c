package cli

import (
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
)

func runeKey(r rune) *tcell.EventKey {
	return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone)
}

func TestLogViewFindsErrors(t *testing.T) {
	lv := newLogView("build.log", []string{
		"CC init/main.o",
		"init/main.c:12: warning: unused variable",
		"init/main.c:40: error: expected ';'",
		"LD vmlinux",
		"ld: undefined reference to `foo'",
	})
	assert.Equal(t, []int{2, 4}, lv.errRows)
}

func TestLogViewKeys(t *testing.T) {
	lv := newLogView("build.log", []string{"a", "error: one", "b", "c", "error: two"})
	stops := 0
	keys := lv.keys(func() { stops++ })

	assert.Nil(t, keys(runeKey('g')))
	row, _ := lv.text.GetScrollOffset()
	assert.Equal(t, 0, row)

	assert.Nil(t, keys(runeKey('n')))
	row, _ = lv.text.GetScrollOffset()
	assert.Equal(t, 1, row)

	assert.Nil(t, keys(runeKey('n')))
	row, _ = lv.text.GetScrollOffset()
	assert.Equal(t, 4, row)

	// wraps to the first error
	assert.Nil(t, keys(runeKey('n')))
	row, _ = lv.text.GetScrollOffset()
	assert.Equal(t, 1, row)

	// unbound keys reach the text view
	ev := runeKey('x')
	assert.Same(t, ev, keys(ev))
	down := tcell.NewEventKey(tcell.KeyDown, 0, tcell.ModNone)
	assert.Same(t, down, keys(down))

	assert.Nil(t, keys(runeKey('q')))
	assert.Nil(t, keys(tcell.NewEventKey(tcell.KeyEsc, 0, tcell.ModNone)))
	assert.Equal(t, 2, stops)
}
