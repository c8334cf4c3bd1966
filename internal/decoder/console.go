package decoder

import (
	"strings"
	"unicode/utf8"
)

// consoleBuffer keeps the most recent text received from the instrument,
// bounded to limit bytes with the oldest content evicted first.
type consoleBuffer struct {
	limit int
	buf   []byte
}

func (c *consoleBuffer) write(chunk []byte) {
	if c.limit <= 0 || len(chunk) == 0 {
		return
	}
	text := chunk
	if !utf8.Valid(text) {
		text = []byte(strings.ToValidUTF8(string(chunk), "�"))
	}
	c.buf = append(c.buf, text...)

	if over := len(c.buf) - c.limit; over > 0 {
		// Never start the buffer in the middle of a rune.
		for over < len(c.buf) && !utf8.RuneStart(c.buf[over]) {
			over++
		}
		n := copy(c.buf, c.buf[over:])
		c.buf = c.buf[:n]
	}
}

func (c *consoleBuffer) String() string {
	return string(c.buf)
}

func (c *consoleBuffer) clear() {
	c.buf = c.buf[:0]
}
