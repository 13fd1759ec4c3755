package terminal

import "sync"

// maxHistory bounds the command buffer's finalised-line history per spec
// §4.7's "cap at 100".
const maxHistory = 100

// CommandBuffer reconstructs a line-oriented view of terminal input bytes
// for suggestion context only. It is advisory: a remote-side history recall
// (arrow keys), a Ctrl-U line kill, or a paste containing control sequences
// the terminal itself reinterprets will all make this view drift from the
// shell's actual line, which is fine — suggestions only need "roughly what
// the operator is typing", not an exact PTY emulation.
type CommandBuffer struct {
	mu      sync.Mutex
	current []byte
	history []string
}

// Feed interprets data byte-wise: \r or \n finalises the current line into
// history, \x7f or \b pops the last character, and any other byte >= 0x20
// is appended. Bytes below 0x20 other than the two named controls (escape
// sequences, Ctrl-C, etc.) are ignored rather than appended or erroring.
func (b *CommandBuffer) Feed(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range data {
		switch {
		case c == '\r' || c == '\n':
			b.finalizeLocked()
		case c == 0x7f || c == '\b':
			if len(b.current) > 0 {
				b.current = b.current[:len(b.current)-1]
			}
		case c >= 0x20:
			b.current = append(b.current, c)
		}
	}
}

func (b *CommandBuffer) finalizeLocked() {
	if len(b.current) > 0 {
		b.history = append(b.history, string(b.current))
		if len(b.history) > maxHistory {
			b.history = b.history[len(b.history)-maxHistory:]
		}
	}
	b.current = b.current[:0]
}

// Current returns the in-progress, not-yet-finalised line.
func (b *CommandBuffer) Current() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.current)
}

// History returns finalised lines, oldest first.
func (b *CommandBuffer) History() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.history))
	copy(out, b.history)
	return out
}
