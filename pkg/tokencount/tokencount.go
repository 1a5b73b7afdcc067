// Package tokencount implements TokenCounter (spec §4.1): deterministic,
// thread-safe, no-I/O token estimation used pervasively for budget
// enforcement across the pipeline.
package tokencount

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter exposes Count(text) -> int. The zero value is not usable; call
// New.
type Counter struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// New builds a Counter backed by the cl100k_base BPE encoding. If the
// encoder can't be constructed (e.g. offline with no bundled ranks), Count
// falls back to the deterministic len(bytes)/4 estimate, rounded up — both paths
// satisfy the round-trip and determinism properties required by spec §8.
func New() *Counter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &Counter{}
	}
	return &Counter{enc: enc}
}

// Count returns the estimated token count of text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}

	c.mu.Lock()
	enc := c.enc
	c.mu.Unlock()

	if enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return fallbackCount(text)
}

// fallbackCount is the deterministic len(text_bytes)/4 rounded up estimate
// spec §4.1 requires when no BPE encoder is available.
func fallbackCount(text string) int {
	n := len(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
