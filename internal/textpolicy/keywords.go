package textpolicy

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// MaxKeywordsPerPost caps a single draw from the pool.
const MaxKeywordsPerPost = 700

// KeywordRotator hands out consecutive slices of a keyword pool, wrapping at the end.
// The cursor advances by n on every Take.
type KeywordRotator struct {
	mu     sync.Mutex
	pool   []string
	offset int
}

// NewKeywordRotator returns a rotator over pool. Blank entries are dropped.
func NewKeywordRotator(pool []string) *KeywordRotator {
	cleaned := make([]string, 0, len(pool))
	for _, k := range pool {
		if k = strings.TrimSpace(k); k != "" {
			cleaned = append(cleaned, k)
		}
	}
	return &KeywordRotator{pool: cleaned}
}

// LoadKeywordRotator reads one keyword per line from path.
// A missing file yields an empty rotator.
func LoadKeywordRotator(path string) (*KeywordRotator, error) {
	if path == "" {
		return NewKeywordRotator(nil), nil
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return NewKeywordRotator(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open keywords file %s: %w", path, err)
	}
	defer f.Close()

	var pool []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		pool = append(pool, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read keywords file %s: %w", path, err)
	}
	return NewKeywordRotator(pool), nil
}

// Len returns the pool size.
func (r *KeywordRotator) Len() int {
	return len(r.pool)
}

// Take returns the next n keywords.
func (r *KeywordRotator) Take(n int) []string {
	if n > MaxKeywordsPerPost {
		n = MaxKeywordsPerPost
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pool) == 0 || n <= 0 {
		return nil
	}
	start := r.offset % len(r.pool)
	out := make([]string, n)
	for i := range out {
		out[i] = r.pool[(start+i)%len(r.pool)]
	}
	r.offset = (start + n) % len(r.pool)
	return out
}
