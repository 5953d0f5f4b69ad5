package ai

import (
	"errors"
	"strings"
	"sync/atomic"
)

// ErrNoCredentials is returned when a pool is built without any key
var ErrNoCredentials = errors.New("ai: no provider credentials configured")

// KeyPool hands out credentials round-robin. The cursor is shared by all
// requests; concurrent callers may observe the same index, which only skews
// load slightly.
type KeyPool struct {
	keys   []string
	cursor atomic.Uint64
}

// NewKeyPool copies keys, dropping blanks and duplicates
func NewKeyPool(keys []string) (*KeyPool, error) {
	seen := make(map[string]bool, len(keys))
	clean := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		clean = append(clean, k)
	}
	if len(clean) == 0 {
		return nil, ErrNoCredentials
	}
	return &KeyPool{keys: clean}, nil
}

// Next returns the key under the cursor and advances it
func (p *KeyPool) Next() (int, string) {
	n := p.cursor.Add(1) - 1
	idx := int(n % uint64(len(p.keys)))
	return idx, p.keys[idx]
}

// Len is the number of distinct credentials
func (p *KeyPool) Len() int {
	return len(p.keys)
}
