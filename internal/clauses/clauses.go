// Package clauses screens lease text against a regex clause library.
package clauses

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

//go:embed clause_library.yaml
var defaultLibrary []byte

// Clause is one library entry
type Clause struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Pattern  string   `yaml:"pattern"`
	Severity string   `yaml:"severity"`
	Remedies []string `yaml:"remedies"`

	re *regexp.Regexp
}

// Match is the result of testing one clause against a text
type Match struct {
	ID       string   `json:"id" bson:"id"`
	Matched  bool     `json:"matched" bson:"matched"`
	Severity string   `json:"severity" bson:"severity"`
	Remedies []string `json:"remedies" bson:"remedies"`
}

// Library is an ordered, compiled clause set
type Library struct {
	clauses []Clause
}

type libraryFile struct {
	Clauses []Clause `yaml:"clauses"`
}

// Parse compiles a YAML library. Patterns are case-insensitive.
func Parse(data []byte) (*Library, error) {
	var f libraryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse clause library: %w", err)
	}

	seen := make(map[string]bool, len(f.Clauses))
	for i := range f.Clauses {
		c := &f.Clauses[i]
		if c.ID == "" {
			return nil, fmt.Errorf("clause %d has no id", i)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("duplicate clause id %s", c.ID)
		}
		seen[c.ID] = true

		re, err := regexp.Compile("(?i)" + c.Pattern)
		if err != nil {
			return nil, fmt.Errorf("clause %s: invalid pattern: %w", c.ID, err)
		}
		c.re = re
		if c.Severity == "" {
			c.Severity = "low"
		}
		if c.Remedies == nil {
			c.Remedies = []string{}
		}
	}
	return &Library{clauses: f.Clauses}, nil
}

// Default returns the embedded library
func Default() *Library {
	lib, err := Parse(defaultLibrary)
	if err != nil {
		panic(err)
	}
	return lib
}

// Load reads path, or the embedded library when path is empty
func Load(path string) (*Library, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read clause library: %w", err)
	}
	return Parse(data)
}

// Analyze reports every clause in library order
func (l *Library) Analyze(text string) []Match {
	out := make([]Match, 0, len(l.clauses))
	for _, c := range l.clauses {
		out = append(out, Match{
			ID:       c.ID,
			Matched:  c.re.MatchString(text),
			Severity: c.Severity,
			Remedies: c.Remedies,
		})
	}
	return out
}

// Len is the number of clauses
func (l *Library) Len() int {
	return len(l.clauses)
}

// TextHash is the hex SHA-256 of text
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
