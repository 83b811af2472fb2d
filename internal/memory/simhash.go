// Package memory implements the memory store: create/dedup, CRUD,
// reinforcement, and deterministic sector classification.
package memory

import (
	"crypto/md5"
	"encoding/hex"
	"hash/fnv"
	"math/bits"
	"regexp"
	"strings"

	"github.com/ccmemory/ccmemory/internal/store"
)

// Simhash computes a 64-bit locality-sensitive signature over tokenized
// content: each token's FNV-64a hash casts a weighted vote per bit, and the
// final signature takes the majority vote per bit position.
func Simhash(content string) uint64 {
	tokens := store.TokenizeCode(content)
	if len(tokens) == 0 {
		return 0
	}

	var weights [64]int
	for _, tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		for bit := 0; bit < 64; bit++ {
			if sum&(1<<uint(bit)) != 0 {
				weights[bit]++
			} else {
				weights[bit]--
			}
		}
	}

	var out uint64
	for bit := 0; bit < 64; bit++ {
		if weights[bit] > 0 {
			out |= 1 << uint(bit)
		}
	}
	return out
}

// HammingDistance returns the number of differing bits between two 64-bit
// signatures. A distance ≤ 3 is the dedup threshold (inclusive).
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// ContentHash returns the MD5 hex digest used as the memory's content_hash.
func ContentHash(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

var (
	backtickSpan = regexp.MustCompile("`([^`\n]+)`")
	camelCase    = regexp.MustCompile(`\b[a-z][a-zA-Z0-9]*[A-Z][a-zA-Z0-9]*\b`)
	snakeCase    = regexp.MustCompile(`\b[a-z][a-z0-9]*(?:_[a-z0-9]+)+\b`)
	filePath     = regexp.MustCompile(`\b(?:[\w.-]+/)+[\w.-]+\.[a-zA-Z0-9]{1,8}\b`)
)

// MaxConcepts caps the deterministic concept extraction per §4.3 step 4.
const MaxConcepts = 20

// ExtractConcepts deterministically pulls candidate concepts out of content
// when none were supplied by the caller: backtick spans, camelCase
// identifiers, snake_case identifiers, and file path shapes. Results are
// deduped (first occurrence wins) and capped at MaxConcepts.
func ExtractConcepts(content string) []string {
	seen := make(map[string]struct{})
	var out []string

	add := func(matches []string) {
		for _, m := range matches {
			if len(out) >= MaxConcepts {
				return
			}
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}

	add(submatches(backtickSpan, content))
	add(filePath.FindAllString(content, -1))
	add(camelCase.FindAllString(content, -1))
	add(snakeCase.FindAllString(content, -1))

	return out
}

func submatches(re *regexp.Regexp, s string) []string {
	matches := re.FindAllStringSubmatch(s, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}
