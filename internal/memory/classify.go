package memory

import (
	"strings"

	"github.com/ccmemory/ccmemory/internal/store"
)

// ClassifySector determines a memory's sector. If memType has a fixed
// mapping (store.SectorForType), that wins. Otherwise a small deterministic
// keyword rule set picks the closest sector, defaulting to episodic for
// plain recollections of what happened.
func ClassifySector(content string, memType *store.MemoryType) store.Sector {
	if memType != nil {
		if sector, ok := store.SectorForType(*memType); ok {
			return sector
		}
	}

	lower := strings.ToLower(content)

	switch {
	case containsAny(lower, "prefer", "always use", "never use", "i like", "i don't like", "i dislike"):
		return store.SectorEmotional
	case containsAny(lower, "decided to", "decision:", "chose", "we will", "going with", "rationale"):
		return store.SectorReflective
	case containsAny(lower, "error", "bug", "gotcha", "careful", "breaks", "fails when", "workaround"):
		return store.SectorProcedural
	case containsAny(lower, "pattern", "convention", "always do", "approach", "how to"):
		return store.SectorProcedural
	case containsAny(lower, "is defined in", "implements", "consists of", "architecture", "module", "package"):
		return store.SectorSemantic
	default:
		return store.SectorEpisodic
	}
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
