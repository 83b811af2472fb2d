package docs

import (
	"regexp"
	"strings"

	"github.com/ccmemory/ccmemory/internal/chunk"
)

// ChunkerOptions configures the document chunker's target size, overlap,
// and minimum chunk size (§4.8).
type ChunkerOptions struct {
	TargetTokens  int     // default 768
	OverlapRatio  float64 // default 0.10
	MinChunkChars int     // default 100
}

// DefaultChunkerOptions matches §4.8's chunker defaults: target 768
// tokens (≈4 chars/token via chunk.TokensPerChar), 10% overlap, 100-char
// minimum chunk size.
var DefaultChunkerOptions = ChunkerOptions{
	TargetTokens:  768,
	OverlapRatio:  0.10,
	MinChunkChars: 100,
}

// TextChunk is one paragraph-or-sentence-bounded slice of a document, with
// byte offsets into the original content.
type TextChunk struct {
	Content     string
	StartOffset int
	EndOffset   int
}

// Chunker splits ingested document content into overlapping chunks,
// preferring paragraph boundaries and falling back to sentence boundaries
// for paragraphs that exceed the target size on their own.
type Chunker struct {
	opts ChunkerOptions
}

// NewChunker builds a Chunker, filling in zero-valued options from
// DefaultChunkerOptions.
func NewChunker(opts ChunkerOptions) *Chunker {
	if opts.TargetTokens <= 0 {
		opts.TargetTokens = DefaultChunkerOptions.TargetTokens
	}
	if opts.OverlapRatio <= 0 {
		opts.OverlapRatio = DefaultChunkerOptions.OverlapRatio
	}
	if opts.MinChunkChars <= 0 {
		opts.MinChunkChars = DefaultChunkerOptions.MinChunkChars
	}
	return &Chunker{opts: opts}
}

var paragraphSplit = regexp.MustCompile(`\n\s*\n`)

// sentenceSplit matches a sentence terminator followed by whitespace, kept
// as a lookbehind-free split point (the terminator stays with the
// preceding sentence).
var sentenceSplit = regexp.MustCompile(`(?:[.!?])\s+`)

// Chunk splits content into TextChunks targeting opts.TargetTokens tokens
// each, with opts.OverlapRatio overlap between consecutive chunks. Returns
// nil for empty/whitespace-only content.
func (c *Chunker) Chunk(content string) []*TextChunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	targetChars := c.opts.TargetTokens * chunk.TokensPerChar
	overlapChars := int(float64(targetChars) * c.opts.OverlapRatio)

	paragraphs := splitWithOffsets(content, paragraphSplit)

	var units []span
	for _, p := range paragraphs {
		if len(p.text) <= targetChars {
			units = append(units, p)
			continue
		}
		units = append(units, splitWithOffsets(p.text, sentenceSplit).offsetBy(p.start)...)
	}

	var chunks []*TextChunk
	var buf strings.Builder
	bufStart := -1
	bufEnd := -1

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		text := buf.String()
		if len(chunks) > 0 && len(strings.TrimSpace(text)) < c.opts.MinChunkChars {
			prev := chunks[len(chunks)-1]
			prev.Content += text
			prev.EndOffset = bufEnd
			buf.Reset()
			bufStart, bufEnd = -1, -1
			return
		}
		chunks = append(chunks, &TextChunk{Content: text, StartOffset: bufStart, EndOffset: bufEnd})
		buf.Reset()
		bufStart, bufEnd = -1, -1
	}

	for _, u := range units {
		if buf.Len() > 0 && buf.Len()+len(u.text) > targetChars {
			flush()
			if overlapChars > 0 && len(chunks) > 0 {
				prev := chunks[len(chunks)-1]
				tail := lastNChars(prev.Content, overlapChars)
				if tail != "" {
					buf.WriteString(tail)
					bufStart = prev.EndOffset - len(tail)
					bufEnd = prev.EndOffset
				}
			}
		}
		if bufStart == -1 {
			bufStart = u.start
		}
		buf.WriteString(u.text)
		bufEnd = u.start + len(u.text)
	}
	flush()

	return chunks
}

// span is a substring with its byte offset in some parent string.
type span struct {
	text  string
	start int
}

type spans []span

func (s spans) offsetBy(delta int) spans {
	out := make(spans, len(s))
	for i, sp := range s {
		out[i] = span{text: sp.text, start: sp.start + delta}
	}
	return out
}

// splitWithOffsets splits s on re, tracking each piece's byte offset in s.
// Empty pieces are dropped.
func splitWithOffsets(s string, re *regexp.Regexp) spans {
	locs := re.FindAllStringIndex(s, -1)
	var out spans
	pos := 0
	for _, loc := range locs {
		piece := s[pos:loc[0]]
		if strings.TrimSpace(piece) != "" {
			out = append(out, span{text: piece, start: pos})
		}
		pos = loc[1]
	}
	if tail := s[pos:]; strings.TrimSpace(tail) != "" {
		out = append(out, span{text: tail, start: pos})
	}
	return out
}

func lastNChars(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
