// Package chunker splits document text into overlapping, identity-stable
// chunks ready for embedding. It is pure and synchronous: no I/O, no
// failure modes.
package chunker

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Chunk is a text segment ready for embedding.
type Chunk struct {
	ID         string
	Content    string
	ChunkIndex int
	DocumentID string
}

// Options configures the splitter. Zero-value Options falls back to
// DefaultOptions.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
}

// DefaultOptions matches the spec defaults: 1000-character windows with a
// 200-character overlap.
var DefaultOptions = Options{ChunkSize: 1000, ChunkOverlap: 200}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultOptions.ChunkSize
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		o.ChunkOverlap = DefaultOptions.ChunkOverlap
	}
	return o
}

// separators are tried in decreasing semantic size until a split produces
// pieces that fit within the window, mirroring a recursive-character text
// splitter.
var separators = []string{"\n\n", "\n", ". ", " "}

// ChunkID derives the deterministic UUIDv5 identity for (documentID, chunkIndex)
// under the nil namespace. Pure function: same inputs always produce the
// same ID, so re-chunking the same revision yields idempotent upserts.
func ChunkID(documentID string, chunkIndex int) string {
	name := fmt.Sprintf("%s:%d", documentID, chunkIndex)
	return uuid.NewSHA1(uuid.Nil, []byte(name)).String()
}

// Split decomposes content into ordered, overlapping chunks.
func Split(content, documentID string, opts Options) []Chunk {
	opts = opts.withDefaults()

	pieces := recursiveSplit(content, opts.ChunkSize, separators)
	windows := mergeWithOverlap(pieces, opts.ChunkSize, opts.ChunkOverlap)

	chunks := make([]Chunk, 0, len(windows))
	for i, w := range windows {
		if strings.TrimSpace(w) == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			ID:         ChunkID(documentID, i),
			Content:    w,
			ChunkIndex: i,
			DocumentID: documentID,
		})
	}
	// Re-index after dropping blank windows so indices stay contiguous.
	for i := range chunks {
		chunks[i].ChunkIndex = i
		chunks[i].ID = ChunkID(documentID, i)
	}
	return chunks
}

// recursiveSplit breaks text into pieces no larger than size, trying each
// separator in turn and falling back to a hard character cut when no
// separator helps.
func recursiveSplit(text string, size int, seps []string) []string {
	if len(text) <= size {
		return []string{text}
	}
	if len(seps) == 0 {
		return hardSplit(text, size)
	}

	sep := seps[0]
	parts := strings.Split(text, sep)
	if len(parts) == 1 {
		// Separator not present at all; try the next one.
		return recursiveSplit(text, size, seps[1:])
	}

	var out []string
	for _, p := range parts {
		if len(p) <= size {
			out = append(out, p)
		} else {
			out = append(out, recursiveSplit(p, size, seps[1:])...)
		}
	}
	return out
}

// hardSplit cuts text into fixed-size windows with no regard for word
// boundaries; the last resort when no separator shrinks a piece enough.
func hardSplit(text string, size int) []string {
	var out []string
	for len(text) > size {
		out = append(out, text[:size])
		text = text[size:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

// mergeWithOverlap packs the split pieces back into chunk_size windows,
// joining adjacent pieces with a single space and carrying the trailing
// overlap characters of one window into the start of the next.
func mergeWithOverlap(pieces []string, size, overlap int) []string {
	if len(pieces) == 0 {
		return nil
	}

	var windows []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			windows = append(windows, cur.String())
		}
	}

	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if cur.Len() == 0 {
			cur.WriteString(p)
			continue
		}
		if cur.Len()+1+len(p) <= size {
			cur.WriteByte(' ')
			cur.WriteString(p)
			continue
		}
		full := cur.String()
		flush()
		cur.Reset()
		cur.WriteString(overlapSuffix(full, overlap))
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(p)
	}
	flush()
	return windows
}

// overlapSuffix returns up to n trailing characters of s, used to seed the
// next window so consecutive chunks share a boundary.
func overlapSuffix(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return ""
	}
	return s[len(s)-n:]
}
