// Package chunk implements the Chunker component (spec §4.1): it turns a
// document's plain text into a sequence of overlapping (text, start, end)
// TextUnits sized by token count rather than byte count.
//
// The splitting strategy — recursively separate on paragraph, then sentence,
// then whitespace boundaries, merging adjacent pieces back up to a target
// size — is grounded on splitter.RecursiveCharacterTextSplitter's
// separator-cascade idiom, generalized from a byte-length function to a
// token-length function and reworked to track byte offsets through the cascade.
package chunk

import (
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/huytu0702/graphtog/config"
	"github.com/huytu0702/graphtog/errs"
)

// Unit is one chunk produced by the Chunker: a text span with byte offsets
// into the source document.
type Unit struct {
	Text      string
	StartChar int
	EndChar   int
}

// tokenCounter counts tokens the way the LLM provider would; falls back to a
// whitespace-word heuristic if the tiktoken encoding can't be loaded, so
// chunking never depends on network access.
type tokenCounter struct {
	enc *tiktoken.Tiktoken
}

func newTokenCounter() *tokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &tokenCounter{}
	}
	return &tokenCounter{enc: enc}
}

func (t *tokenCounter) Count(s string) int {
	if t.enc != nil {
		return len(t.enc.Encode(s, nil, nil))
	}
	if strings.TrimSpace(s) == "" {
		return 0
	}
	return len(strings.Fields(s))
}

// Chunker splits document text into token-bounded, overlapping chunks.
type Chunker struct {
	cfg     config.ChunkerConfig
	counter *tokenCounter
}

// New builds a Chunker from cfg.
func New(cfg config.ChunkerConfig) *Chunker {
	return &Chunker{cfg: cfg, counter: newTokenCounter()}
}

// Split produces the chunk sequence for text. Returns ChunkingError (via
// errs.InvalidInput) if text is not valid UTF-8. Empty text yields an empty
// sequence with no error.
func (c *Chunker) Split(text string) ([]Unit, error) {
	if !utf8.ValidString(text) {
		return nil, errs.New(errs.InvalidInput, "chunker: input is not UTF-8-decodable")
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	paragraphs := splitOnBlankLines(text)
	return c.pack(paragraphs), nil
}

// paragraph is a span of text with its byte offset in the source document.
type paragraph struct {
	text  string
	start int
	end   int
}

// splitOnBlankLines splits text on blank-line boundaries, preserving byte offsets.
func splitOnBlankLines(text string) []paragraph {
	var paras []paragraph
	offset := 0
	for _, raw := range strings.Split(text, "\n\n") {
		start := offset
		end := offset + len(raw)
		offset = end + len("\n\n")
		if strings.TrimSpace(raw) == "" {
			continue
		}
		trimmed := strings.TrimRight(raw, "\n")
		paras = append(paras, paragraph{text: trimmed, start: start, end: start + len(trimmed)})
	}
	return paras
}

// pack greedily packs paragraphs into chunks at or below target_tokens,
// recursively splitting paragraphs (then sentences) that overflow on their
// own, and seeding each new chunk with an overlap suffix of the previous one.
func (c *Chunker) pack(paras []paragraph) []Unit {
	var units []Unit
	var current []paragraph
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		if c.tokensOf(current) >= c.cfg.MinTokens || len(units) == 0 {
			units = append(units, mergeParagraphs(current))
		} else if len(units) > 0 {
			// Too small on its own: merge into the previous unit instead of
			// emitting a sub-minimum chunk.
			units[len(units)-1] = extendUnit(units[len(units)-1], mergeParagraphs(current))
		} else {
			units = append(units, mergeParagraphs(current))
		}
		current = nil
		currentTokens = 0
	}

	for _, p := range paras {
		pieces := c.splitOversizedParagraph(p)
		for _, piece := range pieces {
			pieceTokens := c.counter.Count(piece.text)
			if currentTokens > 0 && currentTokens+pieceTokens > c.cfg.TargetTokens {
				flush()
				current = c.seedOverlap(units)
				currentTokens = c.tokensOf(current)
			}
			current = append(current, piece)
			currentTokens += pieceTokens
		}
	}
	flush()
	return units
}

func (c *Chunker) tokensOf(paras []paragraph) int {
	total := 0
	for _, p := range paras {
		total += c.counter.Count(p.text)
	}
	return total
}

// seedOverlap returns a pseudo-paragraph slice from the suffix of the last
// emitted unit whose token length is approximately overlap_tokens, so the
// next chunk starts with that overlap baked in.
func (c *Chunker) seedOverlap(units []Unit) []paragraph {
	if c.cfg.OverlapTokens <= 0 || len(units) == 0 {
		return nil
	}
	last := units[len(units)-1]
	words := strings.Fields(last.Text)
	if len(words) == 0 {
		return nil
	}
	take := c.cfg.OverlapTokens
	if take > len(words) {
		take = len(words)
	}
	suffix := strings.Join(words[len(words)-take:], " ")
	// Anchor the overlap at the tail of the previous unit's byte range so
	// the seeded paragraph's offsets remain meaningful.
	start := last.EndChar - len(suffix)
	if start < last.StartChar {
		start = last.StartChar
	}
	return []paragraph{{text: suffix, start: start, end: last.EndChar}}
}

// splitOversizedParagraph recursively splits p on sentence then whitespace
// boundaries until every piece is at or below target_tokens.
func (c *Chunker) splitOversizedParagraph(p paragraph) []paragraph {
	if c.counter.Count(p.text) <= c.cfg.TargetTokens {
		return []paragraph{p}
	}
	sentences := splitSentences(p)
	var out []paragraph
	for _, s := range sentences {
		if c.counter.Count(s.text) <= c.cfg.TargetTokens {
			out = append(out, s)
			continue
		}
		out = append(out, splitWhitespace(s, c.cfg.TargetTokens, c.counter)...)
	}
	return out
}

// splitSentences splits p on ". "/"! "/"? " boundaries, preserving offsets.
func splitSentences(p paragraph) []paragraph {
	var out []paragraph
	start := 0
	for i := 0; i < len(p.text); i++ {
		ch := p.text[i]
		if (ch == '.' || ch == '!' || ch == '?') && (i+1 == len(p.text) || p.text[i+1] == ' ') {
			end := i + 1
			seg := p.text[start:end]
			if strings.TrimSpace(seg) != "" {
				out = append(out, paragraph{text: seg, start: p.start + start, end: p.start + end})
			}
			start = end
		}
	}
	if start < len(p.text) {
		seg := p.text[start:]
		if strings.TrimSpace(seg) != "" {
			out = append(out, paragraph{text: seg, start: p.start + start, end: p.start + len(p.text)})
		}
	}
	if len(out) == 0 {
		return []paragraph{p}
	}
	return out
}

// splitWhitespace splits an over-long sentence on whitespace, packing words
// up to targetTokens per piece.
func splitWhitespace(p paragraph, targetTokens int, counter *tokenCounter) []paragraph {
	words := strings.Fields(p.text)
	if len(words) == 0 {
		return []paragraph{p}
	}
	var out []paragraph
	var cur []string
	curTokens := 0
	cursor := p.start
	for _, w := range words {
		wt := counter.Count(w)
		if curTokens > 0 && curTokens+wt > targetTokens {
			text := strings.Join(cur, " ")
			idx := strings.Index(p.text[cursor-p.start:], text)
			start := cursor
			if idx >= 0 {
				start = p.start + (cursor - p.start) + idx
			}
			out = append(out, paragraph{text: text, start: start, end: start + len(text)})
			cursor = start + len(text)
			cur = nil
			curTokens = 0
		}
		cur = append(cur, w)
		curTokens += wt
	}
	if len(cur) > 0 {
		text := strings.Join(cur, " ")
		start := cursor
		if idx := strings.Index(p.text[cursor-p.start:], text); idx >= 0 {
			start = cursor + idx
		}
		// The last piece runs to the end of p so trailing whitespace stays covered.
		out = append(out, paragraph{text: text, start: start, end: p.end})
	}
	return out
}

func mergeParagraphs(paras []paragraph) Unit {
	var sb strings.Builder
	for i, p := range paras {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(p.text)
	}
	return Unit{
		Text:      sb.String(),
		StartChar: paras[0].start,
		EndChar:   paras[len(paras)-1].end,
	}
}

func extendUnit(u Unit, extra Unit) Unit {
	u.Text = u.Text + "\n\n" + extra.Text
	u.EndChar = extra.EndChar
	return u
}
