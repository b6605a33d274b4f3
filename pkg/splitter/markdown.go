package splitter

import (
	"regexp"
	"strings"
)

var (
	headerPattern      = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)
	frontmatterPattern = regexp.MustCompile(`(?s)^---\n(.+?)\n---\n*`)
)

// markdownSplitter implements header-based markdown sectioning: headings
// establish a hierarchical Section.Path, frontmatter becomes its own
// level-0 chunk, and oversized sections are greedily re-paragraphed down to
// size while fenced code blocks are never split across chunks.
type markdownSplitter struct{}

func (markdownSplitter) split(text string, opts SplitOptions) []ContentChunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []ContentChunk
	remaining := text

	if fm := frontmatterPattern.FindString(remaining); fm != "" {
		chunks = append(chunks, ContentChunk{Content: strings.TrimRight(fm, "\n"), Section: Section{Level: 0}})
		remaining = remaining[len(fm):]
	}

	sections := parseMarkdownSections(remaining)
	if len(sections) == 0 {
		return append(chunks, coalesceSmall(chunkParagraphs(remaining, nil, 0, opts), opts)...)
	}

	var body []ContentChunk
	for _, sec := range sections {
		body = append(body, sectionChunks(sec, opts)...)
	}
	return append(chunks, coalesceSmall(body, opts)...)
}

type mdSection struct {
	level   int
	title   string
	path    []string
	content string
}

func parseMarkdownSections(content string) []*mdSection {
	lines := strings.Split(content, "\n")
	var sections []*mdSection
	stack := make([]string, 6)

	var current *mdSection
	var body strings.Builder

	flush := func() {
		if current != nil {
			current.content = body.String()
			sections = append(sections, current)
			body.Reset()
		}
	}

	for _, line := range lines {
		if match := headerPattern.FindStringSubmatch(line); match != nil {
			flush()
			level := len(match[1])
			title := strings.TrimSpace(match[2])
			stack[level-1] = title
			for i := level; i < 6; i++ {
				stack[i] = ""
			}
			var path []string
			for i := 0; i < level; i++ {
				if stack[i] != "" {
					path = append(path, stack[i])
				}
			}
			current = &mdSection{level: level, title: title, path: path}
			body.WriteString(line)
			body.WriteString("\n")
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()
	return sections
}

func sectionChunks(sec *mdSection, opts SplitOptions) []ContentChunk {
	content := strings.TrimRight(sec.content, "\n")
	trimmed := strings.TrimSpace(content)
	lines := strings.Split(trimmed, "\n")
	if len(lines) <= 1 && headerPattern.MatchString(trimmed) {
		return nil
	}

	if len(content) <= opts.MaxChunkChars {
		return []ContentChunk{{Content: content, Section: Section{Level: sec.level, Path: sec.path}}}
	}

	return chunkParagraphs(content, sec.path, sec.level, opts)
}

// chunkParagraphs greedily packs paragraphs (blank-line separated, with
// fenced code blocks kept atomic) up to PreferredChunkChars, never
// exceeding MaxChunkChars for a single paragraph group.
func chunkParagraphs(content string, path []string, level int, opts SplitOptions) []ContentChunk {
	paragraphs := splitIntoParagraphs(content)
	if len(paragraphs) == 0 {
		return nil
	}

	var chunks []ContentChunk
	var cur strings.Builder

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		chunks = append(chunks, ContentChunk{
			Content: strings.TrimRight(cur.String(), "\n"),
			Section: Section{Level: level, Path: path},
		})
		cur.Reset()
	}

	for _, para := range paragraphs {
		if cur.Len() > 0 && cur.Len()+len(para) > opts.PreferredChunkChars {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)

		for cur.Len() > opts.MaxChunkChars {
			s := cur.String()
			chunks = append(chunks, ContentChunk{
				Content: s[:opts.MaxChunkChars],
				Section: Section{Level: level, Path: path},
			})
			cur.Reset()
			cur.WriteString(s[opts.MaxChunkChars:])
		}
	}
	flush()
	return chunks
}

// splitIntoParagraphs splits on blank lines while re-merging any paragraph
// that opens a fenced code block without closing it in the same
// blank-line-delimited part.
func splitIntoParagraphs(content string) []string {
	raw := strings.Split(content, "\n\n")
	var parts []string
	for _, p := range raw {
		t := strings.TrimSpace(p)
		if t != "" {
			parts = append(parts, t)
		}
	}
	return mergeAtomicBlocks(parts)
}

func mergeAtomicBlocks(paragraphs []string) []string {
	var result []string
	var inCodeBlock bool
	var building strings.Builder

	for _, para := range paragraphs {
		if inCodeBlock {
			building.WriteString("\n\n")
			building.WriteString(para)
			if strings.Contains(para, "```") {
				result = append(result, building.String())
				building.Reset()
				inCodeBlock = false
			}
			continue
		}
		if strings.Count(para, "```")%2 == 1 {
			inCodeBlock = true
			building.WriteString(para)
			continue
		}
		result = append(result, para)
	}
	if inCodeBlock {
		result = append(result, building.String())
	}
	return result
}

// coalesceSmall merges any chunk below MinChunkChars into its neighbor
// (preferring the following chunk within the same section) so long as the
// merged result stays at or under PreferredChunkChars.
func coalesceSmall(chunks []ContentChunk, opts SplitOptions) []ContentChunk {
	if len(chunks) < 2 {
		return chunks
	}

	var out []ContentChunk
	i := 0
	for i < len(chunks) {
		c := chunks[i]
		for len(c.Content) < opts.MinChunkChars && i+1 < len(chunks) &&
			len(c.Content)+len(chunks[i+1].Content)+2 <= opts.PreferredChunkChars {
			next := chunks[i+1]
			c.Content = c.Content + "\n\n" + next.Content
			if len(next.Section.Path) > len(c.Section.Path) {
				c.Section = next.Section
			}
			i++
		}
		out = append(out, c)
		i++
	}
	return out
}
