package splitter

import (
	"context"
	"strings"
)

// codeSplitter produces one ContentChunk per symbol (function, method, class,
// type, interface, constant block) found at any depth by the language's
// tree-sitter grammar, so a nested symbol such as a method gets its own chunk
// and its source also appears in the enclosing symbol's chunk. It splits any
// symbol whose source exceeds MaxChunkChars
// into line-based sub-chunks with the symbol's own heading repeated in
// Section.Path so each part remains independently searchable.
type codeSplitter struct {
	parser    *astParser
	extractor *symbolExtractor
	registry  *LanguageRegistry
}

func newCodeSplitter(registry *LanguageRegistry) *codeSplitter {
	return &codeSplitter{
		parser:    newASTParser(registry),
		extractor: newSymbolExtractor(registry),
		registry:  registry,
	}
}

func (c *codeSplitter) close() {
	c.parser.close()
}

// splitCode splits source text recognized as the given language into
// ContentChunks. When the language is unrecognized or parsing fails it falls
// back to fixed-size line windows, still respecting the size options.
func (c *codeSplitter) splitCode(ctx context.Context, text string, language string, opts SplitOptions) ([]ContentChunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	if _, ok := c.registry.GetByName(language); !ok {
		return c.splitByLines(text, nil, opts), nil
	}

	tree, err := c.parser.parse(ctx, []byte(text), language)
	if err != nil {
		return c.splitByLines(text, nil, opts), nil
	}

	nodes := c.findSymbolNodes(tree, language)
	if len(nodes) == 0 {
		return c.splitByLines(text, nil, opts), nil
	}

	var chunks []ContentChunk
	for _, info := range nodes {
		raw := info.node.GetContent(tree.Source)
		if doc := info.symbol.DocComment; doc != "" {
			raw = c.prependDocComment(info.node, tree.Source, doc)
		}
		if len(raw) <= opts.MaxChunkChars {
			chunks = append(chunks, ContentChunk{
				Content: raw,
				Section: Section{Level: 1, Path: []string{info.symbol.Name}},
			})
			continue
		}
		chunks = append(chunks, c.splitByLines(raw, []string{info.symbol.Name}, opts)...)
	}

	return chunks, nil
}

type symbolNodeInfo struct {
	node   *Node
	symbol *Symbol
}

func (c *codeSplitter) findSymbolNodes(tree *Tree, language string) []*symbolNodeInfo {
	config, ok := c.registry.GetByName(language)
	if !ok {
		return nil
	}

	symbolTypes := make(map[string]SymbolType)
	for _, t := range config.FunctionTypes {
		symbolTypes[t] = SymbolTypeFunction
	}
	for _, t := range config.MethodTypes {
		symbolTypes[t] = SymbolTypeMethod
	}
	for _, t := range config.ClassTypes {
		symbolTypes[t] = SymbolTypeClass
	}
	for _, t := range config.InterfaceTypes {
		symbolTypes[t] = SymbolTypeInterface
	}
	for _, t := range config.TypeDefTypes {
		symbolTypes[t] = SymbolTypeType
	}
	for _, t := range config.ConstantTypes {
		symbolTypes[t] = SymbolTypeConstant
	}
	for _, t := range config.VariableTypes {
		symbolTypes[t] = SymbolTypeVariable
	}

	var nodes []*symbolNodeInfo
	tree.Root.Walk(func(n *Node) bool {
		if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
			if sym := c.extractor.extractSpecialSymbol(n, tree.Source, language); sym != nil {
				nodes = append(nodes, &symbolNodeInfo{node: n, symbol: sym})
				return true
			}
		}
		if symType, isSymbol := symbolTypes[n.Type]; isSymbol {
			name := c.extractor.extractName(n, tree.Source, config, language)
			if name != "" {
				nodes = append(nodes, &symbolNodeInfo{
					node: n,
					symbol: &Symbol{
						Name:       name,
						Type:       symType,
						StartLine:  int(n.StartPoint.Row) + 1,
						EndLine:    int(n.EndPoint.Row) + 1,
						DocComment: c.extractor.extractDocComment(n, tree.Source, language),
					},
				})
			}
		}
		return true
	})
	return nodes
}

func (c *codeSplitter) prependDocComment(n *Node, source []byte, docComment string) string {
	lineStart := int(n.StartByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}
	docLines := strings.Count(docComment, "\n") + 1
	for i := 0; i < docLines && lineStart > 0; i++ {
		lineStart--
		for lineStart > 0 && source[lineStart-1] != '\n' {
			lineStart--
		}
	}
	return string(source[lineStart:n.EndByte])
}

// splitByLines windows content into chunks honoring MaxChunkChars, preferring
// breaks at PreferredChunkChars and never exceeding Max.
func (c *codeSplitter) splitByLines(content string, path []string, opts SplitOptions) []ContentChunk {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 {
		return nil
	}

	avgLineLen := len(content) / len(lines)
	if avgLineLen == 0 {
		avgLineLen = 1
	}
	linesPerChunk := opts.PreferredChunkChars / avgLineLen
	if linesPerChunk < 1 {
		linesPerChunk = 1
	}

	var chunks []ContentChunk
	for i := 0; i < len(lines); {
		end := i + linesPerChunk
		if end > len(lines) {
			end = len(lines)
		}
		part := strings.Join(lines[i:end], "\n")
		for len(part) > opts.MaxChunkChars && end > i+1 {
			end--
			part = strings.Join(lines[i:end], "\n")
		}
		for len(part) > opts.MaxChunkChars {
			chunks = append(chunks, ContentChunk{
				Content: part[:opts.MaxChunkChars],
				Section: Section{Level: 1, Path: path},
			})
			part = part[opts.MaxChunkChars:]
		}
		chunks = append(chunks, ContentChunk{
			Content: part,
			Section: Section{Level: 1, Path: path},
		})
		if end >= len(lines) {
			break
		}
		i = end
	}
	return chunks
}
