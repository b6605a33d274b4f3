package splitter

import (
	"strings"
)

// symbolExtractor pulls names, doc comments, and signatures for the symbol
// kinds a LanguageConfig declares. codeSplitter is the only caller: it walks
// a parsed Tree itself and asks symbolExtractor to resolve each candidate
// node, rather than having the extractor walk the tree on its own.
type symbolExtractor struct {
	registry *LanguageRegistry
}

// newSymbolExtractor builds an extractor scoped to registry.
func newSymbolExtractor(registry *LanguageRegistry) *symbolExtractor {
	return &symbolExtractor{registry: registry}
}

// extractName resolves a symbol-defining node's identifier, dispatching on
// language since each tree-sitter grammar places the identifier child
// differently.
func (e *symbolExtractor) extractName(n *Node, source []byte, config *LanguageConfig, language string) string {
	switch language {
	case "go":
		return e.extractGoName(n, source)
	case "typescript", "tsx":
		return e.extractTypeScriptName(n, source)
	case "javascript", "jsx":
		return e.extractJavaScriptName(n, source)
	case "python":
		return e.extractPythonName(n, source)
	default:
		for _, child := range n.Children {
			if child.Type == "identifier" {
				return child.GetContent(source)
			}
		}
	}
	return ""
}

func (e *symbolExtractor) extractGoName(n *Node, source []byte) string {
	switch n.Type {
	case "function_declaration":
		for _, child := range n.Children {
			if child.Type == "identifier" {
				return child.GetContent(source)
			}
		}
	case "method_declaration":
		// Method names sit in field_identifier, not identifier.
		for _, child := range n.Children {
			if child.Type == "field_identifier" {
				return child.GetContent(source)
			}
		}
	case "type_declaration":
		for _, child := range n.Children {
			if child.Type == "type_spec" {
				for _, grandchild := range child.Children {
					if grandchild.Type == "type_identifier" {
						return grandchild.GetContent(source)
					}
				}
			}
		}
	case "const_declaration":
		// Covers both `const Name = v` and `const ( Name1 = v1; Name2 = v2 )`.
		for _, child := range n.Children {
			if child.Type == "const_spec" {
				for _, grandchild := range child.Children {
					if grandchild.Type == "identifier" {
						return grandchild.GetContent(source)
					}
				}
			}
		}
	case "var_declaration":
		for _, child := range n.Children {
			if child.Type == "var_spec" {
				for _, grandchild := range child.Children {
					if grandchild.Type == "identifier" {
						return grandchild.GetContent(source)
					}
				}
			}
		}
	}
	return ""
}

func (e *symbolExtractor) extractTypeScriptName(n *Node, source []byte) string {
	if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
		for _, child := range n.Children {
			if child.Type == "variable_declarator" {
				for _, grandchild := range child.Children {
					if grandchild.Type == "identifier" {
						return grandchild.GetContent(source)
					}
				}
			}
		}
	}
	for _, child := range n.Children {
		if child.Type == "identifier" || child.Type == "type_identifier" {
			return child.GetContent(source)
		}
	}
	return ""
}

func (e *symbolExtractor) extractJavaScriptName(n *Node, source []byte) string {
	if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
		for _, child := range n.Children {
			if child.Type == "variable_declarator" {
				for _, grandchild := range child.Children {
					if grandchild.Type == "identifier" {
						return grandchild.GetContent(source)
					}
				}
			}
		}
	}
	for _, child := range n.Children {
		if child.Type == "identifier" {
			return child.GetContent(source)
		}
	}
	return ""
}

func (e *symbolExtractor) extractPythonName(n *Node, source []byte) string {
	for _, child := range n.Children {
		if child.Type == "identifier" {
			return child.GetContent(source)
		}
	}
	return ""
}

// extractSpecialSymbol recognizes JS/TS variable declarations that actually
// bind a function value (`const f = () => {}`, `const f = function() {}`),
// which the language's FunctionTypes list can't describe since they share
// a node type with ordinary variable bindings.
func (e *symbolExtractor) extractSpecialSymbol(n *Node, source []byte, language string) *Symbol {
	switch language {
	case "typescript", "tsx", "javascript", "jsx":
		if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
			return e.extractJSVariableFunctionSymbol(n, source)
		}
	}
	return nil
}

func (e *symbolExtractor) extractJSVariableFunctionSymbol(n *Node, source []byte) *Symbol {
	for _, child := range n.Children {
		if child.Type != "variable_declarator" {
			continue
		}
		var name string
		var hasFunction bool
		for _, grandchild := range child.Children {
			switch grandchild.Type {
			case "identifier":
				name = grandchild.GetContent(source)
			case "arrow_function", "function", "function_expression":
				hasFunction = true
			}
		}
		if name == "" || !hasFunction {
			continue
		}
		return &Symbol{
			Name:      name,
			Type:      SymbolTypeFunction,
			StartLine: int(n.StartPoint.Row) + 1,
			EndLine:   int(n.EndPoint.Row) + 1,
			Signature: e.extractFunctionSignature(n.GetContent(source), "javascript"),
		}
	}
	return nil
}

// extractDocComment looks one line above n for a same-language comment.
// Python is excluded since its doc comments are docstrings inside the body,
// not a preceding line.
func (e *symbolExtractor) extractDocComment(n *Node, source []byte, language string) string {
	if language == "python" || n.StartPoint.Row == 0 {
		return ""
	}

	lineStart := int(n.StartByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}
	if lineStart <= 1 {
		return ""
	}

	prevLineEnd := lineStart - 1
	prevLineStart := prevLineEnd - 1
	for prevLineStart > 0 && source[prevLineStart-1] != '\n' {
		prevLineStart--
	}
	prevLine := strings.TrimSpace(string(source[prevLineStart:prevLineEnd]))

	switch language {
	case "go", "javascript", "jsx", "typescript", "tsx":
		if strings.HasPrefix(prevLine, "//") {
			return strings.TrimPrefix(prevLine, "//")
		}
	}
	return ""
}

// extractFunctionSignature trims a function/method's source down to its
// declaration line, so embeddings see the interface without the body.
func (e *symbolExtractor) extractFunctionSignature(content, language string) string {
	firstLine := strings.TrimSpace(strings.SplitN(content, "\n", 2)[0])

	switch language {
	case "python":
		// def name(params): keep the full line, colon included.
		return firstLine
	default:
		// go, js/ts variants: cut at the opening brace when present.
		if idx := strings.Index(firstLine, "{"); idx != -1 {
			return strings.TrimSpace(firstLine[:idx])
		}
		return firstLine
	}
}
