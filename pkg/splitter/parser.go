package splitter

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// astParser wraps a tree-sitter parser bound to a specific LanguageRegistry,
// converting its native tree into the package's own Tree/Node shapes so the
// rest of the splitter never touches smacker types directly.
type astParser struct {
	parser   *sitter.Parser
	registry *LanguageRegistry
}

// newASTParser builds a parser scoped to registry, reused across every
// codeSplitter.splitCode call for a given language so the underlying
// sitter.Parser is not reallocated per chunk.
func newASTParser(registry *LanguageRegistry) *astParser {
	return &astParser{
		parser:   sitter.NewParser(),
		registry: registry,
	}
}

// parse parses source as language and returns its AST, or an error if the
// language is unknown to the registry or tree-sitter fails to produce a
// tree.
func (p *astParser) parse(ctx context.Context, source []byte, language string) (*Tree, error) {
	tsLang, ok := p.registry.GetTreeSitterLanguage(language)
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", language)
	}
	p.parser.SetLanguage(tsLang)

	tsTree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source: %w", err)
	}
	if tsTree == nil {
		return nil, fmt.Errorf("failed to parse source: nil tree")
	}

	return &Tree{
		Root:     nodeFromSitter(tsTree.RootNode()),
		Source:   source,
		Language: language,
	}, nil
}

func (p *astParser) close() {
	if p.parser != nil {
		p.parser.Close()
	}
}

// nodeFromSitter converts a tree-sitter node and, recursively, each of its
// children into the package's own Node tree; a leaf gets no Children slice.
func nodeFromSitter(tsNode *sitter.Node) *Node {
	if tsNode == nil {
		return nil
	}

	childCount := int(tsNode.ChildCount())
	node := &Node{
		Type:      tsNode.Type(),
		StartByte: tsNode.StartByte(),
		EndByte:   tsNode.EndByte(),
		StartPoint: Point{
			Row:    tsNode.StartPoint().Row,
			Column: tsNode.StartPoint().Column,
		},
		EndPoint: Point{
			Row:    tsNode.EndPoint().Row,
			Column: tsNode.EndPoint().Column,
		},
		HasError: tsNode.HasError(),
	}
	if childCount == 0 {
		return node
	}

	node.Children = make([]*Node, 0, childCount)
	for i := 0; i < childCount; i++ {
		if child := tsNode.Child(i); child != nil {
			node.Children = append(node.Children, nodeFromSitter(child))
		}
	}
	return node
}

// GetContent returns the source slice a node spans.
func (n *Node) GetContent(source []byte) string {
	if n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// FindChildByType returns the first direct child with the given type.
func (n *Node) FindChildByType(nodeType string) *Node {
	for _, child := range n.Children {
		if child.Type == nodeType {
			return child
		}
	}
	return nil
}

// FindChildrenByType returns every direct child with the given type.
func (n *Node) FindChildrenByType(nodeType string) []*Node {
	var result []*Node
	for _, child := range n.Children {
		if child.Type == nodeType {
			result = append(result, child)
		}
	}
	return result
}

// FindAllByType recursively collects every node (including n itself) with
// the given type.
func (n *Node) FindAllByType(nodeType string) []*Node {
	var result []*Node
	if n.Type == nodeType {
		result = append(result, n)
	}
	for _, child := range n.Children {
		result = append(result, child.FindAllByType(nodeType)...)
	}
	return result
}

// Walk traverses the tree depth-first, calling fn for each node until fn
// returns false.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(fn)
	}
}
