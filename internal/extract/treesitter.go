package extract

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// TreeSitterExtractor parses source locally with tree-sitter grammars.
// Supported languages: python, javascript, typescript.
type TreeSitterExtractor struct{}

// NewTreeSitterExtractor returns the local parsing implementation.
func NewTreeSitterExtractor() *TreeSitterExtractor {
	return &TreeSitterExtractor{}
}

func languageFor(lang string) (*sitter.Language, error) {
	switch lang {
	case "python":
		return python.GetLanguage(), nil
	case "javascript", "jsx":
		return javascript.GetLanguage(), nil
	case "typescript", "tsx":
		return typescript.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}
}

// Parse extracts function units and import targets from source code.
// Whitespace-only input yields an empty result.
func (e *TreeSitterExtractor) Parse(ctx context.Context, code, language string) (*Result, error) {
	if strings.TrimSpace(code) == "" {
		return &Result{}, nil
	}

	lang, err := languageFor(language)
	if err != nil {
		return nil, err
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	source := []byte(code)
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s source: %w", language, err)
	}
	defer tree.Close()

	result := &Result{}
	collect(tree.RootNode(), source, language, "", result)
	return result, nil
}

// collect walks the syntax tree gathering function definitions and imports.
// Nested functions and methods are qualified with their enclosing scope.
func collect(node *sitter.Node, source []byte, language, scope string, result *Result) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)

		switch child.Type() {
		case "function_definition", "function_declaration", "method_definition", "generator_function_declaration":
			name := nodeName(child, source)
			if name == "" {
				name = fmt.Sprintf("anonymous_%d", child.StartPoint().Row+1)
			}
			if scope != "" {
				name = scope + "." + name
			}
			result.Functions = append(result.Functions, FunctionUnit{
				Name:      name,
				Code:      child.Content(source),
				StartLine: int(child.StartPoint().Row) + 1,
				EndLine:   int(child.EndPoint().Row) + 1,
			})
			// Nested definitions keep their qualified scope
			collect(child, source, language, name, result)
			continue

		case "class_definition", "class_declaration":
			className := nodeName(child, source)
			next := scope
			if className != "" {
				if next != "" {
					next += "." + className
				} else {
					next = className
				}
			}
			collect(child, source, language, next, result)
			continue

		case "import_statement", "import_from_statement":
			if target := importTarget(child, source, language); target != "" {
				result.Imports = append(result.Imports, target)
			}
		}

		collect(child, source, language, scope, result)
	}
}

func nodeName(node *sitter.Node, source []byte) string {
	if name := node.ChildByFieldName("name"); name != nil {
		return name.Content(source)
	}
	return ""
}

// importTarget pulls the imported module path out of an import node.
func importTarget(node *sitter.Node, source []byte, language string) string {
	switch language {
	case "python":
		// "from X import ..." carries the module in the module_name field;
		// "import X" carries dotted_name / aliased_import children.
		if mod := node.ChildByFieldName("module_name"); mod != nil {
			return mod.Content(source)
		}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if child.Type() == "dotted_name" {
				return child.Content(source)
			}
			if child.Type() == "aliased_import" {
				if name := child.ChildByFieldName("name"); name != nil {
					return name.Content(source)
				}
			}
		}
	default:
		// JS/TS: import ... from "module"
		if src := node.ChildByFieldName("source"); src != nil {
			return strings.Trim(src.Content(source), `"'`)
		}
	}
	return ""
}
