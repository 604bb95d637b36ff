package coherency

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/remembrance-oracle/oracle-core/internal/logging"
	"github.com/remembrance-oracle/oracle-core/internal/types"
)

// astParser wraps one tree-sitter parser per supported language, grounded
// on the teacher's world-scanner TreeSitterParser. Here it feeds the
// simplicity and nesting dimensions instead of symbol-graph facts.
type astParser struct {
	goParser *sitter.Parser
	jsParser *sitter.Parser
	tsParser *sitter.Parser
	pyParser *sitter.Parser
	rsParser *sitter.Parser
}

func newASTParser() *astParser {
	return &astParser{
		goParser: sitter.NewParser(),
		jsParser: sitter.NewParser(),
		tsParser: sitter.NewParser(),
		pyParser: sitter.NewParser(),
		rsParser: sitter.NewParser(),
	}
}

func (p *astParser) Close() {
	p.goParser.Close()
	p.jsParser.Close()
	p.tsParser.Close()
	p.pyParser.Close()
	p.rsParser.Close()
}

// controlFlowNodeTypes lists the tree-sitter node type names that count as
// a branch (for cyclomatic complexity) or a nesting level, per language.
// Grammars differ in naming but converge on this small vocabulary for the
// handful of control structures the spec cares about.
var controlFlowNodeTypes = map[types.Language]map[string]bool{
	types.LanguageGo: {
		"if_statement": true, "for_statement": true, "expression_switch_statement": true,
		"type_switch_statement": true, "select_statement": true, "communication_case": true,
		"expression_case": true, "default_case": true,
	},
	types.LanguageJavaScript: {
		"if_statement": true, "for_statement": true, "for_in_statement": true,
		"while_statement": true, "do_statement": true, "switch_statement": true,
		"switch_case": true, "catch_clause": true,
	},
	types.LanguageTypeScript: {
		"if_statement": true, "for_statement": true, "for_in_statement": true,
		"while_statement": true, "do_statement": true, "switch_statement": true,
		"switch_case": true, "catch_clause": true,
	},
	types.LanguagePython: {
		"if_statement": true, "for_statement": true, "while_statement": true,
		"elif_clause": true, "except_clause": true,
	},
	types.LanguageRust: {
		"if_expression": true, "for_expression": true, "while_expression": true,
		"loop_expression": true, "match_expression": true, "match_arm": true,
	},
}

func (p *astParser) parserAndGrammar(lang types.Language) (*sitter.Parser, *sitter.Language) {
	switch lang {
	case types.LanguageGo:
		return p.goParser, golang.GetLanguage()
	case types.LanguageJavaScript:
		return p.jsParser, javascript.GetLanguage()
	case types.LanguageTypeScript:
		return p.tsParser, typescript.GetLanguage()
	case types.LanguagePython:
		return p.pyParser, python.GetLanguage()
	case types.LanguageRust:
		return p.rsParser, rust.GetLanguage()
	default:
		return nil, nil
	}
}

// astMetrics is what the Evaluator needs out of a parse: cyclomatic
// complexity (branch count + 1) and the maximum nesting depth of control
// structures.
type astMetrics struct {
	CyclomaticComplexity int
	MaxNestingDepth      int
	ok                   bool
}

// analyze parses code for lang and returns branch/nesting metrics. When the
// language has no grammar wired (or the parse fails), ok is false and the
// caller falls back to the regex-based heuristic in heuristics.go — the
// teacher's own parsers fall back to heuristics on parse failure, so we do
// the same.
func (p *astParser) analyze(ctx context.Context, lang types.Language, code string) astMetrics {
	parser, grammar := p.parserAndGrammar(lang)
	if parser == nil {
		return astMetrics{}
	}
	nodeTypes := controlFlowNodeTypes[lang]
	if nodeTypes == nil {
		return astMetrics{}
	}

	parser.SetLanguage(grammar)
	tree, err := parser.ParseCtx(ctx, nil, []byte(code))
	if err != nil {
		logging.Get(logging.CategoryCoherency).Debug("ast parse failed for %s: %v", lang, err)
		return astMetrics{}
	}
	defer tree.Close()

	branches := 0
	maxDepth := 0
	var walk func(n *sitter.Node, depth int)
	walk = func(n *sitter.Node, depth int) {
		if n == nil {
			return
		}
		nodeDepth := depth
		if nodeTypes[n.Type()] {
			branches++
			nodeDepth = depth + 1
			if nodeDepth > maxDepth {
				maxDepth = nodeDepth
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i), nodeDepth)
		}
	}
	walk(tree.RootNode(), 0)

	return astMetrics{
		CyclomaticComplexity: branches + 1,
		MaxNestingDepth:      maxDepth,
		ok:                   true,
	}
}

// detectLanguage infers a Language from syntactic cues when the caller
// didn't supply one. Cheap keyword/shape sniffing, not a parse — tree-
// sitter needs to be told a grammar before it can parse, so language
// detection necessarily precedes it.
func detectLanguage(code string) types.Language {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return types.LanguageUnknown
	}

	switch {
	case strings.Contains(code, "package ") && strings.Contains(code, "func "):
		return types.LanguageGo
	case strings.Contains(code, "fn ") && (strings.Contains(code, "->") || strings.Contains(code, "let mut")):
		return types.LanguageRust
	case strings.Contains(code, "def ") && strings.Contains(code, ":"):
		return types.LanguagePython
	case strings.Contains(code, "interface ") || strings.Contains(code, ": string") || strings.Contains(code, ": number"):
		return types.LanguageTypeScript
	case strings.Contains(code, "public class ") || strings.Contains(code, "System.out.println"):
		return types.LanguageJava
	case strings.Contains(code, "using System") || strings.Contains(code, "namespace "):
		return types.LanguageCSharp
	case strings.Contains(code, "#include <") && strings.Contains(code, "std::"):
		return types.LanguageCPP
	case strings.Contains(code, "#include "):
		return types.LanguageC
	case strings.Contains(code, "function ") || strings.Contains(code, "=>") || strings.Contains(code, "const ") || strings.Contains(code, "let "):
		return types.LanguageJavaScript
	default:
		return types.LanguageUnknown
	}
}
