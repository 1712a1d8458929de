// Package ast defines the node shapes the parser produces and the compiler
// consumes: one statement per declaration/control-flow form, one expression
// per operator/literal form.
package ast

import (
	"strings"

	"izb/internal/token"
)

type Node interface {
	TokenLiteral() string
	String() string
	Line() int
}

type Statement interface {
	Node
	statementNode()
}

type Expression interface {
	Node
	expressionNode()
}

type Program struct {
	Statements []Statement
}

func (p *Program) TokenLiteral() string {
	if len(p.Statements) > 0 {
		return p.Statements[0].TokenLiteral()
	}
	return ""
}
func (p *Program) Line() int {
	if len(p.Statements) > 0 {
		return p.Statements[0].Line()
	}
	return 0
}
func (p *Program) String() string {
	var out strings.Builder
	for _, s := range p.Statements {
		out.WriteString(s.String())
		out.WriteString("\n")
	}
	return out.String()
}

// ---- statements ----

type ExpressionStmt struct {
	Token      token.Token
	Expression Expression
}

func (s *ExpressionStmt) statementNode()       {}
func (s *ExpressionStmt) TokenLiteral() string { return s.Token.Literal }
func (s *ExpressionStmt) Line() int            { return s.Token.Line }
func (s *ExpressionStmt) String() string       { return s.Expression.String() + ";" }

type VarStmt struct {
	Token token.Token // 'var'
	Name  string
	Value Expression // nil if uninitialized (compiles to NIL)
}

func (s *VarStmt) statementNode()       {}
func (s *VarStmt) TokenLiteral() string { return s.Token.Literal }
func (s *VarStmt) Line() int            { return s.Token.Line }
func (s *VarStmt) String() string {
	if s.Value == nil {
		return "var " + s.Name + ";"
	}
	return "var " + s.Name + " = " + s.Value.String() + ";"
}

type FunctionStmt struct {
	Token  token.Token // 'fn'
	Name   string
	Params []string
	Body   *BlockStatement
}

func (s *FunctionStmt) statementNode()       {}
func (s *FunctionStmt) TokenLiteral() string { return s.Token.Literal }
func (s *FunctionStmt) Line() int            { return s.Token.Line }
func (s *FunctionStmt) String() string {
	return "fn " + s.Name + "(" + strings.Join(s.Params, ", ") + ") " + s.Body.String()
}

type ClassStmt struct {
	Token   token.Token // 'class'
	Name    string
	Super   string // empty if no superclass
	Fields  []string
	Methods []*FunctionStmt
}

func (s *ClassStmt) statementNode()       {}
func (s *ClassStmt) TokenLiteral() string { return s.Token.Literal }
func (s *ClassStmt) Line() int            { return s.Token.Line }
func (s *ClassStmt) String() string {
	var out strings.Builder
	out.WriteString("class ")
	out.WriteString(s.Name)
	if s.Super != "" {
		out.WriteString(" : " + s.Super)
	}
	out.WriteString(" {")
	for _, f := range s.Fields {
		out.WriteString(" var " + f + ";")
	}
	for _, m := range s.Methods {
		out.WriteString(" " + m.String())
	}
	out.WriteString(" }")
	return out.String()
}

type BlockStatement struct {
	Token      token.Token // '{'
	Statements []Statement
}

func (s *BlockStatement) statementNode()       {}
func (s *BlockStatement) TokenLiteral() string { return s.Token.Literal }
func (s *BlockStatement) Line() int            { return s.Token.Line }
func (s *BlockStatement) String() string {
	var out strings.Builder
	out.WriteString("{ ")
	for _, st := range s.Statements {
		out.WriteString(st.String())
		out.WriteString(" ")
	}
	out.WriteString("}")
	return out.String()
}

type IfStmt struct {
	Token       token.Token // 'if'
	Condition   Expression
	Consequence *BlockStatement
	Alternative *BlockStatement // nil if no else
}

func (s *IfStmt) statementNode()       {}
func (s *IfStmt) TokenLiteral() string { return s.Token.Literal }
func (s *IfStmt) Line() int            { return s.Token.Line }
func (s *IfStmt) String() string {
	out := "if (" + s.Condition.String() + ") " + s.Consequence.String()
	if s.Alternative != nil {
		out += " else " + s.Alternative.String()
	}
	return out
}

type WhileStmt struct {
	Token     token.Token // 'while'
	Condition Expression
	Body      *BlockStatement
}

func (s *WhileStmt) statementNode()       {}
func (s *WhileStmt) TokenLiteral() string { return s.Token.Literal }
func (s *WhileStmt) Line() int            { return s.Token.Line }
func (s *WhileStmt) String() string {
	return "while (" + s.Condition.String() + ") " + s.Body.String()
}

type ReturnStmt struct {
	Token token.Token // 'return'
	Value Expression  // nil if bare return
}

func (s *ReturnStmt) statementNode()       {}
func (s *ReturnStmt) TokenLiteral() string { return s.Token.Literal }
func (s *ReturnStmt) Line() int            { return s.Token.Line }
func (s *ReturnStmt) String() string {
	if s.Value == nil {
		return "return;"
	}
	return "return " + s.Value.String() + ";"
}

type BreakStmt struct{ Token token.Token }

func (s *BreakStmt) statementNode()       {}
func (s *BreakStmt) TokenLiteral() string { return s.Token.Literal }
func (s *BreakStmt) Line() int            { return s.Token.Line }
func (s *BreakStmt) String() string       { return "break;" }

type ContinueStmt struct{ Token token.Token }

func (s *ContinueStmt) statementNode()       {}
func (s *ContinueStmt) TokenLiteral() string { return s.Token.Literal }
func (s *ContinueStmt) Line() int            { return s.Token.Line }
func (s *ContinueStmt) String() string       { return "continue;" }

type TryStmt struct {
	Token        token.Token // 'try'
	Block        *BlockStatement
	CatchVar     string // "" if no catch clause
	CatchBlock   *BlockStatement
	FinallyBlock *BlockStatement // nil if no finally clause
}

func (s *TryStmt) statementNode()       {}
func (s *TryStmt) TokenLiteral() string { return s.Token.Literal }
func (s *TryStmt) Line() int            { return s.Token.Line }
func (s *TryStmt) String() string {
	out := "try " + s.Block.String()
	if s.CatchBlock != nil {
		out += " catch (" + s.CatchVar + ") " + s.CatchBlock.String()
	}
	if s.FinallyBlock != nil {
		out += " finally " + s.FinallyBlock.String()
	}
	return out
}

type ThrowStmt struct {
	Token token.Token // 'throw'
	Value Expression
}

func (s *ThrowStmt) statementNode()       {}
func (s *ThrowStmt) TokenLiteral() string { return s.Token.Literal }
func (s *ThrowStmt) Line() int            { return s.Token.Line }
func (s *ThrowStmt) String() string       { return "throw " + s.Value.String() + ";" }

type ImportStmt struct {
	Token token.Token // 'import'
	Path  string
}

func (s *ImportStmt) statementNode()       {}
func (s *ImportStmt) TokenLiteral() string { return s.Token.Literal }
func (s *ImportStmt) Line() int            { return s.Token.Line }
func (s *ImportStmt) String() string       { return "import \"" + s.Path + "\";" }

// ExportStmt wraps a declaration (var/fn/class) marked for re-export. The
// core compiles the wrapped declaration normally; export tracking is a
// driver-level concern outside this chunk.
type ExportStmt struct {
	Token token.Token // 'export'
	Decl  Statement
}

func (s *ExportStmt) statementNode()       {}
func (s *ExportStmt) TokenLiteral() string { return s.Token.Literal }
func (s *ExportStmt) Line() int            { return s.Token.Line }
func (s *ExportStmt) String() string       { return "export " + s.Decl.String() }

// ---- expressions ----

type NumberLiteral struct {
	Token token.Token
	Value float64
}

func (e *NumberLiteral) expressionNode()      {}
func (e *NumberLiteral) TokenLiteral() string { return e.Token.Literal }
func (e *NumberLiteral) Line() int            { return e.Token.Line }
func (e *NumberLiteral) String() string       { return e.Token.Literal }

type StringLiteral struct {
	Token token.Token
	Value string
}

func (e *StringLiteral) expressionNode()      {}
func (e *StringLiteral) TokenLiteral() string { return e.Token.Literal }
func (e *StringLiteral) Line() int            { return e.Token.Line }
func (e *StringLiteral) String() string       { return "\"" + e.Value + "\"" }

type BoolLiteral struct {
	Token token.Token
	Value bool
}

func (e *BoolLiteral) expressionNode()      {}
func (e *BoolLiteral) TokenLiteral() string { return e.Token.Literal }
func (e *BoolLiteral) Line() int            { return e.Token.Line }
func (e *BoolLiteral) String() string       { return e.Token.Literal }

type NilLiteral struct{ Token token.Token }

func (e *NilLiteral) expressionNode()      {}
func (e *NilLiteral) TokenLiteral() string { return e.Token.Literal }
func (e *NilLiteral) Line() int            { return e.Token.Line }
func (e *NilLiteral) String() string       { return "nil" }

type Identifier struct {
	Token token.Token
	Name  string
}

func (e *Identifier) expressionNode()      {}
func (e *Identifier) TokenLiteral() string { return e.Token.Literal }
func (e *Identifier) Line() int            { return e.Token.Line }
func (e *Identifier) String() string       { return e.Name }

type AssignExpr struct {
	Token token.Token // '='
	Name  string
	Value Expression
}

func (e *AssignExpr) expressionNode()      {}
func (e *AssignExpr) TokenLiteral() string { return e.Token.Literal }
func (e *AssignExpr) Line() int            { return e.Token.Line }
func (e *AssignExpr) String() string       { return e.Name + " = " + e.Value.String() }

type GroupingExpr struct {
	Token token.Token // '('
	Inner Expression
}

func (e *GroupingExpr) expressionNode()      {}
func (e *GroupingExpr) TokenLiteral() string { return e.Token.Literal }
func (e *GroupingExpr) Line() int            { return e.Token.Line }
func (e *GroupingExpr) String() string       { return "(" + e.Inner.String() + ")" }

type BinaryExpr struct {
	Token    token.Token // operator token
	Left     Expression
	Operator string
	Right    Expression
}

func (e *BinaryExpr) expressionNode()      {}
func (e *BinaryExpr) TokenLiteral() string { return e.Token.Literal }
func (e *BinaryExpr) Line() int            { return e.Token.Line }
func (e *BinaryExpr) String() string {
	return "(" + e.Left.String() + " " + e.Operator + " " + e.Right.String() + ")"
}

type UnaryExpr struct {
	Token    token.Token // operator token
	Operator string
	Right    Expression
}

func (e *UnaryExpr) expressionNode()      {}
func (e *UnaryExpr) TokenLiteral() string { return e.Token.Literal }
func (e *UnaryExpr) Line() int            { return e.Token.Line }
func (e *UnaryExpr) String() string       { return "(" + e.Operator + e.Right.String() + ")" }

type CallExpr struct {
	Token     token.Token // '('
	Callee    Expression
	Arguments []Expression
}

func (e *CallExpr) expressionNode()      {}
func (e *CallExpr) TokenLiteral() string { return e.Token.Literal }
func (e *CallExpr) Line() int            { return e.Token.Line }
func (e *CallExpr) String() string {
	args := make([]string, len(e.Arguments))
	for i, a := range e.Arguments {
		args[i] = a.String()
	}
	return e.Callee.String() + "(" + strings.Join(args, ", ") + ")"
}

type IndexExpr struct {
	Token token.Token // '['
	Left  Expression
	Index Expression
}

func (e *IndexExpr) expressionNode()      {}
func (e *IndexExpr) TokenLiteral() string { return e.Token.Literal }
func (e *IndexExpr) Line() int            { return e.Token.Line }
func (e *IndexExpr) String() string       { return e.Left.String() + "[" + e.Index.String() + "]" }

type IndexAssignExpr struct {
	Token token.Token // '['
	Left  Expression
	Index Expression
	Value Expression
}

func (e *IndexAssignExpr) expressionNode()      {}
func (e *IndexAssignExpr) TokenLiteral() string { return e.Token.Literal }
func (e *IndexAssignExpr) Line() int            { return e.Token.Line }
func (e *IndexAssignExpr) String() string {
	return e.Left.String() + "[" + e.Index.String() + "] = " + e.Value.String()
}

type PropertyExpr struct {
	Token  token.Token // '.'
	Object Expression
	Name   string
}

func (e *PropertyExpr) expressionNode()      {}
func (e *PropertyExpr) TokenLiteral() string { return e.Token.Literal }
func (e *PropertyExpr) Line() int            { return e.Token.Line }
func (e *PropertyExpr) String() string       { return e.Object.String() + "." + e.Name }

type PropertyAssignExpr struct {
	Token  token.Token // '.'
	Object Expression
	Name   string
	Value  Expression
}

func (e *PropertyAssignExpr) expressionNode()      {}
func (e *PropertyAssignExpr) TokenLiteral() string { return e.Token.Literal }
func (e *PropertyAssignExpr) Line() int            { return e.Token.Line }
func (e *PropertyAssignExpr) String() string {
	return e.Object.String() + "." + e.Name + " = " + e.Value.String()
}

type ThisExpr struct{ Token token.Token }

func (e *ThisExpr) expressionNode()      {}
func (e *ThisExpr) TokenLiteral() string { return e.Token.Literal }
func (e *ThisExpr) Line() int            { return e.Token.Line }
func (e *ThisExpr) String() string       { return "this" }

type SuperExpr struct {
	Token  token.Token // 'super'
	Method string
}

func (e *SuperExpr) expressionNode()      {}
func (e *SuperExpr) TokenLiteral() string { return e.Token.Literal }
func (e *SuperExpr) Line() int            { return e.Token.Line }
func (e *SuperExpr) String() string       { return "super." + e.Method }

type ArrayLiteral struct {
	Token    token.Token // '['
	Elements []Expression
}

func (e *ArrayLiteral) expressionNode()      {}
func (e *ArrayLiteral) TokenLiteral() string { return e.Token.Literal }
func (e *ArrayLiteral) Line() int            { return e.Token.Line }
func (e *ArrayLiteral) String() string {
	elems := make([]string, len(e.Elements))
	for i, el := range e.Elements {
		elems[i] = el.String()
	}
	return "[" + strings.Join(elems, ", ") + "]"
}

type MapLiteral struct {
	Token  token.Token // '{'
	Keys   []Expression
	Values []Expression
}

func (e *MapLiteral) expressionNode()      {}
func (e *MapLiteral) TokenLiteral() string { return e.Token.Literal }
func (e *MapLiteral) Line() int            { return e.Token.Line }
func (e *MapLiteral) String() string {
	pairs := make([]string, len(e.Keys))
	for i, k := range e.Keys {
		pairs[i] = k.String() + ": " + e.Values[i].String()
	}
	return "{" + strings.Join(pairs, ", ") + "}"
}

// MatchExpr is parsed but always rejected by the compiler: match expressions
// are not supported by this core.
type MatchExpr struct {
	Token   token.Token // 'match'
	Subject Expression
}

func (e *MatchExpr) expressionNode()      {}
func (e *MatchExpr) TokenLiteral() string { return e.Token.Literal }
func (e *MatchExpr) Line() int            { return e.Token.Line }
func (e *MatchExpr) String() string       { return "match (" + e.Subject.String() + ") { ... }" }

// FunctionExpr is parsed but always rejected by the compiler: function
// expressions are not supported by this core, only function declarations.
type FunctionExpr struct {
	Token  token.Token // 'fn'
	Params []string
	Body   *BlockStatement
}

func (e *FunctionExpr) expressionNode()      {}
func (e *FunctionExpr) TokenLiteral() string { return e.Token.Literal }
func (e *FunctionExpr) Line() int            { return e.Token.Line }
func (e *FunctionExpr) String() string {
	return "fn(" + strings.Join(e.Params, ", ") + ") " + e.Body.String()
}
