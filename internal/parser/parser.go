// Package parser builds an ast.Program from a token stream using a
// recursive-descent/Pratt parser: statements by straight-line recursive
// descent, expressions by precedence climbing.
package parser

import (
	"fmt"
	"strconv"

	"izb/internal/ast"
	"izb/internal/lexer"
	"izb/internal/token"
)

type Parser struct {
	l *lexer.Lexer

	curToken  token.Token
	peekToken token.Token

	prefixParseFns map[token.TokenType]func() ast.Expression
	infixParseFns  map[token.TokenType]func(ast.Expression) ast.Expression

	errors []string
}

func New(l *lexer.Lexer) *Parser {
	p := &Parser{l: l, errors: []string{}}

	p.nextToken()
	p.nextToken()

	p.prefixParseFns = make(map[token.TokenType]func() ast.Expression)
	p.registerPrefix(token.IDENTIFIER, p.parseIdentifier)
	p.registerPrefix(token.NUMBER, p.parseNumberLiteral)
	p.registerPrefix(token.STRING, p.parseStringLiteral)
	p.registerPrefix(token.TRUE, p.parseBoolean)
	p.registerPrefix(token.FALSE, p.parseBoolean)
	p.registerPrefix(token.NIL, p.parseNil)
	p.registerPrefix(token.THIS, p.parseThis)
	p.registerPrefix(token.SUPER, p.parseSuper)
	p.registerPrefix(token.BANG, p.parsePrefixExpression)
	p.registerPrefix(token.MINUS, p.parsePrefixExpression)
	p.registerPrefix(token.LPAREN, p.parseGroupedExpression)
	p.registerPrefix(token.LBRACKET, p.parseArrayLiteral)
	p.registerPrefix(token.LBRACE, p.parseMapLiteral)
	p.registerPrefix(token.FN, p.parseFunctionExpression)
	p.registerPrefix(token.MATCH, p.parseMatchExpression)

	p.infixParseFns = make(map[token.TokenType]func(ast.Expression) ast.Expression)
	p.registerInfix(token.PLUS, p.parseInfixExpression)
	p.registerInfix(token.MINUS, p.parseInfixExpression)
	p.registerInfix(token.SLASH, p.parseInfixExpression)
	p.registerInfix(token.STAR, p.parseInfixExpression)
	p.registerInfix(token.PERCENT, p.parseInfixExpression)
	p.registerInfix(token.EQ, p.parseInfixExpression)
	p.registerInfix(token.NEQ, p.parseInfixExpression)
	p.registerInfix(token.LT, p.parseInfixExpression)
	p.registerInfix(token.GT, p.parseInfixExpression)
	p.registerInfix(token.LTE, p.parseInfixExpression)
	p.registerInfix(token.GTE, p.parseInfixExpression)
	p.registerInfix(token.AND_AND, p.parseInfixExpression)
	p.registerInfix(token.OR_OR, p.parseInfixExpression)
	p.registerInfix(token.LPAREN, p.parseCallExpression)
	p.registerInfix(token.LBRACKET, p.parseIndexExpression)
	p.registerInfix(token.DOT, p.parsePropertyExpression)

	return p
}

func (p *Parser) Errors() []string { return p.errors }

func (p *Parser) peekError(t token.TokenType) {
	p.errors = append(p.errors, fmt.Sprintf("line %d: expected %s, found %s",
		p.peekToken.Line, t.Display(), p.peekToken.Type.Display()))
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

func (p *Parser) ParseProgram() *ast.Program {
	program := &ast.Program{}
	for p.curToken.Type != token.EOF {
		stmt := p.parseStatement()
		if stmt != nil {
			program.Statements = append(program.Statements, stmt)
		}
		p.nextToken()
	}
	return program
}

// ---- statements ----

func (p *Parser) parseStatement() ast.Statement {
	switch p.curToken.Type {
	case token.VAR:
		return p.parseVarStatement()
	case token.FN:
		return p.parseFunctionStatement()
	case token.CLASS:
		return p.parseClassStatement()
	case token.IF:
		return p.parseIfStatement()
	case token.WHILE:
		return p.parseWhileStatement()
	case token.LBRACE:
		return p.parseBlockStatement()
	case token.RETURN:
		return p.parseReturnStatement()
	case token.BREAK:
		return p.parseBreakStatement()
	case token.CONTINUE:
		return p.parseContinueStatement()
	case token.TRY:
		return p.parseTryStatement()
	case token.THROW:
		return p.parseThrowStatement()
	case token.IMPORT:
		return p.parseImportStatement()
	case token.EXPORT:
		return p.parseExportStatement()
	default:
		return p.parseExpressionStatement()
	}
}

func (p *Parser) parseVarStatement() *ast.VarStmt {
	stmt := &ast.VarStmt{Token: p.curToken}

	if !p.expectPeek(token.IDENTIFIER) {
		return nil
	}
	stmt.Name = p.curToken.Literal

	if p.peekTokenIs(token.ASSIGN) {
		p.nextToken() // at '='
		p.nextToken() // start of value
		stmt.Value = p.parseAssignment()
	}

	if p.peekTokenIs(token.SEMI) {
		p.nextToken()
	}
	return stmt
}

func (p *Parser) parseFunctionStatement() *ast.FunctionStmt {
	stmt := &ast.FunctionStmt{Token: p.curToken}

	if !p.expectPeek(token.IDENTIFIER) {
		return nil
	}
	stmt.Name = p.curToken.Literal

	if !p.expectPeek(token.LPAREN) {
		return nil
	}
	stmt.Params = p.parseParameterList()

	if !p.expectPeek(token.LBRACE) {
		return nil
	}
	stmt.Body = p.parseBlockStatement()
	return stmt
}

func (p *Parser) parseParameterList() []string {
	var params []string

	if p.peekTokenIs(token.RPAREN) {
		p.nextToken()
		return params
	}

	p.nextToken()
	params = append(params, p.curToken.Literal)

	for p.peekTokenIs(token.COMMA) {
		p.nextToken()
		p.nextToken()
		params = append(params, p.curToken.Literal)
	}

	if !p.expectPeek(token.RPAREN) {
		return nil
	}
	return params
}

func (p *Parser) parseClassStatement() *ast.ClassStmt {
	stmt := &ast.ClassStmt{Token: p.curToken}

	if !p.expectPeek(token.IDENTIFIER) {
		return nil
	}
	stmt.Name = p.curToken.Literal

	if p.peekTokenIs(token.COLON) {
		p.nextToken() // at ':'
		if !p.expectPeek(token.IDENTIFIER) {
			return nil
		}
		stmt.Super = p.curToken.Literal
	}

	if !p.expectPeek(token.LBRACE) {
		return nil
	}
	p.nextToken() // enter class body

	for !p.curTokenIs(token.RBRACE) && !p.curTokenIs(token.EOF) {
		switch p.curToken.Type {
		case token.VAR:
			if !p.expectPeek(token.IDENTIFIER) {
				return nil
			}
			stmt.Fields = append(stmt.Fields, p.curToken.Literal)
			if p.peekTokenIs(token.SEMI) {
				p.nextToken()
			}
		case token.FN:
			method := p.parseFunctionStatement()
			if method == nil {
				return nil
			}
			stmt.Methods = append(stmt.Methods, method)
		default:
			p.errors = append(p.errors, fmt.Sprintf("line %d: unexpected %s in class body",
				p.curToken.Line, p.curToken.Type.Display()))
			return nil
		}
		p.nextToken()
	}

	if !p.curTokenIs(token.RBRACE) {
		p.errors = append(p.errors, fmt.Sprintf("line %d: unterminated class body", stmt.Token.Line))
		return nil
	}
	return stmt
}

func (p *Parser) parseIfStatement() *ast.IfStmt {
	stmt := &ast.IfStmt{Token: p.curToken}

	if !p.expectPeek(token.LPAREN) {
		return nil
	}
	p.nextToken()
	stmt.Condition = p.parseAssignment()

	if !p.expectPeek(token.RPAREN) {
		return nil
	}
	if !p.expectPeek(token.LBRACE) {
		return nil
	}
	stmt.Consequence = p.parseBlockStatement()

	if p.peekTokenIs(token.ELSE) {
		p.nextToken()
		if p.peekTokenIs(token.IF) {
			p.nextToken()
			nested := p.parseIfStatement()
			if nested == nil {
				return nil
			}
			stmt.Alternative = &ast.BlockStatement{Token: nested.Token, Statements: []ast.Statement{nested}}
		} else {
			if !p.expectPeek(token.LBRACE) {
				return nil
			}
			stmt.Alternative = p.parseBlockStatement()
		}
	}
	return stmt
}

func (p *Parser) parseWhileStatement() *ast.WhileStmt {
	stmt := &ast.WhileStmt{Token: p.curToken}

	if !p.expectPeek(token.LPAREN) {
		return nil
	}
	p.nextToken()
	stmt.Condition = p.parseAssignment()

	if !p.expectPeek(token.RPAREN) {
		return nil
	}
	if !p.expectPeek(token.LBRACE) {
		return nil
	}
	stmt.Body = p.parseBlockStatement()
	return stmt
}

func (p *Parser) parseBlockStatement() *ast.BlockStatement {
	block := &ast.BlockStatement{Token: p.curToken}
	p.nextToken() // eat '{'

	for !p.curTokenIs(token.RBRACE) && !p.curTokenIs(token.EOF) {
		stmt := p.parseStatement()
		if stmt != nil {
			block.Statements = append(block.Statements, stmt)
		}
		p.nextToken()
	}
	return block
}

func (p *Parser) parseReturnStatement() *ast.ReturnStmt {
	stmt := &ast.ReturnStmt{Token: p.curToken}

	if p.peekTokenIs(token.SEMI) {
		p.nextToken()
		return stmt
	}

	p.nextToken()
	stmt.Value = p.parseAssignment()

	if p.peekTokenIs(token.SEMI) {
		p.nextToken()
	}
	return stmt
}

func (p *Parser) parseBreakStatement() *ast.BreakStmt {
	stmt := &ast.BreakStmt{Token: p.curToken}
	if p.peekTokenIs(token.SEMI) {
		p.nextToken()
	}
	return stmt
}

func (p *Parser) parseContinueStatement() *ast.ContinueStmt {
	stmt := &ast.ContinueStmt{Token: p.curToken}
	if p.peekTokenIs(token.SEMI) {
		p.nextToken()
	}
	return stmt
}

func (p *Parser) parseTryStatement() *ast.TryStmt {
	stmt := &ast.TryStmt{Token: p.curToken}

	if !p.expectPeek(token.LBRACE) {
		return nil
	}
	stmt.Block = p.parseBlockStatement()

	if p.peekTokenIs(token.CATCH) {
		p.nextToken()
		if !p.expectPeek(token.LPAREN) {
			return nil
		}
		if !p.expectPeek(token.IDENTIFIER) {
			return nil
		}
		stmt.CatchVar = p.curToken.Literal
		if !p.expectPeek(token.RPAREN) {
			return nil
		}
		if !p.expectPeek(token.LBRACE) {
			return nil
		}
		stmt.CatchBlock = p.parseBlockStatement()
	}

	if p.peekTokenIs(token.FINALLY) {
		p.nextToken()
		if !p.expectPeek(token.LBRACE) {
			return nil
		}
		stmt.FinallyBlock = p.parseBlockStatement()
	}

	if stmt.CatchBlock == nil && stmt.FinallyBlock == nil {
		p.errors = append(p.errors, fmt.Sprintf("line %d: try requires a catch or finally clause", stmt.Token.Line))
		return nil
	}
	return stmt
}

func (p *Parser) parseThrowStatement() *ast.ThrowStmt {
	stmt := &ast.ThrowStmt{Token: p.curToken}
	p.nextToken()
	stmt.Value = p.parseAssignment()
	if p.peekTokenIs(token.SEMI) {
		p.nextToken()
	}
	return stmt
}

func (p *Parser) parseImportStatement() *ast.ImportStmt {
	stmt := &ast.ImportStmt{Token: p.curToken}
	if !p.expectPeek(token.STRING) {
		return nil
	}
	stmt.Path = p.curToken.Literal
	if p.peekTokenIs(token.SEMI) {
		p.nextToken()
	}
	return stmt
}

func (p *Parser) parseExportStatement() *ast.ExportStmt {
	stmt := &ast.ExportStmt{Token: p.curToken}
	p.nextToken()
	stmt.Decl = p.parseStatement()
	return stmt
}

func (p *Parser) parseExpressionStatement() *ast.ExpressionStmt {
	stmt := &ast.ExpressionStmt{Token: p.curToken}
	stmt.Expression = p.parseAssignment()
	if p.peekTokenIs(token.SEMI) {
		p.nextToken()
	}
	return stmt
}

// ---- expressions ----

// parseAssignment is the entry point for any expression context. It parses
// a full precedence-climbed expression and, if followed by '=', reinterprets
// the left side as an assignment target (right-associative).
func (p *Parser) parseAssignment() ast.Expression {
	left := p.parseExpression(LOWEST)

	if !p.peekTokenIs(token.ASSIGN) {
		return left
	}
	p.nextToken() // at '='
	eqTok := p.curToken
	p.nextToken() // start of value
	value := p.parseAssignment()

	switch target := left.(type) {
	case *ast.Identifier:
		return &ast.AssignExpr{Token: eqTok, Name: target.Name, Value: value}
	case *ast.IndexExpr:
		return &ast.IndexAssignExpr{Token: eqTok, Left: target.Left, Index: target.Index, Value: value}
	case *ast.PropertyExpr:
		return &ast.PropertyAssignExpr{Token: eqTok, Object: target.Object, Name: target.Name, Value: value}
	default:
		p.errors = append(p.errors, fmt.Sprintf("line %d: invalid assignment target", eqTok.Line))
		return left
	}
}

const (
	_ int = iota
	LOWEST
	OR
	AND
	EQUALS
	LESSGREATER
	SUM
	PRODUCT
	PREFIX
	CALL
	INDEX
)

var precedences = map[token.TokenType]int{
	token.OR_OR:   OR,
	token.AND_AND: AND,
	token.EQ:      EQUALS,
	token.NEQ:     EQUALS,
	token.LT:      LESSGREATER,
	token.GT:      LESSGREATER,
	token.LTE:     LESSGREATER,
	token.GTE:     LESSGREATER,
	token.PLUS:    SUM,
	token.MINUS:   SUM,
	token.SLASH:   PRODUCT,
	token.STAR:    PRODUCT,
	token.PERCENT: PRODUCT,
	token.LPAREN:  CALL,
	token.LBRACKET: INDEX,
	token.DOT:      INDEX,
}

func (p *Parser) peekPrecedence() int {
	if pr, ok := precedences[p.peekToken.Type]; ok {
		return pr
	}
	return LOWEST
}

func (p *Parser) curPrecedence() int {
	if pr, ok := precedences[p.curToken.Type]; ok {
		return pr
	}
	return LOWEST
}

func (p *Parser) parseExpression(precedence int) ast.Expression {
	prefix := p.prefixParseFns[p.curToken.Type]
	if prefix == nil {
		p.noPrefixParseFnError(p.curToken.Type)
		return nil
	}
	leftExp := prefix()

	for !p.peekTokenIs(token.SEMI) && precedence < p.peekPrecedence() {
		infix := p.infixParseFns[p.peekToken.Type]
		if infix == nil {
			return leftExp
		}
		p.nextToken()
		leftExp = infix(leftExp)
	}
	return leftExp
}

func (p *Parser) noPrefixParseFnError(t token.TokenType) {
	p.errors = append(p.errors, fmt.Sprintf("line %d: unexpected %s", p.curToken.Line, t.Display()))
}

func (p *Parser) curTokenIs(t token.TokenType) bool  { return p.curToken.Type == t }
func (p *Parser) peekTokenIs(t token.TokenType) bool { return p.peekToken.Type == t }

func (p *Parser) expectPeek(t token.TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.peekError(t)
	return false
}

func (p *Parser) registerPrefix(t token.TokenType, fn func() ast.Expression) {
	p.prefixParseFns[t] = fn
}

func (p *Parser) registerInfix(t token.TokenType, fn func(ast.Expression) ast.Expression) {
	p.infixParseFns[t] = fn
}

func (p *Parser) parseIdentifier() ast.Expression {
	return &ast.Identifier{Token: p.curToken, Name: p.curToken.Literal}
}

func (p *Parser) parseNumberLiteral() ast.Expression {
	lit := &ast.NumberLiteral{Token: p.curToken}
	value, err := strconv.ParseFloat(p.curToken.Literal, 64)
	if err != nil {
		p.errors = append(p.errors, fmt.Sprintf("line %d: invalid number %q", p.curToken.Line, p.curToken.Literal))
		return nil
	}
	lit.Value = value
	return lit
}

func (p *Parser) parseStringLiteral() ast.Expression {
	return &ast.StringLiteral{Token: p.curToken, Value: p.curToken.Literal}
}

func (p *Parser) parseBoolean() ast.Expression {
	return &ast.BoolLiteral{Token: p.curToken, Value: p.curTokenIs(token.TRUE)}
}

func (p *Parser) parseNil() ast.Expression {
	return &ast.NilLiteral{Token: p.curToken}
}

func (p *Parser) parseThis() ast.Expression {
	return &ast.ThisExpr{Token: p.curToken}
}

func (p *Parser) parseSuper() ast.Expression {
	tok := p.curToken
	if !p.expectPeek(token.DOT) {
		return nil
	}
	if !p.expectPeek(token.IDENTIFIER) {
		return nil
	}
	return &ast.SuperExpr{Token: tok, Method: p.curToken.Literal}
}

func (p *Parser) parsePrefixExpression() ast.Expression {
	expr := &ast.UnaryExpr{Token: p.curToken, Operator: p.curToken.Literal}
	p.nextToken()
	expr.Right = p.parseExpression(PREFIX)
	return expr
}

func (p *Parser) parseInfixExpression(left ast.Expression) ast.Expression {
	expr := &ast.BinaryExpr{Token: p.curToken, Operator: p.curToken.Literal, Left: left}
	precedence := p.curPrecedence()
	p.nextToken()
	expr.Right = p.parseExpression(precedence)
	return expr
}

func (p *Parser) parseGroupedExpression() ast.Expression {
	tok := p.curToken
	p.nextToken()
	inner := p.parseAssignment()
	if !p.expectPeek(token.RPAREN) {
		return nil
	}
	return &ast.GroupingExpr{Token: tok, Inner: inner}
}

func (p *Parser) parseCallExpression(callee ast.Expression) ast.Expression {
	exp := &ast.CallExpr{Token: p.curToken, Callee: callee}
	exp.Arguments = p.parseExpressionList(token.RPAREN)
	return exp
}

func (p *Parser) parseIndexExpression(left ast.Expression) ast.Expression {
	exp := &ast.IndexExpr{Token: p.curToken, Left: left}
	p.nextToken()
	exp.Index = p.parseAssignment()
	if !p.expectPeek(token.RBRACKET) {
		return nil
	}
	return exp
}

func (p *Parser) parsePropertyExpression(left ast.Expression) ast.Expression {
	exp := &ast.PropertyExpr{Token: p.curToken, Object: left}
	if !p.expectPeek(token.IDENTIFIER) {
		return nil
	}
	exp.Name = p.curToken.Literal
	return exp
}

func (p *Parser) parseArrayLiteral() ast.Expression {
	arr := &ast.ArrayLiteral{Token: p.curToken}
	arr.Elements = p.parseExpressionList(token.RBRACKET)
	return arr
}

func (p *Parser) parseExpressionList(end token.TokenType) []ast.Expression {
	var list []ast.Expression

	if p.peekTokenIs(end) {
		p.nextToken()
		return list
	}

	p.nextToken()
	list = append(list, p.parseAssignment())

	for p.peekTokenIs(token.COMMA) {
		p.nextToken()
		p.nextToken()
		list = append(list, p.parseAssignment())
	}

	if !p.expectPeek(end) {
		return nil
	}
	return list
}

func (p *Parser) parseMapLiteral() ast.Expression {
	m := &ast.MapLiteral{Token: p.curToken}

	for !p.peekTokenIs(token.RBRACE) {
		p.nextToken()
		key := p.parseExpression(LOWEST)

		if !p.expectPeek(token.COLON) {
			return nil
		}
		p.nextToken()
		value := p.parseAssignment()

		m.Keys = append(m.Keys, key)
		m.Values = append(m.Values, value)

		if p.peekTokenIs(token.COMMA) {
			p.nextToken()
		} else {
			break
		}
	}

	if !p.expectPeek(token.RBRACE) {
		return nil
	}
	return m
}

// parseFunctionExpression and parseMatchExpression produce AST nodes the
// compiler always rejects; parsing them anyway lets the compiler report a
// precise "not supported by this core" diagnostic instead of a syntax error.
func (p *Parser) parseFunctionExpression() ast.Expression {
	tok := p.curToken
	if !p.expectPeek(token.LPAREN) {
		return nil
	}
	params := p.parseParameterList()
	if !p.expectPeek(token.LBRACE) {
		return nil
	}
	body := p.parseBlockStatement()
	return &ast.FunctionExpr{Token: tok, Params: params, Body: body}
}

func (p *Parser) parseMatchExpression() ast.Expression {
	tok := p.curToken
	if !p.expectPeek(token.LPAREN) {
		return nil
	}
	p.nextToken()
	subject := p.parseAssignment()
	if !p.expectPeek(token.RPAREN) {
		return nil
	}
	if !p.expectPeek(token.LBRACE) {
		return nil
	}
	depth := 1
	for depth > 0 && !p.curTokenIs(token.EOF) {
		p.nextToken()
		if p.curTokenIs(token.LBRACE) {
			depth++
		} else if p.curTokenIs(token.RBRACE) {
			depth--
		}
	}
	return &ast.MatchExpr{Token: tok, Subject: subject}
}
