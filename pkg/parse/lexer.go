package parse

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type tokenKind uint8

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenVariable
	tokenNumber
	tokenDirective // #name
	tokenTheory    // &name
	tokenNot
	tokenDot
	tokenDotDot
	tokenComma
	tokenSemicolon
	tokenColon
	tokenIf // ":-"
	tokenLParen
	tokenRParen
	tokenLBrace
	tokenRBrace
	tokenPlus
	tokenMinus
	tokenStar
	tokenPow // "**"
	tokenSlash
	tokenBackslash
	tokenLT
	tokenLE
	tokenGT
	tokenGE
	tokenEQ
	tokenNE
	tokenAssign // "=:"
)

type token struct {
	kind tokenKind
	text string
	num  int
	line int
	col  int
}

// String describes the token for error messages.
func (t token) String() string {
	switch t.kind {
	case tokenEOF:
		return "end of input"
	case tokenIdent:
		return strconv.Quote(t.text)
	case tokenVariable:
		return strconv.Quote(t.text)
	case tokenNumber:
		return strconv.Itoa(t.num)
	case tokenDirective:
		return "#" + t.text
	case tokenTheory:
		return "&" + t.text
	case tokenNot:
		return `"not"`
	case tokenDot:
		return `"."`
	case tokenDotDot:
		return `".."`
	case tokenComma:
		return `","`
	case tokenSemicolon:
		return `";"`
	case tokenColon:
		return `":"`
	case tokenIf:
		return `":-"`
	case tokenLParen:
		return `"("`
	case tokenRParen:
		return `")"`
	case tokenLBrace:
		return `"{"`
	case tokenRBrace:
		return `"}"`
	case tokenPlus:
		return `"+"`
	case tokenMinus:
		return `"-"`
	case tokenStar:
		return `"*"`
	case tokenPow:
		return `"**"`
	case tokenSlash:
		return `"/"`
	case tokenBackslash:
		return `"\"`
	case tokenLT:
		return `"<"`
	case tokenLE:
		return `"<="`
	case tokenGT:
		return `">"`
	case tokenGE:
		return `">="`
	case tokenEQ:
		return `"="`
	case tokenNE:
		return `"!="`
	case tokenAssign:
		return `"=:"`
	}
	return "?"
}

type lexer struct {
	src  string
	pos  int
	line int
	col  int
}

// lex tokenizes the source. The returned slice always ends with an EOF
// token carrying the final position.
func lex(src string) ([]token, error) {
	l := &lexer{src: src, line: 1, col: 1}
	var toks []token
	for {
		t, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, t)
		if t.kind == tokenEOF {
			return toks, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	line, col := l.line, l.col
	if l.pos >= len(l.src) {
		return token{kind: tokenEOF, line: line, col: col}, nil
	}
	c := l.src[l.pos]
	switch {
	case isDigit(c):
		start := l.pos
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.advance()
		}
		n, err := strconv.Atoi(l.src[start:l.pos])
		if err != nil {
			return token{}, errors.Wrapf(err, "invalid number at %d:%d", line, col)
		}
		return token{kind: tokenNumber, num: n, line: line, col: col}, nil
	case isAlpha(c) || c == '_':
		start := l.pos
		for l.pos < len(l.src) && isNameChar(l.src[l.pos]) {
			l.advance()
		}
		text := l.src[start:l.pos]
		return token{kind: classify(text), text: text, line: line, col: col}, nil
	}
	l.advance()
	switch c {
	case '.':
		if l.peek() == '.' {
			l.advance()
			return token{kind: tokenDotDot, line: line, col: col}, nil
		}
		return token{kind: tokenDot, line: line, col: col}, nil
	case ',':
		return token{kind: tokenComma, line: line, col: col}, nil
	case ';':
		return token{kind: tokenSemicolon, line: line, col: col}, nil
	case ':':
		if l.peek() == '-' {
			l.advance()
			return token{kind: tokenIf, line: line, col: col}, nil
		}
		return token{kind: tokenColon, line: line, col: col}, nil
	case '(':
		return token{kind: tokenLParen, line: line, col: col}, nil
	case ')':
		return token{kind: tokenRParen, line: line, col: col}, nil
	case '{':
		return token{kind: tokenLBrace, line: line, col: col}, nil
	case '}':
		return token{kind: tokenRBrace, line: line, col: col}, nil
	case '+':
		return token{kind: tokenPlus, line: line, col: col}, nil
	case '-':
		return token{kind: tokenMinus, line: line, col: col}, nil
	case '*':
		if l.peek() == '*' {
			l.advance()
			return token{kind: tokenPow, line: line, col: col}, nil
		}
		return token{kind: tokenStar, line: line, col: col}, nil
	case '/':
		return token{kind: tokenSlash, line: line, col: col}, nil
	case '\\':
		return token{kind: tokenBackslash, line: line, col: col}, nil
	case '<':
		if l.peek() == '=' {
			l.advance()
			return token{kind: tokenLE, line: line, col: col}, nil
		}
		return token{kind: tokenLT, line: line, col: col}, nil
	case '>':
		if l.peek() == '=' {
			l.advance()
			return token{kind: tokenGE, line: line, col: col}, nil
		}
		return token{kind: tokenGT, line: line, col: col}, nil
	case '=':
		if l.peek() == ':' {
			l.advance()
			return token{kind: tokenAssign, line: line, col: col}, nil
		}
		return token{kind: tokenEQ, line: line, col: col}, nil
	case '!':
		if l.peek() == '=' {
			l.advance()
			return token{kind: tokenNE, line: line, col: col}, nil
		}
		return token{}, errors.Errorf("unexpected character '!' at %d:%d", line, col)
	case '&':
		name, err := l.name("constraint atom")
		if err != nil {
			return token{}, err
		}
		return token{kind: tokenTheory, text: name, line: line, col: col}, nil
	case '#':
		name, err := l.name("directive")
		if err != nil {
			return token{}, err
		}
		return token{kind: tokenDirective, text: name, line: line, col: col}, nil
	}
	return token{}, errors.Errorf("unexpected character %q at %d:%d", c, line, col)
}

// name reads the identifier immediately following "&" or "#".
func (l *lexer) name(what string) (string, error) {
	start := l.pos
	for l.pos < len(l.src) && isNameChar(l.src[l.pos]) {
		l.advance()
	}
	if start == l.pos {
		return "", errors.Errorf("missing %s name at %d:%d", what, l.line, l.col)
	}
	return l.src[start:l.pos], nil
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case ' ', '\t', '\r', '\n':
			l.advance()
		case '%':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

func (l *lexer) advance() {
	if l.src[l.pos] == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	l.pos++
}

func (l *lexer) peek() byte {
	if l.pos < len(l.src) {
		return l.src[l.pos]
	}
	return 0
}

// classify sorts a name into keyword, variable or identifier. Leading
// underscores are skipped: names whose first letter is upper case are
// variables, the rest are constants. A bare "_" is the anonymous variable.
func classify(text string) tokenKind {
	if text == "not" {
		return tokenNot
	}
	rest := strings.TrimLeft(text, "_")
	if rest == "" {
		return tokenVariable
	}
	if rest[0] >= 'A' && rest[0] <= 'Z' {
		return tokenVariable
	}
	return tokenIdent
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isAlpha(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isNameChar(c byte) bool {
	return isAlpha(c) || isDigit(c) || c == '_' || c == '\''
}
