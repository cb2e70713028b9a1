package token

type TokenType string

const (
	ILLEGAL TokenType = "ILLEGAL"
	EOF     TokenType = "EOF"

	// Identifiers and literals
	IDENT   TokenType = "IDENT"
	INT     TokenType = "INT"
	FLOAT   TokenType = "FLOAT"
	STRING  TokenType = "STRING"
	FSTRING TokenType = "FSTRING" // f"..." with {name} segments

	// Operators
	ASSIGN          TokenType = "="
	PLUS_ASSIGN     TokenType = "+="
	ASTERISK_ASSIGN TokenType = "*="
	PLUS            TokenType = "+"
	MINUS           TokenType = "-"
	ASTERISK        TokenType = "*"
	SLASH           TokenType = "/"
	PERCENT         TokenType = "%"
	LT              TokenType = "<"
	EQ              TokenType = "=="

	// Delimiters
	SEMICOLON TokenType = ";"
	COMMA     TokenType = ","
	DOT       TokenType = "."
	LPAREN    TokenType = "("
	RPAREN    TokenType = ")"
	LBRACKET  TokenType = "["
	RBRACKET  TokenType = "]"
	LBRACE    TokenType = "{"
	RBRACE    TokenType = "}"
	COLON     TokenType = ":"
	ARROW     TokenType = "->"

	// Keywords
	PRINT    TokenType = "PRINT"
	FOR      TokenType = "FOR"
	WHILE    TokenType = "WHILE"
	IF       TokenType = "IF"
	ELSE     TokenType = "ELSE"
	DEF      TokenType = "DEF"
	RETURN   TokenType = "RETURN"
	BREAK    TokenType = "BREAK"
	NONLOCAL TokenType = "NONLOCAL"
	TRUE     TokenType = "TRUE"
	FALSE    TokenType = "FALSE"
	IN       TokenType = "IN"
	CLASS    TokenType = "CLASS"
)

// Token is a lexeme with its source span. Offset and End are byte offsets
// into the source; Line and Column are 1-based.
type Token struct {
	Type    TokenType
	Lexeme  string
	Literal interface{}
	Line    int
	Column  int
	Offset  int
	End     int
}

var keywords = map[string]TokenType{
	"print":    PRINT,
	"for":      FOR,
	"while":    WHILE,
	"if":       IF,
	"else":     ELSE,
	"def":      DEF,
	"return":   RETURN,
	"break":    BREAK,
	"nonlocal": NONLOCAL,
	"True":     TRUE,
	"False":    FALSE,
	"in":       IN,
	"class":    CLASS,
}

func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return IDENT
}

// IsKeyword reports whether ident is reserved.
func IsKeyword(ident string) bool {
	_, ok := keywords[ident]
	return ok
}
