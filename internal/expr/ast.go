package expr

// Expr is a node of a compiled expression.
type Expr interface{ exprNode() }

type (
	NumberLit struct{ Value any } // int64 or float64
	StringLit struct{ Value string }
	BoolLit   struct{ Value bool }
	NullLit   struct{}

	// Ident is resolved at evaluation time: local, context name, helper,
	// module, then field of the current entity.
	Ident struct{ Name string }

	// FieldRef is an explicit {Field} or {A->B} reference.
	FieldRef struct{ Path string }

	Template struct{ Parts []Expr }
	ArrayLit struct{ Elems []Expr }

	Unary struct {
		Op string
		X  Expr
	}
	Binary struct {
		Op   string
		L, R Expr
	}
	Cond struct{ Test, Then, Else Expr }

	Member struct {
		X        Expr
		Name     string
		Optional bool
	}
	Index struct{ X, Index Expr }
	Call  struct {
		Fn   Expr
		Args []Expr
	}
	Arrow struct {
		Params []string
		Body   Expr
	}
)

func (NumberLit) exprNode() {}
func (StringLit) exprNode() {}
func (BoolLit) exprNode()   {}
func (NullLit) exprNode()   {}
func (Ident) exprNode()     {}
func (FieldRef) exprNode()  {}
func (Template) exprNode()  {}
func (ArrayLit) exprNode()  {}
func (Unary) exprNode()     {}
func (Binary) exprNode()    {}
func (Cond) exprNode()      {}
func (Member) exprNode()    {}
func (Index) exprNode()     {}
func (Call) exprNode()      {}
func (Arrow) exprNode()     {}

// Stmt is one statement of a script body.
type Stmt interface{ stmtNode() }

type (
	LetStmt struct {
		Name  string
		Value Expr
	}
	ReturnStmt struct{ Value Expr }
	ExprStmt   struct{ X Expr }
)

func (LetStmt) stmtNode()    {}
func (ReturnStmt) stmtNode() {}
func (ExprStmt) stmtNode()   {}
