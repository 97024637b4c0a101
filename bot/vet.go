package bot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yuin/gopher-lua/ast"
	"github.com/yuin/gopher-lua/parse"
)

// ViolationKind classifies a single security finding.
type ViolationKind string

const (
	ViolationSyntaxError        ViolationKind = "SYNTAX_ERROR"
	ViolationDangerousImport    ViolationKind = "DANGEROUS_IMPORT"
	ViolationDisallowedImport   ViolationKind = "DISALLOWED_IMPORT"
	ViolationDangerousFunction  ViolationKind = "DANGEROUS_FUNCTION"
	ViolationDangerousAttribute ViolationKind = "DANGEROUS_ATTRIBUTE"
)

// Violation is one security problem found in an uploaded bot source.
type Violation struct {
	Kind        ViolationKind `json:"type"`
	Description string        `json:"description"`
	Line        int           `json:"line_number,omitempty"`
	Snippet     string        `json:"code_snippet,omitempty"`
}

func (v Violation) String() string {
	if v.Line > 0 {
		return fmt.Sprintf("%s at line %d: %s", v.Kind, v.Line, v.Description)
	}
	return fmt.Sprintf("%s: %s", v.Kind, v.Description)
}

// Side-effect-free modules a bot may require.
var allowedModules = map[string]bool{
	"math":   true,
	"string": true,
	"table":  true,
}

// Modules that reach the host: process, files, loading machinery.
var dangerousModules = map[string]bool{
	"os":        true,
	"io":        true,
	"debug":     true,
	"package":   true,
	"coroutine": true,
	"channel":   true,
}

// Dynamic execution and reflective primitives.
var dangerousCalls = map[string]bool{
	"load":           true,
	"loadstring":     true,
	"loadfile":       true,
	"dofile":         true,
	"collectgarbage": true,
	"getfenv":        true,
	"setfenv":        true,
	"rawget":         true,
	"rawset":         true,
	"rawequal":       true,
	"rawlen":         true,
	"getmetatable":   true,
	"setmetatable":   true,
	"module":         true,
	"newproxy":       true,
}

// Vet statically checks bot source before it may ever be loaded. It returns
// nil when the source is acceptable, otherwise the complete list of
// violations found: a parse failure yields a single SYNTAX_ERROR, any other
// source yields every disallowed require, call and module access in source
// order. Acceptance proves only the absence of these constructs; the
// runtime deadline remains the second line of defense.
func Vet(source, filename string) []Violation {
	chunk, err := parse.Parse(strings.NewReader(source), filename)
	if err != nil {
		line := 0
		if perr, ok := err.(*parse.Error); ok {
			line = perr.Pos.Line
		}
		return []Violation{{
			Kind:        ViolationSyntaxError,
			Description: fmt.Sprintf("invalid Lua syntax: %v", err),
			Line:        line,
			Snippet:     sourceLine(source, line),
		}}
	}

	v := &vetter{source: source}
	v.walkStmts(chunk)

	out := append(append(v.imports, v.calls...), v.attrs...)
	if len(out) == 0 {
		return nil
	}
	return out
}

// vetter collects violations by category during one traversal, so the
// caller receives the full report rather than the first hit.
type vetter struct {
	source  string
	imports []Violation
	calls   []Violation
	attrs   []Violation
}

func (v *vetter) violation(bucket *[]Violation, kind ViolationKind, line int, format string, args ...any) {
	*bucket = append(*bucket, Violation{
		Kind:        kind,
		Description: fmt.Sprintf(format, args...),
		Line:        line,
		Snippet:     sourceLine(v.source, line),
	})
}

func (v *vetter) walkStmts(stmts []ast.Stmt) {
	for _, s := range stmts {
		v.walkStmt(s)
	}
}

func (v *vetter) walkStmt(s ast.Stmt) {
	switch st := s.(type) {
	case *ast.AssignStmt:
		v.walkExprs(st.Lhs)
		v.walkExprs(st.Rhs)
	case *ast.LocalAssignStmt:
		v.walkExprs(st.Exprs)
	case *ast.FuncCallStmt:
		v.walkExpr(st.Expr)
	case *ast.DoBlockStmt:
		v.walkStmts(st.Stmts)
	case *ast.WhileStmt:
		v.walkExpr(st.Condition)
		v.walkStmts(st.Stmts)
	case *ast.RepeatStmt:
		v.walkStmts(st.Stmts)
		v.walkExpr(st.Condition)
	case *ast.IfStmt:
		v.walkExpr(st.Condition)
		v.walkStmts(st.Then)
		v.walkStmts(st.Else)
	case *ast.NumberForStmt:
		v.walkExpr(st.Init)
		v.walkExpr(st.Limit)
		if st.Step != nil {
			v.walkExpr(st.Step)
		}
		v.walkStmts(st.Stmts)
	case *ast.GenericForStmt:
		v.walkExprs(st.Exprs)
		v.walkStmts(st.Stmts)
	case *ast.FuncDefStmt:
		v.walkExpr(st.Func)
	case *ast.ReturnStmt:
		v.walkExprs(st.Exprs)
	}
}

func (v *vetter) walkExprs(exprs []ast.Expr) {
	for _, e := range exprs {
		v.walkExpr(e)
	}
}

func (v *vetter) walkExpr(e ast.Expr) {
	switch ex := e.(type) {
	case *ast.IdentExpr:
		if ex.Value == "_G" {
			v.violation(&v.attrs, ViolationDangerousAttribute, ex.Line(),
				"access to the global environment '_G' is not allowed")
		}
	case *ast.AttrGetExpr:
		if obj, ok := ex.Object.(*ast.IdentExpr); ok && (dangerousModules[obj.Value] || obj.Value == "_G") {
			v.violation(&v.attrs, ViolationDangerousAttribute, ex.Line(),
				"access to dangerous module '%s' is not allowed", obj.Value)
		} else {
			v.walkExpr(ex.Object)
		}
		v.walkExpr(ex.Key)
	case *ast.FuncCallExpr:
		v.checkCall(ex)
		if ex.Func != nil {
			// The callee itself may be a flagged attribute access.
			if _, isIdent := ex.Func.(*ast.IdentExpr); !isIdent {
				v.walkExpr(ex.Func)
			}
		}
		if ex.Receiver != nil {
			v.walkExpr(ex.Receiver)
		}
		v.walkExprs(ex.Args)
	case *ast.TableExpr:
		for _, f := range ex.Fields {
			if f.Key != nil {
				v.walkExpr(f.Key)
			}
			v.walkExpr(f.Value)
		}
	case *ast.FunctionExpr:
		v.walkStmts(ex.Stmts)
	case *ast.LogicalOpExpr:
		v.walkExpr(ex.Lhs)
		v.walkExpr(ex.Rhs)
	case *ast.RelationalOpExpr:
		v.walkExpr(ex.Lhs)
		v.walkExpr(ex.Rhs)
	case *ast.ArithmeticOpExpr:
		v.walkExpr(ex.Lhs)
		v.walkExpr(ex.Rhs)
	case *ast.StringConcatOpExpr:
		v.walkExpr(ex.Lhs)
		v.walkExpr(ex.Rhs)
	case *ast.UnaryMinusOpExpr:
		v.walkExpr(ex.Expr)
	case *ast.UnaryNotOpExpr:
		v.walkExpr(ex.Expr)
	case *ast.UnaryLenOpExpr:
		v.walkExpr(ex.Expr)
	}
}

func (v *vetter) checkCall(call *ast.FuncCallExpr) {
	ident, ok := call.Func.(*ast.IdentExpr)
	if !ok {
		return
	}

	if ident.Value == "require" {
		v.checkRequire(call)
		return
	}
	if dangerousCalls[ident.Value] {
		v.violation(&v.calls, ViolationDangerousFunction, call.Line(),
			"call to dangerous function '%s' is not allowed", ident.Value)
	}
}

func (v *vetter) checkRequire(call *ast.FuncCallExpr) {
	if len(call.Args) == 0 {
		v.violation(&v.calls, ViolationDangerousFunction, call.Line(),
			"call to 'require' without a literal module name is not allowed")
		return
	}
	lit, ok := call.Args[0].(*ast.StringExpr)
	if !ok {
		v.violation(&v.calls, ViolationDangerousFunction, call.Line(),
			"call to 'require' with a non-literal module name is not allowed")
		return
	}

	root := lit.Value
	if i := strings.IndexByte(root, '.'); i >= 0 {
		root = root[:i]
	}
	switch {
	case dangerousModules[root]:
		v.violation(&v.imports, ViolationDangerousImport, call.Line(),
			"require of dangerous module '%s' is not allowed", lit.Value)
	case !allowedModules[root]:
		v.violation(&v.imports, ViolationDisallowedImport, call.Line(),
			"require of module '%s' is not in the allowed list. Allowed modules: %s",
			lit.Value, allowedList())
	}
}

func allowedList() string {
	names := make([]string, 0, len(allowedModules))
	for name := range allowedModules {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func sourceLine(source string, line int) string {
	if line <= 0 {
		return ""
	}
	lines := strings.Split(source, "\n")
	if line > len(lines) {
		return ""
	}
	return strings.TrimSpace(lines[line-1])
}
