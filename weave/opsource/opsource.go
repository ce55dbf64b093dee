/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package opsource captures the source of the functions behind ops, redacts
// sensitive string literals from it, and derives the version digest that
// identifies the op.
package opsource

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"reflect"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/wandb/weave-sub009/weave/serialize"
)

// Redacted replaces sensitive string literals in captured source.
const Redacted = "REDACTED"

// Source describes the code behind an op.
type Source struct {
	// Name is the fully qualified runtime name of the function.
	Name string `json:"name"`
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
	// Code is the redacted source text, empty when it could not be read.
	Code string `json:"code,omitempty"`
	// Digest identifies this version of the op.
	Digest string `json:"digest"`
}

// Capture locates fn's source and redacts literals bound to names for which
// sensitive returns true. When the source cannot be found, the returned
// Source still carries the name and a digest of it along with the error.
func Capture(fn any, sensitive func(string) bool) (Source, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return Source{}, fmt.Errorf("capturing source: %T is not a function", fn)
	}
	rf := runtime.FuncForPC(v.Pointer())
	if rf == nil {
		return Source{}, errors.New("capturing source: function has no runtime info")
	}
	file, line := rf.FileLine(rf.Entry())
	src := Source{Name: rf.Name(), File: file, Line: line}

	code, err := extract(file, line, sensitive)
	if err != nil {
		src.Digest = Digest(src.Name)
		return src, err
	}
	src.Code = code
	src.Digest = Digest(code)
	return src, nil
}

// Digest returns the version digest for a piece of source.
func Digest(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func extract(file string, line int, sensitive func(string) bool) (string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", file, err)
	}
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, file, data, parser.ParseComments)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", file, err)
	}

	var best ast.Node
	ast.Inspect(f, func(n ast.Node) bool {
		switch n.(type) {
		case *ast.FuncDecl, *ast.FuncLit:
		default:
			return true
		}
		start, end := fset.Position(n.Pos()).Line, fset.Position(n.End()).Line
		if start <= line && line <= end {
			// Prefer the innermost function containing the entry line.
			if best == nil || n.Pos() >= best.Pos() {
				best = n
			}
		}
		return true
	})
	if best == nil {
		return "", fmt.Errorf("no function at %s:%d", file, line)
	}

	tf := fset.File(best.Pos())
	start, end := tf.Offset(best.Pos()), tf.Offset(best.End())
	if fd, ok := best.(*ast.FuncDecl); ok && fd.Doc != nil {
		start = tf.Offset(fd.Doc.Pos())
	}
	return string(redact(tf, data, start, end, best, sensitive)), nil
}

// RedactFile returns src with every string literal bound to a sensitive name
// replaced by "REDACTED".
func RedactFile(filename string, src []byte, sensitive func(string) bool) ([]byte, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}
	return redact(fset.File(f.Pos()), src, 0, len(src), f, sensitive), nil
}

type span struct{ start, end int }

func redact(tf *token.File, data []byte, start, end int, root ast.Node, sensitive func(string) bool) []byte {
	if sensitive == nil {
		return slices.Clone(data[start:end])
	}
	var spans []span
	mark := func(name string, value ast.Expr) {
		lit, ok := value.(*ast.BasicLit)
		if !ok || lit.Kind != token.STRING || !IsSensitiveName(name, sensitive) {
			return
		}
		spans = append(spans, span{tf.Offset(lit.Pos()), tf.Offset(lit.End())})
	}

	ast.Inspect(root, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.AssignStmt:
			if len(n.Lhs) == len(n.Rhs) {
				for i, lhs := range n.Lhs {
					mark(exprName(lhs), n.Rhs[i])
				}
			}
		case *ast.ValueSpec:
			if len(n.Names) == len(n.Values) {
				for i, name := range n.Names {
					mark(name.Name, n.Values[i])
				}
			}
		case *ast.KeyValueExpr:
			key := exprName(n.Key)
			if lit, ok := n.Key.(*ast.BasicLit); ok && lit.Kind == token.STRING {
				key, _ = strconv.Unquote(lit.Value)
			}
			mark(key, n.Value)
		}
		return true
	})

	slices.SortFunc(spans, func(a, b span) int { return a.start - b.start })
	var sb strings.Builder
	cur := start
	for _, s := range spans {
		if s.start < cur || s.end > end {
			continue
		}
		sb.Write(data[cur:s.start])
		sb.WriteString(strconv.Quote(Redacted))
		cur = s.end
	}
	sb.Write(data[cur:end])
	return []byte(sb.String())
}

func exprName(e ast.Expr) string {
	switch e := e.(type) {
	case *ast.Ident:
		return e.Name
	case *ast.SelectorExpr:
		return e.Sel.Name
	default:
		return ""
	}
}

// IsSensitiveName checks name and its snake_case form against sensitive, so
// apiKey and APIKey both match a rule for api_key.
func IsSensitiveName(name string, sensitive func(string) bool) bool {
	if name == "" {
		return false
	}
	return sensitive(name) || sensitive(serialize.SnakeCase(name))
}
