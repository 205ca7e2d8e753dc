package core

import (
	"fmt"

	"github.com/alecthomas/participle/v2"
)

/*
This is a parser for the similar-post filter language with the following grammar:

Query       := Expr
Expr        := OrExpr ( "OR" OrExpr )*
OrExpr      := AndExpr ( "AND" AndExpr )*
AndExpr     := Condition | "NOT" Condition
Condition   := Filter | "(" Expr ")"
Filter      := Field Op Value
Field       := <identifier>
Op          := "CONTAINS" | "<" | ">" | "="
Value       := <string> | <float> | <int>

Fields are the retriever index columns: post_url, company, posted_at and
risk_class compare against string values; total_comments and the pct_*
columns compare against numeric values.
*/

var (
	parser = participle.MustBuild[QueryExpr](
		participle.Unquote("String"),
		participle.Union[Value](StringValue{}, FloatValue{}, IntValue{}),
	)
)

func ParseQuery(query string) (Filter, error) {
	q, err := parser.ParseString("", query)
	if err != nil {
		return nil, fmt.Errorf("error parsing query '%s': %w", query, err)
	}

	filter, err := q.ToFilter()
	if err != nil {
		return nil, fmt.Errorf("error converting query '%s' to filter: %w", query, err)
	}

	return filter, nil
}

type QueryExpr struct {
	Expr *Expr `parser:"@@"`
}

func (q *QueryExpr) ToFilter() (Filter, error) {
	return q.Expr.ToFilter()
}

func (q *QueryExpr) String() string {
	return q.Expr.String()
}

type Expr struct {
	Ors []*OrExpr `parser:"@@ ( \"OR\" @@ )*"`
}

func (q *Expr) ToFilter() (Filter, error) {
	if len(q.Ors) == 0 {
		return nil, fmt.Errorf("empty OR expression")
	}

	if len(q.Ors) == 1 {
		return q.Ors[0].ToFilter()
	}

	var filters []Filter
	for _, cond := range q.Ors {
		f, err := cond.ToFilter()
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}

	return &OrFilter{filters: filters}, nil
}

func (e *Expr) String() string {
	if len(e.Ors) == 0 {
		return ""
	}

	if len(e.Ors) == 1 {
		return e.Ors[0].String()
	}

	out := fmt.Sprintf("(%s)", e.Ors[0].String())
	for _, cond := range e.Ors[1:] {
		out += fmt.Sprintf(" OR (%s)", cond.String())
	}

	return out
}

type OrExpr struct {
	Ands []*Condition `parser:"@@ ( \"AND\" @@ )*"`
}

func (o *OrExpr) ToFilter() (Filter, error) {
	if len(o.Ands) == 0 {
		return nil, fmt.Errorf("empty AND expression")
	}

	if len(o.Ands) == 1 {
		return o.Ands[0].ToFilter()
	}

	var filters []Filter
	for _, cond := range o.Ands {
		f, err := cond.ToFilter()
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}

	return &AndFilter{filters: filters}, nil
}

func (e *OrExpr) String() string {
	if len(e.Ands) == 0 {
		return ""
	}

	if len(e.Ands) == 1 {
		return e.Ands[0].String()
	}

	out := fmt.Sprintf("(%s)", e.Ands[0].String())
	for _, cond := range e.Ands[1:] {
		out += fmt.Sprintf(" AND (%s)", cond.String())
	}

	return out
}

type Condition struct {
	Not     bool        `parser:"@\"NOT\"?"`
	Filter  *FilterExpr `parser:" @@"`
	SubExpr *Expr       `parser:"| \"(\" @@ \")\" "`
}

func (c *Condition) ToFilter() (Filter, error) {
	var filter Filter = nil
	var err error
	if c.Filter != nil {
		filter, err = c.Filter.ToFilter()
	} else if c.SubExpr != nil {
		filter, err = c.SubExpr.ToFilter()
	}

	if err != nil {
		return nil, err
	}

	if c.Not {
		filter = &NotFilter{filter: filter}
	}

	return filter, nil
}

func (c *Condition) String() string {
	var out string
	if c.SubExpr != nil {
		out = c.SubExpr.String()
	} else {
		out = c.Filter.String()
	}
	if c.Not {
		return fmt.Sprintf("NOT (%s)", out)
	}
	return out
}

type FilterExpr struct {
	Field string `parser:"@Ident"`
	Op    string `parser:"@(\"CONTAINS\" | \"<\" | \">\" | \"=\" )"`
	Value Value  `parser:"@@"`
}

func (f *FilterExpr) ToFilter() (Filter, error) {
	switch {
	case IsStringField(f.Field):
		s, ok := f.Value.(StringValue)
		if !ok {
			return nil, fmt.Errorf("field %s compares against a quoted string value", f.Field)
		}
		switch f.Op {
		case "CONTAINS":
			return &SubstringFilter{field: f.Field, substr: s.Value}, nil
		case "<":
			return &StringLtFilter{field: f.Field, value: s.Value}, nil
		case ">":
			return &StringGtFilter{field: f.Field, value: s.Value}, nil
		case "=":
			return &StringEqFilter{field: f.Field, value: s.Value}, nil
		default:
			return nil, fmt.Errorf("invalid operator %s used with string field %s", f.Op, f.Field)
		}

	case IsNumberField(f.Field):
		var value float64
		switch v := f.Value.(type) {
		case IntValue:
			value = float64(v.Value)
		case FloatValue:
			value = v.Value
		default:
			return nil, fmt.Errorf("field %s compares against a numeric value", f.Field)
		}
		switch f.Op {
		case "<":
			return &NumberLtFilter{field: f.Field, value: value}, nil
		case ">":
			return &NumberGtFilter{field: f.Field, value: value}, nil
		case "=":
			return &NumberEqFilter{field: f.Field, value: value}, nil
		default:
			return nil, fmt.Errorf("invalid operator %s used with numeric field %s", f.Op, f.Field)
		}

	default:
		return nil, fmt.Errorf("unknown filter field %s; valid fields are post_url, company, posted_at, risk_class, total_comments and the pct_* columns", f.Field)
	}
}

func (f *FilterExpr) String() string {
	return fmt.Sprintf("%s %s %v", f.Field, f.Op, f.Value)
}

type Value interface{ value() }

type StringValue struct {
	Value string `parser:"@String"`
}

func (s StringValue) value() {}

type FloatValue struct {
	Value float64 `parser:"@Float"`
}

func (f FloatValue) value() {}

type IntValue struct {
	Value int `parser:"@Int"`
}

func (i IntValue) value() {}
