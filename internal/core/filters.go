package core

import (
	"strings"

	"orgrisk-backend/internal/dataset"
)

// Filter restricts which retriever index rows are candidates for ranking.
type Filter interface {
	Matches(row *IndexRow) bool
}

type AndFilter struct {
	filters []Filter
}

func (f *AndFilter) Matches(row *IndexRow) bool {
	for _, filter := range f.filters {
		if !filter.Matches(row) {
			return false
		}
	}
	return true
}

type OrFilter struct {
	filters []Filter
}

func (f *OrFilter) Matches(row *IndexRow) bool {
	for _, filter := range f.filters {
		if filter.Matches(row) {
			return true
		}
	}
	return false
}

type NotFilter struct {
	filter Filter
}

func (f *NotFilter) Matches(row *IndexRow) bool {
	return !f.filter.Matches(row)
}

type SubstringFilter struct {
	field  string
	substr string
}

func (f *SubstringFilter) Matches(row *IndexRow) bool {
	v, ok := stringField(row, f.field)
	return ok && strings.Contains(v, f.substr)
}

type StringEqFilter struct {
	field string
	value string
}

func (f *StringEqFilter) Matches(row *IndexRow) bool {
	v, ok := stringField(row, f.field)
	return ok && v == f.value
}

type StringLtFilter struct {
	field string
	value string
}

func (f *StringLtFilter) Matches(row *IndexRow) bool {
	v, ok := stringField(row, f.field)
	return ok && v < f.value
}

type StringGtFilter struct {
	field string
	value string
}

func (f *StringGtFilter) Matches(row *IndexRow) bool {
	v, ok := stringField(row, f.field)
	return ok && v > f.value
}

type NumberLtFilter struct {
	field string
	value float64
}

func (f *NumberLtFilter) Matches(row *IndexRow) bool {
	v, ok := numberField(row, f.field)
	return ok && v < f.value
}

type NumberGtFilter struct {
	field string
	value float64
}

func (f *NumberGtFilter) Matches(row *IndexRow) bool {
	v, ok := numberField(row, f.field)
	return ok && v > f.value
}

type NumberEqFilter struct {
	field string
	value float64
}

func (f *NumberEqFilter) Matches(row *IndexRow) bool {
	v, ok := numberField(row, f.field)
	return ok && v == f.value
}

func stringField(row *IndexRow, name string) (string, bool) {
	switch name {
	case "post_url":
		return row.PostURL, true
	case "company":
		return row.Company, true
	case "posted_at":
		return row.PostedAt, true
	case "risk_class":
		return row.RiskClass, true
	}
	return "", false
}

// numberField resolves total_comments or any pct column. Rows missing a pct
// value read as 0, matching how the loader treats blanks.
func numberField(row *IndexRow, name string) (float64, bool) {
	if name == "total_comments" {
		return row.TotalComments, true
	}
	if v, ok := row.Pct[name]; ok {
		return v, true
	}
	for _, col := range dataset.PctColumns {
		if col == name {
			return 0, true
		}
	}
	return 0, false
}

// IsStringField reports whether name is a queryable string column of the
// index table.
func IsStringField(name string) bool {
	switch name {
	case "post_url", "company", "posted_at", "risk_class":
		return true
	}
	return false
}

// IsNumberField reports whether name is a queryable numeric column of the
// index table.
func IsNumberField(name string) bool {
	if name == "total_comments" {
		return true
	}
	for _, col := range dataset.PctColumns {
		if col == name {
			return true
		}
	}
	return false
}
