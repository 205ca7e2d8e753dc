package core

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuery_SimpleFilter(t *testing.T) {
	query := `company CONTAINS "acme"`
	expected := &SubstringFilter{field: "company", substr: "acme"}

	filter, err := ParseQuery(query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(filter, expected) {
		t.Errorf("expected %v, got %v", expected, filter)
	}
}

func TestParseQuery_AndExpression(t *testing.T) {
	query := `company CONTAINS "acme" AND risk_class = "Harmful"`
	expected := &AndFilter{
		filters: []Filter{
			&SubstringFilter{field: "company", substr: "acme"},
			&StringEqFilter{field: "risk_class", value: "Harmful"},
		},
	}

	filter, err := ParseQuery(query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(filter, expected) {
		t.Errorf("expected %v, got %v", expected, filter)
	}
}

func TestParseQuery_OrExpression(t *testing.T) {
	query := `company = "acme" OR company = "globex"`
	expected := &OrFilter{
		filters: []Filter{
			&StringEqFilter{field: "company", value: "acme"},
			&StringEqFilter{field: "company", value: "globex"},
		},
	}

	filter, err := ParseQuery(query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(filter, expected) {
		t.Errorf("expected %v, got %v", expected, filter)
	}
}

func TestParseQuery_NotExpression(t *testing.T) {
	query := `NOT risk_class = "Harmful"`
	expected := &NotFilter{
		filter: &StringEqFilter{field: "risk_class", value: "Harmful"},
	}

	filter, err := ParseQuery(query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(filter, expected) {
		t.Errorf("expected %v, got %v", expected, filter)
	}
}

func TestParseQuery_ComplexExpression(t *testing.T) {
	query := `company CONTAINS "acme" AND (risk_class = "Harmful" OR NOT total_comments > 40)`
	expected := &AndFilter{
		filters: []Filter{
			&SubstringFilter{field: "company", substr: "acme"},
			&OrFilter{
				filters: []Filter{
					&StringEqFilter{field: "risk_class", value: "Harmful"},
					&NotFilter{
						filter: &NumberGtFilter{field: "total_comments", value: 40},
					},
				},
			},
		},
	}

	filter, err := ParseQuery(query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assert.Equal(t, expected, filter)
}

func TestParseQuery_FloatValue(t *testing.T) {
	query := `pct_toxic_burnout > 0.25`
	expected := &NumberGtFilter{field: "pct_toxic_burnout", value: 0.25}

	filter, err := ParseQuery(query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(filter, expected) {
		t.Errorf("expected %v, got %v", expected, filter)
	}
}

func TestParseQuery_InvalidQuery(t *testing.T) {
	query := `company CONTAINS`
	_, err := ParseQuery(query)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestParseQuery_UnknownField(t *testing.T) {
	_, err := ParseQuery(`sentiment = "positive"`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown filter field")
}

func TestParseQuery_TypeMismatch(t *testing.T) {
	_, err := ParseQuery(`total_comments = "ten"`)
	require.Error(t, err)

	_, err = ParseQuery(`company CONTAINS 5`)
	require.Error(t, err)
}

func TestFilterMatches(t *testing.T) {
	row := &IndexRow{
		PostURL:       "https://x.com/posts/abc",
		Company:       "acme",
		PostedAt:      "2024-05-01",
		RiskClass:     "Harmful",
		TotalComments: 32,
		Pct:           map[string]float64{"pct_toxic_burnout": 0.4},
	}

	tests := []struct {
		query   string
		matches bool
	}{
		{`company = "acme"`, true},
		{`company = "globex"`, false},
		{`post_url CONTAINS "posts/abc"`, true},
		{`total_comments > 30`, true},
		{`total_comments < 30`, false},
		{`pct_toxic_burnout > 0.25`, true},
		{`pct_supportive > 0.25`, false},
		{`posted_at > "2024-01-01" AND posted_at < "2024-06-01"`, true},
		{`NOT risk_class = "Harmful"`, false},
		{`risk_class = "Helpful" OR pct_toxic_burnout > 0.1`, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			filter, err := ParseQuery(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.matches, filter.Matches(row))
		})
	}
}
