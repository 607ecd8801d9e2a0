package main

import (
	"testing"

	"github.com/docopt/docopt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cg-order-portal/internal/domain"
)

func testParser() *docopt.Parser {
	return &docopt.Parser{HelpHandler: docopt.NoHelpHandler}
}

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		want options
	}{
		{
			name: "Setup",
			argv: []string{"-c", "cg.yaml", "setup", "--general=general.yaml", "--customers=customers.yaml"},
			want: options{Config: "cg.yaml", Setup: true, General: "general.yaml", Customers: "customers.yaml"},
		},
		{
			name: "Submitted projects",
			argv: []string{"projects", "--submitted"},
			want: options{Projects: true, Submitted: true},
		},
		{
			name: "Import with name",
			argv: []string{"import", "order.xlsx", "--name=order-9"},
			want: options{Import: true, OrderForm: "order.xlsx", Name: "order-9"},
		},
		{
			name: "Process",
			argv: []string{"process", "12"},
			want: options{Process: true, ProjectID: "12"},
		},
		{
			name: "Migrate down",
			argv: []string{"migrate", "down"},
			want: options{Migrate: true, Down: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := parseOptions(testParser(), tt.argv)
			require.NoError(t, err)
			assert.Equal(t, tt.want, opts)
		})
	}
}

func TestParseOptionsRejectsIncompleteCommands(t *testing.T) {
	for _, argv := range [][]string{
		{},
		{"setup", "--general=general.yaml"},
		{"migrate"},
		{"lock"},
	} {
		_, err := parseOptions(testParser(), argv)
		assert.Error(t, err, "%v", argv)
	}
}

func TestProjectID(t *testing.T) {
	id, err := projectID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = projectID("forty-two")
	assert.Equal(t, domain.ErrSchema, domain.CodeOf(err))
}
