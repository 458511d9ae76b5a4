package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisorcrm/internal/core/apperror"
	"advisorcrm/internal/domain/crm"
	"advisorcrm/internal/metadata"
)

func init() {
	color.NoColor = true
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCommand()
	assert.Equal(t, "crmctl", cmd.Use)

	for _, name := range []string{"list", "show", "order", "check"} {
		sub, _, err := cmd.Find([]string{"schema", name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "table", format.DefValue)
}

func TestSchemaList(t *testing.T) {
	out, err := execute(t, "schema", "list")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[0], "CLASS"))
	assert.True(t, strings.HasPrefix(lines[2], "Contact"))
	assert.Contains(t, lines[2], "contacts")
}

func TestSchemaList_JSON(t *testing.T) {
	out, err := execute(t, "schema", "list", "--format", "json")
	require.NoError(t, err)

	var views []metadata.ClassView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 5)
	assert.Equal(t, crm.ClassHousehold, views[0].Name)
}

func TestSchemaShow(t *testing.T) {
	out, err := execute(t, "schema", "show", "Contact")
	require.NoError(t, err)

	assert.Contains(t, out, "Contact (contacts)")
	assert.Contains(t, out, "encrypted:unique")
	assert.Contains(t, out, "household -> Household (root, key householdId)")
	assert.Contains(t, out, "create.before: 2")
}

func TestSchemaShow_Errors(t *testing.T) {
	_, err := execute(t, "schema", "show", "Lead")
	assert.True(t, apperror.IsNotFound(err))

	_, err = execute(t, "schema", "show")
	assert.Error(t, err)

	_, err = execute(t, "schema", "show", "Contact", "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestSchemaOrder(t *testing.T) {
	out, err := execute(t, "schema", "order")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "1. Household\n"))

	out, err = execute(t, "schema", "order", "--format", "json")
	require.NoError(t, err)
	var order []string
	require.NoError(t, json.Unmarshal([]byte(out), &order))
	assert.Len(t, order, 5)
}

func TestSchemaCheck(t *testing.T) {
	out, err := execute(t, "schema", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "5 classes")
	assert.Contains(t, out, "2 encrypted fields")
	assert.Contains(t, out, "1 join tables")
}

func TestRunCheck_Failure(t *testing.T) {
	var out bytes.Buffer
	fault := apperror.NewProgramming("Contact.address depends on unknown property zip4")
	err := runCheck(&out, func(crm.Locator) (*metadata.Registry, error) { return nil, fault })

	assert.True(t, errors.Is(err, fault))
	assert.Contains(t, out.String(), "schema invalid")
}
