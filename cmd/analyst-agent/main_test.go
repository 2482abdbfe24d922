package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/analyst-agent/agent"
	"github.com/dshills/analyst-agent/agent/analyst"
)

func TestRootCmd_Commands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"analysts", "interview", "ask", "market", "research", "pipeline", "serve"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	for _, flag := range []string{"config", "env-file", "log-level"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestQuestionCmd_RequiresArgs(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"ask"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	assert.Error(t, root.Execute())
}

func TestLineReviewer(t *testing.T) {
	var out bytes.Buffer
	review := lineReviewer(strings.NewReader("add a historian\n\n"), &out)
	draft := agent.Draft{Pending: true, Review: &analyst.ReviewRequest{
		Instruction:       "Please review",
		GeneratedAnalysts: []string{"Name: Ada"},
	}}

	got, err := review(context.Background(), draft)
	require.NoError(t, err)
	assert.Equal(t, "add a historian", got)
	assert.Contains(t, out.String(), "Name: Ada")

	got, err = review(context.Background(), draft)
	require.NoError(t, err)
	assert.Equal(t, analyst.Approve, got, "an empty line approves")

	got, err = review(context.Background(), draft)
	require.NoError(t, err)
	assert.Equal(t, analyst.Approve, got, "end of input approves")
}

func TestRunIDOrNew(t *testing.T) {
	assert.Equal(t, "given", runIDOrNew("given"))
	a, b := runIDOrNew(""), runIDOrNew("")
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
