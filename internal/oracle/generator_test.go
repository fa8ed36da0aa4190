package oracle

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCommand(t *testing.T) {
	client := NewMockClient(`{"type": "command", "text": "ls -la"}`)
	g := NewGenerator(client)

	res, err := g.Generate(context.Background(), "list files", "list files in cwd", testSnapshot(), "", GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, KindCommand, res.Kind)
	assert.Equal(t, "ls -la", res.Text)
}

func TestGenerateQuestion(t *testing.T) {
	client := NewMockClient(`{"type": "question", "text": "Which directory should I archive?"}`)
	g := NewGenerator(client)

	res, err := g.Generate(context.Background(), "archive it", "archive the directory", testSnapshot(), "", GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, KindQuestion, res.Kind)
	assert.Equal(t, "Which directory should I archive?", res.Text)
}

func TestGenerateCachesIdenticalRequests(t *testing.T) {
	client := NewMockClient(`{"type": "command", "text": "pwd"}`)
	g := NewGenerator(client)

	first, err := g.Generate(context.Background(), "t", "print cwd", testSnapshot(), "", GenerateOptions{})
	require.NoError(t, err)
	second, err := g.Generate(context.Background(), "t", "print cwd", testSnapshot(), "", GenerateOptions{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, client.CallCount())
}

func TestGenerateMalformedExhaustsBudget(t *testing.T) {
	client := NewMockClient("run ls", "just run ls", "ls")
	g := NewGenerator(client)

	_, err := g.Generate(context.Background(), "t", "s", testSnapshot(), "", GenerateOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedGeneration)
	assert.Equal(t, 1+malformedGenerationRetries, client.CallCount())
}

func TestGenerateMalformedThenRecovers(t *testing.T) {
	client := NewMockClient("sure, here you go", `{"type": "command", "text": "whoami"}`)
	g := NewGenerator(client)

	res, err := g.Generate(context.Background(), "t", "who am i", testSnapshot(), "", GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "whoami", res.Text)
	assert.Equal(t, 2, client.CallCount())
}

func TestGenerateSuppressQuestionsChangesPrompt(t *testing.T) {
	client := NewMockClient(`{"type": "command", "text": "ls"}`)
	g := NewGenerator(client)

	_, err := g.Generate(context.Background(), "t", "s", testSnapshot(), "", GenerateOptions{SuppressQuestions: true})
	require.NoError(t, err)

	msgs := client.LastMessages()
	require.NotEmpty(t, msgs)
	assert.True(t, strings.Contains(msgs[0].Content, "Do not ask questions"))
}

func TestRecoverRejectsRepeatedCommand(t *testing.T) {
	client := NewMockClient(`{"type": "command", "text": "ls /missing"}`)
	g := NewGenerator(client)

	_, err := g.Recover(context.Background(), "t", "s", "ls /missing", "No such file or directory", testSnapshot(), GenerateOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedGeneration)
}

func TestRecoverReturnsAlternative(t *testing.T) {
	client := NewMockClient(`{"type": "command", "text": "mkdir -p /tmp/out && ls /tmp/out"}`)
	g := NewGenerator(client)

	res, err := g.Recover(context.Background(), "t", "s", "ls /tmp/out", "No such file or directory", testSnapshot(), GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, KindCommand, res.Kind)
	assert.NotEqual(t, "ls /tmp/out", res.Text)
}

func TestRecoverIsNotCached(t *testing.T) {
	client := NewMockClient(
		`{"type": "command", "text": "cat file.txt"}`,
		`{"type": "command", "text": "less file.txt"}`,
	)
	g := NewGenerator(client)

	first, err := g.Recover(context.Background(), "t", "s", "view file.txt", "command not found", testSnapshot(), GenerateOptions{})
	require.NoError(t, err)
	second, err := g.Recover(context.Background(), "t", "s", "view file.txt", "command not found", testSnapshot(), GenerateOptions{})
	require.NoError(t, err)

	assert.NotEqual(t, first.Text, second.Text)
	assert.Equal(t, 2, client.CallCount())
}

func TestExtractJSONVariants(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"bare", `{"type": "command", "text": "ls"}`},
		{"fenced", "```json\n{\"type\": \"command\", \"text\": \"ls\"}\n```"},
		{"prose wrapped", `The answer is {"type": "command", "text": "ls"} as requested.`},
		{"single quotes", `{'type': 'command', 'text': 'ls'}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := extractJSON(tc.input)
			require.NoError(t, err)
			res, err := parseResult(raw)
			require.NoError(t, err)
			assert.Equal(t, "ls", res.Text)
		})
	}
}

func TestExtractJSONEmpty(t *testing.T) {
	_, err := extractJSON("   ")
	require.Error(t, err)
}
