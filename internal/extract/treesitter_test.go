package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePython(t *testing.T) {
	source := `import os
from mypkg.utils import helper

def top_level(x):
    return x * 2

class Parser:
    def parse(self, data):
        return data
`
	e := NewTreeSitterExtractor()
	result, err := e.Parse(context.Background(), source, "python")
	require.NoError(t, err)

	var names []string
	for _, fn := range result.Functions {
		names = append(names, fn.Name)
	}
	assert.ElementsMatch(t, []string{"top_level", "Parser.parse"}, names)

	for _, fn := range result.Functions {
		if fn.Name == "top_level" {
			assert.Equal(t, 4, fn.StartLine)
			assert.Contains(t, fn.Code, "return x * 2")
		}
	}
	assert.ElementsMatch(t, []string{"os", "mypkg.utils"}, result.Imports)
}

func TestParseJavaScript(t *testing.T) {
	source := `import { thing } from "./lib/thing";

function handler(req) {
  return req.body;
}
`
	e := NewTreeSitterExtractor()
	result, err := e.Parse(context.Background(), source, "javascript")
	require.NoError(t, err)

	require.Len(t, result.Functions, 1)
	assert.Equal(t, "handler", result.Functions[0].Name)
	assert.Equal(t, []string{"./lib/thing"}, result.Imports)
}

func TestParseNestedFunctions(t *testing.T) {
	source := `def outer():
    def inner():
        pass
    return inner
`
	e := NewTreeSitterExtractor()
	result, err := e.Parse(context.Background(), source, "python")
	require.NoError(t, err)

	var names []string
	for _, fn := range result.Functions {
		names = append(names, fn.Name)
	}
	assert.ElementsMatch(t, []string{"outer", "outer.inner"}, names)
}

func TestParseEmptyInput(t *testing.T) {
	e := NewTreeSitterExtractor()
	for _, input := range []string{"", "   \n\t  "} {
		result, err := e.Parse(context.Background(), input, "python")
		require.NoError(t, err)
		assert.Empty(t, result.Functions)
		assert.Empty(t, result.Imports)
	}
}

func TestParseUnsupportedLanguage(t *testing.T) {
	e := NewTreeSitterExtractor()
	_, err := e.Parse(context.Background(), "fn main() {}", "rust")
	assert.Error(t, err)
}
