// Package extract turns raw source text into normalized function units and
// import edges via the parsing collaborator.
package extract

import (
	"context"
)

// FunctionUnit is a named, line-ranged body of code.
type FunctionUnit struct {
	Name      string `json:"name"`
	Code      string `json:"code"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
}

// Result is the normalized output of parsing one file.
type Result struct {
	Functions []FunctionUnit `json:"functions"`
	Imports   []string       `json:"imports"`
}

// Extractor is the parsing service contract. Implementations must tolerate
// empty or whitespace-only input by returning an empty result, not an error.
type Extractor interface {
	Parse(ctx context.Context, code, language string) (*Result, error)
}
