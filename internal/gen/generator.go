// Package gen wraps the external text-generation collaborator. The core
// controls prompts and model choice; latency and availability are opaque and
// unreliable, so every caller must handle a failed Generate.
package gen

import "context"

type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	IsConnected() bool
	ModelName() string
	Models() []string
}
