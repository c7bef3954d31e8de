package ai

import (
	"context"
	"fmt"
)

// NoneProvider is the deployment mode without a generative backend. Every
// call fails fast so callers fall back to their literal answers.
type NoneProvider struct{}

func (NoneProvider) Name() string { return "none" }

func (NoneProvider) Generate(ctx context.Context, req Request) (*Result, error) {
	return &Result{Model: "none", Error: "no AI provider configured"},
		fmt.Errorf("no AI provider configured")
}

func (NoneProvider) TestConnection(ctx context.Context) error {
	return fmt.Errorf("no AI provider configured")
}
