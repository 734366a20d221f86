package claude

import (
	"context"
	"encoding/json"
	"fmt"
)

// Service is a base type for components that invoke Claude CLI. Embed it and
// call InvokeAndParse.
type Service struct {
	inv *Invoker
}

// NewService creates a Service around an existing Invoker.
func NewService(inv *Invoker) *Service {
	if inv == nil {
		inv = NewInvoker()
	}
	return &Service{inv: inv}
}

// Invoker returns the underlying Invoker.
func (s *Service) Invoker() *Invoker {
	return s.inv
}

// InvokeAndParse invokes Claude CLI with the given request and unmarshals the
// JSON content into result, a pointer. Prose around the JSON payload is
// tolerated.
func (s *Service) InvokeAndParse(ctx context.Context, req Request, result interface{}) error {
	resp, err := s.inv.Invoke(ctx, req)
	if err != nil {
		return err
	}

	content, _, err := ParseResponse(resp.RawOutput)
	if err != nil {
		return fmt.Errorf("failed to parse claude output: %w", err)
	}
	if content == "" {
		return fmt.Errorf("empty response from claude")
	}

	if err := json.Unmarshal([]byte(content), result); err != nil {
		if extracted := ExtractJSON(content); extracted != "" && extracted != content {
			if err := json.Unmarshal([]byte(extracted), result); err == nil {
				return nil
			}
		}
		return fmt.Errorf("failed to unmarshal response: %w (content: %s)", err, truncate(content, 200))
	}
	return nil
}
