package extractor

import (
	"context"
	"sync"
)

// StubClient replays scripted structured outputs in order; the last entry repeats once exhausted.
type StubClient struct {
	mu        sync.Mutex
	Responses []map[string]any
	Errs      []error
	ModelName string

	Calls   int
	Systems []string
	Users   []string
}

func (s *StubClient) GenerateJSON(ctx context.Context, system string, user string, _ string, _ map[string]any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.Calls
	s.Calls++
	s.Systems = append(s.Systems, system)
	s.Users = append(s.Users, user)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if i < len(s.Errs) && s.Errs[i] != nil {
		return nil, s.Errs[i]
	}
	if len(s.Responses) == 0 {
		return map[string]any{}, nil
	}
	if i >= len(s.Responses) {
		i = len(s.Responses) - 1
	}
	return s.Responses[i], nil
}

func (s *StubClient) Model() string {
	if s.ModelName == "" {
		return "stub"
	}
	return s.ModelName
}
