package services

import (
	"context"
	"encoding/json"

	"github.com/sentinela-io/sentinela/internal/domain/variable"
	"github.com/sentinela-io/sentinela/internal/pkg/errors"
)

// VariableService exposes per-monitor persistent variables to monitor
// callbacks. Values round-trip through JSON so callbacks can store
// structured data
type VariableService struct {
	variables variable.Repository
}

// NewVariableService creates a new variable service
func NewVariableService(variables variable.Repository) *VariableService {
	return &VariableService{variables: variables}
}

// Get reads a variable into out, returning false when it was never set
func (s *VariableService) Get(ctx context.Context, monitorID int64, name string, out interface{}) (bool, error) {
	v, err := s.variables.Get(ctx, monitorID, name)
	if err != nil {
		return false, err
	}
	if v == nil {
		return false, nil
	}
	if err := json.Unmarshal([]byte(v.Value), out); err != nil {
		return false, errors.Internal("failed to decode variable value", err)
	}
	return true, nil
}

// Set stores a variable, replacing any previous value
func (s *VariableService) Set(ctx context.Context, monitorID int64, name string, value interface{}) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return errors.Internal("failed to encode variable value", err)
	}
	return s.variables.Set(ctx, monitorID, name, string(encoded))
}
