package executor

import (
	"context"
	"fmt"
	"strings"
)

// #region select-backend

// SelectBackend returns the first candidate the resolver accepts.
// Resolution errors are collected and reported when nothing resolves.
func SelectBackend(ctx context.Context, r BackendResolver, candidates []string) (string, error) {
	var tried []string
	for _, name := range candidates {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("select backend: %w", err)
		}
		err := r.Resolve(ctx, name)
		if err == nil {
			return name, nil
		}
		tried = append(tried, fmt.Sprintf("%s (%v)", name, err))
	}
	if len(tried) == 0 {
		return "", fmt.Errorf("%w: no candidates configured", ErrNoBackendAvailable)
	}
	return "", fmt.Errorf("%w: tried %s", ErrNoBackendAvailable, strings.Join(tried, ", "))
}

// #endregion select-backend
