//go:build !protogen

package policy

import (
	"log/slog"
)

func NewProfilePolicyProvider(_ *slog.Logger, fallback Profile, _ string) (Provider, error) {
	return NewStaticProvider(fallback), nil
}
