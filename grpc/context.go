// Package grpc carries projauth session credentials over gRPC metadata.
package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"

	pa "github.com/panyam/projauth"
)

// DefaultMetadataKey is the gRPC metadata key holding "Bearer <token>"
const DefaultMetadataKey = "authorization"

// Config holds the metadata key configuration for auth context.
type Config struct {
	// MetadataKey is the metadata key checked for the credential. Defaults to "authorization".
	MetadataKey string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{MetadataKey: DefaultMetadataKey}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKey == "" {
		c.MetadataKey = DefaultMetadataKey
	}
}

// TokenFromIncomingContext returns the bearer tokens found in incoming metadata
func TokenFromIncomingContext(ctx context.Context, config *Config) []string {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil
	}
	var tokens []string
	for _, value := range md.Get(config.MetadataKey) {
		if token, ok := strings.CutPrefix(value, "Bearer "); ok && token != "" {
			tokens = append(tokens, strings.TrimSpace(token))
		}
	}
	return tokens
}

// TokenToOutgoingContext attaches a session credential to an outgoing call
func TokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKey, "Bearer "+token)
}

// AccountIDFromContext returns the account authenticated by the interceptor, or ""
func AccountIDFromContext(ctx context.Context) string {
	return pa.GetAccountIDFromContext(ctx)
}

// IsAuthenticated returns true if the interceptor authenticated the call
func IsAuthenticated(ctx context.Context) bool {
	return AccountIDFromContext(ctx) != ""
}
