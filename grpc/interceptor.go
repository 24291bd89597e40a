package grpc

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pa "github.com/panyam/projauth"
)

// TokenVerifier checks a session credential. *projauth.SessionTokenIssuer satisfies it.
type TokenVerifier interface {
	Verify(token string) (*pa.SessionClaims, error)
}

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	*Config

	Verifier TokenVerifier

	// RequireAuth when true rejects unauthenticated calls.
	// When false, calls proceed but AccountIDFromContext returns empty.
	RequireAuth bool

	// Full method names like "/package.Service/Method" that never need auth
	PublicMethods map[string]bool

	Logger *slog.Logger
}

// NewInterceptorConfig returns a config that requires auth for every method except publicMethods
func NewInterceptorConfig(verifier TokenVerifier, publicMethods ...string) *InterceptorConfig {
	config := &InterceptorConfig{
		Config:        DefaultConfig(),
		Verifier:      verifier,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

func (c *InterceptorConfig) ensureDefaults() {
	if c.Config == nil {
		c.Config = DefaultConfig()
	}
	c.Config.EnsureDefaults()
	if c.PublicMethods == nil {
		c.PublicMethods = make(map[string]bool)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// UnaryAuthInterceptor verifies the session credential of unary calls
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config.ensureDefaults()
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := config.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor verifies the session credential of streaming calls
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config.ensureDefaults()
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := config.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authedStream{ServerStream: ss, ctx: ctx})
	}
}

func (c *InterceptorConfig) authenticate(ctx context.Context, method string) (context.Context, error) {
	for _, token := range TokenFromIncomingContext(ctx, c.Config) {
		claims, err := c.Verifier.Verify(token)
		if err == nil {
			return pa.ContextWithAccount(ctx, claims), nil
		}
		c.Logger.Debug("rejected grpc session credential", "method", method, "error", err)
	}
	if c.RequireAuth && !c.PublicMethods[method] {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	return ctx, nil
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authedStream) Context() context.Context {
	return s.ctx
}
