package grpc

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	pa "github.com/panyam/projauth"
)

func newIssuer() *pa.SessionTokenIssuer {
	return pa.NewSessionTokenIssuer("grpc-test-secret")
}

func incoming(pairs ...string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(pairs...))
}

func TestUnaryAuthInterceptor_NoCredential(t *testing.T) {
	interceptor := UnaryAuthInterceptor(NewInterceptorConfig(newIssuer()))
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"}

	_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		t.Error("handler should not be called")
		return nil, nil
	})
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("expected Unauthenticated, got %v", err)
	}
}

func TestUnaryAuthInterceptor_ValidCredential(t *testing.T) {
	issuer := newIssuer()
	token, err := issuer.Issue("acct-1", "alice@example.com")
	if err != nil {
		t.Fatal(err)
	}
	interceptor := UnaryAuthInterceptor(NewInterceptorConfig(issuer))
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"}

	var gotID, gotEmail string
	_, err = interceptor(incoming("authorization", "Bearer "+token), nil, info, func(ctx context.Context, req any) (any, error) {
		gotID = AccountIDFromContext(ctx)
		gotEmail = pa.GetAccountEmailFromContext(ctx)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotID != "acct-1" || gotEmail != "alice@example.com" {
		t.Errorf("got account %q %q", gotID, gotEmail)
	}
}

func TestUnaryAuthInterceptor_ForgedCredential(t *testing.T) {
	other := pa.NewSessionTokenIssuer("some-other-secret")
	token, _ := other.Issue("acct-1", "alice@example.com")
	interceptor := UnaryAuthInterceptor(NewInterceptorConfig(newIssuer()))
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"}

	_, err := interceptor(incoming("authorization", "Bearer "+token), nil, info, func(ctx context.Context, req any) (any, error) {
		t.Error("handler should not be called")
		return nil, nil
	})
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("expected Unauthenticated, got %v", err)
	}
}

func TestUnaryAuthInterceptor_ExpiredCredential(t *testing.T) {
	issuer := newIssuer()
	issuer.Now = func() time.Time { return time.Now().Add(-30 * 24 * time.Hour) }
	token, _ := issuer.Issue("acct-1", "alice@example.com")

	interceptor := UnaryAuthInterceptor(NewInterceptorConfig(newIssuer()))
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"}
	_, err := interceptor(incoming("authorization", "Bearer "+token), nil, info, func(ctx context.Context, req any) (any, error) {
		return nil, nil
	})
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("expected Unauthenticated, got %v", err)
	}
}

func TestUnaryAuthInterceptor_PublicMethod(t *testing.T) {
	interceptor := UnaryAuthInterceptor(NewInterceptorConfig(newIssuer(), "/pkg.Svc/Public"))
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Public"}

	called := false
	_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		called = true
		if IsAuthenticated(ctx) {
			t.Error("public call without credential should not be authenticated")
		}
		return nil, nil
	})
	if err != nil || !called {
		t.Errorf("public method should pass through, err=%v called=%v", err, called)
	}
}

func TestUnaryAuthInterceptor_OptionalAuth(t *testing.T) {
	config := NewInterceptorConfig(newIssuer())
	config.RequireAuth = false
	interceptor := UnaryAuthInterceptor(config)
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"}

	_, err := interceptor(incoming("authorization", "Bearer garbage"), nil, info, func(ctx context.Context, req any) (any, error) {
		return nil, nil
	})
	if err != nil {
		t.Errorf("optional auth should not reject, got %v", err)
	}
}

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f *fakeStream) Context() context.Context { return f.ctx }

func TestStreamAuthInterceptor(t *testing.T) {
	issuer := newIssuer()
	token, _ := issuer.Issue("acct-2", "bob@example.com")
	interceptor := StreamAuthInterceptor(NewInterceptorConfig(issuer))
	info := &grpc.StreamServerInfo{FullMethod: "/pkg.Svc/Stream"}

	var gotID string
	err := interceptor(nil, &fakeStream{ctx: incoming("authorization", "Bearer "+token)}, info, func(srv any, ss grpc.ServerStream) error {
		gotID = AccountIDFromContext(ss.Context())
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if gotID != "acct-2" {
		t.Errorf("AccountIDFromContext() = %q", gotID)
	}

	err = interceptor(nil, &fakeStream{ctx: context.Background()}, info, func(srv any, ss grpc.ServerStream) error {
		t.Error("handler should not be called")
		return nil
	})
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("expected Unauthenticated, got %v", err)
	}
}

func TestTokenToOutgoingContext(t *testing.T) {
	ctx := TokenToOutgoingContext(context.Background(), "abc")
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		t.Fatal("no outgoing metadata")
	}
	if got := md.Get(DefaultMetadataKey); len(got) != 1 || got[0] != "Bearer abc" {
		t.Errorf("outgoing metadata = %v", got)
	}
	// Outgoing metadata read back as incoming yields the token
	tokens := TokenFromIncomingContext(metadata.NewIncomingContext(context.Background(), md), nil)
	if len(tokens) != 1 || tokens[0] != "abc" {
		t.Errorf("TokenFromIncomingContext() = %v", tokens)
	}
}
