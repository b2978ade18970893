package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	// reflectionMethod stands in for any method outside the health service.
	reflectionMethod = "/grpc.reflection.v1.ServerReflection/ServerReflectionInfo"
	healthCheck      = "/grpc.health.v1.Health/Check"
	healthWatch      = "/grpc.health.v1.Health/Watch"
)

func withAuth(value string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", value))
}

func TestCheckBearer(t *testing.T) {
	for _, tc := range []struct {
		header string
		want   error
	}{
		{"", errMissingAuth},
		{"Basic secret", errInvalidScheme},
		{"bearer secret", errInvalidScheme},
		{"Bearer wrong", errInvalidToken},
		{"Bearer secret ", errInvalidToken},
		{"Bearer secret", nil},
	} {
		if got := checkBearer(tc.header, "secret"); got != tc.want {
			t.Errorf("checkBearer(%q) = %v, want %v", tc.header, got, tc.want)
		}
	}
}

func TestAuthInterceptor(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		method string
		ctx    context.Context
		want   codes.Code
	}{
		{"auth disabled", "", reflectionMethod, context.Background(), codes.OK},
		{"health exempt", "secret", healthCheck, context.Background(), codes.OK},
		{"no metadata", "secret", reflectionMethod, context.Background(), codes.Unauthenticated},
		{"no authorization key", "secret", reflectionMethod,
			metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-user", "alice")), codes.Unauthenticated},
		{"wrong token", "secret", reflectionMethod, withAuth("Bearer wrong"), codes.Unauthenticated},
		{"basic scheme", "secret", reflectionMethod, withAuth("Basic secret"), codes.Unauthenticated},
		{"valid token", "secret", reflectionMethod, withAuth("Bearer secret"), codes.OK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			handler := func(context.Context, any) (any, error) { called = true; return "ok", nil }

			resp, err := AuthInterceptor(tc.token)(tc.ctx, nil, &grpc.UnaryServerInfo{FullMethod: tc.method}, handler)
			if got := status.Code(err); got != tc.want {
				t.Fatalf("code = %v, want %v (err %v)", got, tc.want, err)
			}
			if called != (tc.want == codes.OK) {
				t.Fatalf("handler called = %v", called)
			}
			if tc.want == codes.OK && resp != "ok" {
				t.Fatalf("resp = %v", resp)
			}
		})
	}
}

// fakeStream is a grpc.ServerStream that only knows its context.
type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s fakeStream) Context() context.Context { return s.ctx }

func TestStreamAuthInterceptor(t *testing.T) {
	tests := []struct {
		name   string
		method string
		ctx    context.Context
		want   codes.Code
	}{
		{"health watch exempt", healthWatch, context.Background(), codes.OK},
		{"no credentials", reflectionMethod, context.Background(), codes.Unauthenticated},
		{"valid token", reflectionMethod, withAuth("Bearer secret"), codes.OK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			handler := func(any, grpc.ServerStream) error { called = true; return nil }

			err := StreamAuthInterceptor("secret")(nil, fakeStream{ctx: tc.ctx}, &grpc.StreamServerInfo{FullMethod: tc.method}, handler)
			if got := status.Code(err); got != tc.want {
				t.Fatalf("code = %v, want %v", got, tc.want)
			}
			if called != (tc.want == codes.OK) {
				t.Fatalf("handler called = %v", called)
			}
		})
	}
}

func TestRecoveryInterceptors(t *testing.T) {
	_, err := RecoveryInterceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: reflectionMethod},
		func(context.Context, any) (any, error) { panic("boom") })
	if status.Code(err) != codes.Internal {
		t.Errorf("unary: %v, want Internal", err)
	}

	err = StreamRecoveryInterceptor(nil, fakeStream{ctx: context.Background()}, &grpc.StreamServerInfo{FullMethod: healthWatch},
		func(any, grpc.ServerStream) error { panic("boom") })
	if status.Code(err) != codes.Internal {
		t.Errorf("stream: %v, want Internal", err)
	}
}

func TestLoggingInterceptor_PassesThrough(t *testing.T) {
	want := status.Error(codes.NotFound, "no such charter")
	_, err := LoggingInterceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: reflectionMethod},
		func(context.Context, any) (any, error) { return nil, want })
	if err != want {
		t.Fatalf("err = %v, want %v", err, want)
	}
}

func TestAuthMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name   string
		token  string
		method string
		path   string
		header string
		want   int
	}{
		{"disabled", "", http.MethodPut, "/v1/charters/ch-1", "", http.StatusNoContent},
		{"missing header", "secret", http.MethodGet, "/v1/charters", "", http.StatusUnauthorized},
		{"wrong token", "secret", http.MethodGet, "/v1/charters", "Bearer wrong", http.StatusUnauthorized},
		{"basic scheme", "secret", http.MethodGet, "/v1/charters", "Basic secret", http.StatusUnauthorized},
		{"valid token", "secret", http.MethodPut, "/v1/charters/ch-1", "Bearer secret", http.StatusNoContent},
		{"health exempt", "secret", http.MethodGet, "/v1/health", "", http.StatusNoContent},
		{"only GET health exempt", "secret", http.MethodPost, "/v1/health", "", http.StatusUnauthorized},
		{"stream protected", "secret", http.MethodGet, "/v1/events/stream", "", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			AuthMiddleware(tc.token, ok).ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d; body %s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}
