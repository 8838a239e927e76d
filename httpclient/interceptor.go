package httpclient

import (
	"context"

	"github.com/google/uuid"
)

// RequestInterceptor adjusts a request after it is resolved and before
// the first attempt. Interceptors run in registration order; an error
// aborts the request.
type RequestInterceptor func(ctx context.Context, req *ResolvedRequest) error

// ResponseInterceptor inspects a completed exchange. An error replaces
// the response as the verb's result.
type ResponseInterceptor func(ctx context.Context, req *ResolvedRequest, resp *RawResponse) error

// WithRequestInterceptor appends request interceptors to the client.
func WithRequestInterceptor(interceptors ...RequestInterceptor) Option {
	return func(cfg *internalConfig) {
		cfg.RequestInterceptors = append(cfg.RequestInterceptors, interceptors...)
	}
}

// WithResponseInterceptor appends response interceptors to the client.
func WithResponseInterceptor(interceptors ...ResponseInterceptor) Option {
	return func(cfg *internalConfig) {
		cfg.ResponseInterceptors = append(cfg.ResponseInterceptors, interceptors...)
	}
}

func (cfg *internalConfig) interceptRequest(ctx context.Context, req *ResolvedRequest) error {
	for _, intercept := range cfg.RequestInterceptors {
		if err := intercept(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

func (cfg *internalConfig) interceptResponse(ctx context.Context, req *ResolvedRequest, resp *RawResponse) error {
	for _, intercept := range cfg.ResponseInterceptors {
		if err := intercept(ctx, req, resp); err != nil {
			return err
		}
	}
	return nil
}

// AuthBearerFuncInterceptor sets a bearer token fetched per request,
// for tokens that rotate.
func AuthBearerFuncInterceptor(tokenFunc func(ctx context.Context) (string, error)) RequestInterceptor {
	return func(ctx context.Context, req *ResolvedRequest) error {
		token, err := tokenFunc(ctx)
		if err != nil {
			return err
		}
		req.SetHeader("Authorization", "Bearer "+token)
		return nil
	}
}

// APIKeyInterceptor sets headerName to apiKey.
func APIKeyInterceptor(headerName, apiKey string) RequestInterceptor {
	return func(_ context.Context, req *ResolvedRequest) error {
		req.SetHeader(headerName, apiKey)
		return nil
	}
}

// CorrelationIDInterceptor sets headerName to a fresh ID unless the
// request already carries one. A nil idFunc generates UUIDv4s.
func CorrelationIDInterceptor(headerName string, idFunc func() string) RequestInterceptor {
	if idFunc == nil {
		idFunc = uuid.NewString
	}
	return func(_ context.Context, req *ResolvedRequest) error {
		if req.Header(headerName) == "" {
			req.SetHeader(headerName, idFunc())
		}
		return nil
	}
}

// UserAgentInterceptor sets the User-Agent header unless the builder
// already set one.
func UserAgentInterceptor(userAgent string) RequestInterceptor {
	return func(_ context.Context, req *ResolvedRequest) error {
		if req.Header("User-Agent") == "" {
			req.SetHeader("User-Agent", userAgent)
		}
		return nil
	}
}
