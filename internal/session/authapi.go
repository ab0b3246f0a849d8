package session

import (
	"context"
	"net/http"

	"github.com/ritikkatiyar/ecom-storefront/internal/apiclient"
)

// AuthAPI is the auth service boundary the manager depends on.
type AuthAPI interface {
	Login(ctx context.Context, req LoginRequest) (*TokenResponse, error)
	Signup(ctx context.Context, req SignupRequest) (*TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
}

type httpAuthAPI struct {
	client *apiclient.Client
}

// NewAuthAPI builds the auth service client. The given pipeline must not be
// wired to the manager's reauthenticator: every call here skips auth and
// retry, so a 401 from the auth service is final.
func NewAuthAPI(client *apiclient.Client) AuthAPI {
	return &httpAuthAPI{client: client}
}

func (a *httpAuthAPI) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	var out TokenResponse
	err := a.client.Do(ctx, &apiclient.Request{
		Method:    http.MethodPost,
		Path:      "/api/auth/login",
		Body:      req,
		SkipAuth:  true,
		SkipRetry: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *httpAuthAPI) Signup(ctx context.Context, req SignupRequest) (*TokenResponse, error) {
	var out TokenResponse
	err := a.client.Do(ctx, &apiclient.Request{
		Method:    http.MethodPost,
		Path:      "/api/auth/signup",
		Body:      req,
		SkipAuth:  true,
		SkipRetry: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *httpAuthAPI) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	var out TokenResponse
	err := a.client.Do(ctx, &apiclient.Request{
		Method:    http.MethodPost,
		Path:      "/api/auth/refresh",
		Body:      RefreshRequest{RefreshToken: refreshToken},
		SkipAuth:  true,
		SkipRetry: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *httpAuthAPI) Logout(ctx context.Context, accessToken, refreshToken string) error {
	header := http.Header{}
	if accessToken != "" {
		header.Set("Authorization", "Bearer "+accessToken)
	}
	_, err := a.client.Send(ctx, &apiclient.Request{
		Method:    http.MethodPost,
		Path:      "/api/auth/logout",
		Body:      RefreshRequest{RefreshToken: refreshToken},
		Header:    header,
		SkipAuth:  true,
		SkipRetry: true,
	})
	return err
}
