package oauth2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// DefaultTimeout bounds each call made to GitHub when the caller's context has no deadline
const DefaultTimeout = 10 * time.Second

var (
	// ErrExchangeFailed is returned when the authorization code could not be traded for a token
	ErrExchangeFailed = errors.New("github code exchange failed")

	// ErrProfileFailed is returned when the user profile could not be fetched or parsed
	ErrProfileFailed = errors.New("github profile fetch failed")
)

// GithubProfile is the external identity reported by GitHub
type GithubProfile struct {
	ID    string `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	// Email is empty when the user hides it and has no verified primary address
	Email string `json:"email"`
}

// DisplayName returns the name to show for the profile, falling back to the login
func (p *GithubProfile) DisplayName() string {
	if strings.TrimSpace(p.Name) != "" {
		return p.Name
	}
	return p.Login
}

// GithubClient runs the server side of the GitHub OAuth handshake
type GithubClient struct {
	ClientId     string
	ClientSecret string
	CallbackURL  string

	// UserInfoURL is the URL to fetch user info from. Defaults to GitHub's API.
	// Can be overridden for testing.
	UserInfoURL string

	// EmailsURL lists the user's addresses when the profile hides the email
	EmailsURL string

	// HTTPClient is used for the token exchange and the API calls. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Timeout applied to each call, defaults to DefaultTimeout
	Timeout time.Duration

	oauthConfig oauth2.Config
}

func NewGithubClient(clientId string, clientSecret string, callbackUrl string) *GithubClient {
	if clientId == "" {
		clientId = strings.TrimSpace(os.Getenv("OAUTH2_GITHUB_CLIENT_ID"))
	}
	if clientSecret == "" {
		clientSecret = strings.TrimSpace(os.Getenv("OAUTH2_GITHUB_CLIENT_SECRET"))
	}
	if callbackUrl == "" {
		callbackUrl = strings.TrimSpace(os.Getenv("OAUTH2_GITHUB_CALLBACK_URL"))
	}
	return &GithubClient{
		ClientId:     clientId,
		ClientSecret: clientSecret,
		CallbackURL:  callbackUrl,
		UserInfoURL:  "https://api.github.com/user",
		EmailsURL:    "https://api.github.com/user/emails",
		Timeout:      DefaultTimeout,
		oauthConfig: oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  callbackUrl,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
	}
}

// WithEndpoint overrides the authorize and token URLs. Used by tests.
func (g *GithubClient) WithEndpoint(endpoint oauth2.Endpoint) *GithubClient {
	g.oauthConfig.Endpoint = endpoint
	return g
}

// AuthCodeURL returns the GitHub authorize URL carrying state
func (g *GithubClient) AuthCodeURL(state string) string {
	return g.oauthConfig.AuthCodeURL(state)
}

// Exchange trades an authorization code for an access token
func (g *GithubClient) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	if g.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, g.HTTPClient)
	}
	token, err := g.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrExchangeFailed)
	}
	return token, nil
}

// FetchProfile fetches the authenticated user's profile. If the profile hides the email the
// primary verified address from the emails endpoint is used.
func (g *GithubClient) FetchProfile(ctx context.Context, token *oauth2.Token) (*GithubProfile, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	var user struct {
		ID    json.Number `json:"id"`
		Login string      `json:"login"`
		Name  string      `json:"name"`
		Email string      `json:"email"`
	}
	if err := g.getJSON(ctx, g.UserInfoURL, token, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: profile has no id", ErrProfileFailed)
	}
	if _, err := strconv.ParseInt(string(user.ID), 10, 64); err != nil {
		return nil, fmt.Errorf("%w: invalid profile id %q", ErrProfileFailed, user.ID)
	}

	profile := &GithubProfile{
		ID:    string(user.ID),
		Login: user.Login,
		Name:  user.Name,
		Email: strings.TrimSpace(user.Email),
	}
	if profile.Email == "" && g.EmailsURL != "" {
		email, err := g.primaryEmail(ctx, token)
		if err != nil {
			return nil, err
		}
		profile.Email = email
	}
	return profile, nil
}

func (g *GithubClient) primaryEmail(ctx context.Context, token *oauth2.Token) (string, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := g.getJSON(ctx, g.EmailsURL, token, &emails); err != nil {
		return "", err
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	return "", nil
}

func (g *GithubClient) getJSON(ctx context.Context, url string, token *oauth2.Token, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %v", ErrProfileFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	response, err := g.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProfileFailed, err)
	}
	defer response.Body.Close()

	contents, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", ErrProfileFailed, err)
	}
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", ErrProfileFailed, url, response.StatusCode)
	}
	if err := json.Unmarshal(contents, out); err != nil {
		return fmt.Errorf("%w: failed to parse response: %v", ErrProfileFailed, err)
	}
	return nil
}

func (g *GithubClient) httpClient() *http.Client {
	if g.HTTPClient != nil {
		return g.HTTPClient
	}
	return http.DefaultClient
}

func (g *GithubClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
