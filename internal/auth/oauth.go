package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// GitHubUser is the part of a GitHub profile photovault needs to match an
// existing account. Sign-in never creates accounts: the verified primary
// email must already belong to a photovault user.
type GitHubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Email string `json:"email"` // verified primary email, resolved by Exchange
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// GitHubProvider wraps the OAuth2 authorization-code flow against GitHub.
//
// OAUTH2 IN ONE PARAGRAPH:
// We redirect the browser to GitHub with a random "state". GitHub redirects
// back with a short-lived "code". We trade that code for an access token
// (server to server, using our client secret) and call the GitHub API with
// it. The state cookie round-trip stops another site from completing a login
// on the user's behalf (CSRF).
type GitHubProvider struct {
	config *oauth2.Config
	apiURL string
}

func NewGitHubProvider(clientID, clientSecret, callbackURL string) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		apiURL: "https://api.github.com",
	}
}

// AuthURL returns the GitHub consent page URL for the given state value.
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the callback code for a token and resolves the user's
// verified primary email. The /user endpoint leaves "email" empty when the
// user hides it, so the /user/emails list is the source of truth.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*GitHubUser, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	client := p.config.Client(ctx, oauthToken)

	var ghUser GitHubUser
	if err := getJSON(ctx, client, p.apiURL+"/user", &ghUser); err != nil {
		return nil, err
	}
	if ghUser.ID == 0 {
		return nil, fmt.Errorf("auth: GitHub returned an invalid user (ID = 0)")
	}

	var emails []githubEmail
	if err := getJSON(ctx, client, p.apiURL+"/user/emails", &emails); err != nil {
		return nil, err
	}
	ghUser.Email = ""
	for _, e := range emails {
		if e.Primary && e.Verified {
			ghUser.Email = e.Email
			break
		}
	}
	if ghUser.Email == "" {
		return nil, fmt.Errorf("auth: GitHub account %s has no verified primary email", ghUser.Login)
	}

	return &ghUser, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("auth: building GitHub request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("auth: calling GitHub %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth: GitHub %s returned status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("auth: decoding GitHub %s response: %w", url, err)
	}
	return nil
}
