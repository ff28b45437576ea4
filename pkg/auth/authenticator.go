package auth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"
)

// Provider call targets and media type.
const (
	targetInitiateAuth       = "AWSCognitoIdentityProviderService.InitiateAuth"
	targetRespondToChallenge = "AWSCognitoIdentityProviderService.RespondToAuthChallenge"

	contentTypeAmzJSON = "application/x-amz-json-1.1"
)

// Auth flows and challenge names.
const (
	flowUserSRP      = "USER_SRP_AUTH"
	flowRefreshToken = "REFRESH_TOKEN_AUTH"

	challengePasswordVerifier    = "PASSWORD_VERIFIER"
	challengeNewPasswordRequired = "NEW_PASSWORD_REQUIRED"
)

// maxResponseSize bounds how much of a provider response is read.
const maxResponseSize = 1 << 20

// Authentication errors.
var (
	// ErrNotAuthorized reports rejected credentials: a wrong password, an
	// expired or revoked refresh token. Never retried automatically.
	ErrNotAuthorized = errors.New("credentials rejected")

	// ErrPasswordChangeRequired reports an account the provider blocks until
	// its password is changed out of band.
	ErrPasswordChangeRequired = errors.New("password change required")
)

// APIError is a structured provider error other than a credential rejection.
type APIError struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("identity provider: %s: %s", e.TypeName(), e.Message)
}

// TypeName returns the error type with any service prefix stripped.
func (e *APIError) TypeName() string {
	if i := strings.LastIndex(e.Type, "#"); i >= 0 {
		return e.Type[i+1:]
	}
	return e.Type
}

// Authenticator obtains session tokens from the identity provider.
type Authenticator interface {
	// Authenticate performs the password flow.
	Authenticate(ctx context.Context, username, password string) (*Tokens, error)

	// Refresh exchanges a refresh token for fresh session tokens.
	Refresh(ctx context.Context, refreshToken string) (*Tokens, error)
}

// Config configures an SRPAuthenticator.
type Config struct {
	// Region selects the provider region and derives the endpoint URL.
	Region string

	// ClientID is the app client registered with the user pool.
	ClientID string

	// PoolID is the user pool identifier in "region_name" form. The name part
	// participates in the password hash.
	PoolID string

	// URL overrides the endpoint derived from Region. Mainly for tests.
	URL string

	// HTTPClient overrides http.DefaultClient.
	HTTPClient *http.Client
}

// SRPAuthenticator speaks the provider's SRP password-verifier flow.
type SRPAuthenticator struct {
	config   Config
	url      string
	poolName string
	client   *http.Client
}

var _ Authenticator = (*SRPAuthenticator)(nil)

// NewSRPAuthenticator validates the configuration and returns an
// authenticator. No network traffic happens until a flow is started.
func NewSRPAuthenticator(config Config) (*SRPAuthenticator, error) {
	if config.ClientID == "" {
		return nil, errors.New("client id is required")
	}
	_, poolName, ok := strings.Cut(config.PoolID, "_")
	if !ok || poolName == "" {
		return nil, fmt.Errorf("pool id %q is not in region_name form", config.PoolID)
	}
	url := config.URL
	if url == "" {
		if config.Region == "" {
			return nil, errors.New("region or url is required")
		}
		url = fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/", config.Region)
	}
	client := config.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &SRPAuthenticator{
		config:   config,
		url:      url,
		poolName: poolName,
		client:   client,
	}, nil
}

// Authenticate runs the SRP flow: initiate with an ephemeral public value,
// answer the password-verifier challenge with a signature over the derived
// session key, and collect the issued tokens.
func (a *SRPAuthenticator) Authenticate(ctx context.Context, username, password string) (*Tokens, error) {
	exchange, err := newSRPExchange()
	if err != nil {
		return nil, err
	}

	var challenge authResponse
	err = a.call(ctx, targetInitiateAuth, &initiateAuthRequest{
		AuthFlow:       flowUserSRP,
		ClientID:       a.config.ClientID,
		AuthParameters: exchange.authParams(username),
	}, &challenge)
	if err != nil {
		return nil, err
	}

	// Pools without SRP verification answer with tokens directly.
	if challenge.AuthenticationResult != nil {
		return challenge.AuthenticationResult.tokens(), nil
	}
	if challenge.ChallengeName != challengePasswordVerifier {
		return nil, fmt.Errorf("unexpected challenge %q", challenge.ChallengeName)
	}

	responses, err := a.answerVerifier(exchange, password, challenge.ChallengeParameters)
	if err != nil {
		return nil, err
	}

	var result authResponse
	err = a.call(ctx, targetRespondToChallenge, &respondToChallengeRequest{
		ChallengeName:      challengePasswordVerifier,
		ClientID:           a.config.ClientID,
		ChallengeResponses: responses,
		Session:            challenge.Session,
	}, &result)
	if err != nil {
		return nil, err
	}

	if result.ChallengeName == challengeNewPasswordRequired {
		return nil, fmt.Errorf("%w for %s", ErrPasswordChangeRequired, username)
	}
	if result.AuthenticationResult == nil {
		return nil, fmt.Errorf("provider answered without tokens (challenge %q)", result.ChallengeName)
	}
	return result.AuthenticationResult.tokens(), nil
}

// Refresh runs the refresh-token grant. The response carries no new refresh
// token; callers keep using the one they presented.
func (a *SRPAuthenticator) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	var result authResponse
	err := a.call(ctx, targetInitiateAuth, &initiateAuthRequest{
		AuthFlow:       flowRefreshToken,
		ClientID:       a.config.ClientID,
		AuthParameters: map[string]string{"REFRESH_TOKEN": refreshToken},
	}, &result)
	if err != nil {
		return nil, err
	}
	if result.AuthenticationResult == nil {
		return nil, fmt.Errorf("provider answered without tokens (challenge %q)", result.ChallengeName)
	}
	return result.AuthenticationResult.tokens(), nil
}

// answerVerifier computes the challenge responses for a password-verifier
// challenge.
func (a *SRPAuthenticator) answerVerifier(exchange *srpExchange, password string, params map[string]string) (map[string]string, error) {
	userID := params["USER_ID_FOR_SRP"]
	saltHex := params["SALT"]
	serverBHex := params["SRP_B"]
	secretBlockB64 := params["SECRET_BLOCK"]
	if userID == "" || saltHex == "" || serverBHex == "" || secretBlockB64 == "" {
		return nil, fmt.Errorf("%w: incomplete challenge parameters", ErrInvalidChallenge)
	}

	serverB, ok := new(big.Int).SetString(serverBHex, 16)
	if !ok {
		return nil, fmt.Errorf("%w: server ephemeral is not hex", ErrInvalidChallenge)
	}
	secretBlock, err := base64.StdEncoding.DecodeString(secretBlockB64)
	if err != nil {
		return nil, fmt.Errorf("%w: secret block: %w", ErrInvalidChallenge, err)
	}

	key, err := exchange.sessionKey(a.poolName, userID, password, saltHex, serverB)
	if err != nil {
		return nil, err
	}

	timestamp := formatTimestamp(time.Now())
	return map[string]string{
		"TIMESTAMP":                   timestamp,
		"USERNAME":                    userID,
		"PASSWORD_CLAIM_SECRET_BLOCK": secretBlockB64,
		"PASSWORD_CLAIM_SIGNATURE":    signChallenge(key, a.poolName, userID, secretBlock, timestamp),
	}, nil
}

type initiateAuthRequest struct {
	AuthFlow       string            `json:"AuthFlow"`
	ClientID       string            `json:"ClientId"`
	AuthParameters map[string]string `json:"AuthParameters"`
}

type respondToChallengeRequest struct {
	ChallengeName      string            `json:"ChallengeName"`
	ClientID           string            `json:"ClientId"`
	ChallengeResponses map[string]string `json:"ChallengeResponses"`
	Session            string            `json:"Session,omitempty"`
}

type authResponse struct {
	ChallengeName        string            `json:"ChallengeName"`
	ChallengeParameters  map[string]string `json:"ChallengeParameters"`
	Session              string            `json:"Session"`
	AuthenticationResult *authResult       `json:"AuthenticationResult"`
}

type authResult struct {
	IDToken      string `json:"IdToken"`
	AccessToken  string `json:"AccessToken"`
	RefreshToken string `json:"RefreshToken"`
	ExpiresIn    int    `json:"ExpiresIn"`
	TokenType    string `json:"TokenType"`
}

func (r *authResult) tokens() *Tokens {
	return &Tokens{
		IDToken:      r.IDToken,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		ExpiresIn:    r.ExpiresIn,
		IssuedAt:     time.Now(),
	}
}

// call posts one provider request and decodes the response.
func (a *SRPAuthenticator) call(ctx context.Context, target string, request, response any) error {
	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", target, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentTypeAmzJSON)
	req.Header.Set("X-Amz-Target", target)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("identity provider call: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read provider response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return providerError(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, response); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}

// providerError maps a non-200 response body to a typed error.
func providerError(status int, body []byte) error {
	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Type != "" {
		if apiErr.TypeName() == "NotAuthorizedException" {
			return fmt.Errorf("%w: %s", ErrNotAuthorized, apiErr.Message)
		}
		return &apiErr
	}
	return fmt.Errorf("identity provider returned status %d", status)
}

// StaticAuthenticator satisfies Authenticator with fixed tokens, for tests
// and embedders that manage credentials themselves.
type StaticAuthenticator struct {
	Tokens Tokens
}

var _ Authenticator = (*StaticAuthenticator)(nil)

func (s *StaticAuthenticator) Authenticate(ctx context.Context, username, password string) (*Tokens, error) {
	t := s.Tokens
	return &t, nil
}

func (s *StaticAuthenticator) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	t := s.Tokens
	return &t, nil
}
