package tokens

import (
	"errors"
	"time"
)

// ErrNotFound is the normal empty result for team/token lookups. It is
// never converted into an infrastructure failure by callers.
var ErrNotFound = errors.New("not found")

// ReasonReplacedByOAuth marks tokens superseded by a fresh authorization.
const ReasonReplacedByOAuth = "replaced_by_oauth"

type TokenType string

const (
	TypeBot  TokenType = "bot"
	TypeUser TokenType = "user"
)

type Team struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Domain         string    `json:"domain"`
	EnterpriseID   string    `json:"enterpriseId,omitempty"`
	EnterpriseName string    `json:"enterpriseName,omitempty"`
	Active         bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Token is one stored credential row. Only the ciphertext persists; the
// algorithm and key id pin exactly how it was produced.
type Token struct {
	ID            string     `json:"id"`
	TeamID        string     `json:"teamId"`
	UserID        string     `json:"userId,omitempty"`
	Type          TokenType  `json:"tokenType"`
	Ciphertext    string     `json:"-"`
	Algorithm     string     `json:"-"`
	KeyID         string     `json:"-"`
	Scope         string     `json:"scope"`
	Revoked       bool       `json:"revoked"`
	RevokedReason string     `json:"revokedReason,omitempty"`
	RevokedAt     *time.Time `json:"revokedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// OAuthResult is the structured authorization outcome handed in by the
// OAuth callback glue. This shape is an external contract.
type OAuthResult struct {
	TeamID         string
	TeamName       string
	TeamDomain     string
	EnterpriseID   string
	EnterpriseName string
	AccessToken    string
	Scope          string
	BotUserID      string
	AppID          string
	AuthedUserID   string
	UserToken      string
	UserScope      string
}

// ActorContext carries who triggered an operation, for the audit trail.
type ActorContext struct {
	ActorType string
	IPAddress string
	UserAgent string
}

// Credential is a decrypted, usable token.
type Credential struct {
	TokenID string
	TeamID  string
	UserID  string
	Type    TokenType
	Value   string
	Scope   string
}

type StoreOAuthOutcome struct {
	TeamID      string `json:"teamId"`
	Superseded  int64  `json:"superseded"`
	BotTokenID  string `json:"botTokenId"`
	UserTokenID string `json:"userTokenId,omitempty"`
}

type RevokeOutcome struct {
	TokenID        string `json:"tokenId"`
	AlreadyRevoked bool   `json:"alreadyRevoked"`
}
