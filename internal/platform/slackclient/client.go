package slackclient

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/slack-go/slack"

	"slackmemory/internal/platform/ratelimit"
)

// API is the slice of the Slack Web API this service depends on. The
// rotation service probes token health; the revocation service posts
// notices. Both receive the token per call because every call is made
// on behalf of one workspace.
type API interface {
	CheckTokenHealth(ctx context.Context, teamID, token string) error
	PostMessage(ctx context.Context, teamID, token, channelID, text string) error
}

type Client struct {
	limiter *ratelimit.Limiter
	timeout time.Duration
}

func New(limiter *ratelimit.Limiter, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{limiter: limiter, timeout: timeout}
}

// CheckTokenHealth performs an auth.test call with the given token. Any
// failure, including timeout, means the token is unhealthy; the caller
// decides what to do about it.
func (c *Client) CheckTokenHealth(ctx context.Context, teamID, token string) error {
	resp, err := c.withRetry(ctx, teamID, token, "auth.test", func(ctx context.Context, api *slack.Client) (any, error) {
		return api.AuthTestContext(ctx)
	})
	if err != nil {
		return err
	}
	auth, ok := resp.(*slack.AuthTestResponse)
	if !ok || auth.TeamID == "" {
		return fmt.Errorf("auth.test returned no team")
	}
	return nil
}

func (c *Client) PostMessage(ctx context.Context, teamID, token, channelID, text string) error {
	_, err := c.withRetry(ctx, teamID, token, "chat.postMessage", func(ctx context.Context, api *slack.Client) (any, error) {
		_, _, err := api.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false))
		return nil, err
	})
	return err
}

func (c *Client) withRetry(ctx context.Context, teamID, token, method string, call func(context.Context, *slack.Client) (any, error)) (any, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, teamID, method); err != nil {
			return nil, err
		}
	}

	api := slack.New(token)
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)

	var result any
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		resp, err := call(callCtx, api)
		if err != nil {
			// Auth-shaped failures are definitive, not transient.
			switch err.Error() {
			case "invalid_auth", "token_revoked", "account_inactive", "not_authed":
				return backoff.Permanent(err)
			}
			return err
		}
		result = resp
		return nil
	}
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return result, nil
}
