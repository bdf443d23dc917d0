package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Joe-EtubiGreatattai/one-mai-user-sub000/internal/models"
)

// loginResponse is the login payload: the user plus the issued token pair.
type loginResponse struct {
	User   models.User      `json:"user"`
	Tokens models.TokenPair `json:"tokens"`
}

// Login authenticates with email and password and installs the issued
// tokens on the client.
func (c *Client) Login(ctx context.Context, email, password string) (*models.User, error) {
	var resp loginResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	c.SetTokens(resp.Tokens)
	return &resp.User, nil
}

// Group fetches a full group snapshot.
func (c *Client) Group(ctx context.Context, groupID string) (*models.Group, error) {
	var group models.Group
	if err := c.do(ctx, http.MethodGet, "/groups/"+url.PathEscape(groupID), nil, &group); err != nil {
		return nil, fmt.Errorf("get group %s: %w", groupID, err)
	}
	return &group, nil
}

// Groups fetches the caller's group list.
func (c *Client) Groups(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	if err := c.do(ctx, http.MethodGet, "/groups", nil, &groups); err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

// Messages fetches the message history of a group.
func (c *Client) Messages(ctx context.Context, groupID string) ([]models.Message, error) {
	var msgs []models.Message
	if err := c.do(ctx, http.MethodGet, "/groups/"+url.PathEscape(groupID)+"/messages", nil, &msgs); err != nil {
		return nil, fmt.Errorf("get messages for %s: %w", groupID, err)
	}
	return msgs, nil
}

// UpdateMemberRole changes a member's role in a group.
func (c *Client) UpdateMemberRole(ctx context.Context, groupID, userID string, role models.MemberRole) error {
	endpoint := "/groups/" + url.PathEscape(groupID) + "/members/" + url.PathEscape(userID) + "/role"
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]string{"role": string(role)}, nil)
	if err != nil {
		return fmt.Errorf("update role for %s in %s: %w", userID, groupID, err)
	}
	return nil
}

// CreateSwapRequest asks to exchange payout positions with another member.
func (c *Client) CreateSwapRequest(ctx context.Context, groupID, targetID string) (*models.SwapRequest, error) {
	var swap models.SwapRequest
	endpoint := "/groups/" + url.PathEscape(groupID) + "/swaps"
	err := c.do(ctx, http.MethodPost, endpoint, map[string]string{"targetId": targetID}, &swap)
	if err != nil {
		return nil, fmt.Errorf("create swap request in %s: %w", groupID, err)
	}
	return &swap, nil
}

// Wallet fetches the caller's wallet.
func (c *Client) Wallet(ctx context.Context) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := c.do(ctx, http.MethodGet, "/wallet", nil, &wallet); err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return &wallet, nil
}

// BankAccounts fetches the caller's linked bank accounts.
func (c *Client) BankAccounts(ctx context.Context) ([]models.BankAccount, error) {
	var accounts []models.BankAccount
	if err := c.do(ctx, http.MethodGet, "/wallet/banks", nil, &accounts); err != nil {
		return nil, fmt.Errorf("list bank accounts: %w", err)
	}
	return accounts, nil
}
