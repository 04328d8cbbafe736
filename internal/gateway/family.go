package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dukerupert/dailyquestion/internal/apperr"
	"github.com/dukerupert/dailyquestion/internal/model"
)

// FamilyClient talks to the family service. It implements Roster and Points.
type FamilyClient struct {
	client
}

func NewFamilyClient(baseURL string, opts ...Option) *FamilyClient {
	return &FamilyClient{client: newClient(baseURL, opts)}
}

type memberResponse struct {
	UserID     int64  `json:"userId"`
	Nickname   string `json:"nickname"`
	ZodiacSign string `json:"zodiacSign"`
	Color      string `json:"color"`
}

type familyResponse struct {
	FamilyID int64 `json:"familyId"`
}

type statusRequest struct {
	FamilyID int64 `json:"familyId"`
	Amount   int   `json:"amount"`
}

func (c *FamilyClient) ListFamilyIDs(ctx context.Context, after int64, limit int) ([]int64, error) {
	q := url.Values{}
	q.Set("after", strconv.FormatInt(after, 10))
	q.Set("limit", strconv.Itoa(limit))

	var resp envelope[[]int64]
	if err := c.do(ctx, http.MethodGet, "/client/family/ids", q, nil, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, apperr.Upstream("list family ids", err)
		}
		return nil, err
	}
	return resp.Data, nil
}

func (c *FamilyClient) FamilyMembers(ctx context.Context, familyID int64) ([]model.FamilyMember, error) {
	q := url.Values{}
	q.Set("familyId", strconv.FormatInt(familyID, 10))

	var resp envelope[[]memberResponse]
	if err := c.do(ctx, http.MethodGet, "/client/family/members", q, nil, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, apperr.Upstream("list family members", err)
		}
		return nil, err
	}

	members := make([]model.FamilyMember, 0, len(resp.Data))
	for _, m := range resp.Data {
		members = append(members, model.FamilyMember{
			ID:         m.UserID,
			Nickname:   m.Nickname,
			ZodiacSign: m.ZodiacSign,
			Color:      m.Color,
		})
	}
	return members, nil
}

func (c *FamilyClient) FamilyOf(ctx context.Context, memberID int64) (int64, error) {
	q := url.Values{}
	q.Set("userId", strconv.FormatInt(memberID, 10))

	var resp envelope[familyResponse]
	if err := c.do(ctx, http.MethodGet, "/client/family", q, nil, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return 0, apperr.ErrMemberNotFound
		}
		return 0, err
	}
	if resp.Data.FamilyID == 0 {
		return 0, apperr.ErrMemberNotFound
	}
	return resp.Data.FamilyID, nil
}

func (c *FamilyClient) ApplyDelta(ctx context.Context, familyID int64, amount int) error {
	err := c.do(ctx, http.MethodPut, "/client/family/status", nil, statusRequest{FamilyID: familyID, Amount: amount}, nil)
	if errors.Is(err, errNotFound) {
		return apperr.Upstream("apply points", err)
	}
	return err
}
