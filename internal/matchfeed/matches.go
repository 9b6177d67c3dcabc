package matchfeed

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/livepredict/internal/model"
)

// Match list actions.
const (
	ActionRunning  = "running"
	ActionUpcoming = "upcoming"
	ActionPast     = "past"
)

// GetMatches fetches one page of matches for an action, optionally filtered by game label.
func (c *Client) GetMatches(ctx context.Context, action, game string) ([]model.Match, error) {
	switch action {
	case ActionRunning, ActionUpcoming, ActionPast:
	default:
		return nil, fmt.Errorf("get matches: unknown action %q", action)
	}

	query := url.Values{}
	query.Set("page[size]", strconv.Itoa(c.pageSize))
	if game != "" {
		query.Set("filter[videogame]", GameSlug(game))
	}

	var resp []APIMatch
	if err := c.get(ctx, "/matches/"+action, query, &resp); err != nil {
		return nil, fmt.Errorf("get %s matches: %w", action, err)
	}

	out := make([]model.Match, 0, len(resp))
	for i := range resp {
		out = append(out, resp[i].ToModel())
	}
	return out, nil
}

// ListMatches returns running then upcoming matches, fetched concurrently.
// It fails only when both lists fail.
func (c *Client) ListMatches(ctx context.Context, game string) ([]model.Match, error) {
	var (
		lists [2][]model.Match
		errs  [2]error
	)

	var g errgroup.Group
	for i, action := range []string{ActionRunning, ActionUpcoming} {
		g.Go(func() error {
			lists[i], errs[i] = c.GetMatches(ctx, action, game)
			return nil
		})
	}
	g.Wait()

	if errs[0] != nil && errs[1] != nil {
		return nil, errors.Join(errs[0], errs[1])
	}
	for _, err := range errs {
		if err != nil {
			c.logger.Warn("partial match list", "game", game, "err", err)
		}
	}

	return append(lists[0], lists[1]...), nil
}

// GetMatch fetches one match by normalized ("ps-42") or raw ("42") id.
func (c *Client) GetMatch(ctx context.Context, matchID string) (*model.Match, error) {
	id := FeedID(matchID)
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return nil, fmt.Errorf("get match %s: %w", matchID, ErrNotFound)
	}

	var resp APIMatch
	if err := c.get(ctx, "/matches/"+id, nil, &resp); err != nil {
		return nil, fmt.Errorf("get match %s: %w", matchID, err)
	}

	m := resp.ToModel()
	return &m, nil
}
