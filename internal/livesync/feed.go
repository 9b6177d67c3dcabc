package livesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/livepredict/internal/cache"
	"github.com/rickgao/livepredict/internal/matchfeed"
	"github.com/rickgao/livepredict/internal/model"
)

// ErrNoFeed is returned by match reads when no feed is attached.
var ErrNoFeed = errors.New("match feed not configured")

// Feed is the external match feed.
type Feed interface {
	GetMatches(ctx context.Context, action, game string) ([]model.Match, error)
	GetMatch(ctx context.Context, matchID string) (*model.Match, error)
}

// AttachFeed sets the match feed read by Matches and FeedMatch.
func (s *Service) AttachFeed(f Feed) {
	s.feed = f
}

// Matches returns the feed's matches for action, filtered by game. An empty action
// returns running then upcoming matches and fails only when both lists fail.
func (s *Service) Matches(ctx context.Context, action, game string) ([]model.Match, error) {
	if s.feed == nil {
		return nil, ErrNoFeed
	}
	if action != "" {
		return s.matchList(ctx, action, game)
	}

	running, runErr := s.matchList(ctx, matchfeed.ActionRunning, game)
	upcoming, upErr := s.matchList(ctx, matchfeed.ActionUpcoming, game)
	if runErr != nil && upErr != nil {
		return nil, errors.Join(runErr, upErr)
	}
	for _, err := range []error{runErr, upErr} {
		if err != nil {
			s.logger.Warn("partial match list", "game", game, "err", err)
		}
	}

	out := make([]model.Match, 0, len(running)+len(upcoming))
	out = append(out, running...)
	return append(out, upcoming...), nil
}

// FeedMatch returns one match of the feed.
func (s *Service) FeedMatch(ctx context.Context, matchID string) (*model.Match, error) {
	if s.feed == nil {
		return nil, ErrNoFeed
	}
	m, err := cache.Fetch(ctx, s.store, FeedMatchKey(matchID), s.cfg.MatchInterval, func(ctx context.Context) (*model.Match, error) {
		return s.feed.GetMatch(ctx, matchID)
	})
	if err != nil {
		return nil, err
	}
	cp := *m
	return &cp, nil
}

func (s *Service) matchList(ctx context.Context, action, game string) ([]model.Match, error) {
	switch action {
	case matchfeed.ActionRunning, matchfeed.ActionUpcoming, matchfeed.ActionPast:
	default:
		return nil, fmt.Errorf("%w: unknown match action %q", ErrUnknownTopic, action)
	}
	return cache.Fetch(ctx, s.store, FeedKey(action, game), s.feedInterval(action), func(ctx context.Context) ([]model.Match, error) {
		return s.feed.GetMatches(ctx, action, game)
	})
}

// feedInterval is the refresh interval of a match list. Running matches change
// fastest; upcoming and past lists are refreshed rarely.
func (s *Service) feedInterval(action string) time.Duration {
	if action == matchfeed.ActionRunning {
		return s.cfg.RunningMatchesInterval
	}
	return s.cfg.UpcomingMatchesInterval
}
