package livesync

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rickgao/livepredict/internal/model"
	"github.com/rickgao/livepredict/internal/poller"
)

// ErrViewClosed is returned by Watch after the view is closed.
var ErrViewClosed = errors.New("view closed")

// Update is one refresh of a watched topic.
type Update struct {
	Topic string
	Data  any
	Err   error
}

// View is a set of watched topics owned by one consumer. Each topic is polled at
// its interval and refetched as soon as one of its keys is invalidated.
type View struct {
	svc   *Service
	scope *poller.Scope

	unsubOnce sync.Once
	unsub     func()
	stopAfter func() bool
}

// NewView creates a view that lives until ctx ends or Close is called.
func (s *Service) NewView(ctx context.Context) *View {
	v := &View{
		svc:   s,
		scope: s.sched.NewScope(ctx),
	}
	v.unsub = s.store.Subscribe(v.onInvalidate)
	v.stopAfter = context.AfterFunc(ctx, v.unsubscribe)
	return v
}

// Watch starts refreshing topic and calls emit with every result. emit may be
// called from several goroutines, one per topic. Watching a topic twice is a no-op.
func (v *View) Watch(name string, emit func(Update)) error {
	tp, err := parseTopic(name)
	if err != nil {
		return err
	}

	fetch := v.fetcher(tp)
	task := func(ctx context.Context) error {
		data, err := fetch(ctx)
		emit(Update{Topic: name, Data: data, Err: err})
		return err
	}

	if !v.scope.Register(name, v.interval(tp), task) {
		select {
		case <-v.scope.Done():
			return ErrViewClosed
		default:
		}
	}
	return nil
}

// Unwatch stops refreshing topic.
func (v *View) Unwatch(name string) {
	v.scope.Cancel(name)
}

// Topics returns the watched topics, sorted.
func (v *View) Topics() []string {
	keys := v.scope.Keys()
	sort.Strings(keys)
	return keys
}

// Close stops every topic and waits for in-flight refreshes to return.
func (v *View) Close() {
	v.stopAfter()
	v.unsubscribe()
	v.scope.Close()
}

func (v *View) unsubscribe() {
	v.unsubOnce.Do(v.unsub)
}

func (v *View) onInvalidate(key string) {
	v.scope.Trigger(topicForKey(key))
}

func (v *View) interval(tp topic) time.Duration {
	cfg := v.svc.cfg
	switch tp.kind {
	case TopicBalance, TopicUserBets:
		return cfg.AccountInterval
	case TopicStats:
		return cfg.StatsInterval
	case TopicMatches:
		return cfg.RunningMatchesInterval
	}
	return cfg.MarketsInterval
}

func (v *View) fetcher(tp topic) func(ctx context.Context) (any, error) {
	s := v.svc
	switch tp.kind {
	case TopicActiveMarkets:
		return func(ctx context.Context) (any, error) {
			return s.ActiveMarkets(ctx)
		}
	case "match":
		return func(ctx context.Context) (any, error) {
			return s.MatchMarkets(ctx, tp.matchID)
		}
	case "market":
		return func(ctx context.Context) (any, error) {
			return s.Market(ctx, tp.marketID)
		}
	case "marketBets":
		return func(ctx context.Context) (any, error) {
			return s.MarketBets(ctx, tp.marketID)
		}
	case TopicBalance:
		return func(ctx context.Context) (any, error) {
			if s.wallet == nil {
				return model.BaselineWalletState(), nil
			}
			if _, ok := s.wallet.Owner(); !ok {
				return s.wallet.Wallet(), nil
			}
			err := s.wallet.RefreshBalance(ctx)
			return s.wallet.Wallet(), err
		}
	case TopicUserBets:
		return func(ctx context.Context) (any, error) {
			owner, ok := s.owner()
			if !ok {
				return []model.LedgerBet{}, nil
			}
			return s.UserBets(ctx, owner)
		}
	case TopicMatches:
		return func(ctx context.Context) (any, error) {
			return s.Matches(ctx, "", tp.game)
		}
	default:
		return func(ctx context.Context) (any, error) {
			return s.Stats(ctx)
		}
	}
}
