package livesync

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Query keys and view topics.
const (
	KeyActiveMarkets = "activeMarkets"
	KeyTotalVolume   = "totalVolume"
	KeyProtocolFees  = "protocolFees"
	KeyFeeRate       = "feeRate"

	TopicActiveMarkets = KeyActiveMarkets
	TopicBalance       = "balance"
	TopicUserBets      = "userBets"
	TopicStats         = "stats"
	TopicMatches       = "matches"
)

// ErrUnknownTopic is returned for a topic no view can watch.
var ErrUnknownTopic = errors.New("unknown topic")

func MarketKey(id int64) string       { return "market:" + strconv.FormatInt(id, 10) }
func MarketBetsKey(id int64) string   { return "marketBets:" + strconv.FormatInt(id, 10) }
func MatchKey(matchID string) string  { return "match:" + matchID }
func BalanceKey(owner string) string  { return "balance:" + owner }
func UserBetsKey(owner string) string { return "userBets:" + owner }
func MutationKey(name string) string  { return "mutation:" + name }

// FeedKey is the query key of a match list of the feed.
func FeedKey(action, game string) string { return "feed:" + action + ":" + game }

// FeedMatchKey is the query key of a single feed match.
func FeedMatchKey(matchID string) string { return "feedMatch:" + matchID }

// topic is a parsed view topic.
type topic struct {
	kind     string // activeMarkets, match, market, marketBets, balance, userBets, stats, matches
	matchID  string
	marketID int64
	game     string
}

func parseTopic(s string) (topic, error) {
	switch s {
	case TopicActiveMarkets, TopicBalance, TopicUserBets, TopicStats, TopicMatches:
		return topic{kind: s}, nil
	}

	kind, arg, ok := strings.Cut(s, ":")
	if !ok || arg == "" {
		return topic{}, fmt.Errorf("%w: %q", ErrUnknownTopic, s)
	}

	switch kind {
	case "match":
		return topic{kind: kind, matchID: arg}, nil
	case TopicMatches:
		return topic{kind: kind, game: arg}, nil
	case "market", "marketBets":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return topic{}, fmt.Errorf("%w: %q: bad market id", ErrUnknownTopic, s)
		}
		return topic{kind: kind, marketID: id}, nil
	}
	return topic{}, fmt.Errorf("%w: %q", ErrUnknownTopic, s)
}

// topicForKey maps an invalidated query key to the view topic refreshing it.
func topicForKey(key string) string {
	switch key {
	case KeyTotalVolume, KeyProtocolFees, KeyFeeRate:
		return TopicStats
	}
	switch {
	case strings.HasPrefix(key, "balance:"):
		return TopicBalance
	case strings.HasPrefix(key, "userBets:"):
		return TopicUserBets
	case strings.HasPrefix(key, "feed:"):
		// feed:<action>:<game>
		parts := strings.SplitN(key, ":", 3)
		if len(parts) == 3 && parts[2] != "" {
			return TopicMatches + ":" + parts[2]
		}
		return TopicMatches
	}
	return key
}
