package matchfeed

import (
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/livepredict/internal/model"
)

// IDPrefix marks match ids that come from this feed.
const IDPrefix = "ps-"

// Game labels used in normalized matches.
const (
	GameCS2      = "cs2"
	GameValorant = "valorant"
	GameLeague   = "league"
	GameDota2    = "dota2"
)

// MatchID returns the normalized id of a feed match.
func MatchID(feedID int64) string {
	return IDPrefix + strconv.FormatInt(feedID, 10)
}

// FeedID strips the "ps-" prefix from a normalized id.
func FeedID(matchID string) string {
	return strings.TrimPrefix(matchID, IDPrefix)
}

// GameSlug maps a game label to the feed's videogame filter.
func GameSlug(game string) string {
	if game == GameCS2 {
		return "csgo"
	}
	return game
}

// ToModel converts a feed match into the normalized model.
func (m *APIMatch) ToModel() model.Match {
	out := model.Match{
		ID:         MatchID(m.ID),
		Status:     normalizeStatus(m.Status),
		Game:       gameLabel(m.Videogame.Slug),
		Tournament: "Tournament",
		StartTime:  startTime(m.ScheduledAt, m.BeginAt),
	}

	switch {
	case m.Tournament != nil && m.Tournament.Name != "":
		out.Tournament = m.Tournament.Name
	case m.League != nil && m.League.Name != "":
		out.Tournament = m.League.Name
	}

	var a, b *APITeam
	if len(m.Opponents) > 0 {
		a = &m.Opponents[0].Opponent
	}
	if len(m.Opponents) > 1 {
		b = &m.Opponents[1].Opponent
	}
	out.TeamA = m.team(a)
	out.TeamB = m.team(b)

	for _, g := range m.Games {
		if g.Winner == nil {
			continue
		}
		switch {
		case a != nil && g.Winner.ID == a.ID:
			out.MapsA++
		case b != nil && g.Winner.ID == b.ID:
			out.MapsB++
		}
	}

	return out
}

func (m *APIMatch) team(t *APITeam) model.Team {
	if t == nil {
		return model.Team{ID: "unknown", Name: "TBD", ShortName: "TBD"}
	}

	team := model.Team{
		ID:        strconv.FormatInt(t.ID, 10),
		Name:      t.Name,
		ShortName: shortName(t),
	}
	if team.Name == "" {
		team.Name = "TBD"
	}
	if t.ImageURL != nil {
		team.Logo = *t.ImageURL
	}
	for _, r := range m.Results {
		if r.TeamID == t.ID {
			team.Score = r.Score
		}
	}
	return team
}

func shortName(t *APITeam) string {
	if t.Acronym != nil && *t.Acronym != "" {
		return *t.Acronym
	}
	if t.Name == "" {
		return "TBD"
	}
	r := []rune(t.Name)
	if len(r) > 4 {
		r = r[:4]
	}
	return string(r)
}

func normalizeStatus(s string) model.MatchStatus {
	switch s {
	case "running":
		return model.MatchRunning
	case "finished":
		return model.MatchFinished
	}
	return model.MatchNotStarted
}

func gameLabel(slug string) string {
	slug = strings.ToLower(slug)
	switch {
	case strings.Contains(slug, "valorant"):
		return GameValorant
	case strings.Contains(slug, "league"), strings.Contains(slug, "lol"):
		return GameLeague
	case strings.Contains(slug, "dota"):
		return GameDota2
	}
	return GameCS2
}

// startTime prefers the scheduled time and falls back to the begin time.
func startTime(scheduledAt, beginAt string) *time.Time {
	for _, s := range []string{scheduledAt, beginAt} {
		if s == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return &t
		}
	}
	return nil
}
