package matchfeed

// APIMatch represents a match from the PandaScore API.
type APIMatch struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Slug          string `json:"slug"`
	Status        string `json:"status"`
	ScheduledAt   string `json:"scheduled_at"`
	BeginAt       string `json:"begin_at"`
	NumberOfGames int    `json:"number_of_games"`

	Videogame  APIVideogame  `json:"videogame"`
	League     *APINamed     `json:"league"`
	Tournament *APINamed     `json:"tournament"`
	Opponents  []APIOpponent `json:"opponents"`
	Results    []APIResult   `json:"results"`
	Games      []APIGame     `json:"games"`
}

// APIVideogame identifies the game of a match.
type APIVideogame struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// APINamed is a league or tournament reference.
type APINamed struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// APIOpponent wraps a team taking part in a match.
type APIOpponent struct {
	Opponent APITeam `json:"opponent"`
}

// APITeam is a competing team.
type APITeam struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Acronym  *string `json:"acronym"`
	ImageURL *string `json:"image_url"`
}

// APIResult is a team's score in a match.
type APIResult struct {
	TeamID int64 `json:"team_id"`
	Score  int   `json:"score"`
}

// APIGame is one game (map) of a match.
type APIGame struct {
	ID     int64 `json:"id"`
	Winner *struct {
		ID int64 `json:"id"`
	} `json:"winner"`
}
