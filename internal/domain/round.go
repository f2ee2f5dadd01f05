package domain

import "time"

// RoundPreviewLen bounds the DM response excerpt quoted back into context.
const RoundPreviewLen = 100

// GameRound is one resolved round. Immutable once appended to Room.History.
type GameRound struct {
	Number    int
	Actions   map[string]string
	Response  string
	Timestamp time.Time
}

func NewGameRound(number int, actions map[string]string, response string) GameRound {
	return GameRound{
		Number:    number,
		Actions:   actions,
		Response:  response,
		Timestamp: time.Now(),
	}
}

// Truncate cuts s to at most n runes. Counting runes keeps the limit
// meaningful for non-ASCII world text.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
