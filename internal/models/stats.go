package models

import "github.com/shopspring/decimal"

type GameStats struct {
	TotalGames   int64           `json:"total_games"`
	TotalWins    int64           `json:"total_wins"`
	TotalLosses  int64           `json:"total_losses"`
	TotalWagered decimal.Decimal `json:"total_wagered"`
	TotalWon     decimal.Decimal `json:"total_won"`
	BiggestWin   decimal.Decimal `json:"biggest_win"`
	WinRate      float64         `json:"win_rate"`
}

// Record returns the aggregate after one more round. A round counts as a
// win when won > 0. Rounds are never reversed.
func (s GameStats) Record(wagered, won decimal.Decimal) GameStats {
	next := s
	next.TotalGames++
	next.TotalWagered = s.TotalWagered.Add(wagered)
	next.TotalWon = s.TotalWon.Add(won)
	if won.GreaterThan(s.BiggestWin) {
		next.BiggestWin = won
	}

	if won.IsPositive() {
		next.TotalWins++
	} else {
		next.TotalLosses++
	}

	next.WinRate = WinRate(next.TotalWins, next.TotalGames)
	return next
}

// WinRate is wins/games as a percentage, 0 when no game was played.
func WinRate(wins, games int64) float64 {
	if games == 0 {
		return 0
	}
	return float64(wins) / float64(games) * 100
}
