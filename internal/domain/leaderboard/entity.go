// Package leaderboard содержит модель рейтингов пользователей и кланов.
// Рейтинг - это проекция, которая строится из событий начисления XP
// и никогда не является источником истины для прогресса.
package leaderboard

import (
	"fmt"
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Board - вид рейтинга.
type Board string

const (
	// BoardUsers - рейтинг пользователей по текущему XP.
	BoardUsers Board = "users"

	// BoardClans - рейтинг кланов по TotalXP.
	BoardClans Board = "clans"
)

// IsValid проверяет, что вид рейтинга известен.
func (b Board) IsValid() bool {
	return b == BoardUsers || b == BoardClans
}

// String возвращает строковое представление.
func (b Board) String() string {
	return string(b)
}

// ParseBoard разбирает вид рейтинга, пустая строка означает BoardUsers.
func ParseBoard(s string) (Board, error) {
	if s == "" {
		return BoardUsers, nil
	}
	b := Board(s)
	if !b.IsValid() {
		return "", fmt.Errorf("unknown leaderboard %q", s)
	}
	return b, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Entry - одна позиция рейтинга.
type Entry struct {
	// ID - идентификатор пользователя или клана.
	ID string

	// Score - очки, по которым строится рейтинг.
	Score int64

	// Rank - позиция, начиная с 1. 0 означает "вне рейтинга".
	Rank int
}

// Less задаёт порядок рейтинга: очки по убыванию, при равенстве -
// ID в обратном лексикографическом порядке, как ZREVRANGE в Redis.
func Less(a, b Entry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ID > b.ID
}

// Sort упорядочивает записи и проставляет ранги, начиная с offset+1.
func Sort(entries []Entry, offset int) {
	sort.Slice(entries, func(i, j int) bool { return Less(entries[i], entries[j]) })
	for i := range entries {
		entries[i].Rank = offset + i + 1
	}
}

// Page - страница рейтинга.
type Page struct {
	Board   Board
	Entries []Entry
	Total   int
	Offset  int
}

// HasMore сообщает, есть ли записи после страницы.
func (p Page) HasMore() bool {
	return p.Offset+len(p.Entries) < p.Total
}
