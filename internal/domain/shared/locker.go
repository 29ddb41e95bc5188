package shared

import "context"

// Locker serializes mutations of a single logical record.
// Lock blocks until the key is held or ctx is done; the returned function
// releases it and is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Lock keys. Callers that need several locks acquire them in the order
// habit, user, clan and never the other way round.

// HabitLockKey serializes completions of one habit by its owner.
func HabitLockKey(habitID, userID string) string {
	return "habit:" + habitID + ":" + userID
}

// UserLockKey serializes xp, level, points and extra-life mutations of a user.
func UserLockKey(userID string) string {
	return "user:" + userID
}

// ClanLockKey serializes clan totals and member ledgers.
func ClanLockKey(clanID string) string {
	return "clan:" + clanID
}
