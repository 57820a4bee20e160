package game

import (
	"time"

	"volare/internal/bets"
)

// Round is one play of rising-multiplier-until-crash. The crash point and seed
// are fixed at creation and stay hidden until the round crashes; the
// commitment (hash of the seed) is public from creation.
type Round struct {
	ID         string
	Status     bets.RoundStatus
	Multiplier float64
	CrashPoint float64
	Seed       string
	Commitment string
	StartTime  time.Time // scheduled takeoff while WAITING, actual while FLYING
}

// StateView is the externally visible shape of the current round. The crash
// point and seed appear only once the round has crashed.
type StateView struct {
	ID         string  `json:"id"`
	Status     string  `json:"status"`
	Multiplier float64 `json:"multiplier"`
	StartTime  int64   `json:"start_time"`
	Commitment string  `json:"hash"`
	CrashPoint float64 `json:"crash_point,omitempty"`
	Seed       string  `json:"seed,omitempty"`
}

func (r *Round) view() StateView {
	v := StateView{
		ID:         r.ID,
		Status:     string(r.Status),
		Multiplier: r.Multiplier,
		StartTime:  r.StartTime.UnixMilli(),
		Commitment: r.Commitment,
	}
	if r.Status == bets.StatusCrashed {
		v.CrashPoint = r.CrashPoint
		v.Seed = r.Seed
	}
	return v
}
