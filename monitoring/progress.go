package monitoring

import (
	"encoding/json"
	"sync"
	"time"
)

// A ProgressBar follows a long job over a number of sectors, such as a
// surface scan. The monitor lists it until it is completed.
type ProgressBar struct {
	lock sync.Mutex

	id         string
	name       string
	start      time.Time
	total      uint64
	inProgress uint64
	finished   uint64
	failed     uint64
}

// Name returns the name the bar was created with.
func (b *ProgressBar) Name() string {
	return b.name
}

// IncrementInProgress marks sectors as being worked on.
func (b *ProgressBar) IncrementInProgress(amount uint64) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.inProgress += amount
}

// MoveInProgressToFinished marks sectors in progress as done.
func (b *ProgressBar) MoveInProgressToFinished(amount uint64) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.inProgress -= amount
	b.finished += amount
}

// MoveInProgressToFailed marks sectors in progress as done with an error.
// They count as finished too.
func (b *ProgressBar) MoveInProgressToFailed(amount uint64) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.inProgress -= amount
	b.finished += amount
	b.failed += amount
}

// Percent returns the finished share of the total, from 0 to 100.
func (b *ProgressBar) Percent() float64 {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.total == 0 {
		return 100
	}

	return 100 * float64(b.finished) / float64(b.total)
}

type progressRsp struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	Total      uint64    `json:"total"`
	InProgress uint64    `json:"in_progress"`
	Finished   uint64    `json:"finished"`
	Failed     uint64    `json:"failed"`
}

// MarshalJSON encodes a consistent snapshot of the bar.
func (b *ProgressBar) MarshalJSON() ([]byte, error) {
	b.lock.Lock()
	rsp := progressRsp{
		ID:         b.id,
		Name:       b.name,
		StartTime:  b.start,
		Total:      b.total,
		InProgress: b.inProgress,
		Finished:   b.finished,
		Failed:     b.failed,
	}
	b.lock.Unlock()

	return json.Marshal(rsp)
}
