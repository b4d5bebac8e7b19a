package session

import (
	"github.com/google/uuid"

	"github.com/kalambet/chesscoach/internal/coach"
	"github.com/kalambet/chesscoach/internal/storage"
)

// HistoryStore is the part of storage.Store the recorder writes to.
type HistoryStore interface {
	SaveRun(r storage.Run) error
	SaveSchedule(rec storage.ScheduleRecord) error
}

type storeRecorder struct {
	store HistoryStore
}

// NewStoreRecorder records runs and schedule submissions in store.
func NewStoreRecorder(store HistoryStore) Recorder {
	return storeRecorder{store: store}
}

func (r storeRecorder) RecordRun(date string, h coach.RunHandle) error {
	return r.store.SaveRun(storage.Run{RunID: h.RunID, Date: date})
}

func (r storeRecorder) RecordSchedule(draft coach.ScheduleDraft, status int) error {
	return r.store.SaveSchedule(storage.ScheduleRecord{
		ID:         uuid.New().String(),
		Date:       draft.Date,
		Frequency:  draft.Frequency.String(),
		StatusCode: status,
	})
}
