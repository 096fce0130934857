package processor

import (
	"github.com/dustin/go-humanize"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/pictools/internal/model"
)

// Observer receives progress notifications from the stages.
type Observer interface {
	OnJobStart(stage string, job model.Job, items int)
	OnItemStart(stage, item string)
	OnItemDone(stage, item string, before, after int64)
}

// NopObserver ignores all notifications.
type NopObserver struct{}

func (NopObserver) OnJobStart(string, model.Job, int)       {}
func (NopObserver) OnItemStart(string, string)              {}
func (NopObserver) OnItemDone(string, string, int64, int64) {}

// LogObserver reports progress through the application logger.
type LogObserver struct{}

// OnJobStart logs the number of items a stage found for a job.
func (LogObserver) OnJobStart(stage string, job model.Job, items int) {
	zlog.Logger.Info().
		Str("stage", stage).
		Str("dir", job.Dir()).
		Int("items", items).
		Msg("found items")
}

// OnItemStart logs the item about to be processed.
func (LogObserver) OnItemStart(stage, item string) {
	zlog.Logger.Debug().Str("stage", stage).Str("item", item).Msg("processing")
}

// OnItemDone logs the byte sizes before and after processing.
func (LogObserver) OnItemDone(stage, item string, before, after int64) {
	zlog.Logger.Debug().
		Str("stage", stage).
		Str("item", item).
		Str("before", humanize.Bytes(uint64(max(before, 0)))).
		Str("after", humanize.Bytes(uint64(max(after, 0)))).
		Msg("done")
}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return NopObserver{}
	}

	return o
}
