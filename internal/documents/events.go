package documents

import "time"

// Stage is a step of the compile state machine.
type Stage string

const (
	StageValidating        Stage = "validating"
	StageApplyingDeltas    Stage = "applying_deltas"
	StageRecompilingBlocks Stage = "recompiling_blocks"
	StageAssembling        Stage = "assembling"
	StageConverting        Stage = "converting"
	StagePersisting        Stage = "persisting"
	StageDone              Stage = "done"
	StageFailed            Stage = "failed"
)

// Event reports a stage transition of one compile call.
type Event struct {
	DocumentID string    `json:"document_id"`
	Stage      Stage     `json:"stage"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// EventSink receives compile events. Publish must not block.
type EventSink interface {
	Publish(Event)
}

type nopSink struct{}

func (nopSink) Publish(Event) {}
