package engine

import "time"

// Stage is a phase of a build.
type Stage string

const (
	// StageLoad reads the type cache.
	StageLoad Stage = "load"
	// StageTransform rewrites one module and records its facts.
	StageTransform Stage = "transform"
	// StageCheck runs the consistency checker.
	StageCheck Stage = "check"
	// StageSave writes the type cache.
	StageSave Stage = "save"
)

// Status captures progress within a stage.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusWorking Status = "working"
	StatusDone    Status = "done"
	// StatusSkipped marks modules that were excluded or could not be found.
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

// Event reports progress for a module, or for the whole build when Module is empty.
type Event struct {
	// Module is the root-relative id.
	Module  string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// Sink consumes progress events. OnEvent may be called concurrently.
type Sink interface {
	OnEvent(Event)
}

// ChannelSink forwards events into a channel.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(evt Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- evt
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) OnEvent(evt Event) {
	if f != nil {
		f(evt)
	}
}
