package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"cjses/internal/engine"
	"cjses/internal/ui"
)

type buildOutcome struct {
	result *checkResult
	err    error
}

// runWithUI runs build while a progress view consumes its events.
func runWithUI(ctx context.Context, title string, build func(ctx context.Context, sink engine.Sink) (*checkResult, error)) (*checkResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan engine.Event, 256)
	outcomeCh := make(chan buildOutcome, 1)
	go func() {
		res, err := build(ctx, engine.ChannelSink{Ch: events})
		close(events)
		outcomeCh <- buildOutcome{result: res, err: err}
	}()

	program := tea.NewProgram(ui.NewProgressModel(title, events), tea.WithOutput(os.Stderr), tea.WithContext(ctx))
	final, uiErr := program.Run()
	if aborted, ok := final.(interface{ Interrupted() bool }); uiErr != nil || (ok && aborted.Interrupted()) {
		cancel()
	}
	go func() {
		for range events {
		}
	}()
	outcome := <-outcomeCh
	if uiErr != nil && outcome.err == nil {
		return outcome.result, uiErr
	}
	return outcome.result, outcome.err
}
