// Package planner chooses the DOM interaction sequence run on a video page
// before its network traffic is read.
package planner

import (
	"context"

	"github.com/use-agent/retriever/models"
)

// DefaultActions starts most players: give the page time to boot, mute
// so autoplay is allowed, click the centre to start playback or dismiss
// an overlay, then let the media requests go out.
var DefaultActions = []models.Action{
	{Type: "wait", Milliseconds: 5000},
	{Type: "mute_autoplay"},
	{Type: "click_center"},
	{Type: "wait", Milliseconds: 10000},
}

// Static always returns the same sequence.
type Static struct {
	actions []models.Action
}

// NewStatic returns a planner for actions, or DefaultActions when empty.
func NewStatic(actions ...models.Action) *Static {
	if len(actions) == 0 {
		actions = DefaultActions
	}
	return &Static{actions: actions}
}

// Plan returns a copy of the configured sequence. Later attempts scroll
// once before clicking, which brings lazily mounted players into view.
func (s *Static) Plan(_ context.Context, state models.PageState) ([]models.Action, error) {
	out := make([]models.Action, 0, len(s.actions)+1)
	for _, a := range s.actions {
		if a.Type == "click_center" && state.Attempt > 1 {
			out = append(out, models.Action{Type: "scroll", Amount: 1, Direction: "down"})
		}
		out = append(out, a)
	}
	return out, nil
}
