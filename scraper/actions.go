package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/retriever/models"
)

// defaultActionTimeout applies when the configured per-action deadline is unset.
const defaultActionTimeout = 10 * time.Second

// executeActions runs the ordered list of planner actions on the page.
// If any action fails, it returns an error describing which action failed
// and how many completed successfully.
func executeActions(ctx context.Context, page *rod.Page, actions []models.Action, perAction time.Duration) error {
	if perAction <= 0 {
		perAction = defaultActionTimeout
	}
	for i, action := range actions {
		if err := executeSingleAction(ctx, page, action, perAction); err != nil {
			if re := classify(err, ""); models.CodeOf(re) != models.ErrCodeDriverProtocol {
				// Timeouts, cancellations and invalid input keep their code.
				return re
			}
			return models.NewRetrievalError(
				models.ErrCodeDriverProtocol,
				fmt.Sprintf("action %d (%s) failed after %d completed", i, action.Type, i),
				err,
			)
		}
	}
	return nil
}

// executeSingleAction dispatches a single action with its own timeout.
func executeSingleAction(ctx context.Context, page *rod.Page, action models.Action, timeout time.Duration) error {
	if action.Type == "wait" && action.Selector == "" {
		// A plain sleep may legitimately outlast the per-action deadline.
		timeout += time.Duration(action.Milliseconds) * time.Millisecond
	}
	actionCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p := page.Context(actionCtx)

	switch action.Type {
	case "wait":
		return execWait(p, action)
	case "click":
		return execClick(p, action)
	case "click_center":
		return execClickCenter(p)
	case "scroll":
		return execScroll(p, action)
	case "execute_js":
		return execJS(p, action)
	case "mute_autoplay":
		return execMuteAutoplay(p)
	default:
		return models.NewRetrievalError(models.ErrCodeInvalidInput, "unknown action type: "+action.Type, nil)
	}
}

// execWait either sleeps for a duration or waits for a CSS selector to appear.
func execWait(p *rod.Page, action models.Action) error {
	if action.Selector != "" {
		return p.WaitElementsMoreThan(action.Selector, 0)
	}
	return sleepCtx(p.GetContext(), time.Duration(action.Milliseconds)*time.Millisecond)
}

// execClick finds the element matching the selector and clicks it.
func execClick(p *rod.Page, action models.Action) error {
	if action.Selector == "" {
		return models.NewRetrievalError(models.ErrCodeInvalidInput, "click action requires a selector", nil)
	}
	el, err := p.Element(action.Selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", action.Selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// execClickCenter clicks whatever element sits in the middle of the
// viewport. Players start (or drop their overlay) on the first click.
func execClickCenter(p *rod.Page) error {
	_, err := p.Eval(`() => {
		try {
			const el = document.elementFromPoint(window.innerWidth / 2, window.innerHeight / 2);
			if (el) el.click();
		} catch (e) {}
	}`)
	return err
}

// execMuteAutoplay mutes every media element and asks it to play; muted
// playback is allowed without a user gesture.
func execMuteAutoplay(p *rod.Page) error {
	_, err := p.Eval(`() => {
		document.querySelectorAll('video, audio').forEach(m => {
			m.muted = true;
			const r = m.play();
			if (r && r.catch) r.catch(() => {});
		});
	}`)
	return err
}

// execScroll scrolls the page up or down by the specified number of viewports.
func execScroll(p *rod.Page, action models.Action) error {
	amount := action.Amount
	if amount <= 0 {
		amount = 1
	}

	res, err := p.Eval(`() => window.innerHeight`)
	if err != nil {
		return fmt.Errorf("failed to get viewport height: %w", err)
	}
	viewportHeight := res.Value.Int()

	for i := 0; i < amount; i++ {
		scrollDelta := viewportHeight
		if action.Direction == "up" {
			scrollDelta = -viewportHeight
		}
		if err := p.Mouse.Scroll(0, float64(scrollDelta), 0); err != nil {
			return fmt.Errorf("scroll step %d failed: %w", i, err)
		}
		// Let lazy-loaded content trigger between steps.
		if err := sleepCtx(p.GetContext(), 100*time.Millisecond); err != nil {
			return err
		}
	}
	return nil
}

// execJS evaluates arbitrary JavaScript in the page context.
func execJS(p *rod.Page, action models.Action) error {
	if action.Code == "" {
		return models.NewRetrievalError(models.ErrCodeInvalidInput, "execute_js action requires code", nil)
	}
	_, err := p.Eval(action.Code)
	return err
}
