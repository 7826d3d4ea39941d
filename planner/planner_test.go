package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/retriever/llm"
	"github.com/use-agent/retriever/models"
)

type fakeChatter struct {
	reply string
	err   error
	calls int
}

func (f *fakeChatter) Chat(context.Context, []llm.Message, llm.ChatOptions) (*llm.ChatResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResult{Content: f.reply}, nil
}

func TestStatic_Plan(t *testing.T) {
	p := NewStatic()

	first, err := p.Plan(context.Background(), models.PageState{Attempt: 1})
	require.NoError(t, err)
	assert.Equal(t, DefaultActions, first)

	second, err := p.Plan(context.Background(), models.PageState{Attempt: 2})
	require.NoError(t, err)
	require.Len(t, second, len(DefaultActions)+1)
	assert.Equal(t, "scroll", second[2].Type)
	assert.Equal(t, "click_center", second[3].Type)
}

func TestLLM_Plan(t *testing.T) {
	c := &fakeChatter{reply: "```json\n{\"actions\":[{\"type\":\"click\",\"selector\":\".xgplayer-start\"},{\"type\":\"wait\",\"milliseconds\":8000}]}\n```"}
	actions, err := NewLLM(c, nil).Plan(context.Background(), models.PageState{URL: "https://www.douyin.com/video/1"})
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, ".xgplayer-start", actions[0].Selector)
	assert.Equal(t, 8000, actions[1].Milliseconds)
}

func TestLLM_FallsBack(t *testing.T) {
	tests := map[string]*fakeChatter{
		"model error":            {err: errors.New("boom")},
		"not json":               {reply: "click the player"},
		"empty":                  {reply: `{"actions":[]}`},
		"unsupported type":       {reply: `{"actions":[{"type":"navigate"}]}`},
		"click without selector": {reply: `{"actions":[{"type":"click"},{"type":"wait","milliseconds":500}]}`},
		"js without code":        {reply: `{"actions":[{"type":"mute_autoplay"},{"type":"execute_js"}]}`},
		"empty wait":             {reply: `{"actions":[{"type":"wait"}]}`},
		"bad scroll direction":   {reply: `{"actions":[{"type":"scroll","direction":"left"}]}`},
	}
	for name, c := range tests {
		t.Run(name, func(t *testing.T) {
			actions, err := NewLLM(c, nil).Plan(context.Background(), models.PageState{Attempt: 1})
			require.NoError(t, err)
			assert.Equal(t, DefaultActions, actions)
			assert.Equal(t, 1, c.calls)
		})
	}
}

func TestLLM_CanceledDoesNotFallBack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLLM(&fakeChatter{err: context.Canceled}, nil).Plan(ctx, models.PageState{})
	assert.Equal(t, models.ErrCodeCanceled, models.CodeOf(err))
}
