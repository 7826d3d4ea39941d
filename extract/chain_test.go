package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/retriever/config"
	"github.com/use-agent/retriever/models"
	"github.com/use-agent/retriever/simhash"
)

func testValidator() *Validator {
	return NewValidator(config.ValidatorConfig{
		MinLength:         300,
		ErrorMarkers:      config.DefaultErrorMarkers,
		MarkerWindow:      2000,
		MinStreamBytes:    100 * 1024,
		BlockPageDistance: 3,
	}, simhash.NewBlockPageIndex(3))
}

func articleTask() *models.RetrievalTask {
	return &models.RetrievalTask{URL: "https://medium.com/p/abc", Kind: models.KindArticle, Attempt: 1}
}

func TestChain_FallbackOrdering(t *testing.T) {
	s1 := &countingStrategy{name: "one", result: &models.ExtractionResult{Content: "too short"}}
	s2 := &countingStrategy{name: "two", result: &models.ExtractionResult{Content: "Access denied. " + longText(20)}}
	s3 := &countingStrategy{name: "three", result: &models.ExtractionResult{Content: longText(20)}}
	s4 := &countingStrategy{name: "four", result: &models.ExtractionResult{Content: longText(20)}}

	chain := NewChain(testValidator(), s1, s2, s3, s4)
	out := chain.Run(context.Background(), &fakeDriver{}, articleTask())

	require.Equal(t, models.OutcomeSuccess, out.Kind)
	assert.Equal(t, "three", out.Result.Strategy)
	assert.Equal(t, []string{"one", "two", "three"}, out.Tried)
	assert.Equal(t, 1, s1.calls)
	assert.Equal(t, 1, s2.calls)
	assert.Equal(t, 1, s3.calls)
	assert.Equal(t, 0, s4.calls, "chain short-circuits after the first accepted result")
	assert.Greater(t, out.Result.Signals.Length, 300)
}

func TestChain_Exhausted(t *testing.T) {
	s1 := &countingStrategy{name: "one", result: &models.ExtractionResult{Content: "short"}}
	s2 := &countingStrategy{name: "two"}
	s3 := &countingStrategy{name: "three", err: models.NewRetrievalError(models.ErrCodeDriverTimeout, "nav", nil)}

	out := NewChain(testValidator(), s1, s2, s3).Run(context.Background(), &fakeDriver{}, articleTask())

	require.Equal(t, models.OutcomeFatal, out.Kind)
	require.NotNil(t, out.Reason)
	assert.Equal(t, models.ErrCodeChainExhausted, out.Reason.Code)
	assert.True(t, models.IsRetryable(out.Reason.Code))
	assert.Equal(t, []string{"one", "two", "three"}, out.Tried)
	assert.Equal(t, "three", out.Reason.Strategy)
	assert.Contains(t, out.Reason.Message, "one:")
	assert.Contains(t, out.Reason.Message, "two: no candidate")
}

func TestChain_DriverErrorFallsThrough(t *testing.T) {
	s1 := &countingStrategy{name: "one", err: models.NewRetrievalError(models.ErrCodeDriverProtocol, "ws closed", nil)}
	s2 := &countingStrategy{name: "two", result: &models.ExtractionResult{Content: longText(20)}}

	out := NewChain(testValidator(), s1, s2).Run(context.Background(), &fakeDriver{}, articleTask())
	require.Equal(t, models.OutcomeSuccess, out.Kind)
	assert.Equal(t, "two", out.Result.Strategy)
}

func TestChain_CanceledStrategyStopsChain(t *testing.T) {
	s1 := &countingStrategy{name: "one", err: models.NewRetrievalError(models.ErrCodeCanceled, "task canceled", context.Canceled)}
	s2 := &countingStrategy{name: "two", result: &models.ExtractionResult{Content: longText(20)}}

	out := NewChain(testValidator(), s1, s2).Run(context.Background(), &fakeDriver{}, articleTask())
	require.Equal(t, models.OutcomeFatal, out.Kind)
	assert.Equal(t, models.ErrCodeCanceled, out.Reason.Code)
	assert.Equal(t, 0, s2.calls)
}

func TestChain_InvalidActionFallsThrough(t *testing.T) {
	s1 := &countingStrategy{name: "one", err: models.NewRetrievalError(models.ErrCodeInvalidInput, "click action requires a selector", nil)}
	s2 := &countingStrategy{name: "two", result: &models.ExtractionResult{Content: longText(20)}}

	out := NewChain(testValidator(), s1, s2).Run(context.Background(), &fakeDriver{}, articleTask())
	require.Equal(t, models.OutcomeSuccess, out.Kind)
	assert.Equal(t, "two", out.Result.Strategy)
	assert.Equal(t, []string{"one", "two"}, out.Tried)
}

func TestChain_InvalidActionOnlyStrategyIsRetryable(t *testing.T) {
	s1 := &countingStrategy{name: "one", err: models.NewRetrievalError(models.ErrCodeInvalidInput, "execute_js action requires code", nil)}

	out := NewChain(testValidator(), s1).Run(context.Background(), &fakeDriver{}, articleTask())
	require.NotNil(t, out.Reason)
	assert.Equal(t, models.ErrCodeChainExhausted, out.Reason.Code)
	assert.True(t, models.IsRetryable(out.Reason.Code))
}

func TestChain_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s1 := &countingStrategy{name: "one", result: &models.ExtractionResult{Content: longText(20)}}

	out := NewChain(testValidator(), s1).Run(ctx, &fakeDriver{}, articleTask())
	require.Equal(t, models.OutcomeFatal, out.Kind)
	assert.Equal(t, models.ErrCodeCanceled, out.Reason.Code)
	assert.Equal(t, 0, s1.calls)
}

func TestChain_Names(t *testing.T) {
	chain := NewChain(testValidator(), ArticleStrategies(nil, nil, 0, nil)...)
	assert.Equal(t, []string{StrategyDOM, StrategyReader, StrategyCache, StrategyWayback}, chain.Names())
}
