package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/retriever/models"
	"github.com/use-agent/retriever/simhash"
)

func TestValidator_Article(t *testing.T) {
	v := testValidator()

	tests := []struct {
		name    string
		content string
		code    string
	}{
		{"accepted", longText(20), ""},
		{"too short", "Just a short teaser.", models.ErrCodeTooShort},
		{"multibyte counted as runes", strings.Repeat("检索", 140), models.ErrCodeTooShort},
		{"marker", "Just a moment... " + longText(20), models.ErrCodeErrorMarker},
		{"marker case-insensitive", "ACCESS DENIED " + longText(20), models.ErrCodeErrorMarker},
		{"marker outside window", longText(60) + " Access denied", ""},
		{"block page", simhash.DefaultBlockPages["medium_signin"], models.ErrCodeErrorMarker},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signals, reject := v.Check(&models.ExtractionResult{Kind: models.KindArticle, Content: tt.content})
			if tt.code == "" {
				assert.Nil(t, reject)
				return
			}
			require.NotNil(t, reject)
			assert.Equal(t, tt.code, reject.Code)
			if tt.code == models.ErrCodeErrorMarker {
				assert.NotEmpty(t, signals.Markers)
			}
		})
	}
}

func TestValidator_Video(t *testing.T) {
	v := testValidator()

	tests := []struct {
		name string
		res  models.ExtractionResult
		code string
	}{
		{"combined stream", models.ExtractionResult{StreamURL: "https://v.cdn.com/a.mp4?sign=x"}, ""},
		{"split streams", models.ExtractionResult{StreamURL: "https://v.cdn.com/v.mp4", AudioURL: "https://v.cdn.com/a.m4a", StreamSize: 5 << 20}, ""},
		{"missing", models.ExtractionResult{}, models.ErrCodeNoStream},
		{"relative", models.ExtractionResult{StreamURL: "/video.mp4"}, models.ErrCodeNoStream},
		{"blob", models.ExtractionResult{StreamURL: "blob:https://www.douyin.com/123"}, models.ErrCodeNoStream},
		{"bad audio", models.ExtractionResult{StreamURL: "https://v.cdn.com/v.mp4", AudioURL: "data:x"}, models.ErrCodeNoStream},
		{"too small", models.ExtractionResult{StreamURL: "https://v.cdn.com/v.mp4", StreamSize: 2048}, models.ErrCodeTooShort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.res
			r.Kind = models.KindVideo
			_, reject := v.Check(&r)
			if tt.code == "" {
				assert.Nil(t, reject)
				return
			}
			require.NotNil(t, reject)
			assert.Equal(t, tt.code, reject.Code)
		})
	}
}

func TestValidator_Nil(t *testing.T) {
	_, reject := testValidator().Check(nil)
	require.NotNil(t, reject)
	assert.Equal(t, models.ErrCodeTooShort, reject.Code)
}
