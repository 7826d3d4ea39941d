package extract

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/retriever/models"
)

func videoTask() *models.RetrievalTask {
	return &models.RetrievalTask{URL: "https://www.douyin.com/video/7312345678901234567", Kind: models.KindVideo, Attempt: 1}
}

func TestPlatformFor(t *testing.T) {
	assert.Equal(t, "douyin", PlatformFor("https://www.douyin.com/video/1").Name)
	assert.Equal(t, "douyin", PlatformFor("https://v.iesdouyin.com/abc").Name)
	assert.Equal(t, "toutiao", PlatformFor("https://m.toutiao.com/video/1/").Name)

	g := PlatformFor("https://videos.example.org/watch?v=1")
	assert.Equal(t, "generic", g.Name)
	assert.Equal(t, "https://videos.example.org/", g.Referer)
	assert.Equal(t, map[string]string{
		"Referer": "https://videos.example.org/",
		"Origin":  "https://videos.example.org",
	}, g.DownloadHeaders())

	assert.Equal(t, "", Platforms[len(Platforms)-1].Referer, "generic profile is not mutated")
}

func TestPlatform_CleanTitle(t *testing.T) {
	assert.Equal(t, "我的视频", PlatformFor("https://www.douyin.com/").CleanTitle("我的视频 - 抖音"))
	assert.Equal(t, "新闻", PlatformFor("https://www.toutiao.com/").CleanTitle(" 新闻 - 今日头条"))
}

func TestStreamClassification(t *testing.T) {
	video := []models.StreamDescriptor{
		{URL: "https://v.cdn.com/x", MimeType: "video/mp4"},
		{URL: "https://v.cdn.com/x?mime_type=video_mp4&sign=1"},
		{URL: "https://v.cdn.com/seg-avc1.m4s"},
		{URL: "https://v.cdn.com/clip.mp4", ResourceType: "Media"},
	}
	for _, d := range video {
		assert.True(t, IsVideoStream(d), d.URL)
	}

	audio := []models.StreamDescriptor{
		{URL: "https://v.cdn.com/x", MimeType: "audio/mp4"},
		{URL: "https://v.cdn.com/x?mime_type=audio_mp4"},
		{URL: "https://v.cdn.com/track-mp4a.m4s"},
		{URL: "https://v.cdn.com/track.m4a"},
		{URL: "https://v.cdn.com/aac/128k/seg1"},
	}
	for _, d := range audio {
		assert.True(t, IsAudioStream(d), d.URL)
	}

	assert.False(t, IsVideoStream(models.StreamDescriptor{URL: "https://cdn.com/app.js", ResourceType: "Script"}))
	assert.False(t, IsAudioStream(models.StreamDescriptor{URL: "https://cdn.com/page?token=aac1"}))
	assert.False(t, isMediaCandidate(models.StreamDescriptor{URL: "https://v.cdn.com/x.mp4", MimeType: "video/mp4", Status: 403}))
}

func TestPickStreams_LongestSignedURL(t *testing.T) {
	video, audio := pickStreams([]models.StreamDescriptor{
		{RequestID: "1", URL: "https://v.cdn.com/a.mp4", MimeType: "video/mp4"},
		{RequestID: "2", URL: "https://v.cdn.com/a.mp4?sign=abcdef&expires=99", MimeType: "video/mp4"},
		{RequestID: "3", URL: "https://v.cdn.com/a.m4a?sign=1", MimeType: "audio/mp4"},
	})
	require.NotNil(t, video)
	require.NotNil(t, audio)
	assert.Equal(t, "2", video.RequestID)
	assert.Equal(t, "3", audio.RequestID)

	video, audio = pickStreams(nil)
	assert.Nil(t, video)
	assert.Nil(t, audio)
}

func TestVideoStrategy_Autoplay(t *testing.T) {
	drv := &fakeDriver{
		title: "我的视频 - 抖音",
		// Traffic from an earlier navigation must be ignored.
		streams: []models.StreamDescriptor{
			{RequestID: "old", URL: "https://v.cdn.com/old.mp4?sign=aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", MimeType: "video/mp4"},
		},
		onNavigate: []models.StreamDescriptor{
			{RequestID: "v", URL: "https://v.cdn.com/new.mp4?sign=x", MimeType: "video/mp4", Size: 4 << 20},
			{RequestID: "js", URL: "https://www.douyin.com/app.js", ResourceType: "Script"},
		},
	}
	s := &VideoStrategy{Label: StrategyAutoplay, SettleBase: time.Millisecond}

	res, err := s.Attempt(context.Background(), drv, videoTask())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "https://v.cdn.com/new.mp4?sign=x", res.StreamURL)
	assert.Empty(t, res.AudioURL)
	assert.Equal(t, int64(4<<20), res.StreamSize)
	assert.Equal(t, "我的视频", res.Title)
	assert.Equal(t, "https://www.douyin.com/", res.Referer)
	require.Len(t, drv.actions, 1)
	assert.Equal(t, "mute_autoplay", drv.actions[0][0].Type)
}

func TestVideoStrategy_InteractUsesPlanner(t *testing.T) {
	drv := &fakeDriver{onNavigate: []models.StreamDescriptor{
		{RequestID: "v", URL: "https://v.cdn.com/v.mp4?mime_type=video_mp4"},
		{RequestID: "a", URL: "https://v.cdn.com/a.mp4?mime_type=audio_mp4"},
	}}
	planned := []models.Action{{Type: "wait", Milliseconds: 10}, {Type: "click_center"}}
	p := &fixedPlanner{actions: planned}
	s := &VideoStrategy{Label: StrategyInteract, Planner: p, SettleBase: time.Millisecond}

	res, err := s.Attempt(context.Background(), drv, videoTask())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "https://v.cdn.com/v.mp4?mime_type=video_mp4", res.StreamURL)
	assert.Equal(t, "https://v.cdn.com/a.mp4?mime_type=audio_mp4", res.AudioURL)
	assert.Equal(t, [][]models.Action{planned}, drv.actions)
	require.Len(t, p.states, 1)
	assert.Equal(t, "douyin", p.states[0].Platform)
	assert.Equal(t, 2, p.states[0].Streams)
}

func TestVideoStrategy_NoStream(t *testing.T) {
	s := &VideoStrategy{Label: StrategyAutoplay, SettleBase: time.Millisecond}
	res, err := s.Attempt(context.Background(), &fakeDriver{}, videoTask())
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestVideoStrategies_Order(t *testing.T) {
	chain := NewChain(testValidator(), VideoStrategies(&fixedPlanner{}, 0)...)
	assert.Equal(t, []string{StrategyAutoplay, StrategyInteract}, chain.Names())
}

func TestVideoChain_RejectedActionStaysRetryable(t *testing.T) {
	drv := &fakeDriver{runErr: models.NewRetrievalError(models.ErrCodeInvalidInput, "click action requires a selector", nil)}
	s := &VideoStrategy{Label: StrategyInteract, Planner: &fixedPlanner{actions: []models.Action{{Type: "click"}}}, SettleBase: time.Millisecond}

	out := NewChain(testValidator(), s).Run(context.Background(), drv, videoTask())
	require.NotNil(t, out.Reason)
	assert.Equal(t, models.ErrCodeChainExhausted, out.Reason.Code)
	assert.True(t, models.IsRetryable(out.Reason.Code))
	assert.Equal(t, []string{StrategyInteract}, out.Tried)
}
