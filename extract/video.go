package extract

import (
	"context"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/use-agent/retriever/models"
)

// Video strategy names, in chain order.
const (
	StrategyAutoplay = "autoplay"
	StrategyInteract = "interact"
)

// Platform describes how a short-video site serves its streams.
type Platform struct {
	Name  string
	Hosts []string

	// Referer and Origin are sent when downloading the streams; most
	// CDNs reject requests without them.
	Referer string
	Origin  string

	// TitleSuffixes are stripped from document.title.
	TitleSuffixes []string
}

// Platforms are the known platforms; the last entry is the generic
// fallback.
var Platforms = []Platform{
	{
		Name:          "douyin",
		Hosts:         []string{"douyin.com", "iesdouyin.com"},
		Referer:       "https://www.douyin.com/",
		Origin:        "https://www.douyin.com",
		TitleSuffixes: []string{" - 抖音"},
	},
	{
		Name:          "toutiao",
		Hosts:         []string{"toutiao.com", "ixigua.com"},
		Referer:       "https://www.toutiao.com/",
		Origin:        "https://www.toutiao.com",
		TitleSuffixes: []string{" - 今日头条", " - 西瓜视频"},
	},
	{Name: "generic"},
}

// PlatformFor returns the platform serving rawURL. Unknown hosts get the
// generic profile with the page's own origin as Referer.
func PlatformFor(rawURL string) Platform {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Platforms[len(Platforms)-1]
	}
	host := strings.ToLower(u.Hostname())
	for _, p := range Platforms {
		for _, h := range p.Hosts {
			if host == h || strings.HasSuffix(host, "."+h) {
				return p
			}
		}
	}
	p := Platforms[len(Platforms)-1]
	if u.Scheme != "" && u.Host != "" {
		p.Origin = u.Scheme + "://" + u.Host
		p.Referer = p.Origin + "/"
	}
	return p
}

// DownloadHeaders returns the headers the platform CDN expects.
func (p Platform) DownloadHeaders() map[string]string {
	h := map[string]string{}
	if p.Referer != "" {
		h["Referer"] = p.Referer
	}
	if p.Origin != "" {
		h["Origin"] = p.Origin
	}
	return h
}

// CleanTitle strips the platform suffix from a page title.
func (p Platform) CleanTitle(title string) string {
	for _, s := range p.TitleSuffixes {
		title = strings.ReplaceAll(title, s, "")
	}
	return strings.TrimSpace(title)
}

// IsVideoStream reports whether d looks like a video (or muxed) stream.
func IsVideoStream(d models.StreamDescriptor) bool {
	if strings.HasPrefix(d.MimeType, "video/") {
		return true
	}
	lower := strings.ToLower(d.URL)
	if strings.Contains(lower, "mime_type=video_mp4") || strings.Contains(lower, "avc1") {
		return true
	}
	return d.ResourceType == "Media" && strings.HasSuffix(urlPath(d.URL), ".mp4")
}

// IsAudioStream reports whether d looks like a separate audio stream.
func IsAudioStream(d models.StreamDescriptor) bool {
	if strings.HasPrefix(d.MimeType, "audio/") {
		return true
	}
	lower := strings.ToLower(d.URL)
	if strings.Contains(lower, "mime_type=audio_mp4") || strings.Contains(lower, "mp4a") {
		return true
	}
	p := urlPath(d.URL)
	return path.Ext(p) == ".m4a" || strings.Contains(p, "aac")
}

func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Path)
}

// isMediaCandidate keeps successful (or still pending) media-ish requests.
func isMediaCandidate(d models.StreamDescriptor) bool {
	if d.Status >= 400 {
		return false
	}
	return IsAudioStream(d) || IsVideoStream(d)
}

// pickStreams chooses the video and optional audio stream. Among several
// matches the longest URL wins: signed URLs carry their tokens in the
// query string.
func pickStreams(streams []models.StreamDescriptor) (video, audio *models.StreamDescriptor) {
	for i := range streams {
		d := &streams[i]
		switch {
		case IsAudioStream(*d):
			if audio == nil || len(d.URL) > len(audio.URL) {
				audio = d
			}
		case IsVideoStream(*d):
			if video == nil || len(d.URL) > len(video.URL) {
				video = d
			}
		}
	}
	return video, audio
}

// VideoStrategy sniffs the page's network traffic for media streams.
// With Planner nil it only mutes and starts autoplay; otherwise it runs
// the planner's interaction sequence first.
type VideoStrategy struct {
	Label   string
	Planner Planner

	// SettleBase is how long to let the player fetch after the
	// interactions on attempt 1; attempt n waits n times as long.
	SettleBase time.Duration
}

// VideoStrategies returns the video chain: passive autoplay sniffing,
// then planner-driven interaction.
func VideoStrategies(planner Planner, settleBase time.Duration) []Strategy {
	return []Strategy{
		&VideoStrategy{Label: StrategyAutoplay, SettleBase: settleBase},
		&VideoStrategy{Label: StrategyInteract, Planner: planner, SettleBase: settleBase},
	}
}

func (s *VideoStrategy) Name() string { return s.Label }

func (s *VideoStrategy) Attempt(ctx context.Context, drv Driver, task *models.RetrievalTask) (*models.ExtractionResult, error) {
	platform := PlatformFor(task.URL)

	// Requests recorded before this navigation belong to another strategy.
	seen := make(map[string]struct{})
	for _, d := range drv.ReadNetworkStreams(nil) {
		seen[d.RequestID] = struct{}{}
	}

	fresh := func(d models.StreamDescriptor) bool {
		if _, old := seen[d.RequestID]; old {
			return false
		}
		return isMediaCandidate(d)
	}

	if err := drv.Navigate(ctx, task.URL, 0); err != nil {
		return nil, err
	}

	actions := []models.Action{{Type: "mute_autoplay"}}
	if s.Planner != nil {
		state := models.PageState{
			URL:      task.URL,
			Title:    pageTitle(ctx, drv),
			Platform: platform.Name,
			Attempt:  task.Attempt,
			Streams:  len(drv.ReadNetworkStreams(fresh)),
		}
		planned, err := s.Planner.Plan(ctx, state)
		if err != nil {
			return nil, err
		}
		actions = planned
	}
	if err := drv.RunActions(ctx, actions); err != nil {
		return nil, err
	}

	settle := settleFor(s.SettleBase, task.Attempt)
	if err := drv.WaitStable(ctx, models.WaitCondition{Kind: models.WaitSleep, Settle: settle}, settle+time.Second); err != nil {
		return nil, err
	}

	video, audio := pickStreams(drv.ReadNetworkStreams(fresh))
	if video == nil {
		return nil, nil
	}

	res := &models.ExtractionResult{
		StreamURL:  video.URL,
		StreamSize: video.Size,
		Referer:    platform.Referer,
		Title:      platform.CleanTitle(pageTitle(ctx, drv)),
		FinalURL:   drv.CurrentURL(),
	}
	if audio != nil && audio.URL != video.URL {
		res.AudioURL = audio.URL
	}
	return res, nil
}

func pageTitle(ctx context.Context, drv Driver) string {
	v, err := drv.Evaluate(ctx, `() => document.title || ''`)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(str(v))
}
