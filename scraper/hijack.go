package scraper

import (
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceTypes maps config names to protocol resource types.
var resourceTypes = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
	"Script":     proto.NetworkResourceTypeScript,
}

// adDomainList holds ad, tracking and share-widget hosts. Share widgets
// are the usual source of "follow"/"share" prompts in article bodies.
var adDomainList = []string{
	"doubleclick.net", "googlesyndication.com", "googleadservices.com",
	"google-analytics.com", "googletagmanager.com", "googletagservices.com",
	"facebook.net", "connect.facebook.net", "adnxs.com", "adsrvr.org",
	"amazon-adsystem.com", "criteo.com", "criteo.net", "outbrain.com",
	"taboola.com", "moatads.com", "pubmatic.com", "rubiconproject.com",
	"scorecardresearch.com", "quantserve.com", "hotjar.com", "mixpanel.com",
	"segment.io", "segment.com", "analytics.twitter.com", "ads-twitter.com",
	"chartbeat.com", "chartbeat.net", "optimizely.com", "media.net",
	"bidswitch.net", "openx.net", "casalemedia.com", "demdex.net",
	"krxd.net", "bluekai.com", "mathtag.com", "serving-sys.com",
	"rlcdn.com", "sharethis.com", "addthis.com", "consensu.org",
}

var adDomains = func() map[string]struct{} {
	m := make(map[string]struct{}, len(adDomainList))
	for _, d := range adDomainList {
		m[d] = struct{}{}
	}
	return m
}()

// isAdDomain checks if a hostname (or any parent domain) is in the ad blocklist.
func isAdDomain(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for host != "" {
		if _, ok := adDomains[host]; ok {
			return true
		}
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			break
		}
		host = host[idx+1:]
	}
	return false
}

// setupHijack installs a request interceptor that fails blocked resource
// types and ad hosts. Returns nil when there is nothing to block; otherwise
// the caller stops the returned router on Reset.
func setupHijack(page *rod.Page, blockedTypes []string, blockAds bool) *rod.HijackRouter {
	blocked := make(map[proto.NetworkResourceType]struct{}, len(blockedTypes))
	for _, name := range blockedTypes {
		if rt, ok := resourceTypes[name]; ok {
			blocked[rt] = struct{}{}
		}
	}
	if len(blocked) == 0 && !blockAds {
		return nil
	}

	router := page.HijackRequests()
	_ = router.Add("*", "", func(h *rod.Hijack) {
		if _, ok := blocked[h.Request.Type()]; ok {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		if blockAds {
			if u, err := url.Parse(h.Request.URL().String()); err == nil && isAdDomain(u.Hostname()) {
				h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
				return
			}
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// Run blocks until Stop.
	go router.Run()
	return router
}
