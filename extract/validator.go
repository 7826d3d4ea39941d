package extract

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/use-agent/retriever/config"
	"github.com/use-agent/retriever/models"
	"github.com/use-agent/retriever/simhash"
)

// Validator applies the content-quality rules to a candidate result.
type Validator struct {
	cfg        config.ValidatorConfig
	blockPages *simhash.Index
}

// NewValidator creates a Validator. blockPages may be nil.
func NewValidator(cfg config.ValidatorConfig, blockPages *simhash.Index) *Validator {
	return &Validator{cfg: cfg, blockPages: blockPages}
}

// Check measures r and returns a rejection, or nil when r is acceptable.
// Rejections carry TOO_SHORT, ERROR_MARKER_DETECTED or NO_STREAM.
func (v *Validator) Check(r *models.ExtractionResult) (models.Signals, *models.RetrievalError) {
	if r == nil {
		return models.Signals{}, models.NewRetrievalError(models.ErrCodeTooShort, "empty result", nil)
	}
	if r.Kind == models.KindVideo {
		return v.checkStream(r)
	}
	return v.checkArticle(r.Content)
}

func (v *Validator) checkArticle(content string) (models.Signals, *models.RetrievalError) {
	content = strings.TrimSpace(content)
	signals := models.Signals{
		Length:  utf8.RuneCountInString(content),
		Markers: v.markersIn(content),
	}

	if len(signals.Markers) > 0 {
		return signals, models.NewRetrievalError(
			models.ErrCodeErrorMarker,
			fmt.Sprintf("error marker %q detected", signals.Markers[0]),
			nil,
		)
	}
	if v.blockPages != nil {
		if name, ok := v.blockPages.Match(content); ok {
			signals.Markers = append(signals.Markers, "blockpage:"+name)
			return signals, models.NewRetrievalError(
				models.ErrCodeErrorMarker,
				"content matches known block page "+name,
				nil,
			)
		}
	}
	if signals.Length < v.cfg.MinLength {
		return signals, models.NewRetrievalError(
			models.ErrCodeTooShort,
			fmt.Sprintf("content length %d below minimum %d", signals.Length, v.cfg.MinLength),
			nil,
		)
	}
	return signals, nil
}

// markersIn returns the configured markers found in the scan window.
func (v *Validator) markersIn(content string) []string {
	window := content
	if v.cfg.MarkerWindow > 0 && utf8.RuneCountInString(content) > v.cfg.MarkerWindow {
		window = string([]rune(content)[:v.cfg.MarkerWindow])
	}
	lower := strings.ToLower(window)

	var found []string
	for _, m := range v.cfg.ErrorMarkers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			found = append(found, m)
		}
	}
	return found
}

func (v *Validator) checkStream(r *models.ExtractionResult) (models.Signals, *models.RetrievalError) {
	signals := models.Signals{Length: int(r.StreamSize)}

	if !resolvable(r.StreamURL) {
		return signals, models.NewRetrievalError(models.ErrCodeNoStream, "no resolvable stream URL", nil)
	}
	if r.AudioURL != "" && !resolvable(r.AudioURL) {
		return signals, models.NewRetrievalError(models.ErrCodeNoStream, "audio stream URL is not resolvable", nil)
	}
	if r.StreamSize > 0 && r.StreamSize < v.cfg.MinStreamBytes {
		return signals, models.NewRetrievalError(
			models.ErrCodeTooShort,
			fmt.Sprintf("stream size %d below minimum %d", r.StreamSize, v.cfg.MinStreamBytes),
			nil,
		)
	}
	return signals, nil
}

func resolvable(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
