package timeline

import "fmt"

// Validate checks the structural invariants from spec §3 eagerly, before
// any subprocess is spawned. A violation here is the "Invalid timeline"
// error-taxonomy entry (spec §7.1): non-retriable, surfaced immediately.
func (t *Timeline) Validate(media MediaIndex) error {
	for ti, tr := range t.Tracks {
		if err := validateNoOverlap(tr); err != nil {
			return fmt.Errorf("track %d (%s): %w", ti, tr.Kind, err)
		}
		for ei, el := range tr.Elements {
			if err := validateElement(tr.Kind, el, media); err != nil {
				return fmt.Errorf("track %d (%s) element %d: %w", ti, tr.Kind, ei, err)
			}
		}
	}
	return nil
}

// validateNoOverlap enforces that elements within a single track do not
// overlap in time (spec §3: "Within a single track, elements do not
// overlap"). Every pair of elements is compared, so the result does not
// depend on the order of elements within the track.
func validateNoOverlap(tr Track) error {
	type span struct {
		start, end float64
		idx        int
	}
	spans := make([]span, len(tr.Elements))
	for i, el := range tr.Elements {
		end := el.EndTime
		if tr.Kind != TrackCaption {
			end = el.StartTime + el.Duration
		}
		spans[i] = span{start: el.StartTime, end: end, idx: i}
	}
	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			if spans[i].start < spans[j].end && spans[j].start < spans[i].end {
				return fmt.Errorf("elements %d and %d overlap in time [%.3f,%.3f) vs [%.3f,%.3f)",
					spans[i].idx, spans[j].idx, spans[i].start, spans[i].end, spans[j].start, spans[j].end)
			}
		}
	}
	return nil
}

func validateElement(trackKind TrackKind, el Element, media MediaIndex) error {
	switch el.Kind {
	case ElementMedia:
		item, ok := media[el.MediaID]
		if !ok {
			return fmt.Errorf("dangling media reference %q", el.MediaID)
		}
		if item.Kind != MediaVideo && item.Kind != MediaImage {
			return fmt.Errorf("media element references %q of kind %q, want video or image", el.MediaID, item.Kind)
		}
		return validateTrim(el, item)
	case ElementSticker:
		item, ok := media[el.MediaID]
		if !ok {
			return fmt.Errorf("dangling media reference %q", el.MediaID)
		}
		if item.Kind != MediaVideo && item.Kind != MediaImage {
			return fmt.Errorf("sticker element references %q of kind %q, want video or image", el.MediaID, item.Kind)
		}
		return nil
	case ElementAudio:
		item, ok := media[el.MediaID]
		if !ok {
			return fmt.Errorf("dangling media reference %q", el.MediaID)
		}
		if item.Kind != MediaAudio && item.Kind != MediaVideo {
			return fmt.Errorf("audio element references %q of kind %q, want audio or video", el.MediaID, item.Kind)
		}
		return validateTrim(el, item)
	case ElementText, ElementCaption:
		return nil
	default:
		return fmt.Errorf("unknown element kind %q", el.Kind)
	}
}

// validateTrim enforces spec §3: 0 <= trimStart, trimStart + (duration -
// trimEnd) <= sourceDuration.
func validateTrim(el Element, item *MediaItem) error {
	if el.TrimStart < 0 {
		return fmt.Errorf("trimStart %.3f is negative", el.TrimStart)
	}
	if item.Duration <= 0 {
		return nil // unprobed/unknown source duration, nothing to check yet
	}
	if el.TrimStart+(el.Duration-el.TrimEnd) > item.Duration+1e-6 {
		return fmt.Errorf("trim window [%.3f, %.3f) exceeds source duration %.3f",
			el.TrimStart, el.Duration-el.TrimEnd, item.Duration)
	}
	return nil
}
