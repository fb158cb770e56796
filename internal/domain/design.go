package domain

// Design holds theme settings for the Mini App as a key-value map.
type Design map[string]string

// DefaultDesign is applied when no settings are stored.
func DefaultDesign() Design {
	return Design{
		"background_color": "#FFFFFF",
		"text_color":       "#000000",
		"font_family":      "Arial",
	}
}

// Merge returns defaults overlaid with the non-empty values of d.
func (d Design) Merge() Design {
	out := DefaultDesign()
	for k, v := range d {
		if v != "" {
			out[k] = v
		}
	}

	return out
}
