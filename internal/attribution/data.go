package attribution

// ConversionData is one attribution snapshot: the organic/non-organic
// install classification plus whatever campaign attributes the network
// reported. Snapshots are replaced wholesale, never merged field by
// field.
type ConversionData map[string]any

// Status returns the af_status classification, "" when absent.
func (d ConversionData) Status() string {
	s, _ := d["af_status"].(string)
	return s
}

// Organic reports whether the install was classified organic.
func (d ConversionData) Organic() bool {
	return d.Status() == "Organic"
}

// FallbackConversionData is a non-organic stand-in for hosts that need
// attribution attributes before any real snapshot has arrived.
func FallbackConversionData() ConversionData {
	return ConversionData{
		"is_first_launch": true,
		"media_source":    "organic",
		"campaign":        "fallback",
		"af_status":       "Non-organic",
		"af_channel":      "organic",
	}
}
