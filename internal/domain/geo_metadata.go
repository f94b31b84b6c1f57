package domain

import "strings"

const UnknownValue = "Unknown"

type GeoMetadata struct {
	Country string `json:"country"`
	Region  string `json:"region"`
	City    string `json:"city"`
	ISP     string `json:"isp"`
	Org     string `json:"org"`
}

func UnknownGeo() GeoMetadata {
	return GeoMetadata{
		Country: UnknownValue,
		Region:  UnknownValue,
		City:    UnknownValue,
		ISP:     UnknownValue,
		Org:     UnknownValue,
	}
}

// Normalize replaces empty fields with UnknownValue.
func (geo GeoMetadata) Normalize() GeoMetadata {
	geo.Country = orUnknown(geo.Country)
	geo.Region = orUnknown(geo.Region)
	geo.City = orUnknown(geo.City)
	geo.ISP = orUnknown(geo.ISP)
	geo.Org = orUnknown(geo.Org)
	return geo
}

func (geo GeoMetadata) IsUnknown() bool {
	return geo == UnknownGeo()
}

func orUnknown(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return UnknownValue
	}
	return value
}

// GeoResult is the outcome of one enrichment lookup. Found is false when the
// lookup failed and Metadata holds only UnknownValue fields.
type GeoResult struct {
	Metadata GeoMetadata
	Found    bool
	Source   string
}

func GeoFound(source string, metadata GeoMetadata) GeoResult {
	return GeoResult{Metadata: metadata.Normalize(), Found: true, Source: source}
}

func GeoNotFound() GeoResult {
	return GeoResult{Metadata: UnknownGeo()}
}
