package analysis

import (
	"errors"

	exif "github.com/dsoprea/go-exif/v3"

	"github.com/nao1215/sitecrawler/internal/document"
	"github.com/nao1215/sitecrawler/internal/model"
)

// gpsTags reveal where a photo was taken.
var gpsTags = map[string]bool{
	"GPSLatitude":     true,
	"GPSLongitude":    true,
	"GPSLatitudeRef":  true,
	"GPSLongitudeRef": true,
	"GPSAltitude":     true,
}

// deviceTags identify the camera or computer that produced an image.
var deviceTags = map[string]bool{
	"Make":               true,
	"Model":              true,
	"SerialNumber":       true,
	"CameraSerialNumber": true,
	"BodySerialNumber":   true,
	"LensSerialNumber":   true,
	"HostComputer":       true,
}

// ImageMetadataAnalyzer reports EXIF metadata in fetched images.
type ImageMetadataAnalyzer struct{}

// NewImageMetadataAnalyzer creates a new ImageMetadataAnalyzer.
func NewImageMetadataAnalyzer() *ImageMetadataAnalyzer {
	return &ImageMetadataAnalyzer{}
}

// Name returns the analyzer name.
func (a *ImageMetadataAnalyzer) Name() string {
	return "image-metadata"
}

// Accepts limits the analyzer to images.
func (a *ImageMetadataAnalyzer) Accepts(ct model.ContentType) bool {
	return ct == model.ContentTypeImage
}

// Analyze extracts EXIF tags from the image body. Images without EXIF, or
// with EXIF that cannot be decoded, produce an empty result.
func (a *ImageMetadataAnalyzer) Analyze(visited *model.VisitedURL, body []byte, _ *document.Document, _ Options) (*model.AnalysisResult, error) {
	result := model.NewAnalysisResult()
	if len(body) == 0 || !visited.IsSuccess() {
		return result, nil
	}

	rawExif, err := exif.SearchAndExtractExif(body)
	if err != nil {
		if errors.Is(err, exif.ErrNoExif) {
			result.AddOK("Image has no EXIF metadata")
		}
		return result, nil
	}

	tags, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return result, nil
	}

	classifyEXIFTags(tags, result)
	return result, nil
}

// classifyEXIFTags records GPS and device tags. Each tag name is reported
// once per image.
func classifyEXIFTags(tags []exif.ExifTag, result *model.AnalysisResult) {
	seen := make(map[string]bool)
	gps := make([]string, 0)
	device := make([]string, 0)

	for _, tag := range tags {
		if seen[tag.TagName] {
			continue
		}
		switch {
		case gpsTags[tag.TagName]:
			gps = append(gps, tag.TagName+": "+tag.Formatted)
		case deviceTags[tag.TagName]:
			device = append(device, tag.TagName+": "+tag.Formatted)
		default:
			continue
		}
		seen[tag.TagName] = true
	}

	result.AddCritical(model.CategoryEXIFGPSLocation, pluralCount("%d GPS tag(s) in image metadata"), gps)
	result.AddWarning(model.CategoryEXIFDeviceInfo, pluralCount("%d device tag(s) in image metadata"), device)
	if len(gps) == 0 && len(device) == 0 {
		result.AddOK("Image metadata contains no location or device information")
	}
}
