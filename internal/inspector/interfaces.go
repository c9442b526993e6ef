package inspector

import (
	"fmt"
	"strings"
	"time"
)

// Inspector describes what optimizing a single file would do, without writing anything.
type Inspector interface {
	Inspect(filePath string) (*ImageInfo, error)
	SupportsFile(filePath string) bool
}

// ImageInfo contains the header data of an image and the plan the optimizer would apply.
type ImageInfo struct {
	Path       string `json:"path"`
	Format     string `json:"format"`
	Size       int64  `json:"size"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	ColorModel string `json:"color_model"`

	// NeedsNormalization is true for alpha or palette images that are flattened to RGB.
	NeedsNormalization bool `json:"needs_normalization"`

	TargetWidth  int  `json:"target_width"`
	TargetHeight int  `json:"target_height"`
	Resized      bool `json:"resized"`

	EXIF *EXIFInfo `json:"exif,omitempty"`
}

// EXIFInfo holds the EXIF fields shown by the inspect command. Missing tags are left empty.
type EXIFInfo struct {
	DateTime    time.Time `json:"date_time,omitempty"`
	Software    string    `json:"software,omitempty"`
	Model       string    `json:"model,omitempty"`
	Orientation int       `json:"orientation,omitempty"`
}

// String returns a human-readable, multi-line description of the file.
func (i *ImageInfo) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "File:        %s\n", i.Path)
	fmt.Fprintf(&b, "Format:      %s\n", i.Format)
	fmt.Fprintf(&b, "Size:        %d bytes\n", i.Size)
	fmt.Fprintf(&b, "Dimensions:  %dx%d\n", i.Width, i.Height)
	fmt.Fprintf(&b, "Color model: %s\n", i.ColorModel)

	normalize := "no"
	if i.NeedsNormalization {
		normalize = "yes (alpha/palette -> RGB)"
	}
	fmt.Fprintf(&b, "Normalize:   %s\n", normalize)

	if i.Resized {
		fmt.Fprintf(&b, "Output:      %dx%d (downscaled)\n", i.TargetWidth, i.TargetHeight)
	} else {
		fmt.Fprintf(&b, "Output:      %dx%d (unchanged)\n", i.TargetWidth, i.TargetHeight)
	}

	if i.EXIF == nil {
		b.WriteString("EXIF:        none\n")
		return b.String()
	}
	if !i.EXIF.DateTime.IsZero() {
		fmt.Fprintf(&b, "Taken:       %s\n", i.EXIF.DateTime.Format("2006-01-02 15:04:05"))
	}
	if i.EXIF.Model != "" {
		fmt.Fprintf(&b, "Camera:      %s\n", i.EXIF.Model)
	}
	if i.EXIF.Software != "" {
		fmt.Fprintf(&b, "Software:    %s\n", i.EXIF.Software)
	}
	if i.EXIF.Orientation != 0 {
		fmt.Fprintf(&b, "Orientation: %d\n", i.EXIF.Orientation)
	}
	return b.String()
}
