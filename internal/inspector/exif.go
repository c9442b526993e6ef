package inspector

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"

	"image-optimizer-go/internal/optimizer"
)

// FileInspector reads image headers and EXIF metadata.
type FileInspector struct {
	logger     logrus.FieldLogger
	maxWidth   int
	extensions []string
}

// NewFileInspector returns a FileInspector that plans resizes against maxWidth.
func NewFileInspector(logger logrus.FieldLogger, maxWidth int, extensions []string) *FileInspector {
	return &FileInspector{
		logger:     logger,
		maxWidth:   maxWidth,
		extensions: extensions,
	}
}

// SupportsFile reports whether the file has one of the configured image extensions.
func (i *FileInspector) SupportsFile(filePath string) bool {
	return optimizer.IsCandidate(filepath.Base(filePath), i.extensions, nil)
}

// Inspect decodes only the image header, so it is cheap even for very large files.
func (i *FileInspector) Inspect(filePath string) (*ImageInfo, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	cfg, format, err := image.DecodeConfig(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image header: %w", err)
	}

	w, h, resized := optimizer.TargetSize(cfg.Width, cfg.Height, i.maxWidth)
	info := &ImageInfo{
		Path:               filePath,
		Format:             format,
		Size:               stat.Size(),
		Width:              cfg.Width,
		Height:             cfg.Height,
		ColorModel:         modelName(cfg.ColorModel),
		NeedsNormalization: modelNeedsNormalization(cfg.ColorModel),
		TargetWidth:        w,
		TargetHeight:       h,
		Resized:            resized,
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind file: %w", err)
	}
	if x, err := i.readEXIF(file); err == nil {
		info.EXIF = x
	} else {
		i.logger.Debugf("No EXIF data in %s: %v", filePath, err)
	}

	return info, nil
}

// readEXIF extracts the date, software, camera model and orientation tags using goexif.
func (i *FileInspector) readEXIF(r io.Reader) (*EXIFInfo, error) {
	x, err := exif.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode EXIF: %w", err)
	}

	info := &EXIFInfo{}
	if tm, err := x.DateTime(); err == nil {
		info.DateTime = tm
	}
	info.Software = stringTag(x, exif.Software)
	info.Model = stringTag(x, exif.Model)
	if tag, err := x.Get(exif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil {
			info.Orientation = v
		}
	}
	return info, nil
}

func stringTag(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	val, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(val, "\x00"))
}

// modelNeedsNormalization mirrors optimizer.NeedsNormalization for a header-only color model.
func modelNeedsNormalization(m color.Model) bool {
	if _, ok := m.(color.Palette); ok {
		return true
	}
	// Decoders report RGBAModel and RGBA64Model for truecolor files without an alpha channel.
	switch m {
	case color.NRGBAModel, color.NRGBA64Model,
		color.AlphaModel, color.Alpha16Model,
		color.NYCbCrAModel:
		return true
	default:
		return false
	}
}

func modelName(m color.Model) string {
	if p, ok := m.(color.Palette); ok {
		return fmt.Sprintf("paletted (%d colors)", len(p))
	}
	switch m {
	case color.NRGBAModel:
		return "NRGBA"
	case color.RGBAModel:
		return "RGBA"
	case color.NRGBA64Model:
		return "NRGBA64"
	case color.RGBA64Model:
		return "RGBA64"
	case color.AlphaModel, color.Alpha16Model:
		return "alpha"
	case color.GrayModel, color.Gray16Model:
		return "gray"
	case color.YCbCrModel:
		return "YCbCr"
	case color.NYCbCrAModel:
		return "YCbCr+alpha"
	case color.CMYKModel:
		return "CMYK"
	default:
		return "unknown"
	}
}
