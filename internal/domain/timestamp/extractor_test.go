package timestamp

import (
	"context"
	"image"
	"testing"
)

type fakeOCR struct {
	responses []string
	calls     int
}

func (f *fakeOCR) Recognize(_ context.Context, _ image.Image) (string, error) {
	i := f.calls
	f.calls++
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", nil
}

func testFrame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 1920, 1080))
}

func TestExtract_FirstVariantWins(t *testing.T) {
	t.Parallel()

	ocr := &fakeOCR{responses: []string{"00:01:23.456789"}}
	ex := NewExtractor(ocr)

	got := ex.Extract(context.Background(), testFrame())
	if !got.OK {
		t.Fatalf("expected success, got %+v", got)
	}
	if got.Seconds < 83.456 || got.Seconds > 83.457 {
		t.Fatalf("unexpected seconds: %v", got.Seconds)
	}
	if ocr.calls != 1 {
		t.Fatalf("expected 1 OCR call, got %d", ocr.calls)
	}
}

func TestExtract_LaterVariantWins(t *testing.T) {
	t.Parallel()

	ocr := &fakeOCR{responses: []string{"garbage", "", "::", "1:23.4"}}
	ex := NewExtractor(ocr)

	got := ex.Extract(context.Background(), testFrame())
	if !got.OK {
		t.Fatalf("expected success, got %+v", got)
	}
	if got.Seconds != 83.4 {
		t.Fatalf("unexpected seconds: %v", got.Seconds)
	}
	if ocr.calls != 4 {
		t.Fatalf("expected 4 OCR calls, got %d", ocr.calls)
	}
}

func TestExtract_AllVariantsFail(t *testing.T) {
	t.Parallel()

	ocr := &fakeOCR{responses: []string{"junk1", "", "12..", "", "", ""}}
	ex := NewExtractor(ocr)

	got := ex.Extract(context.Background(), testFrame())
	if got.OK {
		t.Fatalf("expected failure, got %+v", got)
	}
	// BestAttempt keeps the last non-empty whitelisted text.
	if got.BestAttempt != "12.." {
		t.Fatalf("unexpected best attempt: %q", got.BestAttempt)
	}
	if ocr.calls != 6 {
		t.Fatalf("expected 6 OCR calls, got %d", ocr.calls)
	}
}

func TestCropOverlayRegion_FullHD(t *testing.T) {
	t.Parallel()

	roi := cropOverlayRegion(testFrame())
	b := roi.Bounds()
	if b.Dx() != minROIWidth || b.Dy() != minROIHeight {
		t.Fatalf("unexpected ROI size: %dx%d", b.Dx(), b.Dy())
	}
	if b.Min.X != 10 || b.Min.Y != 40 {
		t.Fatalf("unexpected ROI origin: %v", b.Min)
	}
}

func TestCropOverlayRegion_ScalesWithFrame(t *testing.T) {
	t.Parallel()

	roi := cropOverlayRegion(image.NewRGBA(image.Rect(0, 0, 3840, 2160)))
	b := roi.Bounds()
	if b.Dx() != 2*minROIWidth || b.Dy() != 2*minROIHeight {
		t.Fatalf("unexpected ROI size: %dx%d", b.Dx(), b.Dy())
	}
}

func TestCropOverlayRegion_TinyFrame(t *testing.T) {
	t.Parallel()

	// Smaller than the overlay region in both dimensions; the crop clamps
	// instead of going out of bounds.
	roi := cropOverlayRegion(image.NewRGBA(image.Rect(0, 0, 100, 50)))
	b := roi.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		t.Fatalf("degenerate ROI: %v", b)
	}
	if b.Dx() > 100 || b.Dy() > 50 {
		t.Fatalf("ROI exceeds frame: %v", b)
	}
}
