package processor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pdfBytes = []byte("%PDF-1.4\n% fake body for sniffing\n")

type stubLayer struct {
	text string
	err  error
}

func (s stubLayer) Name() string { return "stub" }
func (s stubLayer) ExtractText(context.Context, []byte) (string, error) {
	return s.text, s.err
}

type stubRasterizer struct {
	img   []byte
	err   error
	calls int
}

func (s *stubRasterizer) Name() string { return "stub-raster" }
func (s *stubRasterizer) Rasterize(context.Context, []byte) ([]byte, string, error) {
	s.calls++
	return s.img, "image/png", s.err
}

type stubOCR struct {
	text string
	err  error
}

func (s stubOCR) Name() string { return "stub-ocr" }
func (s stubOCR) Recognize(context.Context, []byte, string) (string, error) {
	return s.text, s.err
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.Black)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

const leaseText = "This Residential Lease Agreement is made between the Landlord and the Tenant for the premises."

func TestExtract_TextLayerLongEnough(t *testing.T) {
	r := &stubRasterizer{img: testPNG(t, 10, 10)}
	e := NewExtractor(40, WithTextLayers(stubLayer{text: leaseText}), WithRasterizer(r))

	p, err := e.Extract(context.Background(), pdfBytes, "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, KindText, p.Kind)
	assert.Equal(t, MethodTextLayer, p.Method)
	assert.Equal(t, leaseText, p.Text)
	assert.Zero(t, r.calls)
}

func TestExtract_ShortTextFallsBackToImage(t *testing.T) {
	r := &stubRasterizer{img: testPNG(t, 20, 20)}
	e := NewExtractor(40, WithTextLayers(stubLayer{text: "  Page 1  "}), WithRasterizer(r))

	p, err := e.Extract(context.Background(), pdfBytes, "")
	require.NoError(t, err)
	assert.Equal(t, KindImage, p.Kind)
	assert.Equal(t, MethodRaster, p.Method)
	assert.NotEmpty(t, p.Image)
	assert.Equal(t, "image/png", p.MIMEType)
	assert.Empty(t, p.Text)
}

func TestExtract_ThresholdIsInclusive(t *testing.T) {
	text := strings.Repeat("a", 40)
	e := NewExtractor(40, WithTextLayers(stubLayer{text: text}), WithRasterizer(&stubRasterizer{err: errors.New("unused")}))

	p, err := e.Extract(context.Background(), pdfBytes, "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, KindText, p.Kind)
}

func TestExtract_RasterFailsThenOCR(t *testing.T) {
	e := NewExtractor(40,
		WithTextLayers(stubLayer{err: errors.New("no text layer")}),
		WithRasterizer(&stubRasterizer{err: ErrToolUnavailable}),
		WithOCR(stubOCR{err: errors.New("engine down")}, stubOCR{text: leaseText}),
	)

	p, err := e.Extract(context.Background(), pdfBytes, "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, KindText, p.Kind)
	assert.Equal(t, MethodOCR, p.Method)
}

func TestExtract_ShortTextIsLastResort(t *testing.T) {
	e := NewExtractor(40,
		WithTextLayers(stubLayer{text: "Lease"}),
		WithRasterizer(nil),
		WithOCR(stubOCR{err: errors.New("engine down")}),
	)

	p, err := e.Extract(context.Background(), pdfBytes, "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, MethodShortText, p.Method)
	assert.Equal(t, "Lease", p.Text)
}

func TestExtract_AllStagesFail(t *testing.T) {
	e := NewExtractor(40,
		WithTextLayers(stubLayer{err: errors.New("broken xref")}),
		WithRasterizer(&stubRasterizer{err: ErrToolUnavailable}),
		WithOCR(stubOCR{text: "   "}),
	)

	_, err := e.Extract(context.Background(), pdfBytes, "application/pdf")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreadableDocument)
	assert.ErrorIs(t, err, ErrToolUnavailable)
}

func TestExtract_PlainTextAndImages(t *testing.T) {
	e := NewExtractor(40)

	p, err := e.Extract(context.Background(), []byte("Rent is due on the first.\r\n\r\n\r\nLate fee applies."), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, MethodPlainText, p.Method)
	assert.Equal(t, "Rent is due on the first.\n\nLate fee applies.", p.Text)

	p, err = e.Extract(context.Background(), testPNG(t, 30, 30), "")
	require.NoError(t, err)
	assert.Equal(t, KindImage, p.Kind)
	assert.Equal(t, MethodImageUpload, p.Method)

	// undecodable formats are passed through untouched
	heic := []byte("....ftypheic fake")
	p, err = e.Extract(context.Background(), heic, "image/heic")
	require.NoError(t, err)
	assert.Equal(t, heic, p.Image)
	assert.Equal(t, "image/heic", p.MIMEType)
}

func TestExtract_Rejections(t *testing.T) {
	e := NewExtractor(40)

	_, err := e.Extract(context.Background(), []byte{0x50, 0x4b, 0x03, 0x04}, "application/zip")
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = e.Extract(context.Background(), nil, "application/pdf")
	assert.ErrorIs(t, err, ErrUnreadableDocument)

	_, err = e.Extract(context.Background(), []byte{0xff, 0xfe, 0xfd}, "text/plain")
	assert.ErrorIs(t, err, ErrUnreadableDocument)
}

func TestDetectMIME(t *testing.T) {
	assert.Equal(t, "application/pdf", DetectMIME(pdfBytes, ""))
	assert.Equal(t, "application/pdf", DetectMIME(pdfBytes, "application/octet-stream"))
	assert.Equal(t, "text/plain", DetectMIME([]byte("x"), "text/plain; charset=utf-8"))
}

func TestPopplerText_MissingBinary(t *testing.T) {
	orig := lookPath
	lookPath = func(string) (string, error) { return "", errors.New("not found") }
	t.Cleanup(func() { lookPath = orig })

	_, err := PopplerText{}.ExtractText(context.Background(), pdfBytes)
	assert.ErrorIs(t, err, ErrToolUnavailable)

	_, _, err = NewCLIRasterizer(0).Rasterize(context.Background(), pdfBytes)
	assert.ErrorIs(t, err, ErrToolUnavailable)
}

func TestGoPDFText_GarbageDoesNotPanic(t *testing.T) {
	_, err := GoPDFText{}.ExtractText(context.Background(), []byte("%PDF-1.4 not really"))
	assert.Error(t, err)
}
