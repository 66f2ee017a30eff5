package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestNormalizeGrayReplicatesChannels(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 2, 2))
	gray.SetGray(1, 1, color.Gray{Y: 200})

	out := Normalize(gray)
	assert.Equal(t, color.RGBA{R: 200, G: 200, B: 200, A: 0xff}, out.RGBAAt(1, 1))
	assert.Equal(t, color.RGBA{A: 0xff}, out.RGBAAt(0, 0))
}

func TestNormalizeDropsAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 1, 2))
	src.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 128})
	src.SetNRGBA(0, 1, color.NRGBA{R: 250, G: 5, B: 60, A: 255})

	out := Normalize(src)
	assert.Equal(t, color.RGBA{R: 10, G: 20, B: 30, A: 0xff}, out.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{R: 250, G: 5, B: 60, A: 0xff}, out.RGBAAt(0, 1))
}

func TestNormalizeRebasesBounds(t *testing.T) {
	src := image.NewGray(image.Rect(5, 5, 8, 9))
	out := Normalize(src)
	assert.Equal(t, image.Rect(0, 0, 3, 4), out.Bounds())
}

func TestNormalizeBytes(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 4, 4))
	gray.SetGray(2, 2, color.Gray{Y: 77})

	out, err := NormalizeBytes(encodePNG(t, gray))
	require.NoError(t, err)

	img, format, err := Decode(out)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	r, g, b, a := img.At(2, 2).RGBA()
	assert.Equal(t, []uint32{77 * 0x101, 77 * 0x101, 77 * 0x101, 0xffff}, []uint32{r, g, b, a})
}

func TestNormalizeBytesJPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8)), nil))
	_, err := NormalizeBytes(buf.Bytes())
	assert.NoError(t, err)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, _, err := Decode([]byte("not an image"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, _, err = Decode(nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDecodeDataURI(t *testing.T) {
	raw := []byte("hello face")
	enc := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name    string
		payload string
		want    []byte
		wantErr bool
	}{
		{"with prefix", "data:image/jpeg;base64," + enc, raw, false},
		{"without prefix", enc, raw, false},
		{"unpadded", base64.RawStdEncoding.EncodeToString(raw), raw, false},
		{"surrounding whitespace", "  " + enc + "\n", raw, false},
		{"empty", "", nil, true},
		{"prefix only", "data:image/png;base64,", nil, true},
		{"no separator", "data:image/png;base64", nil, true},
		{"bad base64", "data:image/png;base64,@@@", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeDataURI(tt.payload)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedPayload)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEnrollExtension(t *testing.T) {
	for _, name := range []string{"a.jpg", "b.JPEG", "c.png"} {
		_, err := EnrollExtension(name)
		assert.NoError(t, err, name)
	}
	for _, name := range []string{"a.gif", "b", "c.webp", "d.png.exe"} {
		_, err := EnrollExtension(name)
		assert.ErrorIs(t, err, ErrUnsupportedFormat, name)
	}

	ext, err := EnrollExtension("Face.JPG")
	require.NoError(t, err)
	assert.Equal(t, ".jpg", ext)
}

func TestMimeType(t *testing.T) {
	assert.Equal(t, "image/png", MimeType("s1_1700000000.png"))
	assert.Equal(t, "image/jpeg", MimeType("s1_1700000000.jpeg"))
	assert.Equal(t, "image/jpeg", MimeType("s1_1700000000.jpg"))
}
