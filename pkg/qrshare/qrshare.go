// Package qrshare renders share links of the current map view as QR PNGs
// with a music-note badge in the middle.
//
// The code is generated by github.com/skip2/go-qrcode at ECC level H, which
// leaves enough redundancy for the badge to cover the centre modules.
package qrshare

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	qrcode "github.com/skip2/go-qrcode"
)

// MaxURLLength stays below the byte capacity of a version 40 code at ECC H.
// Longer links are truncated by the handler before they reach EncodePNG.
const MaxURLLength = 1200

// Options controls the output image.
type Options struct {
	TargetPx int        // edge length of the PNG
	Fg       color.RGBA // QR modules
	Bg       color.RGBA // background including the quiet zone
	Badge    color.RGBA // music note colour

	// BadgeFrac is the badge box edge as a share of the image, clamped to
	// 0.18..0.30 so the code stays decodable.
	BadgeFrac float64
}

// ConcertPurple matches the concert markers on the map.
var ConcertPurple = color.RGBA{0x9C, 0x27, 0xB0, 0xFF}

func (o *Options) defaults() {
	if o.TargetPx <= 0 {
		o.TargetPx = 1024
	}
	if o.BadgeFrac <= 0 {
		o.BadgeFrac = 0.26
	}
	o.BadgeFrac = math.Max(0.18, math.Min(0.30, o.BadgeFrac))
	if (o.Fg == color.RGBA{}) {
		o.Fg = color.RGBA{0, 0, 0, 255}
	}
	if (o.Bg == color.RGBA{}) {
		o.Bg = color.RGBA{255, 255, 255, 255}
	}
	if (o.Badge == color.RGBA{}) {
		o.Badge = ConcertPurple
	}
}

// Render builds the QR image for text.
func Render(text string, opt Options) (*image.RGBA, error) {
	opt.defaults()

	qr, err := qrcode.New(text, qrcode.Highest)
	if err != nil {
		return nil, err
	}
	qr.ForegroundColor = opt.Fg
	qr.BackgroundColor = opt.Bg

	src := qr.Image(opt.TargetPx)
	b := src.Bounds()
	W, H := b.Dx(), b.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, W, H))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)

	box := int(opt.BadgeFrac * float64(min(W, H)))
	box -= box % 2
	cx, cy := W/2, H/2
	fillRect(dst, cx-box/2, cy-box/2, box, box, opt.Bg)
	drawNote(dst, cx, cy, box, opt.Badge)
	return dst, nil
}

// EncodePNG writes the QR for text as PNG.
func EncodePNG(w io.Writer, text string, opt Options) error {
	img, err := Render(text, opt)
	if err != nil {
		return err
	}
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	return enc.Encode(w, img)
}

// drawNote paints a beamed pair of eighth notes inside a box of the given
// edge centred on (cx, cy).
func drawNote(dst *image.RGBA, cx, cy, box int, col color.RGBA) {
	u := float64(box) / 10 // layout unit

	headR := int(1.3 * u)
	leftX, rightX := cx-int(2.2*u), cx+int(2.2*u)
	leftY, rightY := cy+int(2.6*u), cy+int(2.0*u)
	stem := max(1, int(0.55*u))
	top := cy - int(3.4*u)

	fillEllipse(dst, leftX, leftY, headR+headR/3, headR, col)
	fillEllipse(dst, rightX, rightY, headR+headR/3, headR, col)

	lx := leftX + headR + headR/3 - stem
	rx := rightX + headR + headR/3 - stem
	fillRect(dst, lx, top, stem, leftY-top, col)
	fillRect(dst, rx, top-int(0.6*u), stem, rightY-top+int(0.6*u), col)

	// beam between the stem tops
	beam := max(2, int(1.0*u))
	for x := lx; x < rx+stem; x++ {
		t := float64(x-lx) / float64(rx+stem-lx)
		y := top - int(t*0.6*u)
		fillRect(dst, x, y, 1, beam, col)
	}
}

func fillRect(img *image.RGBA, x, y, w, h int, col color.RGBA) {
	draw.Draw(img, image.Rect(x, y, x+w, y+h), &image.Uniform{col}, image.Point{}, draw.Src)
}

func fillEllipse(img *image.RGBA, cx, cy, rx, ry int, col color.RGBA) {
	if rx <= 0 || ry <= 0 {
		return
	}
	b := img.Bounds()
	for y := max(cy-ry, b.Min.Y); y <= min(cy+ry, b.Max.Y-1); y++ {
		dy := float64(y-cy) / float64(ry)
		half := int(float64(rx) * math.Sqrt(math.Max(0, 1-dy*dy)))
		for x := max(cx-half, b.Min.X); x <= min(cx+half, b.Max.X-1); x++ {
			img.SetRGBA(x, y, col)
		}
	}
}
