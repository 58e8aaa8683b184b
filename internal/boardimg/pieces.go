package boardimg

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Piece glyphs are simple geometric silhouettes authored as inline SVG
// on a 45x45 viewbox. They rasterize at any square size without assets
// on disk.
var pieceSVG = map[string]string{
	"P": `<path d="M22.5 9a5.5 5.5 0 0 0-3.2 10 8 8 0 0 0-4.3 7c0 2.2.9 4.2 2.4 5.6-3.9 1.8-6.4 5.6-6.4 9.9h23c0-4.3-2.5-8.1-6.4-9.9a7.9 7.9 0 0 0 2.4-5.6 8 8 0 0 0-4.3-7 5.5 5.5 0 0 0-3.2-10z"/>`,
	"R": `<path d="M9 39h27v-3H9v3zm3-4h21v-3H12v3zm1-4h19L30 14h-15L13 31zm-1-26v9h4v-4h4v4h7v-4h4v4h4V5h-4v3h-4V5h-7v3h-4V5h-4z"/>`,
	"N": `<path d="M22 10c10.5 1 16.5 8 16 29H15c0-9 10-6.5 8-21-2 2-4 3-6 3-2.5 6-7 4-7 4-1.5-2 1-4 1-4s-3 .5-3-2c0-2 4-8 4-8s1-2 2-3l1-4s2 2 3 2c2 0 4 4 4 4z"/>`,
	"B": `<path d="M22.5 8a2.5 2.5 0 1 0 0 5 2.5 2.5 0 0 0 0-5zm0 6c-5 4-8.5 8.7-8.5 13.5 0 3 1.6 5.2 3.8 6.5h9.4c2.2-1.3 3.8-3.5 3.8-6.5 0-4.8-3.5-9.5-8.5-13.5zm-9 21.5c-2 0-4.5 1-4.5 3.5h27c0-2.5-2.5-3.5-4.5-3.5h-18z"/>`,
	"Q": `<path d="M8 13a2.5 2.5 0 1 1 2 2.4L13 27l4.5-11.5a2.5 2.5 0 1 1 2.7-.2L22.5 27l2.3-11.7a2.5 2.5 0 1 1 2.7.2L32 27l3-11.6a2.5 2.5 0 1 1 2-.1L34 31H11L8 13zm3 20h23v3H11v-3zm-1 4h25v3H10v-3z"/>`,
	"K": `<path d="M21 6h3v4h4v3h-4v4h-3v-4h-4v-3h4V6zm1.5 12c-6 0-11 4.1-11 9.2 0 2.9 1.6 5.4 4 7l-1.5 4.8h17L29.5 34.2c2.4-1.6 4-4.1 4-7 0-5.1-5-9.2-11-9.2zm-9 22.5h18v3.5h-18v-3.5z"/>`,
}

type pieceCacheKey struct {
	code string
	size int
}

var (
	pieceCache   = map[pieceCacheKey]image.Image{}
	pieceCacheMu sync.RWMutex
)

func renderPieceImage(code string, size int) (image.Image, error) {
	key := pieceCacheKey{code: code, size: size}

	pieceCacheMu.RLock()
	if img, ok := pieceCache[key]; ok {
		pieceCacheMu.RUnlock()
		return img, nil
	}
	pieceCacheMu.RUnlock()

	doc, err := pieceDocument(code)
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg %s: %w", code, err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	pieceCacheMu.Lock()
	pieceCache[key] = img
	pieceCacheMu.Unlock()

	return img, nil
}

// pieceDocument wraps the glyph for a FEN piece letter in a full SVG
// document, filled white or black by the letter's case.
func pieceDocument(code string) ([]byte, error) {
	if len(code) != 1 {
		return nil, fmt.Errorf("unknown piece %q", code)
	}
	upper := code
	fill, stroke := "#ffffff", "#1a1a1a"
	if code[0] >= 'a' && code[0] <= 'z' {
		upper = string(code[0] - 'a' + 'A')
		fill, stroke = "#1a1a1a", "#e8e8e8"
	}
	glyph, ok := pieceSVG[upper]
	if !ok {
		return nil, fmt.Errorf("unknown piece %q", code)
	}
	doc := fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 45 45"><g fill="%s" stroke="%s" stroke-width="1.5" stroke-linejoin="round">%s</g></svg>`,
		fill, stroke, glyph,
	)
	return []byte(doc), nil
}
