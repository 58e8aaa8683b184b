// Package boardimg renders a chess position as a PNG from its FEN. The
// board is drawn white-side up with file and rank coordinates in the
// margins.
package boardimg

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	squareSize = 72
	sideMargin = 28
	boardSize  = squareSize * 8
)

var (
	lightSquare   = color.RGBA{233, 207, 163, 255}
	darkSquare    = color.RGBA{187, 136, 96, 255}
	frameColor    = color.RGBA{28, 31, 46, 255}
	coordinateInk = color.RGBA{236, 239, 255, 255}
)

// Render draws the position described by fen. Only the piece placement
// field is consulted.
func Render(fen string) ([]byte, error) {
	board, err := parseBoard(fen)
	if err != nil {
		return nil, err
	}

	total := boardSize + sideMargin*2
	img := image.NewRGBA(image.Rect(0, 0, total, total))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(frameColor), image.Point{}, imagedraw.Src)

	origin := image.Point{X: sideMargin, Y: sideMargin}
	drawSquares(img, origin)
	if err := drawPieces(img, board, origin); err != nil {
		return nil, err
	}
	drawCoordinates(img, origin)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// parseBoard expands the placement field into rows, row 0 = rank 8.
// Cells hold the FEN piece letter or zero for empty.
func parseBoard(fen string) ([8][8]byte, error) {
	var board [8][8]byte
	placement := strings.Fields(strings.TrimSpace(fen))
	if len(placement) == 0 {
		return board, fmt.Errorf("empty fen")
	}
	rows := strings.Split(placement[0], "/")
	if len(rows) != 8 {
		return board, fmt.Errorf("fen has %d ranks", len(rows))
	}
	for r, row := range rows {
		col := 0
		for i := 0; i < len(row); i++ {
			c := row[i]
			switch {
			case c >= '1' && c <= '8':
				col += int(c - '0')
			case strings.ContainsRune("pnbrqkPNBRQK", rune(c)):
				if col > 7 {
					return board, fmt.Errorf("rank %d overflows", 8-r)
				}
				board[r][col] = c
				col++
			default:
				return board, fmt.Errorf("bad fen char %q", c)
			}
		}
		if col != 8 {
			return board, fmt.Errorf("rank %d has %d files", 8-r, col)
		}
	}
	return board, nil
}

func drawSquares(dst imagedraw.Image, origin image.Point) {
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			x := origin.X + col*squareSize
			y := origin.Y + row*squareSize
			clr := lightSquare
			if (row+col)%2 == 1 {
				clr = darkSquare
			}
			imagedraw.Draw(dst, image.Rect(x, y, x+squareSize, y+squareSize), image.NewUniform(clr), image.Point{}, imagedraw.Src)
		}
	}
}

func drawPieces(dst imagedraw.Image, board [8][8]byte, origin image.Point) error {
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			piece := board[row][col]
			if piece == 0 {
				continue
			}
			img, err := renderPieceImage(string(piece), squareSize)
			if err != nil {
				return err
			}
			x := origin.X + col*squareSize
			y := origin.Y + row*squareSize
			imagedraw.Draw(dst, image.Rect(x, y, x+squareSize, y+squareSize), img, image.Point{}, imagedraw.Over)
		}
	}
	return nil
}

func drawCoordinates(dst imagedraw.Image, origin image.Point) {
	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(coordinateInk),
		Face: basicfont.Face7x13,
	}
	ascent := basicfont.Face7x13.Metrics().Ascent.Ceil()

	for row := 0; row < 8; row++ {
		rank := fmt.Sprintf("%d", 8-row)
		baseline := origin.Y + row*squareSize + squareSize/2 + ascent/2
		drawCentered(drawer, rank, origin.X-sideMargin/2, baseline)
	}
	for col := 0; col < 8; col++ {
		file := string(rune('a' + col))
		centerX := origin.X + col*squareSize + squareSize/2
		drawCentered(drawer, file, centerX, origin.Y+boardSize+ascent+4)
	}
}

func drawCentered(drawer *font.Drawer, text string, centerX, baseline int) {
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}
