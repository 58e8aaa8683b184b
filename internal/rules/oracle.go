// Package rules wraps the chess move validator behind the narrow oracle
// surface the arena needs: apply one proposed move to a position and
// classify the result. The oracle is pure; rejections leave no state.
package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/agent-chess-arena/internal/domain"
)

// InitialFEN is the standard start position, and the canonical external
// encoding of a fresh game.
const InitialFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// ErrIllegalMove reports a move the rules reject for the current position.
var ErrIllegalMove = errors.New("illegal move")

// MoveRef carries a proposed move in either accepted form: a movetext
// token (UCI or SAN) or a structured square pair with optional promotion
// piece. Both forms resolve through the same validation path.
type MoveRef struct {
	Token     string
	From      string
	To        string
	Promotion string
}

func (m MoveRef) canonical() string {
	from := strings.TrimSpace(m.From)
	to := strings.TrimSpace(m.To)
	if from != "" && to != "" {
		return strings.ToLower(from + to + strings.TrimSpace(m.Promotion))
	}
	return strings.TrimSpace(m.Token)
}

// Verdict classifies the position reached after a move.
type Verdict struct {
	Terminal bool
	Outcome  domain.Outcome
	Method   string
}

// Applied is the oracle's answer for an accepted move.
type Applied struct {
	FEN     string
	SAN     string
	UCI     string
	Verdict Verdict
}

// Replay rebuilds a game from the start position by applying the stored
// UCI history. The FEN kept on the game record is presentation state;
// replaying the history preserves castling rights and repetition tracking.
func Replay(movesUCI []string) (*nchess.Game, error) {
	game := nchess.NewGame()
	for _, mv := range movesUCI {
		if err := game.PushNotationMove(strings.ToLower(strings.TrimSpace(mv)), nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("replay move %s: %w", mv, err)
		}
	}
	return game, nil
}

// Apply validates the proposed move against the position reached by
// movesUCI and, when legal, returns the new position with both encodings
// of the move. Inputs are never mutated.
func Apply(movesUCI []string, ref MoveRef) (*Applied, error) {
	game, err := Replay(movesUCI)
	if err != nil {
		return nil, err
	}
	pos := game.Position()

	raw := ref.canonical()
	if raw == "" {
		return nil, ErrIllegalMove
	}

	var san, uci string
	if mv, derr := (nchess.UCINotation{}).Decode(pos, strings.ToLower(raw)); derr == nil {
		// Decode only parses squares; legality is checked by Move.
		if err := game.Move(mv, nil); err != nil {
			return nil, ErrIllegalMove
		}
		san = nchess.AlgebraicNotation{}.Encode(pos, mv)
		uci = mv.String()
	} else {
		if err := game.PushNotationMove(raw, nchess.AlgebraicNotation{}, nil); err != nil {
			return nil, ErrIllegalMove
		}
		mv := lastMove(game)
		if mv == nil {
			return nil, ErrIllegalMove
		}
		san = nchess.AlgebraicNotation{}.Encode(pos, mv)
		uci = mv.String()
	}

	return &Applied{
		FEN:     game.FEN(),
		SAN:     san,
		UCI:     uci,
		Verdict: verdictFrom(game),
	}, nil
}

func lastMove(game *nchess.Game) *nchess.Move {
	moves := game.Moves()
	if len(moves) == 0 {
		return nil
	}
	return moves[len(moves)-1]
}

// verdictFrom classifies the current position. Checkmate awards the side
// that just moved; every other terminal method is a draw.
func verdictFrom(game *nchess.Game) Verdict {
	switch game.Outcome() {
	case nchess.WhiteWon:
		return Verdict{Terminal: true, Outcome: domain.OutcomeWhiteWins, Method: methodName(game)}
	case nchess.BlackWon:
		return Verdict{Terminal: true, Outcome: domain.OutcomeBlackWins, Method: methodName(game)}
	case nchess.Draw:
		return Verdict{Terminal: true, Outcome: domain.OutcomeDraw, Method: methodName(game)}
	default:
		return Verdict{}
	}
}

func methodName(game *nchess.Game) string {
	return strings.ToLower(game.Method().String())
}
