package game

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/albapepper/matchstats/internal/stats"
	"github.com/albapepper/matchstats/internal/wire"
)

var (
	// ErrMalformedStatToken is wrapped by every rejected player token.
	ErrMalformedStatToken = errors.New("malformed stat token")
	// ErrMissingWinner is returned when gameend has no arguments.
	ErrMissingWinner = errors.New("usage: gameend <winner> [playerCount] [player:id:field=value...]")
)

// Args is a parsed gameend command line.
type Args struct {
	Winner string
	// PlayerCount is -1 when not given.
	PlayerCount int
	Players     []stats.PlayerStatRecord
	// Warnings has one entry per skipped token.
	Warnings []string
}

// ParseArgs reads "<winner> [playerCount] [token...]". The second argument
// is taken as the player count only if it is a non-negative integer;
// otherwise it is parsed as a token. Malformed tokens are skipped with a
// warning.
func ParseArgs(args []string) (Args, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return Args{}, ErrMissingWinner
	}
	out := Args{Winner: args[0], PlayerCount: -1}

	rest := args[1:]
	if len(rest) > 0 {
		if n, err := strconv.ParseInt(rest[0], 10, 32); err == nil && n >= 0 {
			out.PlayerCount = int(n)
			rest = rest[1:]
		}
	}

	for _, tok := range rest {
		p, err := ParsePlayerToken(tok)
		if err != nil {
			out.Warnings = append(out.Warnings, fmt.Sprintf("Skipped malformed stat entry: %s", tok))
			continue
		}
		out.Players = append(out.Players, p)
	}
	return out, nil
}

// ParsePlayerToken reads one player token. Two forms are accepted:
//
//	name:id:field=value[:field=value...]
//	name:id:kills:deaths:assists:score
//
// The second form applies when the third piece has no '='. In the first,
// pieces without '=' are ignored. Any value that is not an int32 rejects the
// whole token.
func ParsePlayerToken(tok string) (stats.PlayerStatRecord, error) {
	parts := strings.Split(tok, ":")
	if len(parts) < 3 {
		return stats.PlayerStatRecord{}, fmt.Errorf("%w: %q: want at least name:id:stats", ErrMalformedStatToken, tok)
	}
	if parts[0] == "" {
		return stats.PlayerStatRecord{}, fmt.Errorf("%w: %q: empty player name", ErrMalformedStatToken, tok)
	}
	p := stats.PlayerStatRecord{PlayerName: parts[0], PlayerID: parts[1]}

	if strings.Contains(parts[2], "=") {
		for _, piece := range parts[2:] {
			key, raw, ok := strings.Cut(piece, "=")
			if !ok {
				continue
			}
			v, err := parseValue(raw)
			if err != nil {
				return stats.PlayerStatRecord{}, fmt.Errorf("%w: %q: field %s: %v", ErrMalformedStatToken, tok, key, err)
			}
			p.Fields.Set(key, v)
		}
		return p, nil
	}

	if len(parts) < 2+len(wire.LegacyFields) {
		return stats.PlayerStatRecord{}, fmt.Errorf("%w: %q: positional form needs kills:deaths:assists:score", ErrMalformedStatToken, tok)
	}
	for i, name := range wire.LegacyFields {
		v, err := parseValue(parts[2+i])
		if err != nil {
			return stats.PlayerStatRecord{}, fmt.Errorf("%w: %q: %s: %v", ErrMalformedStatToken, tok, name, err)
		}
		p.Fields.Set(name, v)
	}
	return p, nil
}

func parseValue(s string) (int32, error) {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(n), nil
}
