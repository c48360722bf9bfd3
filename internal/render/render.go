// Package render turns a decoded StatRecord into display lines using header,
// per-player and footer templates with {placeholder} substitution.
//
// Header and footer lines know {game_name}, {winner}, {player_count},
// {match_id} and any configured constant. The per-player line knows
// {player_name} plus every field of that player. A placeholder nobody
// provides is left in the output as written, so missing data stays visible.
package render

import (
	"io"
	"strconv"
	"strings"

	"github.com/valyala/fasttemplate"

	"github.com/albapepper/matchstats/internal/stats"
)

const (
	startTag = "{"
	endTag   = "}"
)

// Defaults used when a template group is not configured.
var (
	DefaultHeader = []string{
		"&6&l[Game Stats] &e{game_name} &7ended!",
		"&aWinner: &f{winner} &7| &aPlayers: &f{player_count}",
	}
	DefaultPlayerLine = "&f{player_name} &7- &aK: &f{kills} &cD: &f{deaths}"
	DefaultFooter     = []string{"&8Match {match_id}"}
)

// Templates groups the three template kinds plus constants.
type Templates struct {
	Header     []string `yaml:"header" json:"header"`
	PlayerLine string   `yaml:"player_line" json:"player_line"`
	Footer     []string `yaml:"footer" json:"footer"`
	// Constants are extra placeholders available in header and footer
	// lines, e.g. {"duration": "5m"}.
	Constants map[string]string `yaml:"constants" json:"constants"`
}

// DefaultTemplates returns the built-in layout.
func DefaultTemplates() Templates {
	return Templates{
		Header:     append([]string(nil), DefaultHeader...),
		PlayerLine: DefaultPlayerLine,
		Footer:     append([]string(nil), DefaultFooter...),
		Constants:  map[string]string{},
	}
}

// line is one parsed template. Text from the first unterminated placeholder
// onwards is kept in tail and emitted literally.
type line struct {
	tpl  *fasttemplate.Template
	tail string
}

func parse(raw string) line {
	if tpl, err := fasttemplate.NewTemplate(raw, startTag, endTag); err == nil {
		return line{tpl: tpl}
	}
	// Only a start tag without an end tag fails, so cutting at the last
	// start tag always makes progress.
	i := strings.LastIndex(raw, startTag)
	head := parse(raw[:i])
	head.tail += raw[i:]
	return head
}

func (l line) execute(lookup func(tag string) (string, bool)) string {
	out := l.tpl.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		if v, ok := lookup(tag); ok {
			return io.WriteString(w, v)
		}
		return io.WriteString(w, startTag+tag+endTag)
	})
	return out + l.tail
}

// Renderer renders records with a fixed set of templates. It holds no
// mutable state and may be shared.
type Renderer struct {
	header    []line
	player    line
	footer    []line
	constants map[string]string
}

// New parses the templates once.
func New(t Templates) *Renderer {
	r := &Renderer{
		player:    parse(t.PlayerLine),
		constants: make(map[string]string, len(t.Constants)),
	}
	for _, h := range t.Header {
		r.header = append(r.header, parse(h))
	}
	for _, f := range t.Footer {
		r.footer = append(r.footer, parse(f))
	}
	for k, v := range t.Constants {
		r.constants[k] = v
	}
	return r
}

// Render returns all header lines, one line per player in record order, then
// all footer lines, each with color codes translated.
func (r *Renderer) Render(rec stats.StatRecord) []string {
	out := make([]string, 0, len(r.header)+len(rec.Players)+len(r.footer))

	match := func(tag string) (string, bool) {
		switch tag {
		case "game_name":
			return rec.GameName, true
		case "winner":
			return rec.Winner, true
		case "player_count":
			return strconv.Itoa(rec.PlayerCount), true
		case "match_id":
			return rec.MatchID.String(), true
		}
		v, ok := r.constants[tag]
		return v, ok
	}

	for _, h := range r.header {
		out = append(out, TranslateColors(h.execute(match)))
	}
	for _, p := range rec.Players {
		out = append(out, TranslateColors(r.player.execute(playerLookup(p))))
	}
	for _, f := range r.footer {
		out = append(out, TranslateColors(f.execute(match)))
	}
	return out
}

func playerLookup(p stats.PlayerStatRecord) func(string) (string, bool) {
	return func(tag string) (string, bool) {
		if tag == "player_name" {
			return p.PlayerName, true
		}
		if v, ok := p.Fields.Get(tag); ok {
			return strconv.FormatInt(int64(v), 10), true
		}
		return "", false
	}
}

// Summary is the one-line chat broadcast for a finished match.
func Summary(rec stats.StatRecord) string {
	var b strings.Builder
	b.WriteString("§6§l[Game Stats] §e")
	b.WriteString(rec.GameName)
	b.WriteString(" §7ended! §aWinner: §f")
	b.WriteString(rec.Winner)
	b.WriteString(" §7| §aPlayers: §f")
	b.WriteString(strconv.Itoa(rec.PlayerCount))
	return b.String()
}
