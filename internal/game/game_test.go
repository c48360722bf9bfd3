package game

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/albapepper/matchstats/internal/scoreboard"
	"github.com/albapepper/matchstats/internal/stats"
	"github.com/albapepper/matchstats/internal/transport"
	"github.com/albapepper/matchstats/internal/wire"
)

func TestParsePlayerToken(t *testing.T) {
	tests := []struct {
		tok    string
		name   string
		id     string
		fields stats.Fields
		ok     bool
	}{
		{"Steve:uuid1:kills=5:deaths=2:score=100", "Steve", "uuid1", stats.FieldsOf("kills", 5, "deaths", 2, "score", 100), true},
		{"Alex:uuid2:kills=3:junk:deaths=4", "Alex", "uuid2", stats.FieldsOf("kills", 3, "deaths", 4), true},
		{"Old:uuid9:1:2:3:4", "Old", "uuid9", stats.FieldsOf("kills", 1, "deaths", 2, "assists", 3, "score", 4), true},
		{"NoID::kills=1", "NoID", "", stats.FieldsOf("kills", 1), true},
		{"Eq:u:a=b=1", "", "", stats.Fields{}, false},
		{"Carl:uuid3:kills=abc", "", "", stats.Fields{}, false},
		{"Big:u:kills=3000000000", "", "", stats.Fields{}, false},
		{"Short:uuid", "", "", stats.Fields{}, false},
		{"Pos:u:1:2:3", "", "", stats.Fields{}, false},
		{"Pos:u:1:x:3:4", "", "", stats.Fields{}, false},
		{":u:kills=1", "", "", stats.Fields{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.tok, func(t *testing.T) {
			p, err := ParsePlayerToken(tt.tok)
			if !tt.ok {
				if !errors.Is(err, ErrMalformedStatToken) {
					t.Fatalf("err = %v, want ErrMalformedStatToken", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if p.PlayerName != tt.name || p.PlayerID != tt.id || !p.Fields.Equal(tt.fields) {
				t.Errorf("got %+v", p)
			}
		})
	}
}

func TestParseArgs(t *testing.T) {
	a, err := ParseArgs([]string{"Alice", "3", "Alice:uuid1:kills=7", "Carl:uuid3:kills=abc", "Bob:uuid2:kills=1"})
	if err != nil {
		t.Fatal(err)
	}
	if a.Winner != "Alice" || a.PlayerCount != 3 {
		t.Errorf("winner/count = %q/%d", a.Winner, a.PlayerCount)
	}
	if len(a.Players) != 2 || a.Players[0].PlayerName != "Alice" || a.Players[1].PlayerName != "Bob" {
		t.Errorf("players = %+v", a.Players)
	}
	if len(a.Warnings) != 1 {
		t.Errorf("warnings = %v", a.Warnings)
	}

	// A second argument that is not a count is a token.
	a, err = ParseArgs([]string{"Bob", "Bob:u:kills=2"})
	if err != nil || a.PlayerCount != -1 || len(a.Players) != 1 {
		t.Errorf("ParseArgs = %+v, %v", a, err)
	}
	a, _ = ParseArgs([]string{"Bob", "-2"})
	if a.PlayerCount != -1 || len(a.Warnings) != 1 {
		t.Errorf("negative count: %+v", a)
	}

	if _, err := ParseArgs(nil); !errors.Is(err, ErrMissingWinner) {
		t.Errorf("err = %v", err)
	}
}

func TestParseArgsOperatorExample(t *testing.T) {
	a, err := ParseArgs([]string{"Alice", "8", "Alice:uuid-a:kills=7:deaths=1", "Bob:uuid-b:kills=2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Warnings) != 0 || len(a.Players) != 2 {
		t.Fatalf("players = %+v, warnings = %v", a.Players, a.Warnings)
	}
	if k, _ := a.Players[0].Fields.Get("kills"); k != 7 {
		t.Errorf("Alice kills = %d", k)
	}
	if d, _ := a.Players[0].Fields.Get("deaths"); d != 1 {
		t.Errorf("Alice deaths = %d", d)
	}
}

type recorder struct {
	mu   sync.Mutex
	msgs []transport.Message
}

func (r *recorder) HandleMessage(_ context.Context, msg transport.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) messages() []transport.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transport.Message(nil), r.msgs...)
}

type fixture struct {
	ctl   *Controller
	bus   *transport.Bus
	lobby *recorder
	proxy *recorder
}

func newFixture(t *testing.T, sb scoreboard.Config) fixture {
	t.Helper()
	bus := transport.NewBus()
	f := fixture{bus: bus, lobby: &recorder{}, proxy: &recorder{}}
	bus.Subscribe("Lobby-1", stats.Channel, f.lobby)
	bus.Subscribe("Proxy-1", CommandChannel, f.proxy)
	f.ctl = NewController(Options{
		Scoreboard:   sb,
		Codec:        wire.NewCodec(wire.Dynamic),
		Publisher:    bus.Endpoint("Skyblock-1"),
		GameName:     "Skyblock",
		LobbyServer:  "Lobby-1",
		ProxyService: "Proxy-1",
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	f.ctl.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	t.Cleanup(f.ctl.Close)
	return f
}

func (f fixture) published(t *testing.T) stats.StatRecord {
	t.Helper()
	msgs := f.lobby.messages()
	if len(msgs) != 1 {
		t.Fatalf("lobby got %d messages, want 1", len(msgs))
	}
	if msgs[0].Topic != stats.Topic {
		t.Errorf("topic = %q", msgs[0].Topic)
	}
	rec, err := wire.NewCodec(wire.Dynamic).Decode(msgs[0].Payload)
	if err != nil {
		t.Fatal(err)
	}
	return rec
}

func TestEndGameWithManualTokens(t *testing.T) {
	f := newFixture(t, scoreboard.Config{Enabled: true, Policy: scoreboard.Max})
	f.ctl.Snapshot([]scoreboard.Observation{{PlayerName: "Zed", Fields: []scoreboard.Sample{scoreboard.Int("kills", 9)}}})

	res, err := f.ctl.EndGame(context.Background(), Request{
		Args: []string{"Alice", "3", "Alice:uuid1:kills=7:deaths=0", "Carl:uuid3:kills=abc", "Carl:uuid3:kills=3"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != SourceManual || !res.Published || res.Entries != 2 || len(res.Warnings) != 1 {
		t.Errorf("result = %+v", res)
	}

	rec := f.published(t)
	if rec.MatchID != res.MatchID || rec.Winner != "Alice" || rec.PlayerCount != 3 || rec.GameName != "Skyblock" {
		t.Errorf("record = %s", rec)
	}
	if rec.Timestamp != 1_700_000_000_000 {
		t.Errorf("timestamp = %d", rec.Timestamp)
	}
	if len(rec.Players) != 2 || rec.Players[1].PlayerName != "Carl" {
		t.Fatalf("players = %+v", rec.Players)
	}
	if v, _ := rec.Players[1].Fields.Get("kills"); v != 3 {
		t.Errorf("Carl kills = %d", v)
	}

	// Manual stats still end the match for the scoreboard.
	if st := f.ctl.Peek(); st.Players != 0 {
		t.Errorf("scoreboard not cleared: %+v", st)
	}
}

func TestEndGameAttachesScoreboard(t *testing.T) {
	f := newFixture(t, scoreboard.Config{Enabled: true, Policy: scoreboard.Max})
	f.ctl.Snapshot([]scoreboard.Observation{
		{PlayerName: "Alice", PlayerID: "uuid1", Fields: []scoreboard.Sample{scoreboard.Int("kills", 2)}},
		{PlayerName: "Bob", PlayerID: "uuid2", Fields: []scoreboard.Sample{{Key: "kills", Value: "?"}}},
	})

	res, err := f.ctl.EndGame(context.Background(), Request{
		Args:  []string{"Alice"},
		Final: []scoreboard.Observation{{PlayerName: "Alice", Fields: []scoreboard.Sample{scoreboard.Int("kills", 5)}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != SourceScoreboard || res.Entries != 1 {
		t.Errorf("result = %+v", res)
	}
	// Two players were tracked even though only one had values.
	if res.PlayerCount != 2 {
		t.Errorf("PlayerCount = %d, want 2", res.PlayerCount)
	}
	rec := f.published(t)
	if v, _ := rec.Players[0].Fields.Get("kills"); v != 5 || rec.Players[0].PlayerID != "uuid1" {
		t.Errorf("players = %+v", rec.Players)
	}

	f.ctl.Wait()
	var cmds []string
	for _, m := range f.proxy.messages() {
		if m.Topic != CommandTopic {
			t.Errorf("topic = %q", m.Topic)
		}
		cmds = append(cmds, string(m.Payload))
	}
	if !slices.Equal(cmds, []string{"send Alice Lobby-1", "send Bob Lobby-1"}) {
		t.Errorf("teleport commands = %q", cmds)
	}
	if res.Teleporting != 2 {
		t.Errorf("Teleporting = %d", res.Teleporting)
	}
}

func TestEndGameWithoutAnyData(t *testing.T) {
	f := newFixture(t, scoreboard.Config{Enabled: false})
	res, err := f.ctl.EndGame(context.Background(), Request{Args: []string{"nobody"}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != SourceNone || res.PlayerCount != 0 || res.Teleporting != 0 {
		t.Errorf("result = %+v", res)
	}
	if rec := f.published(t); len(rec.Players) != 0 {
		t.Errorf("players = %+v", rec.Players)
	}
}

func TestEndGamePublishFailureStillCompletes(t *testing.T) {
	f := newFixture(t, scoreboard.Config{Enabled: true, Policy: scoreboard.Sum})
	f.bus.SetFailure(errors.New("network down"))
	f.ctl.Snapshot([]scoreboard.Observation{{PlayerName: "Alice", Fields: []scoreboard.Sample{scoreboard.Int("kills", 1)}}})

	res, err := f.ctl.EndGame(context.Background(), Request{Args: []string{"Alice"}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Published || res.PublishError == "" {
		t.Errorf("result = %+v", res)
	}
	if res.Teleporting != 1 {
		t.Errorf("teleport not scheduled: %+v", res)
	}
	if st := f.ctl.Peek(); st.Players != 0 {
		t.Error("scoreboard not cleared after failed publish")
	}
	f.ctl.Wait()
}

func TestEndGameMissingWinner(t *testing.T) {
	f := newFixture(t, scoreboard.Config{Enabled: true})
	f.ctl.Snapshot([]scoreboard.Observation{{PlayerName: "Alice", Fields: []scoreboard.Sample{scoreboard.Int("kills", 1)}}})
	if _, err := f.ctl.EndGame(context.Background(), Request{}); !errors.Is(err, ErrMissingWinner) {
		t.Fatalf("err = %v", err)
	}
	if st := f.ctl.Peek(); st.Players != 1 {
		t.Error("rejected command must not clear the scoreboard")
	}
	if len(f.lobby.messages()) != 0 {
		t.Error("rejected command published")
	}
}

func TestCloseCancelsPendingTeleport(t *testing.T) {
	f := newFixture(t, scoreboard.Config{Enabled: true})
	f.ctl.opts.TeleportDelay = time.Hour
	f.ctl.Snapshot([]scoreboard.Observation{{PlayerName: "Alice", Fields: []scoreboard.Sample{scoreboard.Int("kills", 1)}}})
	if _, err := f.ctl.EndGame(context.Background(), Request{Args: []string{"Alice"}}); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		f.ctl.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on a pending teleport")
	}
	if n := len(f.proxy.messages()); n != 0 {
		t.Errorf("%d teleport commands sent after Close", n)
	}
}

func TestConfigureMidMatch(t *testing.T) {
	f := newFixture(t, scoreboard.Config{Enabled: true, Policy: scoreboard.Max})
	f.ctl.Snapshot([]scoreboard.Observation{{PlayerName: "Alice", Fields: []scoreboard.Sample{scoreboard.Int("kills", 1)}}})
	if err := f.ctl.Configure(scoreboard.Config{Enabled: true, Policy: scoreboard.Sum}); !errors.Is(err, scoreboard.ErrMatchInProgress) {
		t.Errorf("err = %v", err)
	}
	f.ctl.Reset()
	if err := f.ctl.Configure(scoreboard.Config{Enabled: true, Policy: scoreboard.Sum}); err != nil {
		t.Errorf("Configure after Reset: %v", err)
	}
	if p := f.ctl.Peek().Policy; p != "SUM" {
		t.Errorf("policy = %q", p)
	}
}
