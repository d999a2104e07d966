package protocol

import (
	"errors"
	"testing"

	"github.com/goccy/go-json"

	"github.com/dkeye/callroom/internal/domain"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    Event
		wantErr bool
	}{
		{"join", `{"event":"room:join","data":{"email":"a@x","room":"r1"}}`, RoomJoin, false},
		{"no data", `{"event":"ping"}`, Ping, false},
		{"missing event", `{"data":{}}`, "", true},
		{"not json", `hello`, "", true},
		{"array", `[1,2]`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Decode([]byte(tt.frame))
			if tt.wantErr {
				if !errors.Is(err, domain.ErrMalformedMessage) {
					t.Fatalf("err = %v, want ErrMalformedMessage", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if env.Event != tt.want {
				t.Errorf("event = %q, want %q", env.Event, tt.want)
			}
		})
	}
}

func TestStampReplacesRoutingFields(t *testing.T) {
	in := []byte(`{"to":"b","socketid":"spoof","from":"spoof","offer":{"type":"offer","sdp":"v=0"}}`)
	out, err := Stamp(in, "a")
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]json.RawMessage
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatal(err)
	}
	if _, ok := got["to"]; ok {
		t.Error("to must be stripped")
	}
	if _, ok := got["socketid"]; ok {
		t.Error("socketid must be stripped")
	}
	if string(got["from"]) != `"a"` {
		t.Errorf("from = %s, want \"a\"", got["from"])
	}
	var offer struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}
	if err := json.Unmarshal(got["offer"], &offer); err != nil {
		t.Fatal(err)
	}
	if offer.Type != "offer" || offer.SDP != "v=0" {
		t.Errorf("offer = %+v, payload must pass through", offer)
	}
}

func TestStampEmptyAndInvalid(t *testing.T) {
	out, err := Stamp(nil, "a")
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"from":"a"}` {
		t.Errorf("stamp(nil) = %s", out)
	}
	if _, err := Stamp([]byte(`"text"`), "a"); !errors.Is(err, domain.ErrMalformedMessage) {
		t.Errorf("err = %v, want ErrMalformedMessage", err)
	}
}

func TestEncode(t *testing.T) {
	f, err := Encode(UserJoined, UserEvent{Identity: "b@x", ID: "b"})
	if err != nil {
		t.Fatal(err)
	}
	env, err := Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if env.Event != UserJoined {
		t.Fatalf("event = %q", env.Event)
	}
	var ev UserEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.ID != "b" || ev.Identity != "b@x" {
		t.Errorf("data = %+v", ev)
	}
}

func TestBind(t *testing.T) {
	var req JoinRequest
	if err := Bind([]byte(`{"email":"a@x","room":"r1"}`), &req); err != nil {
		t.Fatal(err)
	}
	if req.Identity != "a@x" || req.Room != "r1" {
		t.Errorf("req = %+v", req)
	}

	for name, data := range map[string]string{
		"missing room": `{"email":"a@x"}`,
		"empty":        ``,
		"wrong type":   `{"email":1,"room":"r1"}`,
	} {
		t.Run(name, func(t *testing.T) {
			var req JoinRequest
			if err := Bind([]byte(data), &req); !errors.Is(err, domain.ErrMalformedMessage) {
				t.Errorf("err = %v, want ErrMalformedMessage", err)
			}
		})
	}
}

func TestRoutes(t *testing.T) {
	tests := []struct {
		in       Event
		kind     domain.Kind
		out      Event
		targeted bool
	}{
		{UserCall, domain.KindCallOffer, IncomingCall, true},
		{CallAccepted, domain.KindCallAnswer, CallAccepted, true},
		{NegoDone, domain.KindRenegotiationAnswer, NegoFinal, true},
		{MessagesSent, domain.KindChat, MessagesSent, false},
		{OpponentName, domain.KindPresence, OpponentNameOut, false},
	}
	for _, tt := range tests {
		r, ok := RouteOf(tt.in)
		if !ok {
			t.Fatalf("no route for %q", tt.in)
		}
		if r.Kind != tt.kind || r.Out != tt.out || r.Kind.Targeted() != tt.targeted {
			t.Errorf("%s: route = %+v", tt.in, r)
		}
	}
	if _, ok := RouteOf(RoomJoin); ok {
		t.Error("room:join is not a relay event")
	}
}
