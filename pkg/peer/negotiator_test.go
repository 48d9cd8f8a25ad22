package peer

import (
	"context"
	"testing"
	"time"

	"github.com/lainio/err2/try"
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
)

const openTimeout = 15 * time.Second

func newTestAPI(embed bool) *API {
	return NewAPI(Config{
		IncludeLoopback: true,
		EmbedCandidates: embed,
	})
}

func waitOpen(t *testing.T, n Negotiator, who string) {
	t.Helper()

	select {
	case <-n.ChannelOpen():
	case <-time.After(openTimeout):
		t.Fatalf("%s: data channel did not open", who)
	}
}

func assertEcho(t *testing.T, o *Offerer, a *Answerer) {
	t.Helper()

	if _, err := o.Channel().Write([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	buf := make([]byte, 64)
	n, err := a.Channel().Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := string(buf[:n]); got != "hello" {
		t.Fatalf("read %q, want %q", got, "hello")
	}
}

func TestNegotiation_BatchedExchange(t *testing.T) {
	api := newTestAPI(false)
	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()

	o, offer := try.To2(NewOfferer(api))
	defer o.Close()

	a, answer := try.To2(NewAnswerer(api, offer))
	defer a.Close()

	local := try.To1(o.Connect(ctx, answer))

	if err := a.AddICECandidates(ctx, local...); err != nil {
		t.Fatalf("answerer AddICECandidates: %v", err)
	}

	select {
	case <-a.Gathered():
	default:
		t.Fatal("answerer returned before gathering completed")
	}

	if err := o.AddICECandidates(a.Candidates()...); err != nil {
		t.Fatalf("offerer AddICECandidates: %v", err)
	}

	waitOpen(t, o, "offerer")
	waitOpen(t, a, "answerer")

	if label := a.DataChannel().Label(); label != DefaultLabel {
		t.Errorf("label = %q, want %q", label, DefaultLabel)
	}

	assertEcho(t, o, a)
}

func TestNegotiation_CandidatesBeforeAnswererGathered(t *testing.T) {
	api := newTestAPI(false)
	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()

	o, offer := try.To2(NewOfferer(api))
	defer o.Close()
	<-o.Gathered()

	a, answer := try.To2(NewAnswerer(api, offer))
	defer a.Close()

	// Applied right after construction, while the answerer is still gathering.
	for _, c := range o.Candidates() {
		if err := a.AddICECandidates(ctx, c); err != nil {
			t.Fatalf("answerer AddICECandidates: %v", err)
		}
	}

	if _, err := o.Connect(ctx, answer); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := o.AddICECandidates(a.Candidates()...); err != nil {
		t.Fatalf("offerer AddICECandidates: %v", err)
	}

	waitOpen(t, o, "offerer")
	waitOpen(t, a, "answerer")
}

func TestNegotiation_EmbeddedCandidates(t *testing.T) {
	api := newTestAPI(true)

	o, _ := try.To2(NewOfferer(api))
	defer o.Close()
	<-o.Gathered()

	a, _ := try.To2(NewAnswerer(api, *o.LocalDescription()))
	defer a.Close()
	<-a.Gathered()

	if err := o.conn.SetRemoteDescription(*a.LocalDescription()); err != nil {
		t.Fatalf("set remote answer: %v", err)
	}

	waitOpen(t, o, "offerer")
	waitOpen(t, a, "answerer")

	assertEcho(t, o, a)
}

func TestOfferer_AddCandidatesBeforeAnswer(t *testing.T) {
	o, _ := try.To2(NewOfferer(newTestAPI(false)))
	defer o.Close()

	err := o.AddICECandidates(webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 127.0.0.1 9 typ host"})

	var negErr *NegotiationError
	if !errors.As(err, &negErr) {
		t.Fatalf("err = %v, want NegotiationError", err)
	}
	if !errors.Is(err, ErrNotNegotiated) {
		t.Errorf("err = %v, want %v", err, ErrNotNegotiated)
	}
}

func TestOfferer_MalformedAnswer(t *testing.T) {
	o, _ := try.To2(NewOfferer(newTestAPI(false)))
	defer o.Close()

	_, err := o.Connect(context.Background(), webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  "not an sdp",
	})

	var negErr *NegotiationError
	if !errors.As(err, &negErr) {
		t.Fatalf("err = %v, want NegotiationError", err)
	}
}

func TestOfferer_ConnectRejectsOffer(t *testing.T) {
	o, offer := try.To2(NewOfferer(newTestAPI(false)))
	defer o.Close()

	_, err := o.Connect(context.Background(), offer)
	if !errors.Is(err, ErrUnexpectedSDPType) {
		t.Fatalf("err = %v, want %v", err, ErrUnexpectedSDPType)
	}
}

func TestNewAnswerer_InvalidOffer(t *testing.T) {
	api := newTestAPI(false)

	audioOnly := "v=0\r\n" +
		"o=- 0 0 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
		"c=IN IP4 0.0.0.0\r\n" +
		"a=rtpmap:111 opus/48000/2\r\n"

	cases := []struct {
		name  string
		offer webrtc.SessionDescription
		want  error
	}{
		{
			name:  "answer type",
			offer: webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: audioOnly},
			want:  ErrUnexpectedSDPType,
		},
		{
			name:  "no data channel",
			offer: webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: audioOnly},
			want:  ErrNoDataChannel,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := NewAnswerer(api, tc.offer)

			var negErr *NegotiationError
			if !errors.As(err, &negErr) {
				t.Fatalf("err = %v, want NegotiationError", err)
			}
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}

	_, _, err := NewAnswerer(api, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "garbage"})
	var negErr *NegotiationError
	if !errors.As(err, &negErr) {
		t.Fatalf("garbage offer: err = %v, want NegotiationError", err)
	}
}

func TestSession_CloseIdempotent(t *testing.T) {
	o, _ := try.To2(NewOfferer(newTestAPI(false)))

	if err := o.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := o.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
