// Command call_smoke negotiates a real WebRTC data channel between two users
// using only the server's signaling relay.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/pion/webrtc/v4"

	"github.com/vovakirdan/wirecall-server/internal/proto"
)

type frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

type peer struct {
	name   string
	conn   *websocket.Conn
	frames chan frame
	pc     *webrtc.PeerConnection
}

func main() {
	if err := run(); err != nil {
		log.Printf("call_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	base := flag.String("base", "http://localhost:8080", "server base URL")
	room := flag.String("room", "call-smoke", "channel id used to announce the call")
	timeout := flag.Duration("timeout", 20*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	suffix := fmt.Sprint(time.Now().UnixNano())
	alice, err := connect(ctx, *base, "alice-"+suffix)
	if err != nil {
		return err
	}
	defer alice.close()
	bob, err := connect(ctx, *base, "bob-"+suffix)
	if err != nil {
		return err
	}
	defer bob.close()

	for _, p := range []*peer{alice, bob} {
		if err := p.send(ctx, proto.InboundTypeJoin, proto.RoomData{RoomID: *room}); err != nil {
			return err
		}
	}
	if _, err := alice.await(ctx, proto.EventNamePresence); err != nil {
		return err
	}

	if err := alice.send(ctx, proto.InboundTypeCallInvite, proto.CallData{RoomData: proto.RoomData{RoomID: *room}}); err != nil {
		return err
	}
	var invite proto.EventCallInvite
	if err := bob.awaitInto(ctx, proto.EventNameCallInvite, &invite); err != nil {
		return err
	}
	log.Printf("bob got invite %s from %s", invite.CallID, invite.FromUser)

	callRoom := proto.CallRoomData{CallRoomID: invite.CallID}
	if err := alice.send(ctx, proto.InboundTypeCallJoin, callRoom); err != nil {
		return err
	}
	// Give alice's join a head start so bob's join is announced to her.
	time.Sleep(100 * time.Millisecond)
	if err := bob.send(ctx, proto.InboundTypeCallJoin, callRoom); err != nil {
		return err
	}
	var joined proto.EventCallPresence
	if err := alice.awaitInto(ctx, proto.EventNameCallJoined, &joined); err != nil {
		return err
	}
	bobSession := joined.SessionID

	opened := make(chan struct{})
	if err := alice.newPeerConnection(); err != nil {
		return err
	}
	if err := bob.newPeerConnection(); err != nil {
		return err
	}

	dc, err := alice.pc.CreateDataChannel("smoke", nil)
	if err != nil {
		return fmt.Errorf("create data channel: %w", err)
	}
	dc.OnOpen(func() {
		log.Printf("data channel open")
		close(opened)
	})

	// alice only learns bob's handle; bob learns alice's from the offer.
	aliceSession := make(chan string, 1)
	trickle(ctx, alice, func() string { return bobSession })
	trickle(ctx, bob, func() string {
		select {
		case s := <-aliceSession:
			aliceSession <- s
			return s
		case <-ctx.Done():
			return ""
		}
	})

	offer, err := alice.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := alice.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}
	if err := alice.sendSignal(ctx, proto.InboundTypeCallOffer, bobSession, offer); err != nil {
		return err
	}

	errs := make(chan error, 2)
	go func() { errs <- bob.answerLoop(ctx, aliceSession) }()
	go func() { errs <- alice.offerLoop(ctx) }()

	select {
	case <-opened:
		log.Printf("smoke ok: call %s connected", invite.CallID)
		_ = alice.send(ctx, proto.InboundTypeCallLeave, callRoom)
		_ = bob.send(ctx, proto.InboundTypeCallLeave, callRoom)
		return nil
	case err := <-errs:
		return err
	case <-ctx.Done():
		return errors.New("timed out waiting for the data channel")
	}
}

func connect(ctx context.Context, base, username string) (*peer, error) {
	token, err := register(ctx, base, username)
	if err != nil {
		return nil, err
	}
	wsURL := strings.Replace(base, "http", "ws", 1) + "/ws?token=" + url.QueryEscape(token)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s dial: %w", username, err)
	}
	p := &peer{name: username, conn: conn, frames: make(chan frame, 64)}
	go p.readLoop(ctx)
	if _, err := p.await(ctx, proto.EventNameSession); err != nil {
		return nil, err
	}
	return p, nil
}

func register(ctx context.Context, base, username string) (string, error) {
	body, _ := json.Marshal(map[string]string{"username": username, "password": "call-smoke-password"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/auth/register", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("register %s: %w", username, err)
	}
	defer resp.Body.Close()
	var auth struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil || auth.Token == "" {
		return "", fmt.Errorf("register %s: status %d", username, resp.StatusCode)
	}
	return auth.Token, nil
}

func (p *peer) readLoop(ctx context.Context) {
	defer close(p.frames)
	for {
		var f frame
		if err := wsjson.Read(ctx, p.conn, &f); err != nil {
			return
		}
		p.frames <- f
	}
}

func (p *peer) next(ctx context.Context) (frame, error) {
	select {
	case f, ok := <-p.frames:
		if !ok {
			return frame{}, fmt.Errorf("%s: connection closed", p.name)
		}
		if f.Type == proto.OutboundTypeError && f.Error != nil {
			return frame{}, fmt.Errorf("%s: server error %s: %s", p.name, f.Error.Code, f.Error.Msg)
		}
		return f, nil
	case <-ctx.Done():
		return frame{}, ctx.Err()
	}
}

func (p *peer) await(ctx context.Context, event string) (frame, error) {
	for {
		f, err := p.next(ctx)
		if err != nil {
			return frame{}, err
		}
		if f.Event == event {
			return f, nil
		}
	}
}

func (p *peer) awaitInto(ctx context.Context, event string, v any) error {
	f, err := p.await(ctx, event)
	if err != nil {
		return err
	}
	return json.Unmarshal(f.Data, v)
}

func (p *peer) send(ctx context.Context, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if err := wsjson.Write(ctx, p.conn, proto.Inbound{Type: eventType, Data: payload}); err != nil {
		return fmt.Errorf("%s send %s: %w", p.name, eventType, err)
	}
	return nil
}

func (p *peer) sendSignal(ctx context.Context, eventType, to string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	data := proto.SignalData{To: to}
	switch eventType {
	case proto.InboundTypeCallOffer:
		data.Offer = raw
	case proto.InboundTypeCallAnswer:
		data.Answer = raw
	default:
		data.Candidate = raw
	}
	return p.send(ctx, eventType, data)
}

func (p *peer) newPeerConnection() error {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return fmt.Errorf("%s peer connection: %w", p.name, err)
	}
	p.pc = pc
	return nil
}

// trickle forwards local candidates to whoever target names once it is known.
func trickle(ctx context.Context, p *peer, target func() string) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		go func() {
			to := target()
			if to == "" {
				return
			}
			if err := p.sendSignal(ctx, proto.InboundTypeCallIce, to, c.ToJSON()); err != nil {
				log.Printf("%s: %v", p.name, err)
			}
		}()
	})
}

// answerLoop handles the callee side: answer the offer, then apply candidates.
func (p *peer) answerLoop(ctx context.Context, caller chan<- string) error {
	for {
		f, err := p.next(ctx)
		if err != nil {
			return err
		}
		switch f.Event {
		case proto.EventNameCallOffer:
			var ev proto.EventCallOffer
			if err := json.Unmarshal(f.Data, &ev); err != nil {
				return err
			}
			var offer webrtc.SessionDescription
			if err := json.Unmarshal(ev.Offer, &offer); err != nil {
				return fmt.Errorf("decode offer: %w", err)
			}
			if err := p.pc.SetRemoteDescription(offer); err != nil {
				return fmt.Errorf("set remote offer: %w", err)
			}
			answer, err := p.pc.CreateAnswer(nil)
			if err != nil {
				return fmt.Errorf("create answer: %w", err)
			}
			if err := p.pc.SetLocalDescription(answer); err != nil {
				return fmt.Errorf("set local answer: %w", err)
			}
			caller <- ev.From
			if err := p.sendSignal(ctx, proto.InboundTypeCallAnswer, ev.From, answer); err != nil {
				return err
			}
		case proto.EventNameCallIce:
			if err := p.addCandidate(f.Data); err != nil {
				return err
			}
		}
	}
}

// offerLoop handles the caller side: apply the answer and candidates.
func (p *peer) offerLoop(ctx context.Context) error {
	for {
		f, err := p.next(ctx)
		if err != nil {
			return err
		}
		switch f.Event {
		case proto.EventNameCallAnswer:
			var ev proto.EventCallAnswer
			if err := json.Unmarshal(f.Data, &ev); err != nil {
				return err
			}
			var answer webrtc.SessionDescription
			if err := json.Unmarshal(ev.Answer, &answer); err != nil {
				return fmt.Errorf("decode answer: %w", err)
			}
			if err := p.pc.SetRemoteDescription(answer); err != nil {
				return fmt.Errorf("set remote answer: %w", err)
			}
		case proto.EventNameCallIce:
			if err := p.addCandidate(f.Data); err != nil {
				return err
			}
		}
	}
}

func (p *peer) addCandidate(data json.RawMessage) error {
	var ev proto.EventCallIce
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(ev.Candidate, &candidate); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}
	if err := p.pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("%s add candidate: %w", p.name, err)
	}
	return nil
}

func (p *peer) close() {
	if p.pc != nil {
		_ = p.pc.Close()
	}
	_ = p.conn.Close(websocket.StatusNormalClosure, "bye")
}
