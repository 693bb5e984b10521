package main

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ghettovoice/gosip/sip"

	"opconsole/media"
)

// fakeRenderer records the order of media operations.
type fakeRenderer struct {
	mu  sync.Mutex
	ops []string
}

func (f *fakeRenderer) Bind(ep media.Endpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "bind "+ep.String())
	return nil
}

func (f *fakeRenderer) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "stop")
}

func (f *fakeRenderer) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "close")
}

func (f *fakeRenderer) history() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func testPhoneSettings() *Settings {
	return &Settings{
		sipEnabled:   true,
		sipServer:    "sip.example.com",
		sipDomain:    "example.com",
		sipUsername:  "operator",
		sipPassword:  "secret",
		sipTransport: "udp",
		sipExpires:   3600,
		sipPort:      5060,
		mediaPort:    4000,
	}
}

func waitPhoneEvent(t *testing.T, ch <-chan PhoneEvent) PhoneEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no phone event within a second")
		return nil
	}
}

func TestCallFailsFastWhenUnregistered(t *testing.T) {
	p := NewPhone(testPhoneSettings(), &fakeRenderer{})
	if err := p.Call("79991234567"); err == nil {
		t.Fatal("expected error calling while unregistered")
	}
	if p.InCall() {
		t.Error("failed call left a session behind")
	}
}

func TestCallFailsFastWhenBusy(t *testing.T) {
	p := NewPhone(testPhoneSettings(), &fakeRenderer{})
	p.registered = true
	p.sess = &phoneSession{callID: "live"}

	if err := p.Call("79991234567"); err == nil {
		t.Fatal("expected error calling while in a call")
	}
	if p.sess.callID != "live" {
		t.Errorf("existing session disturbed: %q", p.sess.callID)
	}
}

func TestIncomingCallConsumedOnce(t *testing.T) {
	p := NewPhone(testPhoneSettings(), &fakeRenderer{})
	ic := &IncomingCall{CallerNumber: "79991234567", phone: p, callID: "c1"}

	// No live session, so the accept itself fails, but the call is consumed.
	if err := ic.Accept(); err == nil {
		t.Error("accept without session should fail")
	}
	if err := ic.Accept(); err == nil {
		t.Error("second accept should be rejected")
	}
	if err := ic.Reject(); err == nil {
		t.Error("reject after accept should be rejected")
	}
}

func TestEndSessionStopsRendererBeforeEvent(t *testing.T) {
	renderer := &fakeRenderer{}
	p := NewPhone(testPhoneSettings(), renderer)
	p.sess = &phoneSession{callID: "c1", started: true}

	p.endSession("c1", "test")

	ev := waitPhoneEvent(t, p.Events())
	ended, ok := ev.(PhoneCallEnded)
	if !ok || ended.CallID != "c1" {
		t.Fatalf("expected PhoneCallEnded{c1}, got %#v", ev)
	}
	// Stop was recorded before the event could be read, so the renderer was
	// released ahead of the notification.
	ops := renderer.history()
	if len(ops) != 1 || ops[0] != "stop" {
		t.Errorf("renderer ops = %v, want [stop]", ops)
	}
	if p.InCall() {
		t.Error("session still live after end")
	}
}

func TestEndSessionFiresExactlyOnce(t *testing.T) {
	renderer := &fakeRenderer{}
	p := NewPhone(testPhoneSettings(), renderer)
	p.sess = &phoneSession{callID: "c1", started: true}

	p.endSession("c1", "first")
	p.endSession("c1", "second")

	waitPhoneEvent(t, p.Events())
	select {
	case ev := <-p.Events():
		t.Errorf("second end notification: %#v", ev)
	case <-time.After(50 * time.Millisecond):
	}
	if got := len(renderer.history()); got != 1 {
		t.Errorf("renderer stopped %d times, want 1", got)
	}
}

func TestEndSessionIgnoresOtherCallIDs(t *testing.T) {
	p := NewPhone(testPhoneSettings(), &fakeRenderer{})
	p.sess = &phoneSession{callID: "c1"}

	p.endSession("other", "mismatch")
	if !p.InCall() {
		t.Error("session torn down by foreign call id")
	}
}

func TestStartSessionBindsThenReports(t *testing.T) {
	renderer := &fakeRenderer{}
	p := NewPhone(testPhoneSettings(), renderer)
	p.sess = &phoneSession{callID: "c1"}

	ep := media.Endpoint{Host: "10.0.0.5", Port: 40000}
	p.startSession("c1", ep)

	ev := waitPhoneEvent(t, p.Events())
	started, ok := ev.(PhoneCallStarted)
	if !ok || started.CallID != "c1" {
		t.Fatalf("expected PhoneCallStarted{c1}, got %#v", ev)
	}
	ops := renderer.history()
	if len(ops) != 1 || ops[0] != "bind "+ep.String() {
		t.Errorf("renderer ops = %v", ops)
	}

	// Repeat start is a no-op.
	p.startSession("c1", ep)
	select {
	case ev := <-p.Events():
		t.Errorf("second start notification: %#v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSendDTMFWithoutCall(t *testing.T) {
	p := NewPhone(testPhoneSettings(), &fakeRenderer{})
	if err := p.SendDTMF("1"); err == nil {
		t.Error("expected error sending DTMF with no call")
	}
}

func TestHangupWithoutCallIsNoop(t *testing.T) {
	p := NewPhone(testPhoneSettings(), &fakeRenderer{})
	p.Hangup()
	select {
	case ev := <-p.Events():
		t.Errorf("unexpected event: %#v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOutboundAnswerCapturesRemoteTag(t *testing.T) {
	p := NewPhone(testPhoneSettings(), &fakeRenderer{})
	p.localHost = "10.0.0.2"
	p.localPort = 5060

	sess, req, err := p.buildOutbound("79991234567")
	if err != nil {
		t.Fatalf("buildOutbound: %v", err)
	}

	res := sip.NewResponseFromRequest("", req, statusOK, "OK", BuildSDP("10.0.0.9", 40000))
	toHdr, ok := res.To()
	if !ok {
		t.Fatal("response has no To header")
	}
	toHdr.Params = sip.NewParams().Add("tag", sip.String{Str: "remote-tag"})

	sess.captureRemoteTag(res)

	if sess.remoteAddr.Params == nil {
		t.Fatal("remote params not populated")
	}
	tag, ok := sess.remoteAddr.Params.Get("tag")
	if !ok || tag.String() != "remote-tag" {
		t.Errorf("remote tag = %v (present=%v), want remote-tag", tag, ok)
	}
}

func TestCaptureRemoteTagWithoutTag(t *testing.T) {
	p := NewPhone(testPhoneSettings(), &fakeRenderer{})
	p.localHost = "10.0.0.2"
	p.localPort = 5060

	sess, req, err := p.buildOutbound("79991234567")
	if err != nil {
		t.Fatalf("buildOutbound: %v", err)
	}
	sess.remoteAddr.Params = nil

	// A provisional without a tag, and an answer against a bare address,
	// both leave the session intact.
	res := sip.NewResponseFromRequest("", req, statusRinging, "Ringing", "")
	sess.captureRemoteTag(res)
	if sess.remoteAddr.Params != nil {
		t.Errorf("params invented from tagless response: %v", sess.remoteAddr.Params)
	}

	toHdr, _ := res.To()
	toHdr.Params = sip.NewParams().Add("tag", sip.String{Str: "late-tag"})
	sess.captureRemoteTag(res)
	tag, ok := sess.remoteAddr.Params.Get("tag")
	if !ok || tag.String() != "late-tag" {
		t.Errorf("tag = %v (present=%v), want late-tag", tag, ok)
	}
}

func TestReserveSessionAtomicWithBusyCheck(t *testing.T) {
	p := NewPhone(testPhoneSettings(), &fakeRenderer{})
	p.localHost = "10.0.0.2"
	p.localPort = 5060
	p.registered = true

	inbound := &phoneSession{callID: "inbound"}
	if err := p.reserveSession(inbound); err != nil {
		t.Fatalf("reserve inbound: %v", err)
	}

	outbound, _, err := p.buildOutbound("79991234567")
	if err != nil {
		t.Fatalf("buildOutbound: %v", err)
	}
	if err := p.reserveSession(outbound); err == nil {
		t.Fatal("expected busy error reserving over a live session")
	}
	if p.sess != inbound {
		t.Errorf("live session displaced: %v", p.sess)
	}

	// Releasing a session that lost the race must not free the winner's slot.
	p.releaseSession(outbound)
	if p.sess != inbound {
		t.Error("releaseSession freed a foreign session")
	}
	p.releaseSession(inbound)
	if p.sess != nil {
		t.Error("releaseSession left the slot claimed")
	}
}

func TestReserveSessionRequiresRegistration(t *testing.T) {
	p := NewPhone(testPhoneSettings(), &fakeRenderer{})
	if err := p.reserveSession(&phoneSession{callID: "c1"}); err == nil {
		t.Fatal("expected error reserving while unregistered")
	}
	if p.sess != nil {
		t.Error("failed reservation left a session behind")
	}
}

func TestConnectFailureAllowsRetry(t *testing.T) {
	s := testPhoneSettings()
	s.publicAddress = "10.0.0.2"
	s.sipTransport = "bogus"
	p := NewPhone(s, &fakeRenderer{})

	if err := p.Connect(); err == nil {
		t.Fatal("expected listen failure on bogus transport")
	}
	err := p.Connect()
	if err == nil {
		t.Fatal("expected second connect to fail the same way")
	}
	if strings.Contains(err.Error(), "already connected") {
		t.Errorf("failed connect left the phone marked connected: %v", err)
	}
}
