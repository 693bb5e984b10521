package main

import (
	"fmt"
	"sync"
	"time"

	gosip "github.com/ghettovoice/gosip"
	gosiplog "github.com/ghettovoice/gosip/log"
	"github.com/ghettovoice/gosip/sip"
	"github.com/ghettovoice/gosip/sip/parser"
	"github.com/ghettovoice/gosip/util"

	"opconsole/media"
)

// Status codes beyond the ones the request path names explicitly.
const (
	statusOK            = sip.StatusCode(200)
	statusRinging       = sip.StatusCode(180)
	statusUnauthorized  = sip.StatusCode(401)
	statusProxyAuth     = sip.StatusCode(407)
	statusNotAcceptable = sip.StatusCode(488)
	statusBusyHere      = sip.StatusCode(486)
	statusDecline       = sip.StatusCode(603)
)

const registerTimeout = 15 * time.Second

// PhoneEvent is one signaling lifecycle notification. The phone publishes a
// single tagged stream instead of a bag of callbacks; the console loop is
// its only consumer.
type PhoneEvent interface{ phoneEvent() }

// PhoneRegistered reports successful registration. Exactly one of
// PhoneRegistered or PhoneError follows a Connect.
type PhoneRegistered struct{}

// PhoneError carries a human-readable signaling failure cause.
type PhoneError struct{ Cause string }

// PhoneIncoming announces a new incoming session, exactly once per session.
type PhoneIncoming struct{ Call *IncomingCall }

// PhoneCallStarted reports that a session's media is up.
type PhoneCallStarted struct{ CallID string }

// PhoneCallEnded reports session termination. Fired exactly once per
// session, always after the audio renderer has been released.
type PhoneCallEnded struct{ CallID string }

func (PhoneRegistered) phoneEvent()  {}
func (PhoneError) phoneEvent()       {}
func (PhoneIncoming) phoneEvent()    {}
func (PhoneCallStarted) phoneEvent() {}
func (PhoneCallEnded) phoneEvent()   {}

// IncomingCall describes one ringing inbound session. Accept and Reject are
// each valid at most once, and only before the session reaches a terminal
// state; later invocations are rejected.
type IncomingCall struct {
	CallerNumber string

	phone  *Phone
	callID string

	mu       sync.Mutex
	consumed bool
}

// Accept answers the session. The phone binds the audio renderer once the
// far end acknowledges.
func (ic *IncomingCall) Accept() error {
	if !ic.consume() {
		return fmt.Errorf("call %s already accepted or rejected", ic.callID)
	}
	return ic.phone.acceptCall(ic.callID)
}

// Reject declines the session.
func (ic *IncomingCall) Reject() error {
	if !ic.consume() {
		return fmt.Errorf("call %s already accepted or rejected", ic.callID)
	}
	return ic.phone.rejectCall(ic.callID)
}

func (ic *IncomingCall) consume() bool {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if ic.consumed {
		return false
	}
	ic.consumed = true
	return true
}

// phoneSession is the live signaling session. At most one exists at a time;
// it is referenced by SIP call id and destroyed on termination, never reused.
type phoneSession struct {
	callID       string
	callerNumber string
	localAddr    *sip.Address
	remoteAddr   *sip.Address
	contact      *sip.Address
	cseq         uint
	inviteReq    sip.Request
	remoteMedia  media.Endpoint
	started      bool
	terminal     bool
}

// captureRemoteTag records the To tag from a dialog-establishing response so
// in-dialog requests address the far end correctly. Tolerates a response
// without one and an address built without a parameter set.
func (sess *phoneSession) captureRemoteTag(res sip.Response) {
	toHdr, ok := res.To()
	if !ok || toHdr.Params == nil {
		return
	}
	tag, ok := toHdr.Params.Get("tag")
	if !ok {
		return
	}
	if sess.remoteAddr.Params == nil {
		sess.remoteAddr.Params = sip.NewParams()
	}
	sess.remoteAddr.Params = sess.remoteAddr.Params.Add("tag", tag)
}

// Phone is the signaling adapter: it wraps a gosip UA behind the small
// lifecycle contract the console consumes, and it exclusively owns the local
// audio renderer.
type Phone struct {
	settings *Settings
	renderer media.Renderer
	events   chan PhoneEvent

	srv       gosip.Server
	localHost string
	localPort int

	mu         sync.Mutex
	connected  bool
	registered bool
	regCSeq    uint
	sess       *phoneSession
}

// NewPhone creates a phone from settings. Connect must be called before any
// call can be placed or received.
func NewPhone(settings *Settings, renderer media.Renderer) *Phone {
	return &Phone{
		settings: settings,
		renderer: renderer,
		events:   make(chan PhoneEvent, 16),
	}
}

// Events returns the lifecycle event stream.
func (p *Phone) Events() <-chan PhoneEvent { return p.events }

// Registered reports whether the identity is currently registered.
func (p *Phone) Registered() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registered
}

// InCall reports whether a signaling session is live.
func (p *Phone) InCall() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sess != nil
}

// Connect starts the SIP listener and registers the configured identity.
// Completion is reported on the event stream: exactly one of PhoneRegistered
// or PhoneError. A failed Connect leaves the phone disconnected so it can be
// retried.
func (p *Phone) Connect() error {
	p.mu.Lock()
	if p.connected {
		p.mu.Unlock()
		return fmt.Errorf("phone already connected")
	}
	p.connected = true
	p.mu.Unlock()

	if err := p.connect(); err != nil {
		p.mu.Lock()
		p.connected = false
		p.mu.Unlock()
		return err
	}
	return nil
}

func (p *Phone) connect() error {
	host := p.settings.PublicAddress()
	if host == "" {
		detected, err := detectHostIP()
		if err != nil {
			return fmt.Errorf("detect host address: %w", err)
		}
		host = detected
	}
	p.localHost = host

	logger := gosiplog.NewLogrusLogger(sipLog, "SIP", nil)
	p.srv = gosip.NewServer(gosip.ServerConfig{Host: host, UserAgent: "opconsole"}, nil, nil, logger)

	if err := p.srv.OnRequest(sip.INVITE, p.handleInvite); err != nil {
		return err
	}
	if err := p.srv.OnRequest(sip.ACK, p.handleAck); err != nil {
		return err
	}
	if err := p.srv.OnRequest(sip.BYE, p.handleBye); err != nil {
		return err
	}

	port := p.settings.SIPPort()
	portRange := p.settings.SIPPortRange()
	transport := p.settings.SIPTransport()
	var listenErr error
	for i := 0; i <= portRange; i++ {
		addr := fmt.Sprintf(":%d", port+i)
		listenErr = p.srv.Listen(transport, addr)
		if listenErr == nil {
			p.localPort = port + i
			sipLog.Infof("listening on %s/%s", addr, transport)
			break
		}
		sipLog.Warnf("failed to listen on %s: %v", addr, listenErr)
	}
	if listenErr != nil {
		return fmt.Errorf("sip listen: %w", listenErr)
	}

	if ice := p.settings.StunServer(); ice != "" {
		// ICE relay config is opaque to the console; the media stack is
		// handed it unmodified.
		sipLog.Infof("stun server configured: %s", ice)
	}

	go func() {
		if err := p.register(p.settings.SIPExpires()); err != nil {
			sipLog.Warnf("registration failed: %v", err)
			p.emit(PhoneError{Cause: fmt.Sprintf("registration failed: %v", err)})
			return
		}
		p.mu.Lock()
		p.registered = true
		p.mu.Unlock()
		sipLog.Infof("registered as %s", p.settings.SIPUsername())
		p.emit(PhoneRegistered{})
	}()
	return nil
}

// Disconnect hangs up any live session, then deregisters. Idempotent.
func (p *Phone) Disconnect() {
	p.Hangup()

	p.mu.Lock()
	wasRegistered := p.registered
	p.registered = false
	p.connected = false
	p.mu.Unlock()

	if wasRegistered {
		if err := p.register(0); err != nil {
			sipLog.Warnf("deregistration failed: %v", err)
		}
	}
}

// Call originates an outbound session to destination. It fails fast, with
// no state change, when the identity is not registered or a session is
// already live. The session slot is reserved before the INVITE goes out, so
// an inbound INVITE racing on a gosip goroutine sees the phone busy instead
// of silently losing its session.
func (p *Phone) Call(destination string) error {
	sess, req, err := p.buildOutbound(destination)
	if err != nil {
		return err
	}
	if err := p.reserveSession(sess); err != nil {
		return err
	}

	tx, err := p.srv.Request(req)
	if err != nil {
		p.releaseSession(sess)
		return fmt.Errorf("send invite: %w", err)
	}

	sipLog.Infof("calling %s (call %s)", destination, sess.callID)
	go p.runOutbound(sess.callID, tx)
	return nil
}

// buildOutbound assembles the INVITE and its session record without touching
// phone state.
func (p *Phone) buildOutbound(destination string) (*phoneSession, sip.Request, error) {
	toURI, err := parser.ParseUri(fmt.Sprintf("sip:%s@%s", destination, p.settings.SIPDomain()))
	if err != nil {
		return nil, nil, fmt.Errorf("parse destination uri: %w", err)
	}
	fromURI, err := parser.ParseUri(fmt.Sprintf("sip:%s@%s", p.settings.SIPUsername(), p.settings.SIPDomain()))
	if err != nil {
		return nil, nil, fmt.Errorf("parse local uri: %w", err)
	}
	contactURI, err := parser.ParseUri(fmt.Sprintf("sip:%s@%s:%d", p.settings.SIPUsername(), p.localHost, p.localPort))
	if err != nil {
		return nil, nil, fmt.Errorf("parse contact uri: %w", err)
	}

	tag := util.RandString(8)
	fromAddr := &sip.Address{Uri: fromURI, Params: sip.NewParams().Add("tag", sip.String{Str: tag})}
	toAddr := &sip.Address{Uri: toURI, Params: sip.NewParams()}
	contactAddr := &sip.Address{Uri: contactURI}

	ctype := sip.ContentType("application/sdp")
	rb := sip.NewRequestBuilder().
		SetMethod(sip.INVITE).
		SetRecipient(toURI).
		SetFrom(fromAddr).
		SetTo(toAddr).
		SetContact(contactAddr).
		SetContentType(&ctype).
		SetBody(BuildSDP(p.localHost, p.settings.MediaPort()))

	req, err := rb.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build invite: %w", err)
	}

	cid, _ := req.CallID()
	callID := ""
	if cid != nil {
		callID = string(*cid)
	}

	return &phoneSession{
		callID:       callID,
		callerNumber: destination,
		localAddr:    fromAddr,
		remoteAddr:   toAddr,
		contact:      contactAddr,
		cseq:         1,
		inviteReq:    req,
	}, req, nil
}

// reserveSession claims the single session slot. The registered and busy
// checks are atomic with the claim.
func (p *Phone) reserveSession(sess *phoneSession) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.registered {
		return fmt.Errorf("phone not registered")
	}
	if p.sess != nil {
		return fmt.Errorf("already in a call")
	}
	p.sess = sess
	return nil
}

// releaseSession frees the slot only if sess still holds it.
func (p *Phone) releaseSession(sess *phoneSession) {
	p.mu.Lock()
	if p.sess == sess {
		p.sess = nil
	}
	p.mu.Unlock()
}

// Hangup terminates the live session, if any. Safe to call with no active
// session.
func (p *Phone) Hangup() {
	p.mu.Lock()
	sess := p.sess
	if sess != nil {
		sess.cseq++
	}
	p.mu.Unlock()
	if sess == nil {
		return
	}

	cid := sip.CallID(sess.callID)
	rb := sip.NewRequestBuilder().
		SetMethod(sip.BYE).
		SetRecipient(sess.remoteAddr.Uri).
		SetFrom(sess.localAddr).
		SetTo(sess.remoteAddr).
		SetContact(sess.localAddr).
		SetCallID(&cid).
		SetSeqNo(sess.cseq)

	req, err := rb.Build()
	if err != nil {
		sipLog.Warnf("build BYE: %v", err)
	} else if _, err := p.srv.Request(req); err != nil {
		sipLog.Warnf("send BYE: %v", err)
	}
	p.endSession(sess.callID, "hangup")
}

// SendDTMF sends digits over the live session as an INFO dtmf-relay body.
func (p *Phone) SendDTMF(digits string) error {
	p.mu.Lock()
	sess := p.sess
	if sess != nil {
		sess.cseq++
	}
	p.mu.Unlock()
	if sess == nil {
		return fmt.Errorf("no active call")
	}

	body := fmt.Sprintf("Signal=%s\r\nDuration=250\r\n", digits)
	cid := sip.CallID(sess.callID)
	ctype := sip.ContentType("application/dtmf-relay")
	rb := sip.NewRequestBuilder().
		SetMethod(sip.INFO).
		SetRecipient(sess.remoteAddr.Uri).
		SetFrom(sess.localAddr).
		SetTo(sess.remoteAddr).
		SetContact(sess.localAddr).
		SetCallID(&cid).
		SetSeqNo(sess.cseq).
		SetContentType(&ctype).
		SetBody(body)

	req, err := rb.Build()
	if err != nil {
		return fmt.Errorf("build INFO: %w", err)
	}
	if _, err := p.srv.Request(req); err != nil {
		return fmt.Errorf("send INFO: %w", err)
	}
	return nil
}

// register sends a REGISTER with the given expiry (0 deregisters) and waits
// for the final response, answering one digest challenge along the way.
func (p *Phone) register(expires int) error {
	registrarURI, err := parser.ParseUri("sip:" + p.settings.SIPServer())
	if err != nil {
		return fmt.Errorf("parse registrar uri: %w", err)
	}
	identityURI, err := parser.ParseUri(fmt.Sprintf("sip:%s@%s", p.settings.SIPUsername(), p.settings.SIPDomain()))
	if err != nil {
		return fmt.Errorf("parse identity uri: %w", err)
	}
	contactURI, err := parser.ParseUri(fmt.Sprintf("sip:%s@%s:%d", p.settings.SIPUsername(), p.localHost, p.localPort))
	if err != nil {
		return fmt.Errorf("parse contact uri: %w", err)
	}

	p.mu.Lock()
	p.regCSeq++
	cseq := p.regCSeq
	p.mu.Unlock()

	tag := util.RandString(8)
	fromAddr := &sip.Address{Uri: identityURI, Params: sip.NewParams().Add("tag", sip.String{Str: tag})}

	rb := sip.NewRequestBuilder().
		SetMethod(sip.REGISTER).
		SetRecipient(registrarURI).
		SetFrom(fromAddr).
		SetTo(&sip.Address{Uri: identityURI}).
		SetContact(&sip.Address{Uri: contactURI}).
		SetSeqNo(cseq).
		AddHeader(&sip.GenericHeader{HeaderName: "Expires", Contents: fmt.Sprintf("%d", expires)})

	req, err := rb.Build()
	if err != nil {
		return fmt.Errorf("build REGISTER: %w", err)
	}

	res, err := p.awaitFinal(req)
	if err != nil {
		return err
	}
	if res.StatusCode() == statusUnauthorized || res.StatusCode() == statusProxyAuth {
		authorizer := sip.DefaultAuthorizer{
			User:     sip.String{Str: p.settings.SIPUsername()},
			Password: sip.String{Str: p.settings.SIPPassword()},
		}
		if err := authorizer.AuthorizeRequest(req, res); err != nil {
			return fmt.Errorf("authorize REGISTER: %w", err)
		}
		if cseqHdr, ok := req.CSeq(); ok {
			cseqHdr.SeqNo++
		}
		res, err = p.awaitFinal(req)
		if err != nil {
			return err
		}
	}
	if res.StatusCode() < 200 || res.StatusCode() >= 300 {
		return fmt.Errorf("registrar answered %d %s", res.StatusCode(), res.Reason())
	}
	return nil
}

// awaitFinal sends req and blocks until its first non-provisional response.
func (p *Phone) awaitFinal(req sip.Request) (sip.Response, error) {
	tx, err := p.srv.Request(req)
	if err != nil {
		return nil, fmt.Errorf("send %s: %w", req.Method(), err)
	}
	deadline := time.After(registerTimeout)
	for {
		select {
		case res := <-tx.Responses():
			if res == nil {
				return nil, fmt.Errorf("%s transaction closed", req.Method())
			}
			if res.IsProvisional() {
				continue
			}
			return res, nil
		case err := <-tx.Errors():
			if err == nil {
				err = fmt.Errorf("%s transaction failed", req.Method())
			}
			return nil, err
		case <-tx.Done():
			return nil, fmt.Errorf("%s transaction done without final response", req.Method())
		case <-deadline:
			_ = tx.Cancel()
			return nil, fmt.Errorf("%s timed out", req.Method())
		}
	}
}

// runOutbound drives an outbound INVITE transaction to its terminal state.
func (p *Phone) runOutbound(callID string, tx sip.ClientTransaction) {
	for {
		select {
		case res := <-tx.Responses():
			if res == nil {
				p.failSession(callID, "call transaction closed")
				return
			}
			if res.IsProvisional() {
				sipLog.Infof("call %s progress: %d %s", callID, res.StatusCode(), res.Reason())
				continue
			}
			if res.StatusCode() >= 200 && res.StatusCode() < 300 {
				p.completeOutbound(callID, res)
			} else {
				p.failSession(callID, fmt.Sprintf("call failed: %d %s", res.StatusCode(), res.Reason()))
			}
			return
		case err := <-tx.Errors():
			cause := "call transaction failed"
			if err != nil {
				cause = fmt.Sprintf("call failed: %v", err)
			}
			p.failSession(callID, cause)
			return
		case <-tx.Done():
			return
		}
	}
}

// completeOutbound records the remote tag, acknowledges the 2xx, binds the
// renderer to the answered media endpoint and reports the call as started.
func (p *Phone) completeOutbound(callID string, res sip.Response) {
	p.mu.Lock()
	sess := p.sess
	if sess == nil || sess.callID != callID {
		p.mu.Unlock()
		return
	}
	sess.captureRemoteTag(res)
	sess.cseq = 1 // ACK carries the INVITE sequence number
	cid := sip.CallID(sess.callID)
	rb := sip.NewRequestBuilder().
		SetMethod(sip.ACK).
		SetRecipient(sess.remoteAddr.Uri).
		SetFrom(sess.localAddr).
		SetTo(sess.remoteAddr).
		SetContact(sess.contact).
		SetCallID(&cid).
		SetSeqNo(sess.cseq)
	p.mu.Unlock()

	if ack, err := rb.Build(); err != nil {
		sipLog.Warnf("build ACK: %v", err)
	} else if _, err := p.srv.Request(ack); err != nil {
		sipLog.Warnf("send ACK: %v", err)
	}

	ep, err := ParseSDP(res.Body())
	if err != nil {
		sipLog.Warnf("call %s answer sdp: %v", callID, err)
		p.failSession(callID, "call failed: unusable media answer")
		return
	}
	p.startSession(callID, ep)
}

// handleInvite admits one inbound session at a time. A second INVITE while
// a session is live is answered 486 — the single-session rule is enforced
// here, not assumed.
func (p *Phone) handleInvite(req sip.Request, tx sip.ServerTransaction) {
	cid, _ := req.CallID()
	callID := ""
	if cid != nil {
		callID = string(*cid)
	}

	p.mu.Lock()
	busy := p.sess != nil
	p.mu.Unlock()
	if busy {
		sipLog.Warnf("rejecting INVITE %s: session already active", callID)
		p.srv.RespondOnRequest(req, statusBusyHere, "Busy Here", "", nil)
		return
	}

	fromHdr, _ := req.From()
	toHdr, _ := req.To()
	caller := ""
	if fromHdr != nil && fromHdr.Address != nil {
		if u := fromHdr.Address.User(); u != nil {
			caller = u.String()
		}
	}

	remoteMedia, err := ParseSDP(req.Body())
	if err != nil {
		sipLog.Warnf("rejecting INVITE %s: %v", callID, err)
		p.srv.RespondOnRequest(req, statusNotAcceptable, "Not Acceptable Here", "", nil)
		return
	}

	sess := &phoneSession{
		callID:       callID,
		callerNumber: caller,
		localAddr:    sip.NewAddressFromToHeader(toHdr),
		remoteAddr:   sip.NewAddressFromFromHeader(fromHdr),
		contact:      sip.NewAddressFromToHeader(toHdr),
		cseq:         1,
		inviteReq:    req,
		remoteMedia:  remoteMedia,
	}
	if fromHdr != nil && fromHdr.Params != nil {
		if tag, ok := fromHdr.Params.Get("tag"); ok {
			if sess.remoteAddr.Params == nil {
				sess.remoteAddr.Params = sip.NewParams()
			}
			sess.remoteAddr.Params = sess.remoteAddr.Params.Add("tag", tag)
		}
	}

	p.mu.Lock()
	if p.sess != nil {
		// Lost the race against another INVITE.
		p.mu.Unlock()
		p.srv.RespondOnRequest(req, statusBusyHere, "Busy Here", "", nil)
		return
	}
	p.sess = sess
	p.mu.Unlock()

	sipLog.Infof("incoming call %s from %s", callID, caller)
	p.srv.RespondOnRequest(req, statusRinging, "Ringing", "", nil)
	p.emit(PhoneIncoming{Call: &IncomingCall{CallerNumber: caller, phone: p, callID: callID}})
}

// handleAck completes inbound call setup: the renderer is bound before the
// started notification goes out.
func (p *Phone) handleAck(req sip.Request, tx sip.ServerTransaction) {
	cid, _ := req.CallID()
	if cid == nil {
		return
	}
	callID := string(*cid)

	p.mu.Lock()
	sess := p.sess
	var ep media.Endpoint
	ok := sess != nil && sess.callID == callID && !sess.started && !sess.terminal
	if ok {
		ep = sess.remoteMedia
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	p.startSession(callID, ep)
}

// handleBye ends the matching session. Unknown call ids get a 200 anyway;
// retransmitted BYEs for sessions already torn down say nothing new.
func (p *Phone) handleBye(req sip.Request, tx sip.ServerTransaction) {
	cid, _ := req.CallID()
	if cid == nil {
		return
	}
	callID := string(*cid)
	sipLog.Infof("received BYE for %s", callID)
	p.srv.RespondOnRequest(req, statusOK, "OK", "", nil)
	p.endSession(callID, "remote hangup")
}

// acceptCall answers the pending inbound INVITE with our media description.
func (p *Phone) acceptCall(callID string) error {
	p.mu.Lock()
	sess := p.sess
	if sess == nil || sess.callID != callID || sess.terminal {
		p.mu.Unlock()
		return fmt.Errorf("call %s not found", callID)
	}
	inviteReq := sess.inviteReq
	localAddr := sess.localAddr
	p.mu.Unlock()

	body := BuildSDP(p.localHost, p.settings.MediaPort())
	res := sip.NewResponseFromRequest("", inviteReq, statusOK, "OK", body)
	ctype := sip.ContentType("application/sdp")
	res.AppendHeader(&ctype)
	tag := util.RandString(8)
	if toHdr, ok := res.To(); ok {
		if toHdr.Params == nil {
			toHdr.Params = sip.NewParams()
		}
		toHdr.Params = toHdr.Params.Add("tag", sip.String{Str: tag})
		if localAddr.Params == nil {
			localAddr.Params = sip.NewParams()
		}
		localAddr.Params = localAddr.Params.Add("tag", sip.String{Str: tag})
	}
	if _, err := p.srv.Respond(res); err != nil {
		return fmt.Errorf("send 200 OK: %w", err)
	}
	sipLog.Infof("accepted call %s", callID)
	return nil
}

// rejectCall declines the pending inbound INVITE.
func (p *Phone) rejectCall(callID string) error {
	p.mu.Lock()
	sess := p.sess
	if sess == nil || sess.callID != callID || sess.terminal {
		p.mu.Unlock()
		return fmt.Errorf("call %s not found", callID)
	}
	inviteReq := sess.inviteReq
	p.mu.Unlock()

	res := sip.NewResponseFromRequest("", inviteReq, statusDecline, "Decline", "")
	if _, err := p.srv.Respond(res); err != nil {
		return fmt.Errorf("send decline: %w", err)
	}
	sipLog.Infof("rejected call %s", callID)
	p.endSession(callID, "rejected")
	return nil
}

// startSession binds the renderer and reports the call as started.
func (p *Phone) startSession(callID string, remote media.Endpoint) {
	p.mu.Lock()
	sess := p.sess
	if sess == nil || sess.callID != callID || sess.started || sess.terminal {
		p.mu.Unlock()
		return
	}
	sess.started = true
	p.mu.Unlock()

	if err := p.renderer.Bind(remote); err != nil {
		sipLog.Warnf("bind renderer for %s: %v", callID, err)
	}
	sipLog.Infof("call %s started, media at %s", callID, remote)
	p.emit(PhoneCallStarted{CallID: callID})
}

// failSession surfaces one error notification and still drives the session
// to its terminal state so no stuck in-call indicator survives.
func (p *Phone) failSession(callID, cause string) {
	sipLog.Warnf("call %s: %s", callID, cause)
	p.emit(PhoneError{Cause: cause})
	p.endSession(callID, cause)
}

// endSession releases the audio renderer and fires PhoneCallEnded, exactly
// once per session. The renderer is stopped before the notification so
// cleanup can never be skipped by notification ordering.
func (p *Phone) endSession(callID, reason string) {
	p.mu.Lock()
	sess := p.sess
	if sess == nil || sess.callID != callID || sess.terminal {
		p.mu.Unlock()
		return
	}
	sess.terminal = true
	p.sess = nil
	p.mu.Unlock()

	p.renderer.Stop()
	sipLog.Infof("call %s ended (%s)", callID, reason)
	p.emit(PhoneCallEnded{CallID: callID})
}

func (p *Phone) emit(ev PhoneEvent) {
	select {
	case p.events <- ev:
	default:
		sipLog.Warnf("phone event dropped: %#v", ev)
	}
}
