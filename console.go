package main

import (
	"context"
	"time"

	"opconsole/media"
)

// Console is the operator console core: one explicitly constructed object
// owning the push channel, the phone, the call registry and the timers.
// Nothing here lives in package state; every collaborator is passed in or
// built by NewConsole and reachable only through it.
//
// Run hosts the single event loop. All registry mutations happen on that
// loop, handlers run to completion before the next event is taken, and that
// discipline — not locks — is what keeps call state consistent.
type Console struct {
	settings *Settings
	sink     Sink

	registry *Registry
	timers   *Timers
	channel  *Channel
	phone    *Phone
	control  *ControlClient
	renderer media.Renderer

	// Optional presentation hooks, set before Run.
	IncomingCallHandler func(*IncomingCall)
	ErrorHandler        func(cause string)

	ops chan func()

	phoneRegistered bool
	phoneInCall     bool
}

// NewConsole wires up a console from settings, reporting state changes to
// sink.
func NewConsole(settings *Settings, sink Sink) *Console {
	renderer := media.NewRenderer()
	timers := NewTimers(time.Second)
	c := &Console{
		settings: settings,
		sink:     sink,
		timers:   timers,
		registry: NewRegistry(sink, timers),
		channel:  NewChannel(settings.ServerWSURL(), settings.ReconnectDelay()),
		phone:    NewPhone(settings, renderer),
		control:  NewControlClient(settings.ServerAPIURL()),
		renderer: renderer,
		ops:      make(chan func(), 16),
	}
	return c
}

// Registry exposes the call registry for the presentation layer to read
// from inside sink callbacks.
func (c *Console) Registry() *Registry { return c.registry }

// ChannelState reports the push channel's connection state.
func (c *Console) ChannelState() ChannelState { return c.channel.State() }

// Run connects the push channel and dispatches events until ctx is
// canceled. The channel, the phone and the timers are independent event
// sources; this loop is their single consumer and the registry's single
// writer.
func (c *Console) Run(ctx context.Context) error {
	go c.channel.Run(ctx)

	if c.settings.SIPEnabled() {
		if err := c.phone.Connect(); err != nil {
			coreLog.Warnf("phone connect failed: %v", err)
			c.reportError(err.Error())
		}
	}

	for {
		select {
		case ev := <-c.channel.Events():
			c.dispatch(ev)
		case pe := <-c.phone.Events():
			c.handlePhoneEvent(pe)
		case tick := <-c.timers.Ticks():
			c.handleTick(tick)
		case op := <-c.ops:
			op()
		case <-ctx.Done():
			c.shutdown()
			return nil
		}
	}
}

// dispatch routes one push event to the registry. Unrecognized kinds are
// ignored for forward compatibility; a payload that fails to decode is
// dropped without touching any call.
func (c *Console) dispatch(ev Event) {
	switch ev.Type {
	case EventCallStart:
		data, err := ev.CallStart()
		if err != nil {
			wsLog.Warnf("dropping %s for %s: %v", ev.Type, ev.CallID, err)
			return
		}
		c.registry.OnCallStart(ev.CallID, data, time.Now())
	case EventCallAnswer:
		data, err := ev.CallAnswer()
		if err != nil {
			wsLog.Warnf("dropping %s for %s: %v", ev.Type, ev.CallID, err)
			return
		}
		c.registry.OnCallAnswer(ev.CallID, parseEventTime(data.AnsweredAt, time.Now()))
	case EventCallEnd:
		c.registry.OnCallEnd(ev.CallID)
	case EventTranscript:
		entry, err := ev.Transcript()
		if err != nil {
			wsLog.Warnf("dropping %s for %s: %v", ev.Type, ev.CallID, err)
			return
		}
		c.registry.OnTranscript(ev.CallID, entry)
	case EventSuggestion:
		s, err := ev.Suggestion()
		if err != nil {
			wsLog.Warnf("dropping %s for %s: %v", ev.Type, ev.CallID, err)
			return
		}
		c.registry.OnSuggestion(ev.CallID, s)
	default:
		wsLog.Debugf("ignoring event kind %q", ev.Type)
	}
}

// handlePhoneEvent tracks the phone's lifecycle. Signaling events are a
// second, uncorrelated source: no attempt is made to match a signaling
// session against a server-pushed call record.
func (c *Console) handlePhoneEvent(pe PhoneEvent) {
	switch ev := pe.(type) {
	case PhoneRegistered:
		c.phoneRegistered = true
		coreLog.Info("phone registered")
	case PhoneError:
		coreLog.Warnf("phone error: %s", ev.Cause)
		c.reportError(ev.Cause)
	case PhoneIncoming:
		if c.IncomingCallHandler != nil {
			c.IncomingCallHandler(ev.Call)
		} else {
			coreLog.Infof("incoming call from %s (no handler registered, left ringing)",
				FormatPhoneNumber(ev.Call.CallerNumber))
		}
	case PhoneCallStarted:
		c.phoneInCall = true
		coreLog.Infof("phone call %s started", ev.CallID)
	case PhoneCallEnded:
		c.phoneInCall = false
		coreLog.Infof("phone call %s ended", ev.CallID)
	}
}

// handleTick refreshes one answered call's duration display.
func (c *Console) handleTick(tick TimerTick) {
	if _, ok := c.registry.Get(tick.CallID); !ok {
		c.timers.Stop(tick.CallID)
		return
	}
	c.sink.RegistryChanged(ScopeCall(tick.CallID))
}

// Select marks a call as the active selection. Runs on the event loop.
func (c *Console) Select(callID string) {
	c.enqueue(func() { c.registry.Select(callID) })
}

// Dial places an outbound call through the phone.
func (c *Console) Dial(number string) {
	c.enqueue(func() {
		if err := c.phone.Call(number); err != nil {
			coreLog.Warnf("dial %s: %v", number, err)
			c.reportError(err.Error())
		}
	})
}

// HangupPhone ends the live signaling session, if any.
func (c *Console) HangupPhone() {
	c.enqueue(func() { c.phone.Hangup() })
}

// SendDTMF sends digits over the live session.
func (c *Console) SendDTMF(digits string) {
	c.enqueue(func() {
		if err := c.phone.SendDTMF(digits); err != nil {
			coreLog.Warnf("dtmf: %v", err)
		}
	})
}

// StartDemo asks the backend to simulate an inbound call.
func (c *Console) StartDemo(ctx context.Context) {
	c.enqueue(func() { go c.control.StartDemoCall(ctx) })
}

// EndSelected asks the backend to end the currently selected call.
func (c *Console) EndSelected(ctx context.Context) {
	c.enqueue(func() {
		id := c.registry.Selected()
		if id == "" {
			return
		}
		go c.control.EndCall(ctx, id)
	})
}

// enqueue hands an operator action to the event loop so registry and phone
// access stays on one goroutine.
func (c *Console) enqueue(op func()) {
	select {
	case c.ops <- op:
	default:
		coreLog.Warn("operator action dropped: console busy")
	}
}

func (c *Console) reportError(cause string) {
	if c.ErrorHandler != nil {
		c.ErrorHandler(cause)
	}
}

func (c *Console) shutdown() {
	coreLog.Info("console shutting down")
	c.channel.Close()
	c.phone.Disconnect()
	c.timers.StopAll()
	c.renderer.Close()
}
