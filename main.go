package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/ini.v1"

	"opconsole/media"
)

// logSink reports registry changes to the core log. A real frontend
// replaces this with a rendering sink.
type logSink struct {
	console *Console
}

func (s *logSink) RegistryChanged(scope Scope) {
	reg := s.console.Registry()
	if scope == ScopeAll() {
		coreLog.Infof("calls: %d active, selected %q", reg.Len(), reg.Selected())
		return
	}
	if call, ok := reg.Get(scope.CallID); ok {
		coreLog.Infof("call %s: %s %s %s", call.ID, call.State, call.CallerNumber, call.Duration(time.Now()))
	}
}

func (s *logSink) Attention(callID string) {
	coreLog.Warnf("attention requested for call %s", callID)
}

func main() {
	cfg, err := ini.Load("settings.ini")
	if err != nil {
		fmt.Printf("failed to load settings: %v\n", err)
		os.Exit(1)
	}

	settings, err := LoadSettings(cfg)
	if err != nil {
		fmt.Printf("failed to parse settings: %v\n", err)
		os.Exit(1)
	}

	if err := initLogging(cfg); err != nil {
		fmt.Printf("failed to init logging: %v\n", err)
		os.Exit(1)
	}
	defer closeLogging()

	media.SetLogFunc(func(format string, args ...interface{}) {
		coreLog.Debugf(format, args...)
	})

	sink := &logSink{}
	console := NewConsole(settings, sink)
	sink.console = console

	// Without a frontend an unhandled incoming call rings forever, so the
	// binary answers it to let the demo flow run end to end.
	console.IncomingCallHandler = func(call *IncomingCall) {
		coreLog.Infof("auto-accepting incoming call from %s", FormatPhoneNumber(call.CallerNumber))
		if err := call.Accept(); err != nil {
			coreLog.Warnf("accept: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coreLog.Info("operator console starting")
	if err := console.Run(ctx); err != nil {
		coreLog.Fatalf("console: %v", err)
	}
	coreLog.Info("performing a graceful shutdown...")
}
