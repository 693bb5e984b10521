package main

import (
	"fmt"
	"strings"
	"time"

	ini "gopkg.in/ini.v1"
)

// Settings holds application configuration loaded from settings.ini.
type Settings struct {
	serverURL      string
	reconnectDelay int

	sipEnabled   bool
	sipServer    string
	sipDomain    string
	sipUsername  string
	sipPassword  string
	sipTransport string
	sipExpires   int
	sipPort      int
	sipPortRange int

	publicAddress string
	stunServer    string
	mediaPort     int
}

// LoadSettings reads configuration from ini file and validates required fields.
func LoadSettings(cfg *ini.File) (*Settings, error) {
	s := &Settings{}

	sec := cfg.Section("server")
	s.serverURL = sec.Key("url").MustString("http://127.0.0.1:8000")
	s.reconnectDelay = sec.Key("reconnect_delay").MustInt(3)

	sec = cfg.Section("sip")
	s.sipEnabled = sec.Key("enabled").MustBool(false)
	s.sipServer = sec.Key("server").String()
	s.sipDomain = sec.Key("domain").String()
	s.sipUsername = sec.Key("username").String()
	s.sipPassword = sec.Key("password").String()
	s.sipTransport = sec.Key("transport").MustString("udp")
	s.sipExpires = sec.Key("expires").MustInt(3600)
	s.sipPort = sec.Key("port").MustInt(5060)
	s.sipPortRange = sec.Key("port_range").MustInt(0)

	sec = cfg.Section("media")
	s.publicAddress = sec.Key("public_address").String()
	s.stunServer = sec.Key("stun_server").String()
	s.mediaPort = sec.Key("port").MustInt(4000)

	if s.sipEnabled {
		if s.sipServer == "" || s.sipUsername == "" || s.sipPassword == "" {
			return nil, fmt.Errorf("sip server, username and password must be set when sip is enabled")
		}
		if s.sipDomain == "" {
			s.sipDomain = s.sipServer
		}
	}

	return s, nil
}

func (s *Settings) SIPEnabled() bool      { return s.sipEnabled }
func (s *Settings) SIPServer() string     { return s.sipServer }
func (s *Settings) SIPDomain() string     { return s.sipDomain }
func (s *Settings) SIPUsername() string   { return s.sipUsername }
func (s *Settings) SIPPassword() string   { return s.sipPassword }
func (s *Settings) SIPTransport() string  { return s.sipTransport }
func (s *Settings) SIPExpires() int       { return s.sipExpires }
func (s *Settings) SIPPort() int          { return s.sipPort }
func (s *Settings) SIPPortRange() int     { return s.sipPortRange }
func (s *Settings) PublicAddress() string { return s.publicAddress }
func (s *Settings) StunServer() string    { return s.stunServer }
func (s *Settings) MediaPort() int        { return s.mediaPort }

// ServerAPIURL is the HTTP base for the control endpoints.
func (s *Settings) ServerAPIURL() string {
	return strings.TrimSuffix(s.serverURL, "/")
}

// ServerWSURL is the push channel endpoint derived from the server URL.
func (s *Settings) ServerWSURL() string {
	u := s.ServerAPIURL()
	if strings.HasPrefix(u, "https://") {
		u = "wss://" + strings.TrimPrefix(u, "https://")
	} else if strings.HasPrefix(u, "http://") {
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

func (s *Settings) ReconnectDelay() time.Duration {
	return time.Duration(s.reconnectDelay) * time.Second
}
