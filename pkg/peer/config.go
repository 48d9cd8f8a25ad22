package peer

import (
	"time"

	"rtc-transport/pkg/log"

	"github.com/pion/webrtc/v4"
)

const DefaultLabel = "colyseus"

type Config struct {
	STUN []string

	// Label of the single data channel the offerer opens.
	Label string

	// IncludeLoopback gathers 127.0.0.1 host candidates, needed when both
	// peers run on the same machine without other interfaces.
	IncludeLoopback bool

	// EmbedCandidates switches to vanilla ICE: descriptions are only handed
	// out once gathering is complete and carry every candidate inline.
	EmbedCandidates bool

	DisconnectedTimeout time.Duration
	FailedTimeout       time.Duration
	KeepAliveInterval   time.Duration
}

// API builds peer connections sharing one pion API instance.
type API struct {
	cfg Config
	api *webrtc.API
}

func NewAPI(cfg Config) *API {
	if len(cfg.Label) == 0 {
		cfg.Label = DefaultLabel
	}
	if cfg.DisconnectedTimeout == 0 {
		cfg.DisconnectedTimeout = 15 * time.Minute
	}
	if cfg.FailedTimeout == 0 {
		cfg.FailedTimeout = 25 * time.Second
	}
	if cfg.KeepAliveInterval == 0 {
		cfg.KeepAliveInterval = 2 * time.Second
	}

	settings := webrtc.SettingEngine{
		LoggerFactory: log.PionLoggerFactory{},
	}

	settings.DetachDataChannels()
	settings.SetIncludeLoopbackCandidate(cfg.IncludeLoopback)
	settings.SetICETimeouts(cfg.DisconnectedTimeout, cfg.FailedTimeout, cfg.KeepAliveInterval)

	return &API{
		cfg: cfg,
		api: webrtc.NewAPI(webrtc.WithSettingEngine(settings)),
	}
}

func (a *API) Config() Config {
	return a.cfg
}

func (a *API) newPeerConnection() (*webrtc.PeerConnection, error) {
	ice := make([]webrtc.ICEServer, len(a.cfg.STUN))

	for i, stun := range a.cfg.STUN {
		ice[i] = webrtc.ICEServer{
			URLs: []string{"stun:" + stun},
		}
	}

	return a.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: ice,
	})
}
