package internal

import (
	"context"
	"net/http"
	"os"
	ossignal "os/signal"
	"sync"
	"syscall"
	"time"

	"rtc-transport/pkg/client"
	"rtc-transport/pkg/config"
	"rtc-transport/pkg/log"
	"rtc-transport/pkg/matchmaker"
	"rtc-transport/pkg/peer"
	"rtc-transport/pkg/protocol"
	"rtc-transport/pkg/transport"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

const (
	echoRoom        = "echo"
	shutdownTimeout = 5 * time.Second
)

type App struct {
	flags *pflag.FlagSet

	configFile     string
	host           string
	port           int
	stunServers    []string
	pingInterval   time.Duration
	pingMaxRetries int
	logLevel       string
	loopback       bool
	embed          bool
	probeEndpoint  string
	probeRoom      string

	instanceUUID string

	cfg       *config.Config
	api       *peer.API
	local     *matchmaker.LocalCoordinator
	transport *transport.WebRTCTransport
	server    *http.Server
	client    *client.Client
}

func NewApp() *App {
	return &App{
		flags:        pflag.NewFlagSet(os.Args[0], pflag.ExitOnError),
		instanceUUID: uuid.New().String(),
	}
}

func (a *App) Setup(args []string) (err error) {
	a.parseCmdline(args)

	a.cfg, err = config.Load(a.configFile)
	if err != nil {
		return errors.Wrap(err, "config")
	}

	a.applyFlags()

	if err := a.cfg.Validate(); err != nil {
		return errors.Wrap(err, "config")
	}

	log.SetupLogger(a.cfg.LogLevel)

	peerCfg := peer.Config{
		STUN:            a.cfg.STUN,
		Label:           a.cfg.ChannelLabel,
		IncludeLoopback: a.cfg.IncludeLoopback,
		EmbedCandidates: a.cfg.EmbedCandidates,
	}

	if a.probeMode() {
		a.client, err = client.New(client.Config{
			Endpoint:    a.probeEndpoint,
			Peer:        peerCfg,
			JoinTimeout: a.cfg.SeatReservationTime,
		})

		return errors.Wrap(err, "client")
	}

	return a.setupServerMode(peerCfg)
}

func (a *App) Run(ctx context.Context, cancel context.CancelFunc) error {
	a.listenOS(cancel)

	if a.probeMode() {
		return a.runProbeMode(ctx)
	}

	return a.runServerMode(ctx, cancel)
}

func (a *App) parseCmdline(args []string) {
	a.flags.StringVarP(&a.configFile, "config", "c", "", "Path to a YAML config file")

	// Server options, overriding the config file and the environment.
	a.flags.StringVarP(&a.host, "host", "H", config.DefaultHost, "Address to listen on")
	a.flags.IntVarP(&a.port, "port", "p", config.DefaultPort, "Port to listen on")
	a.flags.StringSliceVarP(&a.stunServers, "stun", "S", []string{config.DefaultSTUN}, "List of used STUN servers")
	a.flags.DurationVar(&a.pingInterval, "ping-interval", config.DefaultPingInterval, "Interval between liveness PINGs, 0 disables the heartbeat")
	a.flags.IntVar(&a.pingMaxRetries, "ping-max-retries", config.DefaultPingMaxRetries, "Unanswered PINGs tolerated before a client is dropped")
	a.flags.StringVarP(&a.logLevel, "log-level", "l", config.DefaultLogLevel, "Log level (trace, debug, info, warn, error)")
	a.flags.BoolVar(&a.loopback, "loopback", false, "Gather loopback ICE candidates")
	a.flags.BoolVar(&a.embed, "embed", false, "Wait for gathering and embed candidates in the session descriptions")

	// Probe options.
	a.flags.StringVarP(&a.probeEndpoint, "probe", "P", "", "Join a room on the given server instead of serving, send one message and wait for its echo")
	a.flags.StringVarP(&a.probeRoom, "room", "r", echoRoom, "Room name joined by the probe")

	a.flags.Parse(args)
}

// applyFlags overrides the loaded config with the flags set explicitly.
func (a *App) applyFlags() {
	changed := a.flags.Changed

	if changed("host") {
		a.cfg.Host = a.host
	}
	if changed("port") {
		a.cfg.Port = a.port
	}
	if changed("stun") {
		a.cfg.STUN = a.stunServers
	}
	if changed("ping-interval") {
		a.cfg.PingInterval = a.pingInterval
	}
	if changed("ping-max-retries") {
		a.cfg.PingMaxRetries = a.pingMaxRetries
	}
	if changed("log-level") {
		a.cfg.LogLevel = a.logLevel
	}
	if changed("loopback") {
		a.cfg.IncludeLoopback = a.loopback
	}
	if changed("embed") {
		a.cfg.EmbedCandidates = a.embed
	}
}

func (a *App) probeMode() bool {
	return len(a.probeEndpoint) != 0
}

func (a *App) setupServerMode(peerCfg peer.Config) error {
	a.api = peer.NewAPI(peerCfg)

	a.local = matchmaker.NewLocalCoordinator(matchmaker.LocalConfig{
		ProcessID:           a.instanceUUID,
		SeatReservationTime: a.cfg.SeatReservationTime,
	})
	a.local.Define(echoRoom, matchmaker.RoomDefinition{
		Handler: func() matchmaker.RoomHandler { return matchmaker.EchoHandler{} },
	})

	a.transport = transport.NewWebRTCTransport(transport.Config{
		PingInterval:        a.cfg.PingInterval,
		PingMaxRetries:      a.cfg.PingMaxRetries,
		SeatReservationTime: a.cfg.SeatReservationTime,
	}, a.api, a.local)

	srv := matchmaker.NewServer(matchmaker.Intercept(a.local, a.transport))
	a.transport.Attach(srv)

	a.server = &http.Server{
		Addr:              a.cfg.Address(),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if !a.cfg.HeartbeatEnabled() {
		log.Warn("heartbeat disabled, unresponsive clients are never dropped")
	}

	return nil
}

func (a *App) runServerMode(ctx context.Context, cancel context.CancelFunc) error {
	log.Infof("Starting RTC transport on %s, Process UUID: %s", a.cfg.Address(), a.instanceUUID)
	defer log.Info("Ending RTC transport")

	a.transport.Start(ctx)

	var (
		wg       sync.WaitGroup
		serveErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()

		if err := a.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr = errors.Wrap(err, "http server")
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("http shutdown: %s", err)
	}

	if err := a.transport.Shutdown(); err != nil {
		log.Warnf("transport shutdown: %s", err)
	}

	wg.Wait()

	return serveErr
}

func (a *App) runProbeMode(ctx context.Context) error {
	log.Infof("Probing %s, room %q", a.probeEndpoint, a.probeRoom)

	room, err := client.Retry(ctx, 0, 0, func(ctx context.Context) (*client.Room, error) {
		room, err := a.client.JoinOrCreate(ctx, a.probeRoom, map[string]any{"probe": a.instanceUUID})
		if err != nil {
			log.Warnf("join: %s", err)
		}

		return room, err
	})
	if err != nil {
		return errors.Wrap(err, "join")
	}
	defer room.Leave()

	if err := room.Send("probe", a.instanceUUID); err != nil {
		return errors.Wrap(err, "send")
	}

	for {
		select {
		case frame, ok := <-room.Messages():
			if !ok {
				return errors.Errorf("room closed with code %d", room.LeaveCode())
			}

			if frame.Code == protocol.Error {
				return errors.Errorf("room error %d: %s", frame.IntType(), frame.StringPayload())
			}

			log.Infof("received %v: %s", frame.Type, frame.StringPayload())

			if frame.Type == "probe" {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (a *App) listenOS(cancel context.CancelFunc) {
	sigchan := make(chan os.Signal, 1)
	ossignal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigchan
		cancel()
	}()
}
