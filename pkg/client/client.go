// Package client joins rooms over WebRTC: it sends the offer with the seat
// reservation request, exchanges candidates once and hands back a Room bound
// to the data channel.
package client

import (
	"context"
	"net/url"
	"time"

	"rtc-transport/pkg/log"
	"rtc-transport/pkg/matchmaker"
	"rtc-transport/pkg/peer"
	"rtc-transport/pkg/signal"

	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
)

const DefaultJoinTimeout = 15 * time.Second

var ErrNoAnswer = errors.New("seat reservation carries no rtcAnswer")

type Config struct {
	// Endpoint is the server address, ws://, wss://, http:// or https://.
	Endpoint string

	Peer peer.Config

	// JoinTimeout bounds the whole join, from offer to JOIN_ROOM.
	JoinTimeout time.Duration

	// Token is forwarded with every request.
	Token string
}

type Client struct {
	cfg Config

	api      *peer.API
	exchange *signal.Exchange
}

func New(cfg Config) (*Client, error) {
	if cfg.JoinTimeout == 0 {
		cfg.JoinTimeout = DefaultJoinTimeout
	}

	exchange, err := signal.NewExchange(signal.ExchangeConfig{
		Endpoint: cfg.Endpoint,
		Token:    cfg.Token,
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg:      cfg,
		api:      peer.NewAPI(cfg.Peer),
		exchange: exchange,
	}, nil
}

func (c *Client) SetToken(token string) {
	c.exchange.SetToken(token)
}

func (c *Client) JoinOrCreate(ctx context.Context, roomName string, options map[string]any) (*Room, error) {
	return c.join(ctx, matchmaker.MethodJoinOrCreate, roomName, options)
}

func (c *Client) Create(ctx context.Context, roomName string, options map[string]any) (*Room, error) {
	return c.join(ctx, matchmaker.MethodCreate, roomName, options)
}

func (c *Client) Join(ctx context.Context, roomName string, options map[string]any) (*Room, error) {
	return c.join(ctx, matchmaker.MethodJoin, roomName, options)
}

func (c *Client) JoinByID(ctx context.Context, roomID string, options map[string]any) (*Room, error) {
	return c.join(ctx, matchmaker.MethodJoinByID, roomID, options)
}

func (c *Client) join(ctx context.Context, method, roomName string, options map[string]any) (*Room, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.JoinTimeout)
	defer cancel()

	offerer, offer, err := peer.NewOfferer(c.api)
	if err != nil {
		return nil, err
	}

	room, err := c.negotiate(ctx, offerer, offer, method, roomName, options)
	if err != nil {
		offerer.Close()

		return nil, err
	}

	return room, nil
}

func (c *Client) negotiate(ctx context.Context, offerer *peer.Offerer, offer webrtc.SessionDescription, method, roomName string, options map[string]any) (*Room, error) {
	embed := c.api.Config().EmbedCandidates

	if embed {
		select {
		case <-offerer.Gathered():
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "gather candidates")
		}

		offer = *offerer.LocalDescription()
	}

	body := make(map[string]any, len(options)+1)
	for k, v := range options {
		body[k] = v
	}
	body["rtcOffer"] = offer

	var reservation matchmaker.SeatReservation
	if err := c.exchange.Post(ctx, "matchmake/"+method+"/"+url.PathEscape(roomName), body, &reservation); err != nil {
		return nil, errors.Wrap(err, method)
	}

	if reservation.RTCAnswer == nil {
		return nil, ErrNoAnswer
	}

	offerer.SetSessionID(reservation.SessionID)
	logger := log.WithSession(reservation.SessionID)

	local, err := offerer.Connect(ctx, *reservation.RTCAnswer)
	if err != nil {
		return nil, err
	}

	if !embed {
		remote, err := c.exchange.ShareCandidates(ctx, reservation.Room.Name, reservation.SessionID, local)
		if err != nil {
			return nil, errors.Wrap(err, signal.ShareMethod)
		}

		if err := offerer.AddICECandidates(remote...); err != nil {
			return nil, err
		}

		logger.Debugf("exchanged candidates: %d local, %d remote", len(local), len(remote))
	}

	select {
	case <-offerer.ChannelOpen():
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "wait data channel")
	}

	room := newRoom(&reservation, offerer)

	select {
	case <-room.joined.Done():
	case <-room.done.Done():
		if err := room.joinError(); err != nil {
			return nil, err
		}

		return nil, ErrClosedBeforeJoin
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "wait join")
	}

	logger.Infof("joined room %s (%s)", room.ID, room.Name)

	return room, nil
}
