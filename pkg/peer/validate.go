package peer

import (
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
)

func validateOffer(offer webrtc.SessionDescription) error {
	if offer.Type != webrtc.SDPTypeOffer {
		return errors.Wrapf(ErrUnexpectedSDPType, "got %q", offer.Type.String())
	}

	parsed := &sdp.SessionDescription{}
	if err := parsed.Unmarshal([]byte(offer.SDP)); err != nil {
		return errors.Wrap(err, "parse offer")
	}

	for _, media := range parsed.MediaDescriptions {
		if media.MediaName.Media == "application" {
			return nil
		}
	}

	return ErrNoDataChannel
}
