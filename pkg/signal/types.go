package signal

import (
	"github.com/pion/webrtc/v4"
)

// ShareMethod is the exposed matchmaking method used for the candidate
// exchange.
const ShareMethod = "shareICECandidates"

type ShareRequest struct {
	SessionID  string                    `json:"sessionId"`
	Candidates []webrtc.ICECandidateInit `json:"candidates"`
	Token      string                    `json:"token,omitempty"`
}

type ShareResponse struct {
	Candidates []webrtc.ICECandidateInit `json:"candidates"`
}

// ErrorResponse is the body of every failed matchmaking request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
