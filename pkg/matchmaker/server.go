package matchmaker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"rtc-transport/pkg/log"
	"rtc-transport/pkg/protocol"
	"rtc-transport/pkg/signal"
)

const maxRequestBodySize = 64 * 1024

// ExposedMethod is an extra matchmaking method callable as
// POST /matchmake/{method}/{roomName}.
type ExposedMethod func(ctx context.Context, roomName string, body json.RawMessage) (any, error)

// Server serves the matchmaking routes of a coordinator.
type Server struct {
	coordinator Coordinator

	exposed   map[string]ExposedMethod
	exposedMx sync.RWMutex

	socket http.Handler

	mux *http.ServeMux
}

func NewServer(coordinator Coordinator) *Server {
	s := &Server{
		coordinator: coordinator,
		exposed:     make(map[string]ExposedMethod),
		socket:      http.NotFoundHandler(),
		mux:         http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /matchmake/{method}/{roomName}", s.handleMatchmake)
	s.mux.HandleFunc("OPTIONS /matchmake/{method}/{roomName}", s.handlePreflight)
	s.mux.HandleFunc("GET /{roomId}", s.handleSocket)

	return s
}

// Expose registers an extra matchmaking method.
func (s *Server) Expose(name string, method ExposedMethod) {
	s.exposedMx.Lock()
	defer s.exposedMx.Unlock()

	s.exposed[name] = method
}

// HandleSocket sets the handler of GET /{roomId}, the room connection route
// used by clients that joined without an rtcOffer.
func (s *Server) HandleSocket(h http.Handler) {
	s.socket = h
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	s.socket.ServeHTTP(w, r)
}

func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMatchmake(w http.ResponseWriter, r *http.Request) {
	setCORS(w)

	method := r.PathValue("method")
	roomName := r.PathValue("roomName")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, &Error{Code: protocol.ErrMatchmakeUnhandled, Message: err.Error()})
		return
	}

	if reserve := s.reserveMethod(method); reserve != nil {
		options := Options{}
		if len(body) != 0 {
			if err := json.Unmarshal(body, &options); err != nil {
				s.sendError(w, http.StatusBadRequest, &Error{Code: protocol.ErrMatchmakeInvalidCriteria, Message: "invalid join options"})
				return
			}
		}

		reservation, err := reserve(r.Context(), roomName, options)
		if err != nil {
			s.sendError(w, http.StatusInternalServerError, err)
			return
		}

		s.writeJSON(w, reservation)
		return
	}

	s.exposedMx.RLock()
	exposed, ok := s.exposed[method]
	s.exposedMx.RUnlock()

	if !ok {
		s.sendError(w, http.StatusNotFound, &Error{Code: protocol.ErrMatchmakeNoHandler, Message: "invalid method \"" + method + "\""})
		return
	}

	out, err := exposed(r.Context(), roomName, body)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, out)
}

func (s *Server) reserveMethod(method string) reserveFunc {
	switch method {
	case MethodCreate:
		return s.coordinator.Create
	case MethodJoin:
		return s.coordinator.Join
	case MethodJoinOrCreate:
		return s.coordinator.JoinOrCreate
	case MethodJoinByID:
		return s.coordinator.JoinByID
	}

	return nil
}

func (s *Server) sendError(w http.ResponseWriter, status int, err error) {
	code, message := ErrorCode(err)

	if status == http.StatusInternalServerError {
		if code == protocol.ErrMatchmakeExpired {
			status = http.StatusNotFound
		} else if code != protocol.ErrApplicationError {
			status = http.StatusBadRequest
		}
	}

	log.Debugf("matchmake error %d: %s", code, message)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(signal.ErrorResponse{Error: message, Code: code}); err != nil {
		log.Warn("writing JSON error response: ", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(value); err != nil {
		log.Warn("writing JSON response: ", err)
	}
}

func setCORS(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "OPTIONS, POST, GET")
	h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Accept")
}
