package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/cryochamber/cryo/internal/logging"
)

var log = logging.ForComponent(logging.CompIPC)

// Call is one decoded request awaiting a response; the caller must send
// a Response on Reply to unblock the client connection. The server
// answers lines that fail to parse itself and never delivers them as a
// Call, so DecodeErr is always nil on a Call from Calls().
type Call struct {
	Req       Request
	DecodeErr error
	Reply     chan<- Response
}

// Server accepts connections on a Unix domain socket, reading each in its
// own goroutine, and hands each decoded request to the daemon's
// single-threaded event loop one at a time via Calls(), matching the one-request-per-connection, serialized
// handling required by spec §4.4.
type Server struct {
	ln      net.Listener
	path    string
	calls   chan Call
	closing chan struct{}
	limiter *rate.Limiter
}

// Listen binds the Unix socket at path, removing any stale socket file
// left behind by a prior unclean shutdown.
func Listen(path string) (*Server, error) {
	if _, err := os.Stat(path); err == nil {
		if rmErr := os.Remove(path); rmErr != nil {
			return nil, fmt.Errorf("remove stale socket: %w", rmErr)
		}
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}

	return &Server{
		ln:      ln,
		path:    path,
		calls:   make(chan Call, 1),
		closing: make(chan struct{}),
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}, nil
}

// Calls delivers one decoded Call per accepted connection. The daemon
// loop must send exactly one Response on Call.Reply to release the
// client.
func (s *Server) Calls() <-chan Call {
	return s.calls
}

// Serve runs the accept loop until Close is called. Intended to run in
// its own goroutine, supervised alongside the other auxiliary workers.
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.closing:
				return nil
			default:
			}
			return err
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil && len(line) == 0 {
		return // client disconnected without sending anything
	}
	line = trimLine(line)
	if line == "" {
		s.respond(conn, ErrResponse("empty request"))
		return
	}

	req, decodeErr := DecodeRequest([]byte(line))
	if decodeErr != nil {
		s.logMalformed(decodeErr)
		s.respond(conn, ErrResponse("malformed request: "+decodeErr.Error()))
		return
	}

	reply := make(chan Response, 1)
	select {
	case s.calls <- Call{Req: req, Reply: reply}:
	case <-s.closing:
		return
	}

	select {
	case resp := <-reply:
		s.respond(conn, resp)
	case <-s.closing:
	}
}

func (s *Server) logMalformed(err error) {
	if s.limiter.Allow() {
		log.Warn("ipc_malformed_request", slog.String("error", err.Error()))
	}
	logging.Aggregate(logging.CompIPC, "ipc_malformed_request", slog.String("error", err.Error()))
}

func (s *Server) respond(conn net.Conn, resp Response) {
	data, err := encodeResponse(resp)
	if err != nil {
		return
	}
	conn.Write(data)
}

// Close stops accepting new connections and removes the socket file.
func (s *Server) Close() error {
	close(s.closing)
	err := s.ln.Close()
	os.Remove(s.path)
	return err
}

func trimLine(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func encodeResponse(resp Response) ([]byte, error) {
	b, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
