// Package callback runs the temporary loopback HTTP server that receives
// the authorization redirect during a browser login. The server accepts a
// single callback, renders a static result page, and shuts itself down.
package callback

import (
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"
)

const (
	// DefaultPort is the port used when the redirect URI does not pin one.
	DefaultPort = 8080

	// DefaultPath is the path component of the default redirect URI.
	DefaultPath = "/callback"

	// DefaultTimeout is how long a login waits for the user to finish the
	// browser flow before giving up.
	DefaultTimeout = 5 * time.Minute
)

//go:embed templates/success.html
var successHTML string

//go:embed templates/error.html
var errorHTML string

// Result carries the query parameters of one authorization redirect.
type Result struct {
	// Code is the authorization code. Empty when the server denied.
	Code string

	// State echoes the state parameter for registry validation.
	State string

	// Error is the OAuth error code when the authorization failed.
	Error string

	// ErrorDescription is the human-readable error description, if any.
	ErrorDescription string
}

// IsError returns true when the redirect reported a denial.
func (r *Result) IsError() bool {
	return r.Error != ""
}

// Server is a single-shot loopback callback receiver.
type Server struct {
	port     int
	path     string
	server   *http.Server
	listener net.Listener
	resultCh chan *Result
	errorCh  chan error
	once     sync.Once
	baseURL  string
}

// NewServer creates a callback server for the given port and path. A zero
// port picks a free ephemeral port; an empty path uses DefaultPath.
func NewServer(port int, path string) *Server {
	if path == "" {
		path = DefaultPath
	}
	return &Server{
		port:     port,
		path:     path,
		resultCh: make(chan *Result, 1),
		errorCh:  make(chan error, 1),
	}
}

// Start binds the loopback listener and begins serving. It returns the
// redirect URI to put in the authorization request. The server stops when
// the context is cancelled, when a callback arrives, or on Stop.
func (s *Server) Start(ctx context.Context) (string, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to start callback server on %s: %w", addr, err)
	}

	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port
	s.baseURL = fmt.Sprintf("http://localhost:%d", s.port)

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleCallback)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case s.errorCh <- err:
			default:
			}
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return s.RedirectURI(), nil
}

// Wait blocks until the callback arrives, the server fails, or the context
// ends.
func (s *Server) Wait(ctx context.Context) (*Result, error) {
	select {
	case result := <-s.resultCh:
		return result, nil
	case err := <-s.errorCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// handleCallback accepts exactly one redirect. Later hits get a 400; a
// replayed redirect must not overwrite the first result.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	var handled bool
	s.once.Do(func() {
		handled = true
		s.processCallback(w, r)
	})

	if !handled {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

func (s *Server) processCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	query := r.URL.Query()
	result := &Result{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}

	var tmpl *template.Template
	var data interface{}

	if result.IsError() {
		tmpl = template.Must(template.New("error").Parse(errorHTML))
		data = map[string]string{
			"Error":       result.Error,
			"Description": result.ErrorDescription,
		}
	} else {
		tmpl = template.Must(template.New("success").Parse(successHTML))
		data = map[string]string{}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}

	select {
	case s.resultCh <- result:
	default:
	}

	// Let the response flush before tearing the listener down.
	go func() {
		time.Sleep(1 * time.Second)
		s.Stop()
	}()
}

// Stop gracefully shuts down the server. Safe to call more than once.
func (s *Server) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

// RedirectURI returns the redirect URI served by this instance.
func (s *Server) RedirectURI() string {
	return s.baseURL + s.path
}

// Port returns the bound port. Only meaningful after Start.
func (s *Server) Port() int {
	return s.port
}
