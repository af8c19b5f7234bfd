// Package loginstub is an in-process stand-in for the external login service.
// It answers POST /login exactly as the contract describes and exists so the
// verifier can be exercised without a real deployment.
package loginstub

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"

	"github.com/Checker-Finance/login-verifier/pkg/model"
)

const MessageMalformedBody = "Malformed request body"

// DefaultUsers mirrors the reference service's in-memory user list.
func DefaultUsers() []model.Credentials {
	return []model.Credentials{
		{Username: "user1", Password: "password1"},
		{Username: "user2", Password: "password2"},
	}
}

// Handler serves the login route against a fixed user list.
type Handler struct {
	users []model.Credentials
	hits  atomic.Int64
}

func NewHandler(users []model.Credentials) *Handler {
	return &Handler{users: users}
}

// Hits returns how many login attempts were received.
func (h *Handler) Hits() int64 { return h.hits.Load() }

// Login handles POST /login.
func (h *Handler) Login(c *fiber.Ctx) error {
	h.hits.Add(1)

	var req model.Credentials
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": MessageMalformedBody})
	}

	for _, u := range h.users {
		if u.Username == req.Username && u.Password == req.Password {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": model.MessageLoginSuccessful})
		}
	}
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": model.MessageInvalidCredentials})
}

// NewApp builds a fiber app with the login route registered.
func NewApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Post("/login", h.Login)
	return app
}

// Server is a running stub bound to a loopback port.
type Server struct {
	URL     string
	Handler *Handler

	app  *fiber.App
	ln   net.Listener
	done chan error
}

// Start listens on 127.0.0.1 with a random port and serves in the background.
func Start(users []model.Credentials) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	h := NewHandler(users)
	s := &Server{
		URL:     "http://" + ln.Addr().String(),
		Handler: h,
		app:     NewApp(h),
		ln:      ln,
		done:    make(chan error, 1),
	}
	go func() { s.done <- s.app.Listener(ln) }()
	return s, nil
}

// Close shuts the server down and waits for the listener goroutine.
func (s *Server) Close() error {
	if err := s.app.Shutdown(); err != nil {
		return err
	}
	// covers Shutdown racing ahead of Listener
	_ = s.ln.Close()
	if err := <-s.done; err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
