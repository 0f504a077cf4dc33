package httpapi

import (
	"net/http"

	"timeblocker/internal/model"
	"timeblocker/internal/service"
)

type authResponse struct {
	User   *model.User `json:"user"`
	Token  string      `json:"token"`
	IsDemo bool        `json:"isDemo,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type pushSubscriptionRequest struct {
	Subscription model.PushSubscription `json:"subscription"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := s.decode(w, r, &in); err != nil {
		s.fail(w, r, err, "Registration failed")
		return
	}
	user, token, err := s.svc.Auth.Register(r.Context(), in)
	if err != nil {
		s.fail(w, r, err, "Registration failed")
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{User: user, Token: token})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := s.decode(w, r, &in); err != nil {
		s.fail(w, r, err, "Login failed")
		return
	}
	user, token, err := s.svc.Auth.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		s.fail(w, r, err, "Login failed")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{User: user, Token: token})
}

func (s *Server) demoLogin(w http.ResponseWriter, r *http.Request) {
	user, err := s.svc.Demo.EnsureDemoUser(r.Context())
	if err != nil {
		s.fail(w, r, err, "Demo login failed")
		return
	}
	token, err := s.svc.Auth.IssueToken(user)
	if err != nil {
		s.fail(w, r, err, "Demo login failed")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{User: user, Token: token, IsDemo: true})
}

func (s *Server) pushSubscription(w http.ResponseWriter, r *http.Request) {
	var in pushSubscriptionRequest
	if err := s.decode(w, r, &in); err != nil {
		s.fail(w, r, err, "Failed to update push subscription")
		return
	}
	if err := s.svc.Auth.AddPushSubscription(r.Context(), userIDFrom(r.Context()), in.Subscription); err != nil {
		s.fail(w, r, err, "Failed to update push subscription")
		return
	}
	writeJSON(w, http.StatusOK, successBody{Success: true})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	user, err := s.svc.Auth.Me(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err, "Failed to fetch profile")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) updateMe(w http.ResponseWriter, r *http.Request) {
	var patch service.ProfilePatch
	if err := s.decode(w, r, &patch); err != nil {
		s.fail(w, r, err, "Failed to update profile")
		return
	}
	user, err := s.svc.Auth.UpdateProfile(r.Context(), userIDFrom(r.Context()), patch)
	if err != nil {
		s.fail(w, r, err, "Failed to update profile")
		return
	}
	writeJSON(w, http.StatusOK, user)
}
