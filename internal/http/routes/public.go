package routes

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/briangreenhill/communitysite/internal/content"
	"github.com/briangreenhill/communitysite/internal/email"
	appmw "github.com/briangreenhill/communitysite/internal/http/middleware"
)

const magicLinkTTL = 2 * time.Hour

// Public reads never fail the page: the content services fall back to
// sample data and only return an error when the request itself is gone.

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	events, err := s.Catalog.Events.List(ctx, content.Home)
	if err != nil {
		return
	}
	activities, err := s.Catalog.Activities.List(ctx, content.Home)
	if err != nil {
		return
	}
	gallery, err := s.Catalog.Gallery.List(ctx, content.Home)
	if err != nil {
		return
	}
	s.render(w, r, http.StatusOK, "home", map[string]any{
		"Title":      "Welcome",
		"Events":     events,
		"Activities": activities,
		"Gallery":    gallery,
	})
}

func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request) {
	items, err := s.Catalog.Gallery.List(r.Context(), content.Gallery)
	if err != nil {
		return
	}
	s.render(w, r, http.StatusOK, "gallery", map[string]any{"Title": "Gallery", "Images": items})
}

func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	items, err := s.Catalog.Activities.List(r.Context(), content.Activities)
	if err != nil {
		return
	}
	s.render(w, r, http.StatusOK, "activities", map[string]any{"Title": "Activities", "Activities": items})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	items, err := s.Catalog.Events.List(r.Context(), content.Events)
	if err != nil {
		return
	}
	s.render(w, r, http.StatusOK, "events", map[string]any{"Title": "Events", "Events": items})
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.Catalog.Events.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, content.ErrNotFound) {
		s.notFound(w, r)
		return
	}
	if err != nil {
		return
	}
	s.render(w, r, http.StatusOK, "event", map[string]any{"Title": ev.Title, "Event": ev})
}

func (s *Server) handleAbout(w http.ResponseWriter, r *http.Request) {
	team, err := s.Catalog.Team.List(r.Context(), "")
	if err != nil {
		return
	}
	volunteers, err := s.Catalog.Volunteers.List(r.Context(), "")
	if err != nil {
		return
	}
	s.render(w, r, http.StatusOK, "about", map[string]any{"Title": "About us", "Team": team, "Volunteers": volunteers})
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "contact", map[string]any{"Title": "Contact"})
}

func (s *Server) handleContactSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	msg := email.Contact{
		Name:    strings.TrimSpace(r.PostForm.Get("name")),
		Email:   strings.TrimSpace(r.PostForm.Get("email")),
		Subject: strings.TrimSpace(r.PostForm.Get("subject")),
		Message: strings.TrimSpace(r.PostForm.Get("message")),
	}
	data := map[string]any{"Title": "Contact", "Form": msg}

	if err := s.validate.Struct(msg); err != nil {
		data["Error"] = "Please fill in your name, a valid email address and a message."
		s.render(w, r, http.StatusBadRequest, "contact", data)
		return
	}

	subject, body := email.ContactBody(msg)
	if err := s.Email.Send(s.OrgInbox, subject, body); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("forward contact message")
		data["Error"] = "Sorry, your message could not be sent. Please try again."
		data["RetryURL"] = "/contact"
		s.render(w, r, http.StatusBadGateway, "contact", data)
		return
	}
	s.flash(r, "Thanks, your message has been sent.")
	http.Redirect(w, r, "/contact", http.StatusSeeOther)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "login", map[string]any{"Title": "Admin sign in"})
}

// handleMagicLink emails a sign-in link to allow-listed addresses. The
// response is the same either way so the allowlist can't be enumerated.
func (s *Server) handleMagicLink(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	emailAddr := strings.ToLower(strings.TrimSpace(r.PostForm.Get("email")))
	if emailAddr == "" {
		s.render(w, r, http.StatusBadRequest, "login", map[string]any{"Title": "Admin sign in", "Error": "Email required."})
		return
	}

	log := hlog.FromRequest(r)
	if s.Admins.Allows(emailAddr) {
		link := s.Magic.URL(emailAddr, magicLinkTTL)
		if err := s.Email.Send(emailAddr, "Your "+s.SiteName+" sign-in link", email.MagicLinkBody(link)); err != nil {
			log.Error().Err(err).Str("email", emailAddr).Msg("[auth] failed to send magic link")
		} else {
			log.Info().Str("email", emailAddr).Msg("[auth] magic link sent")
		}
	} else {
		log.Warn().Str("email", emailAddr).Msg("[auth] sign-in requested for non-admin")
	}

	s.render(w, r, http.StatusOK, "magic_sent", map[string]any{"Title": "Check your email", "Email": emailAddr})
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	emailAddr, err := s.Magic.Verify(r.URL.Query().Get("token"))
	if err != nil || !s.Admins.Allows(emailAddr) {
		hlog.FromRequest(r).Warn().Err(err).Str("email", emailAddr).Msg("[auth] verify failed")
		s.render(w, r, http.StatusUnauthorized, "login", map[string]any{
			"Title": "Admin sign in",
			"Error": "That sign-in link is invalid or has expired. Request a new one below.",
		})
		return
	}
	if err := s.Sess.RenewToken(r.Context()); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	s.Sess.Put(r.Context(), appmw.SessionAdminKey, emailAddr)
	http.Redirect(w, r, "/admin", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.Sess.Destroy(r.Context()); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("destroy session")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
