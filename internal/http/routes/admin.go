package routes

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/briangreenhill/communitysite/internal/analytics"
	"github.com/briangreenhill/communitysite/internal/auth"
	"github.com/briangreenhill/communitysite/internal/backup"
	"github.com/briangreenhill/communitysite/internal/content"
	"github.com/briangreenhill/communitysite/internal/media"
	"github.com/briangreenhill/communitysite/internal/reorder"
)

const (
	adminPageSize  = 50
	maxUploadBytes = 10 << 20
	analyticsDays  = 30
)

func (s *Server) handleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	type row struct {
		Name  string
		Label string
	}
	var domains []row
	for _, m := range s.Catalog.All() {
		domains = append(domains, row{Name: m.Name(), Label: m.Label()})
	}
	s.render(w, r, http.StatusOK, "admin_dashboard", map[string]any{
		"Title":     "Admin",
		"Domains":   domains,
		"CacheKeys": s.Cache.Keys(),
	})
}

func (s *Server) handleAdminAnalytics(w http.ResponseWriter, r *http.Request) {
	since := time.Now().AddDate(0, 0, -analyticsDays)
	data := map[string]any{"Title": "Analytics", "Days": analyticsDays}

	sum, err := s.Analytics.Summary(r.Context(), since)
	switch {
	case errors.Is(err, analytics.ErrDisabled):
		data["Error"] = "Analytics are not configured for this site."
	case err != nil:
		hlog.FromRequest(r).Error().Err(err).Msg("load analytics summary")
		data["Error"] = "Analytics could not be loaded."
		data["RetryURL"] = "/admin/analytics"
	default:
		data["Summary"] = sum
	}
	s.render(w, r, http.StatusOK, "admin_analytics", data)
}

func (s *Server) handleAdminBackup(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "admin_backup", map[string]any{
		"Title":     "Backups",
		"Domains":   s.Catalog.List(),
		"Scheduled": s.Jobs != nil,
	})
}

func (s *Server) handleBackupExport(w http.ResponseWriter, r *http.Request) {
	doc, err := s.Backups.Export(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("export backup")
		s.render(w, r, errorStatus(err), "admin_backup", map[string]any{
			"Title":    "Backups",
			"Domains":  s.Catalog.List(),
			"Error":    "The backup could not be created.",
			"RetryURL": "/admin/backup/export",
		})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", backup.FileName(doc.CreatedAt)))
	if err := backup.Encode(w, doc); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("write backup")
	}
}

func (s *Server) handleBackupImport(w http.ResponseWriter, r *http.Request) {
	fail := func(status int, msg string) {
		s.render(w, r, status, "admin_backup", map[string]any{
			"Title":   "Backups",
			"Domains": s.Catalog.List(),
			"Error":   msg,
		})
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		fail(http.StatusBadRequest, "Choose a backup file to restore.")
		return
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		fail(http.StatusBadRequest, "Choose a backup file to restore.")
		return
	}
	defer func() { _ = f.Close() }()

	doc, err := backup.Decode(f)
	if err != nil {
		fail(http.StatusBadRequest, "That file is not a valid backup: "+err.Error())
		return
	}
	counts, err := s.Backups.Import(r.Context(), doc)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("import backup")
		fail(errorStatus(err), "Restore failed: "+err.Error())
		return
	}

	parts := make([]string, 0, len(counts))
	for _, name := range s.Catalog.List() {
		if n, ok := counts[name]; ok {
			parts = append(parts, fmt.Sprintf("%d %s", n, name))
		}
	}
	s.flash(r, "Restored "+strings.Join(parts, ", ")+".")
	http.Redirect(w, r, "/admin/backup", http.StatusSeeOther)
}

func (s *Server) handleBackupSchedule(w http.ResponseWriter, r *http.Request) {
	if s.Jobs == nil {
		s.flash(r, "Background jobs are not configured.")
		http.Redirect(w, r, "/admin/backup", http.StatusSeeOther)
		return
	}
	a, _ := auth.AdminFrom(r.Context())
	id, err := s.Jobs.EnqueueBackup(r.Context(), a.Email)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("queue backup")
		s.flash(r, "The backup could not be queued. Please try again.")
	} else {
		s.flash(r, "Backup queued ("+id+"). It will appear in the backups bucket shortly.")
	}
	http.Redirect(w, r, "/admin/backup", http.StatusSeeOther)
}

func (s *Server) handleCacheFlush(w http.ResponseWriter, r *http.Request) {
	n := s.Cache.Len()
	s.Cache.Flush()
	hlog.FromRequest(r).Info().Int("entries", n).Msg("cache flushed")
	s.flash(r, fmt.Sprintf("Cleared %d cached entries.", n))
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

// manager resolves the {domain} URL parameter, rendering 404 when unknown
func (s *Server) manager(w http.ResponseWriter, r *http.Request) (content.Manager, bool) {
	m, err := s.Catalog.Lookup(chi.URLParam(r, "domain"))
	if err != nil {
		s.notFound(w, r)
		return nil, false
	}
	return m, true
}

func adminURL(m content.Manager) string { return "/admin/" + m.Name() }

func (s *Server) handleAdminList(w http.ResponseWriter, r *http.Request) {
	m, ok := s.manager(w, r)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	data := map[string]any{"Title": m.Label(), "Domain": m}

	p, err := m.RecordPage(r.Context(), page, adminPageSize)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("domain", m.Name()).Msg("load admin list")
		data["Error"] = "Could not load " + strings.ToLower(m.Label()) + " from the database."
		data["RetryURL"] = r.URL.RequestURI()
		s.render(w, r, errorStatus(err), "admin_list", data)
		return
	}
	data["Page"] = p
	s.render(w, r, http.StatusOK, "admin_list", data)
}

func (s *Server) handleAdminNew(w http.ResponseWriter, r *http.Request) {
	m, ok := s.manager(w, r)
	if !ok {
		return
	}
	s.render(w, r, http.StatusOK, "admin_form", map[string]any{
		"Title":  "New " + m.Label(),
		"Domain": m,
		"Action": adminURL(m),
		"Values": url.Values{},
	})
}

func (s *Server) handleAdminEdit(w http.ResponseWriter, r *http.Request) {
	m, ok := s.manager(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	data := map[string]any{
		"Title":  "Edit " + m.Label(),
		"Domain": m,
		"Action": adminURL(m) + "/" + id,
	}
	rec, err := m.LoadRecord(r.Context(), id)
	switch {
	case errors.Is(err, content.ErrNotFound):
		s.notFound(w, r)
		return
	case err != nil:
		hlog.FromRequest(r).Error().Err(err).Str("domain", m.Name()).Str("id", id).Msg("load admin item")
		data["Error"] = "Could not load this item from the database."
		data["RetryURL"] = r.URL.RequestURI()
		s.render(w, r, errorStatus(err), "error", data)
		return
	}
	data["Record"] = rec
	s.render(w, r, http.StatusOK, "admin_form", data)
}

// readForm parses a submitted admin form into a row, uploading an attached
// image first when the domain has an image field
func (s *Server) readForm(r *http.Request, m content.Manager, partial bool) (map[string]any, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, fmt.Errorf("%w: %w", content.ErrInvalid, err)
		}
	} else if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("%w: %w", content.ErrInvalid, err)
	}

	var uploaded *media.Object
	if imageField(m) != "" && r.MultipartForm != nil {
		if f, hdr, err := r.FormFile("image_file"); err == nil {
			defer func() { _ = f.Close() }()
			ct := hdr.Header.Get("Content-Type")
			if _, err := media.ImageExt(ct); err != nil {
				return nil, err
			}
			obj, err := s.Media.Upload(r.Context(), media.GalleryBucket, media.ObjectName(m.Name(), hdr.Filename), ct, f)
			if err != nil {
				return nil, fmt.Errorf("upload image: %w", err)
			}
			uploaded = &obj
			r.Form.Set(imageField(m), obj.URL)
		}
	}

	row, err := content.ParseForm(m.Fields(), r.Form, partial)
	if err != nil {
		return nil, err
	}
	if uploaded != nil {
		row["storage_path"] = uploaded.Path
	}
	return row, nil
}

func imageField(m content.Manager) string {
	for _, f := range m.Fields() {
		if f.Kind == content.KindImage {
			return f.Name
		}
	}
	return ""
}

func (s *Server) formError(w http.ResponseWriter, r *http.Request, m content.Manager, action string, err error) {
	status := errorStatus(err)
	data := map[string]any{
		"Title":  m.Label(),
		"Domain": m,
		"Action": action,
		"Values": r.Form,
		"Error":  err.Error(),
	}
	if status >= 500 {
		hlog.FromRequest(r).Error().Err(err).Str("domain", m.Name()).Msg("save failed")
		data["Error"] = "The change could not be saved. Your entry is kept below; submit again to retry."
		data["RetryURL"] = action
	}
	s.render(w, r, status, "admin_form", data)
}

func (s *Server) handleAdminCreate(w http.ResponseWriter, r *http.Request) {
	m, ok := s.manager(w, r)
	if !ok {
		return
	}
	row, err := s.readForm(r, m, false)
	if err == nil {
		_, err = m.CreateFrom(r.Context(), row)
	}
	if err != nil {
		s.formError(w, r, m, adminURL(m), err)
		return
	}
	s.flash(r, m.Label()+" item created.")
	http.Redirect(w, r, adminURL(m), http.StatusSeeOther)
}

func (s *Server) handleAdminUpdate(w http.ResponseWriter, r *http.Request) {
	m, ok := s.manager(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	row, err := s.readForm(r, m, true)
	if err == nil {
		_, err = m.UpdateFrom(r.Context(), id, row)
	}
	if errors.Is(err, content.ErrNotFound) {
		s.notFound(w, r)
		return
	}
	if err != nil {
		s.formError(w, r, m, adminURL(m)+"/"+id, err)
		return
	}
	s.flash(r, m.Label()+" item updated.")
	http.Redirect(w, r, adminURL(m), http.StatusSeeOther)
}

func (s *Server) handleAdminDelete(w http.ResponseWriter, r *http.Request) {
	m, ok := s.manager(w, r)
	if !ok {
		return
	}
	err := m.Delete(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, content.ErrNotFound):
		s.flash(r, "That item no longer exists.")
	case err != nil:
		hlog.FromRequest(r).Error().Err(err).Str("domain", m.Name()).Msg("delete failed")
		s.flash(r, "The item could not be deleted. Please try again.")
	default:
		s.flash(r, m.Label()+" item deleted.")
	}
	http.Redirect(w, r, adminURL(m), http.StatusSeeOther)
}

// handleAdminReorder accepts either the full ordering ("ids", comma
// separated) or a single move ("from", "to" positions).
func (s *Server) handleAdminReorder(w http.ResponseWriter, r *http.Request) {
	m, ok := s.manager(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	var (
		state reorder.State
		err   error
	)
	if raw := r.PostForm.Get("ids"); raw != "" {
		_, state, err = m.ArrangeIDs(r.Context(), splitIDs(raw))
	} else {
		from, ferr := strconv.Atoi(r.PostForm.Get("from"))
		to, terr := strconv.Atoi(r.PostForm.Get("to"))
		if ferr != nil || terr != nil {
			err = fmt.Errorf("%w: from and to must be positions", content.ErrInvalid)
		} else {
			_, state, err = m.MoveItem(r.Context(), from, to)
		}
	}

	log := hlog.FromRequest(r)
	switch {
	case state == reorder.RolledBack:
		log.Warn().Err(err).Str("domain", m.Name()).Msg("reorder rolled back")
		s.flash(r, "The new order could not be saved, so the previous order was restored.")
	case err != nil:
		log.Error().Err(err).Str("domain", m.Name()).Str("state", state.String()).Msg("reorder failed")
		s.flash(r, "Reordering failed: "+err.Error())
	default:
		s.flash(r, "Order saved.")
	}
	http.Redirect(w, r, adminURL(m), http.StatusSeeOther)
}

func splitIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
