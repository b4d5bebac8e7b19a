package api

import (
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kalambet/chesscoach/internal/coach"
	"github.com/kalambet/chesscoach/internal/session"
	"github.com/kalambet/chesscoach/internal/storage"
)

const (
	sessionCookie = "chesscoach_session"
	flashCookie   = "chesscoach_flash"

	maxFormSize = 64 << 10 // 64KB
	recentRuns  = 10
)

// RunLister lists locally recorded runs for the page footer.
type RunLister interface {
	ListRuns(limit int) ([]storage.Run, error)
}

// UIDeps wires the browser UI to its session registry and local history.
type UIDeps struct {
	Sessions       *session.Registry
	History        RunLister // optional; hides the recent runs table when nil
	AllowedOrigins []string  // CORS origins for /state.json; empty disables CORS
	Logger         *slog.Logger
}

type pageData struct {
	View        session.View
	Frequencies []coach.Frequency
	Recent      []storage.Run
	Ack         string
}

var funcMap = template.FuncMap{
	"title": func(f coach.Frequency) string {
		s := f.String()
		return strings.ToUpper(s[:1]) + s[1:]
	},
	"fmtTime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Local().Format("2006-01-02 15:04")
	},
}

// NewUIHandler returns the browser front end.
func NewUIHandler(deps UIDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(deps.Logger))

	r.Get("/", handlePage(deps))
	r.Post("/analyze", handleAnalyze(deps))
	r.Post("/analysis/load", handleLoad(deps))
	r.Post("/form", handleFormField(deps))
	r.Post("/schedule/draft", handleFormField(deps))
	r.Post("/schedule", handleSchedule(deps))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		if len(deps.AllowedOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:   deps.AllowedOrigins,
				AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
				AllowedHeaders:   []string{"Accept"},
				AllowCredentials: true,
				MaxAge:           300,
			}))
		}
		r.Get("/state.json", handleState(deps))
	})

	return r
}

// sessionFor resolves the caller's session, issuing a cookie for new ones.
func sessionFor(deps UIDeps, w http.ResponseWriter, r *http.Request) *session.State {
	var id string
	if c, err := r.Cookie(sessionCookie); err == nil {
		id = c.Value
	}
	newID, st := deps.Sessions.Get(id)
	if newID != id {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    newID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return st
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseForm(); err != nil {
		httpError(w, http.StatusBadRequest, "invalid form: %v", err)
		return false
	}
	return true
}

func handlePage(deps UIDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := sessionFor(deps, w, r)

		data := pageData{
			View:        st.Snapshot(),
			Frequencies: []coach.Frequency{coach.Daily, coach.Weekly},
		}

		if c, err := r.Cookie(flashCookie); err == nil {
			if msg, err := url.QueryUnescape(c.Value); err == nil {
				data.Ack = msg
			}
			http.SetCookie(w, &http.Cookie{Name: flashCookie, Path: "/", MaxAge: -1})
		}

		if deps.History != nil {
			runs, err := deps.History.ListRuns(recentRuns)
			if err != nil {
				deps.Logger.Warn("listing recent runs failed", "error", err)
			}
			data.Recent = runs
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := pageTemplate.Execute(w, data); err != nil {
			deps.Logger.Error("rendering page failed", "error", err)
		}
	}
}

func handleAnalyze(deps UIDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !parseForm(w, r) {
			return
		}
		st := sessionFor(deps, w, r)
		if _, ok := r.PostForm["date"]; ok {
			st.SetDate(r.PostFormValue("date"))
		}
		st.StartAnalysis(r.Context())
		redirectHome(w, r)
	}
}

func handleLoad(deps UIDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := sessionFor(deps, w, r)
		// The button is not rendered without a run id; a stale form post is a no-op.
		if st.CanLoad() {
			st.LoadAnalysis(r.Context())
		}
		redirectHome(w, r)
	}
}

// handleFormField applies whichever of date, schedule_date and frequency are
// present. On /schedule/draft, date refers to the draft.
func handleFormField(deps UIDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !parseForm(w, r) {
			return
		}
		st := sessionFor(deps, w, r)
		draftOnly := r.URL.Path == "/schedule/draft"

		if vs, ok := r.PostForm["frequency"]; ok {
			f, err := coach.ParseFrequency(vs[0])
			if err != nil {
				httpError(w, http.StatusBadRequest, "%v", err)
				return
			}
			st.SetDraftFrequency(f)
		}
		if vs, ok := r.PostForm["schedule_date"]; ok {
			st.SetDraftDate(vs[0])
		}
		if vs, ok := r.PostForm["date"]; ok {
			if draftOnly {
				st.SetDraftDate(vs[0])
			} else {
				st.SetDate(vs[0])
			}
		}

		if draftOnly {
			redirectHome(w, r)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleSchedule(deps UIDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !parseForm(w, r) {
			return
		}
		st := sessionFor(deps, w, r)

		if vs, ok := r.PostForm["frequency"]; ok {
			f, err := coach.ParseFrequency(vs[0])
			if err != nil {
				httpError(w, http.StatusBadRequest, "%v", err)
				return
			}
			st.SetDraftFrequency(f)
		}
		for _, field := range []string{"schedule_date", "date"} {
			if vs, ok := r.PostForm[field]; ok {
				st.SetDraftDate(vs[0])
				break
			}
		}

		ack := st.SubmitSchedule(r.Context())
		http.SetCookie(w, &http.Cookie{
			Name:     flashCookie,
			Value:    url.QueryEscape(ack),
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		redirectHome(w, r)
	}
}

func handleState(deps UIDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := sessionFor(deps, w, r)
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(st.Snapshot()); err != nil {
			deps.Logger.Warn("encoding state failed", "error", err)
		}
	}
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
		},
	})
}
