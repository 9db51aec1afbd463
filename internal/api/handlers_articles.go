package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/docset/internal/questions"
	"github.com/dgallion1/docset/internal/storage"
)

func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	entries, err := s.articles.List()
	if err != nil {
		jsonError(w, "failed to list articles: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []storage.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"articles": entries})
}

func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "articleID")
	meta, chunks, err := s.articles.ReadArticle(id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if chunks == nil {
		chunks = []storage.ChunkMeta{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"article": meta,
		"chunks":  chunks,
	})
}

// handleGetDataset returns dataset.json, or dataset.md with ?format=md.
func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "articleID")

	if r.URL.Query().Get("format") == "md" {
		md, err := s.articles.DatasetMarkdown(id)
		if err != nil {
			s.storeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Write(md)
		return
	}

	qs, err := s.articles.ReadDataset(id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if qs == nil {
		qs = []questions.Question{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"article_id": id,
		"total":      len(qs),
		"questions":  qs,
	})
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidID) {
		jsonError(w, "article not found", http.StatusNotFound)
		return
	}
	s.log.Error("article store read failed", "error", err)
	jsonError(w, "failed to read article", http.StatusInternalServerError)
}
