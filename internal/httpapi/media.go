package httpapi

import (
	"io"
	"net/http"
)

const maxUploadBytes = 25 << 20 // provider limit for audio uploads

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "expected multipart form with an audio file")
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "audio file field is required")
		return
	}
	defer file.Close()

	text, err := s.brain.Transcribe(r.Context(), header.Filename, file)
	if err != nil {
		s.log.Error().Err(err).Msg("transcription failed")
		respondError(w, http.StatusBadGateway, "provider_error", "transcription is unavailable, try again")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (s *Server) handleDescribeImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "expected multipart form with an image file")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "image file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "could not read image upload")
		return
	}

	description, err := s.brain.DescribeImage(r.Context(), r.FormValue("prompt"), data, header.Header.Get("Content-Type"))
	if err != nil {
		s.log.Error().Err(err).Msg("image description failed")
		respondError(w, http.StatusBadGateway, "provider_error", "vision model is unavailable, try again")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"description": description})
}
