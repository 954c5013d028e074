package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/moodlens/internal/encode"
	"github.com/ayusman/moodlens/internal/session"
)

// VideoHandler streams annotated frames as multipart MJPEG.
type VideoHandler struct {
	controller *session.Controller
	logger     logrus.FieldLogger
}

// NewVideoHandler creates a new VideoHandler.
func NewVideoHandler(c *session.Controller, logger logrus.FieldLogger) *VideoHandler {
	return &VideoHandler{controller: c, logger: logger}
}

// ServeHTTP opens a stream and writes chunks until it ends. A device that
// cannot be opened yields the headers and an empty body. A failure inside
// the loop aborts the connection so clients can tell it from a normal end.
func (h *VideoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", encode.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)

	log := h.logger.WithField("request_id", RequestID(r.Context()))

	stream, err := h.controller.OpenStream()
	if err != nil {
		log.WithError(err).Warn("video stream unavailable")
		w.WriteHeader(http.StatusOK)
		return
	}
	defer stream.Close()

	w.WriteHeader(http.StatusOK)
	if flusher != nil {
		flusher.Flush()
	}

	for {
		chunk, err := stream.Next(r.Context())
		if err != nil {
			switch {
			case errors.Is(err, io.EOF),
				errors.Is(err, session.ErrFrameRead),
				r.Context().Err() != nil:
				return
			default:
				log.WithError(err).Error("video stream aborted")
				panic(http.ErrAbortHandler)
			}
		}
		if _, err := w.Write(chunk); err != nil {
			log.WithError(err).Debug("client went away")
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
