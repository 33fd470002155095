package api

import (
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"
)

// previewFrameRate caps how fast the MJPEG stream pushes frames. Preview is
// a viewfinder, not a broadcast path.
const previewFrameRate = 15

// previewHandler streams the latest capture frame as multipart MJPEG. Each
// client runs its own ticker; a client that stalls sees fewer frames, the
// capture path never blocks.
func (s *Server) previewHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mw := multipart.NewWriter(w)
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mw.Boundary())
		w.Header().Set("Cache-Control", "no-store")

		flusher, _ := w.(http.Flusher)
		ticker := time.NewTicker(time.Second / previewFrameRate)
		defer ticker.Stop()

		var lastSeq uint64
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
			}

			frame, seq := s.opts.Preview.Latest()
			if frame == nil || seq == lastSeq {
				if frame != nil {
					frame.Release()
				}
				continue
			}
			img, src := s.opts.Preview.Image()
			frame.Release()
			if img == nil {
				continue
			}

			part, err := mw.CreatePart(textproto.MIMEHeader{
				"Content-Type": {"image/jpeg"},
			})
			if err != nil {
				src.Release()
				return
			}
			err = jpeg.Encode(part, img, &jpeg.Options{Quality: 80})
			src.Release()
			if err != nil {
				s.logger.Debug("Preview client write failed", "error", err)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			lastSeq = seq
		}
	})
}
