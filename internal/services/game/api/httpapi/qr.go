package httpapi

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/yeqown/go-qrcode/v2"
	"github.com/yeqown/go-qrcode/writer/standard"

	apperrors "github.com/davidvanstory/MultiplayerGame/internal/platform/errors"
)

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// handleRoomQR renders the room's join link as a PNG QR code, the handoff
// from a host screen to player phones.
func (h *Handler) handleRoomQR(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimSpace(r.PathValue("roomID"))
	rm, err := h.cfg.Store.GetRoom(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	link := h.joinURL(r, rm)
	if link == "" {
		writeError(w, apperrors.New(apperrors.CodeUnknown, "no public base url to encode"))
		return
	}

	qrc, err := qrcode.NewWith(link,
		qrcode.WithErrorCorrectionLevel(qrcode.ErrorCorrectionMedium),
		qrcode.WithEncodingMode(qrcode.EncModeByte),
	)
	if err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeUnknown, "build qr code", err))
		return
	}

	var buf bytes.Buffer
	qw := standard.NewWithWriter(nopWriteCloser{&buf},
		standard.WithBuiltinImageEncoder(standard.PNG_FORMAT),
		standard.WithQRWidth(8),
	)
	if err := qrc.Save(qw); err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeUnknown, "render qr code", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
