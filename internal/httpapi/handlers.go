package httpapi

import (
	"net/http"
	"time"

	"github.com/lessonmart/authcore/pkg/logger"
	"github.com/lessonmart/authcore/pkg/qrcode"
	"github.com/lessonmart/authcore/pkg/twofactor"
)

type codeRequest struct {
	Code string `json:"code"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type setupResponse struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`
	QRCode string `json:"qr_code,omitempty"`
}

type backupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

type signInResponse struct {
	Method               twofactor.Method `json:"method"`
	RemainingBackupCodes int              `json:"remaining_backup_codes"`
}

type statusResponse struct {
	Status               string     `json:"status"`
	RemainingBackupCodes int        `json:"remaining_backup_codes"`
	PendingSince         *time.Time `json:"pending_since,omitempty"`
}

func (a *API) setup(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.caller(r, a.identity)
	if !ok {
		writeReason(w, http.StatusUnauthorized, reasonUnauthenticated)
		return
	}

	enrollment, err := a.svc.Setup(r.Context(), caller)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := setupResponse{Secret: enrollment.Secret, URI: enrollment.URI}
	if img, err := qrcode.DataURI(enrollment.URI, a.qrSize); err != nil {
		a.logger.WarnContext(r.Context(), "enrollment qr code failed",
			logger.UserID(caller.UserID), logger.Error(err))
	} else {
		resp.QRCode = img
	}
	writeData(w, resp)
}

func (a *API) verify(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.caller(r, a.identity)
	if !ok {
		writeReason(w, http.StatusUnauthorized, reasonUnauthenticated)
		return
	}
	var req codeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeReason(w, http.StatusBadRequest, twofactor.ReasonInvalidInput)
		return
	}

	codes, err := a.svc.Verify(r.Context(), caller, req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, backupCodesResponse{BackupCodes: codes.Codes})
}

func (a *API) disable(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.caller(r, a.identity)
	if !ok {
		writeReason(w, http.StatusUnauthorized, reasonUnauthenticated)
		return
	}
	var req passwordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeReason(w, http.StatusBadRequest, twofactor.ReasonInvalidInput)
		return
	}

	if err := a.svc.Disable(r.Context(), caller, req.Password); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, statusResponse{Status: twofactor.StatusDisabled.String()})
}

func (a *API) regenerate(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.caller(r, a.identity)
	if !ok {
		writeReason(w, http.StatusUnauthorized, reasonUnauthenticated)
		return
	}
	var req passwordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeReason(w, http.StatusBadRequest, twofactor.ReasonInvalidInput)
		return
	}

	codes, err := a.svc.RegenerateBackupCodes(r.Context(), caller, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, backupCodesResponse{BackupCodes: codes.Codes})
}

func (a *API) signIn(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.caller(r, a.challenge)
	if !ok {
		writeReason(w, http.StatusUnauthorized, reasonUnauthenticated)
		return
	}
	var req codeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeReason(w, http.StatusBadRequest, twofactor.ReasonInvalidInput)
		return
	}

	result, err := a.svc.ValidateSignIn(r.Context(), caller, req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, signInResponse{Method: result.Method, RemainingBackupCodes: result.RemainingBackupCodes})
}

func (a *API) status(w http.ResponseWriter, r *http.Request) {
	id, ok := a.identity(r)
	if !ok {
		writeReason(w, http.StatusUnauthorized, reasonUnauthenticated)
		return
	}

	summary, err := a.svc.Status(r.Context(), id.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, statusResponse{
		Status:               summary.Status.String(),
		RemainingBackupCodes: summary.RemainingBackupCodes,
		PendingSince:         summary.PendingSince,
	})
}
