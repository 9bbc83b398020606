package httpservice

import (
	"context"
	"net/http"

	"github.com/arkade-os/custodyd/internal/core/application"
	"github.com/arkade-os/custodyd/internal/core/domain"
	"github.com/arkade-os/custodyd/internal/infrastructure/authority"
	cerrors "github.com/arkade-os/custodyd/pkg/errors"
	"github.com/go-chi/chi/v5"
)

type handler struct {
	svc      application.Service
	adminSvc application.AdminService
}

func newHandler(svc application.Service, adminSvc application.AdminService) *handler {
	return &handler{svc, adminSvc}
}

func (h *handler) registerOffer(w http.ResponseWriter, r *http.Request) {
	var body offer
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.adminSvc.RegisterOffer(r.Context(), body.toDomain()); err != nil {
		writeError(w, r, err)
		return
	}

	registered, err := h.svc.GetOffer(r.Context(), body.Id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOffer(*registered))
}

func (h *handler) getOffer(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.GetOffer(r.Context(), chi.URLParam(r, "offerId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOffer(*o))
}

func (h *handler) checkIn(w http.ResponseWriter, r *http.Request) {
	h.tokenAction(w, r, h.svc.CheckIn)
}

func (h *handler) requestCheckOut(w http.ResponseWriter, r *http.Request) {
	h.tokenAction(w, r, h.svc.RequestCheckOut)
}

func (h *handler) clearCheckoutRequest(w http.ResponseWriter, r *http.Request) {
	h.tokenAction(w, r, h.svc.ClearCheckoutRequest)
}

func (h *handler) submitTaxAmount(w http.ResponseWriter, r *http.Request) {
	tokenId, err := parseSubjectId(chi.URLParam(r, "tokenId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body amountBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.svc.SubmitTaxAmount(
		r.Context(), callerFrom(r), tokenId, body.Amount,
	); err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCheckoutRequest(w, r, tokenId)
}

func (h *handler) checkOut(w http.ResponseWriter, r *http.Request) {
	tokenId, err := parseSubjectId(chi.URLParam(r, "tokenId"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, rerr := h.svc.CheckOut(r.Context(), callerFrom(r), tokenId)
	if rerr != nil {
		writeError(w, r, rerr)
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponse{
		Payoff:      result.Payoff,
		Residual:    result.Residual,
		VaultClosed: result.VaultClosed,
	})
}

func (h *handler) getCheckoutRequest(w http.ResponseWriter, r *http.Request) {
	tokenId, err := parseSubjectId(chi.URLParam(r, "tokenId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCheckoutRequest(w, r, tokenId)
}

func (h *handler) getVault(w http.ResponseWriter, r *http.Request) {
	subject, err := parseSubjectId(chi.URLParam(r, "subjectId"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	v, rerr := h.svc.GetVault(r.Context(), subject)
	if rerr != nil {
		writeError(w, r, rerr)
		return
	}
	writeJSON(w, http.StatusOK, toVault(*v))
}

func (h *handler) depositToVault(w http.ResponseWriter, r *http.Request) {
	subject, err := parseSubjectId(chi.URLParam(r, "subjectId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body amountBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	v, rerr := h.svc.DepositToVault(r.Context(), callerFrom(r), subject, body.Amount)
	if rerr != nil {
		writeError(w, r, rerr)
		return
	}
	writeJSON(w, http.StatusOK, toVault(*v))
}

func (h *handler) releaseVault(w http.ResponseWriter, r *http.Request) {
	subject, err := parseSubjectId(chi.URLParam(r, "subjectId"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, rerr := h.svc.ReleaseVault(r.Context(), subject)
	if rerr != nil {
		writeError(w, r, rerr)
		return
	}
	writeJSON(w, http.StatusOK, toReleaseResponse(*result))
}

func (h *handler) requestCustodianUpdate(w http.ResponseWriter, r *http.Request) {
	subject, err := parseSubjectId(chi.URLParam(r, "subjectId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body requestCustodianUpdateBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.svc.RequestCustodianUpdate(r.Context(), callerFrom(r), application.CustodianUpdateParams{
		Subject:                subject,
		NewCustodianId:         body.NewCustodianId,
		NewCustodianFee:        body.NewCustodianFee.toDomain(),
		KeepExistingParameters: body.KeepExistingParameters,
		IsEmergencyUpdate:      body.IsEmergencyUpdate,
	}); err != nil {
		writeError(w, r, err)
		return
	}

	req, rerr := h.svc.GetCustodianUpdateRequest(r.Context(), subject)
	if rerr != nil {
		writeError(w, r, rerr)
		return
	}
	writeJSON(w, http.StatusCreated, toCustodianUpdateRequest(*req))
}

func (h *handler) acceptCustodianUpdate(w http.ResponseWriter, r *http.Request) {
	h.subjectAction(w, r, h.svc.AcceptCustodianUpdate)
}

func (h *handler) rejectCustodianUpdate(w http.ResponseWriter, r *http.Request) {
	h.subjectAction(w, r, h.svc.RejectCustodianUpdate)
}

func (h *handler) getCustodianUpdateRequest(w http.ResponseWriter, r *http.Request) {
	subject, err := parseSubjectId(chi.URLParam(r, "subjectId"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	req, rerr := h.svc.GetCustodianUpdateRequest(r.Context(), subject)
	if rerr != nil {
		writeError(w, r, rerr)
		return
	}
	writeJSON(w, http.StatusOK, toCustodianUpdateRequest(*req))
}

func (h *handler) startAuction(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.StartAuction(r.Context(), callerFrom(r), chi.URLParam(r, "offerId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAuction(*info))
}

func (h *handler) placeBid(w http.ResponseWriter, r *http.Request) {
	var body amountBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	info, err := h.svc.PlaceBid(
		r.Context(), callerFrom(r), chi.URLParam(r, "offerId"), body.Amount,
	)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuction(*info))
}

func (h *handler) endAuction(w http.ResponseWriter, r *http.Request) {
	settlement, err := h.svc.EndAuction(r.Context(), chi.URLParam(r, "offerId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuctionSettlement(*settlement))
}

func (h *handler) getAuction(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.GetAuction(r.Context(), chi.URLParam(r, "offerId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuction(*info))
}

func (h *handler) fundWallet(w http.ResponseWriter, r *http.Request) {
	var body fundWalletBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	address := chi.URLParam(r, "address")
	if err := h.adminSvc.FundWallet(r.Context(), address, body.Token, body.Amount); err != nil {
		writeError(w, r, err)
		return
	}
	h.writeBalances(w, r, address)
}

func (h *handler) grantRole(w http.ResponseWriter, r *http.Request) {
	var body grantRoleBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	role, err := authority.ParseRole(body.Role)
	if err != nil {
		writeError(w, r, cerrors.INVALID_REQUEST.Wrap(err))
		return
	}
	accountRole, err := authority.ParseAccountRole(body.AccountRole)
	if err != nil {
		writeError(w, r, cerrors.INVALID_REQUEST.Wrap(err))
		return
	}

	if err := h.adminSvc.GrantRole(
		r.Context(), body.EntityId, body.Caller, role, accountRole,
	); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *handler) sweepVaults(w http.ResponseWriter, r *http.Request) {
	report, err := h.adminSvc.SweepVaults(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"released":         report.Released,
		"auctions_started": report.AuctionsStarted,
		"failed":           report.Failed,
	})
}

func (h *handler) getBalances(w http.ResponseWriter, r *http.Request) {
	h.writeBalances(w, r, chi.URLParam(r, "entityId"))
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) tokenAction(
	w http.ResponseWriter, r *http.Request,
	action func(ctx context.Context, caller string, tokenId domain.SubjectId) cerrors.Error,
) {
	tokenId, err := parseSubjectId(chi.URLParam(r, "tokenId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := action(r.Context(), callerFrom(r), tokenId); err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCheckoutRequest(w, r, tokenId)
}

func (h *handler) subjectAction(
	w http.ResponseWriter, r *http.Request,
	action func(ctx context.Context, caller string, subject domain.SubjectId) cerrors.Error,
) {
	subject, err := parseSubjectId(chi.URLParam(r, "subjectId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := action(r.Context(), callerFrom(r), subject); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *handler) writeCheckoutRequest(
	w http.ResponseWriter, r *http.Request, tokenId domain.SubjectId,
) {
	req, err := h.svc.GetCheckoutRequest(r.Context(), tokenId)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCheckoutRequest(*req))
}

func (h *handler) writeBalances(w http.ResponseWriter, r *http.Request, account string) {
	balances, err := h.adminSvc.GetBalances(r.Context(), account)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account":  account,
		"balances": toBalances(balances),
	})
}
