package handler

import (
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/orderindexer/internal/crypto"
)

// SignatureHandler recovers signers for clients that cannot run secp256k1
// themselves.
type SignatureHandler struct {
	logger *slog.Logger
}

// NewSignatureHandler creates a SignatureHandler.
func NewSignatureHandler(logger *slog.Logger) *SignatureHandler {
	return &SignatureHandler{logger: logHandler(logger, "signatures")}
}

// recoverRequest names the signed payload and how it was signed. Domain is
// the EIP-712 domain separator and only read for the "typed" scheme.
type recoverRequest struct {
	Payload   hexutil.Bytes `json:"payload"`
	Message   string        `json:"message"`
	Signature hexutil.Bytes `json:"signature"`
	Scheme    string        `json:"scheme"`
	Domain    *common.Hash  `json:"domain,omitempty"`
}

type recoverResponse struct {
	Signer common.Address `json:"signer"`
}

// Recover returns the address that produced the signature.
// POST /api/signatures/recover
func (h *SignatureHandler) Recover(w http.ResponseWriter, r *http.Request) {
	var req recoverRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	payload := []byte(req.Payload)
	var scheme crypto.Scheme
	switch req.Scheme {
	case "", "personal":
		scheme = crypto.PersonalMessage()
		if req.Message != "" {
			payload = []byte(req.Message)
		}
	case "raw":
		scheme = crypto.RawDigest()
	case "typed":
		if req.Domain == nil {
			writeError(w, http.StatusBadRequest, "domain is required for typed signatures")
			return
		}
		scheme = crypto.TypedData(*req.Domain)
	default:
		writeError(w, http.StatusBadRequest, "scheme must be one of personal, raw, typed")
		return
	}

	signer, err := crypto.Recover(payload, req.Signature, scheme)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, "recover signer", err)
		return
	}
	writeJSON(w, http.StatusOK, recoverResponse{Signer: signer})
}
