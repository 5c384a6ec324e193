package main

import (
	"math/big"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-privacy/shielded-core/internal/asp"
	"github.com/noah-privacy/shielded-core/internal/audit"
	"github.com/noah-privacy/shielded-core/internal/hashing"
	"github.com/noah-privacy/shielded-core/internal/merkle"
	"github.com/noah-privacy/shielded-core/internal/orchestrator"
	"github.com/noah-privacy/shielded-core/internal/withdrawal"
	"github.com/noah-privacy/shielded-core/pkg/logger"
	"github.com/noah-privacy/shielded-core/pkg/metrics"
)

// API wraps the orchestrator in gin handlers, translating JSON over the
// wire into the types internal/orchestrator already operates on.
type API struct {
	orch *orchestrator.Orchestrator
}

// NewAPI builds an API bound to orch.
func NewAPI(orch *orchestrator.Orchestrator) *API {
	return &API{orch: orch}
}

func toMerkleProofJSON(p merkle.Proof) merkleProofJSON {
	out := merkleProofJSON{
		Path:    make([]string, len(p.Path)),
		Indices: p.Indices,
		Root:    encodeHex(p.Root[:]),
	}
	for i, node := range p.Path {
		out.Path[i] = encodeHex(node[:])
	}
	return out
}

func fromMerkleProofJSON(p merkleProofJSON) ([][hashing.Size]byte, []bool, error) {
	path := make([][hashing.Size]byte, len(p.Path))
	for i, s := range p.Path {
		b, err := decodeHex(s, hashing.Size)
		if err != nil {
			return nil, nil, err
		}
		copy(path[i][:], b)
	}
	return path, p.Indices, nil
}

// Deposit handles POST /deposit.
func (a *API) Deposit(c *gin.Context) {
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, DepositResponse{Error: "invalid request: " + err.Error()})
		return
	}

	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		c.JSON(http.StatusBadRequest, DepositResponse{Error: "invalid amount"})
		return
	}

	index, entryID, err := a.orch.Deposit([hashing.Size]byte(req.Commitment), amount)
	if err != nil {
		c.JSON(http.StatusInternalServerError, DepositResponse{Error: err.Error()})
		return
	}

	metrics.RecordAuditAppend("deposit")
	c.JSON(http.StatusOK, DepositResponse{
		Success:     true,
		Index:       index,
		EntryID:     HexHash32(entryID),
		DepositRoot: HexHash32(a.orch.DepositRoot()),
	})
}

// Withdraw handles POST /withdraw.
func (a *API) Withdraw(c *gin.Context) {
	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, WithdrawResponse{Error: "invalid request: " + err.Error()})
		return
	}

	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		c.JSON(http.StatusBadRequest, WithdrawResponse{Error: "invalid amount"})
		return
	}

	path, indices, err := fromMerkleProofJSON(req.Proof)
	if err != nil {
		c.JSON(http.StatusBadRequest, WithdrawResponse{Error: err.Error()})
		return
	}

	withdrawalReq := withdrawal.Request{
		Commitment: [hashing.Size]byte(req.Commitment),
		Nullifier:  [hashing.Size]byte(req.Nullifier),
		Recipient:  [20]byte(req.Recipient),
		Amount:     amount,
		Path:       path,
		Indices:    indices,
	}

	result, err := a.orch.Withdraw(withdrawalReq)
	metrics.RecordWithdrawal(0, err == nil)
	if err != nil {
		status := http.StatusBadRequest
		if err == withdrawal.ErrNullifierAlreadyUsed {
			status = http.StatusConflict
		}
		logger.Warn("withdrawal rejected", zap.Error(err))
		c.JSON(status, WithdrawResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, WithdrawResponse{
		Success:     true,
		EntryID:     HexHash32(result.EntryID),
		Nullifier:   HexHash32(result.Envelope.Nullifier()),
		DepositRoot: HexHash32(result.Envelope.DepositRoot()),
	})
}

// WithdrawBatch handles POST /withdraw/batch, staging and committing a
// queue of withdrawal requests as a single all-or-nothing pass.
func (a *API) WithdrawBatch(c *gin.Context) {
	var req BatchWithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, BatchWithdrawResponse{Error: "invalid request: " + err.Error()})
		return
	}

	reqs := make([]withdrawal.Request, len(req.Requests))
	for i, wr := range req.Requests {
		amount, ok := new(big.Int).SetString(wr.Amount, 10)
		if !ok {
			c.JSON(http.StatusBadRequest, BatchWithdrawResponse{Error: "invalid amount"})
			return
		}
		path, indices, err := fromMerkleProofJSON(wr.Proof)
		if err != nil {
			c.JSON(http.StatusBadRequest, BatchWithdrawResponse{Error: err.Error()})
			return
		}
		reqs[i] = withdrawal.Request{
			Commitment: [hashing.Size]byte(wr.Commitment),
			Nullifier:  [hashing.Size]byte(wr.Nullifier),
			Recipient:  [20]byte(wr.Recipient),
			Amount:     amount,
			Path:       path,
			Indices:    indices,
		}
	}

	results, err := a.orch.WithdrawBatch(reqs)
	for i := 0; i < len(reqs); i++ {
		metrics.RecordWithdrawal(0, err == nil)
	}
	if err != nil {
		status := http.StatusBadRequest
		if err == withdrawal.ErrNullifierAlreadyUsed {
			status = http.StatusConflict
		}
		logger.Warn("batch withdrawal rejected", zap.Error(err))
		c.JSON(status, BatchWithdrawResponse{Error: err.Error()})
		return
	}

	out := make([]WithdrawResponse, len(results))
	for i, r := range results {
		out[i] = WithdrawResponse{
			Success:     true,
			EntryID:     HexHash32(r.EntryID),
			Nullifier:   HexHash32(r.Envelope.Nullifier()),
			DepositRoot: HexHash32(r.Envelope.DepositRoot()),
		}
	}
	c.JSON(http.StatusOK, BatchWithdrawResponse{Success: true, Results: out})
}

// CheckCompliance handles POST /compliance/check.
func (a *API) CheckCompliance(c *gin.Context) {
	var req ComplianceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ComplianceResponse{Error: "invalid request: " + err.Error()})
		return
	}

	result, err := a.orch.CheckCompliance(req.ASPName, [hashing.Size]byte(req.Commitment))
	metrics.RecordComplianceCheck(0, err == nil)
	if err != nil {
		status := http.StatusBadRequest
		if err == orchestrator.ErrUnknownASP {
			status = http.StatusNotFound
		}
		c.JSON(status, ComplianceResponse{EntryID: HexHash32(result.EntryID), Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, ComplianceResponse{Approved: true, EntryID: HexHash32(result.EntryID)})
}

// AddToASP handles POST /asp/:name/add.
func (a *API) AddToASP(c *gin.Context) {
	name := c.Param("name")
	var req ASPMutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ASPMutationResponse{Error: "invalid request: " + err.Error()})
		return
	}

	index, entryID, err := a.orch.AddToASP(name, [hashing.Size]byte(req.Commitment))
	metrics.RecordASPUpdate("add", err == nil)
	if err != nil {
		status := http.StatusBadRequest
		if err == orchestrator.ErrUnknownASP {
			status = http.StatusNotFound
		}
		c.JSON(status, ASPMutationResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, ASPMutationResponse{Success: true, Index: index, EntryID: HexHash32(entryID)})
}

// RemoveFromASP handles POST /asp/:name/remove.
func (a *API) RemoveFromASP(c *gin.Context) {
	name := c.Param("name")
	var req ASPMutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ASPMutationResponse{Error: "invalid request: " + err.Error()})
		return
	}

	entryID, err := a.orch.RemoveFromASP(name, [hashing.Size]byte(req.Commitment))
	metrics.RecordASPUpdate("remove", err == nil)
	if err != nil {
		status := http.StatusBadRequest
		if err == orchestrator.ErrUnknownASP {
			status = http.StatusNotFound
		}
		c.JSON(status, ASPMutationResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, ASPMutationResponse{Success: true, EntryID: HexHash32(entryID)})
}

// Disclose handles POST /audit/:entry_id/disclose.
func (a *API) Disclose(c *gin.Context) {
	idBytes, err := decodeHex(c.Param("entry_id"), hashing.Size)
	if err != nil {
		c.JSON(http.StatusBadRequest, DisclosureResponse{Error: err.Error()})
		return
	}
	var entryID [hashing.Size]byte
	copy(entryID[:], idBytes)

	var req DisclosureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, DisclosureResponse{Error: "invalid request: " + err.Error()})
		return
	}

	bundle, err := a.orch.Journal().Disclose(entryID, [hashing.Size]byte(req.RegulatorKey))
	if err != nil {
		status := http.StatusBadRequest
		if err == audit.ErrEntryNotFound {
			status = http.StatusNotFound
		}
		c.JSON(status, DisclosureResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, DisclosureResponse{
		EntryID:               HexHash32(bundle.EntryID),
		Timestamp:             bundle.Timestamp,
		OpType:                uint8(bundle.OpType),
		EncryptedForRegulator: encodeHex(bundle.EncryptedForRegulator),
		InclusionProof:        toMerkleProofJSON(bundle.InclusionProof),
		Attestation:           encodeHex(bundle.Attestation),
	})
}

// RegisterASP handles POST /asp/:name/register, bootstrapping a new
// Association Set Provider under the given policy.
func (a *API) RegisterASP(c *gin.Context) {
	name := c.Param("name")
	var cfg asp.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	cfg.Name = name
	a.orch.RegisterASP(name, cfg)
	c.JSON(http.StatusOK, gin.H{"success": true, "name": name})
}
