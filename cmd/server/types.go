package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/noah-privacy/shielded-core/internal/hashing"
)

// HexHash32 is a [32]byte that marshals to/from a 0x-prefixed hex
// string in JSON, the wire shape every commitment, nullifier, and root
// field uses at the HTTP boundary.
type HexHash32 [hashing.Size]byte

// UnmarshalJSON implements json.Unmarshaler.
func (h *HexHash32) UnmarshalJSON(data []byte) error {
	str := strings.Trim(string(data), `"`)
	b, err := decodeHex(str, hashing.Size)
	if err != nil {
		return err
	}
	copy(h[:], b)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (h HexHash32) MarshalJSON() ([]byte, error) {
	return []byte(`"` + encodeHex(h[:]) + `"`), nil
}

// HexAddress20 is a [20]byte recipient address, same hex-string wire
// shape as HexHash32.
type HexAddress20 [20]byte

// UnmarshalJSON implements json.Unmarshaler.
func (a *HexAddress20) UnmarshalJSON(data []byte) error {
	str := strings.Trim(string(data), `"`)
	b, err := decodeHex(str, 20)
	if err != nil {
		return err
	}
	copy(a[:], b)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (a HexAddress20) MarshalJSON() ([]byte, error) {
	return []byte(`"` + encodeHex(a[:]) + `"`), nil
}

func encodeHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

func decodeHex(s string, wantLen int) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex string %q: %w", s, err)
	}
	if len(b) != wantLen {
		return nil, fmt.Errorf("expected %d bytes, got %d", wantLen, len(b))
	}
	return b, nil
}

// merkleProofJSON is the JSON shape of a merkle.Proof: hex-encoded path
// nodes, a bool slice of sibling-side indices, and the hex root.
type merkleProofJSON struct {
	Path    []string `json:"path"`
	Indices []bool   `json:"indices"`
	Root    string   `json:"root"`
}

// DepositRequest is the JSON body of POST /deposit.
type DepositRequest struct {
	Commitment HexHash32 `json:"commitment"`
	Amount     string    `json:"amount"`
}

// DepositResponse is the JSON reply to a successful deposit.
type DepositResponse struct {
	Success    bool      `json:"success"`
	Index      uint64    `json:"index"`
	EntryID    HexHash32 `json:"entry_id"`
	DepositRoot HexHash32 `json:"deposit_root"`
	Error      string    `json:"error,omitempty"`
}

// WithdrawRequest is the JSON body of POST /withdraw.
type WithdrawRequest struct {
	Commitment HexHash32        `json:"commitment"`
	Nullifier  HexHash32        `json:"nullifier"`
	Recipient  HexAddress20     `json:"recipient"`
	Amount     string           `json:"amount"`
	Proof      merkleProofJSON  `json:"merkle_proof"`
}

// WithdrawResponse is the JSON reply to a withdrawal request.
type WithdrawResponse struct {
	Success    bool      `json:"success"`
	EntryID    HexHash32 `json:"entry_id"`
	Nullifier  HexHash32 `json:"nullifier"`
	DepositRoot HexHash32 `json:"deposit_root"`
	Error      string    `json:"error,omitempty"`
}

// BatchWithdrawRequest is the JSON body of POST /withdraw/batch: a
// queue of individual withdrawal requests to stage and commit as one
// all-or-nothing pass.
type BatchWithdrawRequest struct {
	Requests []WithdrawRequest `json:"requests"`
}

// BatchWithdrawResponse is the JSON reply to a batch withdrawal.
type BatchWithdrawResponse struct {
	Success bool                `json:"success"`
	Results []WithdrawResponse  `json:"results,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// ComplianceRequest is the JSON body of POST /compliance/check.
type ComplianceRequest struct {
	ASPName    string    `json:"asp_name"`
	Commitment HexHash32 `json:"commitment"`
}

// ComplianceResponse is the JSON reply to a compliance check.
type ComplianceResponse struct {
	Approved bool      `json:"approved"`
	EntryID  HexHash32 `json:"entry_id"`
	Error    string    `json:"error,omitempty"`
}

// ASPMutationRequest is the JSON body of POST /asp/:name/add and
// POST /asp/:name/remove.
type ASPMutationRequest struct {
	Commitment HexHash32 `json:"commitment"`
}

// ASPMutationResponse is the JSON reply to an ASP add/remove call.
type ASPMutationResponse struct {
	Success bool      `json:"success"`
	Index   uint64    `json:"index,omitempty"`
	EntryID HexHash32 `json:"entry_id"`
	Error   string    `json:"error,omitempty"`
}

// DisclosureRequest is the JSON body of POST /audit/:entry_id/disclose.
type DisclosureRequest struct {
	RegulatorKey HexHash32 `json:"regulator_key"`
}

// DisclosureResponse is the JSON reply carrying a selective-disclosure
// bundle: the re-encrypted details plus an inclusion proof a regulator
// can verify against the journal's published root independently.
type DisclosureResponse struct {
	EntryID               HexHash32       `json:"entry_id"`
	Timestamp             uint64          `json:"timestamp"`
	OpType                uint8           `json:"op_type"`
	EncryptedForRegulator string          `json:"encrypted_for_regulator"`
	InclusionProof        merkleProofJSON `json:"inclusion_proof"`
	Attestation           string          `json:"attestation,omitempty"`
	Error                 string          `json:"error,omitempty"`
}
