// Package api implements the canonical byte-layout encode/decode
// functions the transport boundary (cmd/server) uses to turn wire bytes
// into the types internal/withdrawal, internal/asp, internal/merkle,
// and internal/audit already operate on. Every multi-byte integer is
// little-endian. This package never rejects a request for reasons the
// underlying subsystems wouldn't also reject; it only translates shape.
package api

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/noah-privacy/shielded-core/internal/audit"
	"github.com/noah-privacy/shielded-core/internal/hashing"
	"github.com/noah-privacy/shielded-core/internal/merkle"
	"github.com/noah-privacy/shielded-core/internal/withdrawal"
)

// ErrTruncated is returned by every Decode* function when the input is
// shorter than its declared or fixed length.
var ErrTruncated = errors.New("api: truncated wire message")

func packBits(indices []bool) []byte {
	out := make([]byte, (len(indices)+7)/8)
	for i, b := range indices {
		if b {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

func unpackBits(packed []byte, n int) []bool {
	out := make([]bool, n)
	for i := 0; i < n; i++ {
		out[i] = packed[i/8]&(1<<uint(i%8)) != 0
	}
	return out
}

// EncodeMerkleProof serializes p as
// len:u32 | path[len]:32-byte×len | indices:packed-bits | root:32.
func EncodeMerkleProof(p merkle.Proof) []byte {
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(p.Path)))
	buf.Write(lenBuf[:])
	for _, node := range p.Path {
		buf.Write(node[:])
	}
	buf.Write(packBits(p.Indices))
	buf.Write(p.Root[:])
	return buf.Bytes()
}

// DecodeMerkleProof parses the layout EncodeMerkleProof produces.
func DecodeMerkleProof(b []byte) (merkle.Proof, error) {
	if len(b) < 4 {
		return merkle.Proof{}, ErrTruncated
	}
	n := int(binary.LittleEndian.Uint32(b[:4]))
	offset := 4
	pathBytes := n * hashing.Size
	if len(b) < offset+pathBytes {
		return merkle.Proof{}, ErrTruncated
	}
	path := make([][hashing.Size]byte, n)
	for i := 0; i < n; i++ {
		copy(path[i][:], b[offset+i*hashing.Size:offset+(i+1)*hashing.Size])
	}
	offset += pathBytes

	bitBytes := (n + 7) / 8
	if len(b) < offset+bitBytes+hashing.Size {
		return merkle.Proof{}, ErrTruncated
	}
	indices := unpackBits(b[offset:offset+bitBytes], n)
	offset += bitBytes

	var root [hashing.Size]byte
	copy(root[:], b[offset:offset+hashing.Size])

	return merkle.Proof{Path: path, Indices: indices, Root: root}, nil
}

// EncodeWithdrawalRequest serializes req as
// commitment:32 | nullifier:32 | recipient:20 | amount:16 | path_len:u32
// | path:32×path_len | indices:packed-bits.
func EncodeWithdrawalRequest(req withdrawal.Request) []byte {
	var buf bytes.Buffer
	buf.Write(req.Commitment[:])
	buf.Write(req.Nullifier[:])
	buf.Write(req.Recipient[:])

	var amount [16]byte
	if req.Amount != nil {
		be := req.Amount.Bytes()
		for i := 0; i < len(be) && i < 16; i++ {
			amount[i] = be[len(be)-1-i]
		}
	}
	buf.Write(amount[:])

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(req.Path)))
	buf.Write(lenBuf[:])
	for _, node := range req.Path {
		buf.Write(node[:])
	}
	buf.Write(packBits(req.Indices))
	return buf.Bytes()
}

// DecodeWithdrawalRequest parses the layout EncodeWithdrawalRequest
// produces.
func DecodeWithdrawalRequest(b []byte) (withdrawal.Request, error) {
	const fixedLen = hashing.Size + hashing.Size + 20 + 16 + 4
	if len(b) < fixedLen {
		return withdrawal.Request{}, ErrTruncated
	}
	var req withdrawal.Request
	off := 0
	copy(req.Commitment[:], b[off:off+hashing.Size])
	off += hashing.Size
	copy(req.Nullifier[:], b[off:off+hashing.Size])
	off += hashing.Size
	copy(req.Recipient[:], b[off:off+20])
	off += 20

	amountLE := b[off : off+16]
	off += 16
	amountBE := make([]byte, 16)
	for i := 0; i < 16; i++ {
		amountBE[i] = amountLE[15-i]
	}
	req.Amount = new(big.Int).SetBytes(amountBE)

	n := int(binary.LittleEndian.Uint32(b[off : off+4]))
	off += 4

	pathBytes := n * hashing.Size
	if len(b) < off+pathBytes {
		return withdrawal.Request{}, ErrTruncated
	}
	req.Path = make([][hashing.Size]byte, n)
	for i := 0; i < n; i++ {
		copy(req.Path[i][:], b[off+i*hashing.Size:off+(i+1)*hashing.Size])
	}
	off += pathBytes

	bitBytes := (n + 7) / 8
	if len(b) < off+bitBytes {
		return withdrawal.Request{}, ErrTruncated
	}
	req.Indices = unpackBits(b[off:off+bitBytes], n)

	return req, nil
}

// WithdrawalResponse is the wire-level reply to a withdrawal request:
// success:u8 | tx_hash_opt:(1+32) | proof_len:u32 | proof_bytes |
// attestation_len:u32 | attestation_bytes | err_len:u32 | err_utf8.
type WithdrawalResponse struct {
	Success     bool
	TxHash      *[hashing.Size]byte
	Proof       []byte
	Attestation []byte
	Err         string
}

// Encode serializes r in the WithdrawalResponse wire layout.
func (r WithdrawalResponse) Encode() []byte {
	var buf bytes.Buffer
	if r.Success {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	if r.TxHash != nil {
		buf.WriteByte(1)
		buf.Write(r.TxHash[:])
	} else {
		buf.WriteByte(0)
		buf.Write(make([]byte, hashing.Size))
	}

	writeLenPrefixed := func(b []byte) {
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
		buf.Write(lenBuf[:])
		buf.Write(b)
	}
	writeLenPrefixed(r.Proof)
	writeLenPrefixed(r.Attestation)
	writeLenPrefixed([]byte(r.Err))

	return buf.Bytes()
}

// DecodeWithdrawalResponse parses the layout Encode produces.
func DecodeWithdrawalResponse(b []byte) (WithdrawalResponse, error) {
	if len(b) < 1+1+hashing.Size {
		return WithdrawalResponse{}, ErrTruncated
	}
	var resp WithdrawalResponse
	resp.Success = b[0] == 1
	off := 1

	hasTxHash := b[off] == 1
	off++
	if hasTxHash {
		var h [hashing.Size]byte
		copy(h[:], b[off:off+hashing.Size])
		resp.TxHash = &h
	}
	off += hashing.Size

	readLenPrefixed := func() ([]byte, error) {
		if len(b) < off+4 {
			return nil, ErrTruncated
		}
		n := int(binary.LittleEndian.Uint32(b[off : off+4]))
		off += 4
		if len(b) < off+n {
			return nil, ErrTruncated
		}
		out := b[off : off+n]
		off += n
		return out, nil
	}

	proof, err := readLenPrefixed()
	if err != nil {
		return WithdrawalResponse{}, err
	}
	resp.Proof = proof

	attestation, err := readLenPrefixed()
	if err != nil {
		return WithdrawalResponse{}, err
	}
	resp.Attestation = attestation

	errBytes, err := readLenPrefixed()
	if err != nil {
		return WithdrawalResponse{}, err
	}
	resp.Err = string(errBytes)

	return resp, nil
}

// EncodeAuditEntry serializes e in the journal wire format:
// id:32 | ts:u64 | op:u8 | c_hash:32 | enc_details_len:u32 |
// enc_details | attest_len:u32 | attest | merkle_index:u64 |
// request_id_len:u32 | request_id_utf8.
func EncodeAuditEntry(e audit.Entry) []byte {
	var buf bytes.Buffer
	buf.Write(e.ID[:])

	var tsBuf [8]byte
	binary.LittleEndian.PutUint64(tsBuf[:], e.Timestamp)
	buf.Write(tsBuf[:])

	buf.WriteByte(byte(e.OpType))
	buf.Write(e.CommitmentHash[:])

	var detailsLen [4]byte
	binary.LittleEndian.PutUint32(detailsLen[:], uint32(len(e.EncryptedDetails)))
	buf.Write(detailsLen[:])
	buf.Write(e.EncryptedDetails)

	var attestLen [4]byte
	binary.LittleEndian.PutUint32(attestLen[:], uint32(len(e.AttestationBlob)))
	buf.Write(attestLen[:])
	buf.Write(e.AttestationBlob)

	var idxBuf [8]byte
	binary.LittleEndian.PutUint64(idxBuf[:], e.MerkleIndex)
	buf.Write(idxBuf[:])

	var reqIDLen [4]byte
	binary.LittleEndian.PutUint32(reqIDLen[:], uint32(len(e.RequestID)))
	buf.Write(reqIDLen[:])
	buf.WriteString(e.RequestID)

	return buf.Bytes()
}

// DecodeAuditEntry parses the layout EncodeAuditEntry produces.
func DecodeAuditEntry(b []byte) (audit.Entry, error) {
	const headerLen = hashing.Size + 8 + 1 + hashing.Size + 4
	if len(b) < headerLen {
		return audit.Entry{}, ErrTruncated
	}
	var e audit.Entry
	off := 0
	copy(e.ID[:], b[off:off+hashing.Size])
	off += hashing.Size

	e.Timestamp = binary.LittleEndian.Uint64(b[off : off+8])
	off += 8

	e.OpType = audit.OpType(b[off])
	off++

	copy(e.CommitmentHash[:], b[off:off+hashing.Size])
	off += hashing.Size

	detailsLen := int(binary.LittleEndian.Uint32(b[off : off+4]))
	off += 4
	if len(b) < off+detailsLen+4 {
		return audit.Entry{}, ErrTruncated
	}
	e.EncryptedDetails = append([]byte(nil), b[off:off+detailsLen]...)
	off += detailsLen

	attestLen := int(binary.LittleEndian.Uint32(b[off : off+4]))
	off += 4
	if len(b) < off+attestLen+8 {
		return audit.Entry{}, ErrTruncated
	}
	e.AttestationBlob = append([]byte(nil), b[off:off+attestLen]...)
	off += attestLen

	if len(b) < off+8+4 {
		return audit.Entry{}, ErrTruncated
	}
	e.MerkleIndex = binary.LittleEndian.Uint64(b[off : off+8])
	off += 8

	reqIDLen := int(binary.LittleEndian.Uint32(b[off : off+4]))
	off += 4
	if len(b) < off+reqIDLen {
		return audit.Entry{}, ErrTruncated
	}
	e.RequestID = string(b[off : off+reqIDLen])

	return e, nil
}

// OpTypeTag maps an audit.OpType to the stable wire tag byte:
// 0=Deposit, 1=Withdrawal, 2=ComplianceCheck, 3=ASPUpdate.
func OpTypeTag(op audit.OpType) (byte, error) {
	switch op {
	case audit.OpDeposit, audit.OpWithdrawal, audit.OpComplianceCheck, audit.OpASPUpdate:
		return byte(op), nil
	default:
		return 0, fmt.Errorf("api: unknown op type %d", op)
	}
}
