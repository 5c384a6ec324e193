// Package audit implements the append-only audit journal and its
// selective-disclosure machinery.
package audit

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"

	"github.com/noah-privacy/shielded-core/internal/hashing"
	"github.com/noah-privacy/shielded-core/internal/merkle"
)

// Error kinds.
var (
	ErrEntryNotFound       = errors.New("audit: entry not found")
	ErrInvalidDisclosureKey = errors.New("audit: invalid disclosure key")
	ErrEncryptionError     = errors.New("audit: encryption error")
	ErrCorrupted           = errors.New("audit: corrupted")
)

// OpType is the audit entry's operation-type tag: 0=Deposit,
// 1=Withdrawal, 2=ComplianceCheck, 3=ASPUpdate.
type OpType uint8

const (
	OpDeposit         OpType = 0
	OpWithdrawal      OpType = 1
	OpComplianceCheck OpType = 2
	OpASPUpdate       OpType = 3
)

// Entry is an immutable audit record. RequestID is an internal
// request-tracing correlation id (a UUID, stamped at log time) and is
// not part of the entry-hash preimage; two entries that are otherwise
// identical still hash differently only through their MerkleIndex, so
// RequestID carries no inclusion-proof weight. It exists for log and
// metrics correlation, not identity.
type Entry struct {
	ID               [hashing.Size]byte
	Timestamp        uint64
	OpType           OpType
	CommitmentHash   [hashing.Size]byte
	EncryptedDetails []byte
	AttestationBlob  []byte
	MerkleIndex      uint64
	RequestID        string
}

// DepositDetails is the canonical detail payload for log_deposit.
type DepositDetails struct {
	Amount *big.Int
}

// WithdrawalDetails is the canonical detail payload for log_withdrawal.
type WithdrawalDetails struct {
	Amount        *big.Int
	RecipientHash [hashing.Size]byte
}

// ComplianceDetails is the canonical detail payload for
// log_compliance_check.
type ComplianceDetails struct {
	ASPName string
	Result  bool
}

// ASPUpdateAction distinguishes which ASP mutation an ASPUpdateDetails
// entry records.
type ASPUpdateAction uint8

const (
	ASPUpdateAdd ASPUpdateAction = iota
	ASPUpdateRemove
	ASPUpdateSetExclusionList
)

// ASPUpdateDetails is the canonical detail payload for log_asp_update.
type ASPUpdateDetails struct {
	ASPName string
	Action  ASPUpdateAction
}

func encodeAmount(amount *big.Int) []byte {
	var out [16]byte
	if amount != nil {
		b := amount.Bytes()
		for i := 0; i < len(b) && i < 16; i++ {
			out[i] = b[len(b)-1-i]
		}
	}
	return out[:]
}

func (d DepositDetails) encode() []byte {
	return encodeAmount(d.Amount)
}

func (d WithdrawalDetails) encode() []byte {
	buf := encodeAmount(d.Amount)
	return append(buf, d.RecipientHash[:]...)
}

func (d ComplianceDetails) encode() []byte {
	buf := make([]byte, 0, len(d.ASPName)+1)
	buf = append(buf, []byte(d.ASPName)...)
	buf = append(buf, 0) // NUL separator before the flag byte
	if d.Result {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

func (d ASPUpdateDetails) encode() []byte {
	buf := make([]byte, 0, len(d.ASPName)+2)
	buf = append(buf, []byte(d.ASPName)...)
	buf = append(buf, 0) // NUL separator before the action byte
	buf = append(buf, byte(d.Action))
	return buf
}

// Clock supplies the timestamp a logged entry is stamped with. In
// deterministic/test mode the operator supplies a fixed or
// monotonically advancing function.
type Clock func() uint64

// Journal is an append-only sequence of AuditEntries, backed by a
// Merkle tree over hash_entry values and a disclosure-key map.
type Journal struct {
	mu             sync.Mutex
	entries        []Entry
	byID           map[[hashing.Size]byte]int
	disclosureKeys map[[hashing.Size]byte][hashing.Size]byte
	tree           *merkle.Tree
	clock          Clock
	cipher         EntryCipher
}

// New creates an empty Journal. cipher defaults to XORCipher (the
// placeholder) when nil.
func New(clock Clock, cipher EntryCipher) *Journal {
	if cipher == nil {
		cipher = XORCipher{}
	}
	return &Journal{
		byID:           make(map[[hashing.Size]byte]int),
		disclosureKeys: make(map[[hashing.Size]byte][hashing.Size]byte),
		tree:           merkle.New(merkle.DefaultDepth),
		clock:          clock,
		cipher:         cipher,
	}
}

func disclosureKey(detailsBytes []byte) [hashing.Size]byte {
	h := sha256.New()
	h.Write(detailsBytes)
	h.Write([]byte("disclosure_key"))
	var out [hashing.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

func hashEntry(id [hashing.Size]byte, ts uint64, commitmentHash [hashing.Size]byte) [hashing.Size]byte {
	h := sha256.New()
	h.Write(id[:])
	var tsBuf [8]byte
	binary.LittleEndian.PutUint64(tsBuf[:], ts)
	h.Write(tsBuf[:])
	h.Write(commitmentHash[:])
	var out [hashing.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// logEntry is the internal convergence point every log_* operation
// funnels through: validate, encrypt, compute the entry hash, append to
// the tree, and only then commit the entry and its disclosure key.
func (j *Journal) logEntry(op OpType, c [hashing.Size]byte, detailsBytes []byte, attestation []byte) ([hashing.Size]byte, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	timestamp := j.clock()
	commitmentHash := hashing.Commit(c)

	k := disclosureKey(detailsBytes)
	encryptedDetails, err := j.cipher.Encrypt(k, detailsBytes)
	if err != nil {
		return [hashing.Size]byte{}, fmt.Errorf("%w: %v", ErrEncryptionError, err)
	}

	index := uint64(len(j.entries))
	var idxBuf [8]byte
	binary.LittleEndian.PutUint64(idxBuf[:], index)

	h := sha256.New()
	var tsBuf [8]byte
	binary.LittleEndian.PutUint64(tsBuf[:], timestamp)
	h.Write(tsBuf[:])
	h.Write(commitmentHash[:])
	h.Write(idxBuf[:])
	var entryID [hashing.Size]byte
	copy(entryID[:], h.Sum(nil))

	if _, collision := j.byID[entryID]; collision {
		// No two entries may share an id. A collision here indicates a
		// hash break or a clock/index bug, not a reachable user input.
		panic("audit: entry id collision")
	}

	entry := Entry{
		ID:               entryID,
		Timestamp:        timestamp,
		OpType:           op,
		CommitmentHash:   commitmentHash,
		EncryptedDetails: encryptedDetails,
		AttestationBlob:  attestation,
		MerkleIndex:      index,
		RequestID:        uuid.NewString(),
	}

	if err := j.tree.Insert(index, hashEntry(entryID, timestamp, commitmentHash)); err != nil {
		return [hashing.Size]byte{}, fmt.Errorf("audit: entry-hash tree insert: %w", err)
	}

	j.entries = append(j.entries, entry)
	j.byID[entryID] = int(index)
	j.disclosureKeys[entryID] = k

	return entryID, nil
}

// LogDeposit logs a deposit entry and returns its entry id.
func (j *Journal) LogDeposit(c [hashing.Size]byte, amount *big.Int, attestation []byte) ([hashing.Size]byte, error) {
	details := DepositDetails{Amount: amount}
	return j.logEntry(OpDeposit, c, details.encode(), attestation)
}

// LogWithdrawal logs a withdrawal entry and returns its entry id.
func (j *Journal) LogWithdrawal(c [hashing.Size]byte, amount *big.Int, recipientHash [hashing.Size]byte, attestation []byte) ([hashing.Size]byte, error) {
	details := WithdrawalDetails{Amount: amount, RecipientHash: recipientHash}
	return j.logEntry(OpWithdrawal, c, details.encode(), attestation)
}

// LogComplianceCheck logs a compliance-check entry and returns its
// entry id.
func (j *Journal) LogComplianceCheck(c [hashing.Size]byte, aspName string, result bool, attestation []byte) ([hashing.Size]byte, error) {
	details := ComplianceDetails{ASPName: aspName, Result: result}
	return j.logEntry(OpComplianceCheck, c, details.encode(), attestation)
}

// LogASPUpdate logs an ASP mutation (add, remove, or exclusion-list
// replacement) against commitment c and returns its entry id.
func (j *Journal) LogASPUpdate(c [hashing.Size]byte, aspName string, action ASPUpdateAction, attestation []byte) ([hashing.Size]byte, error) {
	details := ASPUpdateDetails{ASPName: aspName, Action: action}
	return j.logEntry(OpASPUpdate, c, details.encode(), attestation)
}

// Root returns the current entry-hash Merkle root.
func (j *Journal) Root() [hashing.Size]byte {
	return j.tree.Root()
}

// Len returns the number of entries logged so far.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// Get returns the entry with the given id.
func (j *Journal) Get(id [hashing.Size]byte) (Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	idx, ok := j.byID[id]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return j.entries[idx], nil
}

// Query is a conjunction of optional predicates over the journal's
// entries. A nil field is not applied.
type Query struct {
	OpType         *OpType
	StartTime      *uint64
	EndTime        *uint64
	CommitmentHash *[hashing.Size]byte
}

func (q Query) matches(e Entry) bool {
	if q.OpType != nil && *q.OpType != e.OpType {
		return false
	}
	if q.StartTime != nil && e.Timestamp < *q.StartTime {
		return false
	}
	if q.EndTime != nil && e.Timestamp > *q.EndTime {
		return false
	}
	if q.CommitmentHash != nil && *q.CommitmentHash != e.CommitmentHash {
		return false
	}
	return true
}

// Find returns entries in insertion order satisfying every predicate
// set on q.
func (j *Journal) Find(q Query) []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []Entry
	for _, e := range j.entries {
		if q.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// GenerateInclusionProof returns a Merkle proof that entry id is a
// member of the entry-hash tree at its recorded position.
func (j *Journal) GenerateInclusionProof(id [hashing.Size]byte) (merkle.Proof, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	idx, ok := j.byID[id]
	if !ok {
		return merkle.Proof{}, ErrEntryNotFound
	}
	return j.tree.GenerateProof(j.entries[idx].MerkleIndex)
}

// VerifyInclusionProof recomputes hash_entry(e) and checks it against
// proof using the same dual-check algorithm as package merkle.
func (j *Journal) VerifyInclusionProof(e Entry, proof merkle.Proof) bool {
	leaf := hashEntry(e.ID, e.Timestamp, e.CommitmentHash)
	return j.tree.VerifyProof(leaf, proof)
}

// Bundle is the selective-disclosure result: it proves a single record
// existed in the journal at its position without disclosing any other
// record.
type Bundle struct {
	EntryID               [hashing.Size]byte
	Timestamp             uint64
	OpType                OpType
	EncryptedForRegulator []byte
	InclusionProof        merkle.Proof
	Attestation           []byte
}

// Disclose decrypts entry id's details with its stored disclosure key,
// re-encrypts them under regulatorKey with the same cipher scheme, and
// bundles the result with an inclusion proof.
func (j *Journal) Disclose(id [hashing.Size]byte, regulatorKey [hashing.Size]byte) (Bundle, error) {
	j.mu.Lock()
	idx, ok := j.byID[id]
	if !ok {
		j.mu.Unlock()
		return Bundle{}, ErrEntryNotFound
	}
	entry := j.entries[idx]
	k, ok := j.disclosureKeys[id]
	if !ok {
		j.mu.Unlock()
		// Every logged entry must have a disclosure key recorded
		// alongside it; a miss here means the journal is corrupted.
		panic("audit: disclosure key missing for known entry, journal corrupted")
	}
	j.mu.Unlock()

	details, err := j.cipher.Decrypt(k, entry.EncryptedDetails)
	if err != nil {
		return Bundle{}, fmt.Errorf("%w: %v", ErrInvalidDisclosureKey, err)
	}

	reencrypted, err := j.cipher.Encrypt(regulatorKey, details)
	if err != nil {
		return Bundle{}, fmt.Errorf("%w: %v", ErrEncryptionError, err)
	}

	proof, err := j.GenerateInclusionProof(id)
	if err != nil {
		return Bundle{}, err
	}

	return Bundle{
		EntryID:               entry.ID,
		Timestamp:             entry.Timestamp,
		OpType:                entry.OpType,
		EncryptedForRegulator: reencrypted,
		InclusionProof:        proof,
		Attestation:           entry.AttestationBlob,
	}, nil
}

// DecryptDetails is a helper the owner of a disclosure key (the
// journal operator, not a regulator) can use to read an entry's
// original details directly, bypassing the re-encryption step.
func (j *Journal) DecryptDetails(id [hashing.Size]byte) ([]byte, error) {
	j.mu.Lock()
	entry, ok1 := j.byIDEntry(id)
	k, ok2 := j.disclosureKeys[id]
	j.mu.Unlock()
	if !ok1 || !ok2 {
		return nil, ErrEntryNotFound
	}
	return j.cipher.Decrypt(k, entry.EncryptedDetails)
}

func (j *Journal) byIDEntry(id [hashing.Size]byte) (Entry, bool) {
	idx, ok := j.byID[id]
	if !ok {
		return Entry{}, false
	}
	return j.entries[idx], true
}
