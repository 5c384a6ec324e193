// Package orchestrator is the single-threaded request coordinator that
// drives commitments and withdrawal requests through the core's
// subsystems: the deposit tree, the Association Set Providers, the
// nullifier set, the withdrawal and compliance proof generators, the
// attestation provider, and the audit journal. It is the only component
// allowed to mutate state across more than one subsystem, and it is the
// component responsible for the "stage, then commit" discipline that
// keeps a partial failure from leaving the core in a half-applied
// state.
//
// Every request method here (RegisterASP, Deposit, Withdraw,
// WithdrawBatch, CheckCompliance, AddToASP, RemoveFromASP) takes
// Orchestrator.mu for its full duration: requests are processed one at
// a time, matching the single-threaded request model the rest of this
// core assumes. The read accessors DepositRoot, Journal, and
// NullifierSetSize do not take it.
package orchestrator

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/noah-privacy/shielded-core/internal/asp"
	"github.com/noah-privacy/shielded-core/internal/attestation"
	"github.com/noah-privacy/shielded-core/internal/audit"
	"github.com/noah-privacy/shielded-core/internal/compliance"
	"github.com/noah-privacy/shielded-core/internal/hashing"
	"github.com/noah-privacy/shielded-core/internal/merkle"
	"github.com/noah-privacy/shielded-core/internal/nullifier"
	"github.com/noah-privacy/shielded-core/internal/withdrawal"
)

// ErrUnknownASP is returned when an operation names an Association Set
// Provider that was never registered with RegisterASP.
var ErrUnknownASP = errors.New("orchestrator: unknown association set provider")

// Orchestrator ties the deposit tree, one or more ASPs, the nullifier
// set, and the audit journal into a single coherent request boundary.
type Orchestrator struct {
	mu sync.Mutex

	depositTree *merkle.Tree
	asps        map[string]*asp.Set
	nullifiers  *nullifier.Set
	journal     *audit.Journal
	signer      *attestation.Signer
	clock       audit.Clock
}

// Config bundles the collaborators an Orchestrator is built from.
type Config struct {
	DepositDepth int
	Clock        audit.Clock
	Cipher       audit.EntryCipher
	Signer       *attestation.Signer
}

// New creates an Orchestrator with an empty deposit tree, no registered
// ASPs, and a fresh nullifier set and audit journal.
func New(cfg Config) *Orchestrator {
	depth := cfg.DepositDepth
	if depth == 0 {
		depth = merkle.DefaultDepth
	}
	clock := cfg.Clock
	if clock == nil {
		clock = func() uint64 { return 0 }
	}
	return &Orchestrator{
		depositTree: merkle.New(depth),
		asps:        make(map[string]*asp.Set),
		nullifiers:  nullifier.New(),
		journal:     audit.New(clock, cfg.Cipher),
		signer:      cfg.Signer,
		clock:       clock,
	}
}

// RegisterASP adds an Association Set Provider under name, so later
// compliance checks and ASP-mutation calls can address it.
func (o *Orchestrator) RegisterASP(name string, cfg asp.Config) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.asps[name] = asp.New(cfg)
}

// DepositRoot returns the deposit tree's current root.
func (o *Orchestrator) DepositRoot() [hashing.Size]byte {
	return o.depositTree.Root()
}

// Journal returns the underlying audit journal, for read-only queries
// and inclusion-proof verification by callers.
func (o *Orchestrator) Journal() *audit.Journal {
	return o.journal
}

// NullifierSetSize returns the number of nullifiers recorded so far,
// for health checks and metrics.
func (o *Orchestrator) NullifierSetSize() int {
	return o.nullifiers.Size()
}

func (o *Orchestrator) sign(op attestation.OperationType, commitmentHash [hashing.Size]byte, timestamp uint64) []byte {
	if o.signer == nil {
		return nil
	}
	report, err := o.signer.Sign(op, commitmentHash, timestamp)
	if err != nil {
		return nil
	}
	return report.Encode()
}

// Deposit inserts commitment into the deposit tree at the next
// available index, logs the deposit, and returns the assigned index.
// If the audit append fails, the tree insert is not rolled back in
// memory — Insert on a Merkle tree cannot fail after its precondition
// check passes — but the deposit is reported as failed and the caller
// must not treat the commitment as recorded, since the audit trail
// never reflects it.
func (o *Orchestrator) Deposit(commitment [hashing.Size]byte, amount *big.Int) (uint64, [hashing.Size]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	index, err := o.depositTree.Append(commitment)
	if err != nil {
		return 0, [hashing.Size]byte{}, fmt.Errorf("orchestrator: deposit tree append: %w", err)
	}

	timestamp := o.clock()
	report := o.sign(attestation.OpDeposit, hashing.Commit(commitment), timestamp)
	entryID, err := o.journal.LogDeposit(commitment, amount, report)
	if err != nil {
		return 0, [hashing.Size]byte{}, fmt.Errorf("orchestrator: audit log deposit: %w", err)
	}
	return index, entryID, nil
}

// WithdrawalResult is the outcome of a successful Withdraw call.
type WithdrawalResult struct {
	Envelope withdrawal.Envelope
	EntryID  [hashing.Size]byte
}

// Withdraw drives a withdrawal request through validation, membership,
// and nullifier binding (internal/withdrawal), then appends an audit
// entry, then records the nullifier — in that order, so a failure at any
// stage leaves no partial effect: the nullifier-reuse check runs first,
// the audit append happens only once the proof envelope exists, and the
// nullifier is recorded only after the audit append has succeeded.
func (o *Orchestrator) Withdraw(req withdrawal.Request) (WithdrawalResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.nullifiers.Contains(req.Nullifier) {
		return WithdrawalResult{}, withdrawal.ErrNullifierAlreadyUsed
	}

	outcome, err := withdrawal.GenerateProof(req, o.depositTree.Root())
	if err != nil {
		return WithdrawalResult{}, err
	}

	timestamp := o.clock()
	report := o.sign(attestation.OpWithdrawal, hashing.Commit(req.Commitment), timestamp)
	recipientHash := hashing.Commit(recipientAsCommitment(req.Recipient))
	entryID, err := o.journal.LogWithdrawal(req.Commitment, req.Amount, recipientHash, report)
	if err != nil {
		return WithdrawalResult{}, fmt.Errorf("orchestrator: audit log withdrawal: %w", err)
	}

	if !o.nullifiers.Insert(req.Nullifier) {
		// Another request bound this nullifier between the Contains
		// check above and here. Under the single-threaded model this
		// mutex makes that impossible; the check stays as a guard
		// against a future concurrent Orchestrator.
		return WithdrawalResult{}, withdrawal.ErrNullifierAlreadyUsed
	}

	return WithdrawalResult{Envelope: outcome.Envelope, EntryID: entryID}, nil
}

// WithdrawBatch drives every request in reqs (typically drained from a
// withdrawal.Batch) through the same checks as Withdraw, but as one
// pass: every request's proof is generated and every nullifier checked
// for reuse (against both the authoritative set and its siblings
// earlier in the same batch) before any nullifier is recorded or any
// audit entry is appended. A single invalid or already-used request
// fails the whole batch and leaves no partial effect, generalizing
// Withdraw's stage-then-commit discipline from one request to many.
func (o *Orchestrator) WithdrawBatch(reqs []withdrawal.Request) ([]WithdrawalResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	type staged struct {
		req      withdrawal.Request
		envelope withdrawal.Envelope
	}

	seen := make(map[[hashing.Size]byte]struct{}, len(reqs))
	stagedReqs := make([]staged, 0, len(reqs))

	for _, req := range reqs {
		if o.nullifiers.Contains(req.Nullifier) {
			return nil, withdrawal.ErrNullifierAlreadyUsed
		}
		if _, dup := seen[req.Nullifier]; dup {
			return nil, withdrawal.ErrNullifierAlreadyUsed
		}
		seen[req.Nullifier] = struct{}{}

		outcome, err := withdrawal.GenerateProof(req, o.depositTree.Root())
		if err != nil {
			return nil, err
		}
		stagedReqs = append(stagedReqs, staged{req: req, envelope: outcome.Envelope})
	}

	results := make([]WithdrawalResult, 0, len(stagedReqs))
	for _, s := range stagedReqs {
		if !o.nullifiers.Insert(s.req.Nullifier) {
			return nil, withdrawal.ErrNullifierAlreadyUsed
		}

		timestamp := o.clock()
		report := o.sign(attestation.OpWithdrawal, hashing.Commit(s.req.Commitment), timestamp)
		recipientHash := hashing.Commit(recipientAsCommitment(s.req.Recipient))
		entryID, err := o.journal.LogWithdrawal(s.req.Commitment, s.req.Amount, recipientHash, report)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: audit log batch withdrawal: %w", err)
		}
		results = append(results, WithdrawalResult{Envelope: s.envelope, EntryID: entryID})
	}

	return results, nil
}

func recipientAsCommitment(recipient [20]byte) [hashing.Size]byte {
	var out [hashing.Size]byte
	copy(out[:], recipient[:])
	return out
}

// ComplianceResult is the outcome of a successful CheckCompliance call.
type ComplianceResult struct {
	Envelope compliance.Envelope
	EntryID  [hashing.Size]byte
}

// CheckCompliance verifies commitment against the named ASP and emits
// a compliance envelope binding the deposit root and the ASP's root,
// logging the outcome (pass or fail) in the audit journal either way.
func (o *Orchestrator) CheckCompliance(aspName string, commitment [hashing.Size]byte) (ComplianceResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	set, ok := o.asps[aspName]
	if !ok {
		return ComplianceResult{}, ErrUnknownASP
	}

	env, err := compliance.GenerateProof(set, commitment, o.depositTree.Root())
	result := err == nil

	timestamp := o.clock()
	report := o.sign(attestation.OpComplianceCheck, hashing.Commit(commitment), timestamp)
	entryID, logErr := o.journal.LogComplianceCheck(commitment, aspName, result, report)
	if logErr != nil {
		return ComplianceResult{}, fmt.Errorf("orchestrator: audit log compliance check: %w", logErr)
	}
	if err != nil {
		return ComplianceResult{EntryID: entryID}, err
	}

	return ComplianceResult{Envelope: env, EntryID: entryID}, nil
}

// AddToASP adds commitment to the named ASP's approved set and logs
// the mutation.
func (o *Orchestrator) AddToASP(aspName string, commitment [hashing.Size]byte) (uint64, [hashing.Size]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	set, ok := o.asps[aspName]
	if !ok {
		return 0, [hashing.Size]byte{}, ErrUnknownASP
	}

	index, err := set.AddCommitment(commitment)
	if err != nil {
		return 0, [hashing.Size]byte{}, err
	}

	timestamp := o.clock()
	report := o.sign(attestation.OpASPUpdate, hashing.Commit(commitment), timestamp)
	entryID, err := o.journal.LogASPUpdate(commitment, aspName, audit.ASPUpdateAdd, report)
	if err != nil {
		return 0, [hashing.Size]byte{}, fmt.Errorf("orchestrator: audit log asp update: %w", err)
	}

	return index, entryID, nil
}

// RemoveFromASP removes commitment from the named ASP's approved set
// and logs the mutation.
func (o *Orchestrator) RemoveFromASP(aspName string, commitment [hashing.Size]byte) ([hashing.Size]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	set, ok := o.asps[aspName]
	if !ok {
		return [hashing.Size]byte{}, ErrUnknownASP
	}

	set.RemoveCommitment(commitment)

	timestamp := o.clock()
	report := o.sign(attestation.OpASPUpdate, hashing.Commit(commitment), timestamp)
	entryID, err := o.journal.LogASPUpdate(commitment, aspName, audit.ASPUpdateRemove, report)
	if err != nil {
		return [hashing.Size]byte{}, fmt.Errorf("orchestrator: audit log asp update: %w", err)
	}
	return entryID, nil
}
