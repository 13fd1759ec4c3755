package agent

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// pendingTTL bounds how long an unresolved approval stays claimable. The
// dispatcher never executes a command twice, so there is no reason to keep
// one around past the client's plausible round-trip to the human operator.
const pendingTTL = 15 * time.Minute

// PendingApproval is a command the dispatcher refused to run without
// confirmation, kept server-side so the client need only echo back an
// opaque id rather than the command string itself. This is the
// reimplementation's answer to spec.md §9's replay-safety open question:
// an id-keyed store instead of a client-echoed raw command.
type PendingApproval struct {
	ID        string
	ServerID  string
	ToolName  string
	Command   string
	Input     []byte
	Message   string
	CreatedAt time.Time
}

// ApprovalStore holds PendingApprovals between the streaming response that
// raised one and the client's later approve call. The in-process map is
// sufficient for a single dispatcher instance; nothing here needs to survive
// a restart, since an unresolved approval is, by construction, a no-op on
// the remote host.
type ApprovalStore struct {
	mu      sync.Mutex
	pending map[string]*PendingApproval
}

// NewApprovalStore builds an empty store.
func NewApprovalStore() *ApprovalStore {
	return &ApprovalStore{pending: make(map[string]*PendingApproval)}
}

// Create registers a new pending approval and returns its id.
func (s *ApprovalStore) Create(serverID, toolName, command, message string, input []byte) *PendingApproval {
	pa := &PendingApproval{
		ID:        uuid.NewString(),
		ServerID:  serverID,
		ToolName:  toolName,
		Command:   command,
		Input:     input,
		Message:   message,
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	s.pending[pa.ID] = pa
	s.mu.Unlock()
	return pa
}

// Take removes and returns the approval for id, so a given approval can only
// ever be resolved once.
func (s *ApprovalStore) Take(id string) (*PendingApproval, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pa, ok := s.pending[id]
	if !ok {
		return nil, false
	}
	delete(s.pending, id)
	if time.Since(pa.CreatedAt) > pendingTTL {
		return nil, false
	}
	return pa, true
}

// Prune discards approvals older than pendingTTL, a housekeeping pass for
// long-running processes with many abandoned approvals.
func (s *ApprovalStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, pa := range s.pending {
		if time.Since(pa.CreatedAt) > pendingTTL {
			delete(s.pending, id)
			removed++
		}
	}
	return removed
}
