package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/solomon-wilson/hrmis-sub002/generic"
	"github.com/solomon-wilson/hrmis-sub002/overtime"
	"github.com/solomon-wilson/hrmis-sub002/policy"
)

// PolicyStore implements policy.Repository. Policies come back in the order
// they were first saved; saving an existing ID bumps its version.
type PolicyStore struct {
	mu      sync.RWMutex
	order   []generic.PolicyID
	records map[generic.PolicyID]policy.Record
}

func NewPolicyStore() *PolicyStore {
	return &PolicyStore{records: make(map[generic.PolicyID]policy.Record)}
}

func (s *PolicyStore) SaveLeavePolicy(_ context.Context, p policy.LeavePolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	version, err := s.nextVersion(p.ID, policy.KindLeave, p.Version)
	if err != nil {
		return err
	}
	p.Version = version
	p.UpdatedAt = time.Now()
	s.put(p.ID, policy.Record{Kind: policy.KindLeave, Leave: &p})
	return nil
}

func (s *PolicyStore) SaveOvertimePolicy(_ context.Context, p overtime.Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	version, err := s.nextVersion(p.ID, policy.KindOvertime, p.Version)
	if err != nil {
		return err
	}
	p.Version = version
	s.put(p.ID, policy.Record{Kind: policy.KindOvertime, Overtime: &p})
	return nil
}

func (s *PolicyStore) nextVersion(id generic.PolicyID, kind policy.Kind, given int) (int, error) {
	existing, ok := s.records[id]
	if !ok {
		return max(given, 1), nil
	}
	if existing.Kind != kind {
		return 0, fmt.Errorf("%w: policy %s is a %s policy", generic.ErrValidation, id, existing.Kind)
	}
	return existing.Version() + 1, nil
}

func (s *PolicyStore) put(id generic.PolicyID, r policy.Record) {
	if _, ok := s.records[id]; !ok {
		s.order = append(s.order, id)
	}
	s.records[id] = r
}

func (s *PolicyStore) FindLeavePoliciesByType(_ context.Context, leaveType generic.LeaveTypeID) ([]policy.LeavePolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []policy.LeavePolicy
	for _, id := range s.order {
		r := s.records[id]
		if r.Kind == policy.KindLeave && r.Leave.LeaveTypeID == leaveType {
			out = append(out, *r.Leave)
		}
	}
	return out, nil
}

func (s *PolicyStore) FindActiveOvertimePolicies(context.Context) ([]overtime.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []overtime.Policy
	for _, id := range s.order {
		r := s.records[id]
		if r.Kind == policy.KindOvertime && r.Overtime.Active {
			out = append(out, *r.Overtime)
		}
	}
	return out, nil
}

func (s *PolicyStore) FindByID(_ context.Context, id generic.PolicyID) (policy.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return policy.Record{}, generic.NotFound("policy", string(id))
	}
	return r, nil
}

// ListPolicies returns every policy in save order.
func (s *PolicyStore) ListPolicies(context.Context) ([]policy.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]policy.Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out, nil
}
