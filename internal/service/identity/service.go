package identity

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/domain"
	"github.com/seu-repo/ocpp-central/internal/ports"
)

// VIDPrefix marks values that are already canonical VIDs and must be
// adopted verbatim instead of triggering an allocation.
const VIDPrefix = "VID:"

type pair struct {
	sourceType  string
	sourceValue string
}

// Service is the VID manager: a bidirectional identity table plus the
// allocation counter. Forward maps (source_type, source_value) pairs to a
// VID; reverse maps a VID to the set of pairs bound to it. Every forward
// entry's VID appears in the reverse table with the same pair.
type Service struct {
	mu      sync.Mutex
	counter uint64
	forward map[pair]string
	reverse map[string]map[pair]struct{}
	aliases map[string]string
	log     *zap.Logger
}

// NewService creates an empty identity table. The counter starts at zero so
// the first allocated VID is VID:0000000001.
func NewService(log *zap.Logger) *Service {
	return &Service{
		forward: make(map[pair]string),
		reverse: make(map[string]map[pair]struct{}),
		aliases: make(map[string]string),
		log:     log,
	}
}

var _ ports.IdentityService = (*Service)(nil)

// Resolve returns the VID bound to the pair, binding a new one when the
// pair is unseen. A source value that already carries the VID prefix is
// registered as-is.
func (s *Service) Resolve(sourceType, sourceValue string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := pair{sourceType, sourceValue}
	if vid, ok := s.forward[p]; ok {
		return vid
	}

	var vid string
	if strings.HasPrefix(sourceValue, VIDPrefix) {
		vid = sourceValue
	} else {
		s.counter++
		vid = fmt.Sprintf("VID:%010X", s.counter)
	}
	s.bindLocked(p, vid)

	s.log.Debug("identity resolved",
		zap.String("source_type", sourceType),
		zap.String("source_value", sourceValue),
		zap.String("vid", vid),
	)
	return vid
}

// Bind points the pair at an explicit VID, replacing any prior binding.
// Used by the control plane when the operator already knows the vehicle.
func (s *Service) Bind(sourceType, sourceValue, vid string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := pair{sourceType, sourceValue}
	if old, ok := s.forward[p]; ok {
		if old == vid {
			return
		}
		s.unbindLocked(p, old)
	}
	s.bindLocked(p, vid)

	s.log.Info("identity bound",
		zap.String("source_type", sourceType),
		zap.String("source_value", sourceValue),
		zap.String("vid", vid),
	)
}

// Merge re-points every pair bound to tempVID at permVID and forgets
// tempVID. Merging equal VIDs or an already-merged temp is a no-op, so
// transitive merges stay idempotent.
func (s *Service) Merge(tempVID, permVID string) {
	if tempVID == permVID {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pairs, ok := s.reverse[tempVID]
	if !ok {
		return
	}
	for p := range pairs {
		s.forward[p] = permVID
		if s.reverse[permVID] == nil {
			s.reverse[permVID] = make(map[pair]struct{})
		}
		s.reverse[permVID][p] = struct{}{}
	}
	delete(s.reverse, tempVID)
	s.aliases[tempVID] = permVID

	s.log.Info("identity merged",
		zap.String("temp_vid", tempVID),
		zap.String("vid", permVID),
		zap.Int("pairs", len(pairs)),
	)
}

// Canonical follows merge redirects so a VID captured before a merge still
// lands on the surviving identity. VIDs that were never merged away come
// back unchanged.
func (s *Service) Canonical(vid string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := map[string]struct{}{vid: {}}
	for {
		next, ok := s.aliases[vid]
		if !ok {
			return vid
		}
		if _, dup := seen[next]; dup {
			return vid
		}
		seen[next] = struct{}{}
		vid = next
	}
}

// Identify resolves the highest-priority identifier the caller provided.
func (s *Service) Identify(id domain.UserIdentifier) (string, error) {
	sourceType, sourceValue, ok := id.Source()
	if !ok {
		return "", fmt.Errorf("no identifier provided: %w", domain.ErrInvalidInput)
	}
	return s.Resolve(sourceType, sourceValue), nil
}

// Pairs snapshots the forward table, sorted for stable console output.
func (s *Service) Pairs() []domain.IdentityPair {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.IdentityPair, 0, len(s.forward))
	for p, vid := range s.forward {
		out = append(out, domain.IdentityPair{
			SourceType:  p.sourceType,
			SourceValue: p.sourceValue,
			VID:         vid,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceType != out[j].SourceType {
			return out[i].SourceType < out[j].SourceType
		}
		return out[i].SourceValue < out[j].SourceValue
	})
	return out
}

func (s *Service) bindLocked(p pair, vid string) {
	s.forward[p] = vid
	if s.reverse[vid] == nil {
		s.reverse[vid] = make(map[pair]struct{})
	}
	s.reverse[vid][p] = struct{}{}
}

func (s *Service) unbindLocked(p pair, vid string) {
	delete(s.forward, p)
	if set, ok := s.reverse[vid]; ok {
		delete(set, p)
		if len(set) == 0 {
			delete(s.reverse, vid)
		}
	}
}
