package leaderboard

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"

	"learnsync/core"
)

// A skip list keyed by (score desc, user asc) giving O(log n) score updates
// for the live boards.

const maxLevel = 16
const pFactor = 0.25

type scored struct {
	User  core.UserID
	Score float64
}

type node struct {
	e    scored
	next [maxLevel]*node
}

// SkipList is a concurrent ordered index of user scores.
type SkipList struct {
	mu     sync.RWMutex
	head   *node
	lvl    int
	byUser map[core.UserID]*node
	rng    *rand.Rand
}

// NewSkipList creates an empty score index.
func NewSkipList() *SkipList {
	var seed [16]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		seed = [16]byte{}
	}
	seed1 := binary.BigEndian.Uint64(seed[:8])
	seed2 := binary.BigEndian.Uint64(seed[8:])

	return &SkipList{
		head:   &node{},
		lvl:    1,
		byUser: map[core.UserID]*node{},
		rng:    rand.New(rand.NewPCG(seed1, seed2)),
	}
}

func (s *SkipList) randomLevel() int {
	lvl := 1
	for lvl < maxLevel && s.rng.Float64() < pFactor {
		lvl++
	}
	return lvl
}

func less(a, b scored) bool {
	if a.Score == b.Score {
		return a.User < b.User
	}
	return a.Score > b.Score // higher score first
}

// Update inserts or moves a user to a new score.
func (s *SkipList) Update(user core.UserID, score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byUser[user]; ok {
		s.removeLocked(user, old.e)
	}
	e := scored{User: user, Score: score}
	update := [maxLevel]*node{}
	cur := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		for cur.next[i] != nil && less(cur.next[i].e, e) {
			cur = cur.next[i]
		}
		update[i] = cur
	}
	lvl := s.randomLevel()
	if lvl > s.lvl {
		for i := s.lvl; i < lvl; i++ {
			update[i] = s.head
		}
		s.lvl = lvl
	}
	n := &node{e: e}
	for i := 0; i < lvl; i++ {
		n.next[i] = update[i].next[i]
		update[i].next[i] = n
	}
	s.byUser[user] = n
}

func (s *SkipList) removeLocked(user core.UserID, e scored) {
	update := [maxLevel]*node{}
	cur := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		for cur.next[i] != nil && less(cur.next[i].e, e) {
			cur = cur.next[i]
		}
		update[i] = cur
	}
	target := update[0].next[0]
	if target == nil || target.e.User != user {
		return
	}
	for i := 0; i < s.lvl; i++ {
		if update[i].next[i] == target {
			update[i].next[i] = target.next[i]
		}
	}
	delete(s.byUser, user)
	for s.lvl > 1 && s.head.next[s.lvl-1] == nil {
		s.lvl--
	}
}

// Remove deletes a user's score, if present.
func (s *SkipList) Remove(user core.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.byUser[user]; ok {
		s.removeLocked(user, n.e)
	}
}

// TopN returns the highest-ranked entries, dense ranks assigned 1..n.
func (s *SkipList) TopN(n int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	out := make([]Entry, 0, n)
	cur := s.head.next[0]
	for cur != nil && len(out) < n {
		out = append(out, Entry{UserID: cur.e.User, Score: cur.e.Score, Rank: len(out) + 1})
		cur = cur.next[0]
	}
	return out
}

// Get returns a user's current score.
func (s *SkipList) Get(user core.UserID) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.byUser[user]; ok {
		return n.e.Score, true
	}
	return 0, false
}

// TenantBoards maintains one live skiplist board per tenant.
type TenantBoards struct {
	mu     sync.RWMutex
	boards map[core.TenantID]*SkipList
}

// NewTenantBoards creates an empty board set.
func NewTenantBoards() *TenantBoards {
	return &TenantBoards{boards: make(map[core.TenantID]*SkipList)}
}

func (tb *TenantBoards) board(tenant core.TenantID) *SkipList {
	tb.mu.RLock()
	b, ok := tb.boards[tenant]
	tb.mu.RUnlock()
	if ok {
		return b
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if b, ok = tb.boards[tenant]; ok {
		return b
	}
	b = NewSkipList()
	tb.boards[tenant] = b
	return b
}

// Update records a user's latest score on the tenant's board.
func (tb *TenantBoards) Update(tenant core.TenantID, user core.UserID, score float64) {
	tb.board(tenant).Update(user, score)
}

// Apply recomputes and records a user's score from fresh progress.
func (tb *TenantBoards) Apply(tenant core.TenantID, p core.UserProgress) {
	tb.board(tenant).Update(p.UserID, Score(p))
}

// TopN returns the tenant's highest-ranked live entries.
func (tb *TenantBoards) TopN(tenant core.TenantID, n int) []Entry {
	tb.mu.RLock()
	b, ok := tb.boards[tenant]
	tb.mu.RUnlock()
	if !ok {
		return nil
	}
	return b.TopN(n)
}
