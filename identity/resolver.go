/*
Package identity resolves external provider employees to internal users.

PURPOSE:
  The biometric provider knows employees by its own code and display name.
  The resolver maps those to internal user identities using exact and fuzzy
  name matching with a confidence score:

    exact case-insensitive match   -> 1.0
    substring containment          -> 0.8
    otherwise                      -> 1 - editDistance/maxLen

  Scores at or above the auto-accept threshold create a mapping immediately.
  Scores between the minimum and auto-accept thresholds are queued for manual
  confirmation. Scores below the minimum are no-matches.

SIDE EFFECTS:
  A mapping row is written only on acceptance, automatic or manual. Rejection
  never mutates anything.

THRESHOLDS:
  The 0.3 / 0.85 defaults are empirical, not derived from a model, so they
  live in Config rather than as constants. Token-based similarity would be
  the place to improve matching quality if these prove too coarse.
*/
package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/attendance-engine/engine"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds the match thresholds. Scores are decimals so threshold
// comparisons stay exact.
type Config struct {
	// MinScore is the floor below which a candidate is not even proposed.
	MinScore decimal.Decimal

	// AutoAccept is the score at or above which a mapping is created without
	// manual confirmation.
	AutoAccept decimal.Decimal
}

func DefaultConfig() Config {
	return Config{
		MinScore:   decimal.NewFromFloat(0.3),
		AutoAccept: decimal.NewFromFloat(0.85),
	}
}

// =============================================================================
// RESOLVER
// =============================================================================

type Decision string

const (
	// DecisionMapped: an active mapping already existed.
	DecisionMapped Decision = "mapped"
	// DecisionAutoAccepted: a new mapping was created automatically.
	DecisionAutoAccepted Decision = "auto_accepted"
	// DecisionNeedsReview: a candidate was queued for manual confirmation.
	DecisionNeedsReview Decision = "needs_review"
	// DecisionNoMatch: nothing scored above the minimum threshold.
	DecisionNoMatch Decision = "no_match"
)

// Match is the outcome of resolving one external employee.
type Match struct {
	UserID   string
	Score    decimal.Decimal
	Decision Decision
}

// Candidate is a below-auto-accept match waiting for manual confirmation.
type Candidate struct {
	ExternalCode string
	ExternalName string
	UserID       string
	UserName     string
	Score        decimal.Decimal
	ProposedAt   time.Time
}

type Resolver struct {
	Users    engine.UserStore
	Mappings engine.MappingStore
	Config   Config

	mu      sync.Mutex
	pending map[string]Candidate // by external code
}

func NewResolver(users engine.UserStore, mappings engine.MappingStore, cfg Config) *Resolver {
	return &Resolver{
		Users:    users,
		Mappings: mappings,
		Config:   cfg,
		pending:  make(map[string]Candidate),
	}
}

// Resolve maps an external (code, name) to an internal user. An existing
// active mapping wins outright; otherwise every user is scored against the
// display name and the best score decides.
func (r *Resolver) Resolve(ctx context.Context, code, name string) (Match, error) {
	if mapping, err := r.Mappings.ActiveMapping(ctx, code); err == nil {
		return Match{UserID: mapping.UserID, Score: mapping.MatchScore, Decision: DecisionMapped}, nil
	} else if !engine.IsNotFound(err) {
		return Match{}, err
	}

	users, err := r.Users.ListUsers(ctx)
	if err != nil {
		return Match{}, err
	}

	var (
		best      *engine.User
		bestScore decimal.Decimal
	)
	for i := range users {
		score := Score(name, users[i].Name)
		if best == nil || score.GreaterThan(bestScore) {
			best = &users[i]
			bestScore = score
		}
	}

	if best == nil || bestScore.LessThan(r.Config.MinScore) {
		return Match{Decision: DecisionNoMatch}, nil
	}

	if bestScore.GreaterThanOrEqual(r.Config.AutoAccept) {
		if err := r.Accept(ctx, code, name, best.ID, bestScore); err != nil {
			return Match{}, err
		}
		return Match{UserID: best.ID, Score: bestScore, Decision: DecisionAutoAccepted}, nil
	}

	r.queue(Candidate{
		ExternalCode: code,
		ExternalName: name,
		UserID:       best.ID,
		UserName:     best.Name,
		Score:        bestScore,
		ProposedAt:   time.Now().UTC(),
	})
	return Match{UserID: best.ID, Score: bestScore, Decision: DecisionNeedsReview}, nil
}

// Accept writes the mapping, deactivating any previous active mapping for
// the code, and drops the pending candidate if one exists.
func (r *Resolver) Accept(ctx context.Context, code, name, userID string, score decimal.Decimal) error {
	now := time.Now().UTC()
	err := r.Mappings.SaveMapping(ctx, engine.IdentityMapping{
		ExternalCode: code,
		ExternalName: name,
		UserID:       userID,
		MatchScore:   score,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.pending, code)
	r.mu.Unlock()
	return nil
}

// Reject drops a pending candidate. Never mutates stored mappings.
func (r *Resolver) Reject(code string) {
	r.mu.Lock()
	delete(r.pending, code)
	r.mu.Unlock()
}

// Pending returns candidates awaiting manual confirmation, oldest first.
func (r *Resolver) Pending() []Candidate {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]Candidate, 0, len(r.pending))
	for _, c := range r.pending {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ProposedAt.Before(result[j].ProposedAt) })
	return result
}

func (r *Resolver) queue(c Candidate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Keep the best-scoring proposal per code.
	if existing, ok := r.pending[c.ExternalCode]; ok && existing.Score.GreaterThanOrEqual(c.Score) {
		return
	}
	r.pending[c.ExternalCode] = c
}

// =============================================================================
// SCORING
// =============================================================================

// Score computes the similarity of an external display name to an internal
// user name, in [0,1].
func Score(external, internal string) decimal.Decimal {
	a := strings.ToLower(strings.TrimSpace(external))
	b := strings.ToLower(strings.TrimSpace(internal))

	if a == "" || b == "" {
		return decimal.Zero
	}
	if a == b {
		return decimal.NewFromInt(1)
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return decimal.NewFromFloat(0.8)
	}

	dist := levenshtein(a, b)
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	sim := 1 - float64(dist)/float64(maxLen)
	if sim < 0 {
		sim = 0
	}
	return decimal.NewFromFloat(sim)
}

// levenshtein is the character-level edit distance, two-row DP.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
