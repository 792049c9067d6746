package staging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubmitter struct {
	submitFn func(ctx context.Context, orderID string, req CommitRequest) (*CommitResponse, error)
	fetchFn  func(ctx context.Context, orderID string) (*OrderSnapshot, error)
	submits  int
}

func (f *fakeSubmitter) SubmitCommit(ctx context.Context, orderID string, req CommitRequest) (*CommitResponse, error) {
	f.submits++
	return f.submitFn(ctx, orderID, req)
}

func (f *fakeSubmitter) FetchOrder(ctx context.Context, orderID string) (*OrderSnapshot, error) {
	return f.fetchFn(ctx, orderID)
}

// echoResponse builds the authoritative response the server would produce
// for the exact request it received, assigning ids to inserts
func echoResponse(orderID string, req CommitRequest, appliedPoints int64) *CommitResponse {
	resp := &CommitResponse{
		OrderID:               orderID,
		CustomerID:            "customer-1",
		GlobalDiscountPercent: req.GlobalDiscountPercent,
		AppliedPoints:         appliedPoints,
	}
	serial := 0
	for _, it := range req.Items {
		if it.Deleted {
			continue
		}
		committed := CommittedItem{
			ID:              it.ID,
			TempID:          it.TempID,
			ProductID:       it.ProductID,
			Quantity:        it.Quantity,
			UnitPriceCents:  it.UnitPriceCents,
			DiscountKind:    it.DiscountKind,
			DiscountPercent: it.DiscountPercent,
			FixedPriceCents: it.FixedPriceCents,
		}
		if committed.ID == "" {
			serial++
			committed.ID = "server-" + string(rune('a'+serial))
		}
		resp.Items = append(resp.Items, committed)
	}
	return resp
}

func TestCommitHappyPath(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.SetQuantity("item-1", 5))
	staged, err := s.AddItem("product-3", 2, 2000)
	require.NoError(t, err)
	require.NoError(t, s.RemoveItem("item-2"))
	require.NoError(t, s.SetPointsRequested(300))
	require.NoError(t, s.AddNote("admin", "gift wrap"))

	submitter := &fakeSubmitter{
		submitFn: func(_ context.Context, orderID string, req CommitRequest) (*CommitResponse, error) {
			assert.Equal(t, "order-1", orderID)
			assert.EqualValues(t, 300, req.RequestedPoints)
			assert.Len(t, req.Notes, 1)
			return echoResponse(orderID, req, 300), nil
		},
	}
	p := NewProtocol(s, submitter)

	var completed []SaveComplete
	p.OnSaveComplete(func(ev SaveComplete) { completed = append(completed, ev) })

	require.True(t, p.CanCommit())
	resp, err := p.Commit(context.Background())
	require.NoError(t, err)
	require.NotNil(t, resp)

	// phase 1: temp identity replaced by the server-assigned stable id
	merged := s.findItem("server-b")
	require.NotNil(t, merged)
	assert.Equal(t, staged.ProductID, merged.ProductID)
	assert.Equal(t, LifecycleUnchanged, merged.Lifecycle)

	// confirmed deletion left both the session and the deletion set
	assert.Nil(t, s.findItem("item-2"))
	assert.ErrorIs(t, s.UndoRemove("item-2"), ErrNotDeleted)

	// phase 2: baseline re-armed the detector to clean
	assert.Equal(t, CommitClean, p.State())
	assert.False(t, IsDirty(s))
	assert.Empty(t, s.NotesToAdd)

	require.Len(t, completed, 1)
	assert.Equal(t, "customer-1", completed[0].CustomerID)
	assert.EqualValues(t, 300, completed[0].AppliedPoints)
}

func TestCommitRequiresStagedChanges(t *testing.T) {
	s := newTestSession()
	p := NewProtocol(s, &fakeSubmitter{})

	_, err := p.Commit(context.Background())

	assert.ErrorIs(t, err, ErrSessionClean)
	assert.False(t, p.CanCommit())
}

func TestCommitDisabledWhileInFlight(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.SetQuantity("item-1", 5))

	var p *Protocol
	submitter := &fakeSubmitter{}
	submitter.submitFn = func(_ context.Context, orderID string, req CommitRequest) (*CommitResponse, error) {
		// a second submission while the first is outstanding is refused
		assert.False(t, p.CanCommit())
		_, err := p.Commit(context.Background())
		assert.ErrorIs(t, err, ErrCommitInFlight)
		return echoResponse(orderID, req, 0), nil
	}
	p = NewProtocol(s, submitter)

	_, err := p.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, submitter.submits)
}

func TestEditsDuringFlightStayDirty(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.SetQuantity("item-1", 5))

	submitter := &fakeSubmitter{}
	submitter.submitFn = func(_ context.Context, orderID string, req CommitRequest) (*CommitResponse, error) {
		// the in-flight request carries the snapshot taken at submit time
		for _, it := range req.Items {
			if it.ID == "item-1" {
				assert.Equal(t, 5, it.Quantity)
			}
		}
		// the operator keeps editing while the request is outstanding
		require.NoError(t, s.SetQuantity("item-1", 8))
		return echoResponse(orderID, req, 0), nil
	}
	p := NewProtocol(s, submitter)

	_, err := p.Commit(context.Background())
	require.NoError(t, err)

	// the in-flight edit was not part of the commit and is still dirty
	assert.True(t, IsDirty(s))
	assert.Equal(t, 8, s.findItem("item-1").Quantity)
	assert.True(t, p.CanCommit())
}

func TestTransportErrorLeavesSessionDirty(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.SetQuantity("item-1", 5))

	submitter := &fakeSubmitter{
		submitFn: func(context.Context, string, CommitRequest) (*CommitResponse, error) {
			return nil, ErrOrderBusy
		},
	}
	p := NewProtocol(s, submitter)

	_, err := p.Commit(context.Background())

	assert.ErrorIs(t, err, ErrOrderBusy)
	assert.Equal(t, CommitIdle, p.State())
	assert.True(t, IsDirty(s))
	assert.True(t, p.CanCommit())
	assert.False(t, p.NeedsRefetch())
}

func TestTimeoutRequiresRefetch(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.SetQuantity("item-1", 5))

	submitter := &fakeSubmitter{
		submitFn: func(context.Context, string, CommitRequest) (*CommitResponse, error) {
			return nil, context.DeadlineExceeded
		},
		fetchFn: func(context.Context, string) (*OrderSnapshot, error) {
			// the server did apply the commit before the response was lost
			return &OrderSnapshot{
				OrderID:    "order-1",
				CustomerID: "customer-1",
				Items: []CommittedItem{
					{ID: "item-1", ProductID: "product-1", Quantity: 5, UnitPriceCents: 2000, DiscountKind: string(DiscountFollowsGlobal)},
				},
				GlobalDiscountPercent: 10,
			}, nil
		},
	}
	p := NewProtocol(s, submitter)

	_, err := p.Commit(context.Background())
	require.Error(t, err)

	// neither success nor failure may be assumed after a timeout
	assert.True(t, p.NeedsRefetch())
	assert.False(t, p.CanCommit())
	_, err = p.Commit(context.Background())
	assert.ErrorIs(t, err, ErrStaleSession)

	require.NoError(t, p.Refetch(context.Background()))
	assert.False(t, p.NeedsRefetch())
	assert.False(t, IsDirty(s))
	assert.Equal(t, 5, s.findItem("item-1").Quantity)
}

func TestPartialSuccessKeepsErroredItemsStaged(t *testing.T) {
	s := newTestSession()
	staged, err := s.AddItem("product-gone", 1, 700)
	require.NoError(t, err)
	require.NoError(t, s.SetQuantity("item-1", 5))

	submitter := &fakeSubmitter{
		submitFn: func(_ context.Context, orderID string, req CommitRequest) (*CommitResponse, error) {
			resp := echoResponse(orderID, req, 0)
			// the server rejected the insert but applied the rest
			kept := resp.Items[:0]
			for _, it := range resp.Items {
				if it.TempID != staged.TempID {
					kept = append(kept, it)
				}
			}
			resp.Items = kept
			resp.ItemErrors = []ItemError{{TempID: staged.TempID, Error: "unknown product product-gone"}}
			return resp, nil
		},
	}
	p := NewProtocol(s, submitter)

	resp, err := p.Commit(context.Background())
	require.NoError(t, err)
	require.Len(t, resp.ItemErrors, 1)

	// the rejected item survives as staged work; the applied edit is clean
	rejected := s.findItem(staged.Key())
	require.NotNil(t, rejected)
	assert.Equal(t, LifecyclePendingInsert, rejected.Lifecycle)
	assert.True(t, IsDirty(s))
	assert.Equal(t, 5, s.findItem("item-1").Quantity)
}

func TestClampedPointsAreAdoptedAsAuthoritative(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.SetPointsRequested(500))

	submitter := &fakeSubmitter{
		submitFn: func(_ context.Context, orderID string, req CommitRequest) (*CommitResponse, error) {
			// the ledger clamped the redemption to the order total
			return echoResponse(orderID, req, 300), nil
		},
	}
	p := NewProtocol(s, submitter)

	_, err := p.Commit(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 300, s.PointsRequested)
	assert.False(t, IsDirty(s))
}
