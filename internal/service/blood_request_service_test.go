package service

import (
	"context"
	"sync"
	"testing"

	"bloodbank/internal/model"
	"bloodbank/pkg/apperror"
	"bloodbank/pkg/pagination"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequest(group string, qty int) CreateBloodRequestRequest {
	return CreateBloodRequestRequest{
		BloodGroup:  group,
		Quantity:    qty,
		PatientName: "Jane Roe",
		Hospital:    "St. Mary",
	}
}

func TestSubmitBloodRequestSkipsStockCheck(t *testing.T) {
	f := newFixture(t, cooldown)

	resp, err := f.svc.Requests.SubmitBloodRequest(context.Background(), f.admin, newRequest("AB+", 50))
	require.NoError(t, err)
	assert.Equal(t, model.RequestPending, resp.Status)
	assert.Equal(t, 50, resp.Quantity)
	assert.Equal(t, f.admin.ID.String(), resp.RequestedBy)
	assert.NotEmpty(t, resp.RequestedByName)
}

func TestSubmitBloodRequestValidation(t *testing.T) {
	f := newFixture(t, cooldown)
	ctx := context.Background()

	_, err := f.svc.Requests.SubmitBloodRequest(ctx, f.donor, newRequest("A+", 1))
	assert.True(t, apperror.Is(err, apperror.CodeForbidden))

	_, err = f.svc.Requests.SubmitBloodRequest(ctx, f.admin, newRequest("Z+", 1))
	assert.True(t, apperror.Is(err, apperror.CodeValidation))

	_, err = f.svc.Requests.SubmitBloodRequest(ctx, f.admin, newRequest("A+", -2))
	assert.True(t, apperror.Is(err, apperror.CodeValidation))

	_, err = f.svc.Requests.SubmitBloodRequest(ctx, f.admin, newRequest("A+", model.MaxUnitsPerEntry+1))
	assert.True(t, apperror.Is(err, apperror.CodeValidation))

	req := newRequest("A+", 1)
	req.Hospital = "   "
	_, err = f.svc.Requests.SubmitBloodRequest(ctx, f.admin, req)
	assert.True(t, apperror.Is(err, apperror.CodeValidation))
}

func TestFulfilBloodRequestEndToEnd(t *testing.T) {
	f := newFixture(t, cooldown)
	ctx := context.Background()
	f.seed(t, model.BloodGroupOPos, 10)

	req, err := f.svc.Requests.SubmitBloodRequest(ctx, f.admin, newRequest("O+", 3))
	require.NoError(t, err)

	resp, err := f.svc.Requests.ActionBloodRequest(ctx, f.admin, req.ID, ActionBloodRequestRequest{Status: "fulfilled"})
	require.NoError(t, err)
	assert.Equal(t, model.RequestFulfilled, resp.Status)
	require.NotNil(t, resp.ActionedBy)
	assert.NotNil(t, resp.ActionDate)

	assert.Equal(t, 7, f.quantity(t, model.BloodGroupOPos))

	var entries []model.InventoryTransaction
	require.NoError(t, f.db.Where("blood_group = ? AND reason = ?", model.BloodGroupOPos, model.TxReasonRequestFulfilled).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, -3, entries[0].Delta)
	assert.Equal(t, 7, entries[0].StockAfter)
	require.NotNil(t, entries[0].BloodRequestID)
	assert.Equal(t, req.ID, entries[0].BloodRequestID.String())
	assert.EqualValues(t, 2, f.ledgerCount(t, model.BloodGroupOPos))

	f.assertBalanced(t)
}

func TestFulfilWithInsufficientStockChangesNothing(t *testing.T) {
	f := newFixture(t, cooldown)
	ctx := context.Background()
	f.seed(t, model.BloodGroupANeg, 2)

	req, err := f.svc.Requests.SubmitBloodRequest(ctx, f.admin, newRequest("A-", 3))
	require.NoError(t, err)

	_, err = f.svc.Requests.ActionBloodRequest(ctx, f.admin, req.ID, ActionBloodRequestRequest{Status: "fulfilled"})
	require.True(t, apperror.Is(err, apperror.CodeInsufficientStock))
	assert.Equal(t, "Insufficient inventory. Available: 2 bags", apperror.As(err).Message())

	assert.Equal(t, 2, f.quantity(t, model.BloodGroupANeg))
	assert.EqualValues(t, 1, f.ledgerCount(t, model.BloodGroupANeg))

	// The request stays pending and can still be denied.
	got, err := f.svc.Requests.GetBloodRequest(ctx, f.admin, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestPending, got.Status)

	denied, err := f.svc.Requests.ActionBloodRequest(ctx, f.admin, req.ID, ActionBloodRequestRequest{Status: "denied", Notes: "no stock"})
	require.NoError(t, err)
	assert.Equal(t, model.RequestDenied, denied.Status)
	assert.Equal(t, 2, f.quantity(t, model.BloodGroupANeg))
}

func TestConcurrentFulfilmentsNeverOversell(t *testing.T) {
	f := newFixture(t, cooldown)
	ctx := context.Background()
	f.seed(t, model.BloodGroupOPos, 10)

	first, err := f.svc.Requests.SubmitBloodRequest(ctx, f.admin, newRequest("O+", 6))
	require.NoError(t, err)
	second, err := f.svc.Requests.SubmitBloodRequest(ctx, f.admin, newRequest("O+", 6))
	require.NoError(t, err)

	ids := []string{first.ID, second.ID}
	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = f.svc.Requests.ActionBloodRequest(ctx, f.admin, id, ActionBloodRequestRequest{Status: "fulfilled"})
		}(i, id)
	}
	wg.Wait()

	succeeded, short := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case apperror.Is(err, apperror.CodeInsufficientStock):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, short)
	assert.Equal(t, 4, f.quantity(t, model.BloodGroupOPos))
	f.assertBalanced(t)
}

func TestActionBloodRequestTwiceConflicts(t *testing.T) {
	f := newFixture(t, cooldown)
	ctx := context.Background()

	req, err := f.svc.Requests.SubmitBloodRequest(ctx, f.admin, newRequest("B+", 1))
	require.NoError(t, err)
	_, err = f.svc.Requests.ActionBloodRequest(ctx, f.admin, req.ID, ActionBloodRequestRequest{Status: "denied"})
	require.NoError(t, err)

	_, err = f.svc.Requests.ActionBloodRequest(ctx, f.admin, req.ID, ActionBloodRequestRequest{Status: "fulfilled"})
	assert.True(t, apperror.Is(err, apperror.CodeConflict))
}

func TestActionBloodRequestErrors(t *testing.T) {
	f := newFixture(t, cooldown)
	ctx := context.Background()

	req, err := f.svc.Requests.SubmitBloodRequest(ctx, f.admin, newRequest("B+", 1))
	require.NoError(t, err)

	_, err = f.svc.Requests.ActionBloodRequest(ctx, f.donor, req.ID, ActionBloodRequestRequest{Status: "denied"})
	assert.True(t, apperror.Is(err, apperror.CodeForbidden))

	_, err = f.svc.Requests.ActionBloodRequest(ctx, f.admin, req.ID, ActionBloodRequestRequest{Status: "approved"})
	assert.True(t, apperror.Is(err, apperror.CodeValidation))

	_, err = f.svc.Requests.ActionBloodRequest(ctx, f.admin, uuid.NewString(), ActionBloodRequestRequest{Status: "denied"})
	assert.True(t, apperror.Is(err, apperror.CodeNotFound))
}

func TestListBloodRequestsUrgentFirst(t *testing.T) {
	f := newFixture(t, cooldown)
	ctx := context.Background()

	routine, err := f.svc.Requests.SubmitBloodRequest(ctx, f.admin, newRequest("A+", 1))
	require.NoError(t, err)
	urgentReq := newRequest("A+", 2)
	urgentReq.Urgency = true
	urgent, err := f.svc.Requests.SubmitBloodRequest(ctx, f.admin, urgentReq)
	require.NoError(t, err)

	page, err := f.svc.Requests.ListBloodRequests(ctx, f.admin, BloodRequestFilter{}, pagination.New(1, 20))
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, urgent.ID, page.Items[0].ID)
	assert.Equal(t, routine.ID, page.Items[1].ID)

	yes := true
	page, err = f.svc.Requests.ListBloodRequests(ctx, f.admin, BloodRequestFilter{Urgency: &yes}, pagination.New(1, 20))
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)

	_, err = f.svc.Requests.ListBloodRequests(ctx, f.donor, BloodRequestFilter{}, pagination.New(1, 20))
	assert.True(t, apperror.Is(err, apperror.CodeForbidden))
}
