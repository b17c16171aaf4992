package service

import (
	"context"
	"sync"
	"testing"

	"bloodbank/internal/model"
	"bloodbank/internal/testutil"
	"bloodbank/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These run against postgres so the inventory row lock and the guarded
// update are exercised by truly parallel transactions.

func TestPostgresParallelFulfilmentsNeverOversell(t *testing.T) {
	f := newFixtureOn(t, testutil.NewPostgresDB(t), cooldown)
	ctx := context.Background()
	f.seed(t, model.BloodGroupOPos, 10)

	const requests = 8
	ids := make([]string, requests)
	for i := range ids {
		req, err := f.svc.Requests.SubmitBloodRequest(ctx, f.admin, newRequest("O+", 3))
		require.NoError(t, err)
		ids[i] = req.ID
	}

	errs := make([]error, requests)
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = f.svc.Requests.ActionBloodRequest(ctx, f.admin, id, ActionBloodRequestRequest{Status: "fulfilled"})
		}(i, id)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.True(t, apperror.Is(err, apperror.CodeInsufficientStock), "unexpected error: %v", err)
	}
	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 1, f.quantity(t, model.BloodGroupOPos))
	f.assertBalanced(t)
}

func TestPostgresParallelApprovalsApplyOnce(t *testing.T) {
	f := newFixtureOn(t, testutil.NewPostgresDB(t), cooldown)
	ctx := context.Background()

	donation, err := f.svc.Donations.SubmitDonation(ctx, f.donor, CreateDonationRequest{BloodGroup: "A+", Quantity: 2})
	require.NoError(t, err)

	const reviewers = 6
	errs := make([]error, reviewers)
	var wg sync.WaitGroup
	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Donations.ReviewDonation(ctx, f.admin, donation.ID, ReviewDonationRequest{Status: "approved"})
		}(i)
	}
	wg.Wait()

	approved := 0
	for _, err := range errs {
		if err == nil {
			approved++
			continue
		}
		require.True(t, apperror.Is(err, apperror.CodeConflict), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, approved)
	assert.Equal(t, 2, f.quantity(t, model.BloodGroupAPos))
	assert.EqualValues(t, 1, f.ledgerCount(t, model.BloodGroupAPos))
	f.assertBalanced(t)
}
