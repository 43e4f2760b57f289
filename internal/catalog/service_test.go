// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package catalog_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-dev/tessera/internal/catalog"
	"github.com/tessera-dev/tessera/internal/store"
	"github.com/tessera-dev/tessera/pkg/errutil"
)

func newService() *catalog.Service {
	return catalog.NewService(store.NewMemoryStore().Plugins())
}

func paymentRequest() catalog.RegisterRequest {
	return catalog.RegisterRequest{
		Name:            "stripe-checkout",
		Version:         "1.0.0",
		Category:        catalog.CategoryPayment,
		ExtensionPoints: []string{"checkout.payment_method", "checkout.summary"},
		Metadata:        json.RawMessage(`{"displayName":"Stripe","secretKey":"sk_live"}`),
	}
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	def, err := svc.Register(ctx, paymentRequest())
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusActive, def.Status)
	assert.NotEqual(t, ulid.ULID{}, def.ID)
	assert.False(t, def.CreatedAt.IsZero())

	got, err := svc.Get(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, def.Name, got.Name)
	assert.Equal(t, "Stripe", got.DisplayName())
}

func TestService_Register_RejectsDuplicateNameVersion(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	_, err := svc.Register(ctx, paymentRequest())
	require.NoError(t, err)

	_, err = svc.Register(ctx, paymentRequest())
	errutil.AssertErrorCode(t, err, errutil.CodeRegistrationInvalid)

	next := paymentRequest()
	next.Version = "1.1.0"
	_, err = svc.Register(ctx, next)
	assert.NoError(t, err)
}

func TestService_Register_MissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*catalog.RegisterRequest)
	}{
		{"missing name", func(r *catalog.RegisterRequest) { r.Name = "" }},
		{"missing version", func(r *catalog.RegisterRequest) { r.Version = "" }},
		{"missing category", func(r *catalog.RegisterRequest) { r.Category = "" }},
		{"unknown category", func(r *catalog.RegisterRequest) { r.Category = "games" }},
		{"no extension points", func(r *catalog.RegisterRequest) { r.ExtensionPoints = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := paymentRequest()
			tt.mutate(&req)
			_, err := newService().Register(context.Background(), req)
			errutil.AssertErrorCode(t, err, errutil.CodeRegistrationInvalid)
		})
	}
}

func TestService_Get_NotFound(t *testing.T) {
	_, err := newService().Get(context.Background(), ulid.Make())
	errutil.AssertErrorCode(t, err, errutil.CodePluginNotFound)
}

func TestService_Update_MergesMetadata(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	def, err := svc.Register(ctx, paymentRequest())
	require.NoError(t, err)

	desc := "Card payments"
	updated, err := svc.Update(ctx, def.ID, catalog.UpdateRequest{
		Description: &desc,
		Metadata:    json.RawMessage(`{"priority":7}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "Card payments", updated.Description)
	assert.Equal(t, 7, updated.Priority())
	assert.Equal(t, "Stripe", updated.DisplayName())
}

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	def, err := svc.Register(ctx, paymentRequest())
	require.NoError(t, err)

	deprecated, err := svc.Deprecate(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusDeprecated, deprecated.Status)

	again, err := svc.Deprecate(ctx, def.ID)
	require.NoError(t, err, "deprecate is idempotent")
	assert.Equal(t, catalog.StatusDeprecated, again.Status)

	reactivate := catalog.StatusActive
	_, err = svc.Update(ctx, def.ID, catalog.UpdateRequest{Status: &reactivate})
	errutil.AssertErrorCode(t, err, errutil.CodeInvalidState)

	removed, err := svc.Remove(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusRemoved, removed.Status)

	_, err = svc.Deprecate(ctx, def.ID)
	errutil.AssertErrorCode(t, err, errutil.CodeInvalidState)
}

func TestService_Queries(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	payment, err := svc.Register(ctx, paymentRequest())
	require.NoError(t, err)
	widget, err := svc.Register(ctx, catalog.RegisterRequest{
		Name:            "sales-widget",
		Version:         "0.1.0",
		Category:        catalog.CategoryAnalytics,
		ExtensionPoints: []string{"dashboard.widget"},
	})
	require.NoError(t, err)
	_, err = svc.Deprecate(ctx, widget.ID)
	require.NoError(t, err)

	active, err := svc.List(ctx, catalog.StatusActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, payment.ID, active[0].ID)

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	analytics, err := svc.ListByCategory(ctx, catalog.CategoryAnalytics)
	require.NoError(t, err)
	require.Len(t, analytics, 1)
	assert.Equal(t, widget.ID, analytics[0].ID)

	summary, err := svc.ListByExtensionPoint(ctx, "checkout.summary")
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.Equal(t, payment.ID, summary[0].ID)

	_, err = svc.List(ctx, "bogus")
	errutil.AssertErrorCode(t, err, errutil.CodeInvalidRequest)
	_, err = svc.ListByCategory(ctx, "bogus")
	errutil.AssertErrorCode(t, err, errutil.CodeInvalidRequest)
}
