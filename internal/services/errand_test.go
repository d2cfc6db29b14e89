package services

import (
	"context"
	"testing"

	"pabili-backend/internal/apperr"
	"pabili-backend/internal/models"
)

const (
	manilaLat = 14.5995
	manilaLng = 120.9842
)

func newTestCustomer(id string) *models.User {
	return &models.User{
		ID:            id,
		PhoneNumber:   "0917" + id,
		Name:          "Customer " + id,
		Role:          models.RoleCustomer,
		LocationLat:   manilaLat,
		LocationLng:   manilaLng,
		AverageRating: 5.0,
		Active:        true,
	}
}

func newTestAgent(id string) *models.User {
	u := newTestCustomer(id)
	u.Name = "Agent " + id
	u.Role = models.RoleAgent
	return u
}

func newTestErrandService(users ...*models.User) (*ErrandService, *fakeErrandStore, *fakeUserStore, *fakeNotifier, *fakeUploader) {
	errands := newFakeErrandStore()
	userStore := newFakeUserStore(users...)
	notifier := &fakeNotifier{}
	uploader := &fakeUploader{}
	svc := NewErrandService(errands, userStore, notifier, uploader)
	return svc, errands, userStore, notifier, uploader
}

func groceryRequest() CreateErrandRequest {
	return CreateErrandRequest{
		Items: []ItemInput{
			{ID: "bread", Name: "bread", Quantity: 2},
			{ID: "milk", Name: "milk", Quantity: 1},
		},
		DeliveryAddress: "123 Main St",
	}
}

func TestCreateErrand(t *testing.T) {
	svc, _, users, _, _ := newTestErrandService(newTestCustomer("cust-1"))

	errand, err := svc.Create(context.Background(), "cust-1", groceryRequest())
	if err != nil {
		t.Fatalf("expected errand to be created, got %v", err)
	}

	if errand.Status != models.StatusPosted {
		t.Errorf("expected status posted, got %s", errand.Status)
	}
	if errand.AgentID != nil {
		t.Errorf("expected no agent on a posted errand")
	}
	if errand.Description != "2x bread, 1x milk" {
		t.Errorf("unexpected description %q", errand.Description)
	}
	if errand.LocationLat != manilaLat || errand.LocationLng != manilaLng {
		t.Errorf("expected errand to inherit the customer's coordinates")
	}
	if users.savedAddresses["cust-1"] != "123 Main St" {
		t.Errorf("expected delivery address to be saved for the next errand")
	}
}

func TestCreateErrandValidation(t *testing.T) {
	svc, _, _, _, _ := newTestErrandService(newTestCustomer("cust-1"))

	tests := []struct {
		name string
		req  CreateErrandRequest
	}{
		{"no items", CreateErrandRequest{DeliveryAddress: "123 Main St"}},
		{"no address", CreateErrandRequest{Items: []ItemInput{{Name: "bread", Quantity: 1}}}},
		{"zero quantity", CreateErrandRequest{
			Items:           []ItemInput{{Name: "bread", Quantity: 0}},
			DeliveryAddress: "123 Main St",
		}},
		{"unnamed item", CreateErrandRequest{
			Items:           []ItemInput{{Name: "  ", Quantity: 1}},
			DeliveryAddress: "123 Main St",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), "cust-1", tt.req)
			if !apperr.IsKind(err, apperr.KindInvalidInput) {
				t.Fatalf("expected InvalidInput, got %v", err)
			}
		})
	}
}

func TestCreateErrandWithItemsPhoto(t *testing.T) {
	svc, _, _, _, uploader := newTestErrandService(newTestCustomer("cust-1"))

	req := groceryRequest()
	req.ItemsPhoto = &PhotoUpload{Filename: "list.jpg", ContentType: "image/jpeg", Data: []byte("jpg")}

	errand, err := svc.Create(context.Background(), "cust-1", req)
	if err != nil {
		t.Fatalf("expected errand to be created, got %v", err)
	}
	if errand.ItemsPhotoURL == nil {
		t.Fatalf("expected items photo URL to be stored")
	}
	if len(uploader.uploads) != 1 || uploader.uploads[0] != "items/list.jpg" {
		t.Errorf("expected one items upload, got %v", uploader.uploads)
	}
}

func TestAcceptErrand(t *testing.T) {
	svc, _, _, notifier, _ := newTestErrandService(newTestCustomer("cust-1"), newTestAgent("agent-1"))

	errand, err := svc.Create(context.Background(), "cust-1", groceryRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	accepted, err := svc.Accept(context.Background(), "agent-1", errand.ID, 50)
	if err != nil {
		t.Fatalf("expected accept to succeed, got %v", err)
	}

	if accepted.Status != models.StatusAccepted {
		t.Errorf("expected status accepted, got %s", accepted.Status)
	}
	if accepted.AgentID == nil || *accepted.AgentID != "agent-1" {
		t.Errorf("expected agent-1 to be assigned")
	}
	if accepted.ServiceFee == nil || *accepted.ServiceFee != 50 {
		t.Errorf("expected service fee 50")
	}
	if accepted.AcceptedAt == nil {
		t.Errorf("expected accepted_at to be set")
	}

	calls := notifier.byKind("accepted")
	if len(calls) != 1 || calls[0].recipientID != "cust-1" {
		t.Errorf("expected the customer to be notified, got %v", calls)
	}
}

func TestAcceptErrandRejections(t *testing.T) {
	svc, _, _, _, _ := newTestErrandService(
		newTestCustomer("cust-1"), newTestAgent("agent-1"), newTestAgent("agent-2"),
	)

	errand, _ := svc.Create(context.Background(), "cust-1", groceryRequest())

	if _, err := svc.Accept(context.Background(), "agent-1", errand.ID, 0); !apperr.IsKind(err, apperr.KindInvalidInput) {
		t.Errorf("expected InvalidInput for zero fee, got %v", err)
	}
	if _, err := svc.Accept(context.Background(), "agent-1", errand.ID, -5); !apperr.IsKind(err, apperr.KindInvalidInput) {
		t.Errorf("expected InvalidInput for negative fee, got %v", err)
	}
	if _, err := svc.Accept(context.Background(), "cust-1", errand.ID, 50); !apperr.IsKind(err, apperr.KindUnauthorized) {
		t.Errorf("expected Unauthorized for a customer accepting, got %v", err)
	}

	if _, err := svc.Accept(context.Background(), "agent-1", errand.ID, 50); err != nil {
		t.Fatalf("first accept: %v", err)
	}

	// The second agent loses the race: the guarded update matches no row.
	if _, err := svc.Accept(context.Background(), "agent-2", errand.ID, 40); !apperr.IsKind(err, apperr.KindInvalidTransition) {
		t.Errorf("expected InvalidTransition for a second accept, got %v", err)
	}
}

func TestSetItemPrice(t *testing.T) {
	svc, _, _, _, _ := newTestErrandService(newTestCustomer("cust-1"), newTestAgent("agent-1"), newTestAgent("agent-2"))

	errand, _ := svc.Create(context.Background(), "cust-1", groceryRequest())

	if _, err := svc.SetItemPrice(context.Background(), "agent-1", errand.ID, "bread", 10); !apperr.IsKind(err, apperr.KindUnauthorized) {
		t.Errorf("expected Unauthorized before assignment, got %v", err)
	}

	if _, err := svc.Accept(context.Background(), "agent-1", errand.ID, 50); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if _, err := svc.SetItemPrice(context.Background(), "agent-2", errand.ID, "bread", 10); !apperr.IsKind(err, apperr.KindUnauthorized) {
		t.Errorf("expected Unauthorized for the wrong agent, got %v", err)
	}
	if _, err := svc.SetItemPrice(context.Background(), "agent-1", errand.ID, "eggs", 10); !apperr.IsKind(err, apperr.KindInvalidInput) {
		t.Errorf("expected InvalidInput for an unknown item, got %v", err)
	}
	if _, err := svc.SetItemPrice(context.Background(), "agent-1", errand.ID, "bread", -1); !apperr.IsKind(err, apperr.KindInvalidInput) {
		t.Errorf("expected InvalidInput for a negative price, got %v", err)
	}

	updated, err := svc.SetItemPrice(context.Background(), "agent-1", errand.ID, "bread", 10)
	if err != nil {
		t.Fatalf("expected price to be recorded, got %v", err)
	}
	if updated.Status != models.StatusInProgress {
		t.Errorf("expected pricing to promote the errand to in_progress, got %s", updated.Status)
	}
	if updated.ItemPrices["bread"] != 10 {
		t.Errorf("expected bread price 10, got %v", updated.ItemPrices)
	}

	// A second price merges without losing the first.
	updated, err = svc.SetItemPrice(context.Background(), "agent-1", errand.ID, "milk", 5)
	if err != nil {
		t.Fatalf("second price: %v", err)
	}
	if updated.ItemPrices["bread"] != 10 || updated.ItemPrices["milk"] != 5 {
		t.Errorf("expected both prices kept, got %v", updated.ItemPrices)
	}
}

func TestCompleteErrand(t *testing.T) {
	svc, _, users, notifier, uploader := newTestErrandService(newTestCustomer("cust-1"), newTestAgent("agent-1"))

	errand, _ := svc.Create(context.Background(), "cust-1", groceryRequest())
	if _, err := svc.Accept(context.Background(), "agent-1", errand.ID, 50); err != nil {
		t.Fatalf("accept: %v", err)
	}

	receipt := PhotoUpload{Filename: "receipt.jpg", ContentType: "image/jpeg", Data: []byte("jpg")}
	completed, err := svc.Complete(context.Background(), "agent-1", errand.ID, receipt)
	if err != nil {
		t.Fatalf("expected completion to succeed, got %v", err)
	}

	if completed.Status != models.StatusCompleted {
		t.Errorf("expected status completed, got %s", completed.Status)
	}
	if completed.ReceiptPhotoURL == nil {
		t.Errorf("expected receipt photo URL to be stored")
	}
	if completed.CompletedAt == nil {
		t.Errorf("expected completed_at to be set")
	}
	if len(uploader.uploads) != 1 || uploader.uploads[0] != "receipts/receipt.jpg" {
		t.Errorf("expected one receipt upload, got %v", uploader.uploads)
	}
	if users.users["agent-1"].TotalErrands != 1 {
		t.Errorf("expected the agent's errand counter to increase")
	}
	if calls := notifier.byKind("completed"); len(calls) != 1 || calls[0].recipientID != "cust-1" {
		t.Errorf("expected the customer to be notified, got %v", calls)
	}

	// Completed is terminal.
	if _, err := svc.Complete(context.Background(), "agent-1", errand.ID, receipt); !apperr.IsKind(err, apperr.KindInvalidTransition) {
		t.Errorf("expected InvalidTransition out of completed, got %v", err)
	}
	if _, err := svc.Cancel(context.Background(), "cust-1", errand.ID, ""); !apperr.IsKind(err, apperr.KindInvalidTransition) {
		t.Errorf("expected InvalidTransition cancelling a completed errand, got %v", err)
	}
}

func TestCancelErrand(t *testing.T) {
	svc, _, _, notifier, _ := newTestErrandService(newTestCustomer("cust-1"), newTestAgent("agent-1"))

	// Cancel while still posted: nobody to notify.
	posted, _ := svc.Create(context.Background(), "cust-1", groceryRequest())
	cancelled, err := svc.Cancel(context.Background(), "cust-1", posted.ID, "")
	if err != nil {
		t.Fatalf("cancel posted: %v", err)
	}
	if cancelled.Status != models.StatusCancelled {
		t.Errorf("expected status cancelled, got %s", cancelled.Status)
	}
	if cancelled.CancelReason == nil || *cancelled.CancelReason != "No reason provided" {
		t.Errorf("expected the default cancel reason, got %v", cancelled.CancelReason)
	}
	if len(notifier.byKind("cancelled")) != 0 {
		t.Errorf("expected no cancellation notification without an agent")
	}

	// Cancelled is terminal.
	if _, err := svc.Cancel(context.Background(), "cust-1", posted.ID, "again"); !apperr.IsKind(err, apperr.KindInvalidTransition) {
		t.Errorf("expected InvalidTransition out of cancelled, got %v", err)
	}

	// Cancel after acceptance notifies the assigned agent.
	accepted, _ := svc.Create(context.Background(), "cust-1", groceryRequest())
	if _, err := svc.Accept(context.Background(), "agent-1", accepted.ID, 50); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := svc.Cancel(context.Background(), "cust-1", accepted.ID, "changed my mind"); err != nil {
		t.Fatalf("cancel accepted: %v", err)
	}
	calls := notifier.byKind("cancelled")
	if len(calls) != 1 || calls[0].recipientID != "agent-1" || calls[0].text != "changed my mind" {
		t.Errorf("expected the agent to be notified with the reason, got %v", calls)
	}

	// Only the owner can cancel.
	third, _ := svc.Create(context.Background(), "cust-1", groceryRequest())
	if _, err := svc.Cancel(context.Background(), "agent-1", third.ID, ""); !apperr.IsKind(err, apperr.KindUnauthorized) {
		t.Errorf("expected Unauthorized for a non-owner, got %v", err)
	}
}

func TestListNearby(t *testing.T) {
	agent := newTestAgent("agent-1")
	svc, errands, _, _, _ := newTestErrandService(newTestCustomer("cust-1"), agent)

	near, _ := svc.Create(context.Background(), "cust-1", groceryRequest())
	nearErrand := errands.errands[near.ID]
	nearErrand.LocationLat = manilaLat + 0.010 // ~1.1 km north

	far, _ := svc.Create(context.Background(), "cust-1", groceryRequest())
	farErrand := errands.errands[far.ID]
	farErrand.LocationLat = manilaLat + 0.030 // ~3.3 km north

	noCoords, _ := svc.Create(context.Background(), "cust-1", groceryRequest())
	errands.errands[noCoords.ID].LocationLat = 0
	errands.errands[noCoords.ID].LocationLng = 0

	listed, err := svc.ListNearby(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("expected listing to succeed, got %v", err)
	}

	if len(listed) != 1 {
		t.Fatalf("expected exactly one nearby errand, got %d", len(listed))
	}
	if listed[0].ID != near.ID {
		t.Errorf("expected the 1.1 km errand, got %s", listed[0].ID)
	}
	if listed[0].DistanceKm == nil {
		t.Fatalf("expected the distance to be attached")
	}
	if *listed[0].DistanceKm < 1.0 || *listed[0].DistanceKm > 1.3 {
		t.Errorf("expected a distance around 1.1 km, got %.2f", *listed[0].DistanceKm)
	}

	if _, err := svc.ListNearby(context.Background(), "cust-1"); !apperr.IsKind(err, apperr.KindUnauthorized) {
		t.Errorf("expected Unauthorized for a customer, got %v", err)
	}
}

func TestNearbyAgentCount(t *testing.T) {
	nearAgent := newTestAgent("agent-near")
	nearAgent.LocationLat = manilaLat + 0.040 // ~4.4 km
	farAgent := newTestAgent("agent-far")
	farAgent.LocationLat = manilaLat + 0.060 // ~6.7 km
	inactive := newTestAgent("agent-off")
	inactive.Active = false

	svc, _, _, _, _ := newTestErrandService(newTestCustomer("cust-1"), nearAgent, farAgent, inactive)

	count, err := svc.NearbyAgentCount(context.Background(), "cust-1")
	if err != nil {
		t.Fatalf("expected count to succeed, got %v", err)
	}
	if count != 1 {
		t.Errorf("expected one agent within 5 km, got %d", count)
	}
}

func TestTotalCost(t *testing.T) {
	items := []models.Item{
		{ID: "1", Name: "rice", Quantity: 2},
		{ID: "2", Name: "oil", Quantity: 1},
	}
	prices := map[string]float64{"1": 10, "2": 5}

	totals := TotalCost(items, prices, 20)
	if totals.Total != 45 {
		t.Errorf("expected total 45, got %.2f", totals.Total)
	}
	if totals.Items != 25 || totals.Service != 20 {
		t.Errorf("unexpected breakdown: %+v", totals)
	}

	// Repeated computation with unchanged inputs is idempotent.
	if again := TotalCost(items, prices, 20); again != totals {
		t.Errorf("expected identical totals on recomputation")
	}

	// An unpriced item counts as zero.
	partial := TotalCost(items, map[string]float64{"1": 10}, 20)
	if partial.Total != 40 {
		t.Errorf("expected total 40 with the second item unpriced, got %.2f", partial.Total)
	}

	// No prices at all still yields the fee.
	if empty := TotalCost(items, nil, 20); empty.Total != 20 {
		t.Errorf("expected bare fee total 20, got %.2f", empty.Total)
	}
}

func TestEarnings(t *testing.T) {
	svc, _, _, _, _ := newTestErrandService(newTestCustomer("cust-1"), newTestAgent("agent-1"))

	done, _ := svc.Create(context.Background(), "cust-1", groceryRequest())
	svc.Accept(context.Background(), "agent-1", done.ID, 50)
	svc.Complete(context.Background(), "agent-1", done.ID, PhotoUpload{Filename: "r.jpg", Data: []byte("jpg")})

	pending, _ := svc.Create(context.Background(), "cust-1", groceryRequest())
	svc.Accept(context.Background(), "agent-1", pending.ID, 30)

	earnings, err := svc.Earnings(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("expected earnings to compute, got %v", err)
	}
	if earnings.Total != 50 || earnings.Pending != 30 || earnings.Completed != 1 {
		t.Errorf("unexpected earnings: %+v", earnings)
	}
	if len(earnings.History) != 1 || earnings.History[0].ID != done.ID {
		t.Errorf("expected the completed errand in history")
	}
}

func TestErrandLifecycleEndToEnd(t *testing.T) {
	svc, _, _, notifier, _ := newTestErrandService(newTestCustomer("cust-1"), newTestAgent("agent-1"))
	ctx := context.Background()

	errand, err := svc.Create(ctx, "cust-1", CreateErrandRequest{
		Items: []ItemInput{
			{ID: "bread", Name: "bread", Quantity: 2},
			{ID: "milk", Name: "milk", Quantity: 1},
		},
		DeliveryAddress: "123 Main St",
	})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if errand.Status != models.StatusPosted || errand.AgentID != nil {
		t.Fatalf("expected a fresh posted errand")
	}

	if _, err := svc.Accept(ctx, "agent-1", errand.ID, 50); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if len(notifier.byKind("accepted")) != 1 {
		t.Fatalf("expected an acceptance notification")
	}

	priced, err := svc.SetItemPrice(ctx, "agent-1", errand.ID, "bread", 10)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if priced.Status != models.StatusInProgress {
		t.Fatalf("expected in_progress after pricing, got %s", priced.Status)
	}

	completed, err := svc.Complete(ctx, "agent-1", errand.ID, PhotoUpload{Filename: "receipt.jpg", Data: []byte("jpg")})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.CompletedAt == nil {
		t.Fatalf("expected completed_at to be set")
	}
	if len(notifier.byKind("completed")) != 1 {
		t.Fatalf("expected a completion notification")
	}

	totals, err := svc.Total(ctx, "cust-1", errand.ID)
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	// 10 x 2 for bread, milk unpriced, fee 50.
	if totals.Total != 70 {
		t.Errorf("expected total 70, got %.2f", totals.Total)
	}
}
