package qbsync

import (
	"context"
	"encoding/json"
	"testing"

	"bitbucket.org/mmdatafocus/qbo_sync/models"
	"github.com/shopspring/decimal"
)

func remotePaymentJSON(t *testing.T, rp RemotePayment) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(rp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func TestPullPaymentFansOutToMappedInvoices(t *testing.T) {
	deps := &testDeps{
		gateway:  newFakeGateway(),
		mappings: newFakeMappingStore(),
		local:    newFakeLocalStore(),
		audit:    newFakeAuditLog(),
	}
	deps.mappings.seed(testTenant, models.EntityTypeInvoice, "10", "I-10", "0")
	deps.mappings.seed(testTenant, models.EntityTypeInvoice, "11", "I-11", "0")

	rp := RemotePayment{
		Id:        "P-1",
		SyncToken: "0",
		Line: []RemoteLine{
			{Amount: decimal.NewFromInt(50), LinkedTxn: []RemoteLinkedTxn{{TxnId: "I-10", TxnType: "Invoice"}}},
			{Amount: decimal.NewFromInt(30), LinkedTxn: []RemoteLinkedTxn{{TxnId: "I-11", TxnType: "Invoice"}}},
			{Amount: decimal.NewFromInt(20), LinkedTxn: []RemoteLinkedTxn{{TxnId: "I-99", TxnType: "Invoice"}}},
		},
	}
	o := newTestOrchestrator(deps)

	stats := &runStats{}
	if err := o.pullPaymentPage(context.Background(), testTenant, []json.RawMessage{remotePaymentJSON(t, rp)}, stats); err != nil {
		t.Fatalf("pullPaymentPage: %v", err)
	}

	if len(deps.local.deltas) != 2 {
		t.Fatalf("deltas = %d, want 2 (one per mapped invoice)", len(deps.local.deltas))
	}
	seen := map[int]string{}
	for _, d := range deps.local.deltas {
		seen[d.invoiceId] = d.amount.String()
	}
	if seen[10] != "50" || seen[11] != "30" {
		t.Fatalf("deltas = %v", seen)
	}

	totals := stats.totals()
	if totals.Synced != 1 || totals.Skipped != 1 {
		t.Fatalf("totals = %+v, want 1 synced payment and 1 skipped allocation", totals)
	}

	// The payment must now be marked seen under its version token.
	m, _ := deps.mappings.FindByRemoteId(context.Background(), testTenant, models.EntityTypePayment, "P-1")
	if m == nil || m.RemoteVersionToken != "0" {
		t.Fatalf("mapping = %+v, want token recorded", m)
	}
}

func TestPullPaymentUnchangedTokenAppliesNothing(t *testing.T) {
	deps := &testDeps{
		gateway:  newFakeGateway(),
		mappings: newFakeMappingStore(),
		local:    newFakeLocalStore(),
		audit:    newFakeAuditLog(),
	}
	deps.mappings.seed(testTenant, models.EntityTypeInvoice, "10", "I-10", "0")
	deps.mappings.seed(testTenant, models.EntityTypePayment, "qbo:P-1", "P-1", "2")

	rp := RemotePayment{
		Id:        "P-1",
		SyncToken: "2",
		Line: []RemoteLine{
			{Amount: decimal.NewFromInt(50), LinkedTxn: []RemoteLinkedTxn{{TxnId: "I-10", TxnType: "Invoice"}}},
		},
	}
	o := newTestOrchestrator(deps)

	stats := &runStats{}
	if err := o.pullPaymentPage(context.Background(), testTenant, []json.RawMessage{remotePaymentJSON(t, rp)}, stats); err != nil {
		t.Fatalf("pullPaymentPage: %v", err)
	}
	if len(deps.local.deltas) != 0 {
		t.Fatalf("deltas = %d, an unchanged payment must not re-apply", len(deps.local.deltas))
	}
	if totals := stats.totals(); totals.Skipped != 1 || totals.Synced != 0 {
		t.Fatalf("totals = %+v, want 1 quiet skip", totals)
	}
}

func TestPullInvoiceTokenUnchangedSkips(t *testing.T) {
	deps := &testDeps{
		gateway:  newFakeGateway(),
		mappings: newFakeMappingStore(),
		local:    newFakeLocalStore(),
		audit:    newFakeAuditLog(),
	}
	deps.mappings.seed(testTenant, models.EntityTypeInvoice, "10", "I-10", "3")

	total := decimal.NewFromInt(100)
	balance := decimal.NewFromInt(0)
	ri := RemoteInvoice{Id: "I-10", SyncToken: "3", TotalAmt: &total, Balance: &balance}
	raw, _ := json.Marshal(ri)
	o := newTestOrchestrator(deps)

	stats := &runStats{}
	if err := o.pullInvoicePage(context.Background(), testTenant, []json.RawMessage{raw}, stats); err != nil {
		t.Fatalf("pullInvoicePage: %v", err)
	}
	if len(deps.local.invoicePatches) != 0 {
		t.Fatalf("patches = %v, unchanged invoice must not be touched", deps.local.invoicePatches)
	}
}

func TestPullInvoiceChangedTokenApplies(t *testing.T) {
	deps := &testDeps{
		gateway:  newFakeGateway(),
		mappings: newFakeMappingStore(),
		local:    newFakeLocalStore(),
		audit:    newFakeAuditLog(),
	}
	deps.mappings.seed(testTenant, models.EntityTypeInvoice, "10", "I-10", "3")

	total := decimal.NewFromInt(100)
	balance := decimal.NewFromInt(40)
	ri := RemoteInvoice{Id: "I-10", SyncToken: "4", TotalAmt: &total, Balance: &balance}
	raw, _ := json.Marshal(ri)
	o := newTestOrchestrator(deps)

	stats := &runStats{}
	if err := o.pullInvoicePage(context.Background(), testTenant, []json.RawMessage{raw}, stats); err != nil {
		t.Fatalf("pullInvoicePage: %v", err)
	}
	patch, ok := deps.local.invoicePatches[10]
	if !ok {
		t.Fatal("invoice 10 not patched")
	}
	if patch.AmountDue == nil || patch.AmountDue.String() != "40" {
		t.Fatalf("amount due = %v, want 40", patch.AmountDue)
	}
	if patch.CurrentStatus == nil || *patch.CurrentStatus != models.SalesInvoiceStatusPartial {
		t.Fatalf("status = %v, want PARTIAL", patch.CurrentStatus)
	}

	m, _ := deps.mappings.Find(context.Background(), testTenant, models.EntityTypeInvoice, "10")
	if m.RemoteVersionToken != "4" {
		t.Fatalf("token = %q, want refreshed to 4", m.RemoteVersionToken)
	}
}

func TestPullCustomerLinksByEmailMatch(t *testing.T) {
	t.Setenv("QBO_LINK_BY_EMAIL_MATCH", "true")

	deps := &testDeps{
		gateway:  newFakeGateway(),
		mappings: newFakeMappingStore(),
		local:    newFakeLocalStore(),
		audit:    newFakeAuditLog(),
	}
	deps.local.customers = []models.Customer{{
		ID:            1,
		TenantId:      testTenant,
		DisplayName:   "Aye",
		Email:         "aye@example.com",
		CurrentStatus: models.CustomerStatusActive,
	}}

	balance := decimal.NewFromInt(25)
	rc := RemoteCustomer{
		Id:               "C-7",
		SyncToken:        "0",
		DisplayName:      "Aye Co",
		PrimaryEmailAddr: &RemoteEmail{Address: "aye@example.com"},
		Balance:          &balance,
	}
	raw, _ := json.Marshal(rc)
	o := newTestOrchestrator(deps)

	stats := &runStats{}
	if err := o.pullCustomerPage(context.Background(), testTenant, []json.RawMessage{raw}, stats); err != nil {
		t.Fatalf("pullCustomerPage: %v", err)
	}

	m, _ := deps.mappings.Find(context.Background(), testTenant, models.EntityTypeCustomer, "1")
	if m == nil || m.RemoteId != "C-7" {
		t.Fatalf("mapping = %+v, want linked to C-7", m)
	}
	patch, ok := deps.local.customerPatches[1]
	if !ok || patch.Balance == nil || patch.Balance.String() != "25" {
		t.Fatalf("patch = %+v, want balance 25 applied", patch)
	}
}

func TestPullCustomerUnmappedWithoutFlagSkipped(t *testing.T) {
	deps := &testDeps{
		gateway:  newFakeGateway(),
		mappings: newFakeMappingStore(),
		local:    newFakeLocalStore(),
		audit:    newFakeAuditLog(),
	}
	rc := RemoteCustomer{Id: "C-7", SyncToken: "0", DisplayName: "Stranger"}
	raw, _ := json.Marshal(rc)
	o := newTestOrchestrator(deps)

	stats := &runStats{}
	if err := o.pullCustomerPage(context.Background(), testTenant, []json.RawMessage{raw}, stats); err != nil {
		t.Fatalf("pullCustomerPage: %v", err)
	}
	if totals := stats.totals(); totals.Skipped != 1 || totals.Synced != 0 {
		t.Fatalf("totals = %+v, want 1 skipped", totals)
	}
	if m, _ := deps.mappings.FindByRemoteId(context.Background(), testTenant, models.EntityTypeCustomer, "C-7"); m != nil {
		t.Fatalf("mapping = %+v, want none without the email-match flag", m)
	}
}
