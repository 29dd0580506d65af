package qbsync

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/qbo_sync/models"
	"github.com/shopspring/decimal"
)

func TestEncodeCustomerOmitsEmptyFields(t *testing.T) {
	rc := EncodeCustomer(models.Customer{
		ID:            1,
		DisplayName:   "Aye",
		CurrentStatus: models.CustomerStatusActive,
	}, "", "")

	raw, err := json.Marshal(rc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(raw)
	for _, forbidden := range []string{"PrimaryEmailAddr", "PrimaryPhone", "Notes", "Id", "SyncToken", "Active"} {
		if strings.Contains(body, forbidden) {
			t.Fatalf("payload %s contains %q, empty fields must be omitted", body, forbidden)
		}
	}
}

func TestEncodeCustomerTruncatesLongNotes(t *testing.T) {
	long := strings.Repeat("x", maxNoteLength+500)
	rc := EncodeCustomer(models.Customer{ID: 1, DisplayName: "Aye", Notes: long}, "", "")
	if got := len([]rune(rc.Notes)); got != maxNoteLength {
		t.Fatalf("notes length = %d, want %d", got, maxNoteLength)
	}
}

func TestEncodeCustomerArchivedMarksInactive(t *testing.T) {
	rc := EncodeCustomer(models.Customer{ID: 1, DisplayName: "Aye", CurrentStatus: models.CustomerStatusArchived}, "9", "4")
	if rc.Active == nil || *rc.Active {
		t.Fatalf("Active = %v, want false for archived customer", rc.Active)
	}
	if rc.Id != "9" || rc.SyncToken != "4" {
		t.Fatalf("id/token = %q/%q, want carried through for update", rc.Id, rc.SyncToken)
	}
}

func TestEncodeInvoiceRoundsAmountsAtTheEdge(t *testing.T) {
	inv := models.SalesInvoice{
		ID:            10,
		CustomerId:    1,
		InvoiceNumber: "INV-10",
		InvoiceDate:   time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		Lines: []models.InvoiceLine{
			{
				Description: "thing",
				Quantity:    decimal.NewFromInt(3),
				UnitRate:    decimal.RequireFromString("3.333333"),
				Amount:      decimal.RequireFromString("9.999999"),
			},
		},
	}
	ri := EncodeInvoice(inv, "C-1", "", "")
	if len(ri.Line) != 1 {
		t.Fatalf("lines = %d, want 1", len(ri.Line))
	}
	if got := ri.Line[0].Amount.String(); got != "10" {
		t.Fatalf("line amount = %s, want 10 (rounded to 2dp)", got)
	}
	if got := ri.Line[0].SalesItemLineDetail.UnitPrice.String(); got != "3.33" {
		t.Fatalf("unit price = %s, want 3.33", got)
	}
	if ri.TxnDate != "2026-03-14" {
		t.Fatalf("txn date = %q", ri.TxnDate)
	}
	if ri.CustomerRef == nil || ri.CustomerRef.Value != "C-1" {
		t.Fatalf("customer ref = %+v", ri.CustomerRef)
	}
}

func TestDecodeInvoiceFieldsDerivesStatus(t *testing.T) {
	total := decimal.NewFromInt(100)

	for _, tc := range []struct {
		name    string
		balance string
		status  *models.SalesInvoiceStatus
		paid    string
	}{
		{name: "fully paid", balance: "0", status: statusPtr(models.SalesInvoiceStatusPaid), paid: "100"},
		{name: "partial", balance: "40", status: statusPtr(models.SalesInvoiceStatusPartial), paid: "60"},
		{name: "untouched", balance: "100", status: nil, paid: "0"},
	} {
		balance := decimal.RequireFromString(tc.balance)
		fields := DecodeInvoiceFields(RemoteInvoice{Id: "1", TotalAmt: &total, Balance: &balance})
		if fields.AmountPaid == nil || fields.AmountPaid.String() != tc.paid {
			t.Fatalf("%s: paid = %v, want %s", tc.name, fields.AmountPaid, tc.paid)
		}
		if (fields.CurrentStatus == nil) != (tc.status == nil) {
			t.Fatalf("%s: status = %v, want %v", tc.name, fields.CurrentStatus, tc.status)
		}
		if tc.status != nil && *fields.CurrentStatus != *tc.status {
			t.Fatalf("%s: status = %s, want %s", tc.name, *fields.CurrentStatus, *tc.status)
		}
	}
}

func TestDecodeInvoiceFieldsEmptyWithoutTotals(t *testing.T) {
	fields := DecodeInvoiceFields(RemoteInvoice{Id: "1"})
	if !fields.IsEmpty() {
		t.Fatalf("fields = %+v, want empty when totals are absent", fields)
	}
}

func TestEncodePaymentLinksOnlyMappedAllocations(t *testing.T) {
	p := models.CustomerPayment{
		ID:          3,
		CustomerId:  1,
		Amount:      decimal.RequireFromString("80.005"),
		PaymentDate: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		Allocations: []models.PaymentAllocation{
			{InvoiceId: 10, Amount: decimal.NewFromInt(50)},
			{InvoiceId: 11, Amount: decimal.NewFromInt(30)},
		},
	}
	rp := EncodePayment(p, "C-1", map[int]string{10: "I-10"}, "35", "", "")
	if len(rp.Line) != 1 {
		t.Fatalf("lines = %d, want 1 (unmapped allocation left out)", len(rp.Line))
	}
	if rp.Line[0].LinkedTxn[0].TxnId != "I-10" || rp.Line[0].LinkedTxn[0].TxnType != "Invoice" {
		t.Fatalf("linked txn = %+v", rp.Line[0].LinkedTxn[0])
	}
	if rp.TotalAmt.String() != "80.01" {
		t.Fatalf("total = %s, want rounded 80.01", rp.TotalAmt)
	}
	if rp.DepositToAccountRef == nil || rp.DepositToAccountRef.Value != "35" {
		t.Fatalf("deposit ref = %+v", rp.DepositToAccountRef)
	}
}

func TestEncodeExpenseUsesConfiguredAccount(t *testing.T) {
	e := models.Expense{
		ID:              7,
		VendorName:      "Paper Co",
		ReferenceNumber: "EXP-7",
		Amount:          decimal.RequireFromString("12.345"),
		ExpenseDate:     time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
	}
	rp := EncodeExpense(e, "85", "", "")
	if rp.AccountRef == nil || rp.AccountRef.Value != "85" {
		t.Fatalf("account ref = %+v", rp.AccountRef)
	}
	if len(rp.Line) != 1 || rp.Line[0].AccountBasedExpenseLineDetail.AccountRef.Value != "85" {
		t.Fatalf("line = %+v", rp.Line)
	}
	if rp.Line[0].Amount.String() != "12.35" {
		t.Fatalf("amount = %s, want 12.35", rp.Line[0].Amount)
	}
	if rp.Line[0].Description != "Paper Co" {
		t.Fatalf("description = %q, vendor name must land on the line", rp.Line[0].Description)
	}
}

func TestDecodePaymentAllocationsSkipsNonInvoiceLinks(t *testing.T) {
	rp := RemotePayment{
		Id: "P-1",
		Line: []RemoteLine{
			{Amount: decimal.NewFromInt(50), LinkedTxn: []RemoteLinkedTxn{{TxnId: "I-10", TxnType: "Invoice"}}},
			{Amount: decimal.NewFromInt(20), LinkedTxn: []RemoteLinkedTxn{{TxnId: "CM-3", TxnType: "CreditMemo"}}},
		},
	}
	allocations := DecodePaymentAllocations(rp)
	if len(allocations) != 1 {
		t.Fatalf("allocations = %d, want 1", len(allocations))
	}
	if allocations[0].RemoteInvoiceId != "I-10" || allocations[0].Amount.String() != "50" {
		t.Fatalf("allocation = %+v", allocations[0])
	}
}

func TestEncodeCustomerNormalizesPhone(t *testing.T) {
	t.Setenv("PHONE_DEFAULT_REGION", "US")

	rc := EncodeCustomer(models.Customer{DisplayName: "Aye", Phone: "(415) 555-2671"}, "", "")
	if rc.PrimaryPhone == nil || rc.PrimaryPhone.FreeFormNumber != "+14155552671" {
		t.Fatalf("phone = %+v, want E.164", rc.PrimaryPhone)
	}

	// Numbers that cannot be parsed go out as entered.
	rc = EncodeCustomer(models.Customer{DisplayName: "Aye", Phone: "ext. 42"}, "", "")
	if rc.PrimaryPhone == nil || rc.PrimaryPhone.FreeFormNumber != "ext. 42" {
		t.Fatalf("phone = %+v, want raw value kept", rc.PrimaryPhone)
	}
}

func statusPtr(s models.SalesInvoiceStatus) *models.SalesInvoiceStatus { return &s }
