package domain

import (
	"math"
	"testing"
)

func f(v float64) *float64 { return &v }

func approx(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}

func TestComputeDerivedFields(t *testing.T) {
	tests := []struct {
		name    string
		gross   float64
		method  PaymentMethod
		taxRate float64
		payout  *PayoutPolicy
		want    DerivedFields
	}{
		{
			name:    "credit with percentage payout",
			gross:   200,
			method:  PaymentCredit,
			taxRate: 6,
			payout:  &PayoutPolicy{Type: PayoutPercentage, Value: 70},
			want: DerivedFields{
				CardSurchargeRate: 4.15,
				TaxDeduction:      12,
				CardDeduction:     8.30,
				PayoutDeduction:   140,
				NetAmount:         39.70,
			},
		},
		{
			name:    "debit no payout",
			gross:   100,
			method:  PaymentDebit,
			taxRate: 6,
			want: DerivedFields{
				CardSurchargeRate: 1.99,
				TaxDeduction:      6,
				CardDeduction:     1.99,
				NetAmount:         92.01,
			},
		},
		{
			name:   "pix with nothing declared",
			gross:  150,
			method: PaymentPix,
			want:   DerivedFields{NetAmount: 150},
		},
		{
			name:   "cash keeps full gross",
			gross:  80,
			method: PaymentMoney,
			want:   DerivedFields{NetAmount: 80},
		},
		{
			name:    "fixed payout larger than gross goes negative",
			gross:   100,
			method:  PaymentPix,
			taxRate: 6,
			payout:  &PayoutPolicy{Type: PayoutFixed, Value: 120},
			want: DerivedFields{
				TaxDeduction:    6,
				PayoutDeduction: 120,
				NetAmount:       -26,
			},
		},
		{
			name:   "payout policy without kind defaults to percentage",
			gross:  100,
			method: PaymentPix,
			payout: &PayoutPolicy{Value: 50},
			want: DerivedFields{
				PayoutDeduction: 50,
				NetAmount:       50,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeDerivedFields(tt.gross, tt.method, tt.taxRate, tt.payout)
			if !approx(got.CardSurchargeRate, tt.want.CardSurchargeRate) ||
				!approx(got.TaxDeduction, tt.want.TaxDeduction) ||
				!approx(got.CardDeduction, tt.want.CardDeduction) ||
				!approx(got.PayoutDeduction, tt.want.PayoutDeduction) ||
				!approx(got.NetAmount, tt.want.NetAmount) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func sampleLedger() []Transaction {
	return []Transaction{
		{
			ID: "i1", Type: TypeIncome, Description: "Diária 8h", Amount: 200,
			Date: "2026-08-10", Category: "residencial", PaymentMethod: PaymentCredit,
			TaxRate: f(6), CardRate: f(4.15), PayoutType: PayoutPercentage,
			PayoutValue: f(70), NetAmount: f(39.7),
		},
		{
			ID: "e1", Type: TypeExpense, Description: "Produtos", Amount: 50,
			Date: "2026-08-12", Category: "insumos",
		},
		{
			ID: "i2", Type: TypeIncome, Description: "Pós-obra", Amount: 500,
			Date: "2026-08-10", Category: "pos-obra", PaymentMethod: PaymentPix,
			TaxRate: f(6), CardRate: f(0), NetAmount: f(470),
		},
	}
}

func TestComputeSummary(t *testing.T) {
	sum := ComputeSummary(sampleLedger())

	if !approx(sum.TotalIncome, 700) {
		t.Errorf("TotalIncome = %v, want 700", sum.TotalIncome)
	}
	// i1 deductions 160.30, i2 deductions 30, plus the 50 expense.
	if !approx(sum.TotalExpense, 240.3) {
		t.Errorf("TotalExpense = %v, want 240.3", sum.TotalExpense)
	}
	if !approx(sum.Balance, 459.7) {
		t.Errorf("Balance = %v, want 459.7", sum.Balance)
	}
}

func TestComputeSummaryEmptyAndOrderIndependent(t *testing.T) {
	if got := ComputeSummary(nil); got != (Summary{}) {
		t.Errorf("empty ledger summary = %+v, want zeros", got)
	}

	ledger := sampleLedger()
	reversed := []Transaction{ledger[2], ledger[1], ledger[0]}

	a := ComputeSummary(ledger)
	b := ComputeSummary(reversed)
	if !approx(a.TotalIncome, b.TotalIncome) ||
		!approx(a.TotalExpense, b.TotalExpense) ||
		!approx(a.Balance, b.Balance) {
		t.Errorf("summary depends on order: %+v vs %+v", a, b)
	}
}

func TestExpenseDeductionsAreZero(t *testing.T) {
	expense := Transaction{
		ID: "e", Type: TypeExpense, Amount: 50, Date: "2026-08-01", Category: "outros",
		// Even if stray income fields survive a bad payload, expenses
		// never produce deductions.
		TaxRate: f(6), CardRate: f(4.15), PayoutValue: f(70),
	}
	tax, card, payout := expense.Deductions()
	if tax != 0 || card != 0 || payout != 0 {
		t.Errorf("expense deductions = %v, %v, %v, want zeros", tax, card, payout)
	}
}

func TestComputeDailyFlow(t *testing.T) {
	flow := ComputeDailyFlow(sampleLedger())

	if len(flow) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(flow))
	}
	// Oldest first.
	if flow[0].Date != "2026-08-10" || flow[1].Date != "2026-08-12" {
		t.Fatalf("bucket order: %+v", flow)
	}
	if !approx(flow[0].Income, 700) {
		t.Errorf("2026-08-10 income = %v, want 700", flow[0].Income)
	}
	if !approx(flow[0].Expense, 190.3) {
		t.Errorf("2026-08-10 expense = %v, want 190.3 in deductions", flow[0].Expense)
	}
	if !approx(flow[1].Expense, 50) || !approx(flow[1].Income, 0) {
		t.Errorf("2026-08-12 bucket = %+v", flow[1])
	}
}

func TestSortByDateDesc(t *testing.T) {
	txs := []Transaction{
		{ID: "old", Date: "2026-07-01"},
		{ID: "tie-first", Date: "2026-08-10"},
		{ID: "newest", Date: "2026-08-12"},
		{ID: "tie-second", Date: "2026-08-10"},
	}
	SortByDateDesc(txs)

	want := []string{"newest", "tie-first", "tie-second", "old"}
	for i, id := range want {
		if txs[i].ID != id {
			t.Fatalf("position %d = %s, want %s", i, txs[i].ID, id)
		}
	}

	// Sorting again must not reorder ties.
	SortByDateDesc(txs)
	for i, id := range want {
		if txs[i].ID != id {
			t.Fatalf("resort moved ties: position %d = %s, want %s", i, txs[i].ID, id)
		}
	}
}
