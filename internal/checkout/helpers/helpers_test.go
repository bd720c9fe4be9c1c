package helpers

import (
	"testing"

	"github.com/google/uuid"

	"github.com/cartaviva/cartaviva-backend/pkg/db/models"
)

func TestGroupBySeller(t *testing.T) {
	sellerA := uuid.New()
	sellerB := uuid.New()
	lines := []PricedLine{
		{Listing: models.Listing{ID: uuid.New(), SellerID: sellerA}, Qty: 1},
		{Listing: models.Listing{ID: uuid.New(), SellerID: sellerB}, Qty: 2},
		{Listing: models.Listing{ID: uuid.New(), SellerID: sellerA}, Qty: 3},
	}

	grouped := GroupBySeller(lines)
	if len(grouped) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(grouped))
	}
	if len(grouped[sellerA]) != 2 || len(grouped[sellerB]) != 1 {
		t.Fatalf("unexpected grouping: %d/%d", len(grouped[sellerA]), len(grouped[sellerB]))
	}
}

func TestMergeDuplicateLines(t *testing.T) {
	listingA := uuid.New()
	listingB := uuid.New()
	merged := MergeDuplicateLines([]Line{
		{ListingID: listingA, Qty: 1},
		{ListingID: listingB, Qty: 2},
		{ListingID: listingA, Qty: 3},
	})
	if len(merged) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(merged))
	}
	if merged[0].ListingID != listingA || merged[0].Qty != 4 {
		t.Fatalf("unexpected merge: %+v", merged[0])
	}
	if merged[1].ListingID != listingB || merged[1].Qty != 2 {
		t.Fatalf("unexpected merge: %+v", merged[1])
	}
}

func TestComputeGroupTotals(t *testing.T) {
	lines := []PricedLine{
		{Listing: models.Listing{PriceCentimos: 25000}, Qty: 1},
		{Listing: models.Listing{PriceCentimos: 1000}, Qty: 2},
	}

	totals, err := ComputeGroupTotals(lines, 600, "0")
	if err != nil {
		t.Fatalf("compute totals: %v", err)
	}
	if totals.SubtotalCentimos != 27000 || totals.TotalCentimos != 27600 {
		t.Fatalf("unexpected totals: %+v", totals)
	}

	taxed, err := ComputeGroupTotals(lines, 600, "13")
	if err != nil {
		t.Fatalf("compute taxed totals: %v", err)
	}
	if taxed.TaxCentimos != 3510 {
		t.Fatalf("expected 13%% tax of 3510, got %d", taxed.TaxCentimos)
	}
	if taxed.TotalCentimos != 27000+600+3510 {
		t.Fatalf("unexpected taxed total: %+v", taxed)
	}

	if _, err := ComputeGroupTotals(lines, 600, "not-a-number"); err == nil {
		t.Fatal("expected error for invalid rate")
	}
}
