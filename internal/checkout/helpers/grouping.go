package helpers

import (
	"github.com/google/uuid"

	"github.com/cartaviva/cartaviva-backend/pkg/db/models"
)

// PricedLine pairs a cart line with the listing it was priced against.
type PricedLine struct {
	Listing models.Listing
	Qty     int
}

// GroupBySeller splits priced lines into per-seller groups. Each group
// becomes its own transaction, reserved and created independently.
func GroupBySeller(lines []PricedLine) map[uuid.UUID][]PricedLine {
	grouped := make(map[uuid.UUID][]PricedLine, len(lines))
	for _, line := range lines {
		grouped[line.Listing.SellerID] = append(grouped[line.Listing.SellerID], line)
	}
	return grouped
}

// MergeDuplicateLines collapses repeated listing references into one line
// with the summed quantity, preserving first-seen order.
func MergeDuplicateLines(lines []Line) []Line {
	merged := make([]Line, 0, len(lines))
	index := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		if at, ok := index[line.ListingID]; ok {
			merged[at].Qty += line.Qty
			continue
		}
		index[line.ListingID] = len(merged)
		merged = append(merged, line)
	}
	return merged
}

// Line is a raw cart entry as submitted by the buyer.
type Line struct {
	ListingID uuid.UUID
	Qty       int
}
