/*
checksum.go - Tamper-evident snapshot checksum

PURPOSE:
  Every applied event refreshes a sha256 digest over the snapshot's
  semantically significant fields. A snapshot whose checksum no longer
  verifies was mutated outside an applier (or corrupted in storage) and
  must not be trusted.

WHAT IS HASHED:
  Order identity, status, last sequence, monetary totals, and the
  identity/quantity/price of every line and payment. Timestamps and
  display-only fields are excluded so replays on different clocks still
  verify.
*/
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ComputeChecksum hashes the snapshot's semantic fields.
func ComputeChecksum(s *OrderSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%d|", s.OrderID, s.Status, s.LastSequence)
	fmt.Fprintf(&b, "%s|%s|%s|%s|%s|%s|%s|",
		s.Subtotal.String(), s.DiscountTotal.String(), s.SurchargeTotal.String(),
		s.CompTotal.String(), s.TaxTotal.String(), s.Total.String(), s.PaidTotal.String())
	fmt.Fprintf(&b, "%s|%s|", s.TableID, s.ZoneID)
	if s.Member != nil {
		fmt.Fprintf(&b, "m:%s:%d|", s.Member.MemberID, s.Member.Stamps)
	}
	for _, item := range s.Items {
		fmt.Fprintf(&b, "i:%s:%s:%d:%s:%t:%s|",
			item.InstanceID, item.ProductID, item.Quantity,
			item.UnitPrice.String(), item.Comped, item.OriginalPrice.String())
	}
	for _, p := range s.Payments {
		fmt.Fprintf(&b, "p:%s:%s:%s|", p.PaymentID, p.Method, p.Amount.String())
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum reports whether the stored checksum matches the
// snapshot's current fields.
func VerifyChecksum(s *OrderSnapshot) bool {
	return s.StateChecksum == ComputeChecksum(s)
}
