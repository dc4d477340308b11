package enums

import "testing"

func TestParsePaymentStatusIsCaseInsensitive(t *testing.T) {
	got, err := ParsePaymentStatus(" Partial ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != PaymentStatusPartial {
		t.Fatalf("expected partial, got %q", got)
	}
	if _, err := ParsePaymentStatus("refunded"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestMatchKindFallback(t *testing.T) {
	if !MatchKindFuzzy.IsFallback() {
		t.Fatal("fuzzy should be a fallback match")
	}
	if MatchKindCode.IsFallback() || MatchKindExactID.IsFallback() {
		t.Fatal("exact and code matches are not fallbacks")
	}
	if _, err := ParseMatchKind("guess"); err == nil {
		t.Fatal("expected error for unknown match kind")
	}
}

func TestMovementTypeValidation(t *testing.T) {
	for _, mt := range []MovementType{MovementTypeSale, MovementTypeRestore, MovementTypeCompensation, MovementTypeAdjustment} {
		if !mt.IsValid() {
			t.Fatalf("expected %q to be valid", mt)
		}
	}
	if MovementType("transfer").IsValid() {
		t.Fatal("unexpected valid movement type")
	}
}

func TestOutboxEventTypes(t *testing.T) {
	got, err := ParseOutboxEventType("sale.deleted")
	if err != nil || got != EventSaleDeleted {
		t.Fatalf("expected sale.deleted, got %q err=%v", got, err)
	}
	if _, err := ParseOutboxAggregateType("order"); err == nil {
		t.Fatal("expected error for unknown aggregate")
	}
}

func TestOutboxEventAggregate(t *testing.T) {
	cases := map[OutboxEventType]OutboxAggregateType{
		EventSaleCreated:       AggregateSale,
		EventSaleUpdated:       AggregateSale,
		EventSaleDeleted:       AggregateSale,
		EventInventoryAdjusted: AggregateInventoryItem,
		"sale.archived":        "",
	}
	for event, want := range cases {
		if got := event.Aggregate(); got != want {
			t.Errorf("%s: expected %q, got %q", event, want, got)
		}
	}
}
