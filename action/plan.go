package action

// Policy is how tags on the pad are delivered to the host.
type Policy int

const (
	// OneAtATime delivers queued barcodes one per page load.
	OneAtATime Policy = iota
	// Batch appends every new barcode to a multi-line field.
	Batch
	// OneAndDone delivers a single tag and ignores the queue.
	OneAndDone
)

func (p Policy) String() string {
	switch p {
	case OneAtATime:
		return "one-at-a-time"
	case Batch:
		return "batch"
	case OneAndDone:
		return "one-and-done"
	}
	return "unknown"
}

// Security is what to do with an item's security bit on delivery.
type Security int

const (
	SecurityIgnore Security = iota
	// SecurityEnable arms the bit, e.g. on checkin.
	SecurityEnable
	// SecurityDisable clears the bit, e.g. on checkout.
	SecurityDisable
)

// Plan is the delivery recipe for one mode.
type Plan struct {
	Mode     Mode
	Policy   Policy
	Security Security
	// Field is the selector of the input the barcode goes into.
	Field string
	// SubmitControl, if set, is clicked instead of submitting Field's form.
	SubmitControl string
	AutoSubmit    bool
	// ResetEachLoad clears the queue on every page load, not just on a
	// mode change.
	ResetEachLoad bool
}

var plans = map[Mode]Plan{
	BatchCheckout:         {Policy: Batch, Security: SecurityDisable, Field: "#barcodelist", AutoSubmit: true},
	Checkout:              {Policy: OneAtATime, Security: SecurityDisable, Field: "#barcode", AutoSubmit: true},
	Checkin:               {Policy: OneAtATime, Security: SecurityEnable, Field: "#barcode", AutoSubmit: true},
	Renew:                 {Policy: OneAtATime, Security: SecurityDisable, Field: `[name="barcode"]`, AutoSubmit: true},
	ListAddItems:          {Policy: Batch, Field: "#barcodes"},
	BatchItemModification: {Policy: Batch, Field: "#barcodelist", ResetEachLoad: true},
	Inventory:             {Policy: Batch, Field: "#barcodelist"},
	QuickSpineLabel:       {Policy: OneAndDone, Field: "#barcode"},
	Transfer:              {Policy: OneAtATime, Security: SecurityDisable, Field: "#barcode", AutoSubmit: true},
	Search:                {Policy: OneAndDone, Field: "#search-form", SubmitControl: "#cat-search-block button", AutoSubmit: true},
}

// PlanFor returns the plan for mode. None has no plan.
func PlanFor(mode Mode) (Plan, bool) {
	p, ok := plans[mode]
	p.Mode = mode
	return p, ok
}
