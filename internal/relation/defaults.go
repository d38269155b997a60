package relation

import "github.com/lherron/importlink/internal/domain"

// Names of the built-in post-relink repairs.
const (
	RepairTicketProvider = "event.ticket_provider"
	RepairRekeyItems     = "order.rekey_items"
)

// Default returns the built-in table for the events and ticketing kinds.
func Default() *Table {
	t, err := NewTable(DefaultProfiles()...)
	if err != nil {
		// The built-in profiles are fixed; a failure here is a programming error.
		panic(err)
	}
	return t
}

// DefaultProfiles returns fresh copies of the built-in profiles.
func DefaultProfiles() []*Profile {
	single := domain.CardinalitySingle
	multiple := domain.CardinalityMultiple

	return []*Profile{
		{
			Kind:       domain.KindVenue,
			CreateHash: true,
			Provenance: "_VenueOrigin",
		},
		{
			Kind:       domain.KindOrganizer,
			CreateHash: true,
			Provenance: "_OrganizerOrigin",
		},
		{
			Kind:       domain.KindEvent,
			CreateHash: true,
			Provenance: "_EventOrigin",
			Relations: []Descriptor{
				{Field: "_eventvenueid", Target: domain.KindVenue, Cardinality: single, Rewrite: "_EventVenueID"},
				{Field: "_eventorganizerid", Target: domain.KindOrganizer, Cardinality: multiple, Rewrite: "_EventOrganizerID"},
			},
			Repairs: []string{RepairTicketProvider},
		},
		{
			Kind:       domain.KindRSVPTicket,
			CreateHash: true,
			Provenance: "_RsvpOrigin",
			Relations: []Descriptor{
				{Field: "_rsvp_for_event", Target: domain.KindEvent, Cardinality: single, Required: true},
			},
		},
		{
			Kind:       domain.KindRSVPAttendee,
			Provenance: "_RsvpAttendeeOrigin",
			Relations: []Descriptor{
				{Field: "_rsvp_event", Target: domain.KindEvent, Cardinality: single, Required: true},
				{Field: "_rsvp_product", Target: domain.KindRSVPTicket, Cardinality: single, Required: true},
			},
		},
		{
			Kind:       domain.KindTicket,
			CreateHash: true,
			Provenance: "_TcTicketOrigin",
			Relations: []Descriptor{
				{Field: "_ticket_event", Target: domain.KindEvent, Cardinality: single, Required: true},
			},
			Checks: []Check{
				{Code: "ticket.event_missing", Field: "_ticket_event", Rule: RuleNonEmpty, Message: "link to event missing"},
			},
		},
		{
			Kind:       domain.KindOrder,
			CreateHash: true,
			Provenance: "_TCOrderOrigin",
			Relations: []Descriptor{
				{Field: "_events_in_order", Target: domain.KindEvent, Cardinality: single, Required: true},
				{Field: "_tickets_in_order", Target: domain.KindTicket, Cardinality: multiple, Required: true},
			},
			Checks: []Check{
				{Code: "order.total_missing", Field: "_order_total_value", Rule: RuleNonEmpty, Message: "order total value missing"},
				{Code: "order.status_missing", Field: "status", Rule: RulePresent, Message: "post status missing"},
				{Code: "order.status_invalid", Field: "status", Rule: RulePrefix, Prefix: "tec-tc-", Message: `post status does not start with "tec-tc-"`},
			},
			Repairs: []string{RepairRekeyItems},
		},
		{
			Kind:       domain.KindAttendee,
			Provenance: "_TcAttendeeOrigin",
			Relations: []Descriptor{
				{Field: "_attendee_event", Target: domain.KindEvent, Cardinality: single, Required: true},
				{Field: "_attendee_ticket", Target: domain.KindTicket, Cardinality: single, Required: true},
			},
			Parent: &Parent{Field: "parent", Target: domain.KindOrder},
			Checks: []Check{
				{Code: "attendee.ticket_missing", Field: "_attendee_ticket", Rule: RuleNonEmpty, Message: "link to ticket missing"},
				{Code: "attendee.event_missing", Field: "_attendee_event", Rule: RuleNonEmpty, Message: "link to event missing"},
			},
		},
	}
}
