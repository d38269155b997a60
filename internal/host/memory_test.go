package host

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/importlink/internal/domain"
)

func TestMemory_CreateAndAttributes(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(WithStartID(300))

	fields := domain.NewFields(map[string][]string{
		"id":                {"9"},
		"title":             {"Order #9"},
		"status":            {"tec-tc-completed"},
		"_tickets_in_order": {"14", "15"},
		"_order_total_value": {"20"},
	})
	newID, err := m.Create(ctx, domain.KindOrder, fields)
	require.NoError(t, err)
	assert.Equal(t, int64(300), newID)

	kind, err := m.Kind(ctx, newID)
	require.NoError(t, err)
	assert.Equal(t, "order", kind)

	values, err := m.Attribute(ctx, newID, "_tickets_in_order")
	require.NoError(t, err)
	assert.Equal(t, []string{"14", "15"}, values)

	// "id" and "title" are not attributes
	values, err = m.Attribute(ctx, newID, "id")
	require.NoError(t, err)
	assert.Empty(t, values)

	rec, ok := m.Get(newID)
	require.True(t, ok)
	assert.Equal(t, "Order #9", rec.Title)
	assert.Equal(t, "order-9", rec.Slug)
	assert.Equal(t, "tec-tc-completed", rec.Status)
}

func TestMemory_SetAddDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	newID, err := m.Create(ctx, domain.KindEvent, domain.Fields{})
	require.NoError(t, err)

	require.NoError(t, m.AddAttribute(ctx, newID, "_EventOrganizerID", "5"))
	require.NoError(t, m.AddAttribute(ctx, newID, "_EventOrganizerID", "6"))
	values, err := m.Attribute(ctx, newID, "_EventOrganizerID")
	require.NoError(t, err)
	assert.Equal(t, []string{"5", "6"}, values)

	require.NoError(t, m.SetAttribute(ctx, newID, "_EventOrganizerID", "7"))
	first, err := First(ctx, m, newID, "_EventOrganizerID")
	require.NoError(t, err)
	assert.Equal(t, "7", first)

	require.NoError(t, m.DeleteAttribute(ctx, newID, "_EventOrganizerID"))
	first, err = First(ctx, m, newID, "_EventOrganizerID")
	require.NoError(t, err)
	assert.Equal(t, "", first)

	require.NoError(t, m.Delete(ctx, newID))
	_, err = m.Kind(ctx, newID)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, 0, m.Len())
}

func TestMemory_AddUniqueAttribute(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a, _ := m.Create(ctx, domain.KindTicket, domain.Fields{})
	b, _ := m.Create(ctx, domain.KindTicket, domain.Fields{})

	inserted, err := m.AddUniqueAttribute(ctx, a, "_ticket_export_hash", "tok")
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = m.AddUniqueAttribute(ctx, b, "_ticket_export_hash", "tok")
	require.NoError(t, err)
	assert.False(t, inserted)

	owner, err := m.FindByAttribute(ctx, "_ticket_export_hash", "tok")
	require.NoError(t, err)
	assert.Equal(t, a, owner)

	_, err = m.FindByAttribute(ctx, "_ticket_export_hash", "other")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_Coercion(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(WithCoercion(domain.KindEvent, "post"))
	newID, err := m.Create(ctx, domain.KindEvent, domain.Fields{})
	require.NoError(t, err)

	kind, err := m.Kind(ctx, newID)
	require.NoError(t, err)
	assert.Equal(t, "post", kind)
}

func TestMemory_UpdateFields(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	newID, _ := m.Create(ctx, domain.KindAttendee, domain.Fields{})

	require.NoError(t, m.UpdateFields(ctx, newID, map[string]any{
		"slug":           "2",
		"parent_id":      int64(1),
		"comment_status": "closed",
		"ping_status":    "closed",
	}))
	rec, _ := m.Get(newID)
	assert.Equal(t, "2", rec.Slug)
	require.NotNil(t, rec.ParentID)
	assert.Equal(t, int64(1), *rec.ParentID)
	assert.Equal(t, "closed", rec.CommentStatus)

	err := m.UpdateFields(ctx, newID, map[string]any{"kind": "order"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be updated")
}
