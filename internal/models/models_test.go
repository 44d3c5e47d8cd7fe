package models

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

func TestOrderState_Next(t *testing.T) {
	s := OrderStateDraft
	var seen []OrderState
	for {
		seen = append(seen, s)
		next, ok := s.Next()
		if !ok {
			break
		}
		s = next
	}
	require.Equal(t, OrderStates, seen)

	_, ok := OrderState("bogus").Next()
	require.False(t, ok)
}

func TestOrderMeta_FulfillmentVariants(t *testing.T) {
	surge := 1.1
	in := OrderMeta{
		Products:    []Product{{Title: "Telescope", Price: 175}},
		TotalAmount: 175,
		Surge:       &surge,
		Fulfillment: PickpointFulfillment{WarehouseID: 3, PickpointID: 5},
	}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	require.JSONEq(t, `{"products":[{"title":"Telescope","description":"","price":175}],"totalAmount":175,"surge":1.1,"fulfillment":"pickpoint","warehouse":3,"pickpoint":5}`, string(b))

	var out OrderMeta
	require.NoError(t, json.Unmarshal(b, &out))
	require.Equal(t, PickpointFulfillment{WarehouseID: 3, PickpointID: 5}, out.Fulfillment)

	addr := OrderMeta{Fulfillment: AddressFulfillment{WarehouseID: 1, Destination: orb.Point{1, 2}}}
	b, err = json.Marshal(addr)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &out))
	require.Equal(t, addr.Fulfillment, out.Fulfillment)
	require.Equal(t, []Product{}, out.Products)
}

func TestOrderMeta_RejectsBrokenVariant(t *testing.T) {
	var m OrderMeta
	require.Error(t, json.Unmarshal([]byte(`{"fulfillment":"pickpoint","warehouse":1}`), &m))
	require.Error(t, json.Unmarshal([]byte(`{"fulfillment":"teleport"}`), &m))

	require.NoError(t, json.Unmarshal([]byte(`{"products":[],"totalAmount":0,"autoplay":true}`), &m))
	require.Nil(t, m.Fulfillment)
	require.True(t, m.Autoplay)
}

func TestOrder_OwnedBy(t *testing.T) {
	id := int64(4)
	o := &Order{DriverID: &id}
	require.True(t, o.OwnedBy(4))
	require.False(t, o.OwnedBy(5))
	require.False(t, (&Order{}).OwnedBy(4))
}
