package domain

import (
	"github.com/dmehra2102/bookstore/pkg/events"
)

func (o Order) EventPayload() events.OrderPayload {
	items := make([]events.OrderItem, 0, len(o.Lines))
	for _, l := range o.Lines {
		items = append(items, events.OrderItem{BookID: l.BookID, Quantity: l.Quantity, Price: l.Price})
	}
	return events.OrderPayload{OrderID: o.ID, UserID: o.UserID, Items: items}
}
