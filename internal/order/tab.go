package order

import "fmt"

// Tab is a pagination context: the list of orders in one status
type Tab string

const (
	TabNew            Tab = "NEW"
	TabConfirmed      Tab = "CONFIRMED"
	TabOutForDelivery Tab = "OUT_FOR_DELIVERY"
	TabDelivered      Tab = "DELIVERED"
	TabCancelled      Tab = "CANCELLED"
)

var tabStatus = map[Tab]Status{
	TabNew:            StatusPlaced,
	TabConfirmed:      StatusConfirmed,
	TabOutForDelivery: StatusOutForDelivery,
	TabDelivered:      StatusDelivered,
	TabCancelled:      StatusCancelled,
}

// Tabs lists every tab in display order
var Tabs = []Tab{TabNew, TabConfirmed, TabOutForDelivery, TabDelivered, TabCancelled}

// Status returns the status filter of the tab
func (t Tab) Status() Status {
	return tabStatus[t]
}

// Valid reports whether t is a known tab
func (t Tab) Valid() bool {
	_, ok := tabStatus[t]
	return ok
}

// TabFor returns the tab an order with the given status belongs to
func TabFor(s Status) Tab {
	for tab, st := range tabStatus {
		if st == s {
			return tab
		}
	}
	return ""
}

// ParseTab converts a configuration value into a Tab
func ParseTab(s string) (Tab, error) {
	t := Tab(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown tab %q", s)
	}
	return t, nil
}
