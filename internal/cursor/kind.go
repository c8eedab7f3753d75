package cursor

import (
	"fmt"
	"strings"
)

// Kind is a resource domain the dashboard can watch.
type Kind string

const (
	KindAccount   Kind = "ACCOUNT"
	KindOrder     Kind = "ORDER"
	KindWarehouse Kind = "WAREHOUSE"
)

// Kinds lists every supported kind.
var Kinds = []Kind{KindAccount, KindOrder, KindWarehouse}

// ParseKind accepts a kind name in any case.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown resource kind %q: must be one of account, order, warehouse", s)
}

// ResourcePath returns the service path of the resource with the given id.
func (k Kind) ResourcePath(id string) string {
	switch k {
	case KindAccount:
		return "/account/v1/accounts/" + id
	case KindOrder:
		return "/order/v1/orders/" + id
	case KindWarehouse:
		return "/warehouse/v1/warehouses/" + id
	}
	return ""
}

// EventsRel is the link relation pointing at the resource's event feed.
// Warehouses expose their inventory list instead of an event log.
func (k Kind) EventsRel() string {
	if k == KindWarehouse {
		return "inventory"
	}
	return "events"
}

// FeedKey is the _embedded member holding the feed items.
func (k Kind) FeedKey() string {
	switch k {
	case KindAccount:
		return "accountEventList"
	case KindOrder:
		return "orderEventList"
	case KindWarehouse:
		return "inventoryList"
	}
	return ""
}

// TypeField is the item member naming the event type.
func (k Kind) TypeField() string {
	if k == KindWarehouse {
		return "status"
	}
	return "type"
}

// Ref identifies one tracked resource.
type Ref struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s/%s", strings.ToLower(string(r.Kind)), r.ID)
}
