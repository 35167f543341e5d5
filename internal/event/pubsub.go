package event

import "github.com/meszmate/roster-core/internal/domain"

// PubSubEventKind tells which of the item fields of a PubSubEvent is set.
type PubSubEventKind int

const (
	ItemsAddedOrUpdated PubSubEventKind = iota
	ItemsDeleted
	NodePurged
)

func (k PubSubEventKind) String() string {
	switch k {
	case ItemsAddedOrUpdated:
		return "added_or_updated"
	case ItemsDeleted:
		return "deleted"
	case NodePurged:
		return "purged"
	default:
		return "unknown"
	}
}

// PubSubEvent is a change of a PubSub node, generic over the node's item id
// and payload types.
type PubSubEvent[Id comparable, Item any] struct {
	// UserID is the owner of the PEP node.
	UserID domain.UserID
	Kind   PubSubEventKind
	Items  []Item
	IDs    []Id
}

// AddedOrUpdated builds an ItemsAddedOrUpdated event.
func AddedOrUpdated[Id comparable, Item any](user domain.UserID, items []Item) PubSubEvent[Id, Item] {
	return PubSubEvent[Id, Item]{UserID: user, Kind: ItemsAddedOrUpdated, Items: items}
}

// Deleted builds an ItemsDeleted event.
func Deleted[Id comparable, Item any](user domain.UserID, ids []Id) PubSubEvent[Id, Item] {
	return PubSubEvent[Id, Item]{UserID: user, Kind: ItemsDeleted, IDs: ids}
}

// Purged builds a NodePurged event.
func Purged[Id comparable, Item any](user domain.UserID) PubSubEvent[Id, Item] {
	return PubSubEvent[Id, Item]{UserID: user, Kind: NodePurged}
}
