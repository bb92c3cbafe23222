package record

import "strings"

// Kind is the logical category of an incoming stream record.
type Kind int

const (
	KindUnknown Kind = iota
	KindRFID
	KindPOS
	KindRecognition
	KindQueue
	KindInventory
	KindStaffing
	KindCheckout
)

var kindNames = map[Kind]string{
	KindUnknown:     "unknown",
	KindRFID:        "rfid",
	KindPOS:         "pos",
	KindRecognition: "recognition",
	KindQueue:       "queue",
	KindInventory:   "inventory",
	KindStaffing:    "staffing",
	KindCheckout:    "checkout",
}

func (k Kind) String() string { return kindNames[k] }

// ParseKind normalizes a raw dataset name ("POS_Transactions",
// "rfid_readings", "Product_recognism", ...) into an enumerated Kind.
// Matching is case- and underscore-insensitive so the same logical stream is
// never misclassified by a renamed feed.
func ParseKind(dataset string) Kind {
	d := strings.ToLower(strings.ReplaceAll(dataset, "_", ""))
	switch {
	case strings.Contains(d, "rfid"):
		return KindRFID
	case strings.Contains(d, "pos"), strings.Contains(d, "transaction"):
		return KindPOS
	case strings.Contains(d, "product") && strings.Contains(d, "recogni"):
		return KindRecognition
	case strings.Contains(d, "queue"):
		return KindQueue
	case strings.Contains(d, "inventory"):
		return KindInventory
	case strings.Contains(d, "staffing"):
		return KindStaffing
	case strings.Contains(d, "checkout"):
		return KindCheckout
	default:
		return KindUnknown
	}
}

// Kinds lists all concrete stream kinds, used when scanning every cache
// bucket for a station.
func Kinds() []Kind {
	return []Kind{KindRFID, KindPOS, KindRecognition, KindQueue, KindInventory, KindStaffing, KindCheckout}
}
