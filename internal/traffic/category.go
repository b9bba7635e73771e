package traffic

import "strings"

// Category is the rendering class of a deviation.
type Category int

const (
	CategoryOther Category = iota
	CategoryAccident
	CategoryRoadwork
)

func (c Category) String() string {
	switch c {
	case CategoryAccident:
		return "accident"
	case CategoryRoadwork:
		return "roadwork"
	default:
		return "other"
	}
}

// Message type values requested from the API.
const (
	TypeAccident            = "Accident"
	TypeRoadwork            = "Roadwork"
	TypeMaintenanceWorks    = "MaintenanceWorks"
	TypeConstructionWork    = "ConstructionWork"
	TypeRoadResurfacing     = "RoadResurfacing"
	TypeTrafficSafetyCamera = "TrafficSafetyCamera"
)

// RequestedMessageTypes is the messageTypeValue filter sent upstream, in
// request order.
var RequestedMessageTypes = []string{
	TypeAccident,
	TypeRoadwork,
	TypeMaintenanceWorks,
	TypeConstructionWork,
	TypeRoadResurfacing,
	TypeTrafficSafetyCamera,
}

// RequestedMessageTypesParam is RequestedMessageTypes joined for a query string.
func RequestedMessageTypesParam() string {
	return strings.Join(RequestedMessageTypes, ",")
}

// Classify maps a MessageTypeValue to its category. Matching is exact.
func Classify(messageTypeValue string) Category {
	switch messageTypeValue {
	case TypeAccident:
		return CategoryAccident
	case TypeRoadwork, TypeMaintenanceWorks, TypeConstructionWork, TypeRoadResurfacing:
		return CategoryRoadwork
	default:
		return CategoryOther
	}
}
