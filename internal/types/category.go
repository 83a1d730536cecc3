// README: Service categories and urgency levels.
package types

type Category string

const (
	CategoryPharmacy Category = "pharmacy"
	CategoryLab      Category = "lab"
)

func (c Category) Valid() bool {
	return c == CategoryPharmacy || c == CategoryLab
}

type Urgency string

const (
	UrgencyEmergency Urgency = "emergency"
	UrgencyHigh      Urgency = "high"
	UrgencyNormal    Urgency = "normal"
	UrgencyLow       Urgency = "low"
)

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyEmergency, UrgencyHigh, UrgencyNormal, UrgencyLow:
		return true
	}
	return false
}
