package crm

import (
	"encoding/json"
	"strings"
	"time"
)

// DealFields is the field projection requested for deal listings.
const DealFields = "Deal_Name,Fecha_Inicio_Evento,Fecha_Fin_Evento,Artista,Ciudad,Recinto,Cach,Account_Name,Stage"

// Lookup is a CRM relation reference.
type Lookup struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Deal is a raw record of the Deals module. Relations may be absent.
type Deal struct {
	ID       string   `json:"id"`
	DealName string   `json:"Deal_Name"`
	StartsAt string   `json:"Fecha_Inicio_Evento,omitempty"`
	EndsAt   string   `json:"Fecha_Fin_Evento,omitempty"`
	Artist   *Lookup  `json:"Artista,omitempty"`
	City     string   `json:"Ciudad,omitempty"`
	Venue    *Lookup  `json:"Recinto,omitempty"`
	Fee      *float64 `json:"Cach,omitempty"`
	Account  *Lookup  `json:"Account_Name,omitempty"`
	Stage    string   `json:"Stage,omitempty"`
}

// Enrichment carries the fields resolved by secondary lookups. Each is a
// real value, models.SentinelUnknown or models.SentinelAccessDenied.
type Enrichment struct {
	ArtistType    string
	PromoterPhone string
	PromoterEmail string
}

// DateRange is an inclusive day range on the event start date.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Criteria renders the Deals search criteria covering whole days.
func (r DateRange) Criteria() string {
	return "(Fecha_Inicio_Evento:between:(" + r.Start.Format("2006-01-02") + "T00:00:00Z," +
		r.End.Format("2006-01-02") + "T23:59:59Z))"
}

type pageInfo struct {
	MoreRecords bool `json:"more_records"`
	Page        int  `json:"page"`
	PerPage     int  `json:"per_page"`
	Count       int  `json:"count"`
}

type listResponse[T any] struct {
	Data []T      `json:"data"`
	Info pageInfo `json:"info"`
}

type artistRecord struct {
	ID         string          `json:"id"`
	Name       string          `json:"Name"`
	EventTypes json.RawMessage `json:"Tipo_de_Eventos"`
}

type accountRecord struct {
	ID          string `json:"id"`
	AccountName string `json:"Account_Name"`
	Phone       string `json:"Tel_fono_Contratacion"`
	Email       string `json:"Correo_Contratacion"`
}

type venueRecord struct {
	ID       string `json:"id"`
	Name     string `json:"Name"`
	Locality string `json:"Localidad"`
}

// eventTypes accepts the picklist as a single string or a multi-select array.
func eventTypes(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return strings.TrimSpace(single)
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		parts := many[:0]
		for _, m := range many {
			if m = strings.TrimSpace(m); m != "" {
				parts = append(parts, m)
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}
