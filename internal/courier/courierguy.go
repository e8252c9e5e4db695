package courier

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tjvanzyl/veldmart-backend/pkg/enums"
	pkgerrors "github.com/tjvanzyl/veldmart-backend/pkg/errors"
	"github.com/tjvanzyl/veldmart-backend/pkg/types"
)

const courierGuyDefaultBaseURL = "https://api.thecourierguy.co.za"

// CourierGuyClient integrates The Courier Guy's shipment API.
type CourierGuyClient struct {
	http httpClient
}

// NewCourierGuyClient builds the Courier Guy integration.
func NewCourierGuyClient(apiKey string, opts ...ClientOption) *CourierGuyClient {
	return &CourierGuyClient{http: newHTTPClient(courierGuyDefaultBaseURL, apiKey, opts...)}
}

func (c *CourierGuyClient) ID() enums.CourierProvider {
	return enums.CourierProviderCourierGuy
}

type courierGuyAddress struct {
	Street     string `json:"street"`
	Suburb     string `json:"suburb,omitempty"`
	City       string `json:"city"`
	Province   string `json:"province"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type courierGuyParcel struct {
	WeightKg float64 `json:"weight_kg"`
	LengthCm float64 `json:"length_cm,omitempty"`
	WidthCm  float64 `json:"width_cm,omitempty"`
	HeightCm float64 `json:"height_cm,omitempty"`
}

type courierGuyShipment struct {
	Collection    courierGuyAddress  `json:"collection"`
	Delivery      courierGuyAddress  `json:"delivery"`
	Parcels       []courierGuyParcel `json:"parcels"`
	DeclaredValue float64            `json:"declared_value,omitempty"`
}

func courierGuyMapAddress(addr types.Address) courierGuyAddress {
	return courierGuyAddress{
		Street:     addr.Line1,
		Suburb:     addr.Suburb,
		City:       addr.City,
		Province:   addr.Province,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
	}
}

func courierGuyMapShipment(shipment Shipment) courierGuyShipment {
	parcels := make([]courierGuyParcel, 0, len(shipment.Parcels))
	for _, p := range shipment.Parcels {
		parcels = append(parcels, courierGuyParcel{
			WeightKg: p.WeightKg,
			LengthCm: p.LengthCm,
			WidthCm:  p.WidthCm,
			HeightCm: p.HeightCm,
		})
	}
	return courierGuyShipment{
		Collection:    courierGuyMapAddress(shipment.From),
		Delivery:      courierGuyMapAddress(shipment.To),
		Parcels:       parcels,
		DeclaredValue: float64(shipment.DeclaredValueCents) / 100,
	}
}

func (c *CourierGuyClient) Quote(ctx context.Context, shipment Shipment) ([]Quote, error) {
	var resp struct {
		Rates []struct {
			ServiceLevel string  `json:"service_level"`
			Rate         float64 `json:"rate"`
			DeliveryDays int     `json:"delivery_days"`
		} `json:"rates"`
	}
	err := c.http.doJSON(ctx, http.MethodPost, "/v2/rates", "Authorization",
		courierGuyMapShipment(shipment), &resp)
	if err != nil {
		return nil, err
	}

	quotes := make([]Quote, 0, len(resp.Rates))
	for _, rate := range resp.Rates {
		quotes = append(quotes, Quote{
			Provider:   c.ID(),
			Service:    rate.ServiceLevel,
			PriceCents: int(rate.Rate * 100),
			ETADays:    rate.DeliveryDays,
		})
	}
	return quotes, nil
}

func (c *CourierGuyClient) Book(ctx context.Context, shipment Shipment, service string) (*Booking, error) {
	body := struct {
		courierGuyShipment
		ServiceLevel string `json:"service_level"`
	}{courierGuyMapShipment(shipment), service}

	var resp struct {
		WaybillNumber string `json:"waybill_number"`
		Reference     string `json:"reference"`
		TrackingURL   string `json:"tracking_url"`
	}
	if err := c.http.doJSON(ctx, http.MethodPost, "/v2/shipments", "Authorization", body, &resp); err != nil {
		return nil, err
	}
	if resp.WaybillNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "courier guy returned no waybill number")
	}
	return &Booking{
		Provider:       c.ID(),
		TrackingNumber: resp.WaybillNumber,
		TrackingURL:    resp.TrackingURL,
		Reference:      resp.Reference,
	}, nil
}

func (c *CourierGuyClient) Track(ctx context.Context, trackingNumber string) ([]TrackingEvent, error) {
	var resp struct {
		Events []struct {
			Status      string    `json:"status"`
			Description string    `json:"description"`
			Location    string    `json:"location"`
			Timestamp   time.Time `json:"timestamp"`
		} `json:"events"`
	}
	path := fmt.Sprintf("/v2/tracking/%s", url.PathEscape(trackingNumber))
	if err := c.http.doJSON(ctx, http.MethodGet, path, "Authorization", nil, &resp); err != nil {
		return nil, err
	}

	events := make([]TrackingEvent, 0, len(resp.Events))
	for _, ev := range resp.Events {
		events = append(events, TrackingEvent{
			Status:      ev.Status,
			Description: ev.Description,
			Location:    ev.Location,
			OccurredAt:  ev.Timestamp,
		})
	}
	return events, nil
}
