package courier

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tjvanzyl/veldmart-backend/pkg/enums"
	pkgerrors "github.com/tjvanzyl/veldmart-backend/pkg/errors"
)

const pudoDefaultBaseURL = "https://api.pudo.co.za"

// PudoClient integrates the Pudo smart-locker network. Besides the shared
// quote/book/track contract it can look up lockers near a delivery area.
type PudoClient struct {
	http httpClient
}

// NewPudoClient builds the Pudo integration.
func NewPudoClient(apiKey string, opts ...ClientOption) *PudoClient {
	return &PudoClient{http: newHTTPClient(pudoDefaultBaseURL, apiKey, opts...)}
}

func (c *PudoClient) ID() enums.CourierProvider {
	return enums.CourierProviderPudo
}

type pudoShipmentRequest struct {
	OriginPostalCode      string  `json:"origin_postal_code"`
	DestinationPostalCode string  `json:"destination_postal_code"`
	DestinationCity       string  `json:"destination_city"`
	TotalWeightKg         float64 `json:"total_weight_kg"`
	ParcelCount           int     `json:"parcel_count"`
}

func pudoMapShipment(shipment Shipment) pudoShipmentRequest {
	var weight float64
	for _, p := range shipment.Parcels {
		weight += p.WeightKg
	}
	return pudoShipmentRequest{
		OriginPostalCode:      shipment.From.PostalCode,
		DestinationPostalCode: shipment.To.PostalCode,
		DestinationCity:       shipment.To.City,
		TotalWeightKg:         weight,
		ParcelCount:           len(shipment.Parcels),
	}
}

func (c *PudoClient) Quote(ctx context.Context, shipment Shipment) ([]Quote, error) {
	var resp struct {
		Options []struct {
			LockerSize string  `json:"locker_size"`
			Price      float64 `json:"price"`
			ETADays    int     `json:"eta_days"`
		} `json:"options"`
	}
	err := c.http.doJSON(ctx, http.MethodPost, "/v1/rates", "X-Pudo-Key",
		pudoMapShipment(shipment), &resp)
	if err != nil {
		return nil, err
	}

	quotes := make([]Quote, 0, len(resp.Options))
	for _, opt := range resp.Options {
		quotes = append(quotes, Quote{
			Provider:   c.ID(),
			Service:    opt.LockerSize,
			PriceCents: int(opt.Price * 100),
			ETADays:    opt.ETADays,
		})
	}
	return quotes, nil
}

func (c *PudoClient) Book(ctx context.Context, shipment Shipment, service string) (*Booking, error) {
	body := struct {
		pudoShipmentRequest
		LockerSize string `json:"locker_size"`
	}{pudoMapShipment(shipment), service}

	var resp struct {
		BookingID   string `json:"booking_id"`
		PIN         string `json:"pin"`
		TrackingURL string `json:"tracking_url"`
	}
	if err := c.http.doJSON(ctx, http.MethodPost, "/v1/bookings", "X-Pudo-Key", body, &resp); err != nil {
		return nil, err
	}
	if resp.BookingID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "pudo returned no booking id")
	}
	return &Booking{
		Provider:       c.ID(),
		TrackingNumber: resp.BookingID,
		TrackingURL:    resp.TrackingURL,
		Reference:      resp.PIN,
	}, nil
}

func (c *PudoClient) Track(ctx context.Context, trackingNumber string) ([]TrackingEvent, error) {
	var resp struct {
		History []struct {
			State    string    `json:"state"`
			Detail   string    `json:"detail"`
			LockerID string    `json:"locker_id"`
			At       time.Time `json:"at"`
		} `json:"history"`
	}
	path := fmt.Sprintf("/v1/bookings/%s/history", url.PathEscape(trackingNumber))
	if err := c.http.doJSON(ctx, http.MethodGet, path, "X-Pudo-Key", nil, &resp); err != nil {
		return nil, err
	}

	events := make([]TrackingEvent, 0, len(resp.History))
	for _, entry := range resp.History {
		events = append(events, TrackingEvent{
			Status:      entry.State,
			Description: entry.Detail,
			Location:    entry.LockerID,
			OccurredAt:  entry.At,
		})
	}
	return events, nil
}

// FindNearbyLockers lists lockers serving a postal code, optionally narrowed
// by city.
func (c *PudoClient) FindNearbyLockers(ctx context.Context, postalCode, city string) ([]Locker, error) {
	if postalCode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "postal code is required")
	}

	query := url.Values{}
	query.Set("postal_code", postalCode)
	if city != "" {
		query.Set("city", city)
	}

	var resp struct {
		Lockers []struct {
			ID         string  `json:"id"`
			Name       string  `json:"name"`
			Address    string  `json:"address"`
			PostalCode string  `json:"postal_code"`
			City       string  `json:"city"`
			Latitude   float64 `json:"latitude"`
			Longitude  float64 `json:"longitude"`
		} `json:"lockers"`
	}
	path := "/v1/lockers?" + query.Encode()
	if err := c.http.doJSON(ctx, http.MethodGet, path, "X-Pudo-Key", nil, &resp); err != nil {
		return nil, err
	}

	lockers := make([]Locker, 0, len(resp.Lockers))
	for _, l := range resp.Lockers {
		lockers = append(lockers, Locker{
			ID:         l.ID,
			Name:       l.Name,
			Address:    l.Address,
			PostalCode: l.PostalCode,
			City:       l.City,
			Latitude:   l.Latitude,
			Longitude:  l.Longitude,
		})
	}
	return lockers, nil
}
