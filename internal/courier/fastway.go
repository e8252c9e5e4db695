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

const fastwayDefaultBaseURL = "https://api.fastway.co.za"

// FastwayClient integrates the Fastway Couriers consignment API.
type FastwayClient struct {
	http httpClient
}

// NewFastwayClient builds the Fastway integration.
func NewFastwayClient(apiKey string, opts ...ClientOption) *FastwayClient {
	return &FastwayClient{http: newHTTPClient(fastwayDefaultBaseURL, apiKey, opts...)}
}

func (c *FastwayClient) ID() enums.CourierProvider {
	return enums.CourierProviderFastway
}

type fastwayConsignment struct {
	PickupPostcode   string  `json:"pickup_postcode"`
	PickupTown       string  `json:"pickup_town"`
	DeliveryPostcode string  `json:"delivery_postcode"`
	DeliveryTown     string  `json:"delivery_town"`
	DeliveryAddress  string  `json:"delivery_address"`
	WeightKg         float64 `json:"weight_kg"`
	Items            int     `json:"items"`
}

func fastwayMapConsignment(shipment Shipment) fastwayConsignment {
	var weight float64
	for _, p := range shipment.Parcels {
		weight += p.WeightKg
	}
	return fastwayConsignment{
		PickupPostcode:   shipment.From.PostalCode,
		PickupTown:       shipment.From.City,
		DeliveryPostcode: shipment.To.PostalCode,
		DeliveryTown:     shipment.To.City,
		DeliveryAddress:  shipment.To.Line1,
		WeightKg:         weight,
		Items:            len(shipment.Parcels),
	}
}

func (c *FastwayClient) Quote(ctx context.Context, shipment Shipment) ([]Quote, error) {
	var resp struct {
		Services []struct {
			Code         string  `json:"code"`
			TotalExclVAT float64 `json:"total_excl_vat"`
			TotalInclVAT float64 `json:"total_incl_vat"`
			TransitDays  int     `json:"transit_days"`
		} `json:"services"`
	}
	err := c.http.doJSON(ctx, http.MethodPost, "/v1/quotes", "X-Api-Key",
		fastwayMapConsignment(shipment), &resp)
	if err != nil {
		return nil, err
	}

	quotes := make([]Quote, 0, len(resp.Services))
	for _, svc := range resp.Services {
		quotes = append(quotes, Quote{
			Provider:   c.ID(),
			Service:    svc.Code,
			PriceCents: int(svc.TotalInclVAT * 100),
			ETADays:    svc.TransitDays,
		})
	}
	return quotes, nil
}

func (c *FastwayClient) Book(ctx context.Context, shipment Shipment, service string) (*Booking, error) {
	body := struct {
		fastwayConsignment
		ServiceCode string `json:"service_code"`
	}{fastwayMapConsignment(shipment), service}

	var resp struct {
		LabelNumber string `json:"label_number"`
		ConNote     string `json:"con_note"`
	}
	if err := c.http.doJSON(ctx, http.MethodPost, "/v1/consignments", "X-Api-Key", body, &resp); err != nil {
		return nil, err
	}
	if resp.LabelNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "fastway returned no label number")
	}
	return &Booking{
		Provider:       c.ID(),
		TrackingNumber: resp.LabelNumber,
		Reference:      resp.ConNote,
	}, nil
}

func (c *FastwayClient) Track(ctx context.Context, trackingNumber string) ([]TrackingEvent, error) {
	var resp struct {
		Scans []struct {
			Type        string    `json:"type"`
			Description string    `json:"description"`
			Franchise   string    `json:"franchise"`
			ScannedAt   time.Time `json:"scanned_at"`
		} `json:"scans"`
	}
	path := fmt.Sprintf("/v1/track/%s", url.PathEscape(trackingNumber))
	if err := c.http.doJSON(ctx, http.MethodGet, path, "X-Api-Key", nil, &resp); err != nil {
		return nil, err
	}

	events := make([]TrackingEvent, 0, len(resp.Scans))
	for _, scan := range resp.Scans {
		events = append(events, TrackingEvent{
			Status:      scan.Type,
			Description: scan.Description,
			Location:    scan.Franchise,
			OccurredAt:  scan.ScannedAt,
		})
	}
	return events, nil
}
