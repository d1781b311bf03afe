package server

import (
	"context"

	"github.com/davidvanstory/MultiplayerGame/internal/services/converter/client"
	"github.com/davidvanstory/MultiplayerGame/internal/services/converter/pipeline"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/api/httpapi"
)

// conversionClient adapts the converter client's tickets to the transport's
// conversion surface.
type conversionClient struct {
	c *client.Client
}

func (a conversionClient) RequestConversion(ctx context.Context, roomID string, document []byte) (httpapi.ConversionTicket, error) {
	ticket, err := a.c.RequestConversion(ctx, roomID, document)
	if err != nil {
		return httpapi.ConversionTicket{}, err
	}
	return ticketView(ticket), nil
}

func (a conversionClient) ConversionStatus(ctx context.Context, roomID string) (httpapi.ConversionTicket, error) {
	ticket, err := a.c.Status(ctx, roomID)
	if err != nil {
		return httpapi.ConversionTicket{}, err
	}
	return ticketView(ticket), nil
}

func ticketView(t pipeline.Ticket) httpapi.ConversionTicket {
	return httpapi.ConversionTicket{RoomID: t.RoomID, Status: t.Status, Reason: t.Reason}
}
