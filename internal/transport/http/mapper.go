package http

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/duochat/duochat-server/internal/core"
	"github.com/duochat/duochat-server/internal/proto"
)

// dispatch maps one inbound frame onto the session protocol. A returned
// *proto.Outbound is a protocol-level error to write back to the caller;
// a returned error is fatal for the connection.
func dispatch(ctx context.Context, sess *core.Session, inbound proto.Inbound) (*proto.Outbound, error) {
	switch inbound.Type {
	case proto.InboundTypeAuthenticate:
		var data proto.AuthenticateData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, err
		}
		sess.Authenticate(ctx, data.Token)
		return nil, nil

	case proto.InboundTypeJoinRoom:
		var data proto.RoomData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, err
		}
		if data.RoomID == 0 {
			return protocolError("room_id is required"), nil
		}
		sess.Join(ctx, data.RoomID)
		return nil, nil

	case proto.InboundTypeLeaveRoom:
		var data proto.RoomData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, err
		}
		if data.RoomID == 0 {
			return protocolError("room_id is required"), nil
		}
		sess.Leave(ctx, data.RoomID)
		return nil, nil

	case proto.InboundTypeSendMessage:
		var data proto.SendMessageData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, err
		}
		if data.RoomID == 0 {
			return protocolError("room_id is required"), nil
		}
		sess.Send(ctx, data.RoomID, data.Message)
		return nil, nil

	default:
		return protocolError("unknown message type"), nil
	}
}

func protocolError(msg string) *proto.Outbound {
	return &proto.Outbound{
		Event: proto.EventError,
		Data:  proto.ErrorData{Message: msg},
	}
}

// outboundFromEvent renders a core event as a wire frame. Identifier fields
// go out as strings, timestamps as RFC 3339.
func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventAuthenticated:
		return proto.Outbound{
			Event: proto.EventAuthenticated,
			Data: proto.AuthenticatedData{
				UserID: strconv.FormatInt(event.Identity.UserID, 10),
				Name:   event.Identity.Name,
				Email:  event.Identity.Email,
			},
		}
	case core.EventAuthError:
		return proto.Outbound{
			Event: proto.EventAuthError,
			Data:  proto.ErrorData{Message: eventErrorMessage(event)},
		}
	case core.EventRoomJoined:
		return proto.Outbound{
			Event: proto.EventRoomJoined,
			Data:  proto.RoomJoinedData{RoomID: strconv.FormatInt(event.RoomID, 10)},
		}
	case core.EventUserJoined:
		return proto.Outbound{
			Event: proto.EventUserJoined,
			Data: proto.UserJoinedData{
				UserID:   strconv.FormatInt(event.UserID, 10),
				UserName: event.UserName,
			},
		}
	case core.EventRoomLeft:
		return proto.Outbound{
			Event: proto.EventRoomLeft,
			Data:  proto.RoomLeftData{RoomID: strconv.FormatInt(event.RoomID, 10)},
		}
	case core.EventUserLeft:
		return proto.Outbound{
			Event: proto.EventUserLeft,
			Data: proto.UserLeftData{
				UserID:   strconv.FormatInt(event.UserID, 10),
				UserName: event.UserName,
			},
		}
	case core.EventNewMessage:
		return proto.Outbound{
			Event: proto.EventNewMessage,
			Data: proto.NewMessageData{
				ID:        strconv.FormatInt(event.Message.ID, 10),
				UserID:    strconv.FormatInt(event.Message.UserID, 10),
				UserName:  event.Message.UserName,
				Message:   event.Message.Body,
				CreatedAt: event.Message.CreatedAt.Format(time.RFC3339),
			},
		}
	default:
		return proto.Outbound{
			Event: proto.EventError,
			Data:  proto.ErrorData{Message: eventErrorMessage(event)},
		}
	}
}

func eventErrorMessage(event *core.Event) string {
	if event.Error == nil {
		return "unknown error"
	}
	return event.Error.Message
}
